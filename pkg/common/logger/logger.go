package logger

import (
	"flag"
	"os"
	"path"
	"time"

	"k8s.io/klog/v2"
)

// Constants for logging
const (
	LogName = "gsa"

	LogToStderr     = "false"
	AlsoLogtoStderr = "true"
	V               = "2"
)

// Usage:
// logger.InitLogger(dir, v)
// defer klog.Flush()
// ...do some logging with klog.InfoS / klog.V(4).InfoS

// InitLogger initializes klog. Logs are written to a timestamped file under
// logDir; an empty logDir keeps logging on stderr only. An empty verbosity
// falls back to V.
func InitLogger(logDir string, verbosity string) {
	fs := flag.NewFlagSet(LogName, flag.ContinueOnError)
	klog.InitFlags(fs)

	if verbosity == "" {
		verbosity = V
	}
	fs.Set("v", verbosity)

	if logDir == "" {
		fs.Set("logtostderr", "true")
		return
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		klog.ErrorS(err, "Could not create log directory, logging to stderr", "dir", logDir)
		fs.Set("logtostderr", "true")
		return
	}

	logName := LogName + "-" + time.Now().Format("20060102-030405") + ".log"
	logPath := path.Join(logDir, logName)
	fs.Set("log_file", logPath)
	fs.Set("logtostderr", LogToStderr)
	fs.Set("alsologtostderr", AlsoLogtoStderr)
}

// Flush flushes all pending log I/O.
func Flush() {
	klog.Flush()
}
