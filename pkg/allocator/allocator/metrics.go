package allocator

import (
	"strings"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = strings.Replace(config.Namespace, "-", "_", -1)

var (
	allocatorInfoGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "resource_allocator_info",
		Namespace: namespace,
		Help:      "Information about the resource allocator.",
	}, []string{"version", "namespace"})

	// Metrics that are partitioned by scheduling algorithm
	numJobsLabeled = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:      "resource_allocator_labeled_num_jobs",
		Namespace: namespace,
		Help:      "A summary of the number of jobs of the request.",
	}, []string{"algorithm"})

	numGpusLabeled = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:      "resource_allocator_labeled_num_gpus",
		Namespace: namespace,
		Help:      "A summary of the number of GPUs of the request.",
	}, []string{"algorithm"})

	schedulingAlgorithmDurationLabeled = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:      "resource_allocator_labeled_scheduling_algorithm_duration_seconds",
		Namespace: namespace,
		Help:      "A summary of the duration of scheduling algorithm.",
	}, []string{"algorithm"})

	failedAllocationsLabeled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "resource_allocator_labeled_failed_allocations_total",
		Namespace: namespace,
		Help:      "Counts number of requests the scheduling algorithm could not plan.",
	}, []string{"algorithm"})
)

func init() {
	allocatorInfoGauge.WithLabelValues(config.Version, config.Namespace).Set(1)
}
