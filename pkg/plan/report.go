package plan

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// DeviceFunc returns the GPU device ids bound to a slice of a batch, or nil
// when the plan was not placed.
type DeviceFunc func(batch, slice int) []int

var separator = strings.Repeat("=", 100)

// WriteReport prints a plan: the makespan rounded to whole minutes, the
// utilization rate and every batch, slice and job with its completion time.
func WriteReport(w io.Writer, title string, p *Plan, devices DeviceFunc) error {
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "%s solution:\n", title)
	if !p.Valid() {
		fmt.Fprintf(w, "%s is infeasible: %v\n", title, p.Err)
		_, err := fmt.Fprintln(w, separator)
		return err
	}
	fmt.Fprintf(w, "%s execution time: %.0f minutes.\n", title, p.Minutes())
	fmt.Fprintf(w, "%s utilization rate: %.3f%%.\n", title, p.UtilizationRate)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for bi, b := range p.Batches {
		fmt.Fprintf(tw, "batch %d\tlength=%.3f\t\t\t\t\n", bi+1, b.Length)
		for si, s := range b.Slices {
			line := fmt.Sprintf("  slice %d\tgpus=%d\tmode=%s\tlength=%.3f\tremain=%.3f\t", si+1, s.GpuNum, s.Mode,
				s.ActualLength, s.RemainLength)
			if devices != nil {
				if ids := devices(bi, si); ids != nil {
					line += fmt.Sprintf("devices=%v", ids)
				}
			}
			fmt.Fprintln(tw, line)
			for _, j := range s.Jobs {
				writeJob(tw, "job", j)
			}
			for _, j := range s.Backfill {
				writeJob(tw, "backfill", j)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, separator)
	return err
}

func writeJob(w io.Writer, kind string, j *Job) {
	fmt.Fprintf(w, "    %s %s\torder=%d\tgpus=%d\tepochs=%d\tepoch_time=%.3f\tcompletion_time=%.3f\n", kind, j.Name,
		j.Order, j.GpuNum, j.EpochNum, j.EpochTime, j.CompletionTime)
}
