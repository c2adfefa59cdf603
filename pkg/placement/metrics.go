package placement

import (
	"strings"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = strings.Replace(config.Namespace, "-", "_", -1)

var (
	placementAlgoDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name:      "placement_algorithm_duration_seconds",
		Namespace: namespace,
		Help:      "A summary of the duration of placement algorithm.",
	})
	reusedSlotsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "placement_slots_reused",
		Namespace: namespace,
		Help:      "Number of slots kept on the node a job used in the previous batch, in the last placement.",
	})
	crossNodeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "placement_slices_cross_node",
		Namespace: namespace,
		Help:      "Number of slices that span more than one node, in the last placement.",
	})
)
