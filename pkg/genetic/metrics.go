package genetic

import (
	"strings"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = strings.Replace(config.Namespace, "-", "_", -1)

var (
	generationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "genetic_generations_total",
		Namespace: namespace,
		Help:      "The total number of generations evolved.",
	})

	invalidIndividualsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "genetic_invalid_individuals_total",
		Namespace: namespace,
		Help:      "The total number of individuals that could not be decoded to a plan.",
	})

	decodeDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name:      "genetic_decode_duration_seconds",
		Namespace: namespace,
		Help:      "A summary of the duration of decoding an individual to a plan.",
	})

	bestTotalTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "genetic_best_total_time_seconds",
		Namespace: namespace,
		Help:      "Total time of the best plan of the latest generation.",
	})
)
