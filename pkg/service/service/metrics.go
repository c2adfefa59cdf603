package service

import (
	"strings"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = strings.Replace(config.Namespace, "-", "_", -1)

var (
	serviceInfoGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "plan_service_info",
		Namespace: namespace,
		Help:      "Information about the plan service.",
	}, []string{"version", "namespace"})

	plansRequestedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "plan_service_plans_requested_total",
		Namespace: namespace,
		Help:      "Counts number of plans requested.",
	}, []string{"algorithm", "source"})

	planDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:      "plan_service_plan_duration_seconds",
		Namespace: namespace,
		Help:      "A summary of the duration of answering plan requests.",
	}, []string{"algorithm"})

	planSuccessDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:      "plan_service_plan_success_duration_seconds",
		Namespace: namespace,
		Help:      "A summary of the duration of successfully answering plan requests.",
	}, []string{"algorithm"})
)
