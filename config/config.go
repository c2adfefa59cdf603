package config

import "time"

const (
	Name       = "gsa"
	Msg        = "GSA - GPU training job plan engine"
	Version    = "0.3.0"
	Port       = "55588"
	EntryPoint = "/plan"
	Namespace  = "gpu-scheduling"
)

// Defaults of the genetic search, taken from the experiments the engine was
// tuned with.
const (
	DefaultPopulationSize = 50
	DefaultGenerations    = 1000
	DefaultNumGpu         = 8
)

// LookupTimeout bounds a single training data query against a database.
const LookupTimeout = 5 * time.Second

// Limits of a plan request accepted by the service.
const (
	MaxRequestBytes   = 1 << 20
	MaxPopulationSize = 1000
	MaxGenerations    = 10000
)

// Queues used when plan requests are delivered through rabbit-mq.
const (
	PlanRequestQueue  = "gsa-plan-requests"
	PlanResponseQueue = "gsa-plan-responses"
)
