package service

import (
	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/allocator/allocator"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"
)

// Service exposes the resource allocator over HTTP and, when a broker
// connection is given, over rabbit-mq.
type Service struct {
	Router    *mux.Router
	allocator *allocator.ResourceAllocator
	mqConn    *amqp.Connection
}

// NewService creates the service. mqConn may be nil.
func NewService(ra *allocator.ResourceAllocator, mqConn *amqp.Connection) *Service {
	s := &Service{
		Router:    mux.NewRouter(),
		allocator: ra,
		mqConn:    mqConn,
	}
	s.initRoutes()
	serviceInfoGauge.WithLabelValues(config.Version, config.Namespace).Set(1)
	return s
}

func (s *Service) initRoutes() {
	s.Router.HandleFunc("/", homePage)
	s.Router.HandleFunc(config.EntryPoint, s.planHandler()).Methods("POST")
	s.Router.Handle("/metrics", promhttp.Handler())
}
