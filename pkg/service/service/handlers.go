package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/algorithm"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/allocator/allocator"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/types"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/genetic"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"k8s.io/klog/v2"
)

const (
	sourceHTTP  = "http"
	sourceQueue = "queue"
)

var errOverLimit = errors.New("request over service limits")

type errorResponse struct {
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error"`
}

func homePage(w http.ResponseWriter, r *http.Request) {
	klog.V(4).InfoS("Endpoint hit", "endpoint", "/")
	fmt.Fprintf(w, "%s (v%s) - Plan Service", config.Msg, config.Version)
}

// planHandler answers a plan request with JSON, or with a text report when
// the query carries format=text.
func (s *Service) planHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		klog.InfoS("Endpoint hit", "endpoint", config.EntryPoint)

		reqBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBytes))
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		var req allocator.PlanRequest
		if err := json.Unmarshal(reqBody, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		req = allocator.Normalize(req)
		a, err := s.plan(r.Context(), req, sourceHTTP)
		if err != nil {
			writeJSON(w, statusOf(err), errorResponse{RequestID: req.RequestID, Error: err.Error()})
			return
		}

		if r.URL.Query().Get("format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			if err := a.WriteReport(w); err != nil {
				klog.ErrorS(err, "Failed to write report", "request", req.RequestID)
			}
			return
		}
		writeJSON(w, http.StatusOK, a.Response())
	}
}

// plan runs a normalized request through the allocator and records metrics.
func (s *Service) plan(ctx context.Context, req allocator.PlanRequest, source string) (*allocator.Allocation, error) {
	label := algorithmLabel(req.Algorithm)
	plansRequestedCounter.WithLabelValues(label, source).Inc()
	if err := checkLimits(req); err != nil {
		klog.InfoS("Rejected plan request", "err", err, "request", req.RequestID, "source", source)
		return nil, err
	}

	start := time.Now()
	a, err := s.allocator.Allocate(ctx, req)
	elapsed := time.Since(start).Seconds()
	planDuration.WithLabelValues(label).Observe(elapsed)
	if err != nil {
		klog.InfoS("Failed to plan", "err", err, "request", req.RequestID, "source", source)
		return nil, err
	}
	planSuccessDuration.WithLabelValues(label).Observe(elapsed)
	klog.InfoS("Planned", "request", req.RequestID, "algorithm", req.Algorithm, "totalTime", a.Plan.TotalTime,
		"source", source)
	return a, nil
}

func checkLimits(req allocator.PlanRequest) error {
	if req.PopulationSize > config.MaxPopulationSize {
		return fmt.Errorf("%w: population size %d above %d", errOverLimit, req.PopulationSize, config.MaxPopulationSize)
	}
	if req.Generations > config.MaxGenerations {
		return fmt.Errorf("%w: %d generations above %d", errOverLimit, req.Generations, config.MaxGenerations)
	}
	return nil
}

// algorithmLabel keeps user input out of metric labels.
func algorithmLabel(name types.AlgorithmName) string {
	for _, known := range types.AllAlgorithms {
		if name == known {
			return string(name)
		}
	}
	return "unknown"
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, algorithm.ErrUnknownAlgorithm), errors.Is(err, algorithm.ErrDegenerateInput),
		errors.Is(err, errOverLimit):
		return http.StatusBadRequest
	case errors.Is(err, algorithm.ErrNotApplicable), errors.Is(err, trainingjob.ErrLookupMiss),
		errors.Is(err, plan.ErrInvalidArgument), errors.Is(err, genetic.ErrEmptyPopulation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.ErrorS(err, "Failed to encode response")
	}
}
