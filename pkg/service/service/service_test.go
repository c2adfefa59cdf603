package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/allocator/allocator"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/rabbitmq"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(allocator.NewResourceAllocator(trainingjob.SampleTable(), 4), nil)
}

func post(t *testing.T, s *Service, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHomePage(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestService().Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), config.Msg)
}

func TestPlanJSON(t *testing.T) {
	s := newTestService()
	counter := plansRequestedCounter.WithLabelValues("Parallel", sourceHTTP)
	before := testutil.ToFloat64(counter)

	rec := post(t, s, config.EntryPoint,
		`{"requestId":"r-1","algorithm":"Parallel","jobNames":["resnet50","vgg16","alexnet"],"numGpu":8}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp allocator.PlanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "r-1", resp.RequestID)
	assert.Equal(t, "Parallel", resp.Algorithm)
	require.Len(t, resp.Batches, 1)
	gpus := 0
	for _, sl := range resp.Batches[0].Slices {
		gpus += sl.GpuNum
		assert.Len(t, sl.Devices, sl.GpuNum)
	}
	assert.Equal(t, 8, gpus)
	assert.Greater(t, resp.TotalTime, 0.0)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestPlanTextReport(t *testing.T) {
	rec := post(t, newTestService(), config.EntryPoint+"?format=text",
		`{"algorithm":"Sequential","jobNames":["vgg16"],"numGpu":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Sequential execution time")
	assert.Contains(t, rec.Body.String(), "devices=[0 1]")
}

func TestPlanErrors(t *testing.T) {
	s := newTestService()
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"jobNames":`, http.StatusBadRequest},
		{"unknown algorithm", `{"algorithm":"Tetris","jobNames":["vgg16"]}`, http.StatusBadRequest},
		{"no jobs", `{"algorithm":"Sequential","jobNames":[]}`, http.StatusBadRequest},
		{"duplicate jobs", `{"algorithm":"Sequential","jobNames":["vgg16","vgg16"]}`, http.StatusBadRequest},
		{"missing data", `{"algorithm":"Sequential","jobNames":["bert"],"numGpu":2}`, http.StatusUnprocessableEntity},
		{"huge population", `{"jobNames":["vgg16"],"populationSize":1000000}`, http.StatusBadRequest},
		{"too many generations", `{"jobNames":["vgg16"],"generations":1000000}`, http.StatusBadRequest},
		{"oversized body", `{"jobNames":["` + strings.Repeat("x", config.MaxRequestBytes) + `"]}`,
			http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, s, config.EntryPoint, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPlanRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestService().Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, config.EntryPoint, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReply(t *testing.T) {
	s := newTestService()

	msg, err := rabbitmq.NewMsg(rabbitmq.VerbPlan, "q-1", allocator.PlanRequest{
		Algorithm: "Optimus",
		JobNames:  []string{"resnet50", "vgg16"},
		NumGpu:    4,
	})
	require.NoError(t, err)
	out := s.reply(context.Background(), msg)
	require.Equal(t, rabbitmq.VerbResult, out.Verb, string(out.Payload))
	assert.Equal(t, "q-1", out.RequestID)
	var resp allocator.PlanResponse
	require.NoError(t, out.Decode(&resp))
	assert.Equal(t, "q-1", resp.RequestID)
	assert.Equal(t, "Optimus", resp.Algorithm)

	out = s.reply(context.Background(), rabbitmq.Msg{Verb: rabbitmq.VerbResult, RequestID: "q-2"})
	assert.Equal(t, rabbitmq.VerbError, out.Verb)
	assert.Equal(t, "q-2", out.RequestID)

	msg, err = rabbitmq.NewMsg(rabbitmq.VerbPlan, "q-3", allocator.PlanRequest{Algorithm: "Sequential"})
	require.NoError(t, err)
	out = s.reply(context.Background(), msg)
	assert.Equal(t, rabbitmq.VerbError, out.Verb)
	var text string
	require.NoError(t, out.Decode(&text))
	assert.Contains(t, text, "degenerate input")
}

func TestReplyRejectsOverLimit(t *testing.T) {
	msg, err := rabbitmq.NewMsg(rabbitmq.VerbPlan, "q-4", allocator.PlanRequest{
		JobNames:    []string{"vgg16"},
		Generations: config.MaxGenerations + 1,
	})
	require.NoError(t, err)
	out := newTestService().reply(context.Background(), msg)
	assert.Equal(t, rabbitmq.VerbError, out.Verb)
	var text string
	require.NoError(t, out.Decode(&text))
	assert.Contains(t, text, "over service limits")
}

func TestConsumeWithoutBroker(t *testing.T) {
	assert.Error(t, newTestService().ConsumePlanRequests(context.Background()))
}

func TestStatusOfCancellation(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(context.Canceled))
	assert.Equal(t, "unknown", algorithmLabel("Tetris"))
}
