/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics defines the relay's Prometheus metrics and their recorders.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// labels definition
const (
	// result labels
	ResultSuccess = "success"
	ResultFailed  = "failed"

	// kind label for successful completions
	KindNone = "none"

	// model label for ids the relay does not know
	ModelOther = "other"

	// catalog source labels
	SourceCache    = "cache"
	SourceProvider = "provider"
	SourceError    = "error"

	// token type labels
	TokenPrompt     = "prompt"
	TokenCompletion = "completion"
)

var (
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dial_completions_total",
			Help: "Total number of DIAL chat completion calls",
		}, []string{"model", "result", "kind"},
	)

	completionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dial_completion_duration_seconds",
			Help: "Duration of DIAL chat completion calls in seconds",
			// 0.25s .. ~128s
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"model"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dial_tokens_total",
			Help: "Tokens reported by DIAL usage",
		}, []string{"model", "type"},
	)

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dial_availability_checks_total",
			Help: "Total number of DIAL availability probes",
		}, []string{"result"},
	)

	catalogRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dial_catalog_requests_total",
			Help: "Model listings served, by where the listing came from",
		}, []string{"source"},
	)

	batchInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dial_batch_active_workers",
			Help: "Current number of batch workers running a completion",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the relay server",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds for the relay server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed by the relay server",
		},
	)
)

func init() {
	prometheus.MustRegister(completionsTotal)
	prometheus.MustRegister(completionDuration)
	prometheus.MustRegister(tokensTotal)
	prometheus.MustRegister(availabilityChecks)
	prometheus.MustRegister(catalogRequests)
	prometheus.MustRegister(batchInFlight)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsInFlight)
}

// ModelLabels bounds the model label to ids the relay knows about.
// Caller-supplied model ids are free-form, so anything else is reported as ModelOther.
type ModelLabels struct {
	mu    sync.RWMutex
	known map[string]struct{}
	match func(string) bool
}

// NewModelLabels allows ids, plus every id match accepts. match may be nil.
func NewModelLabels(match func(string) bool, ids ...string) *ModelLabels {
	l := &ModelLabels{known: make(map[string]struct{}), match: match}
	l.Add(ids...)
	return l
}

// Add allows ids as label values.
func (l *ModelLabels) Add(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if id != "" {
			l.known[id] = struct{}{}
		}
	}
}

// Label returns model if it is allowed, ModelOther otherwise.
func (l *ModelLabels) Label(model string) string {
	l.mu.RLock()
	_, ok := l.known[model]
	l.mu.RUnlock()
	if ok || (model != "" && l.match != nil && l.match(model)) {
		return model
	}
	return ModelOther
}

// Recorder funcs

// RecordCompletion counts one completion call. kind is the error kind, or KindNone on success.
func RecordCompletion(model, result, kind string, duration time.Duration) {
	completionsTotal.WithLabelValues(model, result, kind).Inc()
	completionDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func RecordTokens(model string, prompt, completion int) {
	tokensTotal.WithLabelValues(model, TokenPrompt).Add(float64(prompt))
	tokensTotal.WithLabelValues(model, TokenCompletion).Add(float64(completion))
}

func RecordAvailabilityCheck(available bool) {
	if available {
		availabilityChecks.WithLabelValues(ResultSuccess).Inc()
		return
	}
	availabilityChecks.WithLabelValues(ResultFailed).Inc()
}

func RecordCatalogRequest(source string) {
	catalogRequests.WithLabelValues(source).Inc()
}

func IncBatchWorkers() {
	batchInFlight.Inc()
}

func DecBatchWorkers() {
	batchInFlight.Dec()
}

func RecordRequestStart() {
	httpRequestsInFlight.Inc()
}

func RecordRequestFinish(method, path, status string, durationSeconds float64) {
	httpRequestsInFlight.Dec()
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
}

// NewHandler serves the default registry.
func NewHandler() http.Handler {
	return promhttp.Handler()
}
