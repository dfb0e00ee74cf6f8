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

package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	t.Run("completion counts by model, result and kind", func(t *testing.T) {
		before := testutil.ToFloat64(completionsTotal.WithLabelValues("metrics-test-model", ResultFailed, "PROVIDER_ERROR"))
		RecordCompletion("metrics-test-model", ResultFailed, "PROVIDER_ERROR", 50*time.Millisecond)
		after := testutil.ToFloat64(completionsTotal.WithLabelValues("metrics-test-model", ResultFailed, "PROVIDER_ERROR"))
		assert.Equal(t, before+1, after)
	})

	t.Run("tokens split by type", func(t *testing.T) {
		RecordTokens("metrics-token-model", 5, 1)
		assert.Equal(t, 5.0, testutil.ToFloat64(tokensTotal.WithLabelValues("metrics-token-model", TokenPrompt)))
		assert.Equal(t, 1.0, testutil.ToFloat64(tokensTotal.WithLabelValues("metrics-token-model", TokenCompletion)))
	})

	t.Run("availability by result", func(t *testing.T) {
		ok := testutil.ToFloat64(availabilityChecks.WithLabelValues(ResultSuccess))
		failed := testutil.ToFloat64(availabilityChecks.WithLabelValues(ResultFailed))
		RecordAvailabilityCheck(true)
		RecordAvailabilityCheck(false)
		RecordAvailabilityCheck(false)
		assert.Equal(t, ok+1, testutil.ToFloat64(availabilityChecks.WithLabelValues(ResultSuccess)))
		assert.Equal(t, failed+2, testutil.ToFloat64(availabilityChecks.WithLabelValues(ResultFailed)))
	})

	t.Run("batch gauge returns to its start", func(t *testing.T) {
		start := testutil.ToFloat64(batchInFlight)
		IncBatchWorkers()
		assert.Equal(t, start+1, testutil.ToFloat64(batchInFlight))
		DecBatchWorkers()
		assert.Equal(t, start, testutil.ToFloat64(batchInFlight))
	})
}

func TestModelLabels(t *testing.T) {
	t.Run("should keep allowed ids and fold the rest", func(t *testing.T) {
		labels := NewModelLabels(nil, "gpt-4o", "")
		assert.Equal(t, "gpt-4o", labels.Label("gpt-4o"))
		assert.Equal(t, ModelOther, labels.Label("made-up-model"))
		assert.Equal(t, ModelOther, labels.Label(""))

		labels.Add("made-up-model")
		assert.Equal(t, "made-up-model", labels.Label("made-up-model"))
	})

	t.Run("should consult the matcher", func(t *testing.T) {
		labels := NewModelLabels(func(id string) bool { return id == "gemini-2.5-pro" })
		assert.Equal(t, "gemini-2.5-pro", labels.Label("gemini-2.5-pro"))
		assert.Equal(t, ModelOther, labels.Label("gemini-9"))
	})

	t.Run("should keep series bounded for arbitrary ids", func(t *testing.T) {
		labels := NewModelLabels(nil, "metrics-bounded-model")
		before := testutil.CollectAndCount(completionsTotal)
		for i := 0; i < 50; i++ {
			RecordCompletion(labels.Label(fmt.Sprintf("bogus-%d", i)), ResultFailed, "PROVIDER_ERROR", time.Millisecond)
		}
		// all fifty land in one series
		assert.LessOrEqual(t, testutil.CollectAndCount(completionsTotal), before+1)
		assert.GreaterOrEqual(t, testutil.ToFloat64(completionsTotal.WithLabelValues(ModelOther, ResultFailed, "PROVIDER_ERROR")), 50.0)
	})
}

func TestHandler(t *testing.T) {
	RecordCatalogRequest(SourceCache)

	w := httptest.NewRecorder()
	NewHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `dial_catalog_requests_total{source="cache"}`)
}
