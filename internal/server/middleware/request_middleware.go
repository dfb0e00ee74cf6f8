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

// The file implements request middleware for request IDs, request logging and HTTP metrics.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/llm-d-incubation/dial-relay/internal/metrics"
	"github.com/llm-d-incubation/dial-relay/internal/server/common"
	"github.com/llm-d-incubation/dial-relay/internal/server/health"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
)

type contextKey string

const (
	RequestIDHeader            = "X-Request-ID"
	requestIDKey    contextKey = "requestID"

	unmatchedPath = "unmatched"
)

func RequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// probes and scrapes stay out of logs and metrics
		switch r.URL.Path {
		case common.MetricsPath, health.HealthPath, health.ReadyPath:
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		metrics.RecordRequestStart()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx, logger := logging.WithValues(r.Context(), "requestID", requestID)
		ctx = context.WithValue(ctx, requestIDKey, requestID)
		req := r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		logger.V(logging.TRACE).Info("incoming request",
			"method", r.Method,
			"path", r.URL.Path,
			"remoteAddr", r.RemoteAddr,
		)

		defer func() {
			// label by route pattern so model ids in paths do not explode cardinality
			path := req.Pattern
			if path == "" {
				path = unmatchedPath
			}
			status := strconv.Itoa(rw.statusCode)
			metrics.RecordRequestFinish(r.Method, path, status, time.Since(start).Seconds())
			logger.V(logging.DEBUG).Info("request finished", "pattern", path, "status", rw.statusCode, "duration", time.Since(start))
		}()

		next.ServeHTTP(rw, req)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestIDFromContext retrieves the request ID from the context.
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
