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

// The file provides HTTP handlers for health check endpoints.
// /health reports liveness only; /ready runs the registered readiness checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/llm-d-incubation/dial-relay/internal/server/common"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
)

const (
	HealthPath = "/health"
	ReadyPath  = "/ready"

	checkTimeout = 5 * time.Second
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

type HealthApiHandler struct {
	checks []Check
}

func NewHealthApiHandler(checks ...Check) *HealthApiHandler {
	return &HealthApiHandler{checks: checks}
}

func (c *HealthApiHandler) GetRoutes() []common.Route {
	return []common.Route{
		{
			Method:      http.MethodGet,
			Pattern:     HealthPath,
			HandlerFunc: c.HealthHandler,
		},
		{
			Method:      http.MethodHead,
			Pattern:     HealthPath,
			HandlerFunc: c.HealthHandler,
		},
		{
			Method:      http.MethodGet,
			Pattern:     ReadyPath,
			HandlerFunc: c.ReadyHandler,
		},
	}
}

func (c *HealthApiHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (c *HealthApiHandler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, check := range c.checks {
		if err := check.Run(ctx); err != nil {
			logging.GetRequestLogger(r).Info("Readiness check failed", "check", check.Name, "error", err.Error())
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(check.Name + ": " + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
