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

// Package common holds the route registration and JSON response helpers shared by the relay handlers.
package common

import (
	"encoding/json"
	"net/http"

	"github.com/llm-d-incubation/dial-relay/internal/dial"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
)

const (
	MetricsPath = "/metrics"

	// KindInvalidRequest marks errors caused by the relay caller rather than the provider.
	KindInvalidRequest = "INVALID_REQUEST"
)

type Route struct {
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

type ApiHandler interface {
	GetRoutes() []Route
}

// RegisterHandler registers every route with a method-qualified pattern,
// so other methods on the same path get 405 from the mux.
func RegisterHandler(mux *http.ServeMux, handler ApiHandler) {
	for _, route := range handler.GetRoutes() {
		mux.HandleFunc(route.Method+" "+route.Pattern, route.HandlerFunc)
	}
}

type ErrorDetail struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.GetRequestLogger(r).Error(err, "failed to write response")
	}
}

func WriteInvalidRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
		Kind:    KindInvalidRequest,
		Message: message,
	}})
}

// WriteClientError reports a DIAL failure. Provider-side failures are 502, timeouts 504.
func WriteClientError(w http.ResponseWriter, r *http.Request, cerr *dial.ClientError) {
	WriteJSON(w, r, StatusFor(cerr), ErrorResponse{Error: ErrorDetail{
		Kind:    string(cerr.Kind),
		Status:  cerr.HTTPStatus,
		Timeout: cerr.Timeout,
		Message: cerr.Message,
	}})
}

func StatusFor(cerr *dial.ClientError) int {
	if cerr.Timeout {
		return http.StatusGatewayTimeout
	}
	if cerr.Kind == dial.KindProvider && cerr.HTTPStatus == http.StatusTooManyRequests {
		return http.StatusTooManyRequests
	}
	return http.StatusBadGateway
}
