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

// The file provides HTTP handlers that relay user messages to DIAL.
package completions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/llm-d-incubation/dial-relay/internal/dial"
	"github.com/llm-d-incubation/dial-relay/internal/relay"
	"github.com/llm-d-incubation/dial-relay/internal/server/common"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
)

const (
	CompletePath = "/v1/complete"
	BatchPath    = "/v1/complete/batch"

	maxBodyBytes    = 1 << 20
	maxBatchPrompts = 100
)

type Relay interface {
	Complete(ctx context.Context, userText, modelID string) (*dial.CompletionResponse, *dial.ClientError)
	RunBatch(ctx context.Context, prompts []string, modelID string) []relay.BatchResult
}

// Request example:
// {"message": "What is 2+2?", "model": "gpt-4o"}
type CompleteRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

type CompleteResponse struct {
	RequestID string      `json:"request_id"`
	Model     string      `json:"model"`
	Text      string      `json:"text"`
	Usage     *dial.Usage `json:"usage,omitempty"`
}

type BatchRequest struct {
	Messages []string `json:"messages"`
	Model    string   `json:"model,omitempty"`
}

type BatchItem struct {
	Index    int                 `json:"index"`
	Response *CompleteResponse   `json:"response,omitempty"`
	Error    *common.ErrorDetail `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []BatchItem `json:"results"`
	Failed  int         `json:"failed"`
}

type CompletionApiHandler struct {
	relay Relay
}

func NewCompletionApiHandler(relay Relay) *CompletionApiHandler {
	return &CompletionApiHandler{relay: relay}
}

func (c *CompletionApiHandler) GetRoutes() []common.Route {
	return []common.Route{
		{
			Method:      http.MethodPost,
			Pattern:     CompletePath,
			HandlerFunc: c.Complete,
		},
		{
			Method:      http.MethodPost,
			Pattern:     BatchPath,
			HandlerFunc: c.Batch,
		},
	}
}

func (c *CompletionApiHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decode(w, r, &req); err != nil {
		common.WriteInvalidRequest(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		common.WriteInvalidRequest(w, r, "message must not be empty")
		return
	}

	resp, cerr := c.relay.Complete(r.Context(), req.Message, req.Model)
	if cerr != nil {
		common.WriteClientError(w, r, cerr)
		return
	}
	common.WriteJSON(w, r, http.StatusOK, toResponse(resp))
}

// Batch always answers 200 once the request is valid; per-message failures are in the items.
func (c *CompletionApiHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decode(w, r, &req); err != nil {
		common.WriteInvalidRequest(w, r, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		common.WriteInvalidRequest(w, r, "messages must not be empty")
		return
	}
	if len(req.Messages) > maxBatchPrompts {
		common.WriteInvalidRequest(w, r, fmt.Sprintf("at most %d messages per batch", maxBatchPrompts))
		return
	}

	results := c.relay.RunBatch(r.Context(), req.Messages, req.Model)
	out := BatchResponse{Results: make([]BatchItem, len(results))}
	for i, res := range results {
		out.Results[i] = BatchItem{Index: res.Index}
		if res.Err != nil {
			out.Failed++
			out.Results[i].Error = &common.ErrorDetail{
				Kind:    string(res.Err.Kind),
				Status:  res.Err.HTTPStatus,
				Timeout: res.Err.Timeout,
				Message: res.Err.Message,
			}
			continue
		}
		out.Results[i].Response = toResponse(res.Response)
	}
	logging.GetRequestLogger(r).V(logging.DEBUG).Info("batch relayed", "messages", len(results), "failed", out.Failed)
	common.WriteJSON(w, r, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, into any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

func toResponse(resp *dial.CompletionResponse) *CompleteResponse {
	return &CompleteResponse{
		RequestID: resp.RequestID,
		Model:     resp.Model,
		Text:      resp.Text,
		Usage:     resp.Usage,
	}
}
