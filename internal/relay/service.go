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

// Package relay is the front-end facing side of the relay: it turns user text into
// completion calls with the configured defaults and records metrics for every call.
package relay

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/dial-relay/internal/capability"
	"github.com/llm-d-incubation/dial-relay/internal/catalog"
	"github.com/llm-d-incubation/dial-relay/internal/dial"
	"github.com/llm-d-incubation/dial-relay/internal/metrics"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
)

// Completer is the part of dial.Client the service drives.
type Completer interface {
	Complete(ctx context.Context, messages []dial.Message, modelID string, controls dial.GenerationControls) (*dial.CompletionResponse, *dial.ClientError)
	CheckAvailability(ctx context.Context) bool
	DescribeModel(modelID string) capability.Profile
	KnowsModel(modelID string) bool
}

type Options struct {
	DefaultModel string
	Controls     dial.GenerationControls
	MaxWorkers   int
}

type Service struct {
	client  Completer
	catalog catalog.Lister
	opts    Options
	labels  *metrics.ModelLabels
}

// NewService wires a completer and a model catalog. models may be the client itself
// or a catalog.Cache in front of it.
// Metrics carry the model id only for the default model, models in the capability tables,
// models seen in a listing and models DIAL has answered for. Other ids are labelled "other".
func NewService(client Completer, models catalog.Lister, opts Options) *Service {
	if opts.Controls == (dial.GenerationControls{}) {
		opts.Controls = dial.DefaultGenerationControls()
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	var match func(string) bool
	if client != nil {
		match = client.KnowsModel
	}
	return &Service{
		client:  client,
		catalog: models,
		opts:    opts,
		labels:  metrics.NewModelLabels(match, opts.DefaultModel),
	}
}

func (s *Service) DefaultModel() string {
	return s.opts.DefaultModel
}

func (s *Service) model(modelID string) string {
	if modelID == "" {
		return s.opts.DefaultModel
	}
	return modelID
}

// Complete sends userText as a single user message. An empty modelID selects the default model.
func (s *Service) Complete(ctx context.Context, userText, modelID string) (*dial.CompletionResponse, *dial.ClientError) {
	model := s.model(modelID)
	logger := klog.FromContext(ctx).WithValues("model", model)

	start := time.Now()
	resp, cerr := s.client.Complete(ctx, dial.UserMessage(userText), model, s.opts.Controls)
	elapsed := time.Since(start)

	if cerr != nil {
		metrics.RecordCompletion(s.labels.Label(model), metrics.ResultFailed, string(cerr.Kind), elapsed)
		logger.V(logging.INFO).Info("Completion failed", "kind", cerr.Kind, "status", cerr.HTTPStatus, "error", cerr.Message)
		return nil, cerr
	}

	// the deployment answered, so the id is real
	s.labels.Add(model)
	metrics.RecordCompletion(model, metrics.ResultSuccess, metrics.KindNone, elapsed)
	if resp.Usage != nil {
		metrics.RecordTokens(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	logger.V(logging.DEBUG).Info("Completion succeeded", "requestID", resp.RequestID, "duration", elapsed)
	return resp, nil
}

func (s *Service) CheckAvailability(ctx context.Context) bool {
	available := s.client.CheckAvailability(ctx)
	metrics.RecordAvailabilityCheck(available)
	return available
}

func (s *Service) ListModels(ctx context.Context) ([]string, *dial.ClientError) {
	models, cerr := s.catalog.ListModels(ctx)
	if cerr == nil {
		s.labels.Add(models...)
	}
	return models, cerr
}

// DescribeModel returns the capability profile of modelID, or of the default model when empty.
func (s *Service) DescribeModel(modelID string) capability.Profile {
	return s.client.DescribeModel(s.model(modelID))
}

// BatchResult is the outcome of one prompt of a batch. Exactly one of Response and Err is set.
type BatchResult struct {
	Index    int
	Prompt   string
	Response *dial.CompletionResponse
	Err      *dial.ClientError
}

// RunBatch completes every prompt against the same model, at most MaxWorkers at a time.
// Results are in input order. Prompts not started before ctx is done fail as cancelled.
func (s *Service) RunBatch(ctx context.Context, prompts []string, modelID string) []BatchResult {
	logger := klog.FromContext(ctx)
	results := make([]BatchResult, len(prompts))
	pool := NewWorkerPool(s.opts.MaxWorkers)

	logger.V(logging.INFO).Info("Starting batch", "prompts", len(prompts), "model", s.model(modelID), "maxWorkers", s.opts.MaxWorkers)

	for i, prompt := range prompts {
		results[i] = BatchResult{Index: i, Prompt: prompt}
		if err := pool.Acquire(ctx); err != nil {
			results[i].Err = &dial.ClientError{
				Kind:     dial.KindTransport,
				Message:  "request cancelled",
				RawError: err,
			}
			continue
		}
		go func(r *BatchResult) {
			defer pool.Release()
			r.Response, r.Err = s.Complete(ctx, r.Prompt, modelID)
		}(&results[i])
	}
	pool.WaitAll()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.V(logging.INFO).Info("Batch finished", "prompts", len(prompts), "failed", failed)
	return results
}
