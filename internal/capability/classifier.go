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

// Package capability maps model identifiers to the request parameters the model accepts.
package capability

import (
	"strings"
)

// TokenParam is the name of the request field that limits generated tokens.
type TokenParam string

const (
	TokenParamMaxTokens           TokenParam = "max_tokens"
	TokenParamMaxCompletionTokens TokenParam = "max_completion_tokens"
	TokenParamMaxOutputTokens     TokenParam = "max_output_tokens"
)

// TemperatureParam is the name of the sampling temperature request field.
const TemperatureParam = "temperature"

// Profile describes the parameter dialect of a single model.
type Profile struct {
	Model               string     `json:"model"`
	SupportsTemperature bool       `json:"supports_temperature"`
	TokenParam          TokenParam `json:"token_param"`
	Reasoning           bool       `json:"is_reasoning_model"`
}

// Classifier resolves a Profile for any model id.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	noTemperature       map[string]struct{}
	maxCompletionTokens map[string]struct{}
	maxOutputTokens     map[string]struct{}
	reasoningModels     map[string]struct{}
	reasoningPrefixes   []string
}

// NewClassifier builds a classifier from the given tables. The tables are copied.
func NewClassifier(tables Tables) *Classifier {
	prefixes := make([]string, 0, len(tables.ReasoningPrefixes))
	for _, p := range tables.ReasoningPrefixes {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Classifier{
		noTemperature:       toSet(tables.NoTemperature),
		maxCompletionTokens: toSet(tables.MaxCompletionTokens),
		maxOutputTokens:     toSet(tables.MaxOutputTokens),
		reasoningModels:     toSet(tables.ReasoningModels),
		reasoningPrefixes:   prefixes,
	}
}

// NewDefaultClassifier builds a classifier from the embedded tables.
func NewDefaultClassifier() *Classifier {
	return NewClassifier(DefaultTables())
}

// Classify returns the profile of modelID. Unknown ids get the default dialect:
// max_tokens, temperature supported, not a reasoning model.
func (c *Classifier) Classify(modelID string) Profile {
	return Profile{
		Model:               modelID,
		SupportsTemperature: c.SupportsTemperature(modelID),
		TokenParam:          c.TokenParam(modelID),
		Reasoning:           c.IsReasoningModel(modelID),
	}
}

// Known reports whether modelID is named in one of the tables. Prefix matches do not count.
func (c *Classifier) Known(modelID string) bool {
	for _, set := range []map[string]struct{}{c.noTemperature, c.maxCompletionTokens, c.maxOutputTokens, c.reasoningModels} {
		if _, ok := set[modelID]; ok {
			return true
		}
	}
	return false
}

// TokenParam returns the token-limit field name for modelID.
// The max_completion_tokens table takes precedence over max_output_tokens.
func (c *Classifier) TokenParam(modelID string) TokenParam {
	if _, ok := c.maxCompletionTokens[modelID]; ok {
		return TokenParamMaxCompletionTokens
	}
	if _, ok := c.maxOutputTokens[modelID]; ok {
		return TokenParamMaxOutputTokens
	}
	return TokenParamMaxTokens
}

// SupportsTemperature reports whether modelID accepts the temperature field.
func (c *Classifier) SupportsTemperature(modelID string) bool {
	_, excluded := c.noTemperature[modelID]
	return !excluded
}

// IsReasoningModel reports whether modelID belongs to a reasoning family.
func (c *Classifier) IsReasoningModel(modelID string) bool {
	for _, prefix := range c.reasoningPrefixes {
		if strings.HasPrefix(modelID, prefix) {
			return true
		}
	}
	_, ok := c.reasoningModels[modelID]
	return ok
}

// Parameters returns the generation-control fields accepted by modelID:
// exactly one token-limit field, plus temperature when supported.
func (c *Classifier) Parameters(modelID string, maxTokens int, temperature float64) map[string]any {
	return c.Classify(modelID).Parameters(maxTokens, temperature)
}

// Parameters returns the generation-control fields for this profile.
func (p Profile) Parameters(maxTokens int, temperature float64) map[string]any {
	params := map[string]any{
		string(p.TokenParam): maxTokens,
	}
	if p.SupportsTemperature {
		params[TemperatureParam] = temperature
	}
	return params
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
