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

// The file provides HTTP handlers for the model catalog and capability profiles.
package models

import (
	"context"
	"net/http"

	"github.com/llm-d-incubation/dial-relay/internal/capability"
	"github.com/llm-d-incubation/dial-relay/internal/dial"
	"github.com/llm-d-incubation/dial-relay/internal/server/common"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
)

const (
	ModelsPath  = "/v1/models"
	ProfilePath = "/v1/models/{model}/profile"
)

type Catalog interface {
	ListModels(ctx context.Context) ([]string, *dial.ClientError)
	DescribeModel(modelID string) capability.Profile
	DefaultModel() string
}

type ListModelsResponse struct {
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
}

type ModelsApiHandler struct {
	catalog Catalog
}

func NewModelsApiHandler(catalog Catalog) *ModelsApiHandler {
	return &ModelsApiHandler{catalog: catalog}
}

func (c *ModelsApiHandler) GetRoutes() []common.Route {
	return []common.Route{
		{
			Method:      http.MethodGet,
			Pattern:     ModelsPath,
			HandlerFunc: c.ListModels,
		},
		{
			Method:      http.MethodGet,
			Pattern:     ProfilePath,
			HandlerFunc: c.GetProfile,
		},
	}
}

func (c *ModelsApiHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, cerr := c.catalog.ListModels(r.Context())
	if cerr != nil {
		logging.GetRequestLogger(r).V(logging.INFO).Info("model listing failed", "kind", cerr.Kind, "error", cerr.Message)
		common.WriteClientError(w, r, cerr)
		return
	}
	common.WriteJSON(w, r, http.StatusOK, ListModelsResponse{
		Models:       models,
		DefaultModel: c.catalog.DefaultModel(),
	})
}

// GetProfile is answered locally; unknown models get the default profile.
func (c *ModelsApiHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	if model == "" {
		common.WriteInvalidRequest(w, r, "model is required")
		return
	}
	common.WriteJSON(w, r, http.StatusOK, c.catalog.DescribeModel(model))
}
