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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	gredis "github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/dial-relay/internal/catalog"
	"github.com/llm-d-incubation/dial-relay/internal/config"
	"github.com/llm-d-incubation/dial-relay/internal/dial"
	"github.com/llm-d-incubation/dial-relay/internal/relay"
	"github.com/llm-d-incubation/dial-relay/internal/server"
	"github.com/llm-d-incubation/dial-relay/internal/server/health"
	uredis "github.com/llm-d-incubation/dial-relay/internal/util/redis"
)

type app struct {
	cfg     *config.Config
	client  *dial.Client
	rds     *gredis.Client
	service *relay.Service
	checks  []health.Check
	out     io.Writer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	client, err := dial.NewClient(clientCfg, classifier)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, client: client, out: os.Stdout}

	if cfg.Redis.Enabled() {
		rds, err := uredis.NewClient(ctx, &cfg.Redis.ClientConfig)
		if err != nil {
			// the cache is an optimization; listings go straight to DIAL without it
			klog.ErrorS(err, "Catalog cache disabled, redis is unavailable")
		} else {
			a.rds = rds
			checker := uredis.NewChecker(rds, cfg.Redis.KeyPrefix, cfg.Redis.ServiceName, cfg.Redis.Timeout)
			a.checks = append(a.checks, health.Check{Name: "redis", Run: checker.Check})
		}
	}
	models := catalog.NewCache(client, a.rds, cfg.Redis.KeyPrefix, cfg.Redis.CatalogTTL)

	a.service = relay.NewService(client, models, relay.Options{
		DefaultModel: cfg.Model.DefaultModel,
		Controls:     cfg.Controls(),
		MaxWorkers:   cfg.Batch.MaxWorkers,
	})
	a.checks = append([]health.Check{{Name: "dial", Run: a.checkDIAL}}, a.checks...)
	return a, nil
}

func (a *app) Close() {
	a.client.Close()
	if a.rds != nil {
		a.rds.Close()
	}
}

func (a *app) checkDIAL(ctx context.Context) error {
	if !a.service.CheckAvailability(ctx) {
		return errors.New("DIAL endpoint is unavailable")
	}
	return nil
}

func (a *app) dispatch(ctx context.Context, command string, args []string) int {
	switch command {
	case "probe":
		return a.probe(ctx)
	case "models":
		return a.models(ctx)
	case "describe":
		return a.describe(args)
	case "ask":
		return a.ask(ctx, args)
	case "serve":
		return a.serve(ctx)
	default:
		klog.Errorf("unknown command %q", command)
		return 2
	}
}

// probe checks the endpoint and logs the default model's dialect.
func (a *app) probe(ctx context.Context) int {
	logger := klog.FromContext(ctx)
	if !a.service.CheckAvailability(ctx) {
		logger.Error(nil, "Failed to connect to DIAL API, check the API URL and key", "baseURL", a.cfg.DIAL.BaseURL)
		return 1
	}
	profile := a.service.DescribeModel("")
	logger.Info("Connected to DIAL API",
		"baseURL", a.cfg.DIAL.BaseURL,
		"model", profile.Model,
		"supportsTemperature", profile.SupportsTemperature,
		"tokenParam", profile.TokenParam,
		"reasoning", profile.Reasoning)
	return 0
}

func (a *app) models(ctx context.Context) int {
	models, cerr := a.service.ListModels(ctx)
	if cerr != nil {
		klog.ErrorS(cerr, "Failed to list models")
		return 1
	}
	for _, m := range models {
		fmt.Fprintln(a.out, m)
	}
	return 0
}

func (a *app) describe(args []string) int {
	if len(args) != 1 {
		klog.Error("describe takes exactly one model id")
		return 2
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.service.DescribeModel(args[0])); err != nil {
		klog.ErrorS(err, "Failed to write profile")
		return 1
	}
	return 0
}

func (a *app) ask(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	model := fs.String("model", "", "Model id, defaults to the configured model")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	prompts := fs.Args()
	if len(prompts) == 0 {
		klog.Error("ask needs at least one prompt")
		return 2
	}

	if len(prompts) == 1 {
		resp, cerr := a.service.Complete(ctx, prompts[0], *model)
		if cerr != nil {
			klog.ErrorS(cerr, "Completion failed", "retryable", cerr.IsRetryable())
			return 1
		}
		fmt.Fprintln(a.out, resp.Text)
		return 0
	}

	code := 0
	for _, r := range a.service.RunBatch(ctx, prompts, *model) {
		if r.Err != nil {
			fmt.Fprintf(a.out, "[%d] error: %v\n", r.Index, r.Err)
			code = 1
			continue
		}
		fmt.Fprintf(a.out, "[%d] %s\n", r.Index, r.Response.Text)
	}
	return code
}

// serve refuses to start when DIAL is unreachable, then runs until ctx is cancelled.
func (a *app) serve(ctx context.Context) int {
	if code := a.probe(ctx); code != 0 {
		klog.Error("Cannot start relay server due to DIAL connection issues")
		return code
	}
	srv, err := server.New(a.cfg.Server, a.service, a.checks...)
	if err != nil {
		klog.ErrorS(err, "Failed to create relay server")
		return 1
	}
	if err := srv.Start(ctx); err != nil {
		klog.ErrorS(err, "Relay server failed")
		return 1
	}
	klog.Info("Relay server is terminated")
	return 0
}
