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

// Package server exposes the relay service over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/dial-relay/internal/config"
	"github.com/llm-d-incubation/dial-relay/internal/metrics"
	"github.com/llm-d-incubation/dial-relay/internal/relay"
	"github.com/llm-d-incubation/dial-relay/internal/server/common"
	"github.com/llm-d-incubation/dial-relay/internal/server/completions"
	"github.com/llm-d-incubation/dial-relay/internal/server/health"
	"github.com/llm-d-incubation/dial-relay/internal/server/middleware"
	"github.com/llm-d-incubation/dial-relay/internal/server/models"
	utls "github.com/llm-d-incubation/dial-relay/internal/util/tls"
)

const defaultShutdownGrace = 10 * time.Second

type Server struct {
	config     config.ServerConfig
	httpServer *http.Server
}

// New builds the relay server. checks are run by the /ready endpoint.
func New(cfg config.ServerConfig, svc *relay.Service, checks ...health.Check) (*Server, error) {
	var tlsConfig *tls.Config
	if cfg.EnableTLS {
		var err error
		tlsConfig, err = utls.NewConfig(utls.SideServer, false, cfg.Certificates)
		if err != nil {
			return nil, fmt.Errorf("failed to build server TLS config: %w", err)
		}
	}

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           NewHandler(cfg, svc, checks...),
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewHandler returns the routed handler with the request middleware applied.
func NewHandler(cfg config.ServerConfig, svc *relay.Service, checks ...health.Check) http.Handler {
	mux := http.NewServeMux()
	common.RegisterHandler(mux, health.NewHealthApiHandler(checks...))
	common.RegisterHandler(mux, models.NewModelsApiHandler(svc))
	common.RegisterHandler(mux, completions.NewCompletionApiHandler(svc))
	if cfg.MetricsEnabled {
		mux.Handle("GET "+common.MetricsPath, metrics.NewHandler())
	}
	return middleware.RequestMiddleware(mux)
}

// Start serves until ctx is cancelled, then drains in-flight requests within the shutdown grace period.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	logger := klog.FromContext(ctx)
	// in-flight requests keep running during shutdown
	baseCtx := context.WithoutCancel(ctx)
	s.httpServer.BaseContext = func(net.Listener) context.Context { return baseCtx }

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay server listening", "address", listener.Addr().String(), "tls", s.httpServer.TLSConfig != nil)
		var err error
		if s.httpServer.TLSConfig != nil {
			err = s.httpServer.ServeTLS(listener, "", "")
		} else {
			err = s.httpServer.Serve(listener)
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	grace := s.config.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	logger.Info("shutting down relay server", "grace", grace)
	shutdownCtx, cancel := context.WithTimeout(baseCtx, grace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down relay server: %w", err)
	}
	return nil
}
