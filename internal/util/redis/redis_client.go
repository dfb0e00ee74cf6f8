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

// Package redis opens and checks the redis connection used by the model catalog cache.
package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	gredis "github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	utls "github.com/llm-d-incubation/dial-relay/internal/util/tls"
)

const (
	pingWait          = 10 * time.Second
	defaultCmdTimeout = 2 * time.Second
)

type ClientConfig struct {
	URL          string             `yaml:"url"`
	DB           int                `yaml:"db"`
	EnableTLS    bool               `yaml:"enable_tls"`
	Insecure     bool               `yaml:"insecure"`
	Certificates *utls.Certificates `yaml:"certificates,omitempty"`
	ServiceName  string             `yaml:"service_name"`
	Timeout      time.Duration      `yaml:"timeout"`     // dial, read and write timeout
	MaxRetries   int                `yaml:"max_retries"` // -1 (not 0) disables retries
	PoolTimeout  time.Duration      `yaml:"pool_timeout"`
}

// NewClient parses the URL, applies the config and pings the server before returning.
func NewClient(ctx context.Context, cnf *ClientConfig) (*gredis.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := klog.FromContext(ctx)
	if cnf == nil {
		return nil, fmt.Errorf("redis config was not provided")
	}
	if cnf.URL == "" {
		return nil, fmt.Errorf("redis config has empty url")
	}
	opts, err := gredis.ParseURL(cnf.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = clientName(cnf.ServiceName)
	}
	if cnf.DB > 0 {
		opts.DB = cnf.DB
	}
	if cnf.Timeout != 0 {
		opts.DialTimeout = cnf.Timeout
		opts.ReadTimeout = cnf.Timeout
		opts.WriteTimeout = cnf.Timeout
	}
	opts.ContextTimeoutEnabled = true
	if cnf.MaxRetries != 0 {
		opts.MaxRetries = cnf.MaxRetries
	}
	if cnf.PoolTimeout != 0 {
		opts.PoolTimeout = cnf.PoolTimeout
	}
	if cnf.EnableTLS {
		certs := utls.Certificates{}
		if cnf.Certificates != nil {
			certs = *cnf.Certificates
		}
		opts.TLSConfig, err = utls.NewConfig(utls.SideClient, cnf.Insecure, certs)
		if err != nil {
			return nil, fmt.Errorf("failed to build redis TLS config: %w", err)
		}
	}

	rds := gredis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, pingWait)
	defer cancel()
	if err := rds.Ping(pctx).Err(); err != nil {
		rds.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	logger.Info("Connected to redis", "addr", opts.Addr, "clientName", opts.ClientName)
	return rds, nil
}

func clientName(serviceName string) string {
	hostname, _ := os.Hostname()
	suffix := uuid.NewString()[:8]
	if serviceName != "" {
		return fmt.Sprintf("%s-%s-%d-%s", serviceName, hostname, os.Getpid(), suffix)
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), suffix)
}

// CheckClient verifies that the server accepts a write and returns it on read.
// A cmdTimeout <= 0 means defaultCmdTimeout.
func CheckClient(ctx context.Context, rds *gredis.Client, cmdTimeout time.Duration, keyPrefix, serviceName string) error {
	if cmdTimeout <= 0 {
		cmdTimeout = defaultCmdTimeout
	}
	key := pingKey(keyPrefix, serviceName)

	cctx, cancel := context.WithTimeout(ctx, cmdTimeout)
	err := rds.Set(cctx, key, "ping", 10*time.Second).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	cctx, cancel = context.WithTimeout(ctx, cmdTimeout)
	val, err := rds.Get(cctx, key).Result()
	cancel()
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	if val != "ping" {
		return fmt.Errorf("read back %q instead of the written value", val)
	}
	return nil
}

func pingKey(prefix, serviceName string) string {
	return fmt.Sprintf("%sping:%s:%s", prefix, serviceName, time.Now().Format("20060102150405"))
}

// Checker serializes CheckClient calls so concurrent health probes do not pile up.
type Checker struct {
	rds         *gredis.Client
	lock        sync.Mutex
	keyPrefix   string
	serviceName string
	cmdTimeout  time.Duration
}

func NewChecker(rds *gredis.Client, keyPrefix, serviceName string, cmdTimeout time.Duration) *Checker {
	return &Checker{
		rds:         rds,
		keyPrefix:   keyPrefix,
		serviceName: serviceName,
		cmdTimeout:  cmdTimeout,
	}
}

func (c *Checker) Check(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	err := CheckClient(ctx, c.rds, c.cmdTimeout, c.keyPrefix, c.serviceName)
	if err != nil {
		klog.FromContext(ctx).Error(err, "Redis check failed")
	}
	return err
}
