// Copyright 2026 domainbridge-go Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package domainbridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/domainbridge/domainbridge-go/bridge"
	"github.com/domainbridge/domainbridge-go/relay"
	"github.com/domainbridge/domainbridge-go/runtime"
)

// Client is the main entry point for domainbridge-go: a process-level
// bridge host relaying topics between isolated domains over one domain
// runtime. A process may host many bridges; each bridge connects exactly
// two named domains for one topic.
type Client struct {
	rt       runtime.Runtime
	registry *bridge.Registry
	ownsRT   bool
}

type clientConfig struct {
	logger         *slog.Logger
	pollInterval   time.Duration
	publishTimeout time.Duration
	metrics        relay.Metrics
	onTypeMismatch func(*bridge.TypeMismatchError)
	ownsRuntime    bool
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by the bridge core.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultLogger keeps slog's default logger. Present for call sites
// that assemble option lists conditionally.
func WithDefaultLogger() ClientOption {
	return func(c *clientConfig) {}
}

// WithPollInterval sets the discovery poll fallback interval.
func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.pollInterval = interval
	}
}

// WithPublishTimeout bounds each relayed publish.
func WithPublishTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.publishTimeout = timeout
	}
}

// WithRelayMetrics sets the metrics collector for all relay pipes.
func WithRelayMetrics(m relay.Metrics) ClientOption {
	return func(c *clientConfig) {
		c.metrics = m
	}
}

// WithTypeMismatchHandler registers a callback for publishers discovered
// with a type other than the bridged one.
func WithTypeMismatchHandler(fn func(*bridge.TypeMismatchError)) ClientOption {
	return func(c *clientConfig) {
		c.onTypeMismatch = fn
	}
}

// WithOwnedRuntime makes Close also close the underlying runtime.
func WithOwnedRuntime() ClientOption {
	return func(c *clientConfig) {
		c.ownsRuntime = true
	}
}

// NewClient creates a bridge client on top of the given domain runtime.
// The runtime is the external transport capability (see transports/);
// the client itself carries no transport knowledge.
func NewClient(rt runtime.Runtime, options ...ClientOption) *Client {
	cfg := &clientConfig{
		logger:  slog.Default(),
		metrics: relay.NoOpMetrics{},
	}
	for _, opt := range options {
		opt(cfg)
	}

	regOpts := []bridge.RegistryOption{
		bridge.WithLogger(cfg.logger),
		bridge.WithRelayMetrics(cfg.metrics),
	}
	if cfg.pollInterval > 0 {
		regOpts = append(regOpts, bridge.WithPollInterval(cfg.pollInterval))
	}
	if cfg.publishTimeout > 0 {
		regOpts = append(regOpts, bridge.WithPublishTimeout(cfg.publishTimeout))
	}
	if cfg.onTypeMismatch != nil {
		regOpts = append(regOpts, bridge.WithTypeMismatchHandler(cfg.onTypeMismatch))
	}

	return &Client{
		rt:       rt,
		registry: bridge.NewRegistry(rt, regOpts...),
		ownsRT:   cfg.ownsRuntime,
	}
}

// BridgeTopic bridges the named, typed topic from the source domain into
// the destination domain. Requesting an already-bridged topic returns
// the existing bridge's id.
func (c *Client) BridgeTopic(ctx context.Context, name, msgType string, src, dst runtime.DomainID) (bridge.HandleID, error) {
	return c.registry.BridgeTopic(ctx, runtime.Topic{Name: name, Type: msgType}, src, dst)
}

// RemoveBridge tears down the bridge. Unknown ids are a no-op.
func (c *Client) RemoveBridge(id bridge.HandleID) error {
	return c.registry.RemoveBridge(id)
}

// ListBridges reports every live bridge.
func (c *Client) ListBridges() []bridge.Summary {
	return c.registry.ListBridges()
}

// Registry exposes the underlying bridge registry.
func (c *Client) Registry() *bridge.Registry {
	return c.registry
}

// Close removes every bridge and, if the client owns the runtime, closes
// it too.
func (c *Client) Close() error {
	err := c.registry.Close()
	if c.ownsRT {
		if rtErr := c.rt.Close(); err == nil {
			err = rtErr
		}
	}
	return err
}
