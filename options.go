// Copyright 2026 Blink Labs Software
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

package miniethnet

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/miniethnet/chain"
	"github.com/blinklabs-io/miniethnet/peer"
	"github.com/blinklabs-io/miniethnet/protocol"
	"github.com/blinklabs-io/miniethnet/protocol/session"
	"github.com/blinklabs-io/miniethnet/transport"
)

const (
	DefaultGenesisHash     = "0xgenesis"
	DefaultRefreshInterval = 3 * time.Second
)

// Config is used to configure a Node
type Config struct {
	ListenAddress    string
	BootstrapAddress string
	RefreshInterval  time.Duration
	ProducerInterval time.Duration
	// Leader nodes run the header producer
	Leader bool
	// Capabilities are advertised in the order of preference
	Capabilities     []string
	GenesisHash      string
	PeerTableSize    int
	HandshakeTimeout time.Duration
	RetentionDepth   uint64
	// Transport defaults to QUIC
	Transport          transport.Transport
	Logger             *slog.Logger
	PrometheusRegistry prometheus.Registerer
}

// NodeOptionFunc represents a function used to modify the node config
type NodeOptionFunc func(*Config)

// NewConfig returns a new node config object with the provided options
func NewConfig(options ...NodeOptionFunc) Config {
	c := Config{
		RefreshInterval:  DefaultRefreshInterval,
		ProducerInterval: chain.DefaultProducerInterval,
		Capabilities:     protocol.DefaultCapabilities(),
		GenesisHash:      DefaultGenesisHash,
		PeerTableSize:    peer.DefaultTableSize,
		HandshakeTimeout: session.DefaultTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithListenAddress specifies the host:port to listen on
func WithListenAddress(address string) NodeOptionFunc {
	return func(c *Config) {
		c.ListenAddress = address
	}
}

// WithBootstrapAddress specifies a peer to dial on startup
func WithBootstrapAddress(address string) NodeOptionFunc {
	return func(c *Config) {
		c.BootstrapAddress = address
	}
}

// WithRefreshInterval specifies how often known peers are contacted
func WithRefreshInterval(interval time.Duration) NodeOptionFunc {
	return func(c *Config) {
		c.RefreshInterval = interval
	}
}

// WithProducerInterval specifies how often a leader produces a header
func WithProducerInterval(interval time.Duration) NodeOptionFunc {
	return func(c *Config) {
		c.ProducerInterval = interval
	}
}

// WithLeader specifies whether the node produces headers
func WithLeader(leader bool) NodeOptionFunc {
	return func(c *Config) {
		c.Leader = leader
	}
}

// WithCapabilities specifies the advertised protocol tags
func WithCapabilities(capabilities []string) NodeOptionFunc {
	return func(c *Config) {
		c.Capabilities = capabilities
	}
}

// WithGenesisHash specifies the genesis header hash
func WithGenesisHash(genesisHash string) NodeOptionFunc {
	return func(c *Config) {
		c.GenesisHash = genesisHash
	}
}

// WithPeerTableSize specifies the maximum number of known peers
func WithPeerTableSize(size int) NodeOptionFunc {
	return func(c *Config) {
		c.PeerTableSize = size
	}
}

// WithHandshakeTimeout specifies the session handshake timeout
func WithHandshakeTimeout(timeout time.Duration) NodeOptionFunc {
	return func(c *Config) {
		c.HandshakeTimeout = timeout
	}
}

// WithRetentionDepth specifies how far behind the canonical chain a fork is kept
func WithRetentionDepth(depth uint64) NodeOptionFunc {
	return func(c *Config) {
		c.RetentionDepth = depth
	}
}

// WithTransport specifies the transport
func WithTransport(t transport.Transport) NodeOptionFunc {
	return func(c *Config) {
		c.Transport = t
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) NodeOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithPrometheusRegistry specifies the registerer for the node metrics
func WithPrometheusRegistry(registry prometheus.Registerer) NodeOptionFunc {
	return func(c *Config) {
		c.PrometheusRegistry = registry
	}
}
