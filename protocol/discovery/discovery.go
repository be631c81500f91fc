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

// Package discovery implements the lightweight peer discovery protocol. Nodes
// announce their own address record and share the records they know
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/miniethnet/peer"
	"github.com/blinklabs-io/miniethnet/protocol"
)

// Protocol identifiers
const (
	ProtocolName = "discv-lite"
	ProtocolTag  = protocol.TagDiscovery
)

// MaxPeersPerMessage caps the records accepted from a single Nodes message
const MaxPeersPerMessage = 256

// DiscoveredFunc is called with the records that were new to the table
type DiscoveredFunc func(protocol.ConnectionId, []peer.Record)

// Config is used to configure the Discovery protocol instance
type Config struct {
	Table          *peer.Table
	DiscoveredFunc DiscoveredFunc
}

// DiscoveryOptionFunc represents a function used to modify the Discovery config
type DiscoveryOptionFunc func(*Config)

// NewConfig returns a new Discovery config object with the provided options
func NewConfig(options ...DiscoveryOptionFunc) Config {
	c := Config{}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithTable specifies the peer table
func WithTable(table *peer.Table) DiscoveryOptionFunc {
	return func(c *Config) {
		c.Table = table
	}
}

// WithDiscoveredFunc specifies the Discovered callback function
func WithDiscoveredFunc(discoveredFunc DiscoveredFunc) DiscoveryOptionFunc {
	return func(c *Config) {
		c.DiscoveredFunc = discoveredFunc
	}
}

// Discovery is the per-connection protocol instance
type Discovery struct {
	protoOptions protocol.ProtocolOptions
	config       *Config
	logger       *slog.Logger
}

// New returns a new Discovery object
func New(protoOptions protocol.ProtocolOptions, cfg *Config) *Discovery {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	d := &Discovery{
		protoOptions: protoOptions,
		config:       cfg,
		logger:       protoOptions.Logger,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With(
		"component", "network",
		"protocol", ProtocolName,
		"connection_id", protoOptions.ConnectionId.String(),
	)
	return d
}

// SendPing announces the local record to the remote end
func (d *Discovery) SendPing(ctx context.Context) error {
	return d.sendMessage(ctx, NewMsgPing(d.config.Table.Local()))
}

// SendFindNodes asks the remote end for the records it knows
func (d *Discovery) SendFindNodes(ctx context.Context) error {
	return d.sendMessage(ctx, NewMsgFindNodes(d.config.Table.Local()))
}

// HandleMessage handles a single discovery payload. Invalid payloads are dropped
func (d *Discovery) HandleMessage(ctx context.Context, payload []byte) {
	msg, err := protocol.DecodeMessage(payload, NewMsgFromCbor)
	if err != nil {
		d.logger.Debug(
			"dropping invalid message",
			"error", err,
		)
		return
	}
	switch msg := msg.(type) {
	case *MsgPing:
		d.logger.Debug("received ping", "from", msg.From.String())
		d.insert(msg.From)
		err = d.sendMessage(ctx, NewMsgPong(d.config.Table.Local()))
	case *MsgPong:
		d.logger.Debug("received pong", "from", msg.From.String())
		d.insert(msg.From)
	case *MsgFindNodes:
		d.logger.Debug("received find nodes", "from", msg.From.String())
		d.insert(msg.From)
		// The listing is taken before sending, the table is not held during I/O
		peers := d.config.Table.List()
		err = d.sendMessage(ctx, NewMsgNodes(d.config.Table.Local(), peers))
	case *MsgNodes:
		d.logger.Debug(
			"received nodes",
			"from", msg.From.String(),
			"count", len(msg.Peers),
		)
		d.insert(msg.From)
		peers := msg.Peers
		if len(peers) > MaxPeersPerMessage {
			peers = peers[:MaxPeersPerMessage]
		}
		d.insert(peers...)
	default:
		err = fmt.Errorf(
			"%s: %w: %T",
			ProtocolName,
			protocol.ErrUnexpectedMessage,
			msg,
		)
	}
	if err != nil {
		d.logger.Debug(
			"failed to handle message",
			"error", err,
		)
	}
}

func (d *Discovery) insert(records ...peer.Record) {
	added := d.config.Table.InsertMany(records)
	if len(added) == 0 {
		return
	}
	for _, r := range added {
		d.logger.Info(
			"discovered peer",
			"node_id", r.NodeId,
			"addr", r.Addr(),
		)
	}
	if d.config.DiscoveredFunc != nil {
		d.config.DiscoveredFunc(d.protoOptions.ConnectionId, added)
	}
}

func (d *Discovery) sendMessage(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("%s: encode error: %w", ProtocolName, err)
	}
	if err := d.protoOptions.Sender.Send(ctx, ProtocolTag, data); err != nil {
		return fmt.Errorf("%s: send error: %w", ProtocolName, err)
	}
	return nil
}
