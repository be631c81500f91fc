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

// Package miniethnet implements a minimal peer-to-peer node. Nodes discover each
// other, negotiate shared capabilities over a single transport connection and
// synchronize an append-only header chain using a longest-chain rule.
//
// The Node type is the main entry point. The protocol, muxer, chain and transport
// packages can be used on their own as well.
package miniethnet

import (
	"context"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/miniethnet/muxer"
	"github.com/blinklabs-io/miniethnet/protocol"
	"github.com/blinklabs-io/miniethnet/protocol/discovery"
	"github.com/blinklabs-io/miniethnet/protocol/minisync"
	"github.com/blinklabs-io/miniethnet/protocol/session"
	"github.com/blinklabs-io/miniethnet/transport"
)

// Connection is an established session with a remote node. It owns the muxer
// and the per-connection protocol instances
type Connection struct {
	id        protocol.ConnectionId
	conn      transport.Conn
	session   session.PeerSession
	muxer     *muxer.Muxer
	logger    *slog.Logger
	doneChan  chan struct{}
	onceClose sync.Once
	// Mini-protocols
	discovery *discovery.Discovery
	miniSync  *minisync.MiniSync
}

func newConnection(
	conn transport.Conn,
	peerSession session.PeerSession,
	logger *slog.Logger,
	metrics *Metrics,
	discoveryConfig *discovery.Config,
	miniSyncConfig *minisync.Config,
) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		id: protocol.ConnectionId{
			LocalAddr:  conn.LocalAddr().String(),
			RemoteAddr: conn.RemoteAddr().String(),
		},
		conn:     conn,
		session:  peerSession,
		doneChan: make(chan struct{}),
	}
	c.logger = logger.With(
		"component", "network",
		"connection_id", c.id.String(),
		"remote_node_id", peerSession.RemoteNodeId,
	)
	muxerConfig := muxer.Config{
		Gate:   peerSession.Allows,
		Logger: logger,
	}
	if metrics != nil {
		muxerConfig.FramesCounter = metrics.MuxerFrames
	}
	c.muxer = muxer.New(conn, muxerConfig)
	protoOptions := protocol.ProtocolOptions{
		ConnectionId: c.id,
		Sender:       c.muxer,
		Logger:       logger,
	}
	c.discovery = discovery.New(protoOptions, discoveryConfig)
	c.miniSync = minisync.New(protoOptions, miniSyncConfig)
	if err := c.muxer.RegisterProtocol(protocol.TagDiscovery, c.discovery.HandleMessage); err != nil {
		return nil, err
	}
	if err := c.muxer.RegisterProtocol(protocol.TagMiniSync, c.miniSync.HandleMessage); err != nil {
		return nil, err
	}
	return c, nil
}

// Id returns the connection identifier
func (c *Connection) Id() protocol.ConnectionId {
	return c.id
}

// Session returns the negotiated session
func (c *Connection) Session() session.PeerSession {
	return c.session
}

// Muxer returns the muxer object for the connection
func (c *Connection) Muxer() *muxer.Muxer {
	return c.muxer
}

// Discovery returns the discovery protocol handler
func (c *Connection) Discovery() *discovery.Discovery {
	return c.discovery
}

// MiniSync returns the mini-sync protocol handler
func (c *Connection) MiniSync() *minisync.MiniSync {
	return c.miniSync
}

// DoneChan returns a channel that is closed when the connection is closed
func (c *Connection) DoneChan() <-chan struct{} {
	return c.doneChan
}

// Close shuts down the underlying transport connection
func (c *Connection) Close() error {
	var err error
	c.onceClose.Do(func() {
		err = c.conn.Close()
		close(c.doneChan)
	})
	return err
}

// run processes incoming frames until the connection or context ends
func (c *Connection) run(ctx context.Context) {
	defer func() {
		_ = c.Close()
	}()
	if err := c.muxer.Run(ctx); err != nil {
		c.logger.Warn(
			"muxer failed",
			"error", err,
		)
	}
	c.logger.Debug("connection finished")
}

// upkeep sends the periodic discovery and sync messages allowed by the session
func (c *Connection) upkeep(ctx context.Context) error {
	if c.session.Allows(protocol.TagDiscovery) {
		if err := c.discovery.SendPing(ctx); err != nil {
			return err
		}
		if err := c.discovery.SendFindNodes(ctx); err != nil {
			return err
		}
	}
	if c.session.Allows(protocol.TagMiniSync) {
		if err := c.miniSync.SendStatus(ctx); err != nil {
			return err
		}
	}
	return nil
}
