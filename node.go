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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/miniethnet/chain"
	"github.com/blinklabs-io/miniethnet/identity"
	"github.com/blinklabs-io/miniethnet/peer"
	"github.com/blinklabs-io/miniethnet/protocol"
	"github.com/blinklabs-io/miniethnet/protocol/discovery"
	"github.com/blinklabs-io/miniethnet/protocol/minisync"
	"github.com/blinklabs-io/miniethnet/protocol/session"
	"github.com/blinklabs-io/miniethnet/transport"
	"github.com/blinklabs-io/miniethnet/transport/quic"
)

// Node ties together the transport, the session handshake, the per-connection
// protocols, the peer table and the chain manager
type Node struct {
	config      Config
	logger      *slog.Logger
	metrics     *Metrics
	transport   transport.Transport
	keypair     *identity.Keypair
	nodeId      string
	nodeRecord  *identity.Record
	manager     *chain.Manager
	table       *peer.Table
	connManager *ConnectionManager
	// Shared by every connection
	discoveryConfig discovery.Config
	miniSyncConfig  minisync.Config

	mutex     sync.Mutex
	running   bool
	runCtx    context.Context
	listener  transport.Listener
	connGroup sync.WaitGroup
}

// NewNode returns a node with a fresh identity. The node does not listen until Run
// is called
func NewNode(cfg Config) (*Node, error) {
	host, port, err := splitHostPort(cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: listen address: %w", ErrInvalidConfig, err)
	}
	if cfg.GenesisHash == "" {
		return nil, fmt.Errorf("%w: empty genesis hash", ErrInvalidConfig)
	}
	n := &Node{
		config:    cfg,
		logger:    cfg.Logger,
		transport: cfg.Transport,
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.transport == nil {
		n.transport = quic.New(quic.WithLogger(n.logger))
	}
	n.metrics, err = NewMetrics(cfg.PrometheusRegistry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	n.keypair, err = identity.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	n.nodeId = n.keypair.NodeId().String()
	n.nodeRecord, err = identity.NewNodeRecord(n.keypair, host, port)
	if err != nil {
		return nil, err
	}
	n.logger = n.logger.With("node_id", n.nodeId)
	n.manager = chain.NewManager(
		cfg.GenesisHash,
		chain.WithLogger(n.logger),
		chain.WithMetrics(n.metrics.chainMetrics()),
		chain.WithRetentionDepth(cfg.RetentionDepth),
	)
	n.table, err = peer.NewTable(
		peer.NewRecord(n.nodeId, host, port),
		cfg.PeerTableSize,
		peer.WithLogger(n.logger),
		peer.WithKnownPeersGauge(n.metrics.PeersKnown),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	n.connManager = NewConnectionManager(
		ConnectionManagerConfig{
			ConnClosedFunc: func(connId protocol.ConnectionId) {
				n.logger.Debug(
					"connection closed",
					"connection_id", connId.String(),
				)
			},
		},
	)
	n.discoveryConfig = discovery.NewConfig(
		discovery.WithTable(n.table),
	)
	n.miniSyncConfig = minisync.NewConfig(
		minisync.WithManager(n.manager),
		minisync.WithImportedFunc(n.handleImported),
	)
	return n, nil
}

func splitHostPort(address string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, uint16(port), nil
}

// NodeId returns the hex encoded local node id
func (n *Node) NodeId() string {
	return n.nodeId
}

// LocalRecord returns the record announced to other nodes
func (n *Node) LocalRecord() peer.Record {
	return n.table.Local()
}

// NodeRecord returns the signed identity record of the node
func (n *Node) NodeRecord() *identity.Record {
	return n.nodeRecord
}

// Manager returns the chain manager
func (n *Node) Manager() *chain.Manager {
	return n.manager
}

// Table returns the peer table
func (n *Node) Table() *peer.Table {
	return n.table
}

// Connections returns the connection manager
func (n *Node) Connections() *ConnectionManager {
	return n.connManager
}

// Metrics returns the node metrics
func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Addr returns the listening address, or nil if the node is not running
func (n *Node) Addr() net.Addr {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Run listens for connections and runs the node until the context is cancelled.
// A bootstrap failure is logged and does not stop the node
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	n.mutex.Lock()
	if n.running {
		n.mutex.Unlock()
		return ErrNodeRunning
	}
	listener, err := n.transport.Listen(n.config.ListenAddress)
	if err != nil {
		n.mutex.Unlock()
		return fmt.Errorf("listen on %s: %w", n.config.ListenAddress, err)
	}
	n.running = true
	n.runCtx = ctx
	n.listener = listener
	n.mutex.Unlock()
	n.logRecord()
	n.logger.Info(
		"node started",
		"addr", listener.Addr().String(),
		"leader", n.config.Leader,
		"capabilities", n.config.Capabilities,
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.acceptLoop(gctx, listener)
	})
	g.Go(func() error {
		n.bootstrap(gctx)
		return n.refreshLoop(gctx)
	})
	if n.config.Leader {
		producer := chain.NewProducer(
			n.manager,
			chain.NewProducerConfig(
				chain.WithProducerInterval(n.config.ProducerInterval),
				chain.WithProducerLogger(n.logger),
			),
		)
		g.Go(func() error {
			return producer.Run(gctx)
		})
	}
	err = g.Wait()
	// Shut down
	cancel()
	n.mutex.Lock()
	n.running = false
	n.listener = nil
	n.mutex.Unlock()
	_ = listener.Close()
	n.connManager.CloseAll()
	n.connGroup.Wait()
	n.logger.Info("node stopped")
	return err
}

func (n *Node) logRecord() {
	hash, err := n.nodeRecord.ContentHash()
	if err != nil {
		n.logger.Warn(
			"failed to hash node record",
			"error", err,
		)
		return
	}
	n.logger.Debug(
		"local node record",
		"seq", n.nodeRecord.Seq,
		"content_hash", fmt.Sprintf("%x", hash),
	)
}

func (n *Node) acceptLoop(ctx context.Context, listener transport.Listener) error {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			n.logger.Warn(
				"accept failed",
				"error", err,
			)
			continue
		}
		if !n.startConnectionTask(func(runCtx context.Context) {
			n.handleInbound(runCtx, conn)
		}) {
			_ = conn.Close()
			return nil
		}
	}
}

// startConnectionTask runs fn in the connection group while the node is running
func (n *Node) startConnectionTask(fn func(context.Context)) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if !n.running || n.runCtx.Err() != nil {
		return false
	}
	runCtx := n.runCtx
	n.connGroup.Add(1)
	go func() {
		defer n.connGroup.Done()
		fn(runCtx)
	}()
	return true
}

func (n *Node) handshake() *session.Handshake {
	cfg := session.NewConfig(
		session.WithNodeId(n.nodeId),
		session.WithCapabilities(n.config.Capabilities),
		session.WithTimeout(n.config.HandshakeTimeout),
		session.WithLogger(n.logger),
		session.WithHandshakesCounter(n.metrics.Handshakes),
		session.WithLocalStatus(func() (string, uint64) {
			status := n.manager.Status()
			return status.GenesisHash, status.HeadNumber
		}),
	)
	return session.New(&cfg)
}

func (n *Node) handleInbound(ctx context.Context, conn transport.Conn) {
	peerSession, err := n.handshake().Inbound(ctx, conn)
	if err != nil {
		n.logger.Warn(
			"inbound handshake failed",
			"remote_addr", conn.RemoteAddr().String(),
			"error", err,
		)
		_ = conn.Close()
		return
	}
	c, err := n.newConnection(conn, peerSession)
	if err != nil {
		n.logger.Warn(
			"failed to set up connection",
			"error", err,
		)
		_ = conn.Close()
		return
	}
	n.connManager.AddConnection(c, ConnectionManagerTagRoleResponder)
	c.run(ctx)
}

func (n *Node) newConnection(
	conn transport.Conn,
	peerSession session.PeerSession,
) (*Connection, error) {
	return newConnection(
		conn,
		peerSession,
		n.logger,
		n.metrics,
		&n.discoveryConfig,
		&n.miniSyncConfig,
	)
}

// Dial connects to a remote node, runs the outbound handshake and starts the
// connection. The node must be running
func (n *Node) Dial(ctx context.Context, address string) (*Connection, error) {
	return n.dial(ctx, address, ConnectionManagerTagRoleInitiator)
}

func (n *Node) dial(
	ctx context.Context,
	address string,
	tags ...ConnectionManagerTag,
) (*Connection, error) {
	n.mutex.Lock()
	running := n.running
	n.mutex.Unlock()
	if !running {
		return nil, ErrNodeNotRunning
	}
	conn, err := n.transport.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	peerSession, err := n.handshake().Outbound(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c, err := n.newConnection(conn, peerSession)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	n.connManager.AddConnection(c, tags...)
	if !n.startConnectionTask(c.run) {
		_ = c.Close()
		return nil, ErrNodeNotRunning
	}
	return c, nil
}

func (n *Node) bootstrap(ctx context.Context) {
	if n.config.BootstrapAddress == "" {
		return
	}
	c, err := n.dial(
		ctx,
		n.config.BootstrapAddress,
		ConnectionManagerTagRoleInitiator,
		ConnectionManagerTagBootstrap,
	)
	if err != nil {
		n.logger.Warn(
			"bootstrap failed",
			"addr", n.config.BootstrapAddress,
			"error", err,
		)
		return
	}
	if err := c.upkeep(ctx); err != nil {
		n.logger.Warn(
			"bootstrap upkeep failed",
			"addr", n.config.BootstrapAddress,
			"error", err,
		)
	}
}

func (n *Node) refreshLoop(ctx context.Context) error {
	interval := n.config.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n.refresh(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// refresh contacts every known peer, reusing live connections
func (n *Node) refresh(ctx context.Context) {
	for _, record := range n.table.List() {
		if ctx.Err() != nil {
			return
		}
		c := n.connManager.GetConnectionByNodeId(record.NodeId)
		if c == nil {
			var err error
			c, err = n.dial(ctx, record.Addr(), ConnectionManagerTagRoleInitiator)
			if err != nil {
				n.logger.Debug(
					"failed to dial peer",
					"node_id", record.NodeId,
					"addr", record.Addr(),
					"error", err,
				)
				continue
			}
		}
		if err := c.upkeep(ctx); err != nil {
			n.logger.Debug(
				"peer upkeep failed",
				"node_id", record.NodeId,
				"error", err,
			)
		}
	}
}

func (n *Node) handleImported(connId protocol.ConnectionId, result chain.ImportResult) {
	if !result.Advanced() {
		return
	}
	n.logger.Debug(
		"synced headers",
		"connection_id", connId.String(),
		"appended", result.Appended,
		"height", result.Height,
	)
}
