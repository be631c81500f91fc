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

// Package session implements the capability-negotiating handshake that runs once
// on every new connection before any multiplexed traffic
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/miniethnet/muxer"
	"github.com/blinklabs-io/miniethnet/protocol"
	"github.com/blinklabs-io/miniethnet/transport"
)

// Protocol identifiers
const (
	ProtocolName           = "session"
	ProtocolVersion uint32 = 1
)

const DefaultTimeout = 5 * time.Second

// Handshake directions, used as metric labels
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

var (
	StateIdle          = protocol.NewState(0, "Idle")
	StateHelloSent     = protocol.NewState(1, "HelloSent")
	StateAwaitingHello = protocol.NewState(2, "AwaitingHello")
	StateEstablished   = protocol.NewState(3, "Established")
	StateRejected      = protocol.NewState(4, "Rejected")
)

// PeerSession is the result of a successful handshake
type PeerSession struct {
	RemoteNodeId string
	AgreedCaps   []string
	// Chain position advertised in the remote Hello. Only known for inbound sessions
	RemoteGenesis    string
	RemoteHeadHeight uint64
}

// Allows returns true if the protocol tag was agreed for this session
func (s PeerSession) Allows(proto string) bool {
	return slices.Contains(s.AgreedCaps, proto)
}

// LocalStatusFunc returns the local genesis hash and canonical head height
type LocalStatusFunc func() (genesis string, headHeight uint64)

// Config is used to configure the session handshake
type Config struct {
	NodeId       string
	Capabilities []string
	LocalStatus  LocalStatusFunc
	Timeout      time.Duration
	Logger       *slog.Logger
	// HandshakesCounter is incremented for every finished handshake. It must have
	// the labels "direction" and "result"
	HandshakesCounter *prometheus.CounterVec
}

// SessionOptionFunc represents a function used to modify the session config
type SessionOptionFunc func(*Config)

// NewConfig returns a new session config object with the provided options
func NewConfig(options ...SessionOptionFunc) Config {
	c := Config{
		Capabilities: protocol.DefaultCapabilities(),
		Timeout:      DefaultTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithNodeId specifies the local node id
func WithNodeId(nodeId string) SessionOptionFunc {
	return func(c *Config) {
		c.NodeId = nodeId
	}
}

// WithCapabilities specifies the advertised capabilities, in order of preference
func WithCapabilities(capabilities []string) SessionOptionFunc {
	return func(c *Config) {
		c.Capabilities = capabilities
	}
}

// WithLocalStatus specifies the function providing the chain position for Hello
func WithLocalStatus(localStatus LocalStatusFunc) SessionOptionFunc {
	return func(c *Config) {
		c.LocalStatus = localStatus
	}
}

// WithTimeout specifies the timeout for the whole handshake
func WithTimeout(timeout time.Duration) SessionOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) SessionOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithHandshakesCounter specifies the handshake counter
func WithHandshakesCounter(counter *prometheus.CounterVec) SessionOptionFunc {
	return func(c *Config) {
		c.HandshakesCounter = counter
	}
}

// Handshake runs the session handshake for a single connection
type Handshake struct {
	config     *Config
	logger     *slog.Logger
	stateMutex sync.Mutex
	state      protocol.State
}

// New returns a handshake in the Idle state
func New(cfg *Config) *Handshake {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	h := &Handshake{
		config: cfg,
		logger: cfg.Logger,
		state:  StateIdle,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", ProtocolName)
	return h
}

// State returns the current handshake state
func (h *Handshake) State() protocol.State {
	h.stateMutex.Lock()
	defer h.stateMutex.Unlock()
	return h.state
}

func (h *Handshake) setState(state protocol.State) {
	h.stateMutex.Lock()
	defer h.stateMutex.Unlock()
	h.state = state
}

// Intersect returns the tags present in both lists, in local order and without
// duplicates
func Intersect(local []string, remote []string) []string {
	ret := []string{}
	for _, tag := range local {
		if slices.Contains(ret, tag) {
			continue
		}
		if slices.Contains(remote, tag) {
			ret = append(ret, tag)
		}
	}
	return ret
}

// Outbound sends Hello on a new stream and waits for HelloAck on the next stream
// opened by the remote end. The agreed list keeps the remote order but only holds
// tags that were offered
func (h *Handshake) Outbound(
	ctx context.Context,
	conn transport.Conn,
) (PeerSession, error) {
	if err := h.start(); err != nil {
		return PeerSession{}, err
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	genesis, headHeight := h.localStatus()
	hello := NewMsgHello(
		h.config.NodeId,
		ProtocolVersion,
		h.config.Capabilities,
		genesis,
		headHeight,
	)
	if err := h.sendMessage(ctx, conn, hello); err != nil {
		return h.reject(DirectionOutbound, conn, err)
	}
	h.setState(StateHelloSent)
	msg, err := h.receiveMessage(ctx, conn)
	if err != nil {
		return h.reject(DirectionOutbound, conn, err)
	}
	ack, ok := msg.(*MsgHelloAck)
	if !ok {
		return h.reject(
			DirectionOutbound,
			conn,
			fmt.Errorf("%w: expected HelloAck, got type %d", protocol.ErrUnexpectedMessage, msg.Type()),
		)
	}
	return h.establish(
		DirectionOutbound,
		conn,
		PeerSession{
			RemoteNodeId: ack.NodeId,
			AgreedCaps:   Intersect(ack.AgreedCapabilities, h.config.Capabilities),
		},
	), nil
}

// Inbound waits for Hello on the first stream opened by the remote end and
// replies with HelloAck carrying the agreed capabilities
func (h *Handshake) Inbound(
	ctx context.Context,
	conn transport.Conn,
) (PeerSession, error) {
	if err := h.start(); err != nil {
		return PeerSession{}, err
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	h.setState(StateAwaitingHello)
	msg, err := h.receiveMessage(ctx, conn)
	if err != nil {
		return h.reject(DirectionInbound, conn, err)
	}
	hello, ok := msg.(*MsgHello)
	if !ok {
		return h.reject(
			DirectionInbound,
			conn,
			fmt.Errorf("%w: expected Hello, got type %d", protocol.ErrUnexpectedMessage, msg.Type()),
		)
	}
	agreed := Intersect(h.config.Capabilities, hello.Capabilities)
	if err := h.sendMessage(ctx, conn, NewMsgHelloAck(h.config.NodeId, agreed)); err != nil {
		return h.reject(DirectionInbound, conn, err)
	}
	return h.establish(
		DirectionInbound,
		conn,
		PeerSession{
			RemoteNodeId:     hello.NodeId,
			AgreedCaps:       agreed,
			RemoteGenesis:    hello.Genesis,
			RemoteHeadHeight: hello.HeadHeight,
		},
	), nil
}

func (h *Handshake) start() error {
	h.stateMutex.Lock()
	defer h.stateMutex.Unlock()
	if h.state != StateIdle {
		return fmt.Errorf("%s: handshake already run (state %s)", ProtocolName, h.state)
	}
	return nil
}

func (h *Handshake) withTimeout(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	if h.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.config.Timeout)
}

func (h *Handshake) localStatus() (string, uint64) {
	if h.config.LocalStatus == nil {
		return "", 0
	}
	return h.config.LocalStatus()
}

func (h *Handshake) sendMessage(
	ctx context.Context,
	conn transport.Conn,
	msg protocol.Message,
) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return err
	}
	if err := muxer.WriteFrame(stream, data); err != nil {
		_ = stream.Close()
		return err
	}
	return stream.Close()
}

func (h *Handshake) receiveMessage(
	ctx context.Context,
	conn transport.Conn,
) (protocol.Message, error) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	// Closing the stream unblocks a read from a peer that never finishes its frame
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})
	data, err := muxer.ReadFrame(stream)
	if stop() {
		_ = stream.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return protocol.DecodeMessage(data, NewMsgFromCbor)
}

func (h *Handshake) reject(
	direction string,
	conn transport.Conn,
	err error,
) (PeerSession, error) {
	h.setState(StateRejected)
	h.countHandshake(direction, "rejected")
	h.logger.Warn(
		"handshake rejected",
		"direction", direction,
		"remote_addr", conn.RemoteAddr().String(),
		"error", err,
	)
	return PeerSession{}, fmt.Errorf("%w: %w", ErrHandshakeRejected, err)
}

func (h *Handshake) establish(
	direction string,
	conn transport.Conn,
	peerSession PeerSession,
) PeerSession {
	h.setState(StateEstablished)
	h.countHandshake(direction, "established")
	if len(peerSession.AgreedCaps) == 0 {
		h.logger.Warn(
			"session established without shared capabilities",
			"direction", direction,
			"remote_node_id", peerSession.RemoteNodeId,
			"remote_addr", conn.RemoteAddr().String(),
		)
		return peerSession
	}
	h.logger.Info(
		"session established",
		"direction", direction,
		"remote_node_id", peerSession.RemoteNodeId,
		"remote_addr", conn.RemoteAddr().String(),
		"capabilities", peerSession.AgreedCaps,
	)
	return peerSession
}

func (h *Handshake) countHandshake(direction string, result string) {
	if h.config.HandshakesCounter == nil {
		return
	}
	h.config.HandshakesCounter.WithLabelValues(direction, result).Inc()
}
