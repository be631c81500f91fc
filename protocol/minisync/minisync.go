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

// Package minisync implements the header synchronization protocol. Peers exchange
// their chain status and pull missing header ranges from peers that are ahead
package minisync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/miniethnet/chain"
	"github.com/blinklabs-io/miniethnet/protocol"
)

// Protocol identifiers
const (
	ProtocolName = "mini-sync"
	ProtocolTag  = protocol.TagMiniSync
)

const (
	// DefaultMaxHeadersPerResponse caps the size of a single Headers reply. A
	// requester that is further behind catches up over several rounds
	DefaultMaxHeadersPerResponse = 2048
	// DefaultMaxOutstandingRequests caps the requests awaiting a reply on one
	// connection. The oldest one is forgotten when the cap is reached
	DefaultMaxOutstandingRequests = 4
)

// ChainManager is the chain state used by the protocol
type ChainManager interface {
	Status() chain.Status
	RequestFor(remote chain.Status) (chain.HeaderRequest, bool)
	HeadersFrom(start uint64, count uint64) []chain.Header
	ImportHeaders(headers []chain.Header) chain.ImportResult
}

// ImportedFunc is called after a Headers reply has been imported
type ImportedFunc func(protocol.ConnectionId, chain.ImportResult)

// Config is used to configure the MiniSync protocol instance
type Config struct {
	Manager                ChainManager
	MaxHeadersPerResponse  uint64
	MaxOutstandingRequests int
	ImportedFunc           ImportedFunc
}

// MiniSyncOptionFunc represents a function used to modify the MiniSync config
type MiniSyncOptionFunc func(*Config)

// NewConfig returns a new MiniSync config object with the provided options
func NewConfig(options ...MiniSyncOptionFunc) Config {
	c := Config{
		MaxHeadersPerResponse:  DefaultMaxHeadersPerResponse,
		MaxOutstandingRequests: DefaultMaxOutstandingRequests,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithManager specifies the chain manager
func WithManager(manager ChainManager) MiniSyncOptionFunc {
	return func(c *Config) {
		c.Manager = manager
	}
}

// WithMaxHeadersPerResponse specifies the maximum number of headers in a reply
func WithMaxHeadersPerResponse(maxHeaders uint64) MiniSyncOptionFunc {
	return func(c *Config) {
		c.MaxHeadersPerResponse = maxHeaders
	}
}

// WithMaxOutstandingRequests specifies the maximum number of unanswered requests
func WithMaxOutstandingRequests(maxRequests int) MiniSyncOptionFunc {
	return func(c *Config) {
		c.MaxOutstandingRequests = maxRequests
	}
}

// WithImportedFunc specifies the Imported callback function
func WithImportedFunc(importedFunc ImportedFunc) MiniSyncOptionFunc {
	return func(c *Config) {
		c.ImportedFunc = importedFunc
	}
}

// MiniSync is the per-connection protocol instance
type MiniSync struct {
	protoOptions  protocol.ProtocolOptions
	config        *Config
	logger        *slog.Logger
	mutex         sync.Mutex
	nextRequestId uint64
	outstanding   map[uint64]chain.HeaderRequest
}

// New returns a new MiniSync object
func New(protoOptions protocol.ProtocolOptions, cfg *Config) *MiniSync {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	m := &MiniSync{
		protoOptions: protoOptions,
		config:       cfg,
		logger:       protoOptions.Logger,
		outstanding:  make(map[uint64]chain.HeaderRequest),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(
		"component", "network",
		"protocol", ProtocolName,
		"connection_id", protoOptions.ConnectionId.String(),
	)
	return m
}

// SendStatus sends the local chain status to the remote end
func (m *MiniSync) SendStatus(ctx context.Context) error {
	return m.sendMessage(ctx, NewMsgStatus(m.config.Manager.Status()))
}

// Outstanding returns the number of requests awaiting a reply
func (m *MiniSync) Outstanding() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.outstanding)
}

// HandleMessage handles a single mini-sync payload. Invalid payloads are dropped
func (m *MiniSync) HandleMessage(ctx context.Context, payload []byte) {
	msg, err := protocol.DecodeMessage(payload, NewMsgFromCbor)
	if err != nil {
		m.logger.Debug(
			"dropping invalid message",
			"error", err,
		)
		return
	}
	switch msg := msg.(type) {
	case *MsgStatus:
		err = m.handleStatus(ctx, msg)
	case *MsgRequestHeaders:
		err = m.handleRequestHeaders(ctx, msg)
	case *MsgHeaders:
		m.handleHeaders(msg)
	default:
		err = fmt.Errorf(
			"%s: %w: %T",
			ProtocolName,
			protocol.ErrUnexpectedMessage,
			msg,
		)
	}
	if err != nil {
		m.logger.Debug(
			"failed to handle message",
			"error", err,
		)
	}
}

func (m *MiniSync) handleStatus(ctx context.Context, msg *MsgStatus) error {
	remote := msg.ChainStatus()
	m.logger.Debug(
		"received status",
		"genesis", remote.GenesisHash,
		"head", remote.HeadHash,
		"number", remote.HeadNumber,
	)
	// The decision and the range are computed under the manager lock, which is
	// released before anything is sent
	req, ok := m.config.Manager.RequestFor(remote)
	if ok {
		requestId := m.trackRequest(req)
		m.logger.Debug(
			"requesting headers",
			"request_id", requestId,
			"start", req.Start,
			"count", req.Count,
		)
		return m.sendMessage(ctx, NewMsgRequestHeaders(requestId, req))
	}
	local := m.config.Manager.Status()
	if local.GenesisHash == remote.GenesisHash &&
		local.HeadNumber > remote.HeadNumber {
		// Let a peer that is behind pull from us. It never answers with a Status of
		// its own, so this does not loop
		return m.sendMessage(ctx, NewMsgStatus(local))
	}
	return nil
}

func (m *MiniSync) trackRequest(req chain.HeaderRequest) uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.nextRequestId++
	requestId := m.nextRequestId
	maxOutstanding := m.config.MaxOutstandingRequests
	if maxOutstanding > 0 && len(m.outstanding) >= maxOutstanding {
		oldest := requestId
		for id := range m.outstanding {
			oldest = min(oldest, id)
		}
		delete(m.outstanding, oldest)
	}
	m.outstanding[requestId] = req
	return requestId
}

func (m *MiniSync) handleRequestHeaders(
	ctx context.Context,
	msg *MsgRequestHeaders,
) error {
	count := msg.Count
	if m.config.MaxHeadersPerResponse > 0 {
		count = min(count, m.config.MaxHeadersPerResponse)
	}
	headers := m.config.Manager.HeadersFrom(msg.Start, count)
	return m.sendMessage(ctx, NewMsgHeaders(msg.RequestId, headers))
}

func (m *MiniSync) handleHeaders(msg *MsgHeaders) {
	m.mutex.Lock()
	_, ok := m.outstanding[msg.RequestId]
	delete(m.outstanding, msg.RequestId)
	m.mutex.Unlock()
	if !ok {
		m.logger.Debug(
			"dropping unsolicited headers",
			"request_id", msg.RequestId,
			"count", len(msg.Headers),
		)
		return
	}
	result := m.config.Manager.ImportHeaders(msg.Headers)
	m.logger.Debug(
		"imported headers",
		"request_id", msg.RequestId,
		"received", len(msg.Headers),
		"appended", result.Appended,
		"height", result.Height,
	)
	if m.config.ImportedFunc != nil {
		m.config.ImportedFunc(m.protoOptions.ConnectionId, result)
	}
}

func (m *MiniSync) sendMessage(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("%s: encode error: %w", ProtocolName, err)
	}
	if err := m.protoOptions.Sender.Send(ctx, ProtocolTag, data); err != nil {
		return fmt.Errorf("%s: send error: %w", ProtocolName, err)
	}
	return nil
}
