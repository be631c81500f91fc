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

// Package muxer runs several tagged protocols over a single transport connection.
// Every message travels on its own stream as one length-prefixed Envelope
package muxer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/miniethnet/transport"
)

// Frame results used for the frames counter
const (
	FrameResultRouted    = "routed"
	FrameResultGated     = "gated"
	FrameResultUnknown   = "unknown"
	FrameResultMalformed = "malformed"
)

// Label used for tags that have no registered handler, which keeps peers from
// creating arbitrary label values
const unregisteredProtoLabel = "unregistered"

// HandlerFunc handles the payload of a single envelope. Handlers are called
// sequentially from the muxer loop
type HandlerFunc func(ctx context.Context, payload []byte)

// UnknownHandlerFunc is called for envelopes whose tag has no registered handler
type UnknownHandlerFunc func(ctx context.Context, proto string, payload []byte)

// Config holds the muxer configuration
type Config struct {
	// Gate reports whether a tag may be routed on this connection. A nil Gate
	// allows every registered tag
	Gate   func(proto string) bool
	Logger *slog.Logger
	// FramesCounter is incremented for every received frame. It must have the
	// labels "proto" and "result"
	FramesCounter *prometheus.CounterVec
}

// Muxer accepts streams from a connection and dispatches their envelopes by tag
type Muxer struct {
	conn           transport.Conn
	config         Config
	logger         *slog.Logger
	mutex          sync.Mutex
	started        bool
	doneChan       chan struct{}
	handlers       map[string]HandlerFunc
	unknownHandler UnknownHandlerFunc
}

// New returns a muxer for the connection. Protocols must be registered before Run
func New(conn transport.Conn, config Config) *Muxer {
	m := &Muxer{
		conn:     conn,
		config:   config,
		logger:   config.Logger,
		doneChan: make(chan struct{}),
		handlers: make(map[string]HandlerFunc),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "muxer")
	return m
}

// RegisterProtocol registers the handler for a protocol tag
func (m *Muxer) RegisterProtocol(proto string, handler HandlerFunc) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.started {
		return ErrMuxerStarted
	}
	m.handlers[proto] = handler
	return nil
}

// SetUnknownHandler sets the fallback for envelopes with an unregistered tag. By
// default they are dropped
func (m *Muxer) SetUnknownHandler(handler UnknownHandlerFunc) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.started {
		return ErrMuxerStarted
	}
	m.unknownHandler = handler
	return nil
}

// DoneChan returns a channel that is closed when Run returns
func (m *Muxer) DoneChan() <-chan struct{} {
	return m.doneChan
}

// Run processes incoming streams until the connection is closed or the context is
// cancelled. A closed connection is the normal way for the loop to end and is not
// reported as an error
func (m *Muxer) Run(ctx context.Context) error {
	m.mutex.Lock()
	if m.started {
		m.mutex.Unlock()
		return ErrMuxerStarted
	}
	m.started = true
	m.mutex.Unlock()
	defer close(m.doneChan)
	for {
		stream, err := m.conn.AcceptStream(ctx)
		if err != nil {
			m.logger.Debug(
				"muxer loop finished",
				"error", err,
			)
			return nil
		}
		m.handleStream(ctx, stream)
	}
}

func (m *Muxer) handleStream(ctx context.Context, stream transport.Stream) {
	frame, err := ReadFrame(stream)
	_ = stream.Close()
	if err != nil {
		m.logger.Debug(
			"dropping unreadable frame",
			"error", err,
		)
		m.countFrame(unregisteredProtoLabel, FrameResultMalformed)
		return
	}
	env, ok := DecodeEnvelope(frame)
	if !ok {
		m.logger.Debug(
			"dropping malformed envelope",
			"length", len(frame),
		)
		m.countFrame(unregisteredProtoLabel, FrameResultMalformed)
		return
	}
	// The registry is immutable once started
	handler, registered := m.handlers[env.Proto]
	if !registered {
		m.countFrame(unregisteredProtoLabel, FrameResultUnknown)
		if m.unknownHandler != nil {
			m.unknownHandler(ctx, env.Proto, env.Data)
			return
		}
		m.logger.Debug(
			"dropping envelope with unknown tag",
			"proto", env.Proto,
		)
		return
	}
	if m.config.Gate != nil && !m.config.Gate(env.Proto) {
		m.logger.Debug(
			"dropping envelope for protocol not agreed in session",
			"proto", env.Proto,
		)
		m.countFrame(env.Proto, FrameResultGated)
		return
	}
	m.countFrame(env.Proto, FrameResultRouted)
	handler(ctx, env.Data)
}

func (m *Muxer) countFrame(proto string, result string) {
	if m.config.FramesCounter == nil {
		return
	}
	m.config.FramesCounter.WithLabelValues(proto, result).Inc()
}

// Send sends a single envelope on a new stream. It is safe to call concurrently
func (m *Muxer) Send(ctx context.Context, proto string, payload []byte) error {
	frame, err := EncodeEnvelope(proto, payload)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	stream, err := m.conn.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := WriteFrame(stream, frame); err != nil {
		_ = stream.Close()
		return fmt.Errorf("write frame: %w", err)
	}
	return stream.Close()
}
