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

// Package quic implements the transport interfaces on top of quic-go
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/blinklabs-io/miniethnet/transport"
)

const (
	DefaultKeepAlivePeriod = 10 * time.Second
	DefaultMaxIdleTimeout  = 30 * time.Second
	// Every message uses its own stream, so allow plenty in flight
	DefaultMaxIncomingStreams = 1024
)

// Transport is a QUIC transport
type Transport struct {
	logger     *slog.Logger
	quicConfig *quicgo.Config
}

type TransportOptionFunc func(*Transport)

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) TransportOptionFunc {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithKeepAlivePeriod specifies how often keep-alive packets are sent on an
// otherwise idle connection
func WithKeepAlivePeriod(period time.Duration) TransportOptionFunc {
	return func(t *Transport) {
		t.quicConfig.KeepAlivePeriod = period
	}
}

// WithMaxIdleTimeout specifies how long a connection may go without any traffic
// before it is closed
func WithMaxIdleTimeout(timeout time.Duration) TransportOptionFunc {
	return func(t *Transport) {
		t.quicConfig.MaxIdleTimeout = timeout
	}
}

// New returns a QUIC transport
func New(options ...TransportOptionFunc) *Transport {
	t := &Transport{
		quicConfig: &quicgo.Config{
			KeepAlivePeriod:    DefaultKeepAlivePeriod,
			MaxIdleTimeout:     DefaultMaxIdleTimeout,
			MaxIncomingStreams: DefaultMaxIncomingStreams,
		},
	}
	for _, option := range options {
		option(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Listen starts listening for QUIC connections on the given UDP address
func (t *Transport) Listen(addr string) (transport.Listener, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	l, err := quicgo.ListenAddr(addr, tlsConf, t.quicConfig.Clone())
	if err != nil {
		return nil, fmt.Errorf("quic listen on %s: %w", addr, err)
	}
	t.logger.Debug(
		"listening",
		"component", "transport",
		"addr", l.Addr().String(),
	)
	return &listener{listener: l}, nil
}

// Dial establishes a QUIC connection to the given UDP address
func (t *Transport) Dial(
	ctx context.Context,
	addr string,
) (transport.Conn, error) {
	tlsConf, err := clientTLSConfig()
	if err != nil {
		return nil, err
	}
	c, err := quicgo.DialAddr(ctx, addr, tlsConf, t.quicConfig.Clone())
	if err != nil {
		return nil, fmt.Errorf("quic dial %s: %w", addr, err)
	}
	return &conn{conn: c}, nil
}

type listener struct {
	listener *quicgo.Listener
}

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	c, err := l.listener.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", transport.ErrClosed, err)
	}
	return &conn{conn: c}, nil
}

func (l *listener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *listener) Close() error {
	return l.listener.Close()
}

type conn struct {
	conn *quicgo.Conn
}

func (c *conn) OpenStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, c.wrapErr(ctx, err)
	}
	return &stream{Stream: s}, nil
}

func (c *conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, c.wrapErr(ctx, err)
	}
	return &stream{Stream: s}, nil
}

func (c *conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *conn) Close() error {
	return c.conn.CloseWithError(0, "")
}

func (c *conn) wrapErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.conn.Context().Err() != nil {
		return fmt.Errorf("%w: %w", transport.ErrClosed, err)
	}
	return err
}

type stream struct {
	*quicgo.Stream
	readEOF bool
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.Stream.Read(p)
	if errors.Is(err, io.EOF) {
		s.readEOF = true
	}
	return n, err
}

// Close sends FIN and stops reading if the peer's FIN has not been read yet. A
// peer that already stopped reading (STOP_SENDING) is not an error
func (s *stream) Close() error {
	err := s.Stream.Close()
	if !s.readEOF {
		s.CancelRead(0)
	}
	if err != nil && stoppedByPeer(s.Context()) {
		return nil
	}
	return err
}

func stoppedByPeer(ctx context.Context) bool {
	var streamErr *quicgo.StreamError
	if errors.As(context.Cause(ctx), &streamErr) {
		return streamErr.Remote
	}
	return false
}

// Compile-time interface checks
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Conn      = (*conn)(nil)
	_ transport.Stream    = (*stream)(nil)
)

// serverName is the name carried in the development certificate
const serverName = "localhost"

// alpn is the application protocol negotiated by both ends
const alpn = "miniethnet"

func serverTLSConfig() (*tls.Config, error) {
	cert, err := devCertificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// Peers are authenticated by the handshake, not by the TLS certificate, so the
// client accepts any server certificate
func clientTLSConfig() (*tls.Config, error) {
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec
		ServerName:         serverName,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}, nil
}
