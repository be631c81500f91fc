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

// Package transport defines the connection abstraction the node runs on: a
// connection carries any number of independent bidirectional streams
package transport

import (
	"context"
	"errors"
	"io"
	"net"
)

// ErrClosed is returned by operations on a closed connection or listener
var ErrClosed = errors.New("transport: closed")

// Stream is a single bidirectional stream within a connection
type Stream interface {
	io.Reader
	io.Writer
	// Close finishes the stream. The write side is closed so the remote end sees
	// EOF, and any unread input is discarded
	Close() error
}

// Conn is an established connection to a remote node
type Conn interface {
	// OpenStream opens a new stream. The remote end will see it from AcceptStream
	OpenStream(ctx context.Context) (Stream, error)
	// AcceptStream blocks until the remote end opens a stream
	AcceptStream(ctx context.Context) (Stream, error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Close() error
}

// Listener accepts incoming connections
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Transport creates listeners and outbound connections
type Transport interface {
	Listen(addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Conn, error)
}
