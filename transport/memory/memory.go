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

// Package memory implements an in-process transport. It is used by tests to run
// complete nodes without sockets
package memory

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/blinklabs-io/miniethnet/transport"
)

// Addr is the address of an in-process endpoint
type Addr string

func (a Addr) Network() string {
	return "memory"
}

func (a Addr) String() string {
	return string(a)
}

// Network is a set of in-process listeners reachable by name
type Network struct {
	mutex     sync.Mutex
	listeners map[string]*listener
	nextId    uint64
}

// NewNetwork returns an empty in-process network
func NewNetwork() *Network {
	return &Network{
		listeners: make(map[string]*listener),
	}
}

// Listen registers a listener under the given name
func (n *Network) Listen(addr string) (transport.Listener, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if _, ok := n.listeners[addr]; ok {
		return nil, fmt.Errorf("memory listen on %s: address in use", addr)
	}
	l := &listener{
		network: n,
		addr:    Addr(addr),
		conns:   newQueue[*conn](),
	}
	n.listeners[addr] = l
	return l, nil
}

// Dial connects to the listener registered under the given name
func (n *Network) Dial(
	ctx context.Context,
	addr string,
) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mutex.Lock()
	l, ok := n.listeners[addr]
	n.nextId++
	localAddr := Addr(fmt.Sprintf("dialer-%d", n.nextId))
	n.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("memory dial %s: connection refused", addr)
	}
	client, server := newConnPair(localAddr, l.addr)
	if !l.conns.push(server) {
		return nil, fmt.Errorf("memory dial %s: connection refused", addr)
	}
	return client, nil
}

func (n *Network) removeListener(addr Addr) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.listeners, string(addr))
}

type listener struct {
	network *Network
	addr    Addr
	conns   *queue[*conn]
}

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	c, err := l.conns.pop(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (l *listener) Addr() net.Addr {
	return l.addr
}

func (l *listener) Close() error {
	l.network.removeListener(l.addr)
	l.conns.close()
	return nil
}

type conn struct {
	localAddr  Addr
	remoteAddr Addr
	streams    *queue[*stream]
	peer       *conn
}

func newConnPair(clientAddr Addr, serverAddr Addr) (*conn, *conn) {
	client := &conn{
		localAddr:  clientAddr,
		remoteAddr: serverAddr,
		streams:    newQueue[*stream](),
	}
	server := &conn{
		localAddr:  serverAddr,
		remoteAddr: clientAddr,
		streams:    newQueue[*stream](),
	}
	client.peer = server
	server.peer = client
	return client, server
}

func (c *conn) OpenStream(ctx context.Context) (transport.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.streams.isClosed() {
		return nil, transport.ErrClosed
	}
	return &stream{dest: c.peer}, nil
}

func (c *conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.streams.pop(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *conn) LocalAddr() net.Addr {
	return c.localAddr
}

func (c *conn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// Close closes both ends of the connection
func (c *conn) Close() error {
	c.streams.close()
	c.peer.streams.close()
	return nil
}

// stream buffers written bytes and hands them to the remote end on Close. A
// stream received from AcceptStream only supports reading
type stream struct {
	mutex  sync.Mutex
	dest   *conn
	buf    bytes.Buffer
	reader *bytes.Reader
	closed bool
}

func (s *stream) Read(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.reader == nil {
		return 0, fmt.Errorf("%w: stream is write-only", transport.ErrClosed)
	}
	return s.reader.Read(p)
}

func (s *stream) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.dest == nil || s.closed {
		return 0, fmt.Errorf("%w: stream is not writable", transport.ErrClosed)
	}
	return s.buf.Write(p)
}

func (s *stream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dest == nil {
		return nil
	}
	delivered := &stream{
		reader: bytes.NewReader(bytes.Clone(s.buf.Bytes())),
	}
	if !s.dest.streams.push(delivered) {
		return transport.ErrClosed
	}
	return nil
}

// queue is an unbounded FIFO with a blocking pop
type queue[T any] struct {
	mutex  sync.Mutex
	items  []T
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *queue[T]) push(item T) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *queue[T]) pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mutex.Lock()
		if q.closed {
			q.mutex.Unlock()
			return zero, transport.ErrClosed
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mutex.Unlock()
			return item, nil
		}
		q.mutex.Unlock()
		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (q *queue[T]) close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *queue[T]) isClosed() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.closed
}

var (
	_ transport.Transport = (*Network)(nil)
	_ transport.Conn      = (*conn)(nil)
	_ transport.Stream    = (*stream)(nil)
)
