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

package quic_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/blinklabs-io/miniethnet/transport"
	"github.com/blinklabs-io/miniethnet/transport/quic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tr := quic.New()
	l, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	acceptedCh := make(chan transport.Conn, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err != nil {
			close(acceptedCh)
			return
		}
		acceptedCh <- c
	}()

	client, err := tr.Dial(ctx, l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	server, ok := <-acceptedCh
	require.True(t, ok, "accept failed")
	defer server.Close()

	rs, err := server.AcceptStream(ctx)
	require.NoError(t, err)
	data, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	require.NoError(t, rs.Close())
}

func TestAcceptStreamAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tr := quic.New()
	l, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		if c, err := l.Accept(ctx); err == nil {
			_ = c.Close()
		}
	}()
	client, err := tr.Dial(ctx, l.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	_, err = client.AcceptStream(ctx)
	require.Error(t, err)
}

func dialLoopback(t *testing.T, ctx context.Context) (transport.Conn, transport.Conn) {
	t.Helper()
	tr := quic.New()
	l, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	acceptedCh := make(chan transport.Conn, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err != nil {
			close(acceptedCh)
			return
		}
		acceptedCh <- c
	}()
	client, err := tr.Dial(ctx, l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	server, ok := <-acceptedCh
	require.True(t, ok, "accept failed")
	t.Cleanup(func() { _ = server.Close() })
	return client, server
}

func TestCloseAfterPeerStoppedReading(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, server := dialLoopback(t, ctx)

	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)

	// The accepting end reads what it needs and closes before the FIN arrives
	rs, err := server.AcceptStream(ctx)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)
	require.NoError(t, rs.Close())

	withContext, ok := s.(interface{ Context() context.Context })
	require.True(t, ok)
	select {
	case <-withContext.Context().Done():
	case <-ctx.Done():
		t.Fatal("stop sending was not received")
	}
	assert.NoError(t, s.Close())
}
