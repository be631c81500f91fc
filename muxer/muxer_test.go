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

package muxer_test

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs-io/miniethnet/muxer"
	"github.com/blinklabs-io/miniethnet/transport"
	"github.com/blinklabs-io/miniethnet/transport/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testTimeout = 2 * time.Second

func newConnPair(t *testing.T) (transport.Conn, transport.Conn) {
	t.Helper()
	network := memory.NewNetwork()
	l, err := network.Listen("server")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	client, err := network.Dial(context.Background(), "server")
	require.NoError(t, err)
	server, err := l.Accept(context.Background())
	require.NoError(t, err)
	return client, server
}

func newFramesCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frames_total"},
		[]string{"proto", "result"},
	)
}

type received struct {
	proto   string
	payload []byte
}

func TestMuxerRouting(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, server := newConnPair(t)
	counter := newFramesCounter()
	m := muxer.New(
		server,
		muxer.Config{
			Gate: func(proto string) bool {
				return proto == "allowed"
			},
			FramesCounter: counter,
		},
	)
	recvCh := make(chan received, 10)
	require.NoError(t, m.RegisterProtocol("allowed", func(_ context.Context, payload []byte) {
		recvCh <- received{proto: "allowed", payload: payload}
	}))
	require.NoError(t, m.RegisterProtocol("gated", func(_ context.Context, payload []byte) {
		recvCh <- received{proto: "gated", payload: payload}
	}))
	unknownCh := make(chan string, 10)
	require.NoError(t, m.SetUnknownHandler(func(_ context.Context, proto string, _ []byte) {
		unknownCh <- proto
	}))
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- m.Run(context.Background())
	}()

	sender := muxer.New(client, muxer.Config{})
	ctx := context.Background()
	require.NoError(t, sender.Send(ctx, "gated", []byte{1}))
	require.NoError(t, sender.Send(ctx, "nope", []byte{2}))
	// A stream carrying bytes that are not a frame
	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte{0xff})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	// A frame that is not an envelope
	s, err = client.OpenStream(ctx)
	require.NoError(t, err)
	require.NoError(t, muxer.WriteFrame(s, []byte{0x01}))
	require.NoError(t, s.Close())
	require.NoError(t, sender.Send(ctx, "allowed", []byte{3}))

	select {
	case r := <-recvCh:
		assert.Equal(t, "allowed", r.proto)
		assert.Equal(t, []byte{3}, r.payload)
	case <-time.After(testTimeout):
		t.Fatal("did not receive routed envelope")
	}
	// Frames are handled in order, so everything before has been processed
	select {
	case proto := <-unknownCh:
		assert.Equal(t, "nope", proto)
	default:
		t.Fatal("unknown handler was not called")
	}
	assert.Empty(t, recvCh)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("allowed", muxer.FrameResultRouted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("gated", muxer.FrameResultGated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("unregistered", muxer.FrameResultUnknown)))
	assert.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues("unregistered", muxer.FrameResultMalformed)))

	// The registry is fixed once running
	assert.ErrorIs(t, m.RegisterProtocol("late", func(context.Context, []byte) {}), muxer.ErrMuxerStarted)
	assert.ErrorIs(t, m.SetUnknownHandler(nil), muxer.ErrMuxerStarted)

	// Closing the connection ends the loop without an error
	require.NoError(t, client.Close())
	select {
	case err := <-runErrCh:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("muxer did not stop")
	}
	select {
	case <-m.DoneChan():
	default:
		t.Fatal("done channel not closed")
	}
	assert.ErrorIs(t, m.Run(context.Background()), muxer.ErrMuxerStarted)
}

func TestMuxerNoGate(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, server := newConnPair(t)
	defer client.Close()
	m := muxer.New(server, muxer.Config{})
	recvCh := make(chan []byte, 1)
	require.NoError(t, m.RegisterProtocol("any", func(_ context.Context, payload []byte) {
		recvCh <- payload
	}))
	ctx, cancel := context.WithCancel(context.Background())
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- m.Run(ctx)
	}()
	require.NoError(t, muxer.New(client, muxer.Config{}).Send(context.Background(), "any", []byte("x")))
	select {
	case payload := <-recvCh:
		assert.Equal(t, []byte("x"), payload)
	case <-time.After(testTimeout):
		t.Fatal("did not receive envelope")
	}
	// Cancelling the context also ends the loop cleanly
	cancel()
	select {
	case err := <-runErrCh:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("muxer did not stop")
	}
}

func TestMuxerSendClosed(t *testing.T) {
	client, server := newConnPair(t)
	require.NoError(t, server.Close())
	err := muxer.New(client, muxer.Config{}).Send(context.Background(), "any", nil)
	assert.ErrorIs(t, err, transport.ErrClosed)
}
