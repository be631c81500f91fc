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

package miniethnet_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/miniethnet"
	"github.com/blinklabs-io/miniethnet/protocol"
	"github.com/blinklabs-io/miniethnet/transport/memory"
)

func TestConnectionManagerTagString(t *testing.T) {
	testDefs := map[miniethnet.ConnectionManagerTag]string{
		miniethnet.ConnectionManagerTagBootstrap:     "Bootstrap",
		miniethnet.ConnectionManagerTagRoleInitiator: "RoleInitiator",
		miniethnet.ConnectionManagerTagRoleResponder: "RoleResponder",
		miniethnet.ConnectionManagerTagNone:          "Unknown",
		miniethnet.ConnectionManagerTag(9999):        "Unknown",
	}
	for k, v := range testDefs {
		assert.Equal(t, v, k.String(), "tag %d", k)
	}
}

func TestConnectionManagerConnClosed(t *testing.T) {
	defer goleak.VerifyNone(t)
	network := memory.NewNetwork()
	server := newTestNode(t, network, "127.0.0.1:9001")
	client := newTestNode(t, network, "127.0.0.1:9002")
	stopServer := startNode(t, server)
	defer stopServer()
	stopClient := startNode(t, client)
	defer stopClient()
	conn, err := client.Dial(context.Background(), "127.0.0.1:9001")
	require.NoError(t, err)
	assert.Equal(t, server.NodeId(), conn.Session().RemoteNodeId)
	assert.Equal(t, protocol.DefaultCapabilities(), conn.Session().AgreedCaps)
	connManager := client.Connections()
	entry := connManager.GetConnectionById(conn.Id())
	require.NotNil(t, entry)
	assert.True(t, entry.Tags[miniethnet.ConnectionManagerTagRoleInitiator])
	assert.Same(t, conn, connManager.GetConnectionByNodeId(server.NodeId()))
	require.Eventually(
		t,
		func() bool {
			return len(server.Connections().GetConnectionsByTags(
				miniethnet.ConnectionManagerTagRoleResponder,
			)) == 1
		},
		testWait,
		testTick,
	)
	// Closing either end removes the connection on both
	require.NoError(t, conn.Close())
	require.Eventually(
		t,
		func() bool {
			return connManager.Len() == 0 && server.Connections().Len() == 0
		},
		testWait,
		testTick,
	)
	assert.Nil(t, connManager.GetConnectionByNodeId(server.NodeId()))
	select {
	case <-conn.DoneChan():
	case <-time.After(testWait):
		t.Fatal("connection was not marked done")
	}
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := miniethnet.NewMetrics(registry)
	require.NoError(t, err)
	_, err = miniethnet.NewMetrics(registry)
	assert.Error(t, err)
}
