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

package peer_test

import (
	"fmt"
	"testing"

	"github.com/blinklabs-io/miniethnet/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(i int) peer.Record {
	return peer.NewRecord(fmt.Sprintf("node%02d", i), "127.0.0.1", uint16(9000+i))
}

func TestRecordAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9001", testRecord(1).Addr())
	assert.Equal(t, "[::1]:80", peer.NewRecord("x", "::1", 80).Addr())
	assert.Equal(t, "node01@127.0.0.1:9001", testRecord(1).String())
}

func TestTableInsert(t *testing.T) {
	local := testRecord(0)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "peers"})
	table, err := peer.NewTable(local, 4, peer.WithKnownPeersGauge(gauge))
	require.NoError(t, err)
	assert.Equal(t, local, table.Local())

	assert.False(t, table.Insert(local), "local node must not be inserted")
	assert.False(t, table.Insert(peer.NewRecord("", "127.0.0.1", 1)))
	assert.True(t, table.Insert(testRecord(2)))
	assert.True(t, table.Insert(testRecord(1)))
	assert.False(t, table.Insert(testRecord(1)), "duplicate must not be inserted")
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []peer.Record{testRecord(1), testRecord(2)}, table.List())
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	r, ok := table.Get("node02")
	assert.True(t, ok)
	assert.Equal(t, testRecord(2), r)
	assert.True(t, table.Remove("node02"))
	assert.False(t, table.Remove("node02"))
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
}

func TestTableInsertMany(t *testing.T) {
	local := testRecord(0)
	table, err := peer.NewTable(local, 8)
	require.NoError(t, err)
	table.Insert(testRecord(1))
	added := table.InsertMany([]peer.Record{local, testRecord(1), testRecord(2), testRecord(3), testRecord(2)})
	assert.Equal(t, []peer.Record{testRecord(2), testRecord(3)}, added)
	assert.Equal(t, 3, table.Len())
}

func TestTableEviction(t *testing.T) {
	table, err := peer.NewTable(testRecord(0), 3)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		assert.True(t, table.Insert(testRecord(i)))
	}
	assert.Equal(t, 3, table.Len())
	// Oldest entries are evicted first
	assert.Equal(t, []peer.Record{testRecord(3), testRecord(4), testRecord(5)}, table.List())
}

func TestTableInsertRefreshesKnownPeer(t *testing.T) {
	table, err := peer.NewTable(testRecord(0), 2)
	require.NoError(t, err)
	require.True(t, table.Insert(testRecord(1)))
	require.True(t, table.Insert(testRecord(2)))
	// Re-announcing node01 with a new address updates it and makes it the newest
	moved := peer.NewRecord("node01", "10.0.0.1", 7000)
	assert.False(t, table.Insert(moved))
	r, ok := table.Get("node01")
	require.True(t, ok)
	assert.Equal(t, moved, r)
	assert.True(t, table.Insert(testRecord(3)))
	_, ok = table.Get("node02")
	assert.False(t, ok, "least recently refreshed peer must be evicted")
	assert.Equal(t, []peer.Record{moved, testRecord(3)}, table.List())
}

func TestTableInvalidSize(t *testing.T) {
	_, err := peer.NewTable(testRecord(0), 0)
	assert.Error(t, err)
}
