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

package chain_test

import (
	"math"
	"sync"
	"testing"

	"github.com/blinklabs-io/miniethnet/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerGenesis(t *testing.T) {
	m := chain.NewManager("G")
	assert.Equal(t, chain.Status{GenesisHash: "G", HeadHash: "G", HeadNumber: 0}, m.Status())
	assert.Equal(t, uint64(0), m.CanonicalHeight())
	assert.Equal(t, "G", m.CanonicalHeadHash())
	assert.Equal(t, "G", m.GenesisHash())
	assert.Equal(t, 1, m.ChainCount())
}

func TestShouldRequest(t *testing.T) {
	m := chain.NewManager("G")
	m.ImportHeaders(linearHeaders("G", 0, 2, "C"))
	testDefs := []struct {
		name     string
		remote   chain.Status
		expected bool
	}{
		{
			name:     "ahead on same network",
			remote:   chain.Status{GenesisHash: "G", HeadHash: "X5", HeadNumber: 5},
			expected: true,
		},
		{
			name:     "one ahead",
			remote:   chain.Status{GenesisHash: "G", HeadHash: "X3", HeadNumber: 3},
			expected: true,
		},
		{
			name:     "same height",
			remote:   chain.Status{GenesisHash: "G", HeadHash: "X2", HeadNumber: 2},
			expected: false,
		},
		{
			name:     "behind",
			remote:   chain.Status{GenesisHash: "G", HeadHash: "X1", HeadNumber: 1},
			expected: false,
		},
		{
			name:     "ahead on different network",
			remote:   chain.Status{GenesisHash: "OTHER", HeadHash: "X9", HeadNumber: 9},
			expected: false,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.Equal(t, testDef.expected, m.ShouldRequest(testDef.remote))
			req, ok := m.RequestFor(testDef.remote)
			assert.Equal(t, testDef.expected, ok)
			if ok {
				assert.Equal(t, m.BuildRequest(testDef.remote), req)
			} else {
				assert.Equal(t, chain.HeaderRequest{}, req)
			}
		})
	}
}

func TestBuildRequest(t *testing.T) {
	for _, localHeight := range []uint64{0, 1, 7} {
		m := chain.NewManager("G")
		m.ImportHeaders(linearHeaders("G", 0, localHeight, "C"))
		require.Equal(t, localHeight, m.CanonicalHeight())
		for _, remoteHeight := range []uint64{localHeight + 1, localHeight + 3, localHeight + 100} {
			remote := chain.Status{GenesisHash: "G", HeadHash: "R", HeadNumber: remoteHeight}
			req, ok := m.RequestFor(remote)
			require.True(t, ok)
			assert.Equal(t, localHeight+1, req.Start)
			assert.Equal(t, remoteHeight-localHeight, req.Count)
			assert.GreaterOrEqual(t, req.Count, uint64(1))
		}
	}
}

func TestImportAppendSelectivity(t *testing.T) {
	m := chain.NewManager("G")
	m.ImportHeaders([]chain.Header{
		{Number: 1, ParentHash: "G", Hash: "C1"},
		{Number: 2, ParentHash: "C1", Hash: "C2"},
	})
	require.Equal(t, "C2", m.CanonicalHeadHash())
	result := m.ImportHeaders([]chain.Header{
		{Number: 3, ParentHash: "C2", Hash: "H3"},
		{Number: 5, ParentHash: "X", Hash: "H5"},
		{Number: 4, ParentHash: "C3", Hash: "H4"},
	})
	assert.Equal(t, 1, result.Appended)
	assert.True(t, result.Advanced())
	assert.Equal(t, uint64(2), result.PreviousHeight)
	assert.Equal(t, "C2", result.PreviousHead)
	assert.Equal(t, uint64(3), result.Height)
	assert.Equal(t, "H3", result.Head)
	assert.Equal(t, uint64(3), m.CanonicalHeight())
	assertLinear(t, m.Canonical())
}

func TestImportNothingExtends(t *testing.T) {
	m := chain.NewManager("G")
	m.ImportHeaders(linearHeaders("G", 0, 2, "C"))
	result := m.ImportHeaders([]chain.Header{
		{Number: 7, ParentHash: "Q", Hash: "Q7"},
	})
	assert.False(t, result.Advanced())
	assert.Zero(t, result.Appended)
	assert.Equal(t, "C2", result.Head)
	assert.Equal(t, "C2", m.CanonicalHeadHash())

	result = m.ImportHeaders(nil)
	assert.False(t, result.Advanced())
	assert.Equal(t, "C2", result.Head)
}

func TestImportIdempotent(t *testing.T) {
	once := chain.NewManager("G")
	twice := chain.NewManager("G")
	headers := linearHeaders("G", 0, 4, "C")
	once.ImportHeaders(headers)
	twice.ImportHeaders(headers)
	countAfterFirst := twice.ChainCount()
	result := twice.ImportHeaders(headers)
	assert.False(t, result.Advanced())
	assert.Equal(t, once.Status(), twice.Status())
	assert.Equal(t, countAfterFirst, twice.ChainCount())
	assert.Equal(t, once.ChainCount(), twice.ChainCount())
}

func TestEndToEndScenario(t *testing.T) {
	nodeA := chain.NewManager("G")
	nodeB := chain.NewManager("G")
	nodeB.ImportHeaders([]chain.Header{
		{Number: 1, ParentHash: "G", Hash: "B1"},
		{Number: 2, ParentHash: "B1", Hash: "B2"},
		{Number: 3, ParentHash: "B2", Hash: "B3"},
	})
	statusB := nodeB.Status()
	require.Equal(t, chain.Status{GenesisHash: "G", HeadHash: "B3", HeadNumber: 3}, statusB)

	req, ok := nodeA.RequestFor(statusB)
	require.True(t, ok)
	assert.Equal(t, chain.HeaderRequest{Start: 1, Count: 3}, req)

	headers := nodeB.HeadersFrom(req.Start, req.Count)
	require.Len(t, headers, 3)

	result := nodeA.ImportHeaders(headers)
	assert.True(t, result.Advanced())
	assert.Equal(t, uint64(3), nodeA.CanonicalHeight())
	assert.Equal(t, "B3", nodeA.CanonicalHeadHash())
	assert.Equal(t, nodeB.Status(), nodeA.Status())
}

func TestHeadersFrom(t *testing.T) {
	m := chain.NewManager("G")
	m.ImportHeaders(linearHeaders("G", 0, 5, "C"))
	testDefs := []struct {
		name      string
		start     uint64
		count     uint64
		expNumber []uint64
	}{
		{name: "middle", start: 2, count: 2, expNumber: []uint64{2, 3}},
		{name: "past the head", start: 4, count: 10, expNumber: []uint64{4, 5}},
		{name: "from genesis", start: 0, count: 2, expNumber: []uint64{0, 1}},
		{name: "beyond the head", start: 6, count: 3, expNumber: []uint64{}},
		{name: "zero count", start: 1, count: 0, expNumber: []uint64{}},
		{name: "huge count", start: 5, count: math.MaxUint64, expNumber: []uint64{5}},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			headers := m.HeadersFrom(testDef.start, testDef.count)
			numbers := []uint64{}
			for _, h := range headers {
				numbers = append(numbers, h.Number)
			}
			assert.Equal(t, testDef.expNumber, numbers)
		})
	}
}

func TestStatusFollowsCanonical(t *testing.T) {
	m := chain.NewManager("G")
	m.ImportHeaders(linearHeaders("G", 0, 3, "A"))
	// A shorter fork is tracked but never reported
	fork := chain.NewChain("G")
	fork.AppendLinear(linearHeaders("G", 0, 2, "F"))
	require.NoError(t, m.InsertChain(fork))
	assert.Equal(t, "A3", m.Status().HeadHash)
	assert.Equal(t, uint64(3), m.Status().HeadNumber)

	// A longer fork takes over
	longer := chain.NewChain("G")
	longer.AppendLinear(linearHeaders("G", 0, 4, "F"))
	require.NoError(t, m.InsertChain(longer))
	assert.Equal(t, "F4", m.Status().HeadHash)
	assert.Equal(t, "G", m.Status().GenesisHash)
}

func TestInsertChainTieBreak(t *testing.T) {
	for _, order := range [][]string{{"B", "A"}, {"A", "B"}} {
		m := chain.NewManager("G")
		for _, prefix := range order {
			require.NoError(t, m.InsertChain(chainWith("G", 3, prefix)))
		}
		assert.Equal(t, "A3", m.CanonicalHeadHash())
		m.Recompute()
		assert.Equal(t, "A3", m.CanonicalHeadHash())
	}
}

func TestInsertChainErrors(t *testing.T) {
	m := chain.NewManager("G")
	err := m.InsertChain(chainWith("OTHER", 10, "X"))
	assert.ErrorIs(t, err, chain.ErrGenesisMismatch)
	assert.ErrorIs(t, m.InsertChain(nil), chain.ErrNonLinearChain)
	assert.Equal(t, "G", m.CanonicalHeadHash())
	assert.Equal(t, 1, m.ChainCount())
}

func TestInsertChainCopiesInput(t *testing.T) {
	m := chain.NewManager("G")
	c := chainWith("G", 2, "A")
	require.NoError(t, m.InsertChain(c))
	c.AppendLinear(linearHeaders("A2", 2, 3, "A"))
	assert.Equal(t, "A2", m.CanonicalHeadHash())
}

func TestRetention(t *testing.T) {
	m := chain.NewManager("G", chain.WithRetentionDepth(2))
	for i := uint64(1); i <= 5; i++ {
		m.ImportHeaders(linearHeaders("G", 0, i, "C")[i-1:])
	}
	require.Equal(t, uint64(5), m.CanonicalHeight())
	// A fork within the retention depth is kept
	require.NoError(t, m.InsertChain(chainWith("G", 4, "F")))
	assert.Equal(t, "C5", m.CanonicalHeadHash())
	for _, c := range m.Chains() {
		assert.GreaterOrEqual(t, c.Height(), uint64(3))
	}
	assert.Equal(t, 4, m.ChainCount())

	unlimited := chain.NewManager("G")
	for i := uint64(1); i <= 5; i++ {
		unlimited.ImportHeaders(linearHeaders("G", 0, i, "C")[i-1:])
	}
	assert.Equal(t, 6, unlimited.ChainCount())
}

func TestManagerMetrics(t *testing.T) {
	metrics := &chain.Metrics{
		CanonicalHeight:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "height"}),
		CanonicalSwitches: prometheus.NewCounter(prometheus.CounterOpts{Name: "switches"}),
		TrackedChains:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "chains"}),
	}
	m := chain.NewManager("G", chain.WithMetrics(metrics))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CanonicalHeight))
	m.ImportHeaders(linearHeaders("G", 0, 3, "C"))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CanonicalHeight))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CanonicalSwitches))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TrackedChains))
}

func TestProduceRejectsInvalidHeader(t *testing.T) {
	m := chain.NewManager("G")
	_, err := m.Produce(func(parent chain.Header) chain.Header {
		return chain.Header{ParentHash: "wrong", Hash: "X", Number: parent.Number + 1}
	})
	assert.ErrorIs(t, err, chain.ErrInvalidHeader)
	assert.Equal(t, "G", m.CanonicalHeadHash())
}

func TestConcurrentImports(t *testing.T) {
	m := chain.NewManager("G")
	headers := linearHeaders("G", 0, 20, "C")
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every writer delivers overlapping parts of the same extension
			for j := 0; j < len(headers); j += 1 + i%3 {
				m.ImportHeaders(headers[:j+1])
				_ = m.Status()
			}
		}()
	}
	wg.Wait()
	m.ImportHeaders(headers)
	assert.Equal(t, uint64(20), m.CanonicalHeight())
	assert.Equal(t, "C20", m.CanonicalHeadHash())
	assertLinear(t, m.Canonical())
}
