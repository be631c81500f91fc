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

package chain

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the chain manager metrics. Any of them may be nil
type Metrics struct {
	CanonicalHeight   prometheus.Gauge
	CanonicalSwitches prometheus.Counter
	TrackedChains     prometheus.Gauge
}

// ImportResult describes the effect of importing a header batch. A batch that
// extends nothing is not an error, it leaves the canonical head unchanged
type ImportResult struct {
	Appended       int
	PreviousHeight uint64
	PreviousHead   string
	Height         uint64
	Head           string
}

// Advanced returns true if the canonical height increased
func (r ImportResult) Advanced() bool {
	return r.Height > r.PreviousHeight
}

// Manager tracks every known chain keyed by head hash along with the canonical
// chain selected by the fork-choice rule. All methods are safe for concurrent use
// and none of them block on I/O
type Manager struct {
	mutex          sync.Mutex
	logger         *slog.Logger
	metrics        *Metrics
	rule           ForkChoiceRule
	retentionDepth uint64
	genesisHash    string
	chains         map[string]*Chain
	canonicalHead  string
}

type ManagerOptionFunc func(*Manager)

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) ManagerOptionFunc {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics specifies the metrics to update
func WithMetrics(metrics *Metrics) ManagerOptionFunc {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithForkChoiceRule specifies the fork-choice rule
func WithForkChoiceRule(rule ForkChoiceRule) ManagerOptionFunc {
	return func(m *Manager) {
		m.rule = rule
	}
}

// WithRetentionDepth drops non-canonical chains whose height is more than depth
// below the canonical height. A depth of 0 keeps every chain
func WithRetentionDepth(depth uint64) ManagerOptionFunc {
	return func(m *Manager) {
		m.retentionDepth = depth
	}
}

// NewManager returns a manager tracking only the genesis chain
func NewManager(genesisHash string, options ...ManagerOptionFunc) *Manager {
	m := &Manager{
		rule:        ForkChoiceLongestChain,
		genesisHash: genesisHash,
		chains:      make(map[string]*Chain),
	}
	for _, option := range options {
		option(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "chain")
	genesis := NewChain(genesisHash)
	m.chains[genesis.HeadHash()] = genesis
	m.canonicalHead = genesis.HeadHash()
	m.updateMetrics()
	return m
}

func (m *Manager) canonical() *Chain {
	return m.chains[m.canonicalHead]
}

// Status returns a snapshot of the canonical chain
func (m *Manager) Status() Status {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.status()
}

func (m *Manager) status() Status {
	c := m.canonical()
	return Status{
		GenesisHash: c.GenesisHash(),
		HeadHash:    c.HeadHash(),
		HeadNumber:  c.Height(),
	}
}

func (m *Manager) CanonicalHeight() uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.canonical().Height()
}

func (m *Manager) CanonicalHeadHash() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.canonicalHead
}

func (m *Manager) GenesisHash() string {
	return m.genesisHash
}

// Canonical returns a copy of the canonical chain
func (m *Manager) Canonical() *Chain {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.canonical().Clone()
}

// ChainCount returns the number of tracked chains
func (m *Manager) ChainCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.chains)
}

// ShouldRequest returns true if the remote chain is on the same network and ahead
// of the canonical chain
func (m *Manager) ShouldRequest(remote Status) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.shouldRequest(remote)
}

func (m *Manager) shouldRequest(remote Status) bool {
	if remote.GenesisHash != m.genesisHash {
		return false
	}
	return remote.HeadNumber > m.canonical().Height()
}

// BuildRequest returns the range of headers between the canonical head and the
// remote head
func (m *Manager) BuildRequest(remote Status) HeaderRequest {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.buildRequest(remote)
}

func (m *Manager) buildRequest(remote Status) HeaderRequest {
	localHeight := m.canonical().Height()
	var count uint64
	if remote.HeadNumber > localHeight {
		count = remote.HeadNumber - localHeight
	}
	return HeaderRequest{
		Start: localHeight + 1,
		Count: count,
	}
}

// RequestFor decides whether to request headers from the remote and builds the
// request, all under a single lock acquisition
func (m *Manager) RequestFor(remote Status) (HeaderRequest, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.shouldRequest(remote) {
		return HeaderRequest{}, false
	}
	return m.buildRequest(remote), true
}

// HeadersFrom returns at most count canonical headers starting at number start,
// in ascending order. Fewer headers are returned if the chain is shorter
func (m *Manager) HeadersFrom(start uint64, count uint64) []Header {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	c := m.canonical()
	height := c.Height()
	if count == 0 || start > height {
		return []Header{}
	}
	// Header numbers match their index in the chain
	avail := height - start + 1
	if count < avail {
		avail = count
	}
	ret := make([]Header, avail)
	copy(ret, c.headers[start:start+avail])
	return ret
}

// InsertChain adds a chain to the tracked set and recomputes the canonical chain.
// A chain with the same head hash as a tracked chain replaces it
func (m *Manager) InsertChain(c *Chain) error {
	if c == nil {
		return fmt.Errorf("%w: nil chain", ErrNonLinearChain)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GenesisHash() != m.genesisHash {
		return fmt.Errorf(
			"%w: got %s, expected %s",
			ErrGenesisMismatch,
			c.GenesisHash(),
			m.genesisHash,
		)
	}
	candidate := c.Clone()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.insertChain(candidate)
	return nil
}

func (m *Manager) insertChain(c *Chain) {
	m.chains[c.HeadHash()] = c
	m.recompute()
}

// ImportHeaders extends a copy of the canonical chain with the headers that link
// linearly onto it and inserts the result
func (m *Manager) ImportHeaders(headers []Header) ImportResult {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	before := m.canonical()
	result := ImportResult{
		PreviousHeight: before.Height(),
		PreviousHead:   before.HeadHash(),
	}
	if len(headers) > 0 {
		candidate := before.Clone()
		result.Appended = candidate.AppendLinear(headers)
		m.insertChain(candidate)
	}
	after := m.canonical()
	result.Height = after.Height()
	result.Head = after.HeadHash()
	if result.Advanced() {
		m.logger.Info(
			"advanced canonical head",
			"from", result.PreviousHeight,
			"to", result.Height,
			"head", result.Head,
		)
	}
	return result
}

// Produce appends exactly one header built by nextHeader from the canonical head,
// then inserts the extended chain like any imported chain
func (m *Manager) Produce(nextHeader func(parent Header) Header) (Header, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	candidate := m.canonical().Clone()
	parent := candidate.Head()
	h := nextHeader(parent)
	if candidate.AppendLinear([]Header{h}) != 1 {
		return Header{}, fmt.Errorf("%w: %s", ErrInvalidHeader, h)
	}
	m.insertChain(candidate)
	return h, nil
}

// Recompute applies the fork-choice rule to the tracked chains
func (m *Manager) Recompute() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.recompute()
}

func (m *Manager) recompute() {
	candidates := make([]*Chain, 0, len(m.chains))
	for _, c := range m.chains {
		candidates = append(candidates, c)
	}
	if best := Choose(m.rule, candidates); best != nil {
		newHead := best.HeadHash()
		if newHead != m.canonicalHead {
			m.logger.Info(
				"canonical switch",
				"from", m.canonicalHead,
				"to", newHead,
				"height", best.Height(),
			)
			m.canonicalHead = newHead
			if m.metrics != nil && m.metrics.CanonicalSwitches != nil {
				m.metrics.CanonicalSwitches.Inc()
			}
		}
	}
	m.prune()
	m.updateMetrics()
}

func (m *Manager) prune() {
	if m.retentionDepth == 0 {
		return
	}
	height := m.canonical().Height()
	if height <= m.retentionDepth {
		return
	}
	minHeight := height - m.retentionDepth
	for head, c := range m.chains {
		if head == m.canonicalHead {
			continue
		}
		if c.Height() < minHeight {
			delete(m.chains, head)
		}
	}
}

func (m *Manager) updateMetrics() {
	if m.metrics == nil {
		return
	}
	if m.metrics.CanonicalHeight != nil {
		m.metrics.CanonicalHeight.Set(float64(m.canonical().Height()))
	}
	if m.metrics.TrackedChains != nil {
		m.metrics.TrackedChains.Set(float64(len(m.chains)))
	}
}

// Chains returns copies of every tracked chain ordered by head hash
func (m *Manager) Chains() []*Chain {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ret := make([]*Chain, 0, len(m.chains))
	for _, c := range m.chains {
		ret = append(ret, c.Clone())
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].HeadHash() < ret[j].HeadHash()
	})
	return ret
}
