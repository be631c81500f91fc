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

package peer

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultTableSize = 32

// Table is a bounded set of peer records keyed by node id. Inserting a known node
// id refreshes its record and recency. When full, the least recently inserted or
// refreshed record is evicted. It is safe for concurrent use
type Table struct {
	mutex      sync.Mutex
	local      Record
	logger     *slog.Logger
	knownPeers prometheus.Gauge
	cache      *lru.Cache[string, Record]
}

type TableOptionFunc func(*Table)

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) TableOptionFunc {
	return func(t *Table) {
		t.logger = logger
	}
}

// WithKnownPeersGauge specifies a gauge that tracks the table size
func WithKnownPeersGauge(gauge prometheus.Gauge) TableOptionFunc {
	return func(t *Table) {
		t.knownPeers = gauge
	}
}

// NewTable returns an empty table for the local node holding at most size records
func NewTable(local Record, size int, options ...TableOptionFunc) (*Table, error) {
	if size <= 0 {
		return nil, errors.New("peer table size must be positive")
	}
	t := &Table{
		local: local,
	}
	for _, option := range options {
		option(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "peer")
	cache, err := lru.NewWithEvict(size, t.onEvict)
	if err != nil {
		return nil, err
	}
	t.cache = cache
	return t, nil
}

func (t *Table) onEvict(nodeId string, r Record) {
	t.logger.Debug(
		"evicted peer",
		"node_id", nodeId,
		"addr", r.Addr(),
	)
}

// Local returns the record of the local node
func (t *Table) Local() Record {
	return t.local
}

// Insert adds or refreshes a record. It returns true only if the node id was not
// known yet. The local node and empty ids are never inserted
func (t *Table) Insert(r Record) bool {
	if r.NodeId == t.local.NodeId || r.NodeId == "" {
		return false
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	previous, found := t.cache.Peek(r.NodeId)
	t.cache.Add(r.NodeId, r)
	if found {
		if previous != r {
			t.logger.Debug(
				"updated peer record",
				"node_id", r.NodeId,
				"addr", r.Addr(),
			)
		}
		return false
	}
	t.updateGauge()
	return true
}

// InsertMany adds records and returns the ones that were new
func (t *Table) InsertMany(records []Record) []Record {
	var added []Record
	for _, r := range records {
		if t.Insert(r) {
			added = append(added, r)
		}
	}
	return added
}

// Get returns the record for a node id
func (t *Table) Get(nodeId string) (Record, bool) {
	return t.cache.Peek(nodeId)
}

// Remove removes the record for a node id
func (t *Table) Remove(nodeId string) bool {
	removed := t.cache.Remove(nodeId)
	t.updateGauge()
	return removed
}

// List returns all known records ordered by node id
func (t *Table) List() []Record {
	ret := t.cache.Values()
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].NodeId < ret[j].NodeId
	})
	return ret
}

// Len returns the number of known records
func (t *Table) Len() int {
	return t.cache.Len()
}

func (t *Table) updateGauge() {
	if t.knownPeers == nil {
		return
	}
	t.knownPeers.Set(float64(t.cache.Len()))
}
