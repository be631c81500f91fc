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

package miniethnet

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/miniethnet/chain"
)

const metricsNamespace = "miniethnet"

// Metrics holds the node metrics
type Metrics struct {
	CanonicalHeight   prometheus.Gauge
	CanonicalSwitches prometheus.Counter
	TrackedChains     prometheus.Gauge
	MuxerFrames       *prometheus.CounterVec
	Handshakes        *prometheus.CounterVec
	PeersKnown        prometheus.Gauge
}

// NewMetrics creates the node metrics and registers them. A nil registerer uses a
// new private registry
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	m := &Metrics{
		CanonicalHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "canonical_height",
			Help:      "Height of the canonical chain.",
		}),
		CanonicalSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "canonical_switches_total",
			Help:      "Number of times the canonical chain changed to a different fork.",
		}),
		TrackedChains: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "chain",
			Name:      "tracked_chains",
			Help:      "Number of chains tracked by the chain manager.",
		}),
		MuxerFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "muxer",
			Name:      "frames_total",
			Help:      "Number of received frames by protocol tag and result.",
		}, []string{"proto", "result"}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "handshakes_total",
			Help:      "Number of finished session handshakes by direction and result.",
		}, []string{"direction", "result"}),
		PeersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peers_known",
			Help:      "Number of records in the peer table.",
		}),
	}
	collectors := []prometheus.Collector{
		m.CanonicalHeight,
		m.CanonicalSwitches,
		m.TrackedChains,
		m.MuxerFrames,
		m.Handshakes,
		m.PeersKnown,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) chainMetrics() *chain.Metrics {
	return &chain.Metrics{
		CanonicalHeight:   m.CanonicalHeight,
		CanonicalSwitches: m.CanonicalSwitches,
		TrackedChains:     m.TrackedChains,
	}
}
