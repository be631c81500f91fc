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
	"context"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const DefaultProducerInterval = 5 * time.Second

// ProducerConfig holds the header producer configuration
type ProducerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

type ProducerOptionFunc func(*ProducerConfig)

// NewProducerConfig returns a ProducerConfig with the given options applied on top
// of the defaults
func NewProducerConfig(options ...ProducerOptionFunc) ProducerConfig {
	c := ProducerConfig{
		Interval: DefaultProducerInterval,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithProducerInterval specifies how often a header is produced
func WithProducerInterval(interval time.Duration) ProducerOptionFunc {
	return func(c *ProducerConfig) {
		c.Interval = interval
	}
}

// WithProducerLogger specifies the logger
func WithProducerLogger(logger *slog.Logger) ProducerOptionFunc {
	return func(c *ProducerConfig) {
		c.Logger = logger
	}
}

// Producer periodically extends the canonical chain with a new header. It goes
// through the same insert and fork-choice path as imported headers
type Producer struct {
	manager *Manager
	config  ProducerConfig
	logger  *slog.Logger
}

// NewProducer returns a producer for the manager
func NewProducer(manager *Manager, config ProducerConfig) *Producer {
	if config.Interval <= 0 {
		config.Interval = DefaultProducerInterval
	}
	p := &Producer{
		manager: manager,
		config:  config,
		logger:  config.Logger,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "producer")
	return p
}

// Run produces a header every interval until the context is cancelled
func (p *Producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.ProduceOnce(); err != nil {
				p.logger.Warn(
					"failed to produce header",
					"error", err,
				)
			}
		}
	}
}

// ProduceOnce produces a single header on top of the canonical head
func (p *Producer) ProduceOnce() (Header, error) {
	h, err := p.manager.Produce(NextHeader)
	if err != nil {
		return Header{}, err
	}
	p.logger.Info(
		"produced header",
		"number", h.Number,
		"hash", h.Hash,
	)
	return h, nil
}

// NextHeader returns a header extending parent with a fresh unique hash
func NextHeader(parent Header) Header {
	number := parent.Number + 1
	return Header{
		ParentHash: parent.Hash,
		Hash:       headerHash(parent.Hash, number, uuid.New()),
		Number:     number,
	}
}

func headerHash(parentHash string, number uint64, nonce uuid.UUID) string {
	data := make([]byte, 0, len(parentHash)+8+len(nonce))
	data = append(data, parentHash...)
	data = binary.BigEndian.AppendUint64(data, number)
	data = append(data, nonce[:]...)
	sum := blake2b.Sum256(data)
	return "0x" + hex.EncodeToString(sum[:])
}
