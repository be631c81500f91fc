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

package identity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/blinklabs-io/miniethnet/cbor"
)

// Well-known record keys
const (
	RecordKeyId        = "id"
	RecordKeyIP        = "ip"
	RecordKeyQuic      = "quic"
	RecordKeySecp256k1 = "secp256k1"

	RecordIdentityScheme = "v4"
)

var ErrInvalidRecord = errors.New("identity: invalid record")

// RecordPair is a single key/value attribute of a record
type RecordPair struct {
	Key   []byte
	Value []byte
}

// Record is a signed, sequenced list of attributes describing a node
type Record struct {
	Seq       uint64
	Pairs     []RecordPair
	Signature []byte
}

// ContentHash returns the keccak256 hash of the CBOR list [seq, k1, v1, k2, v2, ...]
func (r *Record) ContentHash() ([32]byte, error) {
	content := make([]any, 0, 1+len(r.Pairs)*2)
	content = append(content, r.Seq)
	for _, pair := range r.Pairs {
		content = append(content, pair.Key, pair.Value)
	}
	data, err := cbor.Encode(content)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return Keccak256(data), nil
}

// Verify checks the record signature against a public key
func (r *Record) Verify(pub *secp256k1.PublicKey) bool {
	hash, err := r.ContentHash()
	if err != nil {
		return false
	}
	return Verify(pub, hash, r.Signature)
}

// Get returns the value for a key
func (r *Record) Get(key string) ([]byte, bool) {
	for _, pair := range r.Pairs {
		if bytes.Equal(pair.Key, []byte(key)) {
			return pair.Value, true
		}
	}
	return nil, false
}

// PublicKey returns the public key carried in the record
func (r *Record) PublicKey() (*secp256k1.PublicKey, error) {
	data, ok := r.Get(RecordKeySecp256k1)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidRecord, RecordKeySecp256k1)
	}
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return pub, nil
}

// RecordBuilder assembles and signs a Record
type RecordBuilder struct {
	seq   uint64
	pairs []RecordPair
}

// NewRecordBuilder returns a builder starting at sequence number 1
func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{
		seq: 1,
	}
}

func (b *RecordBuilder) Seq(seq uint64) *RecordBuilder {
	b.seq = seq
	return b
}

func (b *RecordBuilder) Add(key []byte, value []byte) *RecordBuilder {
	b.pairs = append(
		b.pairs,
		RecordPair{
			Key:   bytes.Clone(key),
			Value: bytes.Clone(value),
		},
	)
	return b
}

// Build signs the record with the key pair
func (b *RecordBuilder) Build(kp *Keypair) (*Record, error) {
	r := &Record{
		Seq:   b.seq,
		Pairs: append([]RecordPair(nil), b.pairs...),
	}
	hash, err := r.ContentHash()
	if err != nil {
		return nil, err
	}
	r.Signature = Sign(kp.PrivateKey, hash)
	return r, nil
}

// NewNodeRecord returns the signed record announcing a node's QUIC endpoint
func NewNodeRecord(kp *Keypair, ip string, port uint16) (*Record, error) {
	portBytes := binary.BigEndian.AppendUint16(nil, port)
	return NewRecordBuilder().
		Add([]byte(RecordKeyId), []byte(RecordIdentityScheme)).
		Add([]byte(RecordKeyIP), []byte(ip)).
		Add([]byte(RecordKeyQuic), portBytes).
		Add([]byte(RecordKeySecp256k1), kp.PublicKey.SerializeCompressed()).
		Build(kp)
}
