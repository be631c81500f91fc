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

package identity_test

import (
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/miniethnet/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256(t *testing.T) {
	// Well-known digest of the empty input
	hash := identity.Keccak256()
	assert.Equal(
		t,
		"c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hex.EncodeToString(hash[:]),
	)
	assert.Equal(t, identity.Keccak256([]byte("ab")), identity.Keccak256([]byte("a"), []byte("b")))
}

func TestKeypairNodeId(t *testing.T) {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	other, err := identity.GenerateKeypair()
	require.NoError(t, err)
	nodeId := kp.NodeId()
	assert.Equal(t, nodeId, identity.NodeIdFromPubKey(kp.PublicKey))
	assert.NotEqual(t, nodeId, other.NodeId())
	assert.Len(t, nodeId.String(), 64)
	uncompressed := kp.PublicKey.SerializeUncompressed()
	require.Len(t, uncompressed, 65)
	assert.Equal(t, identity.NodeId(identity.Keccak256(uncompressed[1:])), nodeId)
}

func TestSignVerify(t *testing.T) {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	other, err := identity.GenerateKeypair()
	require.NoError(t, err)
	hash := identity.Keccak256([]byte("test message"))
	sig := identity.Sign(kp.PrivateKey, hash)
	assert.True(t, identity.Verify(kp.PublicKey, hash, sig))
	assert.False(t, identity.Verify(other.PublicKey, hash, sig))
	assert.False(t, identity.Verify(kp.PublicKey, identity.Keccak256([]byte("other")), sig))
	assert.False(t, identity.Verify(kp.PublicKey, hash, []byte{0x30, 0x00}))
}

func TestRecordSignVerify(t *testing.T) {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	record, err := identity.NewRecordBuilder().
		Add([]byte("id"), []byte("v4")).
		Add([]byte("ip"), []byte("127.0.0.1")).
		Add([]byte("quic"), []byte{0x23, 0x29}).
		Build(kp)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), record.Seq)
	assert.True(t, record.Verify(kp.PublicKey))

	value, ok := record.Get("ip")
	assert.True(t, ok)
	assert.Equal(t, []byte("127.0.0.1"), value)
	_, ok = record.Get("missing")
	assert.False(t, ok)

	// Any change to the content invalidates the signature
	record.Seq = 2
	assert.False(t, record.Verify(kp.PublicKey))
	record.Seq = 1
	record.Pairs[1].Value = []byte("10.0.0.1")
	assert.False(t, record.Verify(kp.PublicKey))
}

func TestRecordContentHashStable(t *testing.T) {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	a, err := identity.NewRecordBuilder().Seq(5).Add([]byte("k"), []byte("v")).Build(kp)
	require.NoError(t, err)
	b, err := identity.NewRecordBuilder().Seq(5).Add([]byte("k"), []byte("v")).Build(kp)
	require.NoError(t, err)
	hashA, err := a.ContentHash()
	require.NoError(t, err)
	hashB, err := b.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
	c, err := identity.NewRecordBuilder().Seq(6).Add([]byte("k"), []byte("v")).Build(kp)
	require.NoError(t, err)
	hashC, err := c.ContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashC)
}

func TestNodeRecord(t *testing.T) {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	record, err := identity.NewNodeRecord(kp, "127.0.0.1", 9001)
	require.NoError(t, err)
	assert.True(t, record.Verify(kp.PublicKey))
	port, ok := record.Get(identity.RecordKeyQuic)
	require.True(t, ok)
	assert.Equal(t, []byte{0x23, 0x29}, port)
	pub, err := record.PublicKey()
	require.NoError(t, err)
	assert.True(t, pub.IsEqual(kp.PublicKey))
	assert.Equal(t, kp.NodeId(), identity.NodeIdFromPubKey(pub))
}
