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

// Package identity provides node keys, node identifiers and signed node records
package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// NodeId is the keccak256 hash of a node's uncompressed public key without its
// prefix byte
type NodeId [32]byte

func (n NodeId) String() string {
	return hex.EncodeToString(n[:])
}

// Keypair is a secp256k1 key pair
type Keypair struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  *secp256k1.PublicKey
}

// GenerateKeypair returns a new random key pair
func GenerateKeypair() (*Keypair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{
		PrivateKey: priv,
		PublicKey:  priv.PubKey(),
	}, nil
}

// NodeId returns the node id of the key pair
func (k *Keypair) NodeId() NodeId {
	return NodeIdFromPubKey(k.PublicKey)
}

// NodeIdFromPubKey derives the node id from a public key
func NodeIdFromPubKey(pub *secp256k1.PublicKey) NodeId {
	// Skip the 0x04 prefix, leaving x || y
	return Keccak256(pub.SerializeUncompressed()[1:])
}

// Keccak256 returns the legacy keccak256 hash of the concatenated inputs
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var ret [32]byte
	copy(ret[:], h.Sum(nil))
	return ret
}

// Sign signs a 32-byte hash and returns the DER encoded signature. The input must
// already be a hash
func Sign(priv *secp256k1.PrivateKey, hash [32]byte) []byte {
	return ecdsa.Sign(priv, hash[:]).Serialize()
}

// Verify checks a DER encoded signature over a 32-byte hash
func Verify(pub *secp256k1.PublicKey, hash [32]byte, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(hash[:], pub)
}
