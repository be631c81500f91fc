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

	"github.com/blinklabs-io/miniethnet/cbor"
)

// GenesisParentHash is the parent hash of every genesis header
const GenesisParentHash = "0x00"

// Header is a single chain entry
type Header struct {
	cbor.StructAsArray
	ParentHash string
	Hash       string
	Number     uint64
}

// NewGenesisHeader returns the genesis header for the given hash
func NewGenesisHeader(genesisHash string) Header {
	return Header{
		ParentHash: GenesisParentHash,
		Hash:       genesisHash,
		Number:     0,
	}
}

// Extends returns true if the header directly follows parent
func (h Header) Extends(parent Header) bool {
	return h.Number == parent.Number+1 && h.ParentHash == parent.Hash
}

func (h Header) String() string {
	return fmt.Sprintf(
		"header(number=%d, hash=%s, parent=%s)",
		h.Number,
		h.Hash,
		h.ParentHash,
	)
}

// Status is a snapshot of a canonical chain
type Status struct {
	GenesisHash string
	HeadHash    string
	HeadNumber  uint64
}

// HeaderRequest is a range of header numbers to fetch from a peer
type HeaderRequest struct {
	// Start is the first requested header number
	Start uint64
	Count uint64
}
