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

// Package chain tracks competing header chains and selects the canonical one
package chain

import (
	"fmt"
	"slices"

	"github.com/jinzhu/copier"
)

// Chain is a linear sequence of headers starting at genesis
type Chain struct {
	headers []Header
}

// NewChain returns a chain containing only the genesis header
func NewChain(genesisHash string) *Chain {
	return &Chain{
		headers: []Header{NewGenesisHeader(genesisHash)},
	}
}

// NewChainFromHeaders returns a chain with the given headers. The first header
// must be a genesis header and the rest must be linear
func NewChainFromHeaders(headers []Header) (*Chain, error) {
	c := &Chain{
		headers: slices.Clone(headers),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Head returns the last header of the chain
func (c *Chain) Head() Header {
	return c.headers[len(c.headers)-1]
}

// Height returns the number of the head header
func (c *Chain) Height() uint64 {
	return c.Head().Number
}

func (c *Chain) HeadHash() string {
	return c.Head().Hash
}

func (c *Chain) GenesisHash() string {
	return c.headers[0].Hash
}

// Headers returns a copy of all headers, genesis first
func (c *Chain) Headers() []Header {
	return slices.Clone(c.headers)
}

// Clone returns a deep copy of the chain
func (c *Chain) Clone() *Chain {
	ret := &Chain{}
	if err := copier.CopyWithOption(
		&ret.headers,
		c.headers,
		copier.Option{DeepCopy: true},
	); err != nil {
		// Headers only hold values, so a plain copy of the slice is equivalent
		ret.headers = slices.Clone(c.headers)
	}
	return ret
}

// AppendLinear appends each header that directly extends the current head, in
// order. Headers that do not extend the head are skipped and the next header is
// compared against the unchanged head. It returns the number of appended headers
func (c *Chain) AppendLinear(headers []Header) int {
	appended := 0
	for _, h := range headers {
		if !h.Extends(c.Head()) {
			continue
		}
		c.headers = append(c.headers, h)
		appended++
	}
	return appended
}

// Validate checks that the chain starts at genesis and that every header links to
// the one before it
func (c *Chain) Validate() error {
	if len(c.headers) == 0 {
		return fmt.Errorf("%w: empty chain", ErrNonLinearChain)
	}
	genesis := c.headers[0]
	if genesis.Number != 0 || genesis.ParentHash != GenesisParentHash {
		return fmt.Errorf("%w: first header is not genesis: %s", ErrNonLinearChain, genesis)
	}
	for i := 1; i < len(c.headers); i++ {
		if !c.headers[i].Extends(c.headers[i-1]) {
			return fmt.Errorf(
				"%w: %s does not extend %s",
				ErrNonLinearChain,
				c.headers[i],
				c.headers[i-1],
			)
		}
	}
	return nil
}
