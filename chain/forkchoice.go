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

// ForkChoiceRule selects the canonical chain among candidates
type ForkChoiceRule int

const (
	// ForkChoiceLongestChain selects the chain with the greatest height. Ties are
	// broken by the lexicographically smallest head hash
	ForkChoiceLongestChain ForkChoiceRule = iota
)

func (r ForkChoiceRule) String() string {
	switch r {
	case ForkChoiceLongestChain:
		return "LongestChain"
	default:
		return "Unknown"
	}
}

// Choose returns the candidate selected by the rule, or nil if there are no
// candidates or the rule is unknown. The result does not depend on the order of
// the candidates
func Choose(rule ForkChoiceRule, candidates []*Chain) *Chain {
	switch rule {
	case ForkChoiceLongestChain:
		var best *Chain
		for _, c := range candidates {
			if c == nil {
				continue
			}
			if best == nil || longerChain(c, best) {
				best = c
			}
		}
		return best
	default:
		return nil
	}
}

func longerChain(a *Chain, b *Chain) bool {
	if a.Height() != b.Height() {
		return a.Height() > b.Height()
	}
	return a.HeadHash() < b.HeadHash()
}
