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

import "errors"

var (
	// ErrGenesisMismatch is returned when a chain belongs to a different network
	ErrGenesisMismatch = errors.New("chain: genesis mismatch")

	// ErrNonLinearChain is returned when a chain breaks number or parent hash
	// linkage between consecutive headers
	ErrNonLinearChain = errors.New("chain: headers are not linear")

	// ErrInvalidHeader is returned when a produced header does not extend the
	// canonical head
	ErrInvalidHeader = errors.New("chain: header does not extend canonical head")
)
