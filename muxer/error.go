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

package muxer

import "errors"

var (
	// ErrFrameTooLarge is returned when a frame length prefix exceeds MaxFrameSize
	ErrFrameTooLarge = errors.New("muxer: frame too large")

	// ErrMuxerStarted is returned when the protocol registry is modified after the
	// muxer has started
	ErrMuxerStarted = errors.New("muxer: already started")
)
