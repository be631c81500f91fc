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

package protocol

import "errors"

var (
	// ErrInvalidMessage is returned when a payload cannot be decoded as a message
	ErrInvalidMessage = errors.New("protocol violation: invalid message received")
	// ErrUnknownMessageType is returned for a discriminator outside the protocol's message set
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrUnexpectedMessage is returned for a valid message arriving in the wrong state
	ErrUnexpectedMessage = errors.New("unexpected message type")
)
