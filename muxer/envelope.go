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

import (
	"github.com/blinklabs-io/miniethnet/cbor"
)

// Envelope tags an opaque payload with the protocol it belongs to
type Envelope struct {
	cbor.StructAsArray
	Proto string
	Data  []byte
}

// EncodeEnvelope returns the serialized envelope for the given tag and payload
func EncodeEnvelope(proto string, data []byte) ([]byte, error) {
	return cbor.Encode(&Envelope{Proto: proto, Data: data})
}

// DecodeEnvelope parses a serialized envelope. It returns false if the input is
// not exactly one well-formed envelope
func DecodeEnvelope(frame []byte) (Envelope, bool) {
	var env Envelope
	n, err := cbor.Decode(frame, &env)
	if err != nil || n != len(frame) {
		return Envelope{}, false
	}
	return env, true
}
