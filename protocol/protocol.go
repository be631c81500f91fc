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

// Package protocol provides the common types shared by the protocols that run
// over a multiplexed miniethnet connection
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/miniethnet/cbor"
)

// Protocol tags carried in the envelope of every multiplexed message
const (
	TagDiscovery = "discv-lite/0.1"
	TagMiniSync  = "mini-sync/0.1"
)

// KnownTags is the closed set of protocol tags understood by this implementation
var KnownTags = []string{
	TagDiscovery,
	TagMiniSync,
}

// IsKnownTag returns true if the tag is one of KnownTags
func IsKnownTag(tag string) bool {
	for _, known := range KnownTags {
		if tag == known {
			return true
		}
	}
	return false
}

// DefaultCapabilities returns the capability list advertised by a node supporting
// every known protocol
func DefaultCapabilities() []string {
	ret := make([]string, len(KnownTags))
	copy(ret, KnownTags)
	return ret
}

// ConnectionId uniquely identifies a connection by its endpoints
type ConnectionId struct {
	LocalAddr  string
	RemoteAddr string
}

func (c ConnectionId) String() string {
	return fmt.Sprintf("%s<>%s", c.LocalAddr, c.RemoteAddr)
}

// Sender sends a single tagged payload to the remote side of a connection
type Sender interface {
	Send(ctx context.Context, tag string, payload []byte) error
}

// ProtocolOptions is provided to every per-connection protocol instance
type ProtocolOptions struct {
	ConnectionId ConnectionId
	Sender       Sender
	Logger       *slog.Logger
}

type MessageFromCborFunc func(uint, []byte) (Message, error)

// EncodeMessage returns the CBOR encoding of a message
func EncodeMessage(msg Message) ([]byte, error) {
	return cbor.Encode(msg)
}

// DecodeMessage reads the message type discriminator from the payload and decodes
// the matching message using the provided function
func DecodeMessage(
	data []byte,
	msgFromCborFunc MessageFromCborFunc,
) (Message, error) {
	msgType, err := cbor.DecodeIdFromList(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	msg, err := msgFromCborFunc(uint(msgType), data)
	if err != nil {
		if errors.Is(err, ErrUnknownMessageType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, msgType)
	}
	return msg, nil
}
