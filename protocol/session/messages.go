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

package session

import (
	"fmt"

	"github.com/blinklabs-io/miniethnet/cbor"
	"github.com/blinklabs-io/miniethnet/protocol"
)

// Message types
const (
	MessageTypeHello    = 0
	MessageTypeHelloAck = 1
)

// NewMsgFromCbor parses a session message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeHello:
		ret = &MsgHello{}
	case MessageTypeHelloAck:
		ret = &MsgHelloAck{}
	default:
		return nil, fmt.Errorf(
			"%s: %w: %d",
			ProtocolName,
			protocol.ErrUnknownMessageType,
			msgType,
		)
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	// Store the raw message CBOR
	ret.SetCbor(data)
	return ret, nil
}

type MsgHello struct {
	protocol.MessageBase
	NodeId          string
	ProtocolVersion uint32
	Capabilities    []string
	Genesis         string
	HeadHeight      uint64
}

func NewMsgHello(
	nodeId string,
	protocolVersion uint32,
	capabilities []string,
	genesis string,
	headHeight uint64,
) *MsgHello {
	m := &MsgHello{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeHello,
		},
		NodeId:          nodeId,
		ProtocolVersion: protocolVersion,
		Capabilities:    capabilities,
		Genesis:         genesis,
		HeadHeight:      headHeight,
	}
	return m
}

type MsgHelloAck struct {
	protocol.MessageBase
	NodeId             string
	AgreedCapabilities []string
}

func NewMsgHelloAck(nodeId string, agreedCapabilities []string) *MsgHelloAck {
	m := &MsgHelloAck{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeHelloAck,
		},
		NodeId:             nodeId,
		AgreedCapabilities: agreedCapabilities,
	}
	return m
}
