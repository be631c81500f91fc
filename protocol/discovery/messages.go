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

package discovery

import (
	"fmt"

	"github.com/blinklabs-io/miniethnet/cbor"
	"github.com/blinklabs-io/miniethnet/peer"
	"github.com/blinklabs-io/miniethnet/protocol"
)

// Message types
const (
	MessageTypePing      = 0
	MessageTypePong      = 1
	MessageTypeFindNodes = 2
	MessageTypeNodes     = 3
)

// NewMsgFromCbor parses a discovery message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypePing:
		ret = &MsgPing{}
	case MessageTypePong:
		ret = &MsgPong{}
	case MessageTypeFindNodes:
		ret = &MsgFindNodes{}
	case MessageTypeNodes:
		ret = &MsgNodes{}
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

type MsgPing struct {
	protocol.MessageBase
	From peer.Record
}

func NewMsgPing(from peer.Record) *MsgPing {
	m := &MsgPing{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypePing,
		},
		From: from,
	}
	return m
}

type MsgPong struct {
	protocol.MessageBase
	From peer.Record
}

func NewMsgPong(from peer.Record) *MsgPong {
	m := &MsgPong{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypePong,
		},
		From: from,
	}
	return m
}

type MsgFindNodes struct {
	protocol.MessageBase
	From peer.Record
}

func NewMsgFindNodes(from peer.Record) *MsgFindNodes {
	m := &MsgFindNodes{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeFindNodes,
		},
		From: from,
	}
	return m
}

type MsgNodes struct {
	protocol.MessageBase
	From  peer.Record
	Peers []peer.Record
}

func NewMsgNodes(from peer.Record, peers []peer.Record) *MsgNodes {
	if peers == nil {
		peers = []peer.Record{}
	}
	m := &MsgNodes{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeNodes,
		},
		From:  from,
		Peers: peers,
	}
	return m
}
