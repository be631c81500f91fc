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

package minisync

import (
	"fmt"

	"github.com/blinklabs-io/miniethnet/cbor"
	"github.com/blinklabs-io/miniethnet/chain"
	"github.com/blinklabs-io/miniethnet/protocol"
)

// Message types
const (
	MessageTypeStatus         = 0
	MessageTypeRequestHeaders = 1
	MessageTypeHeaders        = 2
)

// NewMsgFromCbor parses a mini-sync message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeStatus:
		ret = &MsgStatus{}
	case MessageTypeRequestHeaders:
		ret = &MsgRequestHeaders{}
	case MessageTypeHeaders:
		ret = &MsgHeaders{}
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

type MsgStatus struct {
	protocol.MessageBase
	GenesisHash string
	HeadHash    string
	HeadNumber  uint64
}

func NewMsgStatus(status chain.Status) *MsgStatus {
	m := &MsgStatus{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeStatus,
		},
		GenesisHash: status.GenesisHash,
		HeadHash:    status.HeadHash,
		HeadNumber:  status.HeadNumber,
	}
	return m
}

// ChainStatus returns the status carried by the message
func (m *MsgStatus) ChainStatus() chain.Status {
	return chain.Status{
		GenesisHash: m.GenesisHash,
		HeadHash:    m.HeadHash,
		HeadNumber:  m.HeadNumber,
	}
}

type MsgRequestHeaders struct {
	protocol.MessageBase
	RequestId uint64
	Start     uint64
	Count     uint64
}

func NewMsgRequestHeaders(requestId uint64, req chain.HeaderRequest) *MsgRequestHeaders {
	m := &MsgRequestHeaders{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRequestHeaders,
		},
		RequestId: requestId,
		Start:     req.Start,
		Count:     req.Count,
	}
	return m
}

type MsgHeaders struct {
	protocol.MessageBase
	RequestId uint64
	Headers   []chain.Header
}

func NewMsgHeaders(requestId uint64, headers []chain.Header) *MsgHeaders {
	m := &MsgHeaders{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeHeaders,
		},
		RequestId: requestId,
		Headers:   headers,
	}
	return m
}
