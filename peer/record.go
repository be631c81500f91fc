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

// Package peer keeps the set of known peer addresses
package peer

import (
	"fmt"
	"net"
	"strconv"

	"github.com/blinklabs-io/miniethnet/cbor"
)

// Record is the address record of a node as exchanged by discovery
type Record struct {
	cbor.StructAsArray
	NodeId string
	IP     string
	Port   uint16
}

// NewRecord returns a record for the given node and address
func NewRecord(nodeId string, ip string, port uint16) Record {
	return Record{
		NodeId: nodeId,
		IP:     ip,
		Port:   port,
	}
}

// Addr returns the host:port address of the node
func (r Record) Addr() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(int(r.Port)))
}

func (r Record) String() string {
	return fmt.Sprintf("%s@%s", r.NodeId, r.Addr())
}
