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

package miniethnet

import (
	"sync"

	"github.com/blinklabs-io/miniethnet/protocol"
)

// ConnectionManagerConnClosedFunc is a function that takes the ID of a closed connection
type ConnectionManagerConnClosedFunc func(protocol.ConnectionId)

// ConnectionManagerTag represents the various tags that can be associated with a connection
type ConnectionManagerTag uint16

const (
	ConnectionManagerTagNone ConnectionManagerTag = iota

	ConnectionManagerTagBootstrap

	ConnectionManagerTagRoleInitiator
	ConnectionManagerTagRoleResponder
)

func (c ConnectionManagerTag) String() string {
	tmp := map[ConnectionManagerTag]string{
		ConnectionManagerTagBootstrap:     "Bootstrap",
		ConnectionManagerTagRoleInitiator: "RoleInitiator",
		ConnectionManagerTagRoleResponder: "RoleResponder",
	}
	ret, ok := tmp[c]
	if !ok {
		return "Unknown"
	}
	return ret
}

type ConnectionManager struct {
	config           ConnectionManagerConfig
	connections      map[protocol.ConnectionId]*ConnectionManagerConnection
	connectionsMutex sync.Mutex
}

type ConnectionManagerConfig struct {
	ConnClosedFunc ConnectionManagerConnClosedFunc
}

func NewConnectionManager(cfg ConnectionManagerConfig) *ConnectionManager {
	return &ConnectionManager{
		config:      cfg,
		connections: make(map[protocol.ConnectionId]*ConnectionManagerConnection),
	}
}

// AddConnection tracks the connection until it is closed
func (c *ConnectionManager) AddConnection(conn *Connection, tags ...ConnectionManagerTag) {
	connId := conn.Id()
	tmpTags := map[ConnectionManagerTag]bool{}
	for _, tag := range tags {
		tmpTags[tag] = true
	}
	c.connectionsMutex.Lock()
	c.connections[connId] = &ConnectionManagerConnection{
		Conn: conn,
		Tags: tmpTags,
	}
	c.connectionsMutex.Unlock()
	go func() {
		<-conn.DoneChan()
		c.RemoveConnection(connId)
		// Call configured connection closed callback func
		if c.config.ConnClosedFunc != nil {
			c.config.ConnClosedFunc(connId)
		}
	}()
}

func (c *ConnectionManager) RemoveConnection(connId protocol.ConnectionId) {
	c.connectionsMutex.Lock()
	delete(c.connections, connId)
	c.connectionsMutex.Unlock()
}

func (c *ConnectionManager) GetConnectionById(connId protocol.ConnectionId) *ConnectionManagerConnection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	return c.connections[connId]
}

// GetConnectionByNodeId returns a live connection to the node, or nil if there
// is none. Outbound connections are preferred
func (c *ConnectionManager) GetConnectionByNodeId(nodeId string) *Connection {
	var ret *Connection
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	for _, conn := range c.connections {
		if conn.Conn.Session().RemoteNodeId != nodeId {
			continue
		}
		select {
		case <-conn.Conn.DoneChan():
			continue
		default:
		}
		if conn.Tags[ConnectionManagerTagRoleInitiator] {
			return conn.Conn
		}
		ret = conn.Conn
	}
	return ret
}

func (c *ConnectionManager) GetConnectionsByTags(tags ...ConnectionManagerTag) []*ConnectionManagerConnection {
	var ret []*ConnectionManagerConnection
	c.connectionsMutex.Lock()
	for _, conn := range c.connections {
		skipConn := false
		for _, tag := range tags {
			if _, ok := conn.Tags[tag]; !ok {
				skipConn = true
				break
			}
		}
		if !skipConn {
			ret = append(ret, conn)
		}
	}
	c.connectionsMutex.Unlock()
	return ret
}

// Len returns the number of tracked connections
func (c *ConnectionManager) Len() int {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	return len(c.connections)
}

// CloseAll closes every tracked connection
func (c *ConnectionManager) CloseAll() {
	for _, conn := range c.GetConnectionsByTags() {
		_ = conn.Conn.Close()
	}
}

type ConnectionManagerConnection struct {
	Conn *Connection
	Tags map[ConnectionManagerTag]bool
}
