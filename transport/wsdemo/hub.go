// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package wsdemo is a reference implementation of the minimal broadcast-
// channel contract the handler's three queues assume (spec §1, §4.8):
// every participant's messages reach every other current member, in the
// order sent, and each participant can observe the channel's current
// roster. It is a demo transport, not part of the protocol engine.
package wsdemo

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/mpenc/internal/logger"
)

const (
	hubReadTimeout  = 60 * time.Second
	hubWriteTimeout = 10 * time.Second
)

// envelope is the wire format exchanged between a Client and the Hub: who
// sent it, and the raw mpENC text (a "?mpENC:" frame, a "?mpENCv?" query,
// a "?mpENC Error:" frame, or plain text) exactly as Handler's queues hold
// it.
type envelope struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// Hub is a broadcast-channel server: every envelope it receives from one
// connection is relayed to every other currently connected member, and
// disconnects and (re)joins update the roster every member can read.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	members map[string]*websocket.Conn
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Demo-only: accept any origin. A production transport
				// would restrict this to known hosts.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		members: make(map[string]*websocket.Conn),
	}
}

// Members returns the current roster, the channelMembers argument
// Handler.ProcessMessage expects.
func (h *Hub) Members() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.members))
	for id := range h.members {
		ids = append(ids, id)
	}
	return ids
}

// Handler upgrades an incoming request to a WebSocket connection for
// participant id (taken from the "id" query parameter) and relays its
// traffic until it disconnects.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id query parameter", http.StatusBadRequest)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}
		defer func() { _ = conn.Close() }()

		h.join(id, conn)
		defer h.leave(id)

		h.serve(id, conn)
	})
}

func (h *Hub) join(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[id] = conn
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, id)
}

func (h *Hub) serve(id string, conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(hubReadTimeout)); err != nil {
			return
		}
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("wsdemo hub read error", logger.String("member", id), logger.Error(err))
			}
			return
		}
		env.From = id
		h.broadcast(env)
	}
}

// broadcast relays env to every member except its sender.
func (h *Hub) broadcast(env envelope) {
	h.mu.RLock()
	targets := make(map[string]*websocket.Conn, len(h.members))
	for id, conn := range h.members {
		if id != env.From {
			targets[id] = conn
		}
	}
	h.mu.RUnlock()

	for id, conn := range targets {
		if err := conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout)); err != nil {
			continue
		}
		if err := conn.WriteJSON(env); err != nil {
			logger.Warn("wsdemo hub write error", logger.String("member", id), logger.Error(err))
		}
	}
}
