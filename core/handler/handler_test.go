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

package handler

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/mpenc/core/greet"
	"github.com/sage-x-project/mpenc/core/greetstore"
	"github.com/sage-x-project/mpenc/identity"
)

func testHandlers(t *testing.T, ids []string) map[string]*Handler {
	t.Helper()
	dir := identity.NewMapDirectory()
	handlers := make(map[string]*Handler, len(ids))
	for _, id := range ids {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		dir.Put(id, &priv.PublicKey)
		handlers[id] = New(id, priv, dir, 0)
	}
	return handlers
}

// deliver broadcasts pt, originated by "from", to every other id in ids,
// draining each recipient's protocolOutQueue into the shared queue so the
// simulation converges the same way a real broadcast channel would.
func deliver(t *testing.T, handlers map[string]*Handler, ids []string, from, pt string) {
	t.Helper()
	for _, id := range ids {
		if id == from {
			continue
		}
		require.NoError(t, handlers[id].ProcessMessage(from, pt, ids))
		for len(handlers[id].ProtocolOutQueue) > 0 {
			next := handlers[id].ProtocolOutQueue[0]
			handlers[id].ProtocolOutQueue = handlers[id].ProtocolOutQueue[1:]
			deliver(t, handlers, ids, id, next)
		}
	}
}

func runStart(t *testing.T, handlers map[string]*Handler, ids []string) {
	t.Helper()
	require.NoError(t, handlers[ids[0]].Start(ids[1:]))
	for len(handlers[ids[0]].ProtocolOutQueue) > 0 {
		pt := handlers[ids[0]].ProtocolOutQueue[0]
		handlers[ids[0]].ProtocolOutQueue = handlers[ids[0]].ProtocolOutQueue[1:]
		deliver(t, handlers, ids, ids[0], pt)
	}
}

func TestStartConvergesAllMembersToReady(t *testing.T) {
	ids := []string{"alice", "bob", "carol"}
	handlers := testHandlers(t, ids)

	runStart(t, handlers, ids)

	for _, id := range ids {
		assert.Equal(t, greetstore.StateReady, handlers[id].State(), "member %s", id)
	}
}

func TestSendRequiresReady(t *testing.T) {
	ids := []string{"alice", "bob"}
	handlers := testHandlers(t, ids)

	err := handlers["alice"].Send("hello")
	assert.ErrorIs(t, err, ErrIllegalCaller)
}

func TestSendAndProcessMessageDeliversToUIQueue(t *testing.T) {
	ids := []string{"alice", "bob"}
	handlers := testHandlers(t, ids)
	runStart(t, handlers, ids)

	require.NoError(t, handlers["alice"].Send("hi bob"))
	require.Len(t, handlers["alice"].MessageOutQueue, 1)
	pt := handlers["alice"].MessageOutQueue[0]

	require.NoError(t, handlers["bob"].ProcessMessage("alice", pt, ids))
	require.Len(t, handlers["bob"].UIQueue, 1)
	assert.Equal(t, EventMessage, handlers["bob"].UIQueue[0].Type)
	assert.Equal(t, "hi bob", handlers["bob"].UIQueue[0].Message)
	assert.Equal(t, "alice", handlers["bob"].UIQueue[0].From)
}

func TestProcessMessagePlaintextRequestsEncryption(t *testing.T) {
	ids := []string{"alice", "bob"}
	handlers := testHandlers(t, ids)

	require.NoError(t, handlers["alice"].ProcessMessage("bob", "hello in the clear", ids))
	require.Len(t, handlers["alice"].UIQueue, 1)
	assert.Equal(t, EventInfo, handlers["alice"].UIQueue[0].Type)
	require.Len(t, handlers["alice"].ProtocolOutQueue, 1)
}

func TestQuitSignsWithRevealedEphemeralKey(t *testing.T) {
	ids := []string{"alice", "bob"}
	handlers := testHandlers(t, ids)
	runStart(t, handlers, ids)

	require.NoError(t, handlers["alice"].Quit())
	require.Len(t, handlers["alice"].ProtocolOutQueue, 1)

	msg, err := greet.DecodeUnverified(handlers["alice"].ProtocolOutQueue[0])
	require.NoError(t, err)
	assert.Equal(t, greet.TypeQuitDown, msg.Type)
	assert.NotEmpty(t, msg.SigningKey)
}

func TestJoinExcludeRefreshRequireReady(t *testing.T) {
	ids := []string{"alice", "bob"}
	handlers := testHandlers(t, ids)

	assert.ErrorIs(t, handlers["alice"].Join([]string{"carol"}), ErrIllegalCaller)
	assert.ErrorIs(t, handlers["alice"].Exclude([]string{"bob"}), ErrIllegalCaller)
	assert.ErrorIs(t, handlers["alice"].Refresh(), ErrIllegalCaller)
	assert.ErrorIs(t, handlers["alice"].Quit(), ErrIllegalCaller)
}
