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

package greeting

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/mpenc/core/greet"
	"github.com/sage-x-project/mpenc/identity"
)

func testGreetings(t *testing.T, ids []string) (map[string]*Greeting, *identity.MapDirectory) {
	t.Helper()
	dir := identity.NewMapDirectory()
	greetings := make(map[string]*Greeting, len(ids))
	for _, id := range ids {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		dir.Put(id, &priv.PublicKey)

		g, err := New(id, priv, dir, nil)
		require.NoError(t, err)
		greetings[id] = g
	}
	return greetings, dir
}

// runStart drives a full start→upflow(...)→broadcast flow for ids[0]
// inviting ids[1:], simulating the broadcast channel so every downflow
// reaches every participant.
func runStart(t *testing.T, greetings map[string]*Greeting, ids []string) {
	t.Helper()
	msg, err := greetings[ids[0]].Start(ids[1:])
	require.NoError(t, err)

	queue := []*greet.Message{msg}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]

		if m.Dest != "" {
			out, err := greetings[m.Dest].ProcessMessage(m)
			require.NoError(t, err)
			if out != nil {
				queue = append(queue, out)
			}
			continue
		}

		// Broadcast: deliver to every member except the sender.
		for _, id := range ids {
			if id == m.Source {
				continue
			}
			out, err := greetings[id].ProcessMessage(m)
			require.NoError(t, err)
			if out != nil {
				queue = append(queue, out)
			}
		}
	}
}

func TestStartConvergesToReady(t *testing.T) {
	ids := []string{"1", "2", "3"}
	greetings, _ := testGreetings(t, ids)

	runStart(t, greetings, ids)

	for _, id := range ids {
		assert.Equal(t, StateReady, greetings[id].State(), "member %s", id)
		require.NotNil(t, greetings[id].Result, "member %s", id)
	}

	groupKey := greetings["1"].Result.GroupKey
	sessionID := greetings["1"].Result.SessionID
	for _, id := range ids {
		assert.Equal(t, groupKey, greetings[id].Result.GroupKey, "member %s diverged on groupKey", id)
		assert.Equal(t, sessionID, greetings[id].Result.SessionID, "member %s diverged on sessionId", id)
		assert.Equal(t, greetings["1"].Result.Members, greetings[id].Result.Members, "member %s diverged on members", id)
	}
}

func TestStartTwoMemberConvergesToReady(t *testing.T) {
	ids := []string{"alice", "bob"}
	greetings, _ := testGreetings(t, ids)

	runStart(t, greetings, ids)

	assert.Equal(t, StateReady, greetings["alice"].State())
	assert.Equal(t, StateReady, greetings["bob"].State())
	assert.Equal(t, greetings["alice"].Result.GroupKey, greetings["bob"].Result.GroupKey)
}

func TestStartRejectsWrongState(t *testing.T) {
	greetings, _ := testGreetings(t, []string{"alice", "bob"})
	_, err := greetings["alice"].Start([]string{"bob"})
	require.NoError(t, err)

	_, err = greetings["alice"].Start([]string{"bob"})
	assert.ErrorIs(t, err, ErrIllegalCaller)
}

func TestProcessMessageDropsWhenSelfOmitted(t *testing.T) {
	greetings, _ := testGreetings(t, []string{"alice", "bob", "eve"})
	out, err := greetings["eve"].ProcessMessage(&greet.Message{
		Source:  "alice",
		Dest:    "",
		Type:    greet.TypeInitInitiatorUp,
		Members: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, StateQuit, greetings["eve"].State())
}

func TestProcessMessageDropsOwnEcho(t *testing.T) {
	greetings, _ := testGreetings(t, []string{"alice", "bob"})
	out, err := greetings["alice"].ProcessMessage(&greet.Message{
		Source:  "alice",
		Members: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

// runQueue drains a message queue exactly like runStart, but starting from an
// arbitrary seed message (used once a group is already past Start).
func runQueue(t *testing.T, greetings map[string]*Greeting, ids []string, seed *greet.Message) {
	t.Helper()
	queue := []*greet.Message{seed}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]

		if m.Dest != "" {
			out, err := greetings[m.Dest].ProcessMessage(m)
			require.NoError(t, err)
			if out != nil {
				queue = append(queue, out)
			}
			continue
		}

		for _, id := range ids {
			if id == m.Source {
				continue
			}
			out, err := greetings[id].ProcessMessage(m)
			require.NoError(t, err)
			if out != nil {
				queue = append(queue, out)
			}
		}
	}
}

func TestIncludeFiveMemberGroupConvergesToReady(t *testing.T) {
	existing := []string{"1", "2", "3"}
	greetings, dir := testGreetings(t, existing)
	runStart(t, greetings, existing)

	newIDs := []string{"4", "5"}
	for _, id := range newIDs {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		dir.Put(id, &priv.PublicKey)

		g, err := New(id, priv, dir, nil)
		require.NoError(t, err)
		greetings[id] = g
	}
	allIDs := append(append([]string{}, existing...), newIDs...)

	// The caller is deliberately not at position 0 of the existing group.
	msg, err := greetings["2"].Include(newIDs)
	require.NoError(t, err)
	runQueue(t, greetings, allIDs, msg)

	for _, id := range allIDs {
		assert.Equal(t, StateReady, greetings[id].State(), "member %s", id)
		require.NotNil(t, greetings[id].Result, "member %s", id)
	}

	groupKey := greetings["2"].Result.GroupKey
	sessionID := greetings["2"].Result.SessionID
	for _, id := range allIDs {
		assert.Equal(t, groupKey, greetings[id].Result.GroupKey, "member %s diverged on groupKey", id)
		assert.Equal(t, sessionID, greetings[id].Result.SessionID, "member %s diverged on sessionId", id)
		assert.Equal(t, greetings["2"].Result.Members, greetings[id].Result.Members, "member %s diverged on members", id)
	}
}

func TestExcludeLastManStandingQuits(t *testing.T) {
	ids := []string{"a", "b"}
	greetings, _ := testGreetings(t, ids)
	runStart(t, greetings, ids)
	require.Equal(t, StateReady, greetings["a"].State())

	msg, err := greetings["a"].Exclude([]string{"b"})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, StateQuit, greetings["a"].State())
}

func TestExcludeSelfFails(t *testing.T) {
	ids := []string{"a", "b", "c"}
	greetings, _ := testGreetings(t, ids)
	runStart(t, greetings, ids)

	_, err := greetings["a"].Exclude([]string{"a"})
	assert.ErrorIs(t, err, ErrExcludeSelf)
}
