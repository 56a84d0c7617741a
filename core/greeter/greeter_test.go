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

package greeter

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

func testGreeters(t *testing.T, ids []string) map[string]*Greeter {
	t.Helper()
	dir := identity.NewMapDirectory()
	greeters := make(map[string]*Greeter, len(ids))
	for _, id := range ids {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		dir.Put(id, &priv.PublicKey)
		greeters[id] = New(id, priv, dir)
	}
	return greeters
}

// runStart drives a full Encode→channel-broadcast→Decode round for ids[0]
// starting a session with the rest, simulating the broadcast channel so
// every pubtxt reaches every member.
func runStart(t *testing.T, greeters map[string]*Greeter, ids []string) {
	t.Helper()
	pubtxt, err := greeters[ids[0]].Encode(ids, &greet.Metadata{Author: ids[0]})
	require.NoError(t, err)

	queue := []string{pubtxt}
	for len(queue) > 0 {
		pt := queue[0]
		queue = queue[1:]

		peek, err := greet.DecodeUnverified(pt)
		require.NoError(t, err)

		if peek.Dest != "" {
			out, err := greeters[peek.Dest].Decode(pt, peek.Source, ids)
			require.NoError(t, err)
			if out != nil {
				queue = append(queue, greet.Encode(greeters[peek.Dest].Current().SigningKey(), out))
			}
			continue
		}

		for _, id := range ids {
			if id == peek.Source {
				continue
			}
			out, err := greeters[id].Decode(pt, peek.Source, ids)
			require.NoError(t, err)
			if out != nil {
				queue = append(queue, greet.Encode(greeters[id].Current().SigningKey(), out))
			}
		}
	}
}

func TestEncodeDecodeConvergesToReady(t *testing.T) {
	ids := []string{"1", "2", "3"}
	greeters := testGreeters(t, ids)

	runStart(t, greeters, ids)

	for _, id := range ids {
		require.Equal(t, greetstore.StateReady, greeters[id].Store().State, "member %s", id)
	}
	groupKey := greeters["1"].Store().GroupKey
	for _, id := range ids {
		assert.Equal(t, groupKey, greeters[id].Store().GroupKey, "member %s diverged on groupKey", id)
	}
}

func TestEncodeMatchesOwnEcho(t *testing.T) {
	ids := []string{"1", "2"}
	greeters := testGreeters(t, ids)

	pubtxt, err := greeters["1"].Encode(ids, nil)
	require.NoError(t, err)

	hash, err := greet.PayloadHash(pubtxt)
	require.NoError(t, err)
	assert.True(t, greeters["1"].hasProposal)
	assert.Equal(t, hash, greeters["1"].proposalHash)
}

func TestEncodeRejectsMixedOperation(t *testing.T) {
	ids := []string{"1", "2", "3"}
	greeters := testGreeters(t, ids)
	runStart(t, greeters, ids)

	_, err := greeters["1"].Encode([]string{"1", "4"}, nil)
	assert.ErrorIs(t, err, ErrMixedOperation)
}

func TestDecodeRejectsUnknownSender(t *testing.T) {
	ids := []string{"1", "2", "3"}
	greeters := testGreeters(t, ids)

	pubtxt, err := greeters["1"].Encode([]string{"1", "2"}, nil)
	require.NoError(t, err)

	_, err = greeters["2"].Decode(pubtxt, "1", []string{"2", "3"})
	assert.ErrorIs(t, err, ErrNotAChannelMember)
}

func TestPacketIDStableAcrossSenderView(t *testing.T) {
	ids := []string{"1", "2", "3"}
	greeters := testGreeters(t, ids)
	pubtxt, err := greeters["1"].Encode([]string{"1", "2"}, nil)
	require.NoError(t, err)

	id1, err := PacketID("1", ids, pubtxt)
	require.NoError(t, err)
	id2, err := PacketID("1", ids, pubtxt)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	otherOrder, err := PacketID("1", []string{"3", "2", "1"}, pubtxt)
	require.NoError(t, err)
	assert.NotEqual(t, id1, otherOrder, "channel-member order affects the packet id by design")
}
