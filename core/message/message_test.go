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

package message

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/mpenc/core/greetstore"
)

func readyStore(t *testing.T, members []string) *greetstore.Store {
	t.Helper()
	pubKeys := make([]ed25519.PublicKey, len(members))
	var ownPriv ed25519.PrivateKey
	var ownPub ed25519.PublicKey
	for i := range members {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		pubKeys[i] = pub
		if i == 0 {
			ownPriv, ownPub = priv, pub
		}
	}
	groupKey := make([]byte, 32)
	_, err := rand.Read(groupKey)
	require.NoError(t, err)

	nonces := make([][32]byte, len(members))
	s, err := greetstore.New(members, []byte("sessionid"), ownPriv, ownPub, [32]byte{}, pubKeys, nonces, groupKey, nil, nil)
	require.NoError(t, err)
	return s
}

func TestAuthEncryptDecryptVerifyRoundTrip(t *testing.T) {
	store := readyStore(t, []string{"alice", "bob", "carol"})
	sec, err := New(store, 0)
	require.NoError(t, err)

	parents := [][]byte{[]byte("p1"), []byte("p2")}
	frame, err := sec.AuthEncrypt(parents, "Shout, shout, let it all out!")
	require.NoError(t, err)

	decoded, err := sec.DecryptVerify(frame, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", decoded.Author)
	assert.Equal(t, parents, decoded.Parents)
	assert.Equal(t, []string{"bob", "carol"}, decoded.Readers)
	assert.Equal(t, "Shout, shout, let it all out!", decoded.Body)
}

func TestAuthEncryptWithPadding(t *testing.T) {
	store := readyStore(t, []string{"alice", "bob"})
	sec, err := New(store, 16)
	require.NoError(t, err)

	frame, err := sec.AuthEncrypt(nil, "hi")
	require.NoError(t, err)

	decoded, err := sec.DecryptVerify(frame, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hi", decoded.Body)
}

func TestDecryptVerifyUnknownAuthor(t *testing.T) {
	store := readyStore(t, []string{"alice", "bob"})
	sec, err := New(store, 0)
	require.NoError(t, err)

	frame, err := sec.AuthEncrypt(nil, "hi")
	require.NoError(t, err)

	_, err = sec.DecryptVerify(frame, "eve")
	assert.ErrorIs(t, err, ErrUnknownAuthor)
}

func TestDecryptVerifyBadSignature(t *testing.T) {
	store := readyStore(t, []string{"alice", "bob"})
	sec, err := New(store, 0)
	require.NoError(t, err)

	frame, err := sec.AuthEncrypt(nil, "hi")
	require.NoError(t, err)

	_, err = sec.DecryptVerify(frame, "bob")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestNewRequiresReadyStore(t *testing.T) {
	_, err := New(greetstore.Empty(), 0)
	assert.ErrorIs(t, err, ErrNotReady)
}
