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

package greetstore

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsLengthMismatch(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = New([]string{"a", "b"}, []byte("sid"), priv, pub, [32]byte{}, []ed25519.PublicKey{pub}, [][32]byte{{}}, []byte("key"), nil, nil)
	assert.ErrorIs(t, err, ErrInconsistentLengths)
}

func TestEphemeralPubKeyFor(t *testing.T) {
	pubA, privA, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubB, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s, err := New([]string{"a", "b"}, []byte("sid"), privA, pubA, [32]byte{}, []ed25519.PublicKey{pubA, pubB}, [][32]byte{{}, {}}, []byte("key"), nil, nil)
	require.NoError(t, err)

	got, ok := s.EphemeralPubKeyFor("b")
	require.True(t, ok)
	assert.Equal(t, pubB, got)

	_, ok = s.EphemeralPubKeyFor("c")
	assert.False(t, ok)
}

func TestReadersExcludesAuthor(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s, err := New([]string{"a", "b", "c"}, []byte("sid"), priv, pub, [32]byte{}, []ed25519.PublicKey{pub, pub, pub}, [][32]byte{{}, {}, {}}, []byte("key"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, s.Readers("a"))
}

func TestEmptyStoreIsNull(t *testing.T) {
	s := Empty()
	assert.Equal(t, StateNull, s.State)
	assert.Empty(t, s.Members)
}
