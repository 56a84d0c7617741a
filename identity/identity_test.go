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

package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestNewRequiresIDAndKey(t *testing.T) {
	_, err := New("", testKey(t))
	assert.ErrorIs(t, err, ErrConstructorMisuse)

	_, err = New("alice", nil)
	assert.ErrorIs(t, err, ErrConstructorMisuse)

	id, err := New("alice", testKey(t))
	require.NoError(t, err)
	assert.Equal(t, "alice", id.ID)
}

func TestMapDirectory(t *testing.T) {
	dir := NewMapDirectory()
	_, ok := dir.Lookup("alice")
	assert.False(t, ok)

	key := testKey(t)
	dir.Put("alice", &key.PublicKey)

	pub, ok := dir.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, &key.PublicKey, pub)
}
