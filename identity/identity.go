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

// Package identity holds a participant's stable string id, their static
// RSA keypair used only for ASKE session-acknowledgement signatures, and a
// directory mapping other participants' ids to their static public keys.
package identity

import (
	"crypto/rsa"
	"errors"
	"sync"
)

// ErrConstructorMisuse is returned when required identity material is
// missing at construction time (spec §7, kind ConstructorMisuse).
var ErrConstructorMisuse = errors.New("identity: construction requires id and static keypair")

// Identity is one participant's durable identity: a stable id and the
// static RSA keypair used to authenticate ASKE session signatures. It is
// the only long-lived secret besides per-session ephemeral keys (spec §5).
type Identity struct {
	ID         string
	StaticPriv *rsa.PrivateKey
	StaticPub  *rsa.PublicKey
}

// New constructs an Identity, failing fast if id is empty or the keypair
// is missing.
func New(id string, priv *rsa.PrivateKey) (*Identity, error) {
	if id == "" || priv == nil {
		return nil, ErrConstructorMisuse
	}
	return &Identity{ID: id, StaticPriv: priv, StaticPub: &priv.PublicKey}, nil
}

// Directory maps participant ids to their static public keys, used by the
// ASKE member to verify inbound session signatures.
type Directory interface {
	Lookup(id string) (*rsa.PublicKey, bool)
	Put(id string, pub *rsa.PublicKey)
}

// MapDirectory is a concurrency-safe in-memory Directory.
type MapDirectory struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewMapDirectory returns an empty MapDirectory.
func NewMapDirectory() *MapDirectory {
	return &MapDirectory{keys: make(map[string]*rsa.PublicKey)}
}

// Lookup returns the static public key registered for id, if any.
func (d *MapDirectory) Lookup(id string) (*rsa.PublicKey, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pub, ok := d.keys[id]
	return pub, ok
}

// Put registers (or replaces) the static public key for id.
func (d *MapDirectory) Put(id string, pub *rsa.PublicKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[id] = pub
}
