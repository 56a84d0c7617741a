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

// Package greetstore holds the immutable per-completed-session snapshot
// (spec §3): a GreetStore is replaced atomically on each successful
// membership operation and is never mutated by a Greeting in progress.
package greetstore

import (
	"crypto/ed25519"
	"errors"
)

// State tags a GreetStore snapshot with the greeting-state-machine state
// it was captured in (spec §4.5). A fresh, empty store is StateNull; a
// completed operation captures StateReady.
type State int

const (
	StateNull State = iota
	StateInitUpflow
	StateInitDownflow
	StateReady
	StateAuxUpflow
	StateAuxDownflow
	StateQuit
)

// ErrInconsistentLengths is returned by New when members, ephemeral public
// keys, and nonces are not the same length while the state is READY (spec
// §3 invariant).
var ErrInconsistentLengths = errors.New("greetstore: members/ephemeralPubKeys/nonces length mismatch")

// Store is an immutable snapshot of one completed (or in-progress, for the
// empty NULL case) membership operation.
type Store struct {
	State     State
	Members   []string
	SessionID []byte

	OwnEphemeralPriv ed25519.PrivateKey
	OwnEphemeralPub  ed25519.PublicKey
	OwnNonce         [32]byte

	EphemeralPubKeys []ed25519.PublicKey
	Nonces           [][32]byte

	GroupKey       []byte
	PrivKeyList    [][32]byte
	IntKeys        [][32]byte
}

// Empty returns the initial, empty GreetStore (state NULL).
func Empty() *Store {
	return &Store{State: StateNull}
}

// New constructs a READY snapshot, enforcing the length invariant from
// spec §3.
func New(members []string, sessionID []byte, ownPriv ed25519.PrivateKey, ownPub ed25519.PublicKey, ownNonce [32]byte, pubKeys []ed25519.PublicKey, nonces [][32]byte, groupKey []byte, privKeyList [][32]byte, intKeys [][32]byte) (*Store, error) {
	if len(members) != len(pubKeys) || len(members) != len(nonces) {
		return nil, ErrInconsistentLengths
	}
	return &Store{
		State:            StateReady,
		Members:          append([]string(nil), members...),
		SessionID:        append([]byte(nil), sessionID...),
		OwnEphemeralPriv: ownPriv,
		OwnEphemeralPub:  ownPub,
		OwnNonce:         ownNonce,
		EphemeralPubKeys: append([]ed25519.PublicKey(nil), pubKeys...),
		Nonces:           append([][32]byte(nil), nonces...),
		GroupKey:         append([]byte(nil), groupKey...),
		PrivKeyList:      append([][32]byte(nil), privKeyList...),
		IntKeys:          append([][32]byte(nil), intKeys...),
	}, nil
}

// EphemeralPubKeyFor returns the ephemeral public key registered for id,
// used by MessageSecurity.decryptVerify to resolve an authorHint.
func (s *Store) EphemeralPubKeyFor(id string) (ed25519.PublicKey, bool) {
	for i, m := range s.Members {
		if m == id {
			return s.EphemeralPubKeys[i], true
		}
	}
	return nil, false
}

// Readers returns every member except author, the intended audience of a
// data message from author (spec §4.7).
func (s *Store) Readers(author string) []string {
	var readers []string
	for _, m := range s.Members {
		if m != author {
			readers = append(readers, m)
		}
	}
	return readers
}
