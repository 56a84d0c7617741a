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

// Package greeting drives one membership operation end-to-end (spec
// §4.5): it merges CLIQUES and ASKE sub-message processing behind a
// single state machine and snapshots a completed session into a
// greetstore.Store on READY.
package greeting

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/sage-x-project/mpenc/core/aske"
	"github.com/sage-x-project/mpenc/core/cliques"
	"github.com/sage-x-project/mpenc/core/greet"
	"github.com/sage-x-project/mpenc/core/greetstore"
	"github.com/sage-x-project/mpenc/identity"
)

// State re-exports greetstore.State: a Greeting's progress and a
// GreetStore snapshot's provenance share the same vocabulary (spec §4.5).
type State = greetstore.State

const (
	StateNull          = greetstore.StateNull
	StateInitUpflow    = greetstore.StateInitUpflow
	StateInitDownflow  = greetstore.StateInitDownflow
	StateReady         = greetstore.StateReady
	StateAuxUpflow     = greetstore.StateAuxUpflow
	StateAuxDownflow   = greetstore.StateAuxDownflow
	StateQuit          = greetstore.StateQuit
)

// Errors matching spec §7.
var (
	ErrIllegalCaller = errors.New("greeting: caller action invoked in wrong state")
	ErrExcludeSelf   = errors.New("greeting: cannot exclude self")
)

// Greeting owns all mutable state of one in-progress membership
// operation. It references an immutable prior GreetStore and never
// mutates it (spec §3 invariant a).
type Greeting struct {
	self    string
	state   State
	prev    *greetstore.Store
	cliques *cliques.Member
	aske    *aske.Member

	// metadata is recorded only on the very first inbound greet of this
	// operation (spec §4.5 tie-break policy).
	metadata    *greet.Metadata
	metadataSet bool

	// Result holds the session snapshot once state reaches READY.
	Result *greetstore.Store
}

// New constructs a Greeting referencing prev, borrowing identity data
// (staticPriv, dir) for the ASKE sub-member it owns.
func New(self string, staticPriv *rsa.PrivateKey, dir identity.Directory, prev *greetstore.Store) (*Greeting, error) {
	askeMember, err := aske.New(self, staticPriv, dir)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		prev = greetstore.Empty()
	}
	return &Greeting{
		self:    self,
		state:   StateNull,
		prev:    prev,
		cliques: cliques.New(self),
		aske:    askeMember,
	}, nil
}

// State returns the current state.
func (g *Greeting) State() State { return g.state }

// SigningKey returns the ephemeral Ed25519 private key this Greeting's
// ASKE sub-member currently holds, used by the Greeter to sign outgoing
// Greet messages (spec §4.1, §6).
func (g *Greeting) SigningKey() ed25519.PrivateKey { return g.aske.EphemeralPriv }

func mergeType(cliquesPresent, askePresent bool, down bool, init bool, op greet.Op, aux bool) greet.Type {
	var t greet.Type
	if aux {
		t |= 1 << 0
	}
	if down {
		t |= 1 << 1
	}
	if cliquesPresent {
		t |= 1 << 2
	}
	if askePresent {
		t |= 1 << 3
	}
	t |= greet.Type(op) << 4
	if init {
		t |= 1 << 7
	}
	return t
}

// Start begins initial key agreement with others from State NULL (spec
// §4.5).
func (g *Greeting) Start(others []string) (*greet.Message, error) {
	if g.state != StateNull {
		return nil, fmt.Errorf("%w: start requires NULL, have %v", ErrIllegalCaller, g.state)
	}
	cq, err := g.cliques.Ika(others)
	if err != nil {
		return nil, err
	}
	aq, err := g.aske.Commit(others)
	if err != nil {
		return nil, err
	}
	g.state = StateInitUpflow
	g.metadata = &greet.Metadata{Author: g.self}
	g.metadataSet = true

	return &greet.Message{
		Source:   g.self,
		Dest:     cq.Dest,
		Type:     mergeType(true, true, false, true, greet.OpStart, false),
		Members:  cq.Members,
		IntKeys:  cq.IntKeys,
		Nonces:   flatten32(aq.Nonces),
		PubKeys:  flattenPub(aq.PubKeys),
		Metadata: g.metadata,
	}, nil
}

// Include admits new members from State READY (spec §4.5).
func (g *Greeting) Include(newMembers []string) (*greet.Message, error) {
	if g.state != StateReady {
		return nil, fmt.Errorf("%w: include requires READY, have %v", ErrIllegalCaller, g.state)
	}
	cq, err := g.cliques.AkaJoin(newMembers)
	if err != nil {
		return nil, err
	}
	aq, err := g.aske.Join(newMembers)
	if err != nil {
		return nil, err
	}
	g.state = StateAuxUpflow

	return &greet.Message{
		Source:  g.self,
		Dest:    cq.Dest,
		Type:    mergeType(true, true, false, true, greet.OpInclude, true),
		Members: cq.Members,
		IntKeys: cq.IntKeys,
		Nonces:  flatten32(aq.Nonces),
		PubKeys: flattenPub(aq.PubKeys),
	}, nil
}

// Exclude removes gone from State READY (spec §4.5). If the member list
// reduces to just self, transitions directly to QUIT without emitting.
func (g *Greeting) Exclude(gone []string) (*greet.Message, error) {
	if g.state != StateReady {
		return nil, fmt.Errorf("%w: exclude requires READY, have %v", ErrIllegalCaller, g.state)
	}
	for _, id := range gone {
		if id == g.self {
			return nil, ErrExcludeSelf
		}
	}
	cq, err := g.cliques.AkaExclude(gone)
	if err != nil {
		return nil, err
	}
	aq, err := g.aske.Exclude(gone)
	if err != nil {
		return nil, err
	}

	if len(cq.Members) == 1 {
		g.state = StateQuit
		return nil, nil
	}
	g.state = StateAuxDownflow

	return &greet.Message{
		Source:           g.self,
		Dest:             "",
		Type:             mergeType(true, true, true, true, greet.OpExclude, true),
		Members:          cq.Members,
		IntKeys:          cq.IntKeys,
		Nonces:           flatten32(aq.Nonces),
		PubKeys:          flattenPub(aq.PubKeys),
		SessionSignature: aq.SessionSignature,
	}, nil
}

// Refresh picks a fresh exponent and broadcasts a new group key while
// keeping members and sessionId unchanged (spec §4.5, §8).
func (g *Greeting) Refresh() (*greet.Message, error) {
	switch g.state {
	case StateReady, StateInitDownflow, StateAuxDownflow:
	default:
		return nil, fmt.Errorf("%w: refresh requires READY/*_DOWNFLOW, have %v", ErrIllegalCaller, g.state)
	}
	cq, err := g.cliques.AkaRefresh()
	if err != nil {
		return nil, err
	}

	return &greet.Message{
		Source:  g.self,
		Dest:    "",
		Type:    mergeType(true, false, true, true, greet.OpRefresh, true),
		Members: cq.Members,
		IntKeys: cq.IntKeys,
	}, nil
}

// Quit destroys own secrets and publishes the ephemeral signing key for
// audit (spec §4.3, §4.5).
func (g *Greeting) Quit() (*greet.Message, error) {
	if g.state == StateQuit {
		return nil, fmt.Errorf("%w: quit requires a non-QUIT state", ErrIllegalCaller)
	}
	signingKey := g.aske.Quit()
	g.cliques.AkaQuit()
	members := g.prev.Members
	g.state = StateQuit

	return &greet.Message{
		Source:     g.self,
		Dest:       "",
		Type:       greet.TypeQuitDown,
		Members:    members,
		SigningKey: signingKey,
	}, nil
}

// ProcessMessage implements the inbound-processing algorithm of spec
// §4.5 step 1-8.
func (g *Greeting) ProcessMessage(msg *greet.Message) (*greet.Message, error) {
	if g.state == StateQuit {
		return nil, nil
	}
	if len(msg.Members) > 0 && !contains(msg.Members, g.self) {
		g.state = StateQuit
		return nil, nil
	}
	if msg.Dest != "" && msg.Dest != g.self {
		return nil, nil
	}
	if msg.Source == g.self {
		return nil, nil
	}

	if !g.metadataSet && msg.Metadata != nil {
		g.metadata = msg.Metadata
		g.metadataSet = true
	}

	var cliquesOut *cliques.Message
	var askeOut *aske.Message
	var err error

	if msg.Type.IsGKA() {
		cm := &cliques.Message{
			Source:  msg.Source,
			Dest:    msg.Dest,
			Members: msg.Members,
			IntKeys: msg.IntKeys,
		}
		if msg.Type.IsDown() {
			cm.Flow = cliques.FlowDown
			if err = g.cliques.Downflow(cm); err != nil {
				return nil, err
			}
		} else {
			cm.Flow = cliques.FlowUp
			if cliquesOut, err = g.cliques.Upflow(cm); err != nil {
				return nil, err
			}
		}
	}

	if msg.Type.IsSKE() {
		am := &aske.Message{
			Source:           msg.Source,
			Dest:             msg.Dest,
			Members:          msg.Members,
			Nonces:           unflatten32(msg.Nonces),
			PubKeys:          unflattenPub(msg.PubKeys),
			SessionID:        nil,
			SessionSignature: msg.SessionSignature,
		}
		if msg.Type.IsDown() {
			am.Flow = aske.FlowDown
			if askeOut, err = g.aske.Downflow(am); err != nil {
				return nil, err
			}
		} else {
			am.Flow = aske.FlowUp
			if askeOut, err = g.aske.Upflow(am); err != nil {
				return nil, err
			}
		}
	}

	out := mergeOutbound(g.self, msg, cliquesOut, askeOut)

	// A Greeting may be created fresh by receipt of an INIT packet (spec
	// §3 Lifecycles); track its continuation state the same way a
	// caller-initiated operation would.
	if g.state == StateNull {
		switch {
		case msg.Type.Operation() == greet.OpStart && msg.Type.IsDown():
			g.state = StateInitDownflow
		case msg.Type.Operation() == greet.OpStart:
			g.state = StateInitUpflow
		case msg.Type.Operation() == greet.OpInclude:
			g.state = StateAuxUpflow
		case msg.Type.Operation() == greet.OpExclude, msg.Type.Operation() == greet.OpRefresh:
			g.state = StateAuxDownflow
		}
	}

	if g.aske.IsSessionAcknowledged() && len(g.aske.EphemeralPubKeys) > 0 {
		store, err := greetstore.New(
			g.aske.Members,
			g.aske.SessionID,
			g.aske.EphemeralPriv,
			g.aske.EphemeralPub,
			g.aske.Nonce,
			g.aske.EphemeralPubKeys,
			g.aske.Nonces,
			g.cliques.GroupKey,
			g.cliques.PrivKeyList,
			g.cliques.IntKeys,
		)
		if err != nil {
			return nil, err
		}
		g.Result = store
		g.state = StateReady
	}

	if g.state != StateReady && len(g.cliques.Members) == 1 && g.cliques.Members[0] == g.self {
		g.state = StateQuit
		return nil, nil
	}

	return out, nil
}

func contains(list []string, id string) bool {
	for _, m := range list {
		if m == id {
			return true
		}
	}
	return false
}

func flatten32(in [][32]byte) [][]byte {
	out := make([][]byte, len(in))
	for i, v := range in {
		out[i] = append([]byte(nil), v[:]...)
	}
	return out
}

func unflatten32(in [][]byte) [][32]byte {
	out := make([][32]byte, len(in))
	for i, v := range in {
		copy(out[i][:], v)
	}
	return out
}

func flattenPub(in []ed25519.PublicKey) [][]byte {
	out := make([][]byte, len(in))
	for i, v := range in {
		out[i] = append([]byte(nil), v...)
	}
	return out
}

func unflattenPub(in [][]byte) []ed25519.PublicKey {
	out := make([]ed25519.PublicKey, len(in))
	for i, v := range in {
		out[i] = ed25519.PublicKey(append([]byte(nil), v...))
	}
	return out
}

// mergeOutbound combines the CLIQUES and ASKE sub-outputs (either may be
// nil) into a single Greet message, setting DOWN when the merged
// destination is empty, clearing INIT since forwarded messages are never
// re-marked as self-initiated, and clearing GKA once CLIQUES has nothing
// further to relay (spec §4.5 step 6).
func mergeOutbound(self string, in *greet.Message, cliquesOut *cliques.Message, askeOut *aske.Message) *greet.Message {
	if cliquesOut == nil && askeOut == nil {
		return nil
	}

	out := &greet.Message{Source: self, Type: in.Type}
	hasGKA := cliquesOut != nil
	hasSKE := askeOut != nil

	switch {
	case cliquesOut != nil:
		out.Dest = cliquesOut.Dest
		out.Members = cliquesOut.Members
		out.IntKeys = cliquesOut.IntKeys
	case askeOut != nil:
		out.Dest = askeOut.Dest
		out.Members = askeOut.Members
	}
	if askeOut != nil {
		out.Members = askeOut.Members
		out.Nonces = flatten32(askeOut.Nonces)
		out.PubKeys = flattenPub(askeOut.PubKeys)
		out.SessionSignature = askeOut.SessionSignature
	}

	down := out.Dest == ""
	// hasGKA is already false once CLIQUES has nothing further to relay
	// (a pure Downflow consumes it without producing cliquesOut), which
	// is exactly "confirmation downflows clear GKA" (spec §4.5 step 6).
	out.Type = mergeType(hasGKA, hasSKE, down, false, in.Type.Operation(), in.Type.IsAux())
	return out
}
