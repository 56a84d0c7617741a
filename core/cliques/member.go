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

// Package cliques implements the CLIQUES-style tree Diffie-Hellman group
// key agreement (spec §4.2): a chain of per-member exponents whose
// products are accumulated across an upflow then redistributed as a
// "cardinal" vector on the terminal downflow, so that every member
// recovers the same group secret with one local multiplication.
package cliques

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// Errors matching spec §7's Malformed/IllegalCaller/ConstructorMisuse kinds.
var (
	ErrEmptyMembers     = errors.New("cliques: member list must not be empty")
	ErrDuplicateMember  = errors.New("cliques: duplicate member in list")
	ErrNotAMember       = errors.New("cliques: self is not present in member list")
	ErrWrongFlowStage   = errors.New("cliques: message does not match current stage")
	ErrExcludeSelf      = errors.New("cliques: cannot exclude self")
)

// Flow distinguishes an upflow (sequential, member-to-member) message from
// a downflow (broadcast) one.
type Flow int

const (
	FlowUp Flow = iota
	FlowDown
)

// Message is the CLIQUES sub-message exchanged between members, carried
// inside a Greet message's MEMBER/INT_KEY fields (spec §4.4).
type Message struct {
	Source  string
	Dest    string // "" for broadcast (downflow)
	Flow    Flow
	Members []string
	IntKeys [][]byte // 32-byte Curve25519 elements
}

// Member holds one participant's CLIQUES state: the member list, the
// participant's own ordered private exponent list, the current
// intermediate-key vector, and the derived group key once available.
type Member struct {
	ID          string
	Members     []string
	PrivKeyList [][32]byte
	IntKeys     [][32]byte // current cardinal-in-progress vector
	GroupKey    []byte
}

// New returns an empty Member identified by id.
func New(id string) *Member {
	return &Member{ID: id}
}

func randomExponent() ([32]byte, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return b, fmt.Errorf("cliques: reading random exponent: %w", err)
	}
	return b, nil
}

func scalarMult(scalar [32]byte, point [32]byte) ([32]byte, error) {
	var out [32]byte
	dst, err := curve25519.X25519(scalar[:], point[:])
	if err != nil {
		return out, fmt.Errorf("cliques: scalar multiplication: %w", err)
	}
	copy(out[:], dst)
	return out, nil
}

func basepoint() [32]byte {
	var b [32]byte
	copy(b[:], curve25519.Basepoint)
	return b
}

func indexOf(list []string, id string) int {
	for i, m := range list {
		if m == id {
			return i
		}
	}
	return -1
}

func hasDuplicates(list []string) bool {
	seen := make(map[string]struct{}, len(list))
	for _, id := range list {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// rotate reseats list to start at pos, wrapping the prefix to the end. The
// upflow chain only requires a consistent order for one round, not any
// particular member at position 0, so every Aka* operation below rotates
// its member list to put the calling member first and proceeds exactly
// like the initial Ika chain from there.
func rotate(list []string, pos int) []string {
	out := make([]string, 0, len(list))
	out = append(out, list[pos:]...)
	out = append(out, list[:pos]...)
	return out
}

// Ika starts initial key agreement: generates a fresh exponent, seeds the
// member list [self, others...], and produces the first upflow message
// addressed to the next member in that list.
func (m *Member) Ika(others []string) (*Message, error) {
	if len(others) == 0 {
		return nil, ErrEmptyMembers
	}
	members := append([]string{m.ID}, others...)
	if hasDuplicates(members) {
		return nil, ErrDuplicateMember
	}

	x1, err := randomExponent()
	if err != nil {
		return nil, err
	}
	m.Members = members
	m.PrivKeyList = [][32]byte{x1}

	// intKeys = [1, g]: the placeholder identity (self's own eventual
	// cardinal, not yet touched by any other member's exponent) and the
	// running product after self's contribution.
	seed := basepoint()
	running, err := scalarMult(x1, seed)
	if err != nil {
		return nil, err
	}
	m.IntKeys = [][32]byte{seed, running}

	return &Message{
		Source:  m.ID,
		Dest:    members[1],
		Flow:    FlowUp,
		Members: members,
		IntKeys: [][]byte{seed[:], running[:]},
	}, nil
}

// Upflow processes an inbound upflow message. If self is not last in the
// member list, it returns the next upflow hop; if self is last, it
// finalizes its own group key directly and returns the terminal downflow
// broadcast carrying the cardinal vector for everyone else.
//
// Inbound intKeys holds pos+1 entries: pos partial cardinals (one seeded
// per member already processed, each still missing contributions from
// members after it) followed by the running product R of every exponent
// seen so far. Processing folds this member's fresh exponent into every
// partial, seeds a new partial for itself from the unmodified R, and
// advances R.
func (m *Member) Upflow(msg *Message) (*Message, error) {
	if hasDuplicates(msg.Members) {
		return nil, ErrDuplicateMember
	}
	pos := indexOf(msg.Members, m.ID)
	if pos < 0 {
		return nil, ErrNotAMember
	}
	if len(msg.IntKeys) != pos+1 {
		return nil, fmt.Errorf("%w: expected %d intermediate keys, got %d", ErrWrongFlowStage, pos+1, len(msg.IntKeys))
	}

	xk, err := randomExponent()
	if err != nil {
		return nil, err
	}

	m.Members = msg.Members
	m.PrivKeyList = append(m.PrivKeyList, xk)

	inbound := make([][32]byte, len(msg.IntKeys))
	for i, k := range msg.IntKeys {
		var e [32]byte
		copy(e[:], k)
		inbound[i] = e
	}
	running := inbound[pos] // R, unmodified by this member yet

	partials := make([][32]byte, pos)
	for i := 0; i < pos; i++ {
		c, err := scalarMult(xk, inbound[i])
		if err != nil {
			return nil, err
		}
		partials[i] = c
	}

	if pos == len(msg.Members)-1 {
		// Last member: own cardinal is the inbound running product
		// (already excludes xk); finish locally and broadcast the rest.
		groupKey, err := scalarMult(xk, running)
		if err != nil {
			return nil, err
		}
		m.GroupKey = groupKey[:]
		m.IntKeys = nil

		out := make([][]byte, len(partials))
		for i, c := range partials {
			out[i] = append([]byte(nil), c[:]...)
		}
		return &Message{
			Source:  m.ID,
			Dest:    "",
			Flow:    FlowDown,
			Members: msg.Members,
			IntKeys: out,
		}, nil
	}

	// Not last: self's new partial is the unmodified running product,
	// then advance the running product with this member's exponent.
	newRunning, err := scalarMult(xk, running)
	if err != nil {
		return nil, err
	}
	outbound := append(append([][32]byte{}, partials...), running, newRunning)
	m.IntKeys = outbound

	out := make([][]byte, len(outbound))
	for i, c := range outbound {
		out[i] = append([]byte(nil), c[:]...)
	}

	return &Message{
		Source:  m.ID,
		Dest:    msg.Members[pos+1],
		Flow:    FlowUp,
		Members: msg.Members,
		IntKeys: out,
	}, nil
}

// Downflow consumes the terminal broadcast: finds this member's cardinal
// in the vector and multiplies it by its own exponent to recover the
// group key.
func (m *Member) Downflow(msg *Message) error {
	if hasDuplicates(msg.Members) {
		return ErrDuplicateMember
	}
	pos := indexOf(msg.Members, m.ID)
	if pos < 0 {
		return ErrNotAMember
	}
	if pos >= len(msg.IntKeys) {
		return fmt.Errorf("%w: no cardinal for self in downflow", ErrWrongFlowStage)
	}
	if len(m.PrivKeyList) == 0 {
		return fmt.Errorf("%w: no private exponent recorded", ErrWrongFlowStage)
	}

	var cardinal [32]byte
	copy(cardinal[:], msg.IntKeys[pos])
	xk := m.PrivKeyList[len(m.PrivKeyList)-1]

	groupKey, err := scalarMult(xk, cardinal)
	if err != nil {
		return err
	}
	m.Members = msg.Members
	m.GroupKey = groupKey[:]
	m.IntKeys = nil
	return nil
}

// AkaRefresh picks a fresh exponent and restarts the key-agreement chain
// ika-style over the unchanged member set: it returns an upflow to the
// next member, and every member adds a fresh exponent as the chain reaches
// it. It does not broadcast new key material in a single message. Any
// READY member may call refresh, not just the original initiator, so the
// chain is rotated to start at the caller's own position. A single-member
// group derives its key locally and returns a downflow with no keys.
func (m *Member) AkaRefresh() (*Message, error) {
	if len(m.Members) == 0 {
		return nil, ErrEmptyMembers
	}
	pos := indexOf(m.Members, m.ID)
	if pos < 0 {
		return nil, ErrNotAMember
	}
	members := rotate(m.Members, pos)
	m.Members = members

	xk, err := randomExponent()
	if err != nil {
		return nil, err
	}
	m.PrivKeyList = append(m.PrivKeyList, xk)

	// Re-run ika-style chain from scratch with the rotated member list; a
	// full refresh is operationally equivalent to a fresh ika() for the
	// unchanged member set, seeded with the new exponent.
	seed := basepoint()
	running, err := scalarMult(xk, seed)
	if err != nil {
		return nil, err
	}
	if len(members) == 1 {
		m.GroupKey = running[:]
		return &Message{Source: m.ID, Dest: "", Flow: FlowDown, Members: members, IntKeys: nil}, nil
	}
	return &Message{
		Source:  m.ID,
		Dest:    members[1],
		Flow:    FlowUp,
		Members: members,
		IntKeys: [][]byte{seed[:], running[:]},
	}, nil
}

// AkaExclude removes members in gone from the chain, picks a fresh
// exponent, and restarts the key-agreement chain ika-style over the
// remaining members: it returns an upflow to the next remaining member
// rather than broadcasting intermediate keys in a single message. If only
// the caller remains, it derives its key locally and returns a downflow
// with no keys.
func (m *Member) AkaExclude(gone []string) (*Message, error) {
	if len(gone) == 0 {
		return nil, ErrEmptyMembers
	}
	remaining := make([]string, 0, len(m.Members))
	goneSet := make(map[string]struct{}, len(gone))
	for _, g := range gone {
		if g == m.ID {
			return nil, ErrExcludeSelf
		}
		goneSet[g] = struct{}{}
	}
	for _, id := range m.Members {
		if _, excluded := goneSet[id]; !excluded {
			remaining = append(remaining, id)
		}
	}

	xk, err := randomExponent()
	if err != nil {
		return nil, err
	}
	m.PrivKeyList = append(m.PrivKeyList, xk)

	seed := basepoint()
	running, err := scalarMult(xk, seed)
	if err != nil {
		return nil, err
	}
	if len(remaining) <= 1 {
		m.Members = remaining
		m.GroupKey = running[:]
		return &Message{Source: m.ID, Dest: "", Flow: FlowDown, Members: remaining, IntKeys: nil}, nil
	}

	// Rotate remaining to put the excluder first: the excluder's position
	// in remaining is otherwise arbitrary, but Upflow requires the chain's
	// IntKeys length to match the receiver's position in Members, which
	// only holds here if the excluder restarts the chain from position 0.
	pos := indexOf(remaining, m.ID)
	members := rotate(remaining, pos)
	m.Members = members

	return &Message{
		Source:  m.ID,
		Dest:    members[1],
		Flow:    FlowUp,
		Members: members,
		IntKeys: [][]byte{seed[:], running[:]},
	}, nil
}

// AkaJoin admits new members: the caller restarts the chain ika-style over
// the existing members (rotated to put itself first) followed by the new
// members, so every existing member folds its own exponent into the chain
// via Upflow before it ever reaches a new member, the same way Upflow
// already threads the initial Ika chain.
func (m *Member) AkaJoin(newMembers []string) (*Message, error) {
	if len(newMembers) == 0 {
		return nil, ErrEmptyMembers
	}
	if len(m.Members) == 0 {
		return nil, ErrEmptyMembers
	}
	pos := indexOf(m.Members, m.ID)
	if pos < 0 {
		return nil, ErrNotAMember
	}
	existing := rotate(m.Members, pos)
	members := append(append([]string{}, existing...), newMembers...)
	if hasDuplicates(members) {
		return nil, ErrDuplicateMember
	}
	m.Members = members

	xk, err := randomExponent()
	if err != nil {
		return nil, err
	}
	m.PrivKeyList = append(m.PrivKeyList, xk)

	seed := basepoint()
	running, err := scalarMult(xk, seed)
	if err != nil {
		return nil, err
	}
	m.IntKeys = [][32]byte{seed, running}

	return &Message{
		Source:  m.ID,
		Dest:    members[1],
		Flow:    FlowUp,
		Members: members,
		IntKeys: [][]byte{seed[:], running[:]},
	}, nil
}

// AkaQuit destroys this member's secret exponents.
func (m *Member) AkaQuit() {
	m.PrivKeyList = nil
	m.IntKeys = nil
	m.GroupKey = nil
}
