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

// Package greeter owns the long-lived identity and the last completed
// GreetStore, and matches locally proposed membership operations against
// their echoes on the broadcast channel (spec §4.6).
package greeter

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/sage-x-project/mpenc/core/greet"
	"github.com/sage-x-project/mpenc/core/greeting"
	"github.com/sage-x-project/mpenc/core/greetstore"
	"github.com/sage-x-project/mpenc/identity"
	"github.com/sage-x-project/mpenc/wire"
)

// Errors matching spec §7.
var (
	ErrMixedOperation = errors.New("greeter: cannot include and exclude members in the same operation")
	ErrNotAChannelMember = errors.New("greeter: sender is not a current channel member")
)

// Greeter holds one identity's long-lived state across a sequence of
// membership operations: the static keypair, the last completed
// GreetStore, and at most one proposedGreeting awaiting its echo.
type Greeter struct {
	self       string
	staticPriv *rsa.PrivateKey
	dir        identity.Directory

	store *greetstore.Store

	hasProposal  bool
	proposalHash [32]byte
	proposalID   uuid.UUID
	proposed     *greeting.Greeting

	current *greeting.Greeting
}

// New constructs a Greeter starting from an empty (NULL) GreetStore.
func New(self string, staticPriv *rsa.PrivateKey, dir identity.Directory) *Greeter {
	return &Greeter{
		self:  self,
		dir:   dir,
		staticPriv: staticPriv,
		store: greetstore.Empty(),
	}
}

// Store returns the last completed GreetStore (or the empty NULL store if
// no operation has completed yet).
func (g *Greeter) Store() *greetstore.Store { return g.store }

// Current returns the Greeting driving the in-progress operation, if any.
func (g *Greeter) Current() *greeting.Greeting { return g.current }

// ProposalID returns a local correlation id for the operation this Greeter
// last proposed, distinct from PacketID (which is a function of the wire
// payload and is unknown until after signing). Log lines and UI status
// messages can key on it across the lifetime of one Encode call without
// waiting for the channel's echo. The zero UUID means no proposal is
// outstanding.
func (g *Greeter) ProposalID() uuid.UUID {
	if !g.hasProposal {
		return uuid.UUID{}
	}
	return g.proposalID
}

func diffMembers(prev, next []string) (toInclude, toExclude []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, m := range prev {
		prevSet[m] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, m := range next {
		nextSet[m] = struct{}{}
	}
	for _, m := range next {
		if _, ok := prevSet[m]; !ok {
			toInclude = append(toInclude, m)
		}
	}
	for _, m := range prev {
		if _, ok := nextSet[m]; !ok {
			toExclude = append(toExclude, m)
		}
	}
	return toInclude, toExclude
}

// Encode constructs the initial Greet message for a membership operation
// that moves the channel from its last completed membership to newMembers,
// attaches metadata, signs with the fresh Greeting's ephemeral key, and
// caches the payload hash to match against the channel's echo (spec §4.6).
//
// newMembers == the last completed membership's set (no additions or
// removals) proposes a key refresh. Simultaneous additions and removals
// are rejected: run them as two sequential operations instead.
func (g *Greeter) Encode(newMembers []string, metadata *greet.Metadata) (string, error) {
	gr, err := greeting.New(g.self, g.staticPriv, g.dir, g.store)
	if err != nil {
		return "", err
	}

	var msg *greet.Message
	if g.store.State == greetstore.StateNull {
		others := make([]string, 0, len(newMembers))
		for _, m := range newMembers {
			if m != g.self {
				others = append(others, m)
			}
		}
		msg, err = gr.Start(others)
	} else {
		toInclude, toExclude := diffMembers(g.store.Members, newMembers)
		switch {
		case len(toInclude) > 0 && len(toExclude) > 0:
			return "", ErrMixedOperation
		case len(toInclude) > 0:
			msg, err = gr.Include(toInclude)
		case len(toExclude) > 0:
			msg, err = gr.Exclude(toExclude)
		default:
			msg, err = gr.Refresh()
		}
	}
	if err != nil {
		return "", err
	}
	if msg == nil {
		// Exclude reduced membership to self alone: the Greeting already
		// transitioned to QUIT with nothing to broadcast.
		g.current = gr
		g.proposed = nil
		g.hasProposal = false
		return "", nil
	}

	if metadata != nil {
		msg.Metadata = metadata
	}

	pubtxt := greet.Encode(gr.SigningKey(), msg)
	hash, err := greet.PayloadHash(pubtxt)
	if err != nil {
		return "", err
	}

	g.proposed = gr
	g.proposalHash = hash
	g.proposalID = uuid.New()
	g.hasProposal = true
	// A proposedGreeting and a currentGreeting may coexist momentarily
	// (spec §5); absent a race with an inbound packet for a different
	// operation, they are the same instance until the echo reconciles
	// them below.
	g.current = gr

	return pubtxt, nil
}

// InProgress reports whether state belongs to a Greeting that is actively
// stepping through a membership operation, as opposed to one that has not
// started, has finished, or has quit.
func InProgress(state greetstore.State) bool {
	switch state {
	case greetstore.StateInitUpflow, greetstore.StateInitDownflow,
		greetstore.StateAuxUpflow, greetstore.StateAuxDownflow:
		return true
	default:
		return false
	}
}

// Decode resolves the Greeting that should process pubtxt: the cached
// proposedGreeting if pubtxt is this Greeter's own proposal echoed back by
// the channel, a fresh Greeting referencing the last completed GreetStore
// if it originates elsewhere, or nil if it is an unrecognized echo of this
// Greeter's own prior traffic. It then drives that Greeting's processing
// step and, on reaching READY, adopts the result as the new GreetStore
// (spec §4.6).
func (g *Greeter) Decode(pubtxt string, from string, channelMembers []string) (*greet.Message, error) {
	if from != g.self {
		found := false
		for _, m := range channelMembers {
			if m == from {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrNotAChannelMember
		}
	}

	hash, err := greet.PayloadHash(pubtxt)
	if err != nil {
		return nil, err
	}

	fallback := func(source string) (ed25519.PublicKey, bool) {
		return g.store.EphemeralPubKeyFor(source)
	}
	msg, err := greet.Decode(pubtxt, fallback)
	if err != nil {
		return nil, err
	}

	var gr *greeting.Greeting
	switch {
	case g.hasProposal && hash == g.proposalHash:
		gr = g.proposed
		g.hasProposal = false
		g.proposed = nil
		g.current = gr
	case g.current != nil && InProgress(g.current.State()):
		// A later packet of the operation already under way — whether
		// self-initiated or not, it continues the same Greeting.
		gr = g.current
	case from != g.self:
		gr, err = greeting.New(g.self, g.staticPriv, g.dir, g.store)
		if err != nil {
			return nil, err
		}
		g.current = gr
	default:
		// Our own pubtxt, echoed back, but matching neither a live
		// proposal nor an in-progress operation: a stale retransmit.
		return nil, nil
	}

	out, err := gr.ProcessMessage(msg)
	if err != nil {
		return nil, err
	}
	if gr.State() == greetstore.StateReady {
		g.store = gr.Result
	}
	return out, nil
}

// PacketID computes the channel-wide identifier of one transmitted packet
// (spec §4.6): SHA-256(sender ‖ "\n" ‖ other-channel-members joined by
// "\n" ‖ "\n\n" ‖ payload), where payload is pubtxt's decoded record
// stream.
func PacketID(sender string, channelMembers []string, pubtxt string) ([32]byte, error) {
	raw, err := decodedPayload(pubtxt)
	if err != nil {
		return [32]byte{}, err
	}

	others := make([]string, 0, len(channelMembers))
	for _, m := range channelMembers {
		if m != sender {
			others = append(others, m)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(sender)
	buf.WriteString("\n")
	buf.WriteString(strings.Join(others, "\n"))
	buf.WriteString("\n\n")
	buf.Write(raw)
	return sha256.Sum256(buf.Bytes()), nil
}

func decodedPayload(pubtxt string) ([]byte, error) {
	raw, ok := wire.DecodeFrame(pubtxt)
	if !ok {
		return nil, wire.ErrMalformed
	}
	return raw, nil
}
