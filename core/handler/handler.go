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

// Package handler is the top-level mpENC engine surface (spec §4.8): three
// FIFO queues, frame classification, and the public start/join/exclude/
// refresh/quit/send/processMessage operations gating on protocol state.
package handler

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/sage-x-project/mpenc/core/greet"
	"github.com/sage-x-project/mpenc/core/greeter"
	"github.com/sage-x-project/mpenc/core/greeting"
	"github.com/sage-x-project/mpenc/core/greetstore"
	"github.com/sage-x-project/mpenc/core/message"
	"github.com/sage-x-project/mpenc/identity"
	"github.com/sage-x-project/mpenc/internal/logger"
	"github.com/sage-x-project/mpenc/wire"
)

// Errors matching spec §7.
var (
	ErrIllegalCaller = errors.New("handler: caller action invoked in wrong state")
)

// EventType tags a UI queue entry (spec §4.8).
type EventType string

const (
	EventMessage EventType = "message"
	EventInfo    EventType = "info"
	EventError   EventType = "error"
)

// Event is one entry enqueued to the UI queue.
type Event struct {
	Type    EventType
	Message string
	From    string
}

// protocolVersion is this implementation's single supported wire version
// (spec §6: "<protoByte> is a single ASCII character whose code is the
// protocol version").
const protocolVersion byte = 1

// Handler owns the three outbound queues and drives a Greeter through one
// identity's membership and data-message lifecycle.
type Handler struct {
	self       string
	staticPriv *rsa.PrivateKey
	dir        identity.Directory
	greeter    *greeter.Greeter
	pad        int

	lastSent []byte // digest of this identity's most recent sent data message, chained as MESSAGE_PARENT

	ProtocolOutQueue []string
	MessageOutQueue  []string
	UIQueue          []Event
}

// New constructs a Handler for self, padding data-message plaintext to a
// multiple of pad bytes (0 disables padding).
func New(self string, staticPriv *rsa.PrivateKey, dir identity.Directory, pad int) *Handler {
	return &Handler{
		self:       self,
		staticPriv: staticPriv,
		dir:        dir,
		greeter:    greeter.New(self, staticPriv, dir),
		pad:        pad,
	}
}

// State reports the engine's current greeting-state-machine state: the
// in-progress operation's state if one is under way, otherwise the last
// completed GreetStore's state (NULL before any operation has run).
func (h *Handler) State() greetstore.State {
	if cur := h.greeter.Current(); cur != nil && greeter.InProgress(cur.State()) {
		return cur.State()
	}
	return h.greeter.Store().State
}

func (h *Handler) info(text string) {
	h.UIQueue = append(h.UIQueue, Event{Type: EventInfo, Message: text})
}

func (h *Handler) uiError(text string) {
	h.UIQueue = append(h.UIQueue, Event{Type: EventError, Message: text})
}

// Start begins a new session with others from state NULL.
func (h *Handler) Start(others []string) error {
	if h.State() != greetstore.StateNull {
		return fmt.Errorf("%w: start requires NULL, have %v", ErrIllegalCaller, h.State())
	}
	return h.encodeAndQueue(append([]string{h.self}, others...), &greet.Metadata{Author: h.self})
}

// Join admits newMembers into the current session from state READY.
func (h *Handler) Join(newMembers []string) error {
	if h.State() != greetstore.StateReady {
		return fmt.Errorf("%w: join requires READY, have %v", ErrIllegalCaller, h.State())
	}
	target := append(append([]string{}, h.greeter.Store().Members...), newMembers...)
	return h.encodeAndQueue(target, nil)
}

// Exclude removes gone from the current session from state READY.
func (h *Handler) Exclude(gone []string) error {
	if h.State() != greetstore.StateReady {
		return fmt.Errorf("%w: exclude requires READY, have %v", ErrIllegalCaller, h.State())
	}
	goneSet := make(map[string]struct{}, len(gone))
	for _, id := range gone {
		goneSet[id] = struct{}{}
	}
	var target []string
	for _, id := range h.greeter.Store().Members {
		if _, excluded := goneSet[id]; !excluded {
			target = append(target, id)
		}
	}
	return h.encodeAndQueue(target, nil)
}

// Refresh picks a fresh group key for the current, unchanged membership
// from state READY.
func (h *Handler) Refresh() error {
	if h.State() != greetstore.StateReady {
		return fmt.Errorf("%w: refresh requires READY, have %v", ErrIllegalCaller, h.State())
	}
	return h.encodeAndQueue(append([]string{}, h.greeter.Store().Members...), nil)
}

func (h *Handler) encodeAndQueue(targetMembers []string, metadata *greet.Metadata) error {
	pubtxt, err := h.greeter.Encode(targetMembers, metadata)
	if err != nil {
		return err
	}
	if pubtxt != "" {
		h.ProtocolOutQueue = append(h.ProtocolOutQueue, pubtxt)
	}
	return nil
}

// Quit leaves the session from state READY, publishing the ephemeral
// signing key so past signatures remain auditable (spec §4.3, §5).
func (h *Handler) Quit() error {
	if h.State() != greetstore.StateReady {
		return fmt.Errorf("%w: quit requires READY, have %v", ErrIllegalCaller, h.State())
	}
	cur := h.greeter.Current()
	if cur == nil {
		var err error
		cur, err = greeting.New(h.self, h.staticPriv, h.dir, h.greeter.Store())
		if err != nil {
			return err
		}
	}
	msg, err := cur.Quit()
	if err != nil {
		return err
	}
	h.ProtocolOutQueue = append(h.ProtocolOutQueue, greet.Encode(ed25519.PrivateKey(msg.SigningKey), msg))
	return nil
}

// Send authenticates and encrypts body for the current session's members,
// chaining it from this identity's previously sent message, from state
// READY.
func (h *Handler) Send(body string) error {
	if h.State() != greetstore.StateReady {
		return fmt.Errorf("%w: send requires READY, have %v", ErrIllegalCaller, h.State())
	}
	sec, err := message.New(h.greeter.Store(), h.pad)
	if err != nil {
		return err
	}
	var parents [][]byte
	if h.lastSent != nil {
		parents = [][]byte{h.lastSent}
	}
	pubtxt, err := sec.AuthEncrypt(parents, body)
	if err != nil {
		return err
	}
	digest := sha256.Sum256([]byte(pubtxt))
	h.lastSent = digest[:]
	h.MessageOutQueue = append(h.MessageOutQueue, pubtxt)
	return nil
}

// ProcessMessage categorizes one inbound frame from sender `from` and acts
// on it per the table in spec §4.8. channelMembers is the broadcast
// channel's current roster, used by the Greeter to validate greet-message
// provenance.
func (h *Handler) ProcessMessage(from, frameText string, channelMembers []string) error {
	switch {
	case wire.IsError(frameText):
		_, text, ok := wire.DecodeError(frameText)
		if !ok {
			return fmt.Errorf("%w: malformed error frame", wire.ErrMalformed)
		}
		h.uiError("Error in mpEnc protocol: " + text)
		return nil

	case wire.IsQuery(frameText):
		if h.State() == greetstore.StateNull {
			return h.Start(channelOthers(h.self, channelMembers))
		}
		return nil

	case wire.IsFrame(frameText):
		return h.processFrame(from, frameText, channelMembers)

	default:
		h.info("Received unencrypted message, requesting encryption.")
		h.ProtocolOutQueue = append(h.ProtocolOutQueue, wire.EncodeQuery(protocolVersion, ""))
		return nil
	}
}

func (h *Handler) processFrame(from, frameText string, channelMembers []string) error {
	raw, ok := wire.DecodeFrame(frameText)
	if !ok {
		return fmt.Errorf("%w: not an mpENC frame", wire.ErrMalformed)
	}
	kind, err := wire.ClassifyFrame(raw)
	if err != nil {
		h.uiError("Error in mpEnc protocol: " + err.Error())
		return nil
	}

	switch kind {
	case wire.MessageTypeGreet:
		before := h.State()
		out, err := h.greeter.Decode(frameText, from, channelMembers)
		if err != nil {
			logger.Warn("rejected inbound greet message", logger.String("from", from), logger.Error(err))
			h.uiError("Error in mpEnc protocol: " + err.Error())
			return nil
		}
		if after := h.State(); after != before {
			logger.Info("greeting state transition", logger.String("from_state", stateName(before)), logger.String("to_state", stateName(after)))
		}
		if out != nil {
			cur := h.greeter.Current()
			h.ProtocolOutQueue = append(h.ProtocolOutQueue, greet.Encode(cur.SigningKey(), out))
		}
		return nil

	case wire.MessageTypeData:
		if h.State() != greetstore.StateReady {
			h.uiError("Received a data message outside a READY session.")
			return nil
		}
		sec, err := message.New(h.greeter.Store(), h.pad)
		if err != nil {
			return err
		}
		decoded, err := sec.DecryptVerify(frameText, from)
		if err != nil {
			if errors.Is(err, message.ErrBadSignature) {
				logger.Warn("bad signature on inbound data message", logger.String("from", from))
				h.uiError("Signature of received message invalid.")
				return nil
			}
			logger.Warn("malformed inbound data message", logger.String("from", from), logger.Error(err))
			h.uiError("Error in mpEnc protocol: " + err.Error())
			return nil
		}
		h.UIQueue = append(h.UIQueue, Event{Type: EventMessage, Message: decoded.Body, From: decoded.Author})
		return nil

	default:
		return fmt.Errorf("%w: unknown message type %#02x", wire.ErrMalformed, byte(kind))
	}
}

func stateName(s greetstore.State) string {
	switch s {
	case greetstore.StateNull:
		return "NULL"
	case greetstore.StateInitUpflow:
		return "INIT_UPFLOW"
	case greetstore.StateInitDownflow:
		return "INIT_DOWNFLOW"
	case greetstore.StateReady:
		return "READY"
	case greetstore.StateAuxUpflow:
		return "AUX_UPFLOW"
	case greetstore.StateAuxDownflow:
		return "AUX_DOWNFLOW"
	case greetstore.StateQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

func channelOthers(self string, channelMembers []string) []string {
	others := make([]string, 0, len(channelMembers))
	for _, m := range channelMembers {
		if m != self {
			others = append(others, m)
		}
	}
	return others
}
