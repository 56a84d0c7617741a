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

// Package aske implements the Authenticated Signature Key Exchange (spec
// §4.3): per-member ephemeral Ed25519 signing keys, a joint session id
// binding the member set to their nonces, and RSA-signed session
// acknowledgements authenticated against each member's static key.
package aske

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/sage-x-project/mpenc/identity"
)

// Errors matching spec §7.
var (
	ErrEmptyMembers    = errors.New("aske: member list must not be empty")
	ErrDuplicateMember = errors.New("aske: duplicate member in list")
	ErrNotAMember      = errors.New("aske: self is not present in member list")
	ErrWrongFlowStage  = errors.New("aske: message does not match current stage")
	ErrBadSignature    = errors.New("aske: session signature does not verify")
	ErrUnknownSigner   = errors.New("aske: no static public key on file for signer")
)

// sessionSigPrefix domain-separates the RSA session-acknowledgement
// signature from any other use of a member's static key.
const sessionSigPrefix = "sessionsig"

// Flow distinguishes an upflow (sequential) message from a downflow
// (broadcast) one, mirroring cliques.Flow.
type Flow int

const (
	FlowUp Flow = iota
	FlowDown
)

// Message is the ASKE sub-message exchanged between members, carried
// inside a Greet message's NONCE/PUB_KEY/SESSION_SIGNATURE fields.
type Message struct {
	Source           string
	Dest             string // "" for broadcast (downflow)
	Flow             Flow
	Members          []string
	Nonces           [][32]byte
	PubKeys          []ed25519.PublicKey
	SessionID        []byte
	SessionSignature []byte // present only on a downflow, signed by Source
}

// Member holds one participant's ASKE state.
type Member struct {
	ID                   string
	Members              []string
	Nonce                [32]byte
	EphemeralPriv        ed25519.PrivateKey
	EphemeralPub         ed25519.PublicKey
	Nonces               [][32]byte
	EphemeralPubKeys     []ed25519.PublicKey
	SessionID            []byte
	AuthenticatedMembers map[string]struct{}

	StaticPriv     *rsa.PrivateKey
	StaticPubKeys  identity.Directory
}

// New returns an empty Member identified by id, using priv to sign session
// acknowledgements and dir to verify others' session acknowledgements.
func New(id string, priv *rsa.PrivateKey, dir identity.Directory) (*Member, error) {
	if id == "" || priv == nil || dir == nil {
		return nil, fmt.Errorf("aske: %w", identity.ErrConstructorMisuse)
	}
	return &Member{
		ID:                   id,
		StaticPriv:           priv,
		StaticPubKeys:        dir,
		AuthenticatedMembers: make(map[string]struct{}),
	}, nil
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

func indexOf(list []string, id string) int {
	for i, m := range list {
		if m == id {
			return i
		}
	}
	return -1
}

// rotate reseats list to start at pos, wrapping the prefix to the end.
// Join uses this to restart its chain at the caller's own position so the
// member list it builds stays positionally aligned with cliques.AkaJoin's
// equivalent rotation over the same member set.
func rotate(list []string, pos int) []string {
	out := make([]string, 0, len(list))
	out = append(out, list[pos:]...)
	out = append(out, list[:pos]...)
	return out
}

func freshNonce() ([32]byte, error) {
	var n [32]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("aske: reading random nonce: %w", err)
	}
	return n, nil
}

func freshEphemeralKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("aske: generating ephemeral keypair: %w", err)
	}
	return pub, priv, nil
}

// computeSessionID is the set-valued deterministic hash of all members'
// ids concatenated with their nonces, sorted by id, SHA-256 (spec §3).
func computeSessionID(members []string, nonces map[string][32]byte) []byte {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		n := nonces[id]
		h.Write(n[:])
	}
	return h.Sum(nil)
}

func sessionSigMessage(signer string, ephemeralPub ed25519.PublicKey, sessionID []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(sessionSigPrefix)
	buf.WriteString(signer)
	buf.Write(ephemeralPub)
	buf.Write(sessionID)
	return buf.Bytes()
}

func signSession(priv *rsa.PrivateKey, signer string, ephemeralPub ed25519.PublicKey, sessionID []byte) ([]byte, error) {
	hashed := sha256.Sum256(sessionSigMessage(signer, ephemeralPub, sessionID))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, fmt.Errorf("aske: signing session acknowledgement: %w", err)
	}
	return sig, nil
}

func verifySession(pub *rsa.PublicKey, signer string, ephemeralPub ed25519.PublicKey, sessionID, sig []byte) error {
	hashed := sha256.Sum256(sessionSigMessage(signer, ephemeralPub, sessionID))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

// Commit initializes empty nonce/pubkey state and starts an upflow
// addressed to the chained member list [self, others...].
func (m *Member) Commit(others []string) (*Message, error) {
	if len(others) == 0 {
		return nil, ErrEmptyMembers
	}
	members := append([]string{m.ID}, others...)
	if hasDuplicates(members) {
		return nil, ErrDuplicateMember
	}
	m.Members = members
	m.Nonces = nil
	m.EphemeralPubKeys = nil
	m.SessionID = nil
	m.AuthenticatedMembers = make(map[string]struct{})

	return m.Upflow(&Message{
		Source:  "",
		Dest:    m.ID,
		Flow:    FlowUp,
		Members: members,
	})
}

// Upflow processes an inbound upflow message: generates a fresh nonce and
// ephemeral signing keypair, appends both. If self is last, computes the
// session id, signs a session acknowledgement, and broadcasts a downflow
// carrying every nonce and public key. Otherwise forwards to the next
// member in the chain.
func (m *Member) Upflow(msg *Message) (*Message, error) {
	if hasDuplicates(msg.Members) {
		return nil, ErrDuplicateMember
	}
	pos := indexOf(msg.Members, m.ID)
	if pos < 0 {
		return nil, ErrNotAMember
	}
	if len(msg.Nonces) != pos || len(msg.PubKeys) != pos {
		return nil, fmt.Errorf("%w: expected %d nonces/pubkeys, got %d/%d", ErrWrongFlowStage, pos, len(msg.Nonces), len(msg.PubKeys))
	}

	nonce, err := freshNonce()
	if err != nil {
		return nil, err
	}
	pub, priv, err := freshEphemeralKeyPair()
	if err != nil {
		return nil, err
	}

	m.Members = msg.Members
	m.Nonce = nonce
	m.EphemeralPriv = priv
	m.EphemeralPub = pub
	// A new upflow starts a new session: acknowledgements recorded for
	// the previous session do not carry over.
	m.AuthenticatedMembers = make(map[string]struct{})

	nonces := append(append([][32]byte{}, msg.Nonces...), nonce)
	pubKeys := append(append([]ed25519.PublicKey{}, msg.PubKeys...), pub)
	m.Nonces = nonces
	m.EphemeralPubKeys = pubKeys

	if pos == len(msg.Members)-1 {
		byID := make(map[string][32]byte, len(msg.Members))
		for i, id := range msg.Members {
			byID[id] = nonces[i]
		}
		sessionID := computeSessionID(msg.Members, byID)
		m.SessionID = sessionID

		sig, err := signSession(m.StaticPriv, m.ID, pub, sessionID)
		if err != nil {
			return nil, err
		}
		m.AuthenticatedMembers[m.ID] = struct{}{}

		return &Message{
			Source:           m.ID,
			Dest:             "",
			Flow:              FlowDown,
			Members:           msg.Members,
			Nonces:            nonces,
			PubKeys:           pubKeys,
			SessionID:         sessionID,
			SessionSignature:  sig,
		}, nil
	}

	return &Message{
		Source:  m.ID,
		Dest:    msg.Members[pos+1],
		Flow:    FlowUp,
		Members: msg.Members,
		Nonces:  nonces,
		PubKeys: pubKeys,
	}, nil
}

// Downflow verifies the sender's session signature, records the sender as
// authenticated, and — if self is not yet authenticated — appends its own
// session signature and re-broadcasts. Fully authenticated downflows are
// consumed silently (return nil, nil).
func (m *Member) Downflow(msg *Message) (*Message, error) {
	if hasDuplicates(msg.Members) {
		return nil, ErrDuplicateMember
	}
	pos := indexOf(msg.Members, m.ID)
	if pos < 0 {
		return nil, ErrNotAMember
	}
	if len(msg.Nonces) != len(msg.Members) || len(msg.PubKeys) != len(msg.Members) {
		return nil, fmt.Errorf("%w: incomplete nonce/pubkey vector", ErrWrongFlowStage)
	}

	m.Members = msg.Members
	m.Nonces = msg.Nonces
	m.EphemeralPubKeys = msg.PubKeys

	// The session id is never put on the wire; every member recomputes
	// it locally from the (authenticated-by-signature) member/nonce
	// vector the downflow carries.
	byID := make(map[string][32]byte, len(msg.Members))
	for i, id := range msg.Members {
		byID[id] = msg.Nonces[i]
	}
	sessionID := computeSessionID(msg.Members, byID)
	m.SessionID = sessionID

	signerPos := indexOf(msg.Members, msg.Source)
	if signerPos < 0 {
		return nil, ErrNotAMember
	}
	signerPub, ok := m.StaticPubKeys.Lookup(msg.Source)
	if !ok {
		return nil, ErrUnknownSigner
	}
	if err := verifySession(signerPub, msg.Source, msg.PubKeys[signerPos], sessionID, msg.SessionSignature); err != nil {
		return nil, err
	}
	m.AuthenticatedMembers[msg.Source] = struct{}{}

	if _, already := m.AuthenticatedMembers[m.ID]; already {
		return nil, nil
	}

	sig, err := signSession(m.StaticPriv, m.ID, m.EphemeralPub, sessionID)
	if err != nil {
		return nil, err
	}
	m.AuthenticatedMembers[m.ID] = struct{}{}

	return &Message{
		Source:           m.ID,
		Dest:             "",
		Flow:             FlowDown,
		Members:          msg.Members,
		Nonces:           msg.Nonces,
		PubKeys:          msg.PubKeys,
		SessionID:        sessionID,
		SessionSignature: sig,
	}, nil
}

// IsSessionAcknowledged reports whether every member has been recorded as
// authenticated.
func (m *Member) IsSessionAcknowledged() bool {
	for _, id := range m.Members {
		if _, ok := m.AuthenticatedMembers[id]; !ok {
			return false
		}
	}
	return len(m.Members) > 0
}

// YetToAuthenticate returns members \ authenticatedMembers.
func (m *Member) YetToAuthenticate() []string {
	var pending []string
	for _, id := range m.Members {
		if _, ok := m.AuthenticatedMembers[id]; !ok {
			pending = append(pending, id)
		}
	}
	return pending
}

// Join restarts the nonce/ephemeral-key chain across the existing members
// (rotated to put the caller first, keeping this Member's list positionally
// aligned with cliques.AkaJoin's equivalent rotation over the same set)
// followed by the new members, the same way Commit starts the very first
// chain: every member generates a fresh nonce and ephemeral keypair as the
// chain reaches it.
func (m *Member) Join(newMembers []string) (*Message, error) {
	if len(newMembers) == 0 {
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
	m.SessionID = nil
	m.AuthenticatedMembers = make(map[string]struct{})

	return m.Upflow(&Message{
		Source:  "",
		Dest:    m.ID,
		Flow:    FlowUp,
		Members: members,
	})
}

// Exclude removes gone from the member list, recomputes the session id
// over the kept members' existing nonces, and rebroadcasts a new session
// acknowledgement.
func (m *Member) Exclude(gone []string) (*Message, error) {
	if len(gone) == 0 {
		return nil, ErrEmptyMembers
	}
	goneSet := make(map[string]struct{}, len(gone))
	for _, g := range gone {
		goneSet[g] = struct{}{}
	}

	var remaining []string
	var nonces [][32]byte
	var pubKeys []ed25519.PublicKey
	for i, id := range m.Members {
		if _, excluded := goneSet[id]; excluded {
			continue
		}
		remaining = append(remaining, id)
		nonces = append(nonces, m.Nonces[i])
		pubKeys = append(pubKeys, m.EphemeralPubKeys[i])
	}
	m.Members = remaining
	m.Nonces = nonces
	m.EphemeralPubKeys = pubKeys
	m.AuthenticatedMembers = make(map[string]struct{})

	byID := make(map[string][32]byte, len(remaining))
	for i, id := range remaining {
		byID[id] = nonces[i]
	}
	sessionID := computeSessionID(remaining, byID)
	m.SessionID = sessionID

	sig, err := signSession(m.StaticPriv, m.ID, m.EphemeralPub, sessionID)
	if err != nil {
		return nil, err
	}
	m.AuthenticatedMembers[m.ID] = struct{}{}

	return &Message{
		Source:           m.ID,
		Dest:             "",
		Flow:              FlowDown,
		Members:           remaining,
		Nonces:            nonces,
		PubKeys:           pubKeys,
		SessionID:         sessionID,
		SessionSignature:  sig,
	}, nil
}

// Quit returns this member's ephemeral private key (the wire SIGNING_KEY
// field) so that past signatures remain auditable, then zeroes local
// state.
func (m *Member) Quit() ed25519.PrivateKey {
	priv := m.EphemeralPriv
	m.Nonce = [32]byte{}
	m.EphemeralPriv = nil
	m.EphemeralPub = nil
	m.Nonces = nil
	m.EphemeralPubKeys = nil
	m.SessionID = nil
	m.AuthenticatedMembers = make(map[string]struct{})
	return priv
}
