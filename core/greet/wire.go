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

package greet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sage-x-project/mpenc/wire"
)

// ErrBadSignature is returned by Decode when the detached signature over a
// Greet payload fails verification.
var ErrBadSignature = errors.New("greet: signature invalid")

// ErrUnknownSigner is returned by Decode when no public key can be
// resolved for the message's source, inline or via fallback.
var ErrUnknownSigner = errors.New("greet: no public key available for signer")

func encodeFields(m *Message) []byte {
	var out []byte
	out = wire.EncodeRecord(out, wire.TypeProtocolVersion, []byte{1})
	out = wire.EncodeRecord(out, wire.TypeMessageType, []byte{byte(wire.MessageTypeGreet)})
	out = wire.EncodeRecord(out, wire.TypeSource, []byte(m.Source))
	if m.Dest != "" {
		out = wire.EncodeRecord(out, wire.TypeDest, []byte(m.Dest))
	}
	var typeBuf [2]byte
	binary.BigEndian.PutUint16(typeBuf[:], uint16(m.Type))
	out = wire.EncodeRecord(out, wire.TypeGreetType, typeBuf[:])

	for _, member := range m.Members {
		out = wire.EncodeRecord(out, wire.TypeMember, []byte(member))
	}
	for _, k := range m.IntKeys {
		out = wire.EncodeRecord(out, wire.TypeIntKey, k)
	}
	for _, n := range m.Nonces {
		out = wire.EncodeRecord(out, wire.TypeNonce, n)
	}
	for _, pk := range m.PubKeys {
		out = wire.EncodeRecord(out, wire.TypePubKey, pk)
	}
	if len(m.SessionSignature) > 0 {
		out = wire.EncodeRecord(out, wire.TypeSessionSignature, m.SessionSignature)
	}
	if len(m.SigningKey) > 0 {
		out = wire.EncodeRecord(out, wire.TypeSigningKey, m.SigningKey)
	}
	if md := m.Metadata; md != nil {
		if len(md.PrevPf) > 0 {
			out = wire.EncodeRecord(out, wire.TypePrevPf, md.PrevPf)
		}
		if len(md.PrevChainHash) > 0 {
			out = wire.EncodeRecord(out, wire.TypeChainHash, md.PrevChainHash)
		}
		if md.Author != "" {
			out = wire.EncodeRecord(out, wire.TypeMetaAuthor, []byte(md.Author))
		}
		for _, p := range md.Parents {
			out = wire.EncodeRecord(out, wire.TypeMessageParent, p)
		}
	}
	return out
}

func decodeFields(content []byte) (*Message, error) {
	d, err := wire.NewDecoder(content)
	if err != nil {
		return nil, err
	}
	if _, err := d.Pop(wire.TypeProtocolVersion); err != nil {
		return nil, err
	}
	msgType, err := d.Pop(wire.TypeMessageType)
	if err != nil {
		return nil, err
	}
	if len(msgType) != 1 || wire.MessageType(msgType[0]) != wire.MessageTypeGreet {
		return nil, fmt.Errorf("%w: not a greet message", wire.ErrMalformed)
	}
	source, err := d.Pop(wire.TypeSource)
	if err != nil {
		return nil, err
	}
	dest, _ := d.PopMaybe(wire.TypeDest)
	typeBytes, err := d.Pop(wire.TypeGreetType)
	if err != nil {
		return nil, err
	}
	if len(typeBytes) != 2 {
		return nil, fmt.Errorf("%w: greet-type record is not 2 bytes", wire.ErrMalformed)
	}

	m := &Message{
		Source: string(source),
		Dest:   string(dest),
		Type:   Type(binary.BigEndian.Uint16(typeBytes)),
	}

	for _, rec := range d.PopAll(wire.TypeMember) {
		m.Members = append(m.Members, string(rec))
	}
	m.IntKeys = d.PopAll(wire.TypeIntKey)
	m.Nonces = d.PopAll(wire.TypeNonce)
	m.PubKeys = d.PopAll(wire.TypePubKey)

	if sig, ok := d.PopMaybe(wire.TypeSessionSignature); ok {
		m.SessionSignature = sig
	}
	if key, ok := d.PopMaybe(wire.TypeSigningKey); ok {
		m.SigningKey = key
	}

	var md Metadata
	hasMetadata := false
	if pf, ok := d.PopMaybe(wire.TypePrevPf); ok {
		md.PrevPf = pf
		hasMetadata = true
	}
	if ch, ok := d.PopMaybe(wire.TypeChainHash); ok {
		md.PrevChainHash = ch
		hasMetadata = true
	}
	if author, ok := d.PopMaybe(wire.TypeMetaAuthor); ok {
		md.Author = string(author)
		hasMetadata = true
	}
	if parents := d.PopAll(wire.TypeMessageParent); len(parents) > 0 {
		md.Parents = parents
		hasMetadata = true
	}
	if hasMetadata {
		m.Metadata = &md
	}

	return m, nil
}

func signInput(content []byte) []byte {
	return append(append([]byte{}, wire.SigPrefixGreet...), content...)
}

// Encode serializes m, signs the encoded fields with priv under the
// "greetmsgsig" domain (spec §4.1), and frames the result as an
// "?mpENC:" pubtxt string.
func Encode(priv ed25519.PrivateKey, m *Message) string {
	content := encodeFields(m)
	sig := ed25519.Sign(priv, signInput(content))

	var out []byte
	out = wire.EncodeRecord(out, wire.TypeMessageSignature, sig)
	out = append(out, content...)
	return wire.EncodeFrame(out)
}

// Decode reverses Encode and verifies the detached signature. The signer's
// public key is resolved first from the message's own inline Members/
// PubKeys (true for every message a Greeting emits while still carrying
// ASKE content), falling back to fallbackPubKeyFor(source) — typically a
// lookup into the previous GreetStore — for AKA_REFRESH broadcasts, which
// carry no PubKeys of their own.
func Decode(pubtxt string, fallbackPubKeyFor func(source string) (ed25519.PublicKey, bool)) (*Message, error) {
	raw, ok := wire.DecodeFrame(pubtxt)
	if !ok {
		return nil, fmt.Errorf("%w: not an mpENC frame", wire.ErrMalformed)
	}
	d, err := wire.NewDecoder(raw)
	if err != nil {
		return nil, err
	}
	sig, err := d.Pop(wire.TypeMessageSignature)
	if err != nil {
		return nil, err
	}
	content := d.Rest()

	m, err := decodeFields(content)
	if err != nil {
		return nil, err
	}

	var pub ed25519.PublicKey
	pos := indexOf(m.Members, m.Source)
	if pos >= 0 && pos < len(m.PubKeys) {
		pub = ed25519.PublicKey(m.PubKeys[pos])
	} else if fallbackPubKeyFor != nil {
		if p, ok := fallbackPubKeyFor(m.Source); ok {
			pub = p
		}
	}
	if pub == nil {
		return nil, ErrUnknownSigner
	}
	if !ed25519.Verify(pub, signInput(content), sig) {
		return nil, ErrBadSignature
	}

	return m, nil
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

// DecodeUnverified parses pubtxt's fields without checking the detached
// signature. Intended for a transport or handler that needs routing
// information (Source/Dest) before dispatching to the party that performs
// the authenticated Decode.
func DecodeUnverified(pubtxt string) (*Message, error) {
	raw, ok := wire.DecodeFrame(pubtxt)
	if !ok {
		return nil, fmt.Errorf("%w: not an mpENC frame", wire.ErrMalformed)
	}
	d, err := wire.NewDecoder(raw)
	if err != nil {
		return nil, err
	}
	if _, err := d.Pop(wire.TypeMessageSignature); err != nil {
		return nil, err
	}
	return decodeFields(d.Rest())
}

// PayloadHash computes the SHA-256 of pubtxt's decoded record stream, used
// by the Greeter to match a locally proposed operation against its echo
// and to derive packet ids (spec §4.6).
func PayloadHash(pubtxt string) ([32]byte, error) {
	raw, ok := wire.DecodeFrame(pubtxt)
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: not an mpENC frame", wire.ErrMalformed)
	}
	return sha256.Sum256(raw), nil
}
