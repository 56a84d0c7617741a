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

// Package message implements authenticated data-message security (spec
// §4.7): authEncrypt encrypts a payload under a completed session's group
// key and then signs the encrypted package with the sender's ephemeral
// signing key; decryptVerify checks that signature against the claimed
// author and then decrypts.
package message

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sage-x-project/mpenc/core/greetstore"
	"github.com/sage-x-project/mpenc/wire"
)

// Errors matching spec §7.
var (
	ErrUnknownAuthor = errors.New("message: no ephemeral public key on file for author")
	ErrBadSignature  = errors.New("message: signature of received message invalid")
	ErrNotReady      = errors.New("message: session is not READY")
)

// groupKeyLen is the AES-128 key size sliced from the front of the group
// key (spec §4.7: "key = groupKey[0..16]").
const groupKeyLen = 16

// nonceLen is the random portion of the AES-CTR IV; the remaining 4 bytes
// are a zero counter prefix (spec §6).
const nonceLen = 12

// Decoded is the result of a successful decryptVerify.
type Decoded struct {
	Author  string
	Parents [][]byte
	Readers []string
	Body    string
}

// Security wraps a READY GreetStore and a padding size P (0 disables
// padding) to authenticate and encrypt/decrypt data-message payloads.
type Security struct {
	store *greetstore.Store
	pad   int
}

// New returns a Security bound to store, padding plaintext to the next
// multiple of pad bytes (0 disables padding). Fails if store is not READY.
func New(store *greetstore.Store, pad int) (*Security, error) {
	if store.State != greetstore.StateReady {
		return nil, ErrNotReady
	}
	return &Security{store: store, pad: pad}, nil
}

func sidkeyHash(sessionID, groupKey []byte) [32]byte {
	h := sha256.New()
	h.Write(sessionID)
	h.Write(groupKey)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// paddedLen returns the next power-of-two multiple of pad at least as big
// as n (spec §4.7); pad<=0 disables padding.
func paddedLen(n, pad int) int {
	if pad <= 0 {
		return n
	}
	size := pad
	for size < n {
		size *= 2
	}
	return size
}

// AuthEncrypt signs and encrypts a data-message payload carrying parents
// and body, addressed to the session's current members.
func (s *Security) AuthEncrypt(parents [][]byte, body string) (string, error) {
	sidHash := sidkeyHash(s.store.SessionID, s.store.GroupKey)

	var cleartext []byte
	for _, p := range parents {
		cleartext = wire.EncodeRecord(cleartext, wire.TypeMessageParent, p)
	}
	cleartext = wire.EncodeRecord(cleartext, wire.TypeMessageBody, []byte(body))

	var lenHdr [2]byte
	binary.BigEndian.PutUint16(lenHdr[:], uint16(len(cleartext)))
	lenPrefixed := append(append([]byte{}, lenHdr[:]...), cleartext...)

	target := paddedLen(len(lenPrefixed), s.pad)
	plaintext := make([]byte, target)
	copy(plaintext, lenPrefixed)

	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("message: reading random nonce: %w", err)
	}
	var iv [16]byte
	copy(iv[:nonceLen], nonce[:])

	block, err := aes.NewCipher(s.store.GroupKey[:groupKeyLen])
	if err != nil {
		return "", fmt.Errorf("message: constructing AES cipher: %w", err)
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv[:]).XORKeyStream(ciphertext, plaintext)

	var content []byte
	content = wire.EncodeRecord(content, wire.TypeProtocolVersion, []byte{1})
	content = wire.EncodeRecord(content, wire.TypeMessageType, []byte{byte(wire.MessageTypeData)})
	content = wire.EncodeRecord(content, wire.TypeMessageIV, nonce[:])
	content = wire.EncodeRecord(content, wire.TypeMessagePayload, ciphertext)

	sigInput := append(append([]byte{}, []byte(wire.SigPrefixData)...), sidHash[:]...)
	sigInput = append(sigInput, content...)
	sig := ed25519.Sign(s.store.OwnEphemeralPriv, sigInput)

	var out []byte
	out = wire.EncodeRecord(out, wire.TypeSidkeyHint, sidHash[:1])
	out = wire.EncodeRecord(out, wire.TypeMessageSignature, sig)
	out = append(out, content...)

	return wire.EncodeFrame(out), nil
}

// DecryptVerify reverses AuthEncrypt, authenticating the claimed author
// via authorHint's ephemeral public key registered in the session store.
func (s *Security) DecryptVerify(pubtxt string, authorHint string) (*Decoded, error) {
	raw, ok := wire.DecodeFrame(pubtxt)
	if !ok {
		return nil, fmt.Errorf("%w: not an mpENC frame", wire.ErrMalformed)
	}

	authorPub, ok := s.store.EphemeralPubKeyFor(authorHint)
	if !ok {
		return nil, ErrUnknownAuthor
	}

	d, err := wire.NewDecoder(raw)
	if err != nil {
		return nil, err
	}
	if _, err := d.Pop(wire.TypeSidkeyHint); err != nil {
		return nil, err
	}
	sig, err := d.Pop(wire.TypeMessageSignature)
	if err != nil {
		return nil, err
	}
	content := d.Rest()

	sidHash := sidkeyHash(s.store.SessionID, s.store.GroupKey)
	sigInput := append(append([]byte{}, []byte(wire.SigPrefixData)...), sidHash[:]...)
	sigInput = append(sigInput, content...)
	if !ed25519.Verify(authorPub, sigInput, sig) {
		return nil, ErrBadSignature
	}

	cd, err := wire.NewDecoder(content)
	if err != nil {
		return nil, err
	}
	if _, err := cd.Pop(wire.TypeProtocolVersion); err != nil {
		return nil, err
	}
	msgType, err := cd.Pop(wire.TypeMessageType)
	if err != nil {
		return nil, err
	}
	if len(msgType) != 1 || wire.MessageType(msgType[0]) != wire.MessageTypeData {
		return nil, fmt.Errorf("%w: not a data message", wire.ErrMalformed)
	}
	iv, err := cd.Pop(wire.TypeMessageIV)
	if err != nil {
		return nil, err
	}
	ciphertext, err := cd.Pop(wire.TypeMessagePayload)
	if err != nil {
		return nil, err
	}

	var ivBuf [16]byte
	copy(ivBuf[:], iv)

	block, err := aes.NewCipher(s.store.GroupKey[:groupKeyLen])
	if err != nil {
		return nil, fmt.Errorf("message: constructing AES cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, ivBuf[:]).XORKeyStream(plaintext, ciphertext)

	if len(plaintext) < 2 {
		return nil, fmt.Errorf("%w: truncated plaintext", wire.ErrMalformed)
	}
	clearLen := int(binary.BigEndian.Uint16(plaintext[:2]))
	if clearLen > len(plaintext)-2 {
		return nil, fmt.Errorf("%w: cleartext length exceeds plaintext", wire.ErrMalformed)
	}
	cleartext := plaintext[2 : 2+clearLen]

	pd, err := wire.NewDecoder(cleartext)
	if err != nil {
		return nil, err
	}
	parents := pd.PopAll(wire.TypeMessageParent)
	bodyBytes, err := pd.Pop(wire.TypeMessageBody)
	if err != nil {
		return nil, err
	}

	return &Decoded{
		Author:  authorHint,
		Parents: parents,
		Readers: s.store.Readers(authorHint),
		Body:    string(bodyBytes),
	}, nil
}
