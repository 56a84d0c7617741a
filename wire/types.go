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

// Package wire implements the mpENC TLV wire codec: tagged records,
// frame/query/error string framing, and the signature domain-separation
// prefixes shared by every signed message category.
package wire

// Type is a big-endian u16 TLV record tag.
type Type uint16

// Record type registry. The first block is bit-exact with the published
// registry; the second block (0x0108 and up) assigns tags to fields the
// registry leaves at "codec-versioned positions" without fixed values.
const (
	TypeProtocolVersion  Type = 0x0001
	TypeDataMessage      Type = 0x0002
	TypeMessageSignature Type = 0x0003
	TypeMessageIV        Type = 0x0004
	TypeMessageType      Type = 0x0005
	TypeSidkeyHint       Type = 0x0006

	TypeSource           Type = 0x0100
	TypeDest             Type = 0x0101
	TypeMember           Type = 0x0102
	TypeIntKey           Type = 0x0103
	TypeNonce            Type = 0x0104
	TypePubKey           Type = 0x0105
	TypeSessionSignature Type = 0x0106
	TypeSigningKey       Type = 0x0107

	TypeGreetType      Type = 0x0108
	TypeMessageParent  Type = 0x0109
	TypeMessageBody    Type = 0x010A
	TypeMessagePayload Type = 0x010B
	TypePrevPf         Type = 0x010C
	TypeChainHash      Type = 0x010D
	TypeLatestPM       Type = 0x010E
	TypeMetaAuthor     Type = 0x010F
)

// MessageType is the one-byte value carried inside a TypeMessageType
// record, distinguishing a greet payload from a data payload.
type MessageType byte

const (
	MessageTypeGreet MessageType = 0x01
	MessageTypeData  MessageType = 0x02
)

// Signature domain-separation prefixes (spec §4.1).
const (
	SigPrefixGreet = "greetmsgsig"
	SigPrefixData  = "datamsgsig"
	SigPrefixError = "errormsgsig"
)

// Record is one decoded TLV entry.
type Record struct {
	Type  Type
	Value []byte
}
