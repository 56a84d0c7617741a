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

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed signals a TLV type or length mismatch while decoding.
var ErrMalformed = errors.New("wire: malformed record")

// EncodeRecord appends one (type, length, value) record to dst.
func EncodeRecord(dst []byte, t Type, value []byte) []byte {
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(t))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(value)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, value...)
	return dst
}

// DecodeRecords parses a flat byte string into an ordered list of records.
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: truncated header", ErrMalformed)
		}
		t := Type(binary.BigEndian.Uint16(data[0:2]))
		length := int(binary.BigEndian.Uint16(data[2:4]))
		data = data[4:]
		if len(data) < length {
			return nil, fmt.Errorf("%w: truncated value for type %#04x", ErrMalformed, uint16(t))
		}
		records = append(records, Record{Type: t, Value: data[:length]})
		data = data[length:]
	}
	return records, nil
}

// Decoder walks an ordered record list with the pop/popMaybe/popAll/popUntil
// helpers named in spec §4.1.
type Decoder struct {
	records []Record
	pos     int
}

// NewDecoder parses data and returns a Decoder positioned at the first record.
func NewDecoder(data []byte) (*Decoder, error) {
	records, err := DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	return &Decoder{records: records}, nil
}

// Pop consumes one record, failing with ErrMalformed if its type doesn't
// match expected.
func (d *Decoder) Pop(expected Type) ([]byte, error) {
	if d.pos >= len(d.records) {
		return nil, fmt.Errorf("%w: expected type %#04x, got end of message", ErrMalformed, uint16(expected))
	}
	r := d.records[d.pos]
	if r.Type != expected {
		return nil, fmt.Errorf("%w: expected type %#04x, got %#04x", ErrMalformed, uint16(expected), uint16(r.Type))
	}
	d.pos++
	return r.Value, nil
}

// PopMaybe consumes one record only if it matches expected; otherwise it is
// a no-op and ok is false.
func (d *Decoder) PopMaybe(expected Type) (value []byte, ok bool) {
	if d.pos >= len(d.records) || d.records[d.pos].Type != expected {
		return nil, false
	}
	value = d.records[d.pos].Value
	d.pos++
	return value, true
}

// PopAll consumes records while the next one matches expected.
func (d *Decoder) PopAll(expected Type) [][]byte {
	var values [][]byte
	for {
		v, ok := d.PopMaybe(expected)
		if !ok {
			break
		}
		values = append(values, v)
	}
	return values
}

// PopUntil skips records until the next one matches expected, without
// consuming it. Used by partial decoders that only care about a prefix of
// fields.
func (d *Decoder) PopUntil(expected Type) {
	for d.pos < len(d.records) && d.records[d.pos].Type != expected {
		d.pos++
	}
}

// Done reports whether every record has been consumed.
func (d *Decoder) Done() bool {
	return d.pos >= len(d.records)
}

// Remaining returns the unconsumed tail of the record list, for callers
// (e.g. signature verification) that need the raw bytes of what follows a
// given point.
func (d *Decoder) Remaining() []Record {
	return d.records[d.pos:]
}

// Rest re-encodes every record from the current position onward, useful for
// recovering "the bytes this signature was computed over".
func (d *Decoder) Rest() []byte {
	var out []byte
	for _, r := range d.records[d.pos:] {
		out = EncodeRecord(out, r.Type, r.Value)
	}
	return out
}

// ClassifyFrame reports whether a decoded "?mpENC:" record stream carries a
// greet or a data body, without verifying its signature: it skips the
// optional SIDKEY_HINT, the MESSAGE_SIGNATURE, and PROTOCOL_VERSION
// records common to both, then reads MESSAGE_TYPE (spec §4.8). Used by the
// top-level handler to route a decoded frame before the party that holds
// the relevant keys performs authenticated decoding.
func ClassifyFrame(raw []byte) (MessageType, error) {
	d, err := NewDecoder(raw)
	if err != nil {
		return 0, err
	}
	d.PopMaybe(TypeSidkeyHint)
	if _, err := d.Pop(TypeMessageSignature); err != nil {
		return 0, err
	}
	if _, err := d.Pop(TypeProtocolVersion); err != nil {
		return 0, err
	}
	mt, err := d.Pop(TypeMessageType)
	if err != nil {
		return 0, err
	}
	if len(mt) != 1 {
		return 0, fmt.Errorf("%w: message type record is not 1 byte", ErrMalformed)
	}
	return MessageType(mt[0]), nil
}
