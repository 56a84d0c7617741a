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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	var buf []byte
	buf = EncodeRecord(buf, TypeSource, []byte("alice"))
	buf = EncodeRecord(buf, TypeDest, nil)
	buf = EncodeRecord(buf, TypeMember, []byte("bob"))

	records, err := DecodeRecords(buf)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, TypeSource, records[0].Type)
	assert.Equal(t, []byte("alice"), records[0].Value)
	assert.Equal(t, TypeDest, records[1].Type)
	assert.Empty(t, records[1].Value)
	assert.Equal(t, TypeMember, records[2].Type)
	assert.Equal(t, []byte("bob"), records[2].Value)
}

func TestDecodeRecordsTruncated(t *testing.T) {
	_, err := DecodeRecords([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformed)

	var buf []byte
	buf = EncodeRecord(buf, TypeSource, []byte("alice"))
	_, err = DecodeRecords(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecoderPop(t *testing.T) {
	var buf []byte
	buf = EncodeRecord(buf, TypeSource, []byte("alice"))
	buf = EncodeRecord(buf, TypeMember, []byte("bob"))
	buf = EncodeRecord(buf, TypeMember, []byte("carol"))
	buf = EncodeRecord(buf, TypeDest, []byte(""))

	d, err := NewDecoder(buf)
	require.NoError(t, err)

	src, err := d.Pop(TypeSource)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), src)

	_, err = d.Pop(TypeDest)
	assert.ErrorIs(t, err, ErrMalformed)

	members := d.PopAll(TypeMember)
	assert.Equal(t, [][]byte{[]byte("bob"), []byte("carol")}, members)

	dest, ok := d.PopMaybe(TypeDest)
	assert.True(t, ok)
	assert.Equal(t, []byte(""), dest)

	assert.True(t, d.Done())
}

func TestDecoderPopUntil(t *testing.T) {
	var buf []byte
	buf = EncodeRecord(buf, TypeSource, []byte("alice"))
	buf = EncodeRecord(buf, TypeMember, []byte("bob"))
	buf = EncodeRecord(buf, TypeDest, []byte(""))

	d, err := NewDecoder(buf)
	require.NoError(t, err)

	d.PopUntil(TypeDest)
	dest, err := d.Pop(TypeDest)
	require.NoError(t, err)
	assert.Equal(t, []byte(""), dest)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf []byte
	buf = EncodeRecord(buf, TypeSource, []byte("alice"))

	frame := EncodeFrame(buf)
	assert.True(t, IsFrame(frame))

	decoded, ok := DecodeFrame(frame)
	require.True(t, ok)
	assert.Equal(t, buf, decoded)
}

func TestQueryRoundTrip(t *testing.T) {
	q := EncodeQuery(1, "hello")
	assert.True(t, IsQuery(q))

	version, text, ok := DecodeQuery(q)
	require.True(t, ok)
	assert.Equal(t, byte(1), version)
	assert.Equal(t, "hello", text)
}

func TestErrorFrame(t *testing.T) {
	sig := []byte{0xde, 0xad, 0xbe, 0xef}
	e := EncodeError(sig, "oops")
	assert.True(t, IsError(e))

	decodedSig, text, ok := DecodeError(e)
	require.True(t, ok)
	assert.Equal(t, sig, decodedSig)
	assert.Equal(t, "oops", text)
}

func TestErrorFrameNoSignature(t *testing.T) {
	sig, text, ok := DecodeError("?mpENC Error:Hatschi!")
	require.True(t, ok)
	assert.Empty(t, sig)
	assert.Equal(t, "Hatschi!", text)
}
