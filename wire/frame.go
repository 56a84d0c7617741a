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
	"encoding/base64"
	"strconv"
	"strings"
)

const (
	framePrefix = "?mpENC:"
	frameSuffix = "."
	errorPrefix = "?mpENC Error:"
	queryPrefix = "?mpENCv"
)

// EncodeFrame wraps an encoded record stream as an mpENC frame:
// "?mpENC:<base64(records)>."
func EncodeFrame(records []byte) string {
	var b strings.Builder
	b.WriteString(framePrefix)
	b.WriteString(base64.StdEncoding.EncodeToString(records))
	b.WriteString(frameSuffix)
	return b.String()
}

// DecodeFrame unwraps an mpENC frame, returning the decoded record bytes.
func DecodeFrame(s string) (records []byte, ok bool) {
	if !strings.HasPrefix(s, framePrefix) || !strings.HasSuffix(s, frameSuffix) {
		return nil, false
	}
	body := s[len(framePrefix) : len(s)-len(frameSuffix)]
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, false
	}
	return data, true
}

// EncodeQuery builds a protocol-query frame: "?mpENCv<protoByte>?<text>"
func EncodeQuery(version byte, text string) string {
	var b strings.Builder
	b.WriteString(queryPrefix)
	b.WriteByte(version)
	b.WriteByte('?')
	b.WriteString(text)
	return b.String()
}

// DecodeQuery parses a protocol-query frame.
func DecodeQuery(s string) (version byte, text string, ok bool) {
	if !strings.HasPrefix(s, queryPrefix) {
		return 0, "", false
	}
	rest := s[len(queryPrefix):]
	if len(rest) < 1 {
		return 0, "", false
	}
	version = rest[0]
	rest = rest[1:]
	if !strings.HasPrefix(rest, "?") {
		return 0, "", false
	}
	return version, rest[1:], true
}

// EncodeError builds an error frame: "?mpENC Error:<base64(sig)>:<text>"
func EncodeError(sig []byte, text string) string {
	var b strings.Builder
	b.WriteString(errorPrefix)
	b.WriteString(base64.StdEncoding.EncodeToString(sig))
	b.WriteByte(':')
	b.WriteString(text)
	return b.String()
}

// DecodeError parses an error frame. sig may be empty when the frame omits
// a signature (per the literal end-to-end scenario in spec §8.4, e.g.
// "?mpENC Error:Hatschi!" with no leading base64 segment).
func DecodeError(s string) (sig []byte, text string, ok bool) {
	if !strings.HasPrefix(s, errorPrefix) {
		return nil, "", false
	}
	rest := s[len(errorPrefix):]
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return nil, rest, true
	}
	sigPart := rest[:idx]
	textPart := rest[idx+1:]
	decoded, err := base64.StdEncoding.DecodeString(sigPart)
	if err != nil {
		// Not valid base64: treat the whole remainder as text, no signature.
		return nil, rest, true
	}
	return decoded, textPart, true
}

// IsFrame reports whether s carries the "?mpENC:" prefix.
func IsFrame(s string) bool {
	return strings.HasPrefix(s, framePrefix)
}

// IsError reports whether s carries the "?mpENC Error:" prefix.
func IsError(s string) bool {
	return strings.HasPrefix(s, errorPrefix)
}

// IsQuery reports whether s carries the "?mpENCv" prefix.
func IsQuery(s string) bool {
	return strings.HasPrefix(s, queryPrefix)
}

// FormatVersion renders a protocol version byte for display.
func FormatVersion(v byte) string {
	return strconv.Itoa(int(v))
}
