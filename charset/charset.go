// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of sacdcore.
//
// sacdcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// sacdcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with sacdcore.  If not, see <https://www.gnu.org/licenses/>.

// Package charset decodes the NUL-terminated on-disc text fields used by
// the Master TOC and Area TOC into UTF-8, per the 8-value charset code
// carried alongside every text channel. Multi-byte encodings and
// ISO-8859-1 are handled by golang.org/x/text; the two US-ASCII codes are
// passed through directly.
package charset

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Charset codes as carried in the Master TOC text-channel descriptor and
// the Area TOC. Values mirror the on-disc 3-bit field.
const (
	USASCII7  uint8 = 0
	USASCII8  uint8 = 1
	ISO88591A uint8 = 2
	ShiftJIS  uint8 = 3
	KSC5601   uint8 = 4
	GB2312    uint8 = 5
	Big5      uint8 = 6
	ISO88591B uint8 = 7
)

func isDoubleByte(code uint8) bool {
	switch code {
	case ShiftJIS, KSC5601, GB2312, Big5:
		return true
	default:
		return false
	}
}

// encodingFor returns the x/text codec for code, or nil for the
// single-byte US-ASCII codes, which need no conversion.
func encodingFor(code uint8) encoding.Encoding {
	switch code {
	case ShiftJIS:
		return japanese.ShiftJIS
	case KSC5601:
		return korean.EUCKR
	case GB2312:
		// GB-2312 is a strict subset of GBK; every valid GB-2312 byte
		// sequence decodes correctly under the superset codec.
		return simplifiedchinese.GBK
	case Big5:
		return traditionalchinese.Big5
	case ISO88591A, ISO88591B:
		return charmap.ISO8859_1
	default:
		return nil
	}
}

// terminatorIndex finds the end of the text field within src: the first
// 0x00 for single-byte encodings, or the first 2-byte-aligned 0x00 0x00
// pair for double-byte encodings. If no terminator is present it returns
// len(src) for single-byte encodings, and len(src) rounded down to an even
// count for double-byte encodings.
func terminatorIndex(src []byte, code uint8) int {
	if !isDoubleByte(code) {
		if idx := bytes.IndexByte(src, 0); idx >= 0 {
			return idx
		}
		return len(src)
	}

	for i := 0; i+1 < len(src); i += 2 {
		if src[i] == 0 && src[i+1] == 0 {
			return i
		}
	}
	return len(src) - len(src)%2
}

// Decode converts src, a NUL-terminated on-disc text field encoded under
// code, into a freshly allocated UTF-8 string. A conversion failure falls
// back to the raw byte copy of the field rather than an error: malformed
// text fields are common enough on pressed discs that callers should
// never have to handle a decode error.
func Decode(src []byte, code uint8) string {
	trimmed := src[:terminatorIndex(src, code)]

	enc := encodingFor(code)
	if enc == nil {
		return string(trimmed)
	}

	// x/text decoders substitute U+FFFD for invalid input instead of
	// failing, so a replacement character also counts as a failure.
	decoded, err := enc.NewDecoder().Bytes(trimmed)
	if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
		return string(trimmed)
	}
	return string(decoded)
}

// LengthInSourceEncoding returns the number of bytes s would occupy if
// re-encoded under code, excluding any terminator. Used when a caller
// needs to know how much of an on-disc field a decoded string consumed.
func LengthInSourceEncoding(s string, code uint8) int {
	enc := encodingFor(code)
	if enc == nil {
		return len(s)
	}

	encoded, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return len(s)
	}
	return len(encoded)
}
