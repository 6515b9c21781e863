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

// Package sector implements the polymorphic sector-source layer: a
// Source abstracts reading raw, fixed-size sectors from a plain file
// (optionally archive-packed or gzip-wrapped), a network server, or an
// authenticated optical drive, exposing whichever of the three physical
// sector geometries the backing image actually uses.
package sector

import "fmt"

// Format identifies one of the three physical sector encodings an SACD
// image may use. The logical payload is always 2048 bytes; Format
// distinguishes how much header/trailer padding surrounds it on disc.
type Format int

const (
	// Format2048 is the bare logical sector with no header or trailer.
	Format2048 Format = iota
	// Format2054 adds a 6-byte header before the 2048-byte payload.
	Format2054
	// Format2064 adds a 12-byte header and a 4-byte trailer.
	Format2064
)

func (f Format) String() string {
	switch f {
	case Format2048:
		return "2048"
	case Format2054:
		return "2054"
	case Format2064:
		return "2064"
	default:
		return "unknown"
	}
}

// Geometry describes the physical layout of one raw sector.
type Geometry struct {
	Format      Format
	SectorSize  int // total raw bytes per sector, including header/trailer
	HeaderSize  int
	TrailerSize int
}

// PayloadSize is the logical (SACD) content per sector, excluding any
// header and trailer padding.
func (g Geometry) PayloadSize() int {
	return g.SectorSize - g.HeaderSize - g.TrailerSize
}

// geometryTable lists the three supported encodings in probe order: the
// file variant tries 2064 first, then 2054, falling back to 2048 per
// spec's file-probe rule (§4.1, §9).
var geometryTable = []Geometry{
	{Format: Format2064, SectorSize: 2064, HeaderSize: 12, TrailerSize: 4},
	{Format: Format2054, SectorSize: 2054, HeaderSize: 6, TrailerSize: 0},
	{Format: Format2048, SectorSize: 2048, HeaderSize: 0, TrailerSize: 0},
}

// bareGeometry is what network and drive sources always report.
var bareGeometry = Geometry{Format: Format2048, SectorSize: 2048, HeaderSize: 0, TrailerSize: 0}

const (
	// MasterTOCSignature is the 8-byte ASCII marker at the start of every
	// Master TOC copy, used both to validate a parsed TOC and to probe a
	// file source for its sector geometry.
	MasterTOCSignature = "SACDMTOC"

	// MasterTOCProbeLSN is the LSN of the first Master TOC copy, used by
	// the file variant's geometry probe.
	MasterTOCProbeLSN uint32 = 510
)

// Source is the polymorphic sector-addressable reader every higher layer
// (Master TOC, Area TOC, frame readers) is built on.
type Source interface {
	// Close releases resources. Idempotent; the Source is unusable after.
	Close() error

	// ReadSectors reads count contiguous raw sectors starting at lsn into
	// buf, which must be at least count*Geometry().SectorSize bytes. It
	// returns the number of sectors actually read; partial reads are only
	// valid at end-of-source.
	ReadSectors(lsn uint32, count uint32, buf []byte) (int, error)

	// TotalSectors returns the number of raw sectors in the source.
	TotalSectors() (uint32, error)

	// Authenticate performs any handshake required before Decrypt may be
	// called. File and network sources report sacderr.NotSupported,
	// which callers treat as success.
	Authenticate() error

	// Decrypt decrypts count sectors' worth of bytes in buf in place.
	// Only valid after a successful Authenticate.
	Decrypt(buf []byte, count uint32) error

	// Geometry reports the source's physical sector layout.
	Geometry() Geometry
}

func rawOffset(lsn uint32, geom Geometry) int64 {
	return int64(lsn) * int64(geom.SectorSize)
}

func validateBuf(buf []byte, count uint32, geom Geometry) error {
	need := int(count) * geom.SectorSize
	if len(buf) < need {
		return fmt.Errorf("buffer too small: have %d bytes, need %d for %d sectors", len(buf), need, count)
	}
	return nil
}

// ReadLogical reads count raw sectors from src starting at lsn and
// returns just their logical (header/trailer-stripped) payload,
// concatenated contiguously. The Master TOC, Area TOC, and frame readers
// all interpret SACD content in this logical form, skipping
// Geometry().HeaderSize bytes at the start of every raw sector per §4.5.
func ReadLogical(src Source, lsn uint32, count uint32) ([]byte, error) {
	geom := src.Geometry()
	raw := make([]byte, int(count)*geom.SectorSize)
	n, err := src.ReadSectors(lsn, count, raw)
	if err != nil {
		return nil, err
	}

	payloadSize := geom.PayloadSize()
	payload := make([]byte, n*payloadSize)
	for i := 0; i < n; i++ {
		rawStart := i*geom.SectorSize + geom.HeaderSize
		copy(payload[i*payloadSize:], raw[rawStart:rawStart+payloadSize])
	}
	return payload, nil
}
