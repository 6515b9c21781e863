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

package mastertoc_test

import (
	"testing"

	"github.com/sacdtools/sacdcore/mastertoc"
	"github.com/sacdtools/sacdcore/sacderr"
	"github.com/sacdtools/sacdcore/sector"
)

const sectorSize = 2048

// memSource is a bare 2048-byte-geometry in-memory sector.Source backed
// by a flat byte slice, used to build synthetic Master TOC fixtures.
type memSource struct {
	data []byte
}

func newMemSource(sectors int) *memSource {
	return &memSource{data: make([]byte, sectors*sectorSize)}
}

func (m *memSource) sector(lsn uint32) []byte {
	off := int(lsn) * sectorSize
	return m.data[off : off+sectorSize]
}

func (m *memSource) Close() error { return nil }

func (m *memSource) ReadSectors(lsn uint32, count uint32, buf []byte) (int, error) {
	off := int(lsn) * sectorSize
	n := int(count) * sectorSize
	if off+n > len(m.data) {
		return 0, sacderr.New(sacderr.NoData, "memSource.ReadSectors")
	}
	copy(buf, m.data[off:off+n])
	return int(count), nil
}

func (m *memSource) TotalSectors() (uint32, error) {
	return uint32(len(m.data) / sectorSize), nil
}

func (m *memSource) Authenticate() error               { return sacderr.New(sacderr.NotSupported, "") }
func (m *memSource) Decrypt(_ []byte, _ uint32) error  { return sacderr.New(sacderr.NotSupported, "") }
func (m *memSource) Geometry() sector.Geometry {
	return sector.Geometry{Format: sector.Format2048, SectorSize: sectorSize}
}

func be16(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

func be32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

// writeText writes s NUL-terminated (US-ASCII, charset code 1) at offset
// off inside sector sec.
func writeText(sec []byte, off int, s string) {
	copy(sec[off:], s)
	sec[off+len(s)] = 0
}

// buildValidTOC constructs a minimal, fully valid 10-sector Master TOC at
// LSN 510 with a single used text channel (channel 1, English/ASCII)
// carrying the given album/disc text fields.
func buildValidTOC(t *testing.T, albumArtist, albumTitle, discArtist, discTitle string, year uint16, month, day uint8, setSize, seqNum uint16) *memSource {
	t.Helper()

	src := newMemSource(520)
	header := src.sector(510)
	copy(header[0:8], mastertoc.Signature)
	header[8] = 1 // version major
	header[9] = 0 // version minor
	be16(header, 10, setSize)
	be16(header, 12, seqNum)
	be16(header, 16, year)
	header[18] = month
	header[19] = day
	header[60] = 1 // text_channel_count

	// Channel 0: language "en", charset US-ASCII (1).
	langOff := 64
	copy(header[langOff:langOff+2], "en")
	header[langOff+2] = 1

	// Text offsets for channel 0, all pointing into text sector 511.
	textSectorOff := 16 // leave room for the signature
	const (
		albumTitleIdx  = 0
		albumArtistIdx = 1
		discTitleIdx   = 8
		discArtistIdx  = 9
	)
	offBase := 240
	writeOffset := func(idx int, off uint16) {
		be16(header, offBase+idx*2, off)
	}

	textSec := src.sector(511)
	copy(textSec[0:8], mastertoc.TextSignature)
	cursor := textSectorOff
	writeOffset(albumTitleIdx, uint16(cursor))
	writeText(textSec, cursor, albumTitle)
	cursor += len(albumTitle) + 1
	writeOffset(albumArtistIdx, uint16(cursor))
	writeText(textSec, cursor, albumArtist)
	cursor += len(albumArtist) + 1
	writeOffset(discTitleIdx, uint16(cursor))
	writeText(textSec, cursor, discTitle)
	cursor += len(discTitle) + 1
	writeOffset(discArtistIdx, uint16(cursor))
	writeText(textSec, cursor, discArtist)

	man := src.sector(519)
	copy(man[0:8], mastertoc.ManufacturerSignature)

	return src
}

func TestRead_ValidTOC(t *testing.T) {
	t.Parallel()

	src := buildValidTOC(t, "Foo/Bar", "Baz", "Foo/Bar", "Baz", 2005, 6, 1, 3, 2)

	toc, err := mastertoc.Read(src, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if toc.VersionMajor != 1 {
		t.Errorf("VersionMajor = %d, want 1", toc.VersionMajor)
	}
	if toc.AlbumSetSize != 3 || toc.AlbumSequenceNumber != 2 {
		t.Errorf("AlbumSetSize/SequenceNumber = %d/%d, want 3/2", toc.AlbumSetSize, toc.AlbumSequenceNumber)
	}
	if len(toc.TextChannels) != 1 {
		t.Fatalf("len(TextChannels) = %d, want 1", len(toc.TextChannels))
	}
	ch := toc.TextChannels[0]
	if ch.Text(mastertoc.AlbumTitle) != "Baz" {
		t.Errorf("AlbumTitle = %q, want %q", ch.Text(mastertoc.AlbumTitle), "Baz")
	}
	if ch.Text(mastertoc.AlbumArtist) != "Foo/Bar" {
		t.Errorf("AlbumArtist = %q, want %q", ch.Text(mastertoc.AlbumArtist), "Foo/Bar")
	}
}

func TestRead_InvalidSignature(t *testing.T) {
	t.Parallel()

	src := newMemSource(520)
	if _, err := mastertoc.Read(src, 1); !sacderr.Is(err, sacderr.InvalidSignature) {
		t.Errorf("Read() error = %v, want InvalidSignature", err)
	}
}

func TestRead_InvalidCopyNumber(t *testing.T) {
	t.Parallel()

	src := newMemSource(10)
	if _, err := mastertoc.Read(src, 4); !sacderr.Is(err, sacderr.InvalidArgument) {
		t.Errorf("Read() error = %v, want InvalidArgument", err)
	}
}

func TestRead_InconsistentAreaPointer(t *testing.T) {
	t.Parallel()

	src := buildValidTOC(t, "A", "B", "A", "B", 2000, 1, 1, 1, 1)
	header := src.sector(510)
	// Stereo area: only copy1 set, copy2 left zero -> inconsistent.
	be32(header, 20, 1000)

	if _, err := mastertoc.Read(src, 1); !sacderr.Is(err, sacderr.InvalidSignature) {
		t.Errorf("Read() error = %v, want InvalidSignature", err)
	}
}

func TestRead_ProbesCorrectLSN(t *testing.T) {
	t.Parallel()

	src := newMemSource(540)
	header := src.sector(530)
	copy(header[0:8], mastertoc.Signature)
	man := src.sector(539)
	copy(man[0:8], mastertoc.ManufacturerSignature)

	toc, err := mastertoc.Read(src, 3)
	if err != nil {
		t.Fatalf("Read copy 3: %v", err)
	}
	if len(toc.TextChannels) != 0 {
		t.Errorf("len(TextChannels) = %d, want 0", len(toc.TextChannels))
	}
}

func TestAlbumDir_MultiDiscSet(t *testing.T) {
	t.Parallel()

	src := buildValidTOC(t, "Foo/Bar", "Baz", "Foo/Bar", "Baz", 2005, 6, 1, 3, 2)
	toc, err := mastertoc.Read(src, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	got, err := toc.AlbumDir(mastertoc.ArtistTitle)
	if err != nil {
		t.Fatalf("AlbumDir: %v", err)
	}
	want := "Foo_Bar - Baz (Disc 2 of 3)"
	if got != want {
		t.Errorf("AlbumDir() = %q, want %q", got, want)
	}
}

func TestAlbumDir_SingleDiscOmitsSuffix(t *testing.T) {
	t.Parallel()

	src := buildValidTOC(t, "Artist", "Title", "Artist", "Title", 1999, 1, 1, 1, 1)
	toc, err := mastertoc.Read(src, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	got, err := toc.AlbumDir(mastertoc.ArtistTitle)
	if err != nil {
		t.Fatalf("AlbumDir: %v", err)
	}
	if got != "Artist - Title" {
		t.Errorf("AlbumDir() = %q, want %q", got, "Artist - Title")
	}
}

func TestDiscGenre_RangeValidation(t *testing.T) {
	t.Parallel()

	src := buildValidTOC(t, "A", "B", "A", "B", 2000, 1, 1, 1, 1)
	toc, err := mastertoc.Read(src, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if _, err := toc.DiscGenre(0); !sacderr.Is(err, sacderr.InvalidArgument) {
		t.Errorf("DiscGenre(0) error = %v, want InvalidArgument", err)
	}
	if _, err := toc.DiscGenre(5); !sacderr.Is(err, sacderr.InvalidArgument) {
		t.Errorf("DiscGenre(5) error = %v, want InvalidArgument", err)
	}
	if _, err := toc.DiscGenre(1); err != nil {
		t.Errorf("DiscGenre(1) error = %v, want nil", err)
	}
}
