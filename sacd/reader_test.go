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

package sacd_test

import (
	"testing"

	"github.com/sacdtools/sacdcore/areatoc"
	"github.com/sacdtools/sacdcore/frame"
	"github.com/sacdtools/sacdcore/mastertoc"
	"github.com/sacdtools/sacdcore/sacd"
	"github.com/sacdtools/sacdcore/sacderr"
	"github.com/sacdtools/sacdcore/sector"
)

const sectorSize = 2048

// memSource is a bare 2048-byte-geometry in-memory sector.Source backed
// by a flat byte slice, used to build synthetic whole-disc fixtures
// spanning a Master TOC, one or two Area TOCs, and their track areas.
type memSource struct {
	data      []byte
	decrypted [][2]uint32 // ranges Decrypt was called on, for assertions
}

func newMemSource(sectors int) *memSource {
	return &memSource{data: make([]byte, sectors*sectorSize)}
}

func (m *memSource) sectorAt(lsn uint32) []byte {
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

func (m *memSource) TotalSectors() (uint32, error) { return uint32(len(m.data) / sectorSize), nil }
func (m *memSource) Authenticate() error           { return sacderr.New(sacderr.NotSupported, "") }

func (m *memSource) Decrypt(buf []byte, count uint32) error {
	m.decrypted = append(m.decrypted, [2]uint32{0, count})
	return nil
}

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

// writeMasterTOC populates the 10-sector Master TOC at LSN 510 with no
// text channels and, if present, the given stereo/multichannel area
// pointers (LengthSectors 4 covers just the four required Area TOC
// sectors this fixture builds).
func writeMasterTOC(src *memSource, stereoLSN, multiLSN uint32) {
	header := src.sectorAt(510)
	copy(header[0:8], mastertoc.Signature)
	header[8] = 1
	if stereoLSN != 0 {
		be32(header, 20, stereoLSN)
		be32(header, 24, stereoLSN+1)
		be32(header, 28, 4)
	}
	if multiLSN != 0 {
		be32(header, 32, multiLSN)
		be32(header, 36, multiLSN+1)
		be32(header, 40, 4)
	}
	man := src.sectorAt(519)
	copy(man[0:8], mastertoc.ManufacturerSignature)
}

// writeAreaTOC populates a minimal single-track Area TOC of kind at LSN
// lsn (four required sectors), pointing its track area at
// [trackAreaStart, trackAreaEnd] and encoding trackFrames frames in
// format.
func writeAreaTOC(src *memSource, lsn uint32, kind areatoc.Kind, format areatoc.FrameFormat, channelCount uint8, trackAreaStart, trackAreaEnd, trackFrames uint32) {
	header := src.sectorAt(lsn)
	sig := areatoc.StereoSignature
	if kind == areatoc.Multichannel {
		sig = areatoc.MultichannelSignature
	}
	copy(header[0:8], sig)
	header[8] = byte(format)
	header[9] = channelCount
	header[10] = 4
	header[11] = 1 // track_count
	be32(header, 12, trackAreaStart)
	be32(header, 16, trackAreaEnd)
	be32(header, 20, trackFrames)

	tl1 := src.sectorAt(lsn + 1)
	copy(tl1[0:8], areatoc.TrackList1Signature)
	tl1[8], tl1[9], tl1[10] = 0, 0, 0 // track 1 starts at time code 0

	tl2 := src.sectorAt(lsn + 2)
	copy(tl2[0:8], areatoc.TrackList2Signature)
	be32(tl2, 8, trackFrames)
	tl2[12] = 1 // mode

	isrcGenre := src.sectorAt(lsn + 3)
	copy(isrcGenre[0:8], areatoc.ISRCListSignature)
}

// buildTwoAreaDisc builds a whole-disc fixture with both a stereo area
// (DSD 3-in-16, 6 frames) and a multichannel area (DST, 1 frame with a
// single Audio packet), each with its own track area sector range.
func buildTwoAreaDisc(t *testing.T) *memSource {
	t.Helper()

	src := newMemSource(700)
	writeMasterTOC(src, 540, 550)

	// Stereo: DSD 3-in-16, track area [600, 631] (2 blocks of 16 sectors = 6 frames).
	writeAreaTOC(src, 540, areatoc.Stereo, areatoc.FrameFormatDSD3In16, 2, 600, 631, 6)

	// Multichannel: DST, track area [650, 650] (single sector, one frame).
	writeAreaTOC(src, 550, areatoc.Multichannel, areatoc.FrameFormatDST, 6, 650, 650, 1)
	dstSec := src.sectorAt(650)
	// packet_count=1, frame_start_count=1, dst_coded=1.
	dstSec[0] = 1<<5 | 1<<2 | 1
	packetLength := 32
	dstSec[1] = byte(1<<7 | 2<<3) // frame_start=1, data_type=Audio(2)
	dstSec[2] = byte(packetLength)
	dstSec[3], dstSec[4], dstSec[5] = 0, 0, 0 // time code 0:0:0
	dstSec[6] = 1 << 2                        // sector_count = 1
	for i := 0; i < packetLength; i++ {
		dstSec[7+i] = 0xCD
	}

	return src
}

func TestInit_SelectsMultichannelFirst(t *testing.T) {
	t.Parallel()

	src := buildTwoAreaDisc(t)
	r, err := sacd.Init(src, 1, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()

	kinds := r.AvailableChannelTypes()
	if len(kinds) != 2 || kinds[0] != areatoc.Multichannel || kinds[1] != areatoc.Stereo {
		t.Errorf("AvailableChannelTypes() = %v, want [Multichannel Stereo]", kinds)
	}

	count, err := r.TrackCount()
	if err != nil {
		t.Fatalf("TrackCount: %v", err)
	}
	if count != 1 {
		t.Errorf("TrackCount() = %d, want 1 (multichannel selected by default)", count)
	}
}

func TestSelectChannelType_AbsentAreaFails(t *testing.T) {
	t.Parallel()

	src := newMemSource(700)
	writeMasterTOC(src, 540, 0)
	writeAreaTOC(src, 540, areatoc.Stereo, areatoc.FrameFormatDSD3In16, 2, 600, 615, 3)

	r, err := sacd.Init(src, 1, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()

	if err := r.SelectChannelType(areatoc.Multichannel); !sacderr.Is(err, sacderr.NotAvailable) {
		t.Errorf("SelectChannelType(Multichannel) error = %v, want NotAvailable", err)
	}
}

func TestReadSoundData_FixedDSD(t *testing.T) {
	t.Parallel()

	src := buildTwoAreaDisc(t)
	r, err := sacd.Init(src, 1, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()

	if err := r.SelectChannelType(areatoc.Stereo); err != nil {
		t.Fatalf("SelectChannelType: %v", err)
	}

	capacity := (4704 + 1) * 2
	buf := make([]byte, capacity*3)
	sizes := make([]int, 3)
	n, err := r.ReadSoundData(buf, 0, 3, sizes)
	if err != nil {
		t.Fatalf("ReadSoundData: %v", err)
	}
	if n != 3 {
		t.Errorf("ReadSoundData() = %d, want 3", n)
	}
	for i, sz := range sizes {
		if sz != frame.FrameBytes {
			t.Errorf("sizes[%d] = %d, want %d", i, sz, frame.FrameBytes)
		}
	}
}

func TestReadSoundData_DSTStopsOnError(t *testing.T) {
	t.Parallel()

	src := buildTwoAreaDisc(t)
	r, err := sacd.Init(src, 1, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()

	// Default selection is multichannel (DST), which has exactly 1 frame.
	capacity := (4704 + 1) * 6
	buf := make([]byte, capacity*3)
	sizes := make([]int, 3)
	n, err := r.ReadSoundData(buf, 0, 3, sizes)
	if err == nil {
		t.Fatal("ReadSoundData() error = nil, want an error reading past the single available frame")
	}
	if n != 1 {
		t.Errorf("ReadSoundData() partial count = %d, want 1", n)
	}
}

func TestReadRawSectors_DecryptsInsideDSTTrackArea(t *testing.T) {
	t.Parallel()

	src := buildTwoAreaDisc(t)
	r, err := sacd.Init(src, 1, 1)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()

	buf := make([]byte, sectorSize)
	if _, err := r.ReadRawSectors(650, 1, buf); err != nil {
		t.Fatalf("ReadRawSectors(650): %v", err)
	}
	if len(src.decrypted) != 1 {
		t.Errorf("Decrypt calls = %d, want 1 (650 is inside the DST track area)", len(src.decrypted))
	}

	if _, err := r.ReadRawSectors(0, 1, buf); err != nil {
		t.Fatalf("ReadRawSectors(0): %v", err)
	}
	if len(src.decrypted) != 1 {
		t.Errorf("Decrypt calls after out-of-area read = %d, want still 1", len(src.decrypted))
	}
}

func TestInit_BothAreasAbsent(t *testing.T) {
	t.Parallel()

	src := newMemSource(520)
	writeMasterTOC(src, 0, 0)

	if _, err := sacd.Init(src, 1, 1); !sacderr.Is(err, sacderr.NotAvailable) {
		t.Errorf("Init() error = %v, want NotAvailable", err)
	}
}

func TestLooksLikeNetworkAddress(t *testing.T) {
	t.Parallel()

	// Exercised indirectly through Open's dispatch; this test only
	// guards against obviously wrong classification of path-shaped
	// strings by checking Open doesn't try to dial a plain file path.
	if _, err := sacd.Open("/nonexistent/disc.iso", 1, 1); err == nil {
		t.Error("Open(plain path) error = nil, want a file-open error")
	}
}
