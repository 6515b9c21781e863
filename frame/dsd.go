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

package frame

import (
	"github.com/sacdtools/sacdcore/sacderr"
	"github.com/sacdtools/sacdcore/sector"
)

// slice is one (offset, length) copy instruction into a raw sector's
// logical payload.
type slice struct {
	offset int
	length int
}

// blockPosition is one of the three frame positions within a fixed-DSD
// sector block.
type blockPosition struct {
	sectorCount   int
	sectorOffset  int // position's first sector, relative to the block start
	slices        []slice
}

var dsd3In14Table = []blockPosition{
	{
		sectorCount:  5,
		sectorOffset: 0,
		slices: []slice{
			{32, 2016}, {32, 2016}, {32, 2016}, {32, 2016}, {32, 1344},
		},
	},
	{
		sectorCount:  6,
		sectorOffset: 4,
		slices: []slice{
			{1376, 672}, {32, 2016}, {32, 2016}, {32, 2016}, {32, 2016}, {32, 672},
		},
	},
	{
		sectorCount:  5,
		sectorOffset: 9,
		slices: []slice{
			{704, 1344}, {32, 2016}, {32, 2016}, {32, 2016}, {32, 2016},
		},
	},
}

var dsd3In16Table = []blockPosition{
	{
		sectorCount:  6,
		sectorOffset: 0,
		slices: []slice{
			{284, 1764}, {284, 1764}, {284, 1764}, {284, 1764}, {284, 1764}, {284, 588},
		},
	},
	{
		sectorCount:  6,
		sectorOffset: 5,
		slices: []slice{
			{872, 1176}, {284, 1764}, {284, 1764}, {284, 1764}, {284, 1764}, {284, 1176},
		},
	},
	{
		sectorCount:  6,
		sectorOffset: 10,
		slices: []slice{
			{1460, 588}, {284, 1764}, {284, 1764}, {284, 1764}, {284, 1764}, {284, 1764},
		},
	},
}

const (
	sectorsPerBlock14 = 14
	sectorsPerBlock16 = 16
)

// fixedDSD implements Reader for the 3-in-14 and 3-in-16 layouts, which
// share identical sector-block arithmetic and differ only in their
// layout table and sectors-per-block constant.
type fixedDSD struct {
	src             sector.Source
	table           []blockPosition
	sectorsPerBlock int
	trackAreaStart  uint32
	trackAreaEnd    uint32
	totalFrames     uint32

	haveLast  bool
	lastFrame uint32
}

// NewDSD3In14 returns a Reader for an area encoded with the fixed DSD
// 3-in-14 layout.
func NewDSD3In14(src sector.Source, trackAreaStart, trackAreaEnd, totalFrames uint32) Reader {
	return &fixedDSD{
		src:             src,
		table:           dsd3In14Table,
		sectorsPerBlock: sectorsPerBlock14,
		trackAreaStart:  trackAreaStart,
		trackAreaEnd:    trackAreaEnd,
		totalFrames:     totalFrames,
	}
}

// NewDSD3In16 returns a Reader for an area encoded with the fixed DSD
// 3-in-16 layout.
func NewDSD3In16(src sector.Source, trackAreaStart, trackAreaEnd, totalFrames uint32) Reader {
	return &fixedDSD{
		src:             src,
		table:           dsd3In16Table,
		sectorsPerBlock: sectorsPerBlock16,
		trackAreaStart:  trackAreaStart,
		trackAreaEnd:    trackAreaEnd,
		totalFrames:     totalFrames,
	}
}

func (f *fixedDSD) SectorRange(frameNum uint32) (uint32, uint32, error) {
	if err := checkFrameBounds(frameNum, f.totalFrames, false); err != nil {
		return 0, 0, err
	}
	blockIndex := frameNum / 3
	position := f.table[frameNum%3]
	start := f.trackAreaStart + blockIndex*uint32(f.sectorsPerBlock) + uint32(position.sectorOffset)
	return start, uint32(position.sectorCount), nil
}

// ReadFrame assembles the frame's 9408-byte payload. dataType is ignored:
// fixed DSD sectors carry no packet structure, per §4.5.1.
func (f *fixedDSD) ReadFrame(buf []byte, frameNum uint32, _ DataType) (int, error) {
	isContinuation := frameNum == CurrentFrame
	if isContinuation {
		if !f.haveLast {
			return 0, sacderr.New(sacderr.InvalidArgument, "frame.fixedDSD.ReadFrame")
		}
		frameNum = f.lastFrame + 1
	}
	if err := checkFrameBounds(frameNum, f.totalFrames, isContinuation); err != nil {
		return 0, err
	}

	startLSN, sectorCount, err := f.SectorRange(frameNum)
	if err != nil {
		return 0, err
	}

	logical, err := sector.ReadLogical(f.src, startLSN, sectorCount)
	if err != nil {
		return 0, sacderr.Wrap(sacderr.IO, "frame.fixedDSD.ReadFrame", err)
	}

	position := f.table[frameNum%3]
	payloadSize := f.src.Geometry().PayloadSize()

	written := 0
	for i, sl := range position.slices {
		secStart := i * payloadSize
		chunk := logical[secStart+sl.offset : secStart+sl.offset+sl.length]
		n := copy(buf[written:], chunk)
		written += n
		if n < len(chunk) {
			break
		}
	}

	f.haveLast = true
	f.lastFrame = frameNum

	return written, nil
}
