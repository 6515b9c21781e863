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
	"bytes"

	"github.com/icza/bitio"

	"github.com/sacdtools/sacdcore/sacderr"
	"github.com/sacdtools/sacdcore/sector"
)

// MaxDSTSectors bounds how many sectors a single DST frame can span.
const MaxDSTSectors = 16

// searchRanger supplies the DST reader's access-list-guided search range,
// implemented by an areatoc.TOC.
type searchRanger interface {
	SearchRange(frame uint32) (from, to uint32)
}

type packetInfo struct {
	frameStart   bool
	dataType     DataType
	packetLength int
}

type frameInfo struct {
	frame       uint32
	sectorCount int
}

type dstSector struct {
	lsn        uint32
	packets    []packetInfo
	frameInfos []frameInfo
	payload    []byte // bytes following the header/packet-info/frame-info region
}

// dst implements Reader by scanning sector/packet/frame-info headers with
// access-list-guided seeking and a sequential-read position cache.
type dst struct {
	src            sector.Source
	ranges         searchRanger
	trackAreaStart uint32
	trackAreaEnd   uint32
	totalFrames    uint32

	haveCache     bool
	cachedFrame   uint32
	foundLSN      uint32
	nextFrameLSN  uint32
	nextFrameKnow bool
}

// NewDST returns a Reader for an area encoded with the DST format. ranges
// supplies the access-list search range for a target frame, normally an
// *areatoc.TOC.
func NewDST(src sector.Source, ranges searchRanger, trackAreaStart, trackAreaEnd, totalFrames uint32) Reader {
	return &dst{
		src:            src,
		ranges:         ranges,
		trackAreaStart: trackAreaStart,
		trackAreaEnd:   trackAreaEnd,
		totalFrames:    totalFrames,
	}
}

func (d *dst) SectorRange(frameNum uint32) (uint32, uint32, error) {
	if err := checkFrameBounds(frameNum, d.totalFrames, false); err != nil {
		return 0, 0, err
	}
	lsn, sectorCount, err := d.locate(frameNum)
	if err != nil {
		return 0, 0, err
	}
	return lsn, uint32(sectorCount), nil
}

// locate finds frameNum's starting LSN and sector count, trying the
// sequential cache first, then the access-list-guided scan with a single
// fallback retry over the whole track area.
func (d *dst) locate(frameNum uint32) (uint32, int, error) {
	if d.haveCache && frameNum == d.cachedFrame+1 && d.nextFrameKnow && d.nextFrameLSN > d.foundLSN {
		return d.scanFrom(d.nextFrameLSN, d.trackAreaEnd, frameNum, true)
	}

	from, to := d.ranges.SearchRange(frameNum)
	lsn, sectorCount, err := d.scanFrom(from, to, frameNum, false)
	if err == nil {
		return lsn, sectorCount, nil
	}
	if !sacderr.Is(err, sacderr.AccessListInvalid) && !sacderr.Is(err, sacderr.FrameNotFound) {
		return 0, 0, err
	}
	if from == d.trackAreaStart && to == d.trackAreaEnd {
		return 0, 0, err
	}
	return d.scanFrom(d.trackAreaStart, d.trackAreaEnd, frameNum, false)
}

// scanFrom scans sectors in [from, to] for frameNum's starting packet. If
// skipMatch is true, the caller already knows lsn `from` begins frameNum
// (the sequential cache case) and no time-code comparison is needed.
func (d *dst) scanFrom(from, to uint32, frameNum uint32, skipMatch bool) (uint32, int, error) {
	lsn := from
	for lsn <= to {
		sec, err := d.readSector(lsn)
		if err != nil {
			return 0, 0, err
		}

		fi := 0
		for _, p := range sec.packets {
			if !p.frameStart || p.dataType != Audio {
				continue
			}
			if fi >= len(sec.frameInfos) {
				break
			}
			info := sec.frameInfos[fi]
			fi++

			if skipMatch || info.frame == frameNum {
				return lsn, info.sectorCount, nil
			}
			if info.frame > frameNum {
				return 0, 0, sacderr.New(sacderr.AccessListInvalid, "frame.dst.scanFrom")
			}
		}
		lsn++
	}
	return 0, 0, sacderr.New(sacderr.FrameNotFound, "frame.dst.scanFrom")
}

// ReadFrame locates frameNum (or the frame following the last one read,
// if frameNum is CurrentFrame), reads up to MaxDSTSectors sectors, and
// copies every packet matching dataType belonging to that frame into buf.
func (d *dst) ReadFrame(buf []byte, frameNum uint32, dataType DataType) (int, error) {
	isContinuation := frameNum == CurrentFrame
	if isContinuation {
		if !d.haveCache {
			return 0, sacderr.New(sacderr.InvalidArgument, "frame.dst.ReadFrame")
		}
		frameNum = d.cachedFrame + 1
	}
	if err := checkFrameBounds(frameNum, d.totalFrames, isContinuation); err != nil {
		return 0, err
	}

	foundLSN, sectorCount, err := d.locate(frameNum)
	if err != nil {
		return 0, err
	}

	readCount := sectorCount
	if readCount > MaxDSTSectors {
		readCount = MaxDSTSectors
	}

	raw, err := sector.ReadLogical(d.src, foundLSN, uint32(readCount))
	if err != nil {
		return 0, sacderr.Wrap(sacderr.IO, "frame.dst.ReadFrame", err)
	}
	if inTrackArea(foundLSN, foundLSN+uint32(readCount)-1, d.trackAreaStart, d.trackAreaEnd) {
		if err := d.src.Decrypt(raw, uint32(readCount)); err != nil && !sacderr.Is(err, sacderr.NotSupported) {
			return 0, sacderr.Wrap(sacderr.DecryptFailed, "frame.dst.ReadFrame", err)
		}
	}

	payloadSize := d.src.Geometry().PayloadSize()

	written := 0
	started := false
	nextLSN := foundLSN
	nextKnown := false

	for s := 0; s < readCount; s++ {
		lsn := foundLSN + uint32(s)
		logical := raw[s*payloadSize : (s+1)*payloadSize]
		sec, err := parseSector(lsn, logical)
		if err != nil {
			return written, err
		}

		fi := 0
		for _, p := range sec.packets {
			isAudioFrameStart := p.frameStart && p.dataType == Audio
			if isAudioFrameStart {
				if fi >= len(sec.frameInfos) {
					break
				}
				info := sec.frameInfos[fi]
				fi++
				if !started && info.frame == frameNum {
					started = true
				} else if started {
					// a later frame_start=1 Audio packet: this frame is done.
					nextLSN = lsn
					nextKnown = true
					goto done
				}
			}
			if started && p.dataType == dataType {
				n := copy(buf[written:], sec.payload[:p.packetLength])
				written += n
			}
			sec.payload = sec.payload[p.packetLength:]
		}
	}
done:
	if !nextKnown && readCount > 0 {
		nextLSN = foundLSN + uint32(readCount)
		nextKnown = true
	}

	d.haveCache = true
	d.cachedFrame = frameNum
	d.foundLSN = foundLSN
	d.nextFrameLSN = nextLSN
	d.nextFrameKnow = nextKnown

	return written, nil
}

func inTrackArea(startLSN, endLSN, areaStart, areaEnd uint32) bool {
	return startLSN >= areaStart && endLSN <= areaEnd
}

func (d *dst) readSector(lsn uint32) (*dstSector, error) {
	logical, err := sector.ReadLogical(d.src, lsn, 1)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "frame.dst.readSector", err)
	}
	return parseSector(lsn, logical)
}

func parseSector(lsn uint32, logical []byte) (*dstSector, error) {
	r := bitio.NewReader(bytes.NewReader(logical))

	packetCount, err := r.ReadBits(3)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
	}
	frameStartCount, err := r.ReadBits(3)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
	}
	if _, err := r.ReadBits(1); err != nil { // reserved
		return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
	}
	dstCodedBit, err := r.ReadBits(1)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
	}
	dstCoded := dstCodedBit != 0

	packets := make([]packetInfo, packetCount)
	for i := range packets {
		frameStartBit, err := r.ReadBits(1)
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
		}
		if _, err := r.ReadBits(1); err != nil { // reserved
			return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
		}
		dataType, err := r.ReadBits(3)
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
		}
		packetLength, err := r.ReadBits(11)
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
		}
		packets[i] = packetInfo{
			frameStart:   frameStartBit != 0,
			dataType:     DataType(dataType),
			packetLength: int(packetLength),
		}
	}

	frameInfos := make([]frameInfo, frameStartCount)
	for i := range frameInfos {
		minutes, err := r.ReadByte()
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
		}
		seconds, err := r.ReadByte()
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
		}
		frames, err := r.ReadByte()
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
		}
		sectorCount := 1
		if dstCoded {
			channelByte, err := r.ReadByte()
			if err != nil {
				return nil, sacderr.Wrap(sacderr.IO, "frame.parseSector", err)
			}
			sectorCount = int((channelByte >> 2) & 0x1F)
		}
		frameInfos[i] = frameInfo{
			frame:       timeCodeToFrame(minutes, seconds, frames),
			sectorCount: sectorCount,
		}
	}

	headerBits := 8 + int(packetCount)*16 + func() int {
		if dstCoded {
			return int(frameStartCount) * 32
		}
		return int(frameStartCount) * 24
	}()
	headerBytes := headerBits / 8

	return &dstSector{
		lsn:        lsn,
		packets:    packets,
		frameInfos: frameInfos,
		payload:    logical[headerBytes:],
	}, nil
}
