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

// Package frame implements the three audio frame readers: fixed-layout
// DSD 3-in-14 and 3-in-16 extraction by deterministic sector arithmetic,
// and DST extraction by scanning sector/packet headers with access-list
// guided seeking.
package frame

import "github.com/sacdtools/sacdcore/sacderr"

// DataType identifies the kind of packet payload a frame read should
// collect.
type DataType uint8

const (
	Audio         DataType = 2
	Supplementary DataType = 3
	Padding       DataType = 7
)

// CurrentFrame requests the frame immediately following the last one
// read by this Reader, rather than an explicit frame number.
const CurrentFrame = ^uint32(0)

// FrameBytes is the fixed caller-visible payload length of one DSD
// audio frame (1/75 s of DSD content).
const FrameBytes = 9408

const framesPerSecond = 75

// Reader extracts individual audio frames from a track area.
type Reader interface {
	// ReadFrame fills buf with every packet whose DataType matches
	// dataType for the requested frame (or the frame following the last
	// one read, if frameNum is CurrentFrame), returning the number of
	// bytes written.
	ReadFrame(buf []byte, frameNum uint32, dataType DataType) (int, error)

	// SectorRange returns the starting LSN and sector count spanned by
	// frameNum.
	SectorRange(frameNum uint32) (startLSN uint32, sectorCount uint32, err error)
}

func timeCodeToFrame(minutes, seconds, frames uint8) uint32 {
	return uint32(minutes)*4500 + uint32(seconds)*framesPerSecond + uint32(frames)
}

// checkFrameBounds validates frameNum against totalFrames. isContinuation
// distinguishes a CurrentFrame-sentinel continuation that walked past the
// end of the area (EndOfAudio, an expected terminal condition for sequential
// reads) from an explicit out-of-range frame request (InvalidArgument, a
// caller error).
func checkFrameBounds(frameNum, totalFrames uint32, isContinuation bool) error {
	if frameNum >= totalFrames {
		if isContinuation {
			return sacderr.New(sacderr.EndOfAudio, "frame.Reader.ReadFrame")
		}
		return sacderr.New(sacderr.InvalidArgument, "frame.Reader.ReadFrame")
	}
	return nil
}
