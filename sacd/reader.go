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

// Package sacd implements the Reader Facade: the single entry point
// that opens a Sector Source, loads the Master TOC and whichever Area
// TOCs are present, and routes disc-level, area-level, and frame-level
// queries to them.
package sacd

import (
	"strings"

	"github.com/sacdtools/sacdcore/areatoc"
	"github.com/sacdtools/sacdcore/frame"
	"github.com/sacdtools/sacdcore/mastertoc"
	"github.com/sacdtools/sacdcore/sacderr"
	"github.com/sacdtools/sacdcore/sector"
)

// audioFrameOverhead is the extra byte of capacity §4.6 requires per
// channel for Audio frame data, beyond the 4704 DSD bytes/channel.
const audioFrameOverhead = 1

// dsdBytesPerChannel is the per-channel DSD byte count a full frame
// carries at 75 frames/second.
const dsdBytesPerChannel = 4704

// supplementaryChannels is the fixed channel width §4.6 specifies for
// Supplementary frame capacity, independent of the area's own channel count.
const supplementaryChannels = 8

// Reader is the Reader Facade: it owns the Sector Source and the
// parsed Master/Area TOCs for one open disc image, and tracks the
// caller's current channel-type selection and frame reader.
//
// A Reader is single-threaded: operations on one instance must not be
// called concurrently, though separate Reader instances are fully
// independent.
type Reader struct {
	src sector.Source

	master     *mastertoc.TOC
	masterCopy int
	areaCopy   int

	stereo *areatoc.TOC
	multi  *areatoc.TOC

	current     areatoc.Kind
	haveCurrent bool
	frameReader frame.Reader

	currentFrame uint32
}

// Open dispatches pathOrIdentifier to the matching Sector Source
// backend (network address, optical device, or plain/archived file),
// then loads the Master TOC copy masterCopy (1-3) and both Area TOCs
// at copy areaCopy (1 or 2), tolerating either area being absent.
func Open(pathOrIdentifier string, masterCopy, areaCopy int) (*Reader, error) {
	src, err := openSource(pathOrIdentifier)
	if err != nil {
		return nil, err
	}

	r, err := Init(src, masterCopy, areaCopy)
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// openSource picks the Sector Source backend matching pathOrIdentifier's
// shape: a "host:port" address dials the network backend, an optical
// device path opens the drive backend, and anything else opens as a file
// (plain, archive-packed, or gzip-wrapped; see sector.OpenFile).
func openSource(pathOrIdentifier string) (sector.Source, error) {
	if sector.IsOpticalDevice(pathOrIdentifier) {
		return sector.OpenDrive(pathOrIdentifier, nil)
	}
	if looksLikeNetworkAddress(pathOrIdentifier) {
		return sector.DialNetwork(pathOrIdentifier)
	}
	return sector.OpenFile(pathOrIdentifier)
}

// looksLikeNetworkAddress reports whether s has the shape of a
// "host:port" address rather than a filesystem path: it contains a
// colon after its first character and no path separator anywhere
// (ruling out "C:\..." and "/path:with:colons").
func looksLikeNetworkAddress(s string) bool {
	colon := strings.LastIndexByte(s, ':')
	if colon <= 0 {
		return false
	}
	if strings.ContainsAny(s, `/\`) {
		return false
	}
	return true
}

// Init builds a Reader directly from an already-opened Sector Source,
// loading the Master TOC copy masterCopy (1-3) and both Area TOCs at
// copy areaCopy (1 or 2). Either area may be absent on disc; Init fails
// if the Master TOC cannot be read, if the Area TOC of an area the
// Master TOC marks present cannot be read, or if both areas are absent.
// src is wrapped in a single-sector LRU cache (see
// sector.WithCache) before any TOC is read, so the repeated Area-TOC and
// DST frame-header scans every subsequent operation performs stay cheap
// even on a slow backing source. The Reader does not take ownership of
// src on failure: the caller is responsible for closing it.
func Init(src sector.Source, masterCopy, areaCopy int) (*Reader, error) {
	cached, err := sector.WithCache(src, 0)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.Memory, "sacd.Init", err)
	}
	src = cached

	master, err := mastertoc.Read(src, masterCopy)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:        src,
		master:     master,
		masterCopy: masterCopy,
		areaCopy:   areaCopy,
	}

	if master.StereoArea.Present() {
		toc, err := areatoc.Read(src, areatoc.Stereo, master.StereoArea, areaCopy, master.TextChannels)
		if err != nil {
			return nil, err
		}
		r.stereo = toc
	}
	if master.MultichannelArea.Present() {
		toc, err := areatoc.Read(src, areatoc.Multichannel, master.MultichannelArea, areaCopy, master.TextChannels)
		if err != nil {
			return nil, err
		}
		r.multi = toc
	}
	if r.stereo == nil && r.multi == nil {
		return nil, sacderr.New(sacderr.NotAvailable, "sacd.Init")
	}

	if r.multi != nil {
		if err := r.SelectChannelType(areatoc.Multichannel); err != nil {
			return nil, err
		}
	} else {
		if err := r.SelectChannelType(areatoc.Stereo); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Close releases the underlying Sector Source. Close is idempotent and
// safe to call on a Reader in any state, including one left over from
// a failed Init.
func (r *Reader) Close() error {
	if r == nil || r.src == nil {
		return nil
	}
	err := r.src.Close()
	r.src = nil
	r.frameReader = nil
	r.haveCurrent = false
	return err
}

// AvailableChannelTypes returns the area kinds present on disc,
// multichannel first, then stereo, per §4.6.
func (r *Reader) AvailableChannelTypes() []areatoc.Kind {
	var kinds []areatoc.Kind
	if r.multi != nil {
		kinds = append(kinds, areatoc.Multichannel)
	}
	if r.stereo != nil {
		kinds = append(kinds, areatoc.Stereo)
	}
	return kinds
}

// SelectChannelType switches the Reader's current area to kind,
// resetting its frame cursor. It fails with NotAvailable if that area
// is absent from the disc.
func (r *Reader) SelectChannelType(kind areatoc.Kind) error {
	toc := r.areaTOC(kind)
	if toc == nil {
		return sacderr.New(sacderr.NotAvailable, "sacd.Reader.SelectChannelType")
	}

	fr, err := toc.NewFrameReader()
	if err != nil {
		return err
	}

	r.current = kind
	r.haveCurrent = true
	r.frameReader = fr
	r.currentFrame = 0
	return nil
}

func (r *Reader) areaTOC(kind areatoc.Kind) *areatoc.TOC {
	if kind == areatoc.Multichannel {
		return r.multi
	}
	return r.stereo
}

// currentArea returns the selected Area TOC, failing with Uninitialised
// if no channel type has been selected (should not happen: Init always
// selects one of the present areas).
func (r *Reader) currentArea() (*areatoc.TOC, error) {
	if !r.haveCurrent {
		return nil, sacderr.New(sacderr.Uninitialised, "sacd.Reader")
	}
	toc := r.areaTOC(r.current)
	if toc == nil {
		return nil, sacderr.New(sacderr.Uninitialised, "sacd.Reader")
	}
	return toc, nil
}

// --- disc-level accessors: delegate to the Master TOC ---

// DiscGenre returns the nth (1-based) disc genre from the Master TOC.
func (r *Reader) DiscGenre(n int) (mastertoc.Genre, error) {
	return r.master.DiscGenre(n)
}

// AlbumGenre returns the nth (1-based) album genre from the Master TOC.
func (r *Reader) AlbumGenre(n int) (mastertoc.Genre, error) {
	return r.master.AlbumGenre(n)
}

// TextChannel returns the nth (1-based) used Master TOC text channel.
func (r *Reader) TextChannel(n int) (mastertoc.TextChannel, error) {
	return r.master.Channel(n)
}

// AlbumDir composes the album directory name per style.
func (r *Reader) AlbumDir(style mastertoc.DirStyle) (string, error) {
	return r.master.AlbumDir(style)
}

// DiscDir composes the disc directory name per style.
func (r *Reader) DiscDir(style mastertoc.DirStyle) (string, error) {
	return r.master.DiscDir(style)
}

// MasterTOC returns the underlying parsed Master TOC, for callers that
// need direct access to fields the facade does not wrap individually.
func (r *Reader) MasterTOC() *mastertoc.TOC {
	return r.master
}

// --- area-level accessors: delegate to the selected Area TOC ---

// Track returns the nth (1-based) track of the currently selected area.
func (r *Reader) Track(n int) (areatoc.Track, error) {
	toc, err := r.currentArea()
	if err != nil {
		return areatoc.Track{}, err
	}
	return toc.Track(n)
}

// TrackCount returns the currently selected area's track count.
func (r *Reader) TrackCount() (int, error) {
	toc, err := r.currentArea()
	if err != nil {
		return 0, err
	}
	return len(toc.Tracks), nil
}

// AreaTOC returns the currently selected Area TOC, for callers that
// need direct access to fields the facade does not wrap individually.
func (r *Reader) AreaTOC() (*areatoc.TOC, error) {
	return r.currentArea()
}

// --- frame-level reads ---

// ReadSoundData reads up to frameCount Audio frames starting at
// frameStart (or frame.CurrentFrame to continue from the last frame
// read) into buf, which must be at least frameCount *
// ((4704+1) * channel_count) bytes. frameSizes, if non-nil, must have
// length frameCount and receives each frame's actual byte count.
// Reading stops at the first error, returning the count of frames
// successfully read and that error (nil if all frameCount were read).
func (r *Reader) ReadSoundData(buf []byte, frameStart uint32, frameCount int, frameSizes []int) (int, error) {
	return r.readFrames(buf, frameStart, frameCount, frameSizes, frame.Audio)
}

// ReadSupplementaryData is ReadSoundData's Supplementary counterpart:
// buf must be at least frameCount * (4704*8) bytes.
func (r *Reader) ReadSupplementaryData(buf []byte, frameStart uint32, frameCount int, frameSizes []int) (int, error) {
	return r.readFrames(buf, frameStart, frameCount, frameSizes, frame.Supplementary)
}

func (r *Reader) readFrames(buf []byte, frameStart uint32, frameCount int, frameSizes []int, dataType frame.DataType) (int, error) {
	toc, err := r.currentArea()
	if err != nil {
		return 0, err
	}

	capacity := dsdBytesPerChannel * supplementaryChannels
	if dataType == frame.Audio {
		capacity = (dsdBytesPerChannel + audioFrameOverhead) * int(toc.ChannelCount)
	}

	frameNum := frameStart
	written := 0
	for i := 0; i < frameCount; i++ {
		n, err := r.frameReader.ReadFrame(buf[written:written+capacity], frameNum, dataType)
		if err != nil {
			return i, err
		}
		if frameSizes != nil {
			frameSizes[i] = n
		}
		written += capacity
		r.currentFrame = frameNum
		frameNum = frame.CurrentFrame
	}
	return frameCount, nil
}

// --- raw sector access ---

// ReadRawSectors reads count raw sectors starting at lsn into buf,
// delegating to the Sector Source, and decrypts the buffer in place
// when the source supports decryption and [lsn, lsn+count) lies inside
// either Area TOC's DST-coded track range.
func (r *Reader) ReadRawSectors(lsn uint32, count uint32, buf []byte) (int, error) {
	n, err := r.src.ReadSectors(lsn, count, buf)
	if err != nil {
		return n, sacderr.Wrap(sacderr.IO, "sacd.Reader.ReadRawSectors", err)
	}
	if n == 0 {
		return 0, nil
	}

	if r.rangeInDSTTrackArea(lsn, lsn+uint32(n)-1) {
		if err := r.src.Decrypt(buf, uint32(n)); err != nil && !sacderr.Is(err, sacderr.NotSupported) {
			return n, sacderr.Wrap(sacderr.DecryptFailed, "sacd.Reader.ReadRawSectors", err)
		}
	}
	return n, nil
}

func (r *Reader) rangeInDSTTrackArea(startLSN, endLSN uint32) bool {
	for _, toc := range []*areatoc.TOC{r.stereo, r.multi} {
		if toc == nil || toc.FrameFormat != areatoc.FrameFormatDST {
			continue
		}
		if startLSN >= toc.TrackAreaStartLSN && endLSN <= toc.TrackAreaEndLSN {
			return true
		}
	}
	return false
}
