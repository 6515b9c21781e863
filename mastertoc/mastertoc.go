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

// Package mastertoc parses the disc-level Master TOC: one of three
// redundant ten-sector copies at LSN 510, 520, or 530, carrying album and
// disc metadata, area pointers, genres, and up to eight text channels.
package mastertoc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sacdtools/sacdcore/charset"
	"github.com/sacdtools/sacdcore/internal/binary"
	"github.com/sacdtools/sacdcore/sacderr"
	"github.com/sacdtools/sacdcore/sector"
)

const (
	// SectorCount is the number of contiguous logical sectors making up
	// one Master TOC copy.
	SectorCount = 10

	// Signature identifies the header sector of a Master TOC copy.
	Signature = "SACDMTOC"
	// ManufacturerSignature identifies the manufacturer-info sector,
	// always the last of the ten.
	ManufacturerSignature = "SACD_Man"
	// TextSignature identifies a used text-channel sector.
	TextSignature = "SACDText"

	// MaxTextChannels is the maximum number of text channels a Master
	// TOC can carry, each occupying its own logical sector.
	MaxTextChannels = 8

	sectorSize          = 2048
	manufacturerSector  = 9 // last of the 10 sectors
	manufacturerBlobLen = 2040
	catalogNumberLen    = 16
	webLinkLen          = 128
)

// Header field byte offsets within the first logical sector.
const (
	offSignature     = 0
	offVersionMajor  = 8
	offVersionMinor  = 9
	offAlbumSetSize  = 10
	offAlbumSeqNum   = 12
	offHybridFlag    = 14
	offDateYear      = 16
	offDateMonth     = 18
	offDateDay       = 19
	offStereoArea    = 20
	offMultichArea   = 32
	offDiscGenres    = 44
	offAlbumGenres   = 52
	offTextChanCount = 60
	offLangCharset   = 64
	offCatalogNum    = 96
	offWebLink       = 112
	offTextOffsets   = 240

	areaPointerLen = 12 // copy1_lsn, copy2_lsn, length_sectors: 3 x uint32
	langCharsetLen = 4  // 2-byte ISO-639 code, charset byte, reserved byte
)

// TextType identifies one of the sixteen text slots a used channel may
// populate: eight album fields followed by eight disc fields, each set
// ordered {title, artist, publisher, copyright} then their phonetic
// variants.
type TextType int

const (
	AlbumTitle TextType = iota
	AlbumArtist
	AlbumPublisher
	AlbumCopyright
	AlbumTitlePhonetic
	AlbumArtistPhonetic
	AlbumPublisherPhonetic
	AlbumCopyrightPhonetic
	DiscTitle
	DiscArtist
	DiscPublisher
	DiscCopyright
	DiscTitlePhonetic
	DiscArtistPhonetic
	DiscPublisherPhonetic
	DiscCopyrightPhonetic
)

const textTypeCount = 16

// Date is the disc's creation date as carried on disc.
type Date struct {
	Year  uint16
	Month uint8
	Day   uint8
}

// AreaPointer locates one area's two redundant Area TOC copies. A zero
// value (both LSNs zero) means the area is absent.
type AreaPointer struct {
	Copy1LSN      uint32
	Copy2LSN      uint32
	LengthSectors uint32
}

// Present reports whether the area exists on disc.
func (p AreaPointer) Present() bool {
	return p.Copy1LSN != 0
}

// Genre is a (table, index) pair into the SACD genre table.
type Genre struct {
	Table uint8
	Index uint8
}

// TextChannel holds one used text channel's language, charset, and the
// sixteen text fields decoded from its dedicated logical sector.
type TextChannel struct {
	Language string
	Charset  uint8
	Texts    [textTypeCount]string
}

// Text returns the decoded string for t, or "" if the field's on-disc
// offset was zero (unset).
func (c TextChannel) Text(t TextType) string {
	return c.Texts[t]
}

// TOC is a fully parsed Master TOC copy.
type TOC struct {
	VersionMajor        uint8
	VersionMinor        uint8
	AlbumSetSize        uint16
	AlbumSequenceNumber uint16
	Hybrid              bool
	CreationDate        Date
	CatalogNumber       string
	WebLink             string
	Manufacturer        string

	StereoArea       AreaPointer
	MultichannelArea AreaPointer

	DiscGenres  [4]Genre
	AlbumGenres [4]Genre

	TextChannelCount uint8
	TextChannels     []TextChannel // one entry per used (charset!=0 && language!="") channel
}

// Read loads and parses the Master TOC copy numbered copyNum (1, 2, or 3,
// corresponding to LSN 510, 520, 530) from src.
func Read(src sector.Source, copyNum int) (*TOC, error) {
	lsn, err := probeLSN(copyNum)
	if err != nil {
		return nil, err
	}

	logical, err := sector.ReadLogical(src, lsn, SectorCount)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "mastertoc.Read", err)
	}
	if len(logical) < SectorCount*sectorSize {
		return nil, sacderr.New(sacderr.NoData, "mastertoc.Read")
	}

	return parse(logical)
}

func probeLSN(copyNum int) (uint32, error) {
	switch copyNum {
	case 1:
		return 510, nil
	case 2:
		return 520, nil
	case 3:
		return 530, nil
	default:
		return 0, sacderr.New(sacderr.InvalidArgument, "mastertoc.Read")
	}
}

func headerSector(logical []byte) []byte {
	return logical[:sectorSize]
}

func textSector(logical []byte, channel int) []byte {
	start := (1 + channel) * sectorSize
	return logical[start : start+sectorSize]
}

func manufacturerSectorBytes(logical []byte) []byte {
	start := manufacturerSector * sectorSize
	return logical[start : start+sectorSize]
}

func parse(logical []byte) (*TOC, error) {
	header := headerSector(logical)

	if !bytes.Equal(header[offSignature:offSignature+8], []byte(Signature)) {
		return nil, sacderr.New(sacderr.InvalidSignature, "mastertoc.parse")
	}

	manSector := manufacturerSectorBytes(logical)
	if !bytes.Equal(manSector[:8], []byte(ManufacturerSignature)) {
		return nil, sacderr.New(sacderr.InvalidSignature, "mastertoc.parse")
	}

	textChannelCount := header[offTextChanCount]
	if int(textChannelCount) > MaxTextChannels {
		return nil, sacderr.New(sacderr.InvalidArgument, "mastertoc.parse")
	}
	for c := 0; c < int(textChannelCount); c++ {
		ts := textSector(logical, c)
		if !bytes.Equal(ts[:8], []byte(TextSignature)) {
			return nil, sacderr.New(sacderr.InvalidSignature, "mastertoc.parse")
		}
	}

	stereo := readAreaPointer(header, offStereoArea)
	multich := readAreaPointer(header, offMultichArea)
	if !pointerConsistent(stereo) || !pointerConsistent(multich) {
		return nil, sacderr.New(sacderr.InvalidSignature, "mastertoc.parse")
	}

	toc := &TOC{
		VersionMajor:        header[offVersionMajor],
		VersionMinor:        header[offVersionMinor],
		AlbumSetSize:        be16(header, offAlbumSetSize),
		AlbumSequenceNumber: be16(header, offAlbumSeqNum),
		Hybrid:              header[offHybridFlag] != 0,
		CreationDate: Date{
			Year:  be16(header, offDateYear),
			Month: header[offDateMonth],
			Day:   header[offDateDay],
		},
		CatalogNumber:    binary.CleanString(header[offCatalogNum : offCatalogNum+catalogNumberLen]),
		WebLink:          binary.CleanString(header[offWebLink : offWebLink+webLinkLen]),
		Manufacturer:     binary.CleanString(manSector[8 : 8+manufacturerBlobLen]),
		StereoArea:       stereo,
		MultichannelArea: multich,
		TextChannelCount: textChannelCount,
	}

	for i := 0; i < 4; i++ {
		toc.DiscGenres[i] = readGenre(header, offDiscGenres+i*2)
		toc.AlbumGenres[i] = readGenre(header, offAlbumGenres+i*2)
	}

	for c := 0; c < int(textChannelCount); c++ {
		lang, chset := readLangCharset(header, c)
		if chset == 0 || lang == "" {
			continue
		}

		tc := TextChannel{Language: lang, Charset: chset}
		ts := textSector(logical, c)
		for t := 0; t < textTypeCount; t++ {
			off := be16(header, offTextOffsets+(c*textTypeCount+t)*2)
			if off == 0 || int(off) >= sectorSize {
				continue
			}
			tc.Texts[t] = charset.Decode(ts[off:], chset)
		}
		toc.TextChannels = append(toc.TextChannels, tc)
	}

	return toc, nil
}

func be16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

func be32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

func readAreaPointer(header []byte, off int) AreaPointer {
	return AreaPointer{
		Copy1LSN:      be32(header, off),
		Copy2LSN:      be32(header, off+4),
		LengthSectors: be32(header, off+8),
	}
}

func pointerConsistent(p AreaPointer) bool {
	if p.Copy1LSN == 0 && p.Copy2LSN == 0 {
		return true
	}
	return p.Copy1LSN != 0 && p.Copy2LSN != 0
}

func readGenre(header []byte, off int) Genre {
	return Genre{Table: header[off], Index: header[off+1]}
}

func readLangCharset(header []byte, channel int) (string, uint8) {
	off := offLangCharset + channel*langCharsetLen
	lang := string(bytes.TrimRight(header[off:off+2], "\x00"))
	charsetCode := header[off+2]
	return lang, charsetCode
}

// DiscGenre returns the nth (1-based) disc genre.
func (t *TOC) DiscGenre(n int) (Genre, error) {
	if n < 1 || n > len(t.DiscGenres) {
		return Genre{}, sacderr.New(sacderr.InvalidArgument, "mastertoc.TOC.DiscGenre")
	}
	return t.DiscGenres[n-1], nil
}

// AlbumGenre returns the nth (1-based) album genre.
func (t *TOC) AlbumGenre(n int) (Genre, error) {
	if n < 1 || n > len(t.AlbumGenres) {
		return Genre{}, sacderr.New(sacderr.InvalidArgument, "mastertoc.TOC.AlbumGenre")
	}
	return t.AlbumGenres[n-1], nil
}

// Channel returns the nth (1-based) used text channel.
func (t *TOC) Channel(n int) (TextChannel, error) {
	if n < 1 || n > len(t.TextChannels) {
		return TextChannel{}, sacderr.New(sacderr.InvalidArgument, "mastertoc.TOC.Channel")
	}
	return t.TextChannels[n-1], nil
}

// DirStyle selects how AlbumDir/DiscDir compose the directory name.
type DirStyle int

const (
	TitleOnly DirStyle = iota
	ArtistTitle
	YearArtistTitle
)

// AlbumDir composes a filesystem-safe album directory name from the
// first used text channel, per style, appending "(Disc N of M)" when the
// album is a multi-disc set.
func (t *TOC) AlbumDir(style DirStyle) (string, error) {
	ch, err := t.Channel(1)
	if err != nil {
		return "", err
	}
	name := composeName(style, t.CreationDate.Year, ch.Text(AlbumArtist), ch.Text(AlbumTitle))
	if t.AlbumSetSize > 1 {
		name = fmt.Sprintf("%s (Disc %d of %d)", name, t.AlbumSequenceNumber, t.AlbumSetSize)
	}
	return sanitizeFilename(name), nil
}

// DiscDir composes a filesystem-safe disc directory name from the first
// used text channel's disc-level text fields.
func (t *TOC) DiscDir(style DirStyle) (string, error) {
	ch, err := t.Channel(1)
	if err != nil {
		return "", err
	}
	name := composeName(style, t.CreationDate.Year, ch.Text(DiscArtist), ch.Text(DiscTitle))
	return sanitizeFilename(name), nil
}

func composeName(style DirStyle, year uint16, artist, title string) string {
	switch style {
	case YearArtistTitle:
		if artist != "" {
			return fmt.Sprintf("%04d - %s - %s", year, artist, title)
		}
		return fmt.Sprintf("%04d - %s", year, title)
	case ArtistTitle:
		if artist != "" {
			return fmt.Sprintf("%s - %s", artist, title)
		}
		return title
	default:
		return title
	}
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
