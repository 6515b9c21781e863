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

package sector

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sacdtools/sacdcore/internal/archive"
	"github.com/sacdtools/sacdcore/sacderr"
)

// fileSource is the file-backed Source variant: plain disc images,
// optionally packed inside a .zip/.7z/.rar archive or gzip-wrapped.
type fileSource struct {
	ra     io.ReaderAt
	closer io.Closer
	size   int64
	geom   Geometry
}

// OpenFile opens a disc image from a path. The path may be a plain
// .iso/.img/.bin file, a gzip-wrapped file (.gz), or a reference into a
// .zip/.7z/.rar archive using the convention
// "archive.zip/inner/path.iso" (or just "archive.zip" to auto-detect the
// largest disc image inside). It probes LSN 510 for the Master TOC
// signature under each of the three sector geometries, falling back to
// the bare 2048-byte geometry if none match.
func OpenFile(path string) (Source, error) {
	ra, closer, size, err := openRandomAccess(path)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "sector.OpenFile", err)
	}

	geom, err := probeGeometry(ra)
	if err != nil {
		_ = closer.Close()
		return nil, sacderr.Wrap(sacderr.IO, "sector.OpenFile", err)
	}

	return &fileSource{ra: ra, closer: closer, size: size, geom: geom}, nil
}

// openRandomAccess resolves path to a random-access byte source,
// transparently handling archive-packed and gzip-wrapped images.
func openRandomAccess(path string) (io.ReaderAt, io.Closer, int64, error) {
	archivePath, err := archive.ParsePath(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("parse archive path: %w", err)
	}
	if archivePath != nil {
		return openFromArchive(*archivePath)
	}

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		return openGzip(path)
	}

	f, err := os.Open(path) //nolint:gosec // path is caller-supplied disc image location
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, 0, fmt.Errorf("stat file: %w", err)
	}
	return f, f, info.Size(), nil
}

func openFromArchive(p archive.Path) (io.ReaderAt, io.Closer, int64, error) {
	arc, err := archive.Open(p.ArchivePath)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open archive: %w", err)
	}

	internalPath := p.InternalPath
	if internalPath == "" {
		internalPath, err = archive.DetectDiscImageFile(arc)
		if err != nil {
			_ = arc.Close()
			return nil, nil, 0, fmt.Errorf("detect disc image in archive: %w", err)
		}
	}

	ra, size, fileCloser, err := arc.OpenReaderAt(internalPath)
	if err != nil {
		_ = arc.Close()
		return nil, nil, 0, fmt.Errorf("open disc image in archive: %w", err)
	}

	return ra, multiCloser{fileCloser, arc}, size, nil
}

// openGzip decompresses the whole image into memory. Random access into a
// gzip stream is otherwise impossible, so the file variant buffers fully
// rather than support only sequential reads (the Source contract requires
// ReadAt-style random access for TOC and access-list seeking).
func openGzip(path string) (io.ReaderAt, io.Closer, int64, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-supplied disc image location
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open gzip file: %w", err)
	}
	defer func() { _ = f.Close() }()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("create gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("decompress gzip file: %w", err)
	}

	return bytes.NewReader(data), io.NopCloser(nil), int64(len(data)), nil
}

// multiCloser closes each of its closers in order, returning the first error.
type multiCloser []io.Closer

func (mc multiCloser) Close() error {
	var firstErr error
	for _, c := range mc {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// probeGeometry tries each sector geometry in turn, reading the Master
// TOC signature at LSN 510, and falls back to the bare 2048 layout if
// none match (the Master TOC parser will then fail with InvalidSignature,
// per the preserved design note in spec.md §9).
func probeGeometry(ra io.ReaderAt) (Geometry, error) {
	sig := []byte(MasterTOCSignature)
	buf := make([]byte, len(sig))

	for _, geom := range geometryTable {
		offset := rawOffset(MasterTOCProbeLSN, geom) + int64(geom.HeaderSize)
		n, err := ra.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			continue
		}
		if n == len(buf) && bytes.Equal(buf, sig) {
			return geom, nil
		}
	}

	return geometryTable[len(geometryTable)-1], nil
}

func (fs *fileSource) Close() error {
	return fs.closer.Close()
}

func (fs *fileSource) ReadSectors(lsn uint32, count uint32, buf []byte) (int, error) {
	if err := validateBuf(buf, count, fs.geom); err != nil {
		return 0, sacderr.Wrap(sacderr.InvalidArgument, "sector.File.ReadSectors", err)
	}

	offset := rawOffset(lsn, fs.geom)
	want := int64(count) * int64(fs.geom.SectorSize)
	if offset >= fs.size {
		return 0, sacderr.New(sacderr.NoData, "sector.File.ReadSectors")
	}
	if offset+want > fs.size {
		want = fs.size - offset
	}

	n, err := fs.ra.ReadAt(buf[:want], offset)
	sectorsRead := n / fs.geom.SectorSize
	if err != nil && err != io.EOF {
		return sectorsRead, sacderr.Wrap(sacderr.IO, "sector.File.ReadSectors", err)
	}
	return sectorsRead, nil
}

func (fs *fileSource) TotalSectors() (uint32, error) {
	return uint32(fs.size / int64(fs.geom.SectorSize)), nil //nolint:gosec // disc images are far below uint32 sector counts
}

func (fs *fileSource) Authenticate() error {
	return sacderr.New(sacderr.NotSupported, "sector.File.Authenticate")
}

func (fs *fileSource) Decrypt(_ []byte, _ uint32) error {
	return sacderr.New(sacderr.NotSupported, "sector.File.Decrypt")
}

func (fs *fileSource) Geometry() Geometry {
	return fs.geom
}
