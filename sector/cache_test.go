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

package sector_test

import (
	"testing"

	"github.com/sacdtools/sacdcore/sector"
)

// countingSource wraps an in-memory image and counts ReadSectors calls,
// so tests can observe whether WithCache actually avoided a re-read.
type countingSource struct {
	data  []byte
	geom  sector.Geometry
	reads int
}

func (c *countingSource) Close() error { return nil }

func (c *countingSource) ReadSectors(lsn uint32, count uint32, buf []byte) (int, error) {
	c.reads++
	size := c.geom.SectorSize
	off := int(lsn) * size
	n := int(count) * size
	copy(buf, c.data[off:off+n])
	return int(count), nil
}

func (c *countingSource) TotalSectors() (uint32, error) {
	return uint32(len(c.data) / c.geom.SectorSize), nil
}

func (c *countingSource) Authenticate() error               { return nil }
func (c *countingSource) Decrypt(_ []byte, _ uint32) error  { return nil }
func (c *countingSource) Geometry() sector.Geometry         { return c.geom }

func newCountingSource(sectors int) *countingSource {
	geom := sector.Geometry{Format: sector.Format2048, SectorSize: 2048}
	data := make([]byte, sectors*2048)
	for i := 0; i < sectors; i++ {
		data[i*2048] = byte(i)
	}
	return &countingSource{data: data, geom: geom}
}

func TestWithCache_HitAvoidsRereadingSource(t *testing.T) {
	t.Parallel()

	inner := newCountingSource(10)
	cached, err := sector.WithCache(inner, 4)
	if err != nil {
		t.Fatalf("WithCache: %v", err)
	}

	buf := make([]byte, 2048)
	if _, err := cached.ReadSectors(3, 1, buf); err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
	if _, err := cached.ReadSectors(3, 1, buf); err != nil {
		t.Fatalf("ReadSectors (cached): %v", err)
	}

	if inner.reads != 1 {
		t.Errorf("underlying reads = %d, want 1 (second read should hit cache)", inner.reads)
	}
	if buf[0] != 3 {
		t.Errorf("buf[0] = %d, want 3", buf[0])
	}
}

func TestWithCache_MultiSectorBypassesCache(t *testing.T) {
	t.Parallel()

	inner := newCountingSource(10)
	cached, err := sector.WithCache(inner, 4)
	if err != nil {
		t.Fatalf("WithCache: %v", err)
	}

	buf := make([]byte, 2*2048)
	if _, err := cached.ReadSectors(0, 2, buf); err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
	if _, err := cached.ReadSectors(0, 2, buf); err != nil {
		t.Fatalf("ReadSectors (repeat): %v", err)
	}

	if inner.reads != 2 {
		t.Errorf("underlying reads = %d, want 2 (multi-sector reads must bypass cache)", inner.reads)
	}
}

func TestWithCache_DefaultSize(t *testing.T) {
	t.Parallel()

	inner := newCountingSource(2)
	cached, err := sector.WithCache(inner, 0)
	if err != nil {
		t.Fatalf("WithCache: %v", err)
	}

	buf := make([]byte, 2048)
	if _, err := cached.ReadSectors(0, 1, buf); err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
}
