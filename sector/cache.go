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
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSectors is the number of single-sector reads cached by
// WithCache when no explicit size is requested.
const DefaultCacheSectors = 64

// cachedSource wraps a Source with an LRU cache of single-sector reads.
// Area-TOC and frame-header scans repeatedly revisit the same handful of
// sectors; caching them avoids re-hitting the underlying file, network
// connection, or drive for every lookup. Multi-sector reads (audio frame
// payloads) bypass the cache and go straight to the underlying Source,
// since they are rarely repeated and would evict the small working set
// the TOC/access-list code depends on.
type cachedSource struct {
	Source
	cache *lru.Cache[uint32, []byte]
}

// WithCache wraps src with an LRU cache holding up to size single-sector
// reads. A size of 0 uses DefaultCacheSectors.
func WithCache(src Source, size int) (Source, error) {
	if size <= 0 {
		size = DefaultCacheSectors
	}
	cache, err := lru.New[uint32, []byte](size)
	if err != nil {
		return nil, err
	}
	return &cachedSource{Source: src, cache: cache}, nil
}

func (cs *cachedSource) ReadSectors(lsn uint32, count uint32, buf []byte) (int, error) {
	if count != 1 {
		return cs.Source.ReadSectors(lsn, count, buf)
	}

	if data, ok := cs.cache.Get(lsn); ok {
		copy(buf, data)
		return 1, nil
	}

	n, err := cs.Source.ReadSectors(lsn, count, buf)
	if err != nil || n != 1 {
		return n, err
	}

	sectorSize := cs.Source.Geometry().SectorSize
	cached := make([]byte, sectorSize)
	copy(cached, buf[:sectorSize])
	cs.cache.Add(lsn, cached)

	return n, nil
}
