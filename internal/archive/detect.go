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

package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

// discImageExtensions are file extensions that indicate a raw SACD disc image.
var discImageExtensions = map[string]bool{
	".iso": true,
	".img": true,
	".bin": true,
}

// IsDiscImageFile checks if a filename has a recognized disc-image extension.
func IsDiscImageFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return discImageExtensions[ext]
}

// DetectDiscImageFile finds the disc image in an archive. It scans the
// archive's file list and, among entries with a recognized disc-image
// extension, returns the largest one: archives built around a single disc
// image sometimes bundle smaller extras (booklet scans, checksums) under a
// matching extension, and the real disc image is always by far the largest
// member.
func DetectDiscImageFile(arc Archive) (string, error) {
	files, err := arc.List()
	if err != nil {
		return "", fmt.Errorf("list archive files: %w", err)
	}

	best := ""
	var bestSize int64 = -1
	for _, file := range files {
		if !file.IsDiscImage && !IsDiscImageFile(file.Name) {
			continue
		}
		if file.Size > bestSize {
			best, bestSize = file.Name, file.Size
		}
	}
	if best == "" {
		return "", NoDiscImageError{Archive: "archive"}
	}

	return best, nil
}
