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
	"fmt"
	"os"

	"github.com/sacdtools/sacdcore/sacderr"
)

// DriveAuthenticator performs the BD-authentication and SAC key exchange
// required before an encrypted drive will yield decrypted sector data.
// The protocol itself (vendor challenge/response, session key derivation)
// is outside this module's scope; callers supply an implementation that
// talks to the physical drive.
type DriveAuthenticator interface {
	// Authenticate performs BD-auth followed by SAC key exchange against
	// the device at path, returning the authenticated total sector count.
	Authenticate(path string) (totalSectors uint32, err error)

	// Decrypt decrypts count sectors' worth of bytes in buf in place.
	// Only called after a successful Authenticate.
	Decrypt(buf []byte, count uint32) error
}

// driveSource is the authenticated-optical-drive Source variant.
// read_sectors maps 1:1 onto the drive's native 2048-byte sectors;
// decrypt is mandatory for any sector inside a DST track area and is
// delegated to auth.
type driveSource struct {
	file          *os.File
	auth          DriveAuthenticator
	authenticated bool
	total         uint32
}

// OpenDrive opens the OS device handle for device (e.g. "/dev/sr0",
// `\\.\D:`, "D:"). auth supplies the vendor BD-auth/SAC key-exchange
// implementation; its Authenticate runs only when Authenticate is called,
// and its Decrypt only when Decrypt is called after that succeeded.
func OpenDrive(device string, auth DriveAuthenticator) (Source, error) {
	f, err := os.Open(device) //nolint:gosec // device path is caller-supplied by design
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "sector.OpenDrive", fmt.Errorf("open device %s: %w", device, err))
	}
	return &driveSource{file: f, auth: auth}, nil
}

func (ds *driveSource) Close() error {
	return ds.file.Close()
}

func (ds *driveSource) ReadSectors(lsn uint32, count uint32, buf []byte) (int, error) {
	if err := validateBuf(buf, count, bareGeometry); err != nil {
		return 0, sacderr.Wrap(sacderr.InvalidArgument, "sector.Drive.ReadSectors", err)
	}

	offset := rawOffset(lsn, bareGeometry)
	want := int64(count) * int64(bareGeometry.SectorSize)

	n, err := ds.file.ReadAt(buf[:want], offset)
	sectorsRead := n / bareGeometry.SectorSize
	if err != nil {
		return sectorsRead, sacderr.Wrap(sacderr.IO, "sector.Drive.ReadSectors", err)
	}
	return sectorsRead, nil
}

func (ds *driveSource) TotalSectors() (uint32, error) {
	if !ds.authenticated {
		return 0, sacderr.New(sacderr.Uninitialised, "sector.Drive.TotalSectors")
	}
	return ds.total, nil
}

func (ds *driveSource) Authenticate() error {
	total, err := ds.auth.Authenticate(ds.file.Name())
	if err != nil {
		return sacderr.Wrap(sacderr.AuthFailed, "sector.Drive.Authenticate", err)
	}
	ds.authenticated = true
	ds.total = total
	return nil
}

func (ds *driveSource) Decrypt(buf []byte, count uint32) error {
	if !ds.authenticated {
		return sacderr.New(sacderr.Uninitialised, "sector.Drive.Decrypt")
	}
	if err := ds.auth.Decrypt(buf, count); err != nil {
		return sacderr.Wrap(sacderr.DecryptFailed, "sector.Drive.Decrypt", err)
	}
	return nil
}

func (ds *driveSource) Geometry() Geometry {
	return bareGeometry
}
