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
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sacdtools/sacdcore/sacderr"
)

// Network opcodes. Each request and response is a 4-byte big-endian
// length prefix (covering opcode + payload), the opcode byte, the
// payload, and a single 0x00 terminator byte.
const (
	opDiscOpen     byte = 1
	opDiscOpened   byte = 2
	opDiscSize     byte = 3
	opDiscSizeResp byte = 4
	opDiscRead     byte = 5
	opDiscReadResp byte = 6
	opDiscClose    byte = 7
)

const dialTimeout = 10 * time.Second

// networkSource is the TCP Source variant: a single connection to a
// server speaking the opcode-tagged length-delimited protocol above. The
// server always reports the bare 2048-byte geometry and handles any
// decryption itself.
type networkSource struct {
	conn  net.Conn
	total uint32
}

// DialNetwork connects to addr (host:port) and opens the remote disc
// image: it sends DISC_OPEN, expects DISC_OPENED, then immediately sends
// DISC_SIZE to capture the sector count.
func DialNetwork(addr string) (Source, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, "sector.DialNetwork", fmt.Errorf("dial %s: %w", addr, err))
	}

	ns := &networkSource{conn: conn}

	if err := ns.open(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ns.fetchSize(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return ns, nil
}

func (ns *networkSource) open() error {
	if err := writeMessage(ns.conn, opDiscOpen, nil); err != nil {
		return sacderr.Wrap(sacderr.IO, "sector.Network.open", err)
	}
	op, _, err := readMessage(ns.conn)
	if err != nil {
		return sacderr.Wrap(sacderr.IO, "sector.Network.open", err)
	}
	if op != opDiscOpened {
		return sacderr.New(sacderr.IO, "sector.Network.open")
	}
	return nil
}

func (ns *networkSource) fetchSize() error {
	if err := writeMessage(ns.conn, opDiscSize, nil); err != nil {
		return sacderr.Wrap(sacderr.IO, "sector.Network.fetchSize", err)
	}
	op, payload, err := readMessage(ns.conn)
	if err != nil {
		return sacderr.Wrap(sacderr.IO, "sector.Network.fetchSize", err)
	}
	if op != opDiscSizeResp || len(payload) < 4 {
		return sacderr.New(sacderr.IO, "sector.Network.fetchSize")
	}
	ns.total = binary.BigEndian.Uint32(payload)
	return nil
}

func (ns *networkSource) Close() error {
	_ = writeMessage(ns.conn, opDiscClose, nil)
	return ns.conn.Close()
}

func (ns *networkSource) ReadSectors(lsn uint32, count uint32, buf []byte) (int, error) {
	if err := validateBuf(buf, count, bareGeometry); err != nil {
		return 0, sacderr.Wrap(sacderr.InvalidArgument, "sector.Network.ReadSectors", err)
	}

	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], lsn)
	binary.BigEndian.PutUint32(payload[4:8], count)

	if err := writeMessage(ns.conn, opDiscRead, payload); err != nil {
		return 0, sacderr.Wrap(sacderr.IO, "sector.Network.ReadSectors", err)
	}

	op, data, err := readMessage(ns.conn)
	if err != nil {
		return 0, sacderr.Wrap(sacderr.IO, "sector.Network.ReadSectors", err)
	}
	if op != opDiscReadResp {
		return 0, sacderr.New(sacderr.IO, "sector.Network.ReadSectors")
	}

	want := int(count) * bareGeometry.SectorSize
	if len(data) < want {
		return 0, sacderr.New(sacderr.NoData, "sector.Network.ReadSectors")
	}
	copy(buf, data[:want])
	return int(count), nil
}

func (ns *networkSource) TotalSectors() (uint32, error) {
	return ns.total, nil
}

func (ns *networkSource) Authenticate() error {
	return sacderr.New(sacderr.NotSupported, "sector.Network.Authenticate")
}

func (ns *networkSource) Decrypt(_ []byte, _ uint32) error {
	return sacderr.New(sacderr.NotSupported, "sector.Network.Decrypt")
}

func (ns *networkSource) Geometry() Geometry {
	return bareGeometry
}

// writeMessage sends a length-prefixed opcode message followed by the
// single zero-byte request terminator.
func writeMessage(w io.Writer, op byte, payload []byte) error {
	body := make([]byte, 1+len(payload))
	body[0] = op
	copy(body[1:], payload)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body))) //nolint:gosec // messages are far below uint32 range

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	return nil
}

// readMessage reads a length-prefixed opcode message and its trailing
// zero-byte terminator, returning the opcode and payload.
func readMessage(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("read length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(header)
	if length < 1 {
		return 0, nil, fmt.Errorf("invalid message length %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("read message body: %w", err)
	}

	terminator := make([]byte, 1)
	if _, err := io.ReadFull(r, terminator); err != nil {
		return 0, nil, fmt.Errorf("read terminator: %w", err)
	}
	if terminator[0] != 0 {
		return 0, nil, fmt.Errorf("missing zero terminator")
	}

	return body[0], body[1:], nil
}
