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

// Package sacderr defines the flat error taxonomy shared by every layer of
// the core: sector sources, the Master/Area TOC parsers, frame readers, and
// the Reader facade all fail with one of these Kinds, wrapped in an *Error
// that carries the operation name and, where available, the underlying
// cause.
package sacderr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure. The comment on each constant
// says what failure it signals.
type Kind int

const (
	// InvalidArgument signals an out-of-range track/index/channel or a nil output.
	InvalidArgument Kind = iota + 1
	// Uninitialised signals an operation invoked on an unopened facade or TOC.
	Uninitialised
	// IO signals a sector read/write failure from the Sector Source.
	IO
	// Memory signals an allocation failure during TOC parsing.
	Memory
	// NoData signals the source is shorter than requested.
	NoData
	// InvalidSignature signals a signature check failed.
	InvalidSignature
	// ChannelCount signals channel_count is inconsistent with the area kind.
	ChannelCount
	// FrameFormat signals frame_format is not in {0,2,3}.
	FrameFormat
	// NotAvailable signals the requested area/channel/text-item is absent.
	NotAvailable
	// EndOfAudio signals current_frame wrapped past total_area_play_time.
	EndOfAudio
	// AccessListInvalid signals a DST search overshot its target (triggers fallback).
	AccessListInvalid
	// FrameNotFound signals a DST target was not located even in the fallback range.
	FrameNotFound
	// AuthFailed signals a drive authentication failure.
	AuthFailed
	// DecryptFailed signals a drive sector decryption failure.
	DecryptFailed
	// NotSupported signals an optional capability (e.g. authenticate on a
	// file/network source) the caller should treat as a successful no-op.
	NotSupported
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case Uninitialised:
		return "uninitialised"
	case IO:
		return "io"
	case Memory:
		return "memory"
	case NoData:
		return "no data"
	case InvalidSignature:
		return "invalid signature"
	case ChannelCount:
		return "channel count"
	case FrameFormat:
		return "frame format"
	case NotAvailable:
		return "not available"
	case EndOfAudio:
		return "end of audio"
	case AccessListInvalid:
		return "access list invalid"
	case FrameNotFound:
		return "frame not found"
	case AuthFailed:
		return "auth failed"
	case DecryptFailed:
		return "decrypt failed"
	case NotSupported:
		return "not supported"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned throughout the core. Op names
// the failing operation (e.g. "mastertoc.Parse", "frame.DST.ReadFrame");
// Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &sacderr.Error{Kind: sacderr.FrameNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an *Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap creates an *Error with kind and op that wraps err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *sacderr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
