// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import (
	"errors"
	"fmt"
)

// Category classifies an error at dsqdata's public boundary. io.EOF is
// used directly for the seventh category (normal end of data on Read)
// rather than wrapped here.
type Category int

const (
	// NotFound: a required file of the set is missing.
	NotFound Category = iota + 1
	// Format: bad magic, tag mismatch, truncated header, or malformed
	// metadata -- the database's bytes don't mean what they should.
	Format
	// Incompat: the database's alphabet kind doesn't match what the
	// caller asked Open to expect.
	Incompat
	// Write: an output file couldn't be created or written during
	// database creation.
	Write
	// System: an I/O or synchronization-primitive failure.
	System
	// Memory: an allocation failure.
	Memory
)

func (c Category) String() string {
	switch c {
	case NotFound:
		return "not-found"
	case Format:
		return "format"
	case Incompat:
		return "incompat"
	case Write:
		return "write"
	case System:
		return "system"
	case Memory:
		return "memory"
	default:
		return "unknown"
	}
}

// Error is dsqdata's boundary error type: every error returned from
// Open, Read, or Close that isn't io.EOF can be unwrapped to one of
// these, carrying the category a caller needs to decide whether a
// retry, a user-facing message, or a bug report is appropriate.
// NewWriter returns one for file creation and write failures; its
// errors for an unsupported alphabet kind and from the Source's Next
// and Rewind are plain wrapped errors with no Category.
type Error struct {
	Category Category
	Path     string // file the error concerns, if any
	Err      error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("dsqdata: %s: %s: %v", e.Category, e.Path, e.Err)
	}
	return fmt.Sprintf("dsqdata: %s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(cat Category, path string, err error) *Error {
	return &Error{Category: cat, Path: path, Err: err}
}

// AsCategory reports the Category of err if err (or something it
// wraps) is a *Error.
func AsCategory(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return 0, false
}
