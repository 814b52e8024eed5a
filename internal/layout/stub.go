// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package layout

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// StubVersion is the literal version token written into the stub's
// first line.
const StubVersion = 1

// Digest carries an optional content-checksum line appended to the
// stub under WithWriterChecksums(true), never required to open or read a
// database.
type Digest struct {
	SequenceChecksum uint64
	MetadataChecksum uint64
}

const digestPrefix = "digest "

// WriteStub writes the stub file's first line and, optionally, one
// free-form digest line. Every other line a human author adds after
// these is left untouched by readers: remaining lines are free-form
// human text and are never parsed.
func WriteStub(w io.Writer, tag uint32, digest *Digest) error {
	if _, err := fmt.Fprintf(w, "Easel dsqdata v%d x%d\n", StubVersion, tag); err != nil {
		return fmt.Errorf("layout: write stub first line: %w", err)
	}
	if digest != nil {
		if _, err := fmt.Fprintf(w, "%s%d %d\n", digestPrefix, digest.SequenceChecksum, digest.MetadataChecksum); err != nil {
			return fmt.Errorf("layout: write stub digest line: %w", err)
		}
	}
	return nil
}

// ReadStub parses the stub's first line and, if present, its digest
// line. Extra trailing lines are ignored.
func ReadStub(r io.Reader) (tag uint32, digest *Digest, err error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return 0, nil, fmt.Errorf("layout: stub file is empty")
	}
	first := sc.Text()
	fields := strings.Fields(first)
	if len(fields) != 4 || fields[0] != "Easel" || fields[1] != "dsqdata" {
		return 0, nil, fmt.Errorf("layout: malformed stub first line %q", first)
	}
	versionTok := strings.TrimPrefix(fields[2], "v")
	version, err := strconv.Atoi(versionTok)
	if err != nil {
		return 0, nil, fmt.Errorf("layout: malformed stub version token %q: %w", fields[2], err)
	}
	if version != StubVersion {
		return 0, nil, fmt.Errorf("layout: unsupported stub version %d", version)
	}
	tagTok := strings.TrimPrefix(fields[3], "x")
	tag64, err := strconv.ParseUint(tagTok, 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("layout: malformed stub tag token %q: %w", fields[3], err)
	}
	tag = uint32(tag64)

	if sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, digestPrefix) {
			parts := strings.Fields(strings.TrimPrefix(line, digestPrefix))
			if len(parts) == 2 {
				seqSum, err1 := strconv.ParseUint(parts[0], 10, 64)
				metaSum, err2 := strconv.ParseUint(parts[1], 10, 64)
				if err1 == nil && err2 == nil {
					digest = &Digest{SequenceChecksum: seqSum, MetadataChecksum: metaSum}
				}
			}
		}
	}
	return tag, digest, nil
}
