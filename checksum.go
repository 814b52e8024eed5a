// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import (
	"fmt"
	"io"
	"os"

	"github.com/dgryski/go-farm"

	"github.com/easel-bio/dsqdata/internal/layout"
)

// hashFileBody returns farm.Hash64 of path's contents after skipping
// headerSize bytes, used for the stub's optional digest line.
func hashFileBody(path string, headerSize int64) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Seek(headerSize, io.SeekStart); err != nil {
		return 0, err
	}
	body, err := io.ReadAll(f)
	if err != nil {
		return 0, err
	}
	return farm.Hash64(body), nil
}

// verifyDigest recomputes the sequence and metadata files' checksums
// and compares them against the stub's digest line. A mismatch is a
// format error: the stub and the binary files have diverged.
func verifyDigest(seqPath, metaPath string, digest *layout.Digest) error {
	seqSum, err := hashFileBody(seqPath, layout.SideHeaderSize)
	if err != nil {
		return newError(System, seqPath, err)
	}
	if seqSum != digest.SequenceChecksum {
		return newError(Format, seqPath, fmt.Errorf("sequence file checksum %x does not match stub digest %x", seqSum, digest.SequenceChecksum))
	}
	metaSum, err := hashFileBody(metaPath, layout.SideHeaderSize)
	if err != nil {
		return newError(System, metaPath, err)
	}
	if metaSum != digest.MetadataChecksum {
		return newError(Format, metaPath, fmt.Errorf("metadata file checksum %x does not match stub digest %x", metaSum, digest.MetadataChecksum))
	}
	return nil
}
