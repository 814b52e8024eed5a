// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-bio/dsqdata/alphabet"
)

func TestNewWriter_EmptyProteinSequence(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	records := []Record{{Name: "empty", Dsq: []uint8{}}}
	src := recordSource{records: records}

	w, err := NewWriter(base, alphabet.Protein, &src)
	require.NoError(t, err)
	assert.EqualValues(t, 1, w.NSeq)
	assert.EqualValues(t, 0, w.NRes)

	r, err := Open(base, 1)
	require.NoError(t, err)
	defer r.Close()

	chunk, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 1, chunk.N)
	assert.EqualValues(t, 0, chunk.L[0])
	assert.Equal(t, []uint8{residueSentinel, residueSentinel}, chunk.Dsq[0])
	r.Recycle(chunk)

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewWriter_SinglePacketProtein(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	dsq := []uint8{0, 1, 2, 3} // ACDE as digital codes 0..3
	records := []Record{{Name: "short", Dsq: dsq}}
	src := recordSource{records: records}

	_, err := NewWriter(base, alphabet.Protein, &src)
	require.NoError(t, err)

	r, err := Open(base, 1)
	require.NoError(t, err)
	defer r.Close()

	chunk, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 1, chunk.N)
	assert.EqualValues(t, len(dsq), chunk.L[0])
	assert.Equal(t, dsq, []uint8(chunk.Dsq[0][1:len(chunk.Dsq[0])-1]))
	r.Recycle(chunk)
}

func TestWriterReader_RoundTrip_DegenerateRealignment(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	dsq := make([]uint8, 15)
	for i := range dsq {
		dsq[i] = uint8(i % 4)
	}
	dsq[9] = 4 // R, a degenerate code forcing the mixed packer's 5-bit path
	dsq[10] = 4
	records := []Record{{Name: "degenerate", Dsq: dsq}}
	src := recordSource{records: records}

	_, err := NewWriter(base, alphabet.DNA, &src)
	require.NoError(t, err)

	r, err := Open(base, 1)
	require.NoError(t, err)
	defer r.Close()

	chunk, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 1, chunk.N)
	assert.Equal(t, dsq, []uint8(chunk.Dsq[0][1:len(chunk.Dsq[0])-1]))
	r.Recycle(chunk)
}

func TestOpen_TagMismatchIsFormatError(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	records := []Record{{Name: "a", Dsq: []uint8{0, 1, 2}}}
	src := recordSource{records: records}
	_, err := NewWriter(base, alphabet.Protein, &src)
	require.NoError(t, err)

	// Corrupt the stub's tag so it no longer matches the index header.
	corruptStubTag(t, base)

	r, err := Open(base, 1)
	require.Error(t, err)
	cat, ok := AsCategory(err)
	require.True(t, ok)
	assert.Equal(t, Format, cat)
	r.Close()
}

func TestOpen_MetadataTagMismatchIsFormatError(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	records := []Record{{Name: "a", Dsq: []uint8{0, 1, 2}}}
	src := recordSource{records: records}
	_, err := NewWriter(base, alphabet.Protein, &src)
	require.NoError(t, err)

	corruptSideHeaderTag(t, base+".dsqm")

	r, err := Open(base, 1)
	require.Error(t, err)
	cat, ok := AsCategory(err)
	require.True(t, ok)
	assert.Equal(t, Format, cat)
	var dsqErr *Error
	require.ErrorAs(t, err, &dsqErr)
	assert.Equal(t, base+".dsqm", dsqErr.Path)
	assert.Contains(t, err.Error(), base+".dsqm")
	r.Close()
}

// recordSource is a minimal Source for tests that don't need
// dsqtest's random generation.
type recordSource struct {
	records []Record
	pos     int
}

func (s *recordSource) Rewind() error { s.pos = 0; return nil }

func (s *recordSource) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

// corruptStubTag rewrites base's stub file with a tag that no longer
// matches the index header's, exercising the cross-file tag check.
func corruptStubTag(t *testing.T, base string) {
	t.Helper()
	data, err := os.ReadFile(base)
	require.NoError(t, err)
	lines := strings.SplitN(string(data), "\n", 2)
	first := lines[0]
	fields := strings.Fields(first)
	require.Len(t, fields, 4)
	fields[3] = "x123456789"
	rewritten := strings.Join(fields, " ") + "\n"
	if len(lines) > 1 {
		rewritten += lines[1]
	}
	require.NoError(t, os.WriteFile(base, []byte(rewritten), 0o644))
}

// corruptSideHeaderTag flips a byte in a side file's on-disk tag field
// (bytes 4-7 of the header, right after the magic number), so it no
// longer matches the index header's tag.
func corruptSideHeaderTag(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 8)
	data[4] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
