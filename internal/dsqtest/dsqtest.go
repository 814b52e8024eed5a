// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package dsqtest generates random digital sequences and small
// databases for the module's tests, and compares two databases'
// content by hash rather than byte-for-byte file comparison.
//
// crypto/rand supplies an unpredictable seed for math/rand, so repeated
// test runs exercise different inputs without sacrificing
// reproducibility within a single run.
package dsqtest

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"

	"github.com/dgryski/go-farm"

	"github.com/easel-bio/dsqdata"
	"github.com/easel-bio/dsqdata/alphabet"
)

// NewRand returns a math/rand source seeded from crypto/rand.
func NewRand() *rand.Rand {
	var seedBytes [8]byte
	if _, err := crand.Read(seedBytes[:]); err != nil {
		panic(fmt.Sprintf("dsqtest: reading crypto/rand seed: %v", err))
	}
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return rand.New(rand.NewSource(seed))
}

// codeRange reports how many canonical and degenerate residue codes
// RandomRecords draws from for a given alphabet kind, mirroring
// alphabet.Alphabet's canonical/degenerate split.
func codeRange(kind alphabet.Kind) (canonical, degenerate int) {
	if kind.IsNucleic() {
		return 4, 13 // A,C,G,T/U canonical; IUPAC ambiguity codes degenerate
	}
	return 20, 8 // 20 canonical amino acids; ambiguity/unusual codes degenerate
}

// RandomRecords generates n records with residue lengths uniform in
// [minLen, maxLen]. For nucleic alphabets, a degeneratePct fraction of
// positions are replaced with a degenerate code, forcing the mixed
// packer's realignment path; it has no effect for protein, which has no
// 2-bit path to force.
func RandomRecords(rng *rand.Rand, kind alphabet.Kind, n, minLen, maxLen int, degeneratePct float64) []dsqdata.Record {
	canonical, degenerate := codeRange(kind)
	records := make([]dsqdata.Record, n)
	for i := 0; i < n; i++ {
		length := minLen
		if maxLen > minLen {
			length += rng.Intn(maxLen - minLen + 1)
		}
		dsq := make([]uint8, length)
		for j := range dsq {
			if kind.IsNucleic() && degeneratePct > 0 && rng.Float64() < degeneratePct {
				dsq[j] = uint8(canonical + rng.Intn(degenerate))
			} else {
				dsq[j] = uint8(rng.Intn(canonical))
			}
		}
		records[i] = dsqdata.Record{
			Name:  fmt.Sprintf("seq%d", i),
			Acc:   fmt.Sprintf("ACC%06d", i),
			Desc:  fmt.Sprintf("random test sequence %d", i),
			Taxid: int32(rng.Intn(1000)),
			Dsq:   dsq,
		}
	}
	return records
}

// SliceSource adapts a []dsqdata.Record into a rewindable dsqdata.Source
// for NewWriter.
type SliceSource struct {
	records []dsqdata.Record
	pos     int
}

func NewSliceSource(records []dsqdata.Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Rewind() error {
	s.pos = 0
	return nil
}

func (s *SliceSource) Next() (dsqdata.Record, error) {
	if s.pos >= len(s.records) {
		return dsqdata.Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

// HashRecords returns a stable farm.Hash64 digest over records' digital
// content and metadata, in order -- a cheap way for a round-trip test
// to compare "everything that was written" against "everything that
// was read back" without keeping two full copies around.
func HashRecords(records []dsqdata.Record) uint64 {
	h := uint64(14695981039346656037)
	mix := func(b []byte) {
		h = farm.Hash64WithSeed(b, h)
	}
	for _, r := range records {
		mix([]byte(r.Name))
		mix([]byte(r.Acc))
		mix([]byte(r.Desc))
		var taxidBuf [4]byte
		binary.LittleEndian.PutUint32(taxidBuf[:], uint32(r.Taxid))
		mix(taxidBuf[:])
		mix(r.Dsq)
	}
	return h
}

// HashChunks reduces a sequence of chunks delivered by Reader.Read into
// the same digest HashRecords produces for the records they hold, so a
// round-trip test can compare "what was written" against "what was
// read back". The chunks must not have been recycled yet.
func HashChunks(chunks []*dsqdata.Chunk) uint64 {
	h := uint64(14695981039346656037)
	mix := func(b []byte) {
		h = farm.Hash64WithSeed(b, h)
	}
	for _, c := range chunks {
		for i := 0; i < c.N; i++ {
			mix(c.Name[i])
			mix(c.Acc[i])
			mix(c.Desc[i])
			var taxidBuf [4]byte
			binary.LittleEndian.PutUint32(taxidBuf[:], uint32(c.Taxid[i]))
			mix(taxidBuf[:])
			dsq := c.Dsq[i]
			mix(dsq[1 : len(dsq)-1]) // strip leading/trailing sentinel
		}
	}
	return h
}
