// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"

	"github.com/easel-bio/dsqdata/alphabet"
	"github.com/easel-bio/dsqdata/internal/layout"
	"github.com/easel-bio/dsqdata/packet"
)

// Record is one sequence a Source yields to a Writer: its metadata and
// its digital residue codes, with no leading or trailing sentinel --
// the packers take a bare residue array of length n.
type Record struct {
	Name  string
	Acc   string
	Desc  string
	Taxid int32
	Dsq   []uint8
}

// Source supplies the digital sequences a Writer packs into
// a database. It must be rewindable, because NewWriter iterates it
// twice -- once to collect statistics, once to pack and write.
type Source interface {
	// Next returns the next record, or io.EOF once exhausted.
	Next() (Record, error)
	// Rewind resets iteration back to the first record.
	Rewind() error
}

// WriterOption configures NewWriter.
type WriterOption func(*writerConfig)

type writerConfig struct {
	logger     *slog.Logger
	knownStats *knownStats
	checksums  bool
}

type knownStats struct {
	NSeq, NRes, MaxSeqLen uint64
}

func defaultWriterConfig() *writerConfig {
	return &writerConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithWriterLogger sets the *slog.Logger NewWriter uses for pass
// progress and pathological-input warnings.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.logger = l }
}

// WithKnownStats skips Pass 1's full rewind-and-scan when the caller
// already knows the source's sequence count, residue count, and
// maximum sequence length. Per-record name/accession/description
// maximum lengths are not covered by this hint and default to 0 in the
// written header, which is a diagnostic field that readers do not rely
// on.
func WithKnownStats(nseq, nres, maxSeqLen uint64) WriterOption {
	return func(c *writerConfig) {
		c.knownStats = &knownStats{NSeq: nseq, NRes: nres, MaxSeqLen: maxSeqLen}
	}
}

// WithWriterChecksums makes NewWriter append a digest line to the stub
// file recording a farm.Hash64 of the sequence and metadata files'
// bodies. Default false preserves the original stub format as the
// default path.
func WithWriterChecksums(enabled bool) WriterOption {
	return func(c *writerConfig) { c.checksums = enabled }
}

// Writer reports the result of a completed two-pass database creation.
// There is nothing further to call on it; NewWriter returns one only
// after every byte has been written and flushed.
type Writer struct {
	Tag  uint32
	NSeq uint64
	NRes uint64
}

type passStats struct {
	NSeq, NRes, MaxSeqLen                uint64
	MaxNameLen, MaxAccLen, MaxDescLen    uint32
}

// NewWriter creates the four files sharing base's name from src's
// digital sequences, via a two-pass contract: Pass 1
// collects statistics, Pass 2 packs and writes. kind selects the
// packing scheme (protein: 5-bit only; DNA/RNA: mixed 2/5-bit; any
// other kind is rejected before any file is created).
func NewWriter(base string, kind alphabet.Kind, src Source, opts ...WriterOption) (*Writer, error) {
	cfg := defaultWriterConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	alpha, err := alphabet.New(kind)
	if err != nil {
		return nil, fmt.Errorf("dsqdata: %w", err)
	}

	stats, err := gatherStats(src, cfg)
	if err != nil {
		return nil, err
	}

	tag := newTag()
	idxPath := base + ".dsqi"
	seqPath := base + ".dsqs"
	metaPath := base + ".dsqm"
	stubPath := base

	idxFile, err := os.Create(idxPath)
	if err != nil {
		return nil, newError(Write, idxPath, err)
	}
	defer idxFile.Close()
	seqFile, err := os.Create(seqPath)
	if err != nil {
		return nil, newError(Write, seqPath, err)
	}
	defer seqFile.Close()
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return nil, newError(Write, metaPath, err)
	}
	defer metaFile.Close()

	ih := layout.IndexHeader{
		Magic:      layout.Magic,
		Tag:        tag,
		AlphaType:  uint32(kind),
		MaxNameLen: stats.MaxNameLen,
		MaxAccLen:  stats.MaxAccLen,
		MaxDescLen: stats.MaxDescLen,
		MaxSeqLen:  stats.MaxSeqLen,
		NSeq:       stats.NSeq,
		NRes:       stats.NRes,
	}
	if _, err := ih.WriteTo(idxFile); err != nil {
		return nil, newError(Write, idxPath, err)
	}

	sh := layout.SideHeader{Magic: layout.Magic, Tag: tag}
	if _, err := sh.WriteTo(seqFile); err != nil {
		return nil, newError(Write, seqPath, err)
	}
	if _, err := sh.WriteTo(metaFile); err != nil {
		return nil, newError(Write, metaPath, err)
	}

	if err := src.Rewind(); err != nil {
		return nil, fmt.Errorf("dsqdata: rewinding source for pass 2: %w", err)
	}

	if err := packAndWrite(src, alpha, kind, stats, idxFile, seqFile, metaFile, cfg); err != nil {
		return nil, err
	}

	var digest *layout.Digest
	if cfg.checksums {
		seqSum, err := hashFileBody(seqPath, layout.SideHeaderSize)
		if err != nil {
			return nil, newError(System, seqPath, err)
		}
		metaSum, err := hashFileBody(metaPath, layout.SideHeaderSize)
		if err != nil {
			return nil, newError(System, metaPath, err)
		}
		digest = &layout.Digest{SequenceChecksum: seqSum, MetadataChecksum: metaSum}
	}

	stubFile, err := os.Create(stubPath)
	if err != nil {
		return nil, newError(Write, stubPath, err)
	}
	defer stubFile.Close()
	if err := layout.WriteStub(stubFile, tag, digest); err != nil {
		return nil, newError(Write, stubPath, err)
	}

	cfg.logger.Debug("dsqdata writer finished", "base", base, "nseq", stats.NSeq, "tag", tag)
	return &Writer{Tag: tag, NSeq: stats.NSeq, NRes: stats.NRes}, nil
}

// gatherStats performs Pass 1, unless WithKnownStats supplied a
// shortcut.
func gatherStats(src Source, cfg *writerConfig) (passStats, error) {
	if cfg.knownStats != nil {
		k := cfg.knownStats
		cfg.logger.Debug("skipping pass 1, using known stats", "nseq", k.NSeq, "nres", k.NRes)
		return passStats{NSeq: k.NSeq, NRes: k.NRes, MaxSeqLen: k.MaxSeqLen}, nil
	}

	var s passStats
	for i := uint64(0); ; i++ {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return passStats{}, fmt.Errorf("dsqdata: pass 1: reading source record %d: %w", i, err)
		}
		s.NSeq++
		s.NRes += uint64(len(rec.Dsq))
		if uint64(len(rec.Dsq)) > s.MaxSeqLen {
			s.MaxSeqLen = uint64(len(rec.Dsq))
		}
		if len(rec.Name) > int(s.MaxNameLen) {
			s.MaxNameLen = uint32(len(rec.Name))
		}
		if len(rec.Acc) > int(s.MaxAccLen) {
			s.MaxAccLen = uint32(len(rec.Acc))
		}
		if len(rec.Desc) > int(s.MaxDescLen) {
			s.MaxDescLen = uint32(len(rec.Desc))
		}
		if len(rec.Name) > 4096 || len(rec.Acc) > 4096 || len(rec.Desc) > 4096 {
			cfg.logger.Warn("pass 1: unusually long metadata field", "seq", i, "name_len", len(rec.Name), "acc_len", len(rec.Acc), "desc_len", len(rec.Desc))
		}
		if i%100000 == 0 {
			cfg.logger.Debug("pass 1 progress", "seq", i)
		}
	}
	return s, nil
}

// packAndWrite performs Pass 2: pack each record, append it to the
// sequence and metadata files, and append its cumulative index record.
func packAndWrite(src Source, alpha *alphabet.Alphabet, kind alphabet.Kind, stats passStats, idxFile, seqFile, metaFile *os.File, cfg *writerConfig) error {
	scratchLen := int(stats.MaxSeqLen)
	if packed := packet.Size * ((scratchLen + 5) / 6); packed > scratchLen {
		scratchLen = packed
	}
	if scratchLen < packet.Size {
		scratchLen = packet.Size
	}
	scratch := make([]uint8, scratchLen)

	var psqCum, metaCum int64
	var taxidBuf [4]byte
	var idxBuf [layout.IndexRecordSize]byte

	for i := uint64(0); ; i++ {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("dsqdata: pass 2: reading source record %d: %w", i, err)
		}

		n := len(rec.Dsq)
		copy(scratch[:n], rec.Dsq)

		var npackets int
		if kind == alphabet.Protein {
			npackets = packet.Pack5(scratch[:n], n)
		} else {
			npackets = packet.PackMixed(scratch[:n], n, alpha.IsCanonical)
		}
		packetBytes := scratch[:npackets*packet.Size]
		if npackets > 0 {
			if _, err := seqFile.Write(packetBytes); err != nil {
				return newError(Write, "", fmt.Errorf("writing packets for sequence %d: %w", i, err))
			}
		}
		psqCum += int64(npackets)

		for _, field := range [3]string{rec.Name, rec.Acc, rec.Desc} {
			if _, err := metaFile.Write([]byte(field)); err != nil {
				return newError(Write, "", fmt.Errorf("writing metadata for sequence %d: %w", i, err))
			}
			if _, err := metaFile.Write([]byte{0}); err != nil {
				return newError(Write, "", fmt.Errorf("writing metadata terminator for sequence %d: %w", i, err))
			}
			metaCum += int64(len(field)) + 1
		}
		binary.LittleEndian.PutUint32(taxidBuf[:], uint32(rec.Taxid))
		if _, err := metaFile.Write(taxidBuf[:]); err != nil {
			return newError(Write, "", fmt.Errorf("writing taxid for sequence %d: %w", i, err))
		}
		metaCum += 4

		layout.PutIndexRecord(idxBuf[:], layout.IndexRecord{PsqEnd: psqCum - 1, MetadataEnd: metaCum - 1})
		if _, err := idxFile.Write(idxBuf[:]); err != nil {
			return newError(Write, "", fmt.Errorf("writing index record %d: %w", i, err))
		}

		if i%100000 == 0 {
			cfg.logger.Debug("pass 2 progress", "seq", i)
		}
	}
	return nil
}

// newTag generates the database's 32-bit unique tag: a crypto/rand
// seed feeding math/rand, so tags are unpredictable without paying for
// a full CSPRNG read per generated word.
func newTag() uint32 {
	var seedBytes [8]byte
	if _, err := crand.Read(seedBytes[:]); err != nil {
		panic(fmt.Sprintf("dsqdata: reading crypto/rand seed: %v", err))
	}
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	rng := rand.New(rand.NewSource(seed))
	return rng.Uint32()
}
