// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package layout implements the binary header and stub-file formats
// shared by dsqdata's three binary files (index, metadata, sequence)
// and its human-readable stub.
package layout

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Magic identifies the dsqdata format and its endianness.
	Magic uint32 = 0x45534c31 // "ESL1"
	// SwappedMagic is Magic's byte-reversed form; seeing it on open
	// means the database was written on a foreign-endian machine.
	SwappedMagic uint32 = 0x314c5345

	// IndexHeaderSize is the on-disk width of the index file's header:
	// magic, tag, alphatype, flags, three max-len u32s, max-seqlen u64,
	// nseq u64, nres u64.
	IndexHeaderSize = 4*7 + 8*3
	// SideHeaderSize is the on-disk width of the metadata and sequence
	// file headers: magic, tag.
	SideHeaderSize = 4 * 2
)

// IndexHeader is the fixed header at the start of the .dsqi file.
type IndexHeader struct {
	Magic      uint32
	Tag        uint32
	AlphaType  uint32
	Flags      uint32 // reserved; always zero on write, ignored on read
	MaxNameLen uint32
	MaxAccLen  uint32
	MaxDescLen uint32
	MaxSeqLen  uint64
	NSeq       uint64
	NRes       uint64
}

// WriteTo writes h in the on-disk little-endian layout.
func (h *IndexHeader) WriteTo(w io.Writer) (int64, error) {
	var buf [IndexHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], h.AlphaType)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], h.MaxNameLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.MaxAccLen)
	binary.LittleEndian.PutUint32(buf[24:28], h.MaxDescLen)
	binary.LittleEndian.PutUint64(buf[28:36], h.MaxSeqLen)
	binary.LittleEndian.PutUint64(buf[36:44], h.NSeq)
	binary.LittleEndian.PutUint64(buf[44:52], h.NRes)
	if _, err := w.Write(buf[:]); err != nil {
		return 0, fmt.Errorf("layout: write index header: %w", err)
	}
	return IndexHeaderSize, nil
}

// UnmarshalBytes decodes an index header from its on-disk bytes. It
// does not itself validate magic/tag against sibling files; callers
// cross-validate once all three headers are loaded.
func (h *IndexHeader) UnmarshalBytes(b []byte) error {
	if len(b) < IndexHeaderSize {
		return fmt.Errorf("layout: index header truncated: %d < %d bytes", len(b), IndexHeaderSize)
	}
	h.Magic = binary.LittleEndian.Uint32(b[0:4])
	h.Tag = binary.LittleEndian.Uint32(b[4:8])
	h.AlphaType = binary.LittleEndian.Uint32(b[8:12])
	h.Flags = binary.LittleEndian.Uint32(b[12:16])
	h.MaxNameLen = binary.LittleEndian.Uint32(b[16:20])
	h.MaxAccLen = binary.LittleEndian.Uint32(b[20:24])
	h.MaxDescLen = binary.LittleEndian.Uint32(b[24:28])
	h.MaxSeqLen = binary.LittleEndian.Uint64(b[28:36])
	h.NSeq = binary.LittleEndian.Uint64(b[36:44])
	h.NRes = binary.LittleEndian.Uint64(b[44:52])
	return nil
}

// SideHeader is the header shared by the metadata and sequence files:
// just magic and tag, cross-checked against the index header.
type SideHeader struct {
	Magic uint32
	Tag   uint32
}

func (h *SideHeader) WriteTo(w io.Writer) (int64, error) {
	var buf [SideHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Tag)
	if _, err := w.Write(buf[:]); err != nil {
		return 0, fmt.Errorf("layout: write side header: %w", err)
	}
	return SideHeaderSize, nil
}

func (h *SideHeader) UnmarshalBytes(b []byte) error {
	if len(b) < SideHeaderSize {
		return fmt.Errorf("layout: side header truncated: %d < %d bytes", len(b), SideHeaderSize)
	}
	h.Magic = binary.LittleEndian.Uint32(b[0:4])
	h.Tag = binary.LittleEndian.Uint32(b[4:8])
	return nil
}

// IndexRecordSize is the on-disk width of one index record: two u64
// cumulative offsets, psq_end and metadata_end.
const IndexRecordSize = 16

// IndexRecord is one entry of the index file's record array.
type IndexRecord struct {
	PsqEnd      int64
	MetadataEnd int64
}

func PutIndexRecord(b []byte, r IndexRecord) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.PsqEnd))
	binary.LittleEndian.PutUint64(b[8:16], uint64(r.MetadataEnd))
}

func GetIndexRecord(b []byte) IndexRecord {
	return IndexRecord{
		PsqEnd:      int64(binary.LittleEndian.Uint64(b[0:8])),
		MetadataEnd: int64(binary.LittleEndian.Uint64(b[8:16])),
	}
}
