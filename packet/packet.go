// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package packet implements the bit-packed wire format for dsqdata
// sequence records: packing a digital residue array into 32-bit
// packets in place, and decoding a single packet back into residue
// codes.
//
// A packet is a 32-bit little-endian word with two control bits:
//
//	bit 31 (sentinel): set iff this is the last packet of its sequence
//	bit 30 (kind):     0 = 2-bit packing (15 residues), 1 = 5-bit (<=6)
//
// The remaining 30 bits carry residues, most-significant first. Code
// 31 under 5-bit packing is the in-packet filler/terminator; it is
// never a valid residue.
package packet

import "encoding/binary"

const (
	// FillerCode is written into unused 5-bit slots of a partial EOD
	// packet, and is never itself a valid residue code.
	FillerCode = 31

	bitSentinel = 1 << 31
	bitKind5    = 1 << 30

	// Size is the on-disk width, in bytes, of one packet.
	Size = 4
)

// Pack5 packs the n residue codes in buf[:n] into 5-bit packets,
// overwriting buf in place starting at buf[0]. buf must have capacity
// for the packed form, Size*ceil(n/6) bytes and never less than Size;
// for some short n that exceeds n itself (n=7 packs into 8 bytes).
// Each packet's residues are copied out of buf before that packet is
// written, so no allocation is needed.
//
// It returns the number of packets written; their bytes occupy
// buf[:Size*npackets] (reinterpreting that region as little-endian
// uint32 words). For n == 0 it writes nothing and returns 0.
func Pack5(buf []uint8, n int) int {
	if n == 0 {
		return 0
	}
	out := withPackingRoom(buf)
	npackets := (n + 5) / 6
	for p := 0; p < npackets; p++ {
		base := p * 6
		var window [6]uint8
		cnt := 6
		if base+cnt > n {
			cnt = n - base
		}
		copy(window[:cnt], buf[base:base+cnt])

		var word uint32
		for i := 0; i < 6; i++ {
			code := uint32(FillerCode)
			if i < cnt {
				code = uint32(window[i])
			}
			word |= code << uint(25-5*i)
		}
		word |= bitKind5
		if p == npackets-1 {
			word |= bitSentinel
		}
		binary.LittleEndian.PutUint32(out[p*Size:p*Size+Size], word)
	}
	return npackets
}

// PackMixed packs the n residue codes in buf[:n] using the mixed
// 2-bit/5-bit scheme: a run of 15 canonical residues (codes 0-3) packs
// into one 2-bit packet; any window containing a degenerate residue
// (code > 3) forces a 5-bit packet instead. isCanonical decides which
// codes count as canonical (see alphabet.Alphabet.IsCanonical). Like
// Pack5, it overwrites buf in place and requires the same capacity
// guarantee.
//
// The final packet always carries the sentinel bit; if that packet
// happens to be 2-bit, it is necessarily full (15 residues), since
// 2-bit packing has no spare value to signal in-packet termination.
func PackMixed(buf []uint8, n int, isCanonical func(code uint8) bool) int {
	if n == 0 {
		return 0
	}
	out := withPackingRoom(buf)
	pos := 0
	npackets := 0
	writeOff := 0
	for pos < n {
		remaining := n - pos
		use2bit := remaining >= 15
		if use2bit {
			for i := 0; i < 15; i++ {
				if !isCanonical(buf[pos+i]) {
					use2bit = false
					break
				}
			}
		}

		var window [15]uint8
		cnt := remaining
		if use2bit {
			cnt = 15
		} else if cnt > 6 {
			cnt = 6
		}
		copy(window[:cnt], buf[pos:pos+cnt])

		isLast := pos+cnt == n
		var word uint32
		if use2bit {
			for i := 0; i < 15; i++ {
				word |= uint32(window[i]) << uint(28-2*i)
			}
		} else {
			for i := 0; i < 6; i++ {
				code := uint32(FillerCode)
				if i < cnt {
					code = uint32(window[i])
				}
				word |= code << uint(25-5*i)
			}
			word |= bitKind5
		}
		if isLast {
			word |= bitSentinel
		}
		binary.LittleEndian.PutUint32(out[writeOff:writeOff+Size], word)

		writeOff += Size
		pos += cnt
		npackets++
	}
	return npackets
}

// withPackingRoom extends buf to its full capacity so that writing a
// 4-byte packet at offset 0 is always safe, even for sequences shorter
// than one packet's wire width.
func withPackingRoom(buf []uint8) []uint8 {
	if cap(buf) < Size {
		panic("packet: buf must have capacity for at least one packet")
	}
	return buf[:cap(buf)]
}

// Decode decodes one packet word into dst, which must have room for at
// least 15 codes. It returns the number of residue codes written and
// whether this packet is the sentinel (last) packet of its sequence.
//
// dst may overlap the memory the packet word itself was read from, as
// long as the caller already copied word out of that memory (which
// reading it into the uint32 argument accomplishes) before calling
// Decode -- this is the invariant the reader pipeline's overlapped
// unpack buffer depends on (spec: "reads psq[pos] into a local before
// writing any residue for that position").
func Decode(word uint32, dst []uint8) (n int, eod bool) {
	eod = word&bitSentinel != 0
	if word&bitKind5 == 0 {
		for i := 0; i < 15; i++ {
			dst[i] = uint8((word >> uint(28-2*i)) & 0x3)
		}
		return 15, eod
	}
	for i := 0; i < 6; i++ {
		code := uint8((word >> uint(25-5*i)) & 0x1f)
		if code == FillerCode {
			return i, eod
		}
		dst[i] = code
	}
	return 6, eod
}
