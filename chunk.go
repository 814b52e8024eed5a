// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import "github.com/easel-bio/dsqdata/packet"

// Chunk is the reusable unit of transfer between the reader pipeline's
// stages. A chunk owns two buffers: smem, which holds
// the packed packet bytes at its tail and the unpacked, sentinel-
// delimited residue codes growing left-to-right into its front, and
// metadata, a grow-only byte buffer holding the chunk's raw metadata
// records. Dsq, L, Name, Acc, Desc, and Taxid are parallel arrays,
// aligned by sequence index, pointing into those two buffers.
//
// A Chunk has exactly one owner at a time; callers that receive one
// from Read must not retain references to its slices past the matching
// Recycle call.
type Chunk struct {
	I0 int64 // absolute index of the first sequence in this chunk
	N  int   // number of sequences; N == 0 is the end-of-data sentinel
	Pn int   // number of packets loaded into Psq

	Psq  []byte // packed packets, the tail maxPacket*packet.Size bytes of smem
	smem []byte // shared packed/unpacked buffer; see sizeSmem

	Dsq   [][]uint8 // Dsq[i]: sentinel, residues, sentinel, sliced from smem
	L     []int64   // L[i]: residue count of sequence i, excluding both sentinels
	Name  [][]byte  // Name[i]: sliced from metadata, not NUL-terminated
	Acc   [][]byte
	Desc  [][]byte
	Taxid []int32

	// seqPackets[i] is the number of packets sequence i occupies in
	// Psq, derived by the loader from the index window's cumulative
	// psq_end offsets. The unpacker consumes exactly this many packets
	// per sequence rather than discovering boundaries solely from
	// sentinel bits, so that a zero-length sequence -- which the packer
	// emits with zero packets -- still produces a correctly bounded,
	// empty decoded sequence instead of silently absorbing the
	// following sequence's first packet.
	seqPackets []int

	metadata []byte // grow-only raw metadata bytes for this chunk

	maxSeq    int
	maxPacket int
	expansion int // 6 for protein (5-bit only), 15 for nucleic (mixed)
}

// residueSentinel is written at both ends of every decoded sequence.
const residueSentinel = 255

// newChunk allocates a chunk sized for at most maxSeq sequences and
// maxPacket packets: smem must be at
// least expansion*maxPacket + maxSeq + 1 bytes so that, during
// in-place unpacking, the unpacked region (growing left to right) stays
// at least one packet behind the packed region's read cursor at all
// times.
func newChunk(maxSeq, maxPacket, expansion int) *Chunk {
	c := &Chunk{
		maxSeq:    maxSeq,
		maxPacket: maxPacket,
		expansion: expansion,
	}
	c.sizeSmem(maxPacket)
	return c
}

func (c *Chunk) sizeSmem(maxPacket int) {
	need := c.expansion*maxPacket + c.maxSeq + 1
	if cap(c.smem) < need {
		c.smem = make([]byte, need)
	} else {
		c.smem = c.smem[:need]
	}
	c.Psq = c.smem[need-maxPacket*packet.Size:]
}

// Reset prepares the chunk for reuse by the loader: parallel arrays
// are truncated to zero length (their backing arrays, and smem's and
// metadata's capacity, are kept), and pn/N are cleared. Residue and
// metadata bytes are left as-is -- the loader and unpacker always
// overwrite them before any reader observes them, so zeroing here
// would be wasted work: in-place unpacking always reads a packet before
// writing any residue it produces.
func (c *Chunk) Reset() {
	c.N = 0
	c.Pn = 0
	c.Dsq = c.Dsq[:0]
	c.L = c.L[:0]
	c.Name = c.Name[:0]
	c.Acc = c.Acc[:0]
	c.Desc = c.Desc[:0]
	c.Taxid = c.Taxid[:0]
	c.seqPackets = c.seqPackets[:0]
}

// ensureMetadataCapacity grows c.metadata, doubling, until it can hold
// n bytes.
func (c *Chunk) ensureMetadataCapacity(n int) {
	if cap(c.metadata) >= n {
		c.metadata = c.metadata[:n]
		return
	}
	newCap := cap(c.metadata)
	if newCap == 0 {
		newCap = 4096
	}
	for newCap < n {
		newCap *= 2
	}
	grown := make([]byte, n, newCap)
	copy(grown, c.metadata)
	c.metadata = grown
}

// ensurePacketCapacity re-sizes smem/Psq if this chunk must hold more
// packets than it was allocated for (the loader's window can admit up
// to maxPacket packets, but a chunk recycled from an earlier, smaller
// maxPacket configuration could still be short; this keeps Reset a
// true no-realloc path in steady state).
func (c *Chunk) ensurePacketCapacity(maxPacket int) {
	if maxPacket <= c.maxPacket {
		return
	}
	c.maxPacket = maxPacket
	c.sizeSmem(maxPacket)
}
