// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isCanonical(code uint8) bool { return code < 4 }

// packAndRoundTrip packs residues with pack, then decodes the result
// back into a flat residue array and asserts it matches the input.
func packAndRoundTrip(t *testing.T, residues []uint8, pack func(buf []uint8, n int) int) {
	t.Helper()

	n := len(residues)
	buf := make([]uint8, n, packCap(n))
	copy(buf, residues)

	npackets := pack(buf, n)
	packed := buf[:Size*npackets]

	got := make([]uint8, 0, n+1)
	sawEOD := false
	for p := 0; p < npackets; p++ {
		word := binary.LittleEndian.Uint32(packed[p*Size : p*Size+Size])
		var dst [15]uint8
		written, eod := Decode(word, dst[:])
		got = append(got, dst[:written]...)
		if eod {
			require.Equal(t, npackets-1, p, "sentinel bit set before last packet")
			sawEOD = true
		}
	}
	if n > 0 {
		require.True(t, sawEOD, "no packet carried the sentinel bit")
	}
	assert.Equal(t, residues, got)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// packCap returns a buffer capacity that is always large enough to
// hold n residues packed by either Pack5 or PackMixed, even when the
// packed size (in Size-byte packets) exceeds n itself (e.g. n=7 packs
// into 2 5-bit packets, 8 bytes).
func packCap(n int) int {
	npackets := (n + 5) / 6
	return maxInt(maxInt(n, Size), Size*npackets)
}

func TestPack5RoundTrip(t *testing.T) {
	cases := [][]uint8{
		{},
		{0},
		{0, 1, 2, 3},
		{0, 1, 2, 3, 4, 5},
		{0, 1, 2, 3, 4, 5, 6},
		{3, 19, 7, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	for _, residues := range cases {
		packAndRoundTrip(t, residues, Pack5)
	}
}

func TestPack5PacketCount(t *testing.T) {
	for n := 0; n <= 20; n++ {
		residues := make([]uint8, n)
		for i := range residues {
			residues[i] = uint8(i % 20)
		}
		buf := make([]uint8, n, packCap(n))
		copy(buf, residues)
		got := Pack5(buf, n)
		want := (n + 5) / 6
		assert.Equalf(t, want, got, "n=%d", n)
	}
}

func TestPack5FinalPacketIsFull6OrFewer(t *testing.T) {
	buf := make([]uint8, 4, Size)
	copy(buf, []uint8{0, 1, 2, 3})
	n := Pack5(buf, 4)
	require.Equal(t, 1, n)
	word := binary.LittleEndian.Uint32(buf[:Size])
	assert.NotZero(t, word&bitSentinel)
	assert.NotZero(t, word&bitKind5)
}

func TestPackMixedRoundTrip(t *testing.T) {
	cases := [][]uint8{
		{},
		{0, 1, 2, 3},
		makeCanonical(30),
		{0, 1, 2, 3, 0, 1, 2, 3, 19, 19, 0, 1, 2, 3, 0}, // degenerate at 8,9 (code 19 = N-ish)
		makeCanonical(15),
		makeCanonical(14),
	}
	for _, residues := range cases {
		packAndRoundTrip(t, residues, func(buf []uint8, n int) int {
			return PackMixed(buf, n, isCanonical)
		})
	}
}

func makeCanonical(n int) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = uint8(i % 4)
	}
	return out
}

func TestPackMixedPureCanonicalUsesTwoBitPackets(t *testing.T) {
	buf := make([]uint8, 15, maxInt(15, Size))
	copy(buf, makeCanonical(15))
	n := PackMixed(buf, 15, isCanonical)
	require.Equal(t, 1, n)
	word := binary.LittleEndian.Uint32(buf[:Size])
	assert.Zero(t, word&bitKind5, "expected a 2-bit packet")
	assert.NotZero(t, word&bitSentinel)
}

func TestPackMixedDegenerateWindowForcesFiveBit(t *testing.T) {
	residues := make([]uint8, 15)
	for i := range residues {
		residues[i] = uint8(i % 4)
	}
	residues[8] = 19
	residues[9] = 19
	buf := make([]uint8, 15, maxInt(15, Size))
	copy(buf, residues)
	n := PackMixed(buf, 15, isCanonical)
	require.GreaterOrEqual(t, n, 2)
	word0 := binary.LittleEndian.Uint32(buf[:Size])
	assert.NotZero(t, word0&bitKind5, "window containing a degenerate residue must not pack 2-bit")
}

func TestPackMixedPacketCountBounds(t *testing.T) {
	for n := 1; n <= 60; n++ {
		residues := makeCanonical(n)
		buf := make([]uint8, n, packCap(n))
		copy(buf, residues)
		got := PackMixed(buf, n, isCanonical)
		lower := (n + 14) / 15
		// pure canonical input packs each full 15-residue window into one
		// 2-bit packet and any shorter remainder into 5-bit packets.
		want := n/15 + (n%15+5)/6
		assert.Equal(t, want, got)
		assert.GreaterOrEqual(t, got, lower)
	}
}
