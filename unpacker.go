// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import (
	"encoding/binary"
	"fmt"

	"github.com/easel-bio/dsqdata/packet"
)

// unpackChunk decodes a chunk's packed packets in place and scans its
// metadata buffer. It is called once per chunk by
// the unpacker goroutine; an N==0 chunk is passed through untouched by
// the caller before reaching here.
func unpackChunk(c *Chunk) error {
	if err := unpackSequences(c); err != nil {
		return err
	}
	return scanMetadata(c)
}

func unpackSequences(c *Chunk) error {
	if len(c.seqPackets) != c.N {
		return newError(System, "", fmt.Errorf("internal error: chunk has %d sequences but %d packet counts", c.N, len(c.seqPackets)))
	}

	write := 0
	c.smem[write] = residueSentinel
	write++
	pOff := 0

	for i := 0; i < c.N; i++ {
		start := write - 1
		want := c.seqPackets[i]
		for p := 0; p < want; p++ {
			if pOff+packet.Size > len(c.Psq) {
				return newError(Format, "", fmt.Errorf("packet stream truncated before sequence %d (absolute %d) signaled end-of-sequence",
					i, c.I0+int64(i)))
			}
			word := binary.LittleEndian.Uint32(c.Psq[pOff : pOff+packet.Size])
			pOff += packet.Size

			isLastExpected := p == want-1
			var window [15]uint8
			n, eod := packet.Decode(word, window[:])
			if eod != isLastExpected {
				return newError(Format, "", fmt.Errorf("sentinel bit mismatch decoding packet %d of sequence %d (absolute %d)",
					p, i, c.I0+int64(i)))
			}
			copy(c.smem[write:write+n], window[:n])
			write += n
		}
		c.L = append(c.L, int64(write-start-1))
		c.smem[write] = residueSentinel
		c.Dsq = append(c.Dsq, c.smem[start:write+1])
		write++
	}
	return nil
}

// scanMetadata walks a chunk's metadata buffer N times, recording
// pointers at each NUL-terminated field boundary and reading a 32-bit
// taxonomy id. Metadata is user-supplied input, so
// every boundary check guards against missing terminators rather than
// trusting them.
func scanMetadata(c *Chunk) error {
	buf := c.metadata
	pos := 0
	cut := func() ([]byte, error) {
		for i := pos; i < len(buf); i++ {
			if buf[i] == 0 {
				field := buf[pos:i]
				pos = i + 1
				return field, nil
			}
		}
		return nil, newError(Format, "", fmt.Errorf("metadata field missing NUL terminator"))
	}

	for i := 0; i < c.N; i++ {
		if pos >= len(buf) {
			return newError(Format, "", fmt.Errorf("metadata exhausted before sequence %d (absolute %d)", i, c.I0+int64(i)))
		}
		name, err := cut()
		if err != nil {
			return err
		}
		acc, err := cut()
		if err != nil {
			return err
		}
		desc, err := cut()
		if err != nil {
			return err
		}
		if pos+4 > len(buf) {
			return newError(Format, "", fmt.Errorf("metadata truncated before taxid of sequence %d (absolute %d)", i, c.I0+int64(i)))
		}
		taxid := int32(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pos += 4

		c.Name = append(c.Name, name)
		c.Acc = append(c.Acc, acc)
		c.Desc = append(c.Desc, desc)
		c.Taxid = append(c.Taxid, taxid)
	}
	return nil
}
