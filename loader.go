// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/easel-bio/dsqdata/internal/fsutil"
	"github.com/easel-bio/dsqdata/internal/layout"
	"github.com/easel-bio/dsqdata/packet"
)

// loader is the reader pipeline's first worker. It
// maintains a sliding window of index records, decides how many
// sequences fit in the next chunk, streams their packed bytes and
// metadata bytes off disk, and hands the chunk to the unpacker via a
// single-slot mailbox.
type loader struct {
	idx  io.ReaderAt
	seq  *bufio.Reader
	meta *bufio.Reader

	nseqTotal int64
	maxSeq    int
	maxPacket int

	outbox   *mailbox
	recyc    *recycler
	allocCap int
	logger   *slog.Logger

	idxPath, seqPath, metaPath string

	expansion int // packet.Decode() expansion factor for chunk sizing

	// sliding window state
	window  []layout.IndexRecord
	head    int64 // absolute sequence index of window[0]
	nextAbs int64 // absolute index of the next record not yet read from disk
	psqLast int64
	metaLog int64 // cumulative metadata offset at the window's trailing boundary

	allocated int // total chunks this loader has ever created
}

func (ld *loader) run() error {
	for {
		done, err := ld.iterate()
		if err != nil {
			return err
		}
		if done {
			return ld.shutdown()
		}
	}
}

// iterate runs one pass of the loader's main loop: acquire a chunk,
// slide the index window, decide how many sequences fit, fill it, and
// hand it off. done is true once the input is exhausted and the N==0
// sentinel has been handed off.
func (ld *loader) iterate() (done bool, err error) {
	chunk, err := ld.acquireChunk()
	if err != nil {
		return false, err
	}

	nidx, err := ld.slideWindow()
	if err != nil {
		return false, err
	}
	if nidx == 0 {
		chunk.Reset()
		chunk.I0 = ld.head
		chunk.N = 0
		if !ld.outbox.put(chunk) {
			return false, nil
		}
		return true, nil
	}

	nload, err := ld.chooseNload(nidx)
	if err != nil {
		return false, err
	}

	chunk.Reset()
	chunk.I0 = ld.head
	chunk.N = nload
	if err := ld.fillChunk(chunk, nload); err != nil {
		return false, err
	}

	ld.head += int64(nload)
	ld.window = ld.window[nload:]

	if !ld.outbox.put(chunk) {
		return false, nil
	}
	return false, nil
}

// acquireChunk pops a recycled chunk, or allocates a fresh one up to
// the configured cap, waiting on the recycler if the cap is reached
// and it is empty.
func (ld *loader) acquireChunk() (*Chunk, error) {
	if ld.allocated < ld.allocCap {
		ld.allocated++
		return newChunk(ld.maxSeq, ld.maxPacket, ld.expansion), nil
	}
	chunk, ok := ld.recyc.pop()
	if !ok {
		return nil, newError(System, "", fmt.Errorf("recycler closed while loader waited for a chunk"))
	}
	chunk.ensurePacketCapacity(ld.maxPacket)
	return chunk, nil
}

// slideWindow tops up the index window from disk. It returns the
// number of index records now available in the window (nidx), which
// may be less than maxSeq near end-of-data and is 0 exactly at
// end-of-data.
func (ld *loader) slideWindow() (int, error) {
	room := ld.maxSeq - len(ld.window)
	if room <= 0 {
		return len(ld.window), nil
	}
	want := room
	if remaining := ld.nseqTotal - ld.nextAbs; int64(want) > remaining {
		want = int(remaining)
	}
	if want > 0 {
		buf := make([]byte, want*layout.IndexRecordSize)
		off := int64(layout.IndexHeaderSize) + ld.nextAbs*layout.IndexRecordSize
		if _, err := ld.idx.ReadAt(buf, off); err != nil {
			return 0, newError(Format, ld.idxPath, fmt.Errorf("reading index window at record %d: %w", ld.nextAbs, err))
		}
		for i := 0; i < want; i++ {
			ld.window = append(ld.window, layout.GetIndexRecord(buf[i*layout.IndexRecordSize:]))
		}
		ld.nextAbs += int64(want)
	}
	return len(ld.window), nil
}

// chooseNload binary-searches the window for the largest prefix whose
// cumulative packet span fits
// within maxPacket. The writer places no limit on a sequence's packet
// count, so a window whose first sequence alone spans more than
// maxPacket packets (a long sequence, or a malformed index) is reported
// as a format error rather than a panic or an infinite loop; otherwise
// nload >= 1.
func (ld *loader) chooseNload(nidx int) (int, error) {
	if ld.window[0].PsqEnd-ld.psqLast > int64(ld.maxPacket) {
		return 0, newError(Format, ld.idxPath, fmt.Errorf("sequence at index %d spans more than %d packets", ld.head, ld.maxPacket))
	}
	lo, hi := 1, nidx
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if ld.window[mid-1].PsqEnd-ld.psqLast <= int64(ld.maxPacket) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// fillChunk reads this chunk's packed bytes and metadata bytes off
// disk, recording each loaded sequence's packet count so the unpacker
// can bound zero-packet sequences correctly (see Chunk.seqPackets).
func (ld *loader) fillChunk(chunk *Chunk, nload int) error {
	lastPsq := ld.window[nload-1].PsqEnd
	lastMeta := ld.window[nload-1].MetadataEnd

	pn := int(lastPsq - ld.psqLast)
	chunk.ensurePacketCapacity(ld.maxPacket)
	chunk.Pn = pn
	need := pn * packet.Size
	if need > 0 {
		if _, err := io.ReadFull(ld.seq, chunk.Psq[:need]); err != nil {
			return newError(Format, ld.seqPath, fmt.Errorf("truncated sequence file reading %d packet bytes: %w", need, err))
		}
	}

	metaLen := int(lastMeta - ld.metaLog)
	chunk.ensureMetadataCapacity(metaLen)
	if metaLen > 0 {
		if _, err := io.ReadFull(ld.meta, chunk.metadata[:metaLen]); err != nil {
			return newError(Format, ld.metaPath, fmt.Errorf("truncated metadata file reading %d bytes: %w", metaLen, err))
		}
	}

	prevPsq := ld.psqLast
	for i := 0; i < nload; i++ {
		chunk.seqPackets = append(chunk.seqPackets, int(ld.window[i].PsqEnd-prevPsq))
		prevPsq = ld.window[i].PsqEnd
	}

	ld.psqLast = lastPsq
	ld.metaLog = lastMeta
	return nil
}

// shutdown waits on recycling until every chunk this loader ever
// allocated has returned, then destroys each (releasing Go's reference
// to it; there is no manual free in a garbage-collected runtime, but
// the loader is still the sole thread that decides when a chunk is
// gone for good).
func (ld *loader) shutdown() error {
	ld.recyc.drain(ld.allocated)
	ld.logger.Debug("loader shutdown complete", "allocated", ld.allocated)
	return nil
}

// openSequential opens path for the loader's forward-only streaming
// read and advises the kernel accordingly (internal/fsutil).
func openSequential(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fsutil.AdviseSequential(f)
	return f, nil
}
