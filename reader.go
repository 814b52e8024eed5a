// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/easel-bio/dsqdata/alphabet"
	"github.com/easel-bio/dsqdata/internal/layout"
)

const (
	defaultMaxSeqPerChunk     = 4096
	defaultMaxPacketsPerChunk = 1 << 16
	streamBufSize             = 1 << 20
)

// ErrByteOrder is returned by Open when a database's index header
// carries layout.SwappedMagic: it was written on a foreign-endian
// machine. Byte-swapped reading is not implemented; this is a clear,
// typed rejection rather than a generic format error.
var ErrByteOrder = newError(Format, "", errors.New("database was written in byte-swapped order; cross-endian reading is not supported"))

// Option configures Open.
type Option func(*readerConfig)

type readerConfig struct {
	logger              *slog.Logger
	maxChunksInFlight   int
	maxSeqPerChunk      int
	maxPacketsPerChunk  int
	checksums           bool
	wantKind            alphabet.Kind
	haveWantKind        bool
}

func defaultReaderConfig() *readerConfig {
	return &readerConfig{
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSeqPerChunk:     defaultMaxSeqPerChunk,
		maxPacketsPerChunk: defaultMaxPacketsPerChunk,
	}
}

// WithLogger sets the *slog.Logger the reader's background workers use
// for lifecycle diagnostics. The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(c *readerConfig) { c.logger = l }
}

// WithMaxChunksInFlight overrides the loader's allocation cap, which
// otherwise defaults to nconsumers+2.
func WithMaxChunksInFlight(n int) Option {
	return func(c *readerConfig) { c.maxChunksInFlight = n }
}

// WithMaxSeqPerChunk overrides the default maximum number of sequences
// per chunk.
func WithMaxSeqPerChunk(n int) Option {
	return func(c *readerConfig) { c.maxSeqPerChunk = n }
}

// WithMaxPacketsPerChunk overrides the default maximum number of
// packets per chunk.
func WithMaxPacketsPerChunk(n int) Option {
	return func(c *readerConfig) { c.maxPacketsPerChunk = n }
}

// WithChecksums makes Open verify the stub's optional digest line, if
// present, against the sequence and metadata files' contents. Writers
// only emit the digest line when WithWriterChecksums(true) was passed to
// NewWriter; a stub without one is still valid regardless of this
// option.
func WithChecksums(enabled bool) Option {
	return func(c *readerConfig) { c.checksums = enabled }
}

// WithAlphabetKind makes Open fail with an Incompat error if the
// database's recorded alphabet kind doesn't match k.
func WithAlphabetKind(k alphabet.Kind) Option {
	return func(c *readerConfig) { c.wantKind = k; c.haveWantKind = true }
}

// Reader is an open dsqdata database. Create one with Open; release its
// resources with Close. A Reader is safe for concurrent Read/Recycle
// calls from multiple consumer goroutines.
type Reader struct {
	base string

	Alphabet *alphabet.Alphabet
	Tag      uint32
	NSeq     uint64
	NRes     uint64

	idxFile  *os.File
	seqFile  *os.File
	metaFile *os.File

	loaderOut *mailbox
	unpackOut *mailbox
	recyc     *recycler

	group   *errgroup.Group
	started bool

	stickyErr atomic.Pointer[Error]
	eof       atomic.Bool

	logger *slog.Logger
}

// Open opens the four files sharing base's name ("base.dsqi",
// "base.dsqm", "base.dsqs", and the stub at "base"), cross-validates
// their headers, and starts the loader and unpacker goroutines.
// nconsumers is advisory: it only sets the default chunk-allocation
// cap (nconsumers+2), which WithMaxChunksInFlight can override.
//
// On error, Open still returns a non-nil *Reader carrying whatever
// files it managed to open, so the caller can Close it to release
// them.
func Open(base string, nconsumers int, opts ...Option) (*Reader, error) {
	cfg := defaultReaderConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.maxChunksInFlight <= 0 {
		cfg.maxChunksInFlight = nconsumers + 2
	}

	idxPath := base + ".dsqi"
	seqPath := base + ".dsqs"
	metaPath := base + ".dsqm"
	stubPath := base

	r := &Reader{base: base, logger: cfg.logger}

	idxFile, err := os.Open(idxPath)
	if err != nil {
		return r, newError(NotFound, idxPath, err)
	}
	r.idxFile = idxFile

	seqOS, err := openSequential(seqPath)
	if err != nil {
		return r, newError(NotFound, seqPath, err)
	}
	r.seqFile = seqOS

	metaOS, err := openSequential(metaPath)
	if err != nil {
		return r, newError(NotFound, metaPath, err)
	}
	r.metaFile = metaOS

	var ihbuf [layout.IndexHeaderSize]byte
	if _, err := io.ReadFull(idxFile, ihbuf[:]); err != nil {
		return r, newError(Format, idxPath, fmt.Errorf("reading index header: %w", err))
	}
	var ih layout.IndexHeader
	if err := ih.UnmarshalBytes(ihbuf[:]); err != nil {
		return r, newError(Format, idxPath, err)
	}
	if ih.Magic == layout.SwappedMagic {
		return r, ErrByteOrder
	}
	if ih.Magic != layout.Magic {
		return r, newError(Format, idxPath, fmt.Errorf("bad magic %#x", ih.Magic))
	}

	seqBuf := bufio.NewReaderSize(seqOS, streamBufSize)
	if _, err := readSideHeader(seqBuf, seqPath, &ih); err != nil {
		return r, err
	}

	metaBuf := bufio.NewReaderSize(metaOS, streamBufSize)
	if _, err := readSideHeader(metaBuf, metaPath, &ih); err != nil {
		return r, err
	}

	stubFile, err := os.Open(stubPath)
	if err != nil {
		return r, newError(NotFound, stubPath, err)
	}
	stubTag, digest, err := layout.ReadStub(stubFile)
	stubFile.Close()
	if err != nil {
		return r, newError(Format, stubPath, err)
	}
	if stubTag != ih.Tag {
		return r, newError(Format, stubPath, fmt.Errorf("stub tag %#x does not match index tag %#x", stubTag, ih.Tag))
	}
	if cfg.checksums && digest != nil {
		if err := verifyDigest(seqPath, metaPath, digest); err != nil {
			return r, err
		}
	}

	kind := alphabet.Kind(ih.AlphaType)
	if cfg.haveWantKind && kind != cfg.wantKind {
		return r, newError(Incompat, base, fmt.Errorf("database alphabet is %v, caller expected %v", kind, cfg.wantKind))
	}
	alpha, err := alphabet.New(kind)
	if err != nil {
		return r, newError(Format, idxPath, fmt.Errorf("unsupported alphabet type %d: %w", ih.AlphaType, err))
	}

	r.Alphabet = alpha
	r.Tag = ih.Tag
	r.NSeq = ih.NSeq
	r.NRes = ih.NRes

	expansion := 6
	if kind.IsNucleic() {
		expansion = 15
	}

	r.loaderOut = newMailbox()
	r.unpackOut = newMailbox()
	r.recyc = newRecycler()

	ld := &loader{
		idx:       idxFile,
		seq:       seqBuf,
		meta:      metaBuf,
		nseqTotal: int64(ih.NSeq),
		maxSeq:    cfg.maxSeqPerChunk,
		maxPacket: cfg.maxPacketsPerChunk,
		outbox:    r.loaderOut,
		recyc:     r.recyc,
		allocCap:  cfg.maxChunksInFlight,
		logger:    cfg.logger,
		expansion: expansion,
		idxPath:   idxPath,
		seqPath:   seqPath,
		metaPath:  metaPath,
		// psqLast/metaLog are the absolute offset of the last byte
		// already consumed, using the same inclusive-index convention
		// as PsqEnd/MetadataEnd; -1 means "nothing consumed yet" so the
		// very first index record's span computes correctly even when
		// it describes a zero-packet sequence.
		psqLast: -1,
		metaLog: -1,
	}

	var g errgroup.Group
	g.Go(func() error {
		err := ld.run()
		if err != nil {
			r.fail(err)
		}
		return err
	})
	g.Go(func() error {
		err := runUnpacker(r.loaderOut, r.unpackOut)
		if err != nil {
			r.fail(err)
		}
		return err
	})
	r.group = &g
	r.started = true

	cfg.logger.Debug("dsqdata reader opened", "base", base, "nseq", ih.NSeq, "alphabet", kind)
	return r, nil
}

func readSideHeader(r io.Reader, path string, ih *layout.IndexHeader) (layout.SideHeader, error) {
	var buf [layout.SideHeaderSize]byte
	var sh layout.SideHeader
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return sh, newError(Format, path, fmt.Errorf("reading header: %w", err))
	}
	if err := sh.UnmarshalBytes(buf[:]); err != nil {
		return sh, newError(Format, path, err)
	}
	if sh.Magic != ih.Magic {
		return sh, newError(Format, path, fmt.Errorf("magic %#x does not match index magic %#x", sh.Magic, ih.Magic))
	}
	if sh.Tag != ih.Tag {
		return sh, newError(Format, path, fmt.Errorf("tag %#x does not match index tag %#x", sh.Tag, ih.Tag))
	}
	return sh, nil
}

// runUnpacker is the unpacker goroutine: take a chunk from the
// loader-outbox, decode it unless it's the N==0 sentinel, hand it to
// the unpacker-outbox, and stop after relaying the sentinel.
func runUnpacker(in, out *mailbox) error {
	for {
		chunk, ok := in.take()
		if !ok {
			return nil
		}
		if chunk.N > 0 {
			if err := unpackChunk(chunk); err != nil {
				return err
			}
		}
		sentinel := chunk.N == 0
		if !out.put(chunk) {
			return nil
		}
		if sentinel {
			// Exactly one blocked take() call receives this chunk
			// object; closing right behind it wakes every other
			// consumer that was (or will be) waiting on this mailbox
			// so they observe EOF instead of blocking forever --
			// sync.Cond's Signal in put() only ever wakes one waiter.
			out.close()
			return nil
		}
	}
}

// fail latches err as the reader's sticky error (first one wins) and
// unsticks any goroutine blocked on a mailbox or the recycler, so a
// fatal worker error surfaces to every Read caller instead of taking
// the process down out from under its caller.
func (r *Reader) fail(err error) {
	boundary, ok := err.(*Error)
	if !ok {
		boundary = newError(System, "", err)
	}
	if r.stickyErr.CompareAndSwap(nil, boundary) {
		r.loaderOut.close()
		r.unpackOut.close()
		r.recyc.close()
	}
}

// Read returns the next chunk in on-disk order. Multiple goroutines may
// call Read concurrently; each receives a distinct chunk. Once the
// end-of-data sentinel has been observed by any caller, Read returns
// io.EOF to every caller without touching the pipeline again.
func (r *Reader) Read() (*Chunk, error) {
	if r.eof.Load() {
		return nil, io.EOF
	}
	if err := r.stickyErr.Load(); err != nil {
		return nil, err
	}

	chunk, ok := r.unpackOut.take()
	if !ok {
		if err := r.stickyErr.Load(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	if chunk.N == 0 {
		r.eof.Store(true)
		r.recyc.push(chunk)
		return nil, io.EOF
	}
	return chunk, nil
}

// Recycle returns chunk to the pool so the loader can reuse it. Every
// chunk obtained from Read must eventually be passed to Recycle exactly
// once.
func (r *Reader) Recycle(chunk *Chunk) {
	r.recyc.push(chunk)
}

// Close joins the loader and unpacker goroutines, closes the
// underlying files, and releases the reader's synchronization
// primitives. Close is idempotent and safe to call on a reader that
// Open returned alongside an error.
//
// Its precondition is that every chunk obtained from Read has already
// been passed to Recycle; Close does not itself wait for outstanding
// chunks beyond what the loader's own shutdown sequence already waits
// for.
func (r *Reader) Close() error {
	var firstErr error
	if r.started {
		r.eof.Store(true)
		r.loaderOut.close()
		r.unpackOut.close()
		r.recyc.close()
		if err := r.group.Wait(); err != nil {
			if _, ok := err.(*Error); !ok {
				err = newError(System, "", err)
			}
			firstErr = err
		}
		r.started = false
	}
	if sticky := r.stickyErr.Load(); sticky != nil && firstErr == nil {
		firstErr = sticky
	}

	for _, f := range []*os.File{r.idxFile, r.seqFile, r.metaFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = newError(System, f.Name(), err)
		}
	}
	r.idxFile, r.seqFile, r.metaFile = nil, nil, nil

	return firstErr
}
