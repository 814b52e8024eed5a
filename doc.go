// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package dsqdata implements a high-throughput binary database format
// for digital biological sequences, and a concurrent reader pipeline
// for streaming them back out in chunks.
//
// A database is four files sharing a base name:
//
//	base       stub, human-readable, carries the unique tag
//	base.dsqi  index: fixed-width header + one 16-byte record per sequence
//	base.dsqs  sequence: fixed-width header + bit-packed residues
//	base.dsqm  metadata: fixed-width header + NUL-terminated name/acc/desc + taxid
//
// Residues are packed into 32-bit little-endian packets:
//
//	bit 31: sentinel (last packet of its sequence)
//	bit 30: kind (0 = 2-bit, 15 residues; 1 = 5-bit, <=6 residues)
//
// Protein databases use 5-bit packing throughout; nucleic (DNA/RNA)
// databases mix 2-bit packing for canonical runs with 5-bit packing
// wherever a degenerate residue forces it.
//
// Open starts a three-stage pipeline -- one loader goroutine streaming
// packed bytes off disk, one unpacker goroutine decoding them in
// place, and as many consumer goroutines as the caller runs calling
// Read -- connected by single-slot mailboxes and an unbounded
// recycling stack that returns Chunks to the loader for reuse:
//
//	loader --mailbox--> unpacker --mailbox--> Read (N consumers)
//	   ^                                           |
//	   `------------------ recycler <--------------'
//
// NewWriter runs the inverse, two-pass process: a first pass over a
// Source to collect per-database statistics, and a second pass that
// packs each record and appends it to the index, sequence, and
// metadata files; the stub is written once, at the end.
package dsqdata
