// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package alphabet implements the small, out-of-scope collaborator that
// dsqdata's reader and writer depend on but do not own: it decodes
// digital residue codes back to printable symbols and reports which
// kind of biological alphabet a database was built with.
//
// dsqdata never infers an alphabet from sequence content. A database
// records its Kind verbatim at creation time, and a caller opening a
// database either already knows the Kind it expects or accepts whatever
// Kind the database declares.
package alphabet

import "fmt"

// Kind identifies which biological alphabet a database's residues are
// drawn from. dsqdata rejects any other kind at creation time.
type Kind uint32

const (
	// Protein alphabets pack every residue with the 5-bit scheme.
	Protein Kind = iota + 1
	// DNA alphabets pack canonical runs with the 2-bit scheme and
	// degenerate residues with the 5-bit scheme.
	DNA
	// RNA is packed identically to DNA.
	RNA
)

func (k Kind) String() string {
	switch k {
	case Protein:
		return "protein"
	case DNA:
		return "DNA"
	case RNA:
		return "RNA"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// IsNucleic reports whether k uses the mixed 2-bit/5-bit packing
// scheme that nucleic databases require.
func (k Kind) IsNucleic() bool {
	return k == DNA || k == RNA
}

// residueSentinel is written at index 0 of every decoded sequence and
// again immediately after its last residue. It is never a valid
// residue code.
const residueSentinel = 255

// Alphabet decodes the small integer residue codes dsqdata sequences
// are stored in back to printable symbols, and digitizes printable
// sequences into residue codes for writers and tests. codes 0..K-1 are
// the canonical symbols; higher codes (up to 30) are degenerate symbols
// (wildcards, ambiguity codes); code 31 is reserved by the packet codec
// as the in-packet filler/sentinel and is never a valid residue.
type Alphabet struct {
	kind    Kind
	symbols string // canonical-first, degenerate-last
	code    [256]int8
}

// New builds the Alphabet for kind using its conventional symbol table.
// Protein uses the 20 canonical amino acids plus common ambiguity codes;
// DNA and RNA use the four canonical nucleotides plus IUPAC degenerate
// codes.
func New(kind Kind) (*Alphabet, error) {
	var symbols string
	switch kind {
	case Protein:
		symbols = "ACDEFGHIKLMNPQRSTVWYBJZOUX*-"
	case DNA:
		symbols = "ACGTRYMKSWHBVDN*-"
	case RNA:
		symbols = "ACGURYMKSWHBVDN*-"
	default:
		return nil, fmt.Errorf("alphabet: unsupported kind %v", kind)
	}
	a := &Alphabet{kind: kind, symbols: symbols}
	for i := range a.code {
		a.code[i] = -1
	}
	for i := 0; i < len(symbols); i++ {
		a.code[symbols[i]] = int8(i)
		lower := symbols[i] | 0x20
		a.code[lower] = int8(i)
	}
	return a, nil
}

// Kind reports which alphabet kind this descriptor decodes.
func (a *Alphabet) Kind() Kind { return a.kind }

// IsCanonical reports whether code is one of the four (DNA/RNA) or
// twenty (protein) canonical, non-degenerate residues. Canonical codes
// are always < 4 for nucleic alphabets; the mixed packer treats any
// code >= 4 as degenerate and forces 5-bit packing.
func (a *Alphabet) IsCanonical(code uint8) bool {
	if a.kind.IsNucleic() {
		return code < 4
	}
	return code < 20
}

// Decode returns the printable symbol for a digital residue code.
// Code 255 (the sequence sentinel) decodes to '*'; other codes outside
// the alphabet's table decode to '?'.
func (a *Alphabet) Decode(code uint8) byte {
	if code == residueSentinel {
		return '*'
	}
	if int(code) >= len(a.symbols) {
		return '?'
	}
	return a.symbols[code]
}

// Digitize converts a printable sequence into residue codes, with no
// leading or trailing sentinel (callers that need the leading/trailing
// sentinel convention used by decoded chunks add it themselves; see
// dsqdata.Chunk.Dsq). Unrecognized symbols digitize to the alphabet's
// highest degenerate code (symbols[len(symbols)-3], just before '*' and
// '-': 'X' for protein, 'N' for DNA and RNA).
func (a *Alphabet) Digitize(s string) []uint8 {
	out := make([]uint8, len(s))
	unknown := uint8(len(a.symbols) - 3)
	for i := 0; i < len(s); i++ {
		c := a.code[s[i]]
		if c < 0 {
			out[i] = unknown
			continue
		}
		out[i] = uint8(c)
	}
	return out
}
