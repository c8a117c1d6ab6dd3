// elSNP: a high-performance tool for genotyping cells and samples.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elsnp/blob/master/LICENSE.txt>.

package genotype

// Bases lists the base alphabet in index order. Index 4 stands for N
// and for every other base call.
const Bases = "ACGTN"

// NBases is the size of the base alphabet.
const NBases = len(Bases)

// BaseIndex returns the index of a base letter in Bases. Letters other
// than A, C, G, and T (in either case) map to the index of N.
func BaseIndex(base byte) int {
	switch base {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	default:
		return 4
	}
}

// An Allele is an optional index into Bases.
//
// The zero Allele is absent.
type Allele struct {
	index uint8
	valid bool
}

// NoAllele is the absent allele.
var NoAllele = Allele{}

// AlleleAt returns the allele with the given index into Bases, or
// NoAllele if the index is out of range.
func AlleleAt(index int) Allele {
	if index < 0 || index >= NBases {
		return NoAllele
	}
	return Allele{index: uint8(index), valid: true}
}

// AlleleOf returns the allele for a single base letter. A zero byte
// means that the base is not known and yields NoAllele.
func AlleleOf(base byte) Allele {
	if base == 0 {
		return NoAllele
	}
	return AlleleAt(BaseIndex(base))
}

// Index returns the index into Bases and true, or 0 and false for an
// absent allele.
func (a Allele) Index() (int, bool) {
	return int(a.index), a.valid
}

// Valid reports whether the allele is present.
func (a Allele) Valid() bool {
	return a.valid
}

// Base returns the base letter of the allele, or '.' if it is absent.
func (a Allele) Base() byte {
	if !a.valid {
		return '.'
	}
	return Bases[a.index]
}

func (a Allele) String() string {
	if !a.valid {
		return "."
	}
	return Bases[a.index : a.index+1]
}

/*
InferAlleles selects the reference and alternative alleles from base
counts in the order of Bases, when a candidate site does not provide
them.

The reference is the base with the highest count, the alternative the
base with the second highest count. Counts are compared strictly, so
ties go to the lower index.
*/
func InferAlleles(bc [NBases]int) (ref, alt int) {
	var m1, m2 int
	if bc[0] < bc[1] {
		m1, m2, ref, alt = bc[1], bc[0], 1, 0
	} else {
		m1, m2, ref, alt = bc[0], bc[1], 0, 1
	}
	for i := 2; i < NBases; i++ {
		if c := bc[i]; c > m1 {
			m2, alt = m1, ref
			m1, ref = c, i
		} else if c > m2 {
			m2, alt = c, i
		}
	}
	return
}
