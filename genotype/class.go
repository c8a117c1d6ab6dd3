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

import "gonum.org/v1/gonum/floats"

// A Class is a genotype class, and the index of its likelihood.
type Class int

// The genotype classes.
const (
	HomRef Class = iota
	Het
	HomAlt
	DoubletRefHet
	DoubletHetAlt
)

var gtStrings = [...]string{"0/0", "1/0", "1/1"}

// GT returns the VCF genotype of a non-doublet class.
func (c Class) GT() string {
	if c < HomRef || c > HomAlt {
		return "./."
	}
	return gtStrings[c]
}

func (c Class) String() string {
	switch c {
	case HomRef:
		return "rr"
	case Het:
		return "ra"
	case HomAlt:
		return "aa"
	case DoubletRefHet:
		return "rr+ra"
	case DoubletHetAlt:
		return "ra+aa"
	default:
		return "invalid"
	}
}

// Call returns the most likely of the classes HomRef, Het, and HomAlt.
// Doublet likelihoods are not considered. On ties, the lowest class
// wins. gl must have at least 3 entries.
func Call(gl []float64) Class {
	return Class(floats.MaxIdx(gl[:3]))
}
