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

// Package genotype implements the base-quality error model and the
// genotype likelihoods computed from it.
//
// Likelihoods are natural logarithms. For a site with reference allele
// r and alternative allele a, the classes are homozygous reference
// (rr), heterozygous (ra), homozygous alternative (aa), and optionally
// the doublet mixtures rr+ra and ra+aa, following the demuxlet model
// (Kang et al., Nature Biotechnology 2018, online methods).
package genotype

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Columns of a quality vector, and of a row of a quality matrix.
const (
	// log(1-p)
	QualCorrect = iota
	// log(3/4 - 2p/3)
	QualThreeQuarter
	// log(1/2 - p/3)
	QualHalf
	// log(p)
	QualError
	// number of columns
	NQual
)

var (
	// ErrAlleleCollision is returned when the reference and the
	// alternative allele have the same index, for example when a
	// one-letter reference is paired with an alternative that collapses
	// onto the same base. The split into ref/alt/other bases is
	// undefined for such sites.
	ErrAlleleCollision = errors.New("reference and alternative allele are the same base")

	// ErrAlleleIndex is returned for allele indexes outside of Bases.
	ErrAlleleIndex = errors.New("allele index out of range")
)

var (
	logOneThird  = math.Log(1.0 / 3)
	logOneFourth = math.Log(1.0 / 4)
	logTwoThirds = math.Log(2.0 / 3)
	phredScale   = -10 / math.Ln10
)

// A QualMatrix accumulates quality vectors per observed base, in the
// order of Bases.
type QualMatrix [NBases][NQual]float64

// QualVector translates a base quality into the error model of a
// single observation:
//
//	[log(1-p), log(3/4 - 2p/3), log(1/2 - p/3), log(p)]
//
// with p = 10^(-q/10), where q is qual clamped into [minBQ, capBQ].
func QualVector(qual, capBQ, minBQ float64) (rv [NQual]float64) {
	bq := math.Max(math.Min(capBQ, qual), minBQ)
	p := math.Pow(0.1, bq/10)
	rv[QualCorrect] = math.Log(1 - p)
	rv[QualThreeQuarter] = math.Log(0.75 - 2.0/3*p)
	rv[QualHalf] = math.Log(0.5 - 1.0/3*p)
	rv[QualError] = math.Log(p)
	return
}

// Fold adds the quality vector of one observation of the given base to
// the matrix.
func (qm *QualMatrix) Fold(base int, rv *[NQual]float64) {
	floats.Add(qm[base][:], rv[:])
}

/*
LogLikelihoods translates a quality matrix and the base counts it was
built from into genotype log-likelihoods.

Bases other than ref and alt are treated as confidently neither:

	other = sum over other bases b of qm[b][QualError] + log(2/3)*bc[b]
	L(rr) = other + qm[ref][QualCorrect] + qm[alt][QualError] + log(1/3)*bc[alt]
	L(ra) = other + qm[ref][QualHalf] + qm[alt][QualHalf]
	L(aa) = other + qm[ref][QualError] + qm[alt][QualCorrect] + log(1/3)*bc[ref]

With doublet set, L(rr+ra) and L(ra+aa) follow, and n is 5, otherwise
n is 3.
*/
func LogLikelihoods(qm *QualMatrix, bc *[NBases]int, ref, alt int, doublet bool) (gl [5]float64, n int, err error) {
	if ref < 0 || ref >= NBases || alt < 0 || alt >= NBases {
		return gl, 0, ErrAlleleIndex
	}
	if ref == alt {
		return gl, 0, ErrAlleleCollision
	}
	var othQual float64
	var othCount int
	for i := 0; i < NBases; i++ {
		if i != ref && i != alt {
			othQual += qm[i][QualError]
			othCount += bc[i]
		}
	}
	othQual += logTwoThirds * float64(othCount)
	refQual, altQual := &qm[ref], &qm[alt]
	refRead, altRead := float64(bc[ref]), float64(bc[alt])
	gl[HomRef] = othQual + refQual[QualCorrect] + altQual[QualError] + logOneThird*altRead
	gl[Het] = othQual + refQual[QualHalf] + altQual[QualHalf]
	gl[HomAlt] = othQual + refQual[QualError] + altQual[QualCorrect] + logOneThird*refRead
	if !doublet {
		return gl, 3, nil
	}
	gl[DoubletRefHet] = othQual + refQual[QualThreeQuarter] + logOneFourth*altRead
	gl[DoubletHetAlt] = othQual + altQual[QualThreeQuarter] + logOneFourth*refRead
	return gl, 5, nil
}

// Phred rescales a natural-log likelihood to a phred-scaled value,
// rounded to the nearest integer.
func Phred(l float64) float64 {
	if r := math.Round(l * phredScale); r != 0 {
		return r
	}
	return 0
}
