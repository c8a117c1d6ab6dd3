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

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(x, y float64) bool {
	return math.Abs(x-y) <= epsilon*math.Max(1, math.Max(math.Abs(x), math.Abs(y)))
}

func TestBaseIndex(t *testing.T) {
	for i, b := range []byte("ACGTN") {
		if BaseIndex(b) != i {
			t.Errorf("BaseIndex(%c) failed", b)
		}
	}
	for _, b := range []byte("acgt") {
		if BaseIndex(b) != BaseIndex(b-'a'+'A') {
			t.Errorf("BaseIndex(%c) failed", b)
		}
	}
	for _, b := range []byte("=RYKM.*") {
		if BaseIndex(b) != 4 {
			t.Errorf("BaseIndex(%c) failed", b)
		}
	}
}

func TestAllele(t *testing.T) {
	if NoAllele.Valid() || NoAllele.String() != "." || NoAllele.Base() != '.' {
		t.Error("NoAllele failed")
	}
	if AlleleOf(0) != NoAllele {
		t.Error("AlleleOf(0) failed")
	}
	if a := AlleleOf('g'); !a.Valid() || a.String() != "G" {
		t.Error("AlleleOf(g) failed")
	}
	if i, ok := AlleleAt(3).Index(); !ok || i != 3 {
		t.Error("AlleleAt(3) failed")
	}
	if AlleleAt(5).Valid() || AlleleAt(-1).Valid() {
		t.Error("AlleleAt out of range failed")
	}
}

func TestInferAlleles(t *testing.T) {
	tests := []struct {
		bc       [NBases]int
		ref, alt int
	}{
		{[NBases]int{10, 10, 5, 0, 0}, 0, 1},
		{[NBases]int{0, 0, 0, 0, 0}, 0, 1},
		{[NBases]int{1, 2, 3, 4, 5}, 4, 3},
		{[NBases]int{0, 3, 7, 3, 0}, 2, 1},
		{[NBases]int{2, 0, 0, 9, 0}, 3, 0},
		{[NBases]int{0, 0, 5, 5, 5}, 2, 3},
	}
	for _, test := range tests {
		if ref, alt := InferAlleles(test.bc); ref != test.ref || alt != test.alt {
			t.Errorf("InferAlleles(%v) = (%v, %v), expected (%v, %v)", test.bc, ref, alt, test.ref, test.alt)
		}
	}
}

func TestQualVector(t *testing.T) {
	rv := QualVector(30, 40, 1)
	p := 0.001
	expected := [NQual]float64{math.Log(1 - p), math.Log(0.75 - 2*p/3), math.Log(0.5 - p/3), math.Log(p)}
	for i := range rv {
		if !almostEqual(rv[i], expected[i]) {
			t.Errorf("QualVector entry %v = %v, expected %v", i, rv[i], expected[i])
		}
	}
	if QualVector(60, 40, 1) != QualVector(40, 40, 1) {
		t.Error("QualVector cap failed")
	}
	if QualVector(0, 40, 1) != QualVector(1, 40, 1) {
		t.Error("QualVector floor failed")
	}
}

func TestQualVectorMonotonic(t *testing.T) {
	// The order holds once p <= 0.375, that is from quality 5 on.
	for q := 5.0; q <= 40; q++ {
		rv := QualVector(q, 40, 5)
		if !(rv[0] >= rv[1] && rv[1] >= rv[2] && rv[2] >= rv[3]) {
			t.Errorf("QualVector(%v) not monotonic: %v", q, rv)
		}
	}
}

func foldN(qm *QualMatrix, base, n int, qual float64) {
	rv := QualVector(qual, 40, 1)
	for i := 0; i < n; i++ {
		qm.Fold(base, &rv)
	}
}

func TestLogLikelihoods(t *testing.T) {
	var qm QualMatrix
	bc := [NBases]int{8, 1, 2, 0, 0}
	foldN(&qm, 0, 8, 30)
	foldN(&qm, 1, 1, 20)
	foldN(&qm, 2, 2, 30)
	gl, n, err := LogLikelihoods(&qm, &bc, 0, 2, false)
	if err != nil || n != 3 {
		t.Fatal("LogLikelihoods failed", err, n)
	}
	other := qm[1][QualError] + math.Log(2.0/3)
	expected := [3]float64{
		other + qm[0][QualCorrect] + qm[2][QualError] + math.Log(1.0/3)*2,
		other + qm[0][QualHalf] + qm[2][QualHalf],
		other + qm[0][QualError] + qm[2][QualCorrect] + math.Log(1.0/3)*8,
	}
	for i := range expected {
		if !almostEqual(gl[i], expected[i]) {
			t.Errorf("likelihood %v = %v, expected %v", i, gl[i], expected[i])
		}
	}
	gl5, n, err := LogLikelihoods(&qm, &bc, 0, 2, true)
	if err != nil || n != 5 {
		t.Fatal("doublet LogLikelihoods failed", err, n)
	}
	if gl5[0] != gl[0] || gl5[1] != gl[1] || gl5[2] != gl[2] {
		t.Error("doublet LogLikelihoods changed the first classes")
	}
	if !almostEqual(gl5[3], other+qm[0][QualThreeQuarter]+math.Log(0.25)*2) ||
		!almostEqual(gl5[4], other+qm[2][QualThreeQuarter]+math.Log(0.25)*8) {
		t.Error("doublet likelihoods failed")
	}
}

func TestLogLikelihoodsGuards(t *testing.T) {
	var qm QualMatrix
	var bc [NBases]int
	if _, _, err := LogLikelihoods(&qm, &bc, 2, 2, false); !errors.Is(err, ErrAlleleCollision) {
		t.Error("allele collision not detected")
	}
	if _, _, err := LogLikelihoods(&qm, &bc, 0, 5, false); !errors.Is(err, ErrAlleleIndex) {
		t.Error("allele index not checked")
	}
}

func TestCall(t *testing.T) {
	if Call([]float64{-1, -2, -3}) != HomRef {
		t.Error("Call rr failed")
	}
	if Call([]float64{-5, -2, -3, 0, 0}) != Het {
		t.Error("Call ignores doublets failed")
	}
	if Call([]float64{-3, -3, -3}) != HomRef {
		t.Error("Call tie failed")
	}
	if Call([]float64{-4, -3, -3}) != Het {
		t.Error("Call tie to lower class failed")
	}
	if HomAlt.GT() != "1/1" || Het.GT() != "1/0" || HomRef.GT() != "0/0" || DoubletRefHet.GT() != "./." {
		t.Error("GT failed")
	}
}

func TestCallHomRef(t *testing.T) {
	var qm QualMatrix
	bc := [NBases]int{10, 0, 0, 0, 0}
	foldN(&qm, 0, 10, 30)
	gl, n, err := LogLikelihoods(&qm, &bc, 0, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if Call(gl[:n]) != HomRef {
		t.Error("clean reference pileup not called rr")
	}
}

func TestPhred(t *testing.T) {
	if Phred(-math.Ln10) != 10 {
		t.Error("Phred failed")
	}
	if Phred(-0.01) != 0 || math.Signbit(Phred(0.01)) {
		t.Error("Phred zero failed")
	}
	if Phred(-16.0) != 69 {
		t.Error("Phred rounding failed")
	}
}
