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

package output

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"

	"github.com/exascience/elsnp/pileup"
	"github.com/exascience/elsnp/snp"
	"github.com/exascience/elsnp/utils"
)

func newTestAggregator(t *testing.T) *pileup.Aggregator {
	agg, err := pileup.NewAggregator(pileup.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := agg.SetSampleGroups([]string{"cell1", "cell2"}); err != nil {
		t.Fatal(err)
	}
	return agg
}

func record(t *testing.T, agg *pileup.Aggregator, sample int, base byte, n int) {
	for i := 0; i < n; i++ {
		if err := agg.Record(sample, pileup.Read{Base: base, Qual: 30}); err != nil {
			t.Fatal(err)
		}
	}
}

// site 1: A8 G2 in cell1, nothing in cell2
func firstSite(t *testing.T, agg *pileup.Aggregator) {
	agg.SetSite(&snp.Site{Chrom: utils.Intern("chr1"), Pos: 99, Ref: 'A', Alt: 'G'})
	record(t, agg, 0, 'A', 8)
	record(t, agg, 0, 'G', 2)
	if err := agg.Finish(); err != nil {
		t.Fatal(err)
	}
}

// site 2: C1 T3 N1 in cell2, nothing in cell1
func secondSite(t *testing.T, agg *pileup.Aggregator) {
	agg.SetSite(&snp.Site{Chrom: utils.Intern("chr1"), Pos: 199, Ref: 'C', Alt: 'T'})
	record(t, agg, 1, 'C', 1)
	record(t, agg, 1, 'T', 3)
	record(t, agg, 1, 'N', 1)
	if err := agg.Finish(); err != nil {
		t.Fatal(err)
	}
}

const firstSiteLine = "chr1\t100\t.\tA\tG\t.\tPASS\tAD=2;DP=10;OTH=0\tGT:AD:DP:OTH:PL:ALL" +
	"\t1/0:2:10:0:70,30,278:8,0,2,0,0\t.:.:.:.:.:.\n"

func TestAppendSample(t *testing.T) {
	agg := newTestAggregator(t)
	firstSite(t, agg)
	buf, err := AppendSample(nil, agg.Sample(0))
	if err != nil || string(buf) != "1/0:2:10:0:70,30,278:8,0,2,0,0" {
		t.Errorf("AppendSample failed: %q", buf)
	}
	buf, err = AppendSample(buf[:0], agg.Sample(1))
	if err != nil || string(buf) != MissingField {
		t.Error("AppendSample missing failed")
	}
	buf, err = AppendSamples([]byte("x"), agg)
	if err != nil || string(buf) != "x\t1/0:2:10:0:70,30,278:8,0,2,0,0\t.:.:.:.:.:." {
		t.Errorf("AppendSamples failed: %q", buf)
	}
}

func TestAppendSampleShortfall(t *testing.T) {
	s := &pileup.Sample{TC: 3}
	if _, err := AppendSample(nil, s); !errors.Is(err, ErrShortfall) {
		t.Error("AppendSample shortfall failed")
	}
}

func TestAppendSite(t *testing.T) {
	agg := newTestAggregator(t)
	if _, err := AppendSite(nil, agg); !errors.Is(err, ErrShortfall) {
		t.Error("AppendSite without site failed")
	}
	firstSite(t, agg)
	buf, err := AppendSite(nil, agg)
	if err != nil || string(buf) != firstSiteLine {
		t.Errorf("AppendSite failed: %q", buf)
	}
}

func TestWriteHeader(t *testing.T) {
	var out bytes.Buffer
	if err := WriteHeader(&out, []string{"chr1", "chr2"}, []string{"cell1", "cell2"}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if lines[0] != "##fileformat=VCFv4.2" || lines[1] != "##source="+utils.ProgramMessage {
		t.Error("WriteHeader first lines failed")
	}
	if lines[2] != "##contig=<ID=chr1>" || lines[3] != "##contig=<ID=chr2>" {
		t.Error("WriteHeader contigs failed")
	}
	if len(lines) != 4+len(headerInfoLines)+1 {
		t.Error("WriteHeader line count failed")
	}
	if lines[len(lines)-1] != "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tcell1\tcell2" {
		t.Error("WriteHeader columns failed")
	}
}

func TestMetric(t *testing.T) {
	s := &pileup.Sample{AD: 1, DP: 2, OTH: 3}
	for i, m := range Metrics {
		if m.Value(s) != i+1 {
			t.Errorf("%v Value failed", m)
		}
	}
	if AD.Filename() != "cellSNP.tag.AD.mtx" || OTH.String() != "OTH" {
		t.Error("Metric names failed")
	}
}

func TestAppendMatrix(t *testing.T) {
	agg := newTestAggregator(t)
	secondSite(t, agg)
	for _, test := range []struct {
		m               Metric
		final, temporary string
	}{
		{AD, "7\t2\t3\n", "2\t3\n\n"},
		{DP, "7\t2\t4\n", "2\t4\n\n"},
		{OTH, "7\t2\t1\n", "2\t1\n\n"},
	} {
		if buf := AppendMatrix(nil, test.m, agg, 7, Final); string(buf) != test.final {
			t.Errorf("AppendMatrix %v final failed: %q", test.m, buf)
		}
		if buf := AppendMatrix(nil, test.m, agg, 7, Temporary); string(buf) != test.temporary {
			t.Errorf("AppendMatrix %v temporary failed: %q", test.m, buf)
		}
	}
	firstSite(t, agg)
	if buf := AppendMatrix(nil, OTH, agg, 1, Final); len(buf) != 0 {
		t.Error("AppendMatrix empty final failed")
	}
	if buf := AppendMatrix(nil, OTH, agg, 1, Temporary); string(buf) != "\n" {
		t.Error("AppendMatrix empty temporary failed")
	}
}

func readMatrix(t *testing.T, name string, compressed bool) string {
	file, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	var r io.Reader = file
	if compressed {
		z, err := pgzip.NewReader(file)
		if err != nil {
			t.Fatal(err)
		}
		defer z.Close()
		r = z
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

var expectedMatrices = map[Metric]string{
	AD:  matrixMarketHeader + "2\t2\t2\n1\t1\t2\n2\t2\t3\n",
	DP:  matrixMarketHeader + "2\t2\t2\n1\t1\t10\n2\t2\t4\n",
	OTH: matrixMarketHeader + "2\t2\t1\n2\t2\t1\n",
}

func checkNoStagingFiles(t *testing.T, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("staging file %v left behind", entry.Name())
		}
	}
}

func testMatrixWriter(t *testing.T, compress bool) {
	dir := t.TempDir()
	w, err := NewMatrixWriter(dir, 2, Final, compress)
	if err != nil {
		t.Fatal(err)
	}
	agg := newTestAggregator(t)
	firstSite(t, agg)
	if i, err := w.WriteSite(agg); err != nil || i != 1 {
		t.Fatal("WriteSite 1 failed", err)
	}
	secondSite(t, agg)
	if i, err := w.WriteSite(agg); err != nil || i != 2 {
		t.Fatal("WriteSite 2 failed", err)
	}
	if w.NSites() != 2 || w.NRecords(AD) != 2 || w.NRecords(OTH) != 1 {
		t.Error("MatrixWriter counts failed")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	for m, expected := range expectedMatrices {
		if got := readMatrix(t, matrixName(dir, m, compress), compress); got != expected {
			t.Errorf("%v matrix failed: %q", m, got)
		}
	}
	checkNoStagingFiles(t, dir)
}

func TestMatrixWriter(t *testing.T) {
	testMatrixWriter(t, false)
}

func TestMatrixWriterCompressed(t *testing.T) {
	testMatrixWriter(t, true)
}

func TestMatrixWriterSampleMismatch(t *testing.T) {
	w, err := NewMatrixWriter(t.TempDir(), 3, Temporary, false)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := w.WriteSite(newTestAggregator(t)); !errors.Is(err, ErrShortfall) {
		t.Error("WriteSite sample mismatch failed")
	}
}

func blockMatrix(t *testing.T, dir string, m Metric) {
	name := filepath.Join(matrixName(dir, m, false), "occupied")
	if err := os.MkdirAll(name, 0777); err != nil {
		t.Fatal(err)
	}
}

func TestNewMatrixWriterCleanup(t *testing.T) {
	dir := t.TempDir()
	blockMatrix(t, dir, DP)
	if _, err := NewMatrixWriter(dir, 2, Temporary, false); err == nil {
		t.Fatal("NewMatrixWriter on blocked file failed")
	}
	if _, err := os.Stat(matrixName(dir, AD, false)); !os.IsNotExist(err) {
		t.Error("NewMatrixWriter left a matrix file behind")
	}
}

func TestMatrixWriterCloseCleanup(t *testing.T) {
	dir := t.TempDir()
	w, err := NewMatrixWriter(dir, 2, Final, false)
	if err != nil {
		t.Fatal(err)
	}
	agg := newTestAggregator(t)
	firstSite(t, agg)
	if _, err := w.WriteSite(agg); err != nil {
		t.Fatal(err)
	}
	blockMatrix(t, dir, DP)
	if err := w.Close(); err == nil {
		t.Fatal("Close on blocked file failed")
	}
	checkNoStagingFiles(t, dir)
	if _, err := os.Stat(matrixName(dir, OTH, false)); !os.IsNotExist(err) {
		t.Error("Close wrote a matrix after a failure")
	}
	if _, err := os.Stat(matrixName(dir, DP, false)); err != nil {
		t.Error("Close removed an unrelated directory")
	}
}

func TestMergeTemporary(t *testing.T) {
	root := t.TempDir()
	agg := newTestAggregator(t)
	var dirs []string
	for i, site := range []func(*testing.T, *pileup.Aggregator){firstSite, secondSite} {
		dir := filepath.Join(root, "worker"+string(rune('0'+i)))
		if err := os.Mkdir(dir, 0777); err != nil {
			t.Fatal(err)
		}
		w, err := NewMatrixWriter(dir, 2, Temporary, i == 1)
		if err != nil {
			t.Fatal(err)
		}
		site(t, agg)
		if _, err := w.WriteSite(agg); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		dirs = append(dirs, dir)
	}
	for m, expected := range expectedMatrices {
		parts := []string{matrixName(dirs[0], m, false), matrixName(dirs[1], m, true)}
		dst := matrixName(root, m, false)
		nSites, nRecords, err := MergeTemporary(dst, parts, 2, false)
		if err != nil {
			t.Fatal(err)
		}
		if nSites != 2 {
			t.Errorf("%v merged sites failed", m)
		}
		if got := readMatrix(t, dst, false); got != expected {
			t.Errorf("%v merged matrix failed: %q, %v records", m, got, nRecords)
		}
	}
	checkNoStagingFiles(t, root)
	if _, _, err := MergeTemporary(filepath.Join(root, "x.mtx"), []string{filepath.Join(root, "missing")}, 2, false); err == nil {
		t.Error("MergeTemporary missing part failed")
	}
}
