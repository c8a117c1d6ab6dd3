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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"

	"github.com/exascience/elsnp/internal"
	"github.com/exascience/elsnp/pileup"
	"github.com/exascience/elsnp/utils"
)

// A Metric selects one of the per-sample counts that are written as a
// sparse matrix.
type Metric int

// The metrics, in the order in which they are written.
const (
	AD Metric = iota
	DP
	OTH
	nMetrics
)

// Metrics lists all metrics.
var Metrics = [nMetrics]Metric{AD, DP, OTH}

func (m Metric) String() string {
	switch m {
	case AD:
		return "AD"
	case DP:
		return "DP"
	case OTH:
		return "OTH"
	default:
		return "Metric(" + strconv.Itoa(int(m)) + ")"
	}
}

// Value returns the count of s for the metric.
func (m Metric) Value(s *pileup.Sample) int {
	switch m {
	case AD:
		return s.AD
	case DP:
		return s.DP
	case OTH:
		return s.OTH
	default:
		panic(fmt.Sprintf("invalid metric %v", int(m)))
	}
}

// Records returns the number of matrix entries the finished site of agg
// produces for the metric.
func (m Metric) Records(agg *pileup.Aggregator) int {
	ad, dp, oth := agg.Records()
	switch m {
	case AD:
		return ad
	case DP:
		return dp
	case OTH:
		return oth
	default:
		panic(fmt.Sprintf("invalid metric %v", int(m)))
	}
}

// Filename returns the base name of the matrix file of the metric.
func (m Metric) Filename() string {
	return "cellSNP.tag." + m.String() + ".mtx"
}

// A Layout is a sparse matrix line layout.
type Layout int

const (
	// Final lines are "site<TAB>sample<TAB>value".
	Final Layout = iota
	// Temporary lines are "sample<TAB>value", and each site is
	// terminated by an empty line. The site index is assigned when
	// temporary files are merged.
	Temporary
)

/*
AppendMatrix appends the matrix lines of the metric for the finished
site of agg. There is one line per sample with a non-zero value. Site
and sample indexes are 1-based.
*/
func AppendMatrix(buf []byte, m Metric, agg *pileup.Aggregator, siteIndex int, layout Layout) []byte {
	for i := 0; i < agg.NSamples(); i++ {
		v := m.Value(agg.Sample(i))
		if v <= 0 {
			continue
		}
		if layout == Final {
			buf = strconv.AppendInt(buf, int64(siteIndex), 10)
			buf = append(buf, '\t')
		}
		buf = strconv.AppendInt(buf, int64(i+1), 10)
		buf = strconv.AppendInt(append(buf, '\t'), int64(v), 10)
		buf = append(buf, '\n')
	}
	if layout == Temporary {
		buf = append(buf, '\n')
	}
	return buf
}

const matrixMarketHeader = "%%MatrixMarket matrix coordinate integer general\n%\n"

func appendMatrixSize(buf []byte, nSites, nSamples, nRecords int) []byte {
	buf = strconv.AppendInt(buf, int64(nSites), 10)
	buf = strconv.AppendInt(append(buf, '\t'), int64(nSamples), 10)
	buf = strconv.AppendInt(append(buf, '\t'), int64(nRecords), 10)
	return append(buf, '\n')
}

// A matrixFile is an output file that may be compressed.
type matrixFile struct {
	file *os.File
	z    *pgzip.Writer
	*bufio.Writer
}

func createMatrixFile(name string, compress bool) (*matrixFile, error) {
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	f := &matrixFile{file: file}
	if compress {
		f.z = pgzip.NewWriter(file)
		f.Writer = bufio.NewWriter(f.z)
	} else {
		f.Writer = bufio.NewWriter(file)
	}
	return f, nil
}

func (f *matrixFile) Close() error {
	err := f.Flush()
	if f.z != nil {
		if nerr := f.z.Close(); err == nil {
			err = nerr
		}
	}
	if nerr := f.file.Close(); err == nil {
		err = nerr
	}
	return err
}

// matrixName returns the name of the matrix file of m in dir.
func matrixName(dir string, m Metric, compress bool) string {
	name := filepath.Join(dir, m.Filename())
	if compress {
		name += ".gz"
	}
	return name
}

// stagingName returns a unique name for a file that holds the body of
// the final matrix file dst until its size is known.
func stagingName(dst string) string {
	return filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.New().String()+".tmp")
}

// writeMatrix writes the final matrix file dst: the MatrixMarket header
// followed by the body staged in staging. The staging file is removed
// in any case, and dst is removed again if it cannot be completed.
func writeMatrix(dst, staging string, nSites, nSamples, nRecords int, compress bool) (err error) {
	defer func() {
		if err != nil {
			_ = os.Remove(staging)
		}
	}()
	out, err := createMatrixFile(dst, compress)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()
	defer internal.Close(out, &err)
	if _, err = out.WriteString(matrixMarketHeader); err != nil {
		return err
	}
	if _, err = out.Write(appendMatrixSize(nil, nSites, nSamples, nRecords)); err != nil {
		return err
	}
	if err = internal.CopyFile(out, staging); err != nil {
		return err
	}
	return os.Remove(staging)
}

/*
A MatrixWriter writes the AD, DP, and OTH matrices of consecutive
sites into a directory.

With the Final layout, the matrix bodies are staged in temporary files
and the matrix files with their MatrixMarket headers are only written
by Close. With the Temporary layout, lines go directly to the matrix
files, which are meant to be merged later with MergeTemporary.

A MatrixWriter is not safe for concurrent use.
*/
type MatrixWriter struct {
	dir      string
	nSamples int
	layout   Layout
	compress bool

	names    [nMetrics]string
	files    [nMetrics]*matrixFile
	nSites   int
	nRecords [nMetrics]int
	buf      []byte
}

// NewMatrixWriter creates the files for a MatrixWriter in dir. The
// matrix files are gzip compressed if compress is true. If a file
// cannot be created, the files created before are removed again.
func NewMatrixWriter(dir string, nSamples int, layout Layout, compress bool) (w *MatrixWriter, err error) {
	w = &MatrixWriter{dir: dir, nSamples: nSamples, layout: layout, compress: compress}
	for _, m := range Metrics {
		var name string
		if layout == Final {
			name = stagingName(matrixName(dir, m, compress))
			w.files[m], err = createMatrixFile(name, false)
		} else {
			name = matrixName(dir, m, compress)
			w.files[m], err = createMatrixFile(name, compress)
		}
		if err != nil {
			for _, f := range w.files[:m] {
				_ = f.Close()
			}
			w.remove(0, m)
			return nil, err
		}
		w.names[m] = name
	}
	w.buf = internal.ReserveByteBuffer()
	return w, nil
}

// remove removes the files of the metrics in [from, to).
func (w *MatrixWriter) remove(from, to Metric) {
	for _, name := range w.names[from:to] {
		if name != "" {
			_ = os.Remove(name)
		}
	}
}

// WriteSite writes the matrix lines of the finished site of agg, and
// returns its 1-based site index.
func (w *MatrixWriter) WriteSite(agg *pileup.Aggregator) (int, error) {
	if agg.NSamples() != w.nSamples {
		return 0, fmt.Errorf("%w: %v sample groups for a matrix of %v", ErrShortfall, agg.NSamples(), w.nSamples)
	}
	w.nSites++
	for _, m := range Metrics {
		w.buf = AppendMatrix(w.buf[:0], m, agg, w.nSites, w.layout)
		if _, err := w.files[m].Write(w.buf); err != nil {
			return 0, err
		}
		w.nRecords[m] += m.Records(agg)
	}
	return w.nSites, nil
}

// NSites returns the number of sites written so far.
func (w *MatrixWriter) NSites() int {
	return w.nSites
}

// NRecords returns the number of lines written so far for m.
func (w *MatrixWriter) NRecords(m Metric) int {
	return w.nRecords[m]
}

// Close flushes and closes the matrix files, and with the Final layout
// writes the matrix files with their headers. On failure, no staging
// files and no incomplete matrix files are left behind.
func (w *MatrixWriter) Close() (err error) {
	for _, f := range w.files {
		if nerr := f.Close(); err == nil {
			err = nerr
		}
	}
	if w.buf != nil {
		internal.ReleaseByteBuffer(w.buf)
		w.buf = nil
	}
	if err != nil {
		w.remove(0, nMetrics)
		return err
	}
	if w.layout == Temporary {
		return nil
	}
	for _, m := range Metrics {
		if err = writeMatrix(matrixName(w.dir, m, w.compress), w.names[m], w.nSites, w.nSamples, w.nRecords[m], w.compress); err != nil {
			w.remove(m+1, nMetrics)
			return err
		}
	}
	log.WithFields(log.Fields{
		"dir":   w.dir,
		"sites": w.nSites,
	}).Debug("wrote sparse matrices")
	return nil
}

// copyTemporary appends the lines of one temporary matrix file to out,
// numbering sites from nSites+1 onwards.
func copyTemporary(out *bufio.Writer, part string, nSites, nRecords *int) (err error) {
	file, err := os.Open(part)
	if err != nil {
		return err
	}
	defer internal.Close(file, &err)
	reader, z, err := utils.HandleGzip(bufio.NewReader(file))
	if err != nil {
		return err
	}
	if z != nil {
		defer internal.Close(z, &err)
	}
	scanner := bufio.NewScanner(reader)
	index := strconv.AppendInt(nil, int64(*nSites+1), 10)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			*nSites++
			index = strconv.AppendInt(index[:0], int64(*nSites+1), 10)
			continue
		}
		*nRecords++
		if _, err = out.Write(index); err != nil {
			return err
		}
		if err = out.WriteByte('\t'); err != nil {
			return err
		}
		if _, err = out.Write(line); err != nil {
			return err
		}
		if err = out.WriteByte('\n'); err != nil {
			return err
		}
	}
	return scanner.Err()
}

/*
MergeTemporary merges temporary matrix files of one metric, given in
site order, into the final matrix file dst. Site indexes are assigned
block by block. It returns the number of sites and records in the
merged matrix.
*/
func MergeTemporary(dst string, parts []string, nSamples int, compress bool) (nSites, nRecords int, err error) {
	staging := stagingName(dst)
	body, err := createMatrixFile(staging, false)
	if err != nil {
		return 0, 0, err
	}
	for _, part := range parts {
		if err = copyTemporary(body.Writer, part, &nSites, &nRecords); err != nil {
			_ = body.Close()
			_ = os.Remove(staging)
			return 0, 0, fmt.Errorf("%v, while merging %v", err, part)
		}
	}
	if err = body.Close(); err != nil {
		_ = os.Remove(staging)
		return 0, 0, err
	}
	if err = writeMatrix(dst, staging, nSites, nSamples, nRecords, compress); err != nil {
		return 0, 0, err
	}
	log.WithFields(log.Fields{
		"file":    dst,
		"parts":   len(parts),
		"sites":   nSites,
		"records": nRecords,
	}).Info("merged sparse matrix")
	return nSites, nRecords, nil
}
