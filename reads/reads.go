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

/*
Package reads turns aligned reads into the observations the pileup
package accumulates.

Reads are biogo/hts sam.Records. Fetching the reads that overlap a
site, and iterating over sites, is up to the caller.
*/
package reads

import (
	"errors"
	"fmt"

	"github.com/biogo/hts/sam"

	"github.com/exascience/elsnp/pileup"
)

// Options select the reads that contribute to a pileup.
type Options struct {
	// MinMAPQ is the minimum mapping quality.
	MinMAPQ int
	// MinLen is the minimum number of aligned bases.
	MinLen int
	// Reads with any of the ExcludeFlags set are skipped.
	ExcludeFlags sam.Flags
	// UMITag and CellTag name the aux tags with the UMI and the cell
	// barcode. An empty tag is not looked up.
	UMITag, CellTag string
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		MinMAPQ:      20,
		MinLen:       30,
		ExcludeFlags: sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate,
		UMITag:       "UB",
		CellTag:      "CB",
	}
}

// ErrInvalidOptions is returned by Validate.
var ErrInvalidOptions = errors.New("invalid read options")

// Validate checks the options for consistency.
func (o Options) Validate() error {
	switch {
	case o.MinMAPQ < 0 || o.MinMAPQ > 255:
		return fmt.Errorf("%w: mapping quality %v not in [0, 255]", ErrInvalidOptions, o.MinMAPQ)
	case o.MinLen < 0:
		return fmt.Errorf("%w: negative minimum length %v", ErrInvalidOptions, o.MinLen)
	case o.UMITag != "" && len(o.UMITag) != 2:
		return fmt.Errorf("%w: UMI tag %q", ErrInvalidOptions, o.UMITag)
	case o.CellTag != "" && len(o.CellTag) != 2:
		return fmt.Errorf("%w: cell tag %q", ErrInvalidOptions, o.CellTag)
	}
	return nil
}

// seqNibbles maps 4-bit encoded bases to letters.
const seqNibbles = "=ACMGRSVTWYHKDBN"

func baseAt(seq sam.Seq, i int) byte {
	d := seq.Seq[i>>1]
	if i&1 == 0 {
		return seqNibbles[d>>4]
	}
	return seqNibbles[d&0xf]
}

// alignedLength returns the number of bases aligned with M, = or X
// operations.
func alignedLength(cigar sam.Cigar) (n int) {
	for _, op := range cigar {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			n += op.Len()
		}
	}
	return n
}

// Pass reports whether rec passes the flag, mapping quality, and
// length filters.
func (o *Options) Pass(rec *sam.Record) bool {
	return rec.Flags&o.ExcludeFlags == 0 &&
		int(rec.MapQ) >= o.MinMAPQ &&
		alignedLength(rec.Cigar) >= o.MinLen
}

// tagValue returns the value of a string (Z) aux tag of rec. The result
// points into the memory of rec.
func tagValue(rec *sam.Record, name string) []byte {
	if name == "" {
		return nil
	}
	tag := sam.NewTag(name)
	aux, ok := rec.Tag(tag[:])
	if !ok || len(aux) < 4 || aux[2] != 'Z' {
		return nil
	}
	value := aux[3:]
	if value[len(value)-1] == 0 {
		value = value[:len(value)-1]
	}
	return value
}

func stringTag(rec *sam.Record, name string) (string, bool) {
	value := tagValue(rec, name)
	return string(value), len(value) > 0
}

// CellBarcode returns the cell barcode of rec.
func (o *Options) CellBarcode(rec *sam.Record) (string, bool) {
	return stringTag(rec, o.CellTag)
}

// UMI returns the UMI of rec.
func (o *Options) UMI(rec *sam.Record) (string, bool) {
	return stringTag(rec, o.UMITag)
}

/*
Observe returns what rec contributes at the 0-based reference position
pos, and false if rec does not cover pos.

A position inside a reference skip (N) yields a read with RefSkip and
Del set, a position inside a deletion (D) a read with Del set.
Otherwise the read carries the aligned base and its quality. The UMI,
if one is present, points into the aux fields of rec.
*/
func (o *Options) Observe(rec *sam.Record, pos int) (r pileup.Read, ok bool) {
	if pos < rec.Pos {
		return r, false
	}
	refPos, queryPos := rec.Pos, 0
	for _, op := range rec.Cigar {
		t, n := op.Type(), op.Len()
		consume := t.Consumes()
		if consume.Reference > 0 && pos < refPos+n {
			switch {
			case consume.Query > 0:
				i := queryPos + pos - refPos
				if i >= rec.Seq.Length {
					return r, false
				}
				r.Base = baseAt(rec.Seq, i)
				if i < len(rec.Qual) {
					r.Qual = rec.Qual[i]
				}
			case t == sam.CigarSkipped:
				r.RefSkip, r.Del = true, true
			default:
				r.Del = true
			}
			r.UMI = tagValue(rec, o.UMITag)
			return r, true
		}
		refPos += n * consume.Reference
		queryPos += n * consume.Query
	}
	return r, false
}

/*
Feed records every read in recs that passes the filters and covers
pos with the aggregator. The sampleOf function assigns reads to sample
groups; reads it rejects are skipped. Feed returns the number of
recorded reads.
*/
func (o *Options) Feed(agg *pileup.Aggregator, recs []*sam.Record, pos int, sampleOf func(*sam.Record) (int, bool)) (n int, err error) {
	for _, rec := range recs {
		if !o.Pass(rec) {
			continue
		}
		sample, ok := sampleOf(rec)
		if !ok {
			continue
		}
		r, ok := o.Observe(rec, pos)
		if !ok {
			continue
		}
		if err = agg.Record(sample, r); err != nil {
			return n, fmt.Errorf("read %v: %w", rec.Name, err)
		}
		n++
	}
	return n, nil
}

// ByCellBarcode returns a sampleOf function for Feed that assigns reads
// to the sample group named by their cell barcode.
func (o *Options) ByCellBarcode(agg *pileup.Aggregator) func(*sam.Record) (int, bool) {
	return func(rec *sam.Record) (int, bool) {
		cb, ok := o.CellBarcode(rec)
		if !ok {
			return 0, false
		}
		return agg.SampleIndex(cb)
	}
}
