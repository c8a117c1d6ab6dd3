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

// Package output formats finished sites as VCF lines and as sparse
// AD, DP, and OTH matrices.
//
// All Append functions append to a caller-provided byte slice and
// return the extended slice, in the manner of strconv.AppendInt.
package output

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/exascience/elsnp/genotype"
	"github.com/exascience/elsnp/internal"
	"github.com/exascience/elsnp/pileup"
	"github.com/exascience/elsnp/utils"
)

const (
	// MissingField is the sample field of a sample without counts.
	MissingField = ".:.:.:.:.:."

	// FormatKeys is the FORMAT column of every data line.
	FormatKeys = "GT:AD:DP:OTH:PL:ALL"

	fileFormatLine = "##fileformat=VCFv4.2\n"
	columnsLine    = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT"
)

var headerInfoLines = [...]string{
	`##INFO=<ID=AD,Number=1,Type=Integer,Description="Total counts for ALT alleles">`,
	`##INFO=<ID=DP,Number=1,Type=Integer,Description="Total counts for ALT and REF alleles">`,
	`##INFO=<ID=OTH,Number=1,Type=Integer,Description="Total counts for other alleles">`,
	`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
	`##FORMAT=<ID=AD,Number=1,Type=Integer,Description="Total counts for ALT alleles">`,
	`##FORMAT=<ID=DP,Number=1,Type=Integer,Description="Total counts for ALT and REF alleles">`,
	`##FORMAT=<ID=OTH,Number=1,Type=Integer,Description="Total counts for other alleles">`,
	`##FORMAT=<ID=PL,Number=G,Type=Integer,Description="List of Phred-scaled genotype likelihoods">`,
	`##FORMAT=<ID=ALL,Number=5,Type=Integer,Description="Total counts for all alleles A,C,G,T,N">`,
}

// ErrShortfall is returned when a sample or site cannot be formatted
// completely.
var ErrShortfall = errors.New("incomplete output record")

/*
AppendSample appends the VCF sample field of s.

A sample without counts yields MissingField. Otherwise the field is
GT:AD:DP:OTH:PL:ALL, where GT is the arg-max call over the first
three likelihoods, PL the phred-scaled likelihoods, and ALL the five
base counts.
*/
func AppendSample(buf []byte, s *pileup.Sample) ([]byte, error) {
	if s.TC <= 0 {
		return append(buf, MissingField...), nil
	}
	if s.NGL < 3 {
		return buf, fmt.Errorf("%w: %v likelihoods for a sample with %v counts", ErrShortfall, s.NGL, s.TC)
	}
	gl := s.GL[:s.NGL]
	buf = append(buf, genotype.Call(gl).GT()...)
	buf = strconv.AppendInt(append(buf, ':'), int64(s.AD), 10)
	buf = strconv.AppendInt(append(buf, ':'), int64(s.DP), 10)
	buf = strconv.AppendInt(append(buf, ':'), int64(s.OTH), 10)
	buf = append(buf, ':')
	for i, l := range gl {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, genotype.Phred(l), 'f', 0, 64)
	}
	buf = append(buf, ':')
	for i, c := range s.BC {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(c), 10)
	}
	return buf, nil
}

// AppendSamples appends the sample fields of all sample groups of agg
// in index order, each preceded by a tabulator.
func AppendSamples(buf []byte, agg *pileup.Aggregator) (_ []byte, err error) {
	for i := 0; i < agg.NSamples(); i++ {
		buf = append(buf, '\t')
		if buf, err = AppendSample(buf, agg.Sample(i)); err != nil {
			return buf, fmt.Errorf("sample %v: %w", agg.SampleNames()[i], err)
		}
	}
	return buf, nil
}

func appendAllele(buf []byte, a genotype.Allele) []byte {
	return append(buf, a.Base())
}

/*
AppendSite appends the VCF data line of the finished site of agg,
including the final newline.

POS is 1-based. REF and ALT are the effective alleles, and INFO holds
the site totals.
*/
func AppendSite(buf []byte, agg *pileup.Aggregator) ([]byte, error) {
	site := agg.Site()
	if site == nil {
		return buf, fmt.Errorf("%w: no site", ErrShortfall)
	}
	buf = append(buf, site.ChromName()...)
	buf = strconv.AppendInt(append(buf, '\t'), int64(site.Pos)+1, 10)
	buf = append(buf, "\t.\t"...)
	buf = appendAllele(buf, agg.Ref())
	buf = append(buf, '\t')
	buf = appendAllele(buf, agg.Alt())
	buf = append(buf, "\t.\tPASS\tAD="...)
	buf = strconv.AppendInt(buf, int64(agg.AD), 10)
	buf = strconv.AppendInt(append(buf, ";DP="...), int64(agg.DP), 10)
	buf = strconv.AppendInt(append(buf, ";OTH="...), int64(agg.OTH), 10)
	buf = append(buf, '\t')
	buf = append(buf, FormatKeys...)
	buf, err := AppendSamples(buf, agg)
	if err != nil {
		return buf, fmt.Errorf("%v:%v: %w", site.ChromName(), site.Pos+1, err)
	}
	return append(buf, '\n'), nil
}

// WriteHeader writes a VCF header for the given contigs and sample
// groups.
func WriteHeader(w io.Writer, contigs, sampleNames []string) error {
	buf := internal.ReserveByteBuffer()
	defer func() { internal.ReleaseByteBuffer(buf) }()
	buf = append(buf, fileFormatLine...)
	buf = append(buf, "##source="...)
	buf = append(buf, utils.ProgramMessage...)
	buf = append(buf, '\n')
	for _, contig := range contigs {
		buf = append(buf, "##contig=<ID="...)
		buf = append(buf, contig...)
		buf = append(buf, ">\n"...)
	}
	for _, line := range headerInfoLines {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	buf = append(buf, columnsLine...)
	for _, name := range sampleNames {
		buf = append(buf, '\t')
		buf = append(buf, name...)
	}
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}
