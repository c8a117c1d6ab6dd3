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

// Package snp holds the list of candidate sites to genotype.
//
// Sites are loaded once, in input order, and are immutable afterwards.
// Only single-base sites with at most one alternative allele can be
// represented. A site without a reference or alternative base has its
// alleles inferred from the pileup.
package snp

import (
	"errors"
	"fmt"
	"io"

	"github.com/exascience/elsnp/utils"
)

// A Site is a candidate site.
type Site struct {
	Chrom utils.Symbol
	// Pos is 0-based.
	Pos int32
	// Ref and Alt are base letters, or 0 if not given.
	Ref, Alt byte
}

// ChromName returns the chromosome name of the site.
func (s *Site) ChromName() string {
	return utils.SymbolString(s.Chrom)
}

// A Record is a variant as delivered by a variant-file reader.
type Record struct {
	// Chrom is empty if the reader could not resolve the chromosome
	// name.
	Chrom string
	// Pos is 0-based.
	Pos int32
	// Ref is the reference allele, and Alt the first alternative
	// allele, "" if there is none.
	Ref, Alt string
	// NAllele counts the reference and all alternative alleles.
	NAllele int
}

// SkipReason tells why a record was not added to a List.
type SkipReason int

// The reasons for skipping records.
const (
	UnresolvedChromosome SkipReason = iota
	RefTooLong
	AltTooLong
	TooManyAlleles
	nSkipReasons
)

func (r SkipReason) String() string {
	switch r {
	case UnresolvedChromosome:
		return "could not get chr name"
	case RefTooLong:
		return "ref_len > 1"
	case AltTooLong:
		return "alt_len > 1"
	case TooManyAlleles:
		return "n_allele > 2"
	default:
		return "unknown"
	}
}

var (
	// ErrUnresolvedChromosome is returned by Add for records whose
	// chromosome name could not be resolved.
	ErrUnresolvedChromosome = errors.New("unresolved chromosome")

	// ErrMalformedSite is returned by Add for records that are not
	// single-base sites with at most two alleles.
	ErrMalformedSite = errors.New("malformed site")
)

// A SkipError reports a record that was not added to a List. It
// matches ErrUnresolvedChromosome or ErrMalformedSite with errors.Is.
type SkipError struct {
	Reason SkipReason
}

func (e *SkipError) Error() string {
	return e.Reason.String()
}

func (e *SkipError) Is(target error) bool {
	if e.Reason == UnresolvedChromosome {
		return target == ErrUnresolvedChromosome
	}
	return target == ErrMalformedSite
}

// A List is an ordered collection of candidate sites.
type List struct {
	Sites   []*Site
	skipped [nSkipReasons]int
}

// NewList creates an empty list.
func NewList() *List {
	return &List{}
}

// Add appends a site for the given record, or returns a *SkipError if
// the record cannot be represented.
func (l *List) Add(rec Record) error {
	site, reason, ok := newSite(rec)
	if !ok {
		l.skipped[reason]++
		return &SkipError{Reason: reason}
	}
	l.Sites = append(l.Sites, site)
	return nil
}

func newSite(rec Record) (*Site, SkipReason, bool) {
	if rec.Chrom == "" {
		return nil, UnresolvedChromosome, false
	}
	site := &Site{Chrom: utils.Intern(rec.Chrom), Pos: rec.Pos}
	if rec.NAllele > 0 {
		switch len(rec.Ref) {
		case 0:
		case 1:
			site.Ref = rec.Ref[0]
		default:
			return nil, RefTooLong, false
		}
		if rec.NAllele == 2 {
			switch len(rec.Alt) {
			case 0:
			case 1:
				site.Alt = rec.Alt[0]
			default:
				return nil, AltTooLong, false
			}
		} else if rec.NAllele > 2 {
			return nil, TooManyAlleles, false
		}
	}
	return site, 0, true
}

// Len returns the number of sites in the list.
func (l *List) Len() int {
	return len(l.Sites)
}

// Skipped returns the number of records skipped for the given reason.
func (l *List) Skipped(reason SkipReason) int {
	return l.skipped[reason]
}

// NSkipped returns the number of skipped records.
func (l *List) NSkipped() (n int) {
	for _, c := range l.skipped {
		n += c
	}
	return n
}

// A Source delivers variant records. Next returns io.EOF after the
// last record.
type Source interface {
	Next() (Record, error)
}

// A WarnFunc is told about the n-th record (1-based) when it is
// skipped.
type WarnFunc func(n int, err error)

// Load adds all records from src to the list. Records that cannot be
// represented are skipped, and reported to warn if it is not nil. Load
// returns the number of sites added, and stops at the first error of
// the source.
func (l *List) Load(src Source, warn WarnFunc) (added int, err error) {
	for n := 1; ; n++ {
		rec, err := src.Next()
		if err == io.EOF {
			return added, nil
		} else if err != nil {
			return added, fmt.Errorf("variant record %v: %w", n, err)
		}
		if err := l.Add(rec); err != nil {
			if warn != nil {
				warn(n, err)
			}
			continue
		}
		added++
	}
}
