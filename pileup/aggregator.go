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

// Package pileup accumulates the reads of candidate sites per sample
// group, and turns them into allele counts and genotype likelihoods.
//
// An Aggregator is created once per worker, configured once with the
// sample groups, and then reused for every site:
//
//	agg.SetSite(site)
//	for each read covering the site {
//		agg.Record(sampleIndex, read)
//	}
//	agg.Finish()
//	... format agg ...
//
// An Aggregator is not safe for concurrent use. Parallel workers each
// need their own Aggregator.
package pileup

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/exascience/elsnp/genotype"
	"github.com/exascience/elsnp/snp"
)

var (
	// ErrAllocation is returned when a per-site pool cannot grow. The
	// worker that owns the aggregator cannot continue.
	ErrAllocation = errors.New("pileup allocation failed")

	// ErrDuplicateSampleGroup is returned by SetSampleGroups when a
	// name occurs more than once.
	ErrDuplicateSampleGroup = errors.New("duplicate sample group")

	// ErrInvalidSampleGroup is returned by SetSampleGroups for empty
	// names or an empty list of names.
	ErrInvalidSampleGroup = errors.New("invalid sample group")

	// ErrReconfigured is returned when SetSampleGroups is called more
	// than once on the same aggregator.
	ErrReconfigured = errors.New("sample groups already set")

	// ErrNotConfigured is returned by Record when SetSampleGroups has
	// not (successfully) been called.
	ErrNotConfigured = errors.New("sample groups not set")

	// ErrSampleIndex is returned by Record for unknown sample indexes.
	ErrSampleIndex = errors.New("sample index out of range")
)

type qualTable [256][genotype.NQual]float64

func newQualTable(capBQ, minBQ float64) *qualTable {
	var t qualTable
	for q := range t {
		t[q] = genotype.QualVector(float64(q), capBQ, minBQ)
	}
	return &t
}

/*
An Aggregator holds the pileups of all sample groups at one site,
together with the site-level totals and the pools the samples draw
from.

The mapping from sample-group names to indexes is fixed by
SetSampleGroups and never changes afterwards.
*/
type Aggregator struct {
	opts Options

	site                     *snp.Site
	givenRef, givenAlt       genotype.Allele
	inferredRef, inferredAlt genotype.Allele
	ref, alt                 genotype.Allele

	// Site totals, summed over all samples.
	BC              [genotype.NBases]int
	TC, AD, DP, OTH int

	// number of samples with a non-zero AD, DP, or OTH
	nrAD, nrDP, nrOTH int

	groupsSet bool
	names     []string
	index     map[string]int
	samples   []*Sample

	// samples that received reads since the last reset
	touched *bitset.BitSet

	pools *pools
	qtab  *qualTable
}

// NewAggregator creates an aggregator without sample groups.
func NewAggregator(opts Options) (*Aggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		opts:  opts,
		pools: newPools(opts.PoolLimit),
		qtab:  newQualTable(opts.CapBQ, opts.MinBQ),
	}, nil
}

// Options returns the options the aggregator was created with.
func (a *Aggregator) Options() Options {
	return a.opts
}

// SetSampleGroups establishes the sample groups, in output order. It
// must be called exactly once, before the first site. A failed call
// cannot be retried: the aggregator stays unusable.
func (a *Aggregator) SetSampleGroups(names []string) error {
	if a.groupsSet {
		return ErrReconfigured
	}
	a.groupsSet = true
	if len(names) == 0 {
		return fmt.Errorf("%w: no sample groups", ErrInvalidSampleGroup)
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty name at position %v", ErrInvalidSampleGroup, i)
		}
		if _, found := index[name]; found {
			return fmt.Errorf("%w: %v", ErrDuplicateSampleGroup, name)
		}
		index[name] = i
	}
	samples := make([]*Sample, len(names))
	for i := range samples {
		samples[i] = newSample(a.pools, a.opts.UMI)
	}
	a.names = append([]string(nil), names...)
	a.index = index
	a.samples = samples
	a.touched = bitset.New(uint(len(names)))
	return nil
}

// SampleIndex returns the index of the named sample group.
func (a *Aggregator) SampleIndex(name string) (int, bool) {
	i, ok := a.index[name]
	return i, ok
}

// SampleNames returns the sample-group names in index order. The
// result must not be modified.
func (a *Aggregator) SampleNames() []string {
	return a.names
}

// NSamples returns the number of sample groups.
func (a *Aggregator) NSamples() int {
	return len(a.samples)
}

// Sample returns the pileup of the sample group with the given index.
func (a *Aggregator) Sample(i int) *Sample {
	return a.samples[i]
}

// Reset discards the current site. Samples, their maps, and the pools
// keep their capacity. UMI maps are cleared before the pools are
// reset, since their keys live in pool memory.
func (a *Aggregator) Reset() {
	if a.touched != nil {
		for i, ok := a.touched.NextSet(0); ok; i, ok = a.touched.NextSet(i + 1) {
			a.samples[i].Reset()
		}
		a.touched.ClearAll()
	}
	a.pools.reset()
	a.site = nil
	a.givenRef, a.givenAlt = genotype.NoAllele, genotype.NoAllele
	a.inferredRef, a.inferredAlt = genotype.NoAllele, genotype.NoAllele
	a.ref, a.alt = genotype.NoAllele, genotype.NoAllele
	a.BC = [genotype.NBases]int{}
	a.TC, a.AD, a.DP, a.OTH = 0, 0, 0, 0
	a.nrAD, a.nrDP, a.nrOTH = 0, 0, 0
}

// SetSite resets the aggregator and starts the given site. The site's
// reference and alternative bases, if present, become the given
// alleles.
func (a *Aggregator) SetSite(site *snp.Site) {
	a.Reset()
	a.site = site
	a.givenRef = genotype.AlleleOf(site.Ref)
	a.givenAlt = genotype.AlleleOf(site.Alt)
}

// Site returns the current site, or nil.
func (a *Aggregator) Site() *snp.Site {
	return a.site
}

// Record adds a read to the sample group with the given index.
func (a *Aggregator) Record(sample int, r Read) error {
	if a.samples == nil {
		return ErrNotConfigured
	}
	if sample < 0 || sample >= len(a.samples) {
		return fmt.Errorf("%w: %v", ErrSampleIndex, sample)
	}
	a.touched.Set(uint(sample))
	return a.samples[sample].Record(r)
}

/*
Finish completes the current site once all reads are recorded.

It collapses UMI groups, sums the site totals over all samples, and
determines the effective alleles: the given ones if the site provides
both, and otherwise the two most frequent bases at the site. It then
folds every sample with the effective alleles and computes its
genotype likelihoods.

Finish fails with genotype.ErrAlleleCollision if the effective
reference and alternative alleles are the same base. Such a site
cannot be genotyped and should be skipped.
*/
func (a *Aggregator) Finish() error {
	if a.samples == nil {
		return ErrNotConfigured
	}
	for i, ok := a.touched.NextSet(0); ok; i, ok = a.touched.NextSet(i + 1) {
		s := a.samples[i]
		s.collapse()
		for b, c := range s.BC {
			a.BC[b] += c
		}
		a.TC += s.TC
	}
	if a.givenRef.Valid() && a.givenAlt.Valid() {
		a.ref, a.alt = a.givenRef, a.givenAlt
	} else {
		ref, alt := genotype.InferAlleles(a.BC)
		a.inferredRef, a.inferredAlt = genotype.AlleleAt(ref), genotype.AlleleAt(alt)
		a.ref, a.alt = a.inferredRef, a.inferredAlt
	}
	ref, _ := a.ref.Index()
	alt, _ := a.alt.Index()
	if ref == alt {
		return fmt.Errorf("%v at %v: %w", a.siteChrom(), a.sitePos(), genotype.ErrAlleleCollision)
	}
	for i, ok := a.touched.NextSet(0); ok; i, ok = a.touched.NextSet(i + 1) {
		s := a.samples[i]
		if err := s.finalize(ref, alt, a.opts.Doublet, a.qtab); err != nil {
			return fmt.Errorf("sample %v: %w", a.names[i], err)
		}
		a.AD += s.AD
		a.DP += s.DP
		a.OTH += s.OTH
		if s.AD > 0 {
			a.nrAD++
		}
		if s.DP > 0 {
			a.nrDP++
		}
		if s.OTH > 0 {
			a.nrOTH++
		}
	}
	return nil
}

func (a *Aggregator) siteChrom() string {
	if a.site == nil {
		return "?"
	}
	return a.site.ChromName()
}

func (a *Aggregator) sitePos() int32 {
	if a.site == nil {
		return -1
	}
	return a.site.Pos + 1
}

// Ref returns the effective reference allele of the finished site.
func (a *Aggregator) Ref() genotype.Allele { return a.ref }

// Alt returns the effective alternative allele of the finished site.
func (a *Aggregator) Alt() genotype.Allele { return a.alt }

// GivenRef returns the reference allele provided by the site.
func (a *Aggregator) GivenRef() genotype.Allele { return a.givenRef }

// GivenAlt returns the alternative allele provided by the site.
func (a *Aggregator) GivenAlt() genotype.Allele { return a.givenAlt }

// InferredRef returns the inferred reference allele, if the alleles
// had to be inferred.
func (a *Aggregator) InferredRef() genotype.Allele { return a.inferredRef }

// InferredAlt returns the inferred alternative allele, if the alleles
// had to be inferred.
func (a *Aggregator) InferredAlt() genotype.Allele { return a.inferredAlt }

// Records returns the number of samples with a non-zero AD, DP, and
// OTH count at the finished site, which is the number of sparse-matrix
// entries the site produces for each.
func (a *Aggregator) Records() (ad, dp, oth int) {
	return a.nrAD, a.nrDP, a.nrOTH
}

// Pass reports whether the finished site has enough counts to be
// reported: at least MinCount in total, and an alternative allele
// frequency of at least MinMAF.
func (a *Aggregator) Pass() bool {
	if a.TC == 0 || a.TC < a.opts.MinCount {
		return false
	}
	return float64(a.AD) >= float64(a.TC)*a.opts.MinMAF
}

// Destroy releases the samples and pools. The aggregator cannot be
// used afterwards.
func (a *Aggregator) Destroy() {
	a.pools.destroy()
	a.samples = nil
	a.index = nil
	a.touched = nil
}
