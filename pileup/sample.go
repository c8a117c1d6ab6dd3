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

package pileup

import (
	"fmt"

	"github.com/exascience/elsnp/genotype"
	"github.com/exascience/elsnp/pool"
)

// A Read is what a single aligned read contributes to the site under
// consideration.
type Read struct {
	// Base is the base letter at the aligned query position.
	Base byte
	// Qual is its phred-scaled base quality.
	Qual uint8
	// RefSkip is set when the site falls into a reference skip of the
	// read, and Del when it falls into a deletion. By convention, a
	// reference skip sets both.
	RefSkip, Del bool
	// UMI is the UMI tag of the read, or nil. It may point into memory
	// owned by the read; it is copied when it needs to outlive the call.
	UMI []byte
}

// An Observation is one base call with its quality. Base is an index
// into genotype.Bases.
type Observation struct {
	Base, Qual uint8
}

// a umiGroup lists the observations of all reads that share one UMI,
// in the order in which the reads were recorded
type umiGroup []*Observation

func clearUMIGroup(g *umiGroup) {
	*g = (*g)[:0]
}

// the pools shared by all samples of an aggregator
type pools struct {
	units  *pool.Pool[Observation]
	groups *pool.Pool[umiGroup]
	umis   *pool.Strings
}

func newPools(limit int) *pools {
	return &pools{
		units:  pool.New[Observation](limit, nil),
		groups: pool.New(limit, clearUMIGroup),
		umis:   pool.NewStrings(limit),
	}
}

func (p *pools) reset() {
	p.units.Reset()
	p.groups.Reset()
	p.umis.Reset()
}

func (p *pools) destroy() {
	p.units.Destroy()
	p.groups.Destroy()
	p.umis.Destroy()
}

/*
A Sample accumulates the pileup of one sample group at one site.

Record is called once per read. Once all reads are recorded, the owning
Aggregator finalizes the sample, which folds the observations into the
quality matrix, computes the allele counts with respect to the site's
reference and alternative alleles, and computes the genotype
likelihoods.

Without UMI awareness, every read is one observation. With UMI
awareness, all reads that share a UMI are collapsed into a single
consensus observation, and BC and TC count molecules instead of reads.
*/
type Sample struct {
	// Counts per base, in the order of genotype.Bases, and their total.
	BC [genotype.NBases]int
	TC int

	// Counts of the alternative allele (AD), of reference and
	// alternative alleles (DP), and of other bases (OTH). Set when the
	// sample is finalized.
	AD, DP, OTH int

	// Reads is the number of recorded reads that cover the site with a
	// base, before UMI collapsing.
	Reads int

	// Qu lists the base qualities of all recorded reads per base, in
	// arrival order.
	Qu [genotype.NBases][]uint8

	QMat genotype.QualMatrix

	// GL holds NGL genotype log-likelihoods, in the order of
	// genotype.Class. NGL is 0 if the sample has no counts.
	GL  [5]float64
	NGL int

	pools *pools
	// nil without UMI awareness
	umiIndex  map[string]pool.Handle
	umiOrder  []pool.Handle
	consensus []Observation
}

func newSample(p *pools, umi bool) *Sample {
	s := &Sample{pools: p}
	if umi {
		s.umiIndex = make(map[string]pool.Handle)
	}
	return s
}

// Record adds one read to the sample.
//
// Reads in a reference skip or deletion are ignored. Otherwise, the
// read counts towards BC, TC, Reads, and Qu. With UMI awareness, a read
// with a UMI tag is also added to the group of its UMI; reads without a
// UMI tag do not contribute a consensus observation.
func (s *Sample) Record(r Read) error {
	if r.RefSkip || r.Del {
		return nil
	}
	base := genotype.BaseIndex(r.Base)
	s.Reads++
	s.BC[base]++
	s.TC++
	s.Qu[base] = append(s.Qu[base], r.Qual)
	if s.umiIndex == nil || len(r.UMI) == 0 {
		return nil
	}
	group, found := s.umiIndex[string(r.UMI)]
	if !found {
		key, err := s.pools.umis.Intern(r.UMI)
		if err != nil {
			return fmt.Errorf("%w: UMI strings: %v", ErrAllocation, err)
		}
		if group, err = s.pools.groups.Acquire(); err != nil {
			return fmt.Errorf("%w: UMI groups: %v", ErrAllocation, err)
		}
		s.umiIndex[key] = group
		s.umiOrder = append(s.umiOrder, group)
	}
	unit, err := s.pools.units.Acquire()
	if err != nil {
		return fmt.Errorf("%w: observations: %v", ErrAllocation, err)
	}
	obs := s.pools.units.At(unit)
	obs.Base, obs.Qual = uint8(base), r.Qual
	g := s.pools.groups.At(group)
	*g = append(*g, obs)
	return nil
}

// UMIGroups returns the number of distinct UMIs recorded at this site.
func (s *Sample) UMIGroups() int {
	return len(s.umiOrder)
}

// UMIAware reports whether the sample collapses reads by UMI.
func (s *Sample) UMIAware() bool {
	return s.umiIndex != nil
}

// majority returns the most frequent base of a UMI group, and the
// highest quality among the observations of that base. Ties go to the
// lower base index.
func (g umiGroup) majority() Observation {
	var counts [genotype.NBases]int
	var quals [genotype.NBases]uint8
	for _, obs := range g {
		counts[obs.Base]++
		if obs.Qual > quals[obs.Base] {
			quals[obs.Base] = obs.Qual
		}
	}
	best := 0
	for i := 1; i < genotype.NBases; i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return Observation{Base: uint8(best), Qual: quals[best]}
}

// collapse replaces the read counts by consensus counts, one per UMI.
// It does nothing without UMI awareness.
func (s *Sample) collapse() {
	if s.umiIndex == nil {
		return
	}
	s.BC = [genotype.NBases]int{}
	s.TC = 0
	s.consensus = s.consensus[:0]
	for _, h := range s.umiOrder {
		obs := s.pools.groups.At(h).majority()
		s.consensus = append(s.consensus, obs)
		s.BC[obs.Base]++
		s.TC++
	}
}

func (s *Sample) foldOne(base int, rv *[genotype.NQual]float64, ref, alt int) {
	s.QMat.Fold(base, rv)
	switch base {
	case alt:
		s.AD++
		s.DP++
	case ref:
		s.DP++
	default:
		s.OTH++
	}
}

// fold folds every observation into the quality matrix, in a fixed
// order: UMI consensus observations in order of first appearance of
// their UMI, or raw qualities per base in arrival order.
func (s *Sample) fold(ref, alt int, qtab *qualTable) {
	if s.umiIndex != nil {
		for _, obs := range s.consensus {
			s.foldOne(int(obs.Base), &qtab[obs.Qual], ref, alt)
		}
		return
	}
	for base, quals := range s.Qu {
		for _, q := range quals {
			s.foldOne(base, &qtab[q], ref, alt)
		}
	}
}

// finalize folds the sample with the given effective alleles, and
// computes its genotype likelihoods.
func (s *Sample) finalize(ref, alt int, doublet bool, qtab *qualTable) (err error) {
	s.fold(ref, alt, qtab)
	if s.TC == 0 {
		return nil
	}
	s.GL, s.NGL, err = genotype.LogLikelihoods(&s.QMat, &s.BC, ref, alt, doublet)
	return err
}

// Reset discards everything recorded for the current site, but keeps
// allocated capacity. It does not reset the pools; that is the job of
// the owning Aggregator, after all of its samples are reset.
func (s *Sample) Reset() {
	s.BC = [genotype.NBases]int{}
	s.TC, s.AD, s.DP, s.OTH, s.Reads = 0, 0, 0, 0, 0
	for i := range s.Qu {
		s.Qu[i] = s.Qu[i][:0]
	}
	s.QMat = genotype.QualMatrix{}
	s.GL = [5]float64{}
	s.NGL = 0
	if s.umiIndex != nil {
		clear(s.umiIndex)
	}
	s.umiOrder = s.umiOrder[:0]
	s.consensus = s.consensus[:0]
}
