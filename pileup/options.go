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
	"errors"
	"fmt"
)

// Options configure an Aggregator.
type Options struct {
	// UMI enables UMI-aware counting: reads that share a UMI tag at a
	// site are collapsed into one consensus observation.
	UMI bool

	// CapBQ and MinBQ clamp base qualities before they enter the
	// error model.
	CapBQ, MinBQ float64

	// Doublet adds the likelihoods of the two doublet classes.
	Doublet bool

	// MinCount and MinMAF are the site filters of Pass: the minimum
	// total count, and the minimum fraction of alternative counts.
	MinCount int
	MinMAF   float64

	// PoolLimit bounds the number of elements each per-site pool may
	// hold; 0 means no bound.
	PoolLimit int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		CapBQ:    40,
		MinBQ:    1,
		MinCount: 20,
	}
}

// ErrInvalidOptions is returned by Validate.
var ErrInvalidOptions = errors.New("invalid pileup options")

// Validate checks the options for consistency.
func (o Options) Validate() error {
	switch {
	case o.MinBQ < 0:
		return fmt.Errorf("%w: negative minimum base quality %v", ErrInvalidOptions, o.MinBQ)
	case o.CapBQ < o.MinBQ:
		return fmt.Errorf("%w: base quality cap %v below minimum %v", ErrInvalidOptions, o.CapBQ, o.MinBQ)
	case o.MinCount < 0:
		return fmt.Errorf("%w: negative minimum count %v", ErrInvalidOptions, o.MinCount)
	case o.MinMAF < 0 || o.MinMAF > 1:
		return fmt.Errorf("%w: minimum allele frequency %v not in [0, 1]", ErrInvalidOptions, o.MinMAF)
	case o.PoolLimit < 0:
		return fmt.Errorf("%w: negative pool limit %v", ErrInvalidOptions, o.PoolLimit)
	}
	return nil
}
