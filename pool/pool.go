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

// Package pool provides index-addressed arenas that are reused across
// candidate sites.
//
// Scanning millions of sites would otherwise allocate and free the
// same per-site observation lists and UMI strings over and over. A
// Pool hands out elements by Handle, and Reset makes every element
// available again without giving back the backing storage.
//
// A Pool is not safe for concurrent use. Each pileup worker owns its
// own pools.
package pool

import "errors"

// ErrExhausted is returned by Acquire when a pool with a limit has no
// more room. Elements acquired before remain valid.
var ErrExhausted = errors.New("pool exhausted")

// A Handle identifies an element of a Pool. Handles are only
// meaningful for the pool that returned them, and only until the
// next Reset of that pool.
type Handle int32

// NoHandle is never returned by a successful Acquire.
const NoHandle Handle = -1

const (
	chunkBits = 8
	chunkSize = 1 << chunkBits
	chunkMask = chunkSize - 1
)

// A Pool is an arena of elements of type T.
//
// Elements are stored in fixed-size chunks, so pointers returned by
// At stay valid when the pool grows.
type Pool[T any] struct {
	chunks [][]T
	n      int
	limit  int
	clear  func(*T)
}

// New creates a pool. If limit is greater than zero, the pool never
// holds more than limit elements. The clear function, if not nil, is
// called exactly once for each element acquired since the previous
// Reset, when the pool is reset or destroyed. It is where elements
// give up dynamic sub-resources, typically by truncating a slice.
func New[T any](limit int, clear func(*T)) *Pool[T] {
	return &Pool[T]{limit: limit, clear: clear}
}

// Acquire returns the handle of an element that is not in use. It
// reuses a previously released element if there is one, and grows the
// pool otherwise. The element is not zeroed: its contents are whatever
// the clear function left behind, or the zero value for new elements.
func (p *Pool[T]) Acquire() (Handle, error) {
	if p.limit > 0 && p.n >= p.limit {
		return NoHandle, ErrExhausted
	}
	if p.n == len(p.chunks)*chunkSize {
		p.chunks = append(p.chunks, make([]T, chunkSize))
	}
	h := Handle(p.n)
	p.n++
	return h, nil
}

// At returns a pointer to the element with the given handle.
func (p *Pool[T]) At(h Handle) *T {
	return &p.chunks[h>>chunkBits][h&chunkMask]
}

// Len returns the number of elements in use.
func (p *Pool[T]) Len() int {
	return p.n
}

// Cap returns the number of elements the pool can hand out before it
// needs to grow.
func (p *Pool[T]) Cap() int {
	return len(p.chunks) * chunkSize
}

// Reset marks all elements as available again. Backing storage is
// kept.
func (p *Pool[T]) Reset() {
	if p.clear != nil {
		for i := 0; i < p.n; i++ {
			p.clear(p.At(Handle(i)))
		}
	}
	p.n = 0
}

// Destroy releases all elements and their backing storage. The pool
// can still be used afterwards, but starts from scratch.
func (p *Pool[T]) Destroy() {
	p.Reset()
	p.chunks = nil
}
