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

package pool

import "unsafe"

// Strings is a pool of byte buffers that hands out strings backed by
// pool-owned memory.
//
// It is used for UMI tags, which point into the memory of a read that
// may be recycled before the site is finished. Intern copies the tag
// into a pooled buffer, so no per-site string allocation remains once
// the pool is warm.
//
// A string returned by Intern must not be used after the next Reset:
// its bytes are overwritten when the buffer is reused. Maps keyed by
// such strings have to be cleared before the pool is reset.
type Strings struct {
	bufs *Pool[[]byte]
}

func clearBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
}

// NewStrings creates a string pool. A limit greater than zero bounds
// the number of strings held at once.
func NewStrings(limit int) *Strings {
	return &Strings{bufs: New(limit, clearBuffer)}
}

// Intern returns a pool-owned copy of b as a string.
func (s *Strings) Intern(b []byte) (string, error) {
	h, err := s.bufs.Acquire()
	if err != nil {
		return "", err
	}
	buf := s.bufs.At(h)
	*buf = append(*buf, b...)
	if len(*buf) == 0 {
		return "", nil
	}
	return unsafe.String(&(*buf)[0], len(*buf)), nil
}

// Len returns the number of strings handed out since the last Reset.
func (s *Strings) Len() int {
	return s.bufs.Len()
}

// Reset invalidates all strings handed out so far.
func (s *Strings) Reset() {
	s.bufs.Reset()
}

// Destroy releases all buffers.
func (s *Strings) Destroy() {
	s.bufs.Destroy()
}
