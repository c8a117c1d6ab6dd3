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

package snp

import (
	"errors"
	"strconv"
)

var errMissingColumn = errors.New("missing column in VCF data line")

// A lineScanner scans the tab-separated columns of a VCF line.
//
// The zero lineScanner is valid and empty.
type lineScanner struct {
	index int
	data  string
	err   error
}

// Reset resets the scanner, and initializes it with the given string.
func (sc *lineScanner) Reset(s string) {
	sc.index = 0
	sc.data = s
	sc.err = nil
}

// Len returns the number of characters that still need to be scanned.
func (sc *lineScanner) Len() int {
	return len(sc.data) - sc.index
}

// Err returns the first error the scanner encountered, if any.
func (sc *lineScanner) Err() error {
	return sc.err
}

func (sc *lineScanner) readUntilByte(c byte) (s string, found bool) {
	start := sc.index
	for end := sc.index; end < len(sc.data); end++ {
		if sc.data[end] == c {
			sc.index = end + 1
			return sc.data[start:end], true
		}
	}
	sc.index = len(sc.data)
	return sc.data[start:], false
}

// column returns the next column. The last column of a line need not
// be followed by a tabulator.
func (sc *lineScanner) column() string {
	if sc.err != nil {
		return ""
	}
	if sc.index >= len(sc.data) {
		sc.err = errMissingColumn
		return ""
	}
	value, _ := sc.readUntilByte('\t')
	return value
}

func (sc *lineScanner) int32Column() int32 {
	value := sc.column()
	if sc.err != nil {
		return -1
	}
	i, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		sc.err = err
		return -1
	}
	return int32(i)
}
