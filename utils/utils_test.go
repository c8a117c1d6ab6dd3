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

package utils

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/pgzip"
)

func TestIntern(t *testing.T) {
	s1 := Intern("chr1")
	s2 := Intern(string([]byte("chr1")))
	if s1 != s2 || SymbolString(s1) != "chr1" {
		t.Error("Intern failed")
	}
	if Intern("chr2") == s1 {
		t.Error("Intern distinct failed")
	}
	if SymbolString(nil) != "" {
		t.Error("SymbolString nil failed")
	}
}

func TestHandleGzip(t *testing.T) {
	var compressed bytes.Buffer
	z := pgzip.NewWriter(&compressed)
	if _, err := z.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	if err := z.Close(); err != nil {
		t.Fatal(err)
	}
	for _, input := range [][]byte{compressed.Bytes(), []byte("hello\n")} {
		r, c, err := HandleGzip(bufio.NewReader(bytes.NewReader(input)))
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(r)
		if err != nil || string(data) != "hello\n" {
			t.Error("HandleGzip failed")
		}
		if c != nil {
			if err := c.Close(); err != nil {
				t.Error("HandleGzip close failed")
			}
		}
	}
	if ok, err := IsGzip(bufio.NewReader(bytes.NewReader(nil))); ok || err != nil {
		t.Error("IsGzip empty failed")
	}
}
