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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/exascience/pargo/pipeline"
	log "github.com/sirupsen/logrus"

	"github.com/exascience/elsnp/internal"
	"github.com/exascience/elsnp/utils"
)

const (
	contigLinePrefix   = "##contig=<"
	columnsLinePrefix  = "#CHROM"
	missingValue       = "."
	altAlleleSeparator = ","
)

var errMissingColumnsLine = errors.New("missing #CHROM line in VCF header")

func getLine(reader *bufio.Reader) (line string, err error) {
	line, err = reader.ReadString('\n')
	switch {
	case err == nil:
		line = line[:len(line)-1]
	case err == io.EOF && line != "":
		err = nil
	}
	return strings.TrimSuffix(line, "\r"), err
}

// parseContigs reads the VCF header up to and including the #CHROM
// line, and returns the IDs of the declared contigs, or nil if there
// are none.
func parseContigs(reader *bufio.Reader) (contigs map[string]bool, err error) {
	var sc lineScanner
	for {
		line, err := getLine(reader)
		if err == io.EOF {
			return nil, errMissingColumnsLine
		} else if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, columnsLinePrefix) {
			return contigs, nil
		}
		if !strings.HasPrefix(line, "#") {
			return nil, errMissingColumnsLine
		}
		if !strings.HasPrefix(line, contigLinePrefix) {
			continue
		}
		sc.Reset(line[len(contigLinePrefix):])
		for sc.Len() > 0 {
			field, _ := sc.readUntilByte(',')
			if id, found := strings.CutPrefix(strings.TrimSuffix(field, ">"), "ID="); found {
				if contigs == nil {
					contigs = make(map[string]bool)
				}
				contigs[id] = true
				break
			}
		}
	}
}

// parseRecord parses the first five columns of a VCF data line.
// Chromosomes not declared in a non-empty contigs set are unresolved.
func (sc *lineScanner) parseRecord(contigs map[string]bool) (rec Record) {
	chrom := sc.column()
	pos := sc.int32Column()
	_ = sc.column()
	ref := sc.column()
	alt := sc.column()
	if sc.err != nil {
		return
	}
	if pos < 1 {
		sc.err = fmt.Errorf("invalid position %v in VCF data line", pos)
		return
	}
	if chrom != missingValue && (contigs == nil || contigs[chrom]) {
		rec.Chrom = chrom
	}
	rec.Pos = pos - 1
	if ref != missingValue {
		rec.Ref = ref
	}
	rec.NAllele = 1
	if alt != missingValue {
		first, _, _ := strings.Cut(alt, altAlleleSeparator)
		rec.Alt = first
		rec.NAllele += 1 + strings.Count(alt, altAlleleSeparator)
	}
	return
}

/*
LoadVCF reads the candidate sites from a VCF file, which may be gzip
or bgzf compressed.

Only the first five columns of each data line are interpreted.
Records that cannot be represented as a Site are skipped; with
printSkip, each skipped record is logged with its 1-based record
number. Malformed lines are errors.
*/
func LoadVCF(filename string, printSkip bool) (list *List, err error) {
	filename, err = internal.FullPathname(filename)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(file, &err)
	reader, z, err := utils.HandleGzip(bufio.NewReader(file))
	if err != nil {
		return nil, err
	}
	if z != nil {
		defer internal.Close(z, &err)
	}
	contigs, err := parseContigs(reader)
	if err != nil {
		return nil, fmt.Errorf("%v, while reading %v", err, filename)
	}

	list = NewList()
	n := 0
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(reader))
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		strs := data.([]string)
		records := make([]Record, 0, len(strs))
		var sc lineScanner
		for _, str := range strs {
			if str == "" || str[0] == '#' {
				continue
			}
			sc.Reset(strings.TrimSuffix(str, "\r"))
			rec := sc.parseRecord(contigs)
			if err := sc.Err(); err != nil {
				p.SetErr(fmt.Errorf("%v, while parsing VCF record %v", err, str))
				return records
			}
			records = append(records, rec)
		}
		return records
	})))
	p.Add(pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
		for _, rec := range data.([]Record) {
			n++
			if err := list.Add(rec); err != nil && printSkip {
				log.Warnf("skip No.%v SNP: %v", n, err)
			}
		}
		return data
	})))
	p.Run()
	if err = p.Err(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"file":    filename,
		"records": n,
		"sites":   list.Len(),
		"skipped": list.NSkipped(),
	}).Info("loaded candidate sites")
	return list, nil
}
