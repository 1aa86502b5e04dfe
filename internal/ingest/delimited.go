package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

type delimitedReader struct{}

func (delimitedReader) CanRead(ext string) bool {
	switch ext {
	case ".csv", ".tsv", ".txt":
		return true
	}
	return false
}

func (delimitedReader) Format() Format { return FormatDelimited }

// Read takes the header row from the first line only; later lines are used
// for profiling and never affect the header list.
func (delimitedReader) Read(name string, data []byte, opt Options) (*Upload, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newError(KindEmptyFile, name, nil)
	}
	br := bufio.NewReader(bytes.NewReader(data))
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, newError(KindReadFailure, name, err)
	}
	line = strings.TrimRight(line, "\r\n")
	delim := sniffDelimiter(name, line)
	cells, headers := headerCells(splitHeaderLine(line, delim))
	if len(headers) == 0 {
		return nil, newError(KindNoHeaders, name, nil)
	}
	up := &Upload{Headers: headers, Cells: cells}
	if opt.ProfileRows >= 0 {
		r := csv.NewReader(br)
		r.Comma = delim
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		up.Profile = profileRows(cells, csvRows{r}, opt.ProfileRows)
	}
	return up, nil
}

// splitHeaderLine honours quoted fields; a line the csv reader rejects is
// split on the raw delimiter instead.
func splitHeaderLine(line string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rec, err := r.Read()
	if err != nil {
		return strings.Split(line, string(delim))
	}
	return rec
}

// sniffDelimiter picks tab for .tsv and comma for .csv. Plain .txt files use
// whichever of tab, semicolon or comma is most frequent in the header line.
func sniffDelimiter(name, line string) rune {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tsv"):
		return '\t'
	case strings.HasSuffix(lower, ".csv"):
		return ','
	}
	best, bestN := ',', 0
	for _, d := range []rune{'\t', ';', ','} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

type csvRows struct{ r *csv.Reader }

func (c csvRows) Next() ([]string, bool) {
	for {
		rec, err := c.r.Read()
		if err == nil {
			return rec, true
		}
		if errors.Is(err, io.EOF) {
			return nil, false
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		return nil, false
	}
}
