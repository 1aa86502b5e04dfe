package ingest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format is the file class an upload was dispatched to.
type Format string

const (
	FormatSpreadsheet Format = "spreadsheet"
	FormatDelimited   Format = "delimited"
	// FormatOpaque files (pickled frames, parquet) are forwarded
	// unparsed; their headers are resolved by the analysis service.
	FormatOpaque Format = "opaque"
)

// HeaderCell is one raw cell of the header row. Only Valid cells become
// column headers; invalid ones are kept so callers can explain what was dropped.
type HeaderCell struct {
	Index int    `json:"index"`
	Raw   string `json:"raw"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
}

// Upload is an accepted file: its parsed header list plus the untouched bytes
// that are later sent to the analysis service.
type Upload struct {
	FileName string          `json:"fileName"`
	Format   Format          `json:"format"`
	Headers  []string        `json:"headers"`
	Cells    []HeaderCell    `json:"cells,omitempty"`
	Profile  []ColumnProfile `json:"profile,omitempty"`
	Data     []byte          `json:"-"`
}

// HeadersDeferred reports whether the header list is empty because the format
// defers header extraction, as opposed to the file having none.
func (u *Upload) HeadersDeferred() bool {
	return u != nil && u.Format == FormatOpaque
}

// Options tunes ingestion. Zero values fall back to defaults.
type Options struct {
	// ProfileRows caps the data rows sampled for column profiling; negative disables profiling.
	ProfileRows int
}

// DefaultOptions returns the options used by the server and CLI.
func DefaultOptions() Options {
	return Options{ProfileRows: 500}
}

// reader extracts the header row (and optionally sample rows) for one file class.
type reader interface {
	CanRead(ext string) bool
	Format() Format
	Read(name string, data []byte, opt Options) (*Upload, error)
}

var registry []reader

func register(r reader) { registry = append(registry, r) }

func init() {
	register(spreadsheetReader{})
	register(delimitedReader{})
	register(opaqueReader{})
}

// ClassifyFormat maps a file name to its format without reading anything.
func ClassifyFormat(name string) (Format, error) {
	r, err := lookup(name)
	if err != nil {
		return "", err
	}
	return r.Format(), nil
}

func lookup(name string) (reader, error) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, r := range registry {
		if r.CanRead(ext) {
			return r, nil
		}
	}
	return nil, newError(KindUnsupportedFormat, filepath.Base(name), nil)
}

// Ingest parses an uploaded file into its column headers. The format is
// decided from the extension before any byte is read.
func Ingest(name string, src io.Reader, opt Options) (*Upload, error) {
	r, err := lookup(name)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(name)
	if src == nil {
		return nil, newError(KindReadFailure, base, fmt.Errorf("no content"))
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, newError(KindReadFailure, base, err)
	}
	up, err := r.Read(base, buf.Bytes(), opt)
	if err != nil {
		return nil, err
	}
	up.FileName = base
	up.Format = r.Format()
	up.Data = buf.Bytes()
	if up.Headers == nil {
		up.Headers = []string{}
	}
	return up, nil
}

// headerCells coerces a raw row into tagged cells: trimmed, empties invalid.
func headerCells(row []string) ([]HeaderCell, []string) {
	cells := make([]HeaderCell, 0, len(row))
	headers := make([]string, 0, len(row))
	for i, raw := range row {
		name := strings.TrimSpace(raw)
		c := HeaderCell{Index: i, Raw: raw}
		if name != "" {
			c.Name = name
			c.Valid = true
			headers = append(headers, name)
		}
		cells = append(cells, c)
	}
	return cells, headers
}

type opaqueReader struct{}

func (opaqueReader) CanRead(ext string) bool {
	switch ext {
	case ".pkl", ".pickle", ".parquet":
		return true
	}
	return false
}

func (opaqueReader) Format() Format { return FormatOpaque }

func (opaqueReader) Read(name string, data []byte, _ Options) (*Upload, error) {
	if len(data) == 0 {
		return nil, newError(KindEmptyFile, name, nil)
	}
	return &Upload{Headers: []string{}}, nil
}
