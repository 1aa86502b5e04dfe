package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

type spreadsheetReader struct{}

func (spreadsheetReader) CanRead(ext string) bool {
	return ext == ".xlsx" || ext == ".xlsm" || ext == ".xls"
}

func (spreadsheetReader) Format() Format { return FormatSpreadsheet }

// Read loads the first worksheet of an OOXML or legacy BIFF workbook and
// uses its first row as the header row. The container is picked by content,
// so a renamed workbook still opens.
func (spreadsheetReader) Read(name string, data []byte, opt Options) (*Upload, error) {
	if len(data) == 0 {
		return nil, newError(KindEmptyFile, name, nil)
	}
	var rows rowSource
	if bytes.HasPrefix(data, oleMagic) {
		r, err := readLegacyWorkbook(data)
		if err != nil {
			return nil, newError(KindReadFailure, name, err)
		}
		rows = r
	} else {
		wb, err := openWorkbook(data)
		if err != nil {
			return nil, newError(KindReadFailure, name, err)
		}
		rows = wb.firstSheetRows()
	}
	header, ok := rows.Next()
	if !ok {
		return nil, newError(KindEmptyFile, name, nil)
	}
	cells, headers := headerCells(header)
	if len(headers) == 0 {
		return nil, newError(KindNoHeaders, name, nil)
	}
	up := &Upload{Headers: headers, Cells: cells}
	if opt.ProfileRows >= 0 {
		up.Profile = profileRows(cells, rows, opt.ProfileRows)
	}
	return up, nil
}

type workbook struct {
	zr     *zip.Reader
	sheets []wbSheet
	rels   map[string]string
	shared []string
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

func openWorkbook(data []byte) (*workbook, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	wbXML := readZipFile(zr, "xl/workbook.xml")
	if wbXML == nil {
		return nil, errors.New("open xlsx: missing xl/workbook.xml")
	}
	return &workbook{
		zr:     zr,
		sheets: parseWorkbook(wbXML),
		rels:   parseRelationships(readZipFile(zr, "xl/_rels/workbook.xml.rels")),
		shared: parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml")),
	}, nil
}

// firstSheetRows returns a row reader over the first sheet in workbook order.
// A workbook without a resolvable sheet yields a reader with no rows.
func (wb *workbook) firstSheetRows() *sheetRowReader {
	target := ""
	if len(wb.sheets) > 0 {
		if rel, ok := wb.rels[wb.sheets[0].RID]; ok {
			target = normalizeRelPath(rel)
		}
	}
	if target == "" {
		target = "xl/worksheets/sheet1.xml"
	}
	return newSheetRowReader(readZipFile(wb.zr, target), wb.shared)
}

func parseWorkbook(data []byte) []wbSheet {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sheets []wbSheet
	for {
		tok, err := dec.Token()
		if err != nil {
			return sheets
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s wbSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "sheetId":
				s.SheetID = atoiSafe(a.Value)
			case "id":
				s.RID = a.Value
			}
		}
		sheets = append(sheets, s)
	}
}

// parseRelationships returns map[r:id]Target.
func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil
		}
		return b
	}
	return nil
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

// sheetRowReader streams <row> elements out of a worksheet part.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

// Next returns the next row padded to its rightmost referenced column.
func (r *sheetRowReader) Next() ([]string, bool) {
	var row []string
	inRow := false
	next := 0
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				inRow = true
				row = nil
				next = 0
				continue
			}
			if !inRow || se.Name.Local != "c" {
				continue
			}
			var ref, typ string
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "r":
					ref = a.Value
				case "t":
					typ = a.Value
				}
			}
			idx := next
			if ref != "" {
				idx = colIndexFromRef(ref)
			}
			if idx < 0 {
				idx = next
			}
			next = idx + 1
			val := r.readCellValue(typ)
			if len(row) <= idx {
				grown := make([]string, idx+1)
				copy(grown, row)
				row = grown
			}
			row[idx] = val
		case xml.EndElement:
			if se.Name.Local == "row" && inRow {
				if row == nil {
					row = []string{}
				}
				return row, true
			}
		}
	}
}

// readCellValue consumes tokens up to </c> and returns the cell text.
func (r *sheetRowReader) readCellValue(typ string) string {
	var val strings.Builder
	capture := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val.String()
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				capture = true
			}
		case xml.CharData:
			if capture {
				val.Write(se)
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "v", "t":
				capture = false
			case "c":
				return coerceCell(typ, val.String(), r.shared)
			}
		}
	}
}

func coerceCell(typ, raw string, shared []string) string {
	if raw == "" {
		return ""
	}
	switch typ {
	case "s":
		idx := atoiSafe(raw)
		if idx >= 0 && idx < len(shared) {
			return shared[idx]
		}
		return ""
	case "b":
		switch strings.TrimSpace(raw) {
		case "1":
			return "true"
		case "0":
			return "false"
		}
		return raw
	default:
		return raw
	}
}

// colIndexFromRef maps a cell reference like "C12" to its 0-based column.
func colIndexFromRef(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship targets to ZIP entry names.
// Targets may be absolute ("/xl/worksheets/sheet1.xml") or relative to xl/.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
