package ingest

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

// oleMagic opens every compound document, including BIFF .xls workbooks.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// readLegacyWorkbook returns a row reader over the first sheet of a BIFF
// workbook. The decoder panics on some malformed files; that is reported
// as an error.
func readLegacyWorkbook(data []byte) (rows rowSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("open xls: %v", r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return &xlsRows{}, nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil || (sheet.MaxRow == 0 && sheet.Row(0) == nil) {
		return &xlsRows{}, nil
	}
	return &xlsRows{sheet: sheet, last: int(sheet.MaxRow)}, nil
}

type xlsRows struct {
	sheet *xls.WorkSheet
	next  int
	last  int
}

func (r *xlsRows) Next() ([]string, bool) {
	if r.sheet == nil || r.next > r.last {
		return nil, false
	}
	i := r.next
	r.next++
	row := r.sheet.Row(i)
	if row == nil {
		return []string{}, true
	}
	out := make([]string, row.LastCol())
	for c := row.FirstCol(); c < row.LastCol(); c++ {
		out[c] = row.Col(c)
	}
	return out, true
}
