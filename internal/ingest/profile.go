package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ColumnKind is the inferred content type of a column.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindDatetime    ColumnKind = "datetime"
	KindCategorical ColumnKind = "categorical"
	KindText        ColumnKind = "text"
	KindEmpty       ColumnKind = "empty"
)

// ColumnProfile summarizes the sampled values under one valid header.
type ColumnProfile struct {
	Name     string     `json:"name"`
	Kind     ColumnKind `json:"kind"`
	NonEmpty int        `json:"nonEmpty"`
	Missing  int        `json:"missing"`
	Unique   int        `json:"unique,omitempty"`
	Examples []string   `json:"examples,omitempty"`
}

type rowSource interface {
	Next() ([]string, bool)
}

type colAcc struct {
	idx     int
	name    string
	nonNil  int
	miss    int
	numCnt  int
	dtCnt   int
	txtCnt  int
	cats    map[string]int
	exText  []string
	catsCap bool
}

// profileRows samples up to limit data rows (0 means the default of 500) and
// infers a kind per valid header cell.
func profileRows(cells []HeaderCell, rows rowSource, limit int) []ColumnProfile {
	if limit == 0 {
		limit = DefaultOptions().ProfileRows
	}
	var accs []*colAcc
	for _, c := range cells {
		if c.Valid {
			accs = append(accs, &colAcc{idx: c.Index, name: c.Name, cats: map[string]int{}})
		}
	}
	for n := 0; n < limit; n++ {
		row, ok := rows.Next()
		if !ok {
			break
		}
		for _, a := range accs {
			v := ""
			if a.idx < len(row) {
				v = strings.TrimSpace(row[a.idx])
			}
			a.add(v)
		}
	}
	out := make([]ColumnProfile, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.summary())
	}
	return out
}

func (a *colAcc) add(v string) {
	if v == "" {
		a.miss++
		return
	}
	a.nonNil++
	if _, ok := parseNumeric(v); ok {
		a.numCnt++
		return
	}
	if _, ok := parseTimeMaybe(v); ok {
		a.dtCnt++
		return
	}
	a.txtCnt++
	if len(v) <= 64 && len(a.cats) < 10000 {
		a.cats[v]++
	} else {
		a.catsCap = true
	}
	if len(a.exText) < 3 {
		a.exText = append(a.exText, v)
	}
}

func (a *colAcc) summary() ColumnProfile {
	p := ColumnProfile{Name: a.name, NonEmpty: a.nonNil, Missing: a.miss, Kind: KindEmpty}
	switch {
	case a.nonNil == 0:
	case a.numCnt >= a.dtCnt && a.numCnt >= a.txtCnt:
		p.Kind = KindNumeric
	case a.dtCnt >= a.txtCnt:
		p.Kind = KindDatetime
	case !a.catsCap && len(a.cats) > 0 && len(a.cats)*2 <= a.txtCnt:
		p.Kind = KindCategorical
		p.Unique = len(a.cats)
	default:
		p.Kind = KindText
		p.Examples = a.exText
	}
	return p
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric accepts plain, percent, and locale-formatted numbers
// ("1.000,5", "1,000.5", "12%").
func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	raw = strings.ReplaceAll(raw, "\u00A0", "")
	if raw == "" {
		return 0, false
	}
	dec := '.'
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	if cpos > dpos {
		dec = ','
	}
	for _, sep := range []rune{',', '.', ' '} {
		if sep != dec {
			raw = strings.ReplaceAll(raw, string(sep), "")
		}
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
