package results

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDownloadUnsupported is returned for families without a download layout.
var ErrDownloadUnsupported = errors.New("download not supported for this result family")

// ErrNoArtifact is returned for unknown artifact names and empty artifacts.
var ErrNoArtifact = errors.New("artifact not available")

// Field is one named value of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is an ordered row; its key order defines the default column order.
type Record []Field

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

const (
	delimiter = ","
	newline   = "\r\n"
)

// ToDelimitedText renders rows as CSV with a header line. Columns default to
// the key order of the first row. Fields containing a comma, quote, CR or LF
// are quoted with inner quotes doubled; everything else is written verbatim,
// except an empty field that is alone on its line, which is written as ""
// so the line is not read back as blank. With no rows and no columns the
// result is empty; with columns it is the header line alone.
func ToDelimitedText(rows []Record, columns ...string) string {
	if len(rows) == 0 && len(columns) == 0 {
		return ""
	}
	if len(columns) == 0 {
		for _, f := range rows[0] {
			columns = append(columns, f.Key)
		}
	}
	single := len(columns) == 1
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteString(delimiter)
		}
		b.WriteString(escapeCell(c, single))
	}
	for _, row := range rows {
		b.WriteString(newline)
		for i, c := range columns {
			if i > 0 {
				b.WriteString(delimiter)
			}
			v, _ := row.Get(c)
			b.WriteString(escapeCell(formatValue(v), single))
		}
	}
	return b.String()
}

func escapeCell(s string, single bool) string {
	if single && s == "" {
		return `""`
	}
	return escapeField(s)
}

func escapeField(s string) string {
	if !strings.ContainsAny(s, delimiter+"\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Download artifact names.
const (
	TopicsFile        = "topics.csv"
	ClusterPointsFile = "cluster_points.csv"
)

// TopicsCSV renders topics with columns id,name,count,percentage.
func TopicsCSV(topics []Topic) string {
	rows := make([]Record, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, Record{{"id", t.ID}, {"name", t.Name}, {"count", t.Count}, {"percentage", t.Percentage}})
	}
	return ToDelimitedText(rows, "id", "name", "count", "percentage")
}

// ClusterPointsCSV renders points with columns x,y,topic,text.
func ClusterPointsCSV(points []ClusterPoint) string {
	rows := make([]Record, 0, len(points))
	for _, p := range points {
		rows = append(rows, Record{{"x", p.X}, {"y", p.Y}, {"topic", p.TopicID}, {"text", p.Text}})
	}
	return ToDelimitedText(rows, "x", "y", "topic", "text")
}

// Artifact renders one named download for a result. Only clustering results
// have a download layout.
func Artifact(r *NormalizedResult, name string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: no results to download", ErrNoArtifact)
	}
	if r.Family != "" && r.Family != "clustering" {
		return "", ErrDownloadUnsupported
	}
	switch name {
	case TopicsFile:
		if len(r.Topics) == 0 {
			return "", fmt.Errorf("%w: no topic data to download", ErrNoArtifact)
		}
		return TopicsCSV(r.Topics), nil
	case ClusterPointsFile:
		if len(r.ClusterPoints) == 0 {
			return "", fmt.Errorf("%w: no cluster point data to download", ErrNoArtifact)
		}
		return ClusterPointsCSV(r.ClusterPoints), nil
	default:
		return "", fmt.Errorf("%w: unknown artifact %q", ErrNoArtifact, name)
	}
}
