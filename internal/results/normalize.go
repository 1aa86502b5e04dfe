package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field aliases seen across analysis-service versions.
var (
	topicsKeys = []string{"topics"}
	pointsKeys = []string{"clusterPoints", "cluster_points", "scatter_plot_data", "scatterPlotData"}
	messageKey = "message"
)

// maxCount is the largest document count that survives a float64 exactly.
const maxCount = 1 << 53

// Normalize converts a raw analysis response into a NormalizedResult. It never
// fails: malformed entries are skipped and recorded in Warnings, and any
// top-level field it does not consume is kept under Details.
func Normalize(family string, raw Raw) NormalizedResult {
	out := NormalizedResult{
		Family:        family,
		Topics:        []Topic{},
		ClusterPoints: []ClusterPoint{},
	}
	consumed := map[string]bool{}
	if v, ok := raw[messageKey]; ok {
		consumed[messageKey] = true
		out.Message = asString(v)
	}
	if key, v, ok := pick(raw, topicsKeys); ok {
		consumed[key] = true
		seen := map[string]bool{}
		for i, item := range asArray(v, &out.Warnings, key) {
			t, err := decodeTopic(item)
			if err != nil {
				out.Warnings = append(out.Warnings, fmt.Sprintf("%s[%d]: %v", key, i, err))
				continue
			}
			// Topic ids are unique; the first occurrence wins.
			if seen[t.ID] {
				out.Warnings = append(out.Warnings, fmt.Sprintf("%s[%d]: duplicate id %q", key, i, t.ID))
				continue
			}
			seen[t.ID] = true
			out.Topics = append(out.Topics, t)
		}
		fillPercentages(out.Topics)
	}
	if key, v, ok := pick(raw, pointsKeys); ok {
		consumed[key] = true
		for i, item := range asArray(v, &out.Warnings, key) {
			p, err := decodePoint(item)
			if err != nil {
				out.Warnings = append(out.Warnings, fmt.Sprintf("%s[%d]: %v", key, i, err))
				continue
			}
			out.ClusterPoints = append(out.ClusterPoints, p)
		}
	}
	known := make(map[string]bool, len(out.Topics))
	for _, t := range out.Topics {
		known[t.ID] = true
	}
	for i := range out.ClusterPoints {
		out.ClusterPoints[i].Unassigned = !known[out.ClusterPoints[i].TopicID]
	}
	for k, v := range raw {
		if consumed[k] || isNull(v) {
			continue
		}
		if out.Details == nil {
			out.Details = map[string]json.RawMessage{}
		}
		out.Details[k] = v
	}
	return out
}

// NormalizeJSON decodes a response body and normalizes it. Only a body that
// is not a JSON object is an error.
func NormalizeJSON(family string, body []byte) (NormalizedResult, error) {
	raw := Raw{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return NormalizedResult{}, fmt.Errorf("decode result: %w", err)
		}
	}
	return Normalize(family, raw), nil
}

func pick(raw Raw, keys []string) (string, json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && !isNull(v) {
			return k, v, true
		}
	}
	return "", nil, false
}

func isNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func asArray(v json.RawMessage, warnings *[]string, key string) []map[string]json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("%s: expected an array", key))
		return nil
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for i, it := range items {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(it, &m); err != nil || m == nil {
			*warnings = append(*warnings, fmt.Sprintf("%s[%d]: expected an object", key, i))
			continue
		}
		out = append(out, m)
	}
	return out
}

func first(m map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func decodeTopic(m map[string]json.RawMessage) (Topic, error) {
	var t Topic
	id, ok := first(m, "id", "topic_id", "topicId")
	if !ok {
		return t, fmt.Errorf("missing id")
	}
	t.ID = asString(id)
	if t.ID == "" {
		return t, fmt.Errorf("empty id")
	}
	if v, ok := first(m, "name", "label"); ok {
		t.Name = asString(v)
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	if v, ok := first(m, "count", "document_count", "documentCount"); ok {
		n, ok := asFloat(v)
		if !ok || n < 0 || n > maxCount || n != math.Trunc(n) {
			return t, fmt.Errorf("invalid count %s", string(v))
		}
		t.Count = int(n)
	}
	if v, ok := first(m, "percentage"); ok {
		if f, isNum := asFloat(v); isNum {
			t.Percentage = formatPercent(f)
		} else {
			t.Percentage = asString(v)
		}
	}
	if v, ok := first(m, "summary"); ok {
		s := asString(v)
		t.Summary = &s
	}
	if v, ok := first(m, "color"); ok {
		s := asString(v)
		t.Color = &s
	}
	return t, nil
}

func decodePoint(m map[string]json.RawMessage) (ClusterPoint, error) {
	var p ClusterPoint
	xv, okx := first(m, "x")
	yv, oky := first(m, "y")
	if !okx || !oky {
		return p, fmt.Errorf("missing coordinates")
	}
	x, okx := asFloat(xv)
	y, oky := asFloat(yv)
	if !okx || !oky {
		return p, fmt.Errorf("non-numeric coordinates")
	}
	p.X, p.Y = x, y
	if v, ok := first(m, "topic", "topicId", "topic_id", "cluster"); ok {
		p.TopicID = asString(v)
	}
	if v, ok := first(m, "text", "text_snippet", "textSnippet"); ok {
		p.Text = asString(v)
	}
	return p, nil
}

// fillPercentages derives missing percentages from counts.
func fillPercentages(topics []Topic) {
	total := 0
	for _, t := range topics {
		total += t.Count
	}
	if total == 0 {
		return
	}
	for i := range topics {
		if topics[i].Percentage == "" {
			topics[i].Percentage = formatPercent(float64(topics[i].Count) * 100 / float64(total))
		}
	}
}

func formatPercent(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64) + "%"
}

// asString renders strings verbatim and other scalars in their JSON form.
func asString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}

func asFloat(v json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
