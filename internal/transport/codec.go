// Package transport is the typed codec for the key/value payload that
// carries wizard state between independently rendered stage views.
package transport

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/wizard"
)

// Payload keys.
const (
	KeyHeaders         = "headers"
	KeySelectedColumns = "selectedColumns"
	KeyAllHeaders      = "allHeaders"
	KeyConfig          = "config"
)

// Payload maps keys to JSON-encoded values, as they would travel in a query
// string or form.
type Payload map[string]string

// Diagnostic records a value that was dropped during decoding.
type Diagnostic struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (d Diagnostic) String() string { return fmt.Sprintf("%s: %s", d.Key, d.Reason) }

// configWire is the `config` value: the configuration plus a snapshot of
// the selection it was made for.
type configWire struct {
	MLType           wizard.Family `json:"mlType"`
	Algorithm        string        `json:"algorithm"`
	SelectedColumns  []string      `json:"selectedColumns"`
	NumClusters      *int          `json:"numClusters,omitempty"`
	PolynomialDegree *int          `json:"polynomialDegree,omitempty"`
}

// Encode builds the payload a view at stage `to` needs.
func Encode(s wizard.StageState, to wizard.Stage) Payload {
	p := Payload{}
	switch to {
	case wizard.StageSelectColumns:
		p[KeyHeaders] = mustStrings(s.Headers)
		if len(s.SelectedColumns) > 0 {
			p[KeySelectedColumns] = mustStrings(s.SelectedColumns)
		}
	case wizard.StageConfigure:
		p[KeySelectedColumns] = mustStrings(s.SelectedColumns)
		p[KeyAllHeaders] = mustStrings(s.Headers)
		if s.Config != nil {
			p[KeyConfig] = encodeConfig(s)
		}
	case wizard.StageViewResults:
		p[KeyAllHeaders] = mustStrings(s.Headers)
		if s.Config != nil {
			p[KeyConfig] = encodeConfig(s)
		}
	}
	return p
}

func encodeConfig(s wizard.StageState) string {
	params := wizard.RequestParams(s)
	w := configWire{
		MLType:           s.Config.Kind,
		Algorithm:        s.Config.Algorithm,
		SelectedColumns:  params.SelectedColumns,
		NumClusters:      params.NumClusters,
		PolynomialDegree: params.PolynomialDegree,
	}
	b, _ := json.Marshal(w)
	return string(b)
}

func mustStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// Decode rebuilds the state a view at stage `at` starts from. Missing,
// malformed or mistyped values are treated as absent and reported as
// diagnostics; Decode never fails.
func Decode(p Payload, at wizard.Stage) (wizard.StageState, []Diagnostic) {
	s := wizard.NewState()
	s.Stage = at
	var diags []Diagnostic
	strs := func(key string) ([]string, bool) {
		raw, ok := p[key]
		if !ok {
			return nil, false
		}
		v, err := decodeStrings(raw)
		if err != nil {
			diags = append(diags, Diagnostic{Key: key, Reason: err.Error()})
			return nil, false
		}
		return v, true
	}

	switch at {
	case wizard.StageSelectColumns:
		if v, ok := strs(KeyHeaders); ok {
			s.Headers = v
		} else if _, present := p[KeyHeaders]; !present {
			diags = append(diags, Diagnostic{Key: KeyHeaders, Reason: "missing"})
		}
		if v, ok := strs(KeySelectedColumns); ok {
			s.SelectedColumns = v
		}
	case wizard.StageConfigure:
		if v, ok := strs(KeySelectedColumns); ok {
			s.SelectedColumns = v
		}
		if v, ok := strs(KeyAllHeaders); ok {
			s.Headers = v
		}
		if cfg, cols, ok := decodeConfig(p, &diags); ok {
			s.Config = &cfg
			if len(s.SelectedColumns) == 0 {
				s.SelectedColumns = cols
			}
		}
		if s.Config == nil {
			c := wizard.DefaultConfig()
			s.Config = &c
		}
	case wizard.StageViewResults:
		if v, ok := strs(KeyAllHeaders); ok {
			s.Headers = v
		}
		if cfg, cols, ok := decodeConfig(p, &diags); ok {
			s.Config = &cfg
			s.SelectedColumns = cols
		} else if _, present := p[KeyConfig]; !present {
			diags = append(diags, Diagnostic{Key: KeyConfig, Reason: "missing"})
		}
	}
	return s, diags
}

// DecodeLogged is Decode with each diagnostic logged at warn level.
func DecodeLogged(p Payload, at wizard.Stage, logger *zap.Logger) (wizard.StageState, []Diagnostic) {
	s, diags := Decode(p, at)
	if logger != nil {
		for _, d := range diags {
			logger.Warn("stage transport value ignored",
				zap.String("stage", at.String()),
				zap.String("key", d.Key),
				zap.String("reason", d.Reason))
		}
	}
	return s, diags
}

// decodeStrings accepts only a JSON array whose elements are all strings.
func decodeStrings(raw string) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("not a JSON array")
	}
	if items == nil {
		return nil, fmt.Errorf("not a JSON array")
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		var v string
		if err := json.Unmarshal(it, &v); err != nil || string(it) == "null" {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeConfig(p Payload, diags *[]Diagnostic) (wizard.MLConfiguration, []string, bool) {
	raw, ok := p[KeyConfig]
	if !ok {
		return wizard.MLConfiguration{}, nil, false
	}
	fail := func(reason string) (wizard.MLConfiguration, []string, bool) {
		*diags = append(*diags, Diagnostic{Key: KeyConfig, Reason: reason})
		return wizard.MLConfiguration{}, nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return fail("not a JSON object")
	}
	var w configWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return fail("field has the wrong type")
	}
	cols := []string{}
	if v, ok := fields[KeySelectedColumns]; ok {
		c, err := decodeStrings(string(v))
		if err != nil {
			return fail("selectedColumns: " + err.Error())
		}
		cols = c
	}
	cfg := wizard.MLConfiguration{
		Kind:             w.MLType,
		Algorithm:        w.Algorithm,
		NumClusters:      w.NumClusters,
		PolynomialDegree: w.PolynomialDegree,
	}
	if field, reason := cfg.Check(); reason != "" {
		return fail(fmt.Sprintf("%s: %s", field, reason))
	}
	return cfg, cols, true
}
