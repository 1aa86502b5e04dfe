package wizard

import (
	"encoding/json"

	"github.com/KaramelBytes/stagewise/internal/ingest"
	"github.com/KaramelBytes/stagewise/internal/results"
)

// StageState is the single source of truth threaded through the wizard.
// Each stage edits only its own fields and forwards the rest.
type StageState struct {
	Stage          Stage         `json:"stage"`
	SourceFileName string        `json:"sourceFileName,omitempty"`
	FileFormat     ingest.Format `json:"fileFormat,omitempty"`
	// Headers is empty both before upload and for formats whose headers
	// are resolved by the analysis service; see HeadersDeferred.
	Headers         []string                  `json:"headers"`
	SelectedColumns []string                  `json:"selectedColumns"`
	Config          *MLConfiguration          `json:"mlConfiguration,omitempty"`
	Results         *results.NormalizedResult `json:"results,omitempty"`
}

// NewState returns the empty state a wizard starts from.
func NewState() StageState {
	return StageState{Stage: StageUpload, Headers: []string{}, SelectedColumns: []string{}}
}

// HeadersDeferred reports an accepted file whose header list is unknown
// until the analysis service reads it.
func (s StageState) HeadersDeferred() bool {
	return len(s.Headers) == 0 && (s.FileFormat == ingest.FormatOpaque || (s.SourceFileName == "" && s.Stage > StageUpload))
}

// Clone returns a deep copy; no slice, config or result is shared with s.
func (s StageState) Clone() StageState {
	out := s
	out.Headers = cloneStrings(s.Headers)
	out.SelectedColumns = cloneStrings(s.SelectedColumns)
	if s.Config != nil {
		c := s.Config.Clone()
		out.Config = &c
	}
	if s.Results != nil {
		r := cloneResult(*s.Results)
		out.Results = &r
	}
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneResult(r results.NormalizedResult) results.NormalizedResult {
	out := r
	out.Topics = append([]results.Topic{}, r.Topics...)
	out.ClusterPoints = append([]results.ClusterPoint{}, r.ClusterPoints...)
	if r.Warnings != nil {
		out.Warnings = cloneStrings(r.Warnings)
	}
	if r.Details != nil {
		out.Details = make(map[string]json.RawMessage, len(r.Details))
		for k, v := range r.Details {
			out.Details[k] = append(json.RawMessage(nil), v...)
		}
	}
	for i, t := range out.Topics {
		if t.Summary != nil {
			v := *t.Summary
			out.Topics[i].Summary = &v
		}
		if t.Color != nil {
			v := *t.Color
			out.Topics[i].Color = &v
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// dedupe keeps the first occurrence of each value, in order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
