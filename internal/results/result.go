// Package results turns analysis-service responses into the stable shape the
// results stage renders and downloads.
package results

import "encoding/json"

// Raw is an undecoded analysis response keyed by top-level field.
type Raw map[string]json.RawMessage

// Topic is a named cluster with its document share.
type Topic struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage string  `json:"percentage"`
	Summary    *string `json:"summary,omitempty"`
	Color      *string `json:"color,omitempty"`
}

// ClusterPoint is one 2D-projected sample. Unassigned is set when TopicID
// matches no topic in the same result.
type ClusterPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	TopicID    string  `json:"topic"`
	Text       string  `json:"text"`
	Unassigned bool    `json:"unassigned,omitempty"`
}

// NormalizedResult is the envelope shared by every ML family. Topics and
// ClusterPoints are never nil; family-specific payloads live under Details.
type NormalizedResult struct {
	Family        string                     `json:"family"`
	Message       string                     `json:"message,omitempty"`
	Topics        []Topic                    `json:"topics"`
	ClusterPoints []ClusterPoint             `json:"clusterPoints"`
	Details       map[string]json.RawMessage `json:"details,omitempty"`
	Warnings      []string                   `json:"warnings,omitempty"`
}

// Topic returns the topic a point belongs to.
func (r *NormalizedResult) Topic(id string) (Topic, bool) {
	for _, t := range r.Topics {
		if t.ID == id {
			return t, true
		}
	}
	return Topic{}, false
}
