package wizard

import (
	"errors"

	"github.com/KaramelBytes/stagewise/internal/ingest"
	"github.com/KaramelBytes/stagewise/internal/results"
)

// ErrWrongStage is returned when an action does not belong to the current stage.
var ErrWrongStage = errors.New("action not allowed at the current stage")

// Input carries what the user supplied at the current stage. Nil fields
// leave the existing values in place.
type Input struct {
	Upload          *ingest.Upload
	SelectedColumns []string
	Config          *MLConfiguration
	Results         *results.NormalizedResult
}

// ApplyUpload records an accepted file. A header list different from the
// previous one clears the selection and configuration; an identical list
// keeps them so a re-upload of the same layout loses nothing.
func ApplyUpload(s StageState, up *ingest.Upload) StageState {
	next := s.Clone()
	next.SourceFileName = up.FileName
	next.FileFormat = up.Format
	next.Results = nil
	headers := up.Headers
	if headers == nil {
		headers = []string{}
	}
	if !equalStrings(s.Headers, headers) {
		next.SelectedColumns = []string{}
		next.Config = nil
	}
	next.Headers = cloneStrings(headers)
	return next
}

// WithSelection replaces the selection, removing duplicates but keeping order.
func WithSelection(s StageState, cols []string) StageState {
	next := s.Clone()
	next.SelectedColumns = dedupe(cols)
	return next
}

// WithConfig replaces the configuration.
func WithConfig(s StageState, cfg MLConfiguration) StageState {
	next := s.Clone()
	c := cfg.Clone()
	next.Config = &c
	return next
}

// Advance applies the input for the current stage, checks the stage's
// preconditions and returns the state at the next stage. s is not modified.
func Advance(s StageState, in Input) (StageState, error) {
	to, ok := s.Stage.Next()
	if !ok {
		return s.Clone(), ErrWrongStage
	}
	next := s.Clone()
	switch s.Stage {
	case StageUpload:
		if in.Upload != nil {
			next = ApplyUpload(next, in.Upload)
		}
	case StageSelectColumns:
		if in.SelectedColumns != nil {
			next = WithSelection(next, in.SelectedColumns)
		}
	case StageConfigure:
		if in.Config != nil {
			next = WithConfig(next, *in.Config)
		}
	}
	if err := Validate(next, s.Stage); err != nil {
		return s.Clone(), err
	}
	switch to {
	case StageConfigure:
		if next.Config == nil {
			c := DefaultConfig()
			next.Config = &c
		}
	case StageViewResults:
		if in.Results == nil {
			return s.Clone(), invalid(s.Stage, "results", "analysis results are required")
		}
		r := cloneResult(*in.Results)
		next.Results = &r
	}
	next.Stage = to
	return next, nil
}

// Retreat returns the state one stage back. Selections and configuration
// are kept; results are dropped because they belong to a submission that
// is no longer current. Retreating from Upload returns s unchanged.
func Retreat(s StageState) StageState {
	next := s.Clone()
	prev, ok := s.Stage.Prev()
	if !ok {
		return next
	}
	if s.Stage == StageViewResults {
		next.Results = nil
	}
	next.Stage = prev
	return next
}
