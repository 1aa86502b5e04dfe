package wizard

import (
	"fmt"
	"strings"
)

// ValidationError explains why a stage cannot be left forward.
type ValidationError struct {
	Stage  Stage  `json:"stage"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cannot advance from %s: %s", e.Stage, e.Reason)
}

func invalid(stage Stage, field, reason string) *ValidationError {
	return &ValidationError{Stage: stage, Field: field, Reason: reason}
}

// CanAdvance reports whether s has what it needs to move forward from the
// given stage, with a human-readable reason when it does not.
func CanAdvance(s StageState, from Stage) (bool, string) {
	if err := Validate(s, from); err != nil {
		return false, err.Reason
	}
	return true, ""
}

// Validate is CanAdvance returning the structured error.
func Validate(s StageState, from Stage) *ValidationError {
	switch from {
	case StageUpload:
		if s.SourceFileName == "" {
			return invalid(from, "file", "upload a file to continue")
		}
	case StageSelectColumns:
		return validateSelection(s, from)
	case StageConfigure:
		if err := validateSelection(s, from); err != nil {
			return err
		}
		if s.Config == nil {
			return invalid(from, "mlConfiguration", "choose an analysis configuration")
		}
		if field, reason := s.Config.Check(); reason != "" {
			return invalid(from, field, reason)
		}
	case StageViewResults:
		return invalid(from, "", "view-results is the last stage")
	default:
		return invalid(from, "", "unknown stage")
	}
	return nil
}

// validateSelection rejects an empty selection and, when headers are known,
// any selected column that is not one of them.
func validateSelection(s StageState, from Stage) *ValidationError {
	if len(s.SelectedColumns) == 0 {
		return invalid(from, "selectedColumns", "select at least one column")
	}
	var unknown []string
	for _, c := range s.SelectedColumns {
		if strings.TrimSpace(c) == "" {
			return invalid(from, "selectedColumns", "column names must not be blank")
		}
		if len(s.Headers) > 0 && !contains(s.Headers, c) {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return invalid(from, "selectedColumns", fmt.Sprintf("unknown column(s): %s", strings.Join(unknown, ", ")))
	}
	return nil
}
