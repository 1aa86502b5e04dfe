// Package wizard holds the four-stage workflow: the canonical StageState, the
// rules for moving between stages and the Controller that owns a session.
package wizard

import "fmt"

// Stage is one step of the wizard.
type Stage int

const (
	StageUpload Stage = iota
	StageSelectColumns
	StageConfigure
	StageViewResults
)

var stageNames = [...]string{"upload", "select-columns", "configure", "view-results"}

// Stages lists every stage in order.
func Stages() []Stage {
	return []Stage{StageUpload, StageSelectColumns, StageConfigure, StageViewResults}
}

func (s Stage) String() string {
	if s.Valid() {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Valid reports whether s is one of the four stages.
func (s Stage) Valid() bool { return s >= StageUpload && s <= StageViewResults }

// Next returns the following stage; ok is false at the last stage.
func (s Stage) Next() (Stage, bool) {
	if s >= StageViewResults || !s.Valid() {
		return s, false
	}
	return s + 1, true
}

// Prev returns the preceding stage; ok is false at the first stage.
func (s Stage) Prev() (Stage, bool) {
	if s <= StageUpload || !s.Valid() {
		return s, false
	}
	return s - 1, true
}

// ParseStage accepts the string form of a stage.
func ParseStage(v string) (Stage, error) {
	for i, n := range stageNames {
		if n == v {
			return Stage(i), nil
		}
	}
	return StageUpload, fmt.Errorf("unknown stage %q", v)
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	v, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
