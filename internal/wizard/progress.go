package wizard

// Milestones added by the controller after the analysis service's own.
const (
	progressNormalized = 95
	progressCommitted  = 100
)

// Progress is the submission feedback. Percent 0 means indeterminate; once
// determinate it never goes down.
type Progress struct {
	Percent     int  `json:"percent"`
	Determinate bool `json:"determinate"`
}

// Advance returns p moved to percent, ignoring values that would decrease it.
func (p Progress) Advance(percent int) Progress {
	if percent > 100 {
		percent = 100
	}
	if percent <= p.Percent {
		return p
	}
	return Progress{Percent: percent, Determinate: true}
}
