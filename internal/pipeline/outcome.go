package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// SubStepResult records one analysis sub-step's outcome. A failed
// sub-step never fails the stage; the error text is kept for the
// stage outcome log.
type SubStepResult struct {
	Step     string        `json:"step"`
	OK       bool          `json:"ok"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// StageOutcome summarizes one Analyze run: which sub-steps ran, which
// were skipped by settings, and which failed.
type StageOutcome struct {
	RecordingID uuid.UUID       `json:"recording_id"`
	Steps       []SubStepResult `json:"steps"`
}

// FailedSteps returns the names of sub-steps that ran and failed.
func (o *StageOutcome) FailedSteps() []string {
	var failed []string
	for _, s := range o.Steps {
		if !s.OK && !s.Skipped {
			failed = append(failed, s.Step)
		}
	}
	return failed
}

// AllFailed reports whether every sub-step that actually ran failed.
func (o *StageOutcome) AllFailed() bool {
	ran := 0
	for _, s := range o.Steps {
		if s.Skipped {
			continue
		}
		ran++
		if s.OK {
			return false
		}
	}
	return ran > 0
}
