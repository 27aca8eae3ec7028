package model

// Status is the lifecycle state of a Recording.
type Status string

const (
	StatusUploading    Status = "uploading"
	StatusUploaded     Status = "uploaded"
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusAnalyzing    Status = "analyzing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// transitions is the forward transition graph for automatic processing.
// Any non-terminal status may additionally jump to failed.
var transitions = map[Status][]Status{
	StatusUploading:    {StatusUploaded},
	StatusUploaded:     {StatusTranscribing},
	StatusProcessing:   {StatusTranscribing},
	StatusTranscribing: {StatusTranscribed},
	StatusTranscribed:  {StatusAnalyzing},
	StatusAnalyzing:    {StatusCompleted},
	StatusFailed:       {StatusUploaded}, // resubmit restarts the pipeline
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusUploaded, StatusProcessing, StatusTranscribing,
		StatusTranscribed, StatusAnalyzing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether automatic processing stops at s.
// A failed recording can still be resubmitted manually.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	if to == StatusFailed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidNext returns the statuses reachable from s, including failed
// for non-terminal states.
func ValidNext(s Status) []Status {
	next := append([]Status(nil), transitions[s]...)
	if !s.Terminal() {
		next = append(next, StatusFailed)
	}
	return next
}
