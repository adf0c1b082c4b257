package pipeline

import (
	"errors"
	"time"

	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/source"
)

// State is the generation job state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Status is an immutable snapshot of the job.
type Status struct {
	State    State
	JobID    string
	Mode     reel.Mode
	Quality  reel.Quality
	Progress int // 0..100
	Frames   int
	Total    int
	Err      error
	Artifact string // saved path, set on Complete
	Started  time.Time
	Finished time.Time
}

// Message is the human-readable error text, empty unless State is Error.
func (s Status) Message() string {
	if s.Err == nil {
		return ""
	}
	var v *reel.ValidationError
	if errors.As(s.Err, &v) {
		return v.Msg
	}
	return s.Err.Error()
}

// EventKind names a job transition.
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
	EventCanceled
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCanceled:
		return "canceled"
	case EventReset:
		return "reset"
	}
	return "unknown"
}

// Event is one input to Status.Apply.
type Event struct {
	Kind     EventKind
	JobID    string
	Mode     reel.Mode
	Quality  reel.Quality
	Progress int
	Frames   int
	Total    int
	Err      error
	Artifact string
	At       time.Time
}

// Apply returns the status after e. Events that do not fit the current state,
// or that carry the ID of a job that is no longer current, leave it unchanged.
func (s Status) Apply(e Event) Status {
	switch e.Kind {
	case EventStarted:
		if s.State == StateRunning {
			return s
		}
		return Status{
			State:   StateRunning,
			JobID:   e.JobID,
			Mode:    e.Mode,
			Quality: e.Quality,
			Total:   e.Total,
			Started: e.At,
		}

	case EventProgress:
		if s.State != StateRunning || e.JobID != s.JobID {
			return s
		}
		s.Progress = max(s.Progress, min(e.Progress, 99))
		s.Frames = max(s.Frames, e.Frames)
		return s

	case EventCompleted:
		if s.State != StateRunning || e.JobID != s.JobID {
			return s
		}
		s.State = StateComplete
		s.Progress = 100
		s.Frames = max(s.Frames, e.Frames)
		s.Artifact = e.Artifact
		s.Finished = e.At
		return s

	case EventFailed:
		// A failure without a job ID is a rejected start.
		if e.JobID == "" {
			if s.State == StateRunning {
				return s
			}
			return Status{State: StateError, Mode: e.Mode, Quality: e.Quality, Err: e.Err, Finished: e.At}
		}
		if s.State != StateRunning || e.JobID != s.JobID {
			return s
		}
		s.State = StateError
		s.Err = e.Err
		s.Finished = e.At
		return s

	case EventCanceled:
		if s.State != StateRunning || e.JobID != s.JobID {
			return s
		}
		return Status{State: StateIdle}

	case EventReset:
		if s.State == StateRunning {
			return s
		}
		return Status{State: StateIdle}
	}
	return s
}

// Request is everything one generation needs. Sources are snapshots; later
// edits to the session do not affect a running job.
type Request struct {
	Mode    reel.Mode
	Images  []source.Image
	Video   *source.Video
	Reel    reel.ReelSettings
	Caption string
	Text    reel.TextSettings
}

// Validate checks the request before any frame is rendered.
func (r Request) Validate() error {
	switch r.Mode {
	case reel.ModeImages:
		if len(r.Images) < reel.MinImages {
			return reel.ErrNotEnoughImages
		}
		if err := r.Reel.Validate(); err != nil {
			return err
		}
	case reel.ModeVideo:
		if r.Video == nil || r.Video.Handle == nil || r.Video.Handle.Released() {
			return reel.ErrNoVideo
		}
		if !r.Reel.Quality.Valid() {
			return reel.Invalid("quality", "unknown quality "+string(r.Reel.Quality))
		}
	default:
		return reel.Invalid("mode", "unknown mode "+string(r.Mode))
	}
	return r.Text.Validate()
}
