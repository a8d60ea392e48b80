package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/schaermu/tmplsync/internal/config"
	"github.com/schaermu/tmplsync/internal/syncerr"
)

// ErrTargetsFailed is returned by Summary.Err when at least one target failed
var ErrTargetsFailed = errors.New("one or more targets failed")

// Outcome records the result of syncing one configured target
type Outcome struct {
	Target  string // local path, as configured
	Remote  string
	Dir     bool
	Success bool
	Err     error
	Files   int // files written (or planned in dry-run)
}

// Message returns the failure text shown to the user, empty on success
func (o Outcome) Message() string {
	if o.Success {
		return ""
	}
	if o.Err == nil {
		return "Unknown error occurred"
	}
	return o.Err.Error()
}

// TargetKind returns "dir" or "file"
func (o Outcome) TargetKind() string {
	return config.Target{Remote: o.Remote, Local: o.Target, Dir: o.Dir}.Kind()
}

// Kind returns the error kind of a failed outcome
func (o Outcome) Kind() syncerr.Kind {
	return syncerr.KindOf(o.Err)
}

// Summary aggregates the outcomes of one run
type Summary struct {
	RunID     string
	DryRun    bool
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Duration  time.Duration
}

func newSummary(runID string, dryRun bool, outcomes []Outcome, d time.Duration) *Summary {
	s := &Summary{
		RunID:    runID,
		DryRun:   dryRun,
		Outcomes: outcomes,
		Duration: d,
	}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// Failures returns the failed outcomes in target order
func (s *Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// Err returns nil when every target succeeded, otherwise an error wrapping
// ErrTargetsFailed
func (s *Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d targets failed: %w", s.Failed, len(s.Outcomes), ErrTargetsFailed)
}
