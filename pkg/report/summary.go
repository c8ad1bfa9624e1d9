// Package report aggregates run results into an operator-facing summary:
// a live event collector, a text block for the CLI, and an XLSX export
// listing permanently failed items for manual follow-up.
package report

import (
	"fmt"
	"io"
	"time"
)

// Failure is one permanently failed item, kept for manual follow-up.
type Failure struct {
	ItemID    string
	Name      string
	Reason    string
	Attempts  int
	LastError string
}

// Summary is the final account of one run.
type Summary struct {
	RunID      string
	Mode       string
	Phase      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Enumerated counts items selected for this run; Skipped counts
	// candidates already terminal in the resumed lineage.
	Enumerated int
	Skipped    int

	Succeeded       int
	FailedPermanent int
	Retried         int
	Cancelled       int

	Failures []Failure
}

// Elapsed returns the wall-clock duration of the run.
func (s *Summary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Pending counts enumerated items that never reached a terminal state,
// which is non-zero only for cancelled runs.
func (s *Summary) Pending() int {
	pending := s.Enumerated - s.Succeeded - s.FailedPermanent - s.Cancelled
	if pending < 0 {
		return 0
	}
	return pending
}

// WriteText renders the summary as an aligned text block.
func (s *Summary) WriteText(w io.Writer) error {
	rows := []struct {
		label string
		value any
	}{
		{"run", s.RunID},
		{"mode", s.Mode},
		{"phase", s.Phase},
		{"elapsed", s.Elapsed().Round(time.Millisecond)},
		{"enumerated", s.Enumerated},
		{"skipped (checkpointed)", s.Skipped},
		{"succeeded", s.Succeeded},
		{"failed permanently", s.FailedPermanent},
		{"transient retries", s.Retried},
		{"cancelled", s.Cancelled},
		{"still pending", s.Pending()},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-24s %v\n", row.label, row.value); err != nil {
			return err
		}
	}

	if len(s.Failures) > 0 {
		if _, err := fmt.Fprintf(w, "\nfailed items (%d):\n", len(s.Failures)); err != nil {
			return err
		}
		for _, f := range s.Failures {
			if _, err := fmt.Fprintf(w, "  %-20s %-24s attempts=%d  %s\n", f.ItemID, f.Reason, f.Attempts, f.LastError); err != nil {
				return err
			}
		}
	}
	return nil
}
