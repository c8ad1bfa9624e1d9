package config

import (
	"fmt"

	"github.com/aager/image-backfill/pkg/core"
)

// Mode is the run mode selected on the command line.
type Mode struct {
	Kind core.RunMode
	// Limit caps the worklist in test mode. Zero otherwise.
	Limit int
}

// ParseMode resolves the three mutually exclusive mode flags. Exactly one
// must be selected.
func ParseMode(testN int, all, resume bool) (Mode, error) {
	selected := 0
	if testN > 0 {
		selected++
	}
	if all {
		selected++
	}
	if resume {
		selected++
	}
	if selected != 1 {
		return Mode{}, fmt.Errorf("config: exactly one of --test N, --all, --resume is required")
	}

	switch {
	case testN > 0:
		return Mode{Kind: core.ModeTest, Limit: testN}, nil
	case all:
		return Mode{Kind: core.ModeAll}, nil
	default:
		return Mode{Kind: core.ModeResume}, nil
	}
}

func (m Mode) String() string {
	if m.Kind == core.ModeTest {
		return fmt.Sprintf("test(%d)", m.Limit)
	}
	return string(m.Kind)
}
