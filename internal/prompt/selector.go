package prompt

import (
	"errors"
	"fmt"

	"github.com/kmu-usr/airqa/internal/format"
)

// Mode is the caller-requested template group.
type Mode string

const (
	// ModeDefault rotates randomly among the default answer styles.
	ModeDefault Mode = "default"

	// ModeResearch always uses the formal research-report template.
	ModeResearch Mode = "research"
)

// ParseMode maps a request string to a Mode. Unrecognized values fall
// back to ModeDefault, matching the API's lenient contract.
func ParseMode(s string) Mode {
	if s == string(ModeResearch) {
		return ModeResearch
	}
	return ModeDefault
}

// ErrNoTemplates indicates the selector was built with an empty default
// pool. This is a wiring bug, surfaced as an error so the caller can fail
// the request instead of the process.
var ErrNoTemplates = errors.New("no default templates configured")

// Rand supplies random indices for default-style rotation.
// *math/rand/v2.Rand satisfies it; tests inject a fixed sequence.
type Rand interface {
	IntN(n int) int
}

// Selector picks the template for a request from the prompt mode and the
// detected format mode.
type Selector struct {
	defaults []Template
	custom   Template
	research Template
	rand     Rand
}

// NewSelector builds a selector over the package templates.
func NewSelector(rand Rand) *Selector {
	return &Selector{
		defaults: DefaultOptions,
		custom:   CustomFormat,
		research: ResearchReport,
		rand:     rand,
	}
}

// Select returns the template to use and a label describing the choice
// for logs and QA records. Precedence: research mode wins over the
// detected format mode, custom format wins over the default rotation.
func (s *Selector) Select(mode Mode, formatMode format.Mode) (Template, string, error) {
	if mode == ModeResearch {
		return s.research, fmt.Sprintf("Research (Format: %s)", formatMode), nil
	}
	if formatMode == format.ModeCustom {
		return s.custom, "Custom Format Request", nil
	}
	if len(s.defaults) == 0 {
		return Template{}, "", ErrNoTemplates
	}
	chosen := s.defaults[s.rand.IntN(len(s.defaults))]
	return chosen, fmt.Sprintf("Default Style (Random: %s)", chosen.Name()), nil
}
