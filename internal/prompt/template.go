// Package prompt holds the answer templates and picks one per request.
//
// Template bodies live in templates/ as embedded text with {slot}
// placeholders. Slot placement in a body is verified at init; a missing
// slot there is a packaging bug, not a runtime condition.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSlot indicates Render was called without a required variable.
var ErrMissingSlot = errors.New("missing template variable")

// Template is an immutable prompt template with named slots.
type Template struct {
	name  string
	body  string
	slots []string
}

// Name returns the template's style name, e.g. "Structured List".
func (t Template) Name() string { return t.name }

// Slots returns the variable names the template requires.
func (t Template) Slots() []string {
	out := make([]string, len(t.slots))
	copy(out, t.slots)
	return out
}

// Render substitutes every slot and returns the final prompt text.
// All declared slots must be present in vars.
func (t Template) Render(vars map[string]string) (string, error) {
	rendered := t.body
	for _, slot := range t.slots {
		value, ok := vars[slot]
		if !ok {
			return "", fmt.Errorf("%w: %s (template %q)", ErrMissingSlot, slot, t.name)
		}
		rendered = strings.ReplaceAll(rendered, "{"+slot+"}", value)
	}
	return rendered, nil
}

// mustTemplate builds a Template and panics if the body does not contain
// every declared slot. Runs at package init against embedded bodies only.
func mustTemplate(name, body string, slots ...string) Template {
	for _, slot := range slots {
		if !strings.Contains(body, "{"+slot+"}") {
			panic(fmt.Sprintf("template %q is missing slot {%s}", name, slot))
		}
	}
	return Template{name: name, body: body, slots: slots}
}
