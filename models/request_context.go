package models

import (
	"strings"
)

// RequestContext carries per-request situational hints for the
// recommendation prompt. It is never persisted.
type RequestContext struct {
	Mood          string `json:"mood,omitempty"`
	TimeAvailable string `json:"time_available,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
	Genres        string `json:"genres,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Render produces the prompt section for the current request, one line per
// non-empty hint.
func (rc RequestContext) Render() string {
	var b strings.Builder
	line := func(label, v string) {
		if v != "" {
			b.WriteString("- " + label + ": " + v + "\n")
		}
	}
	line("Current Mood", rc.Mood)
	line("Time Available", rc.TimeAvailable)
	line("Reading Purpose", rc.Purpose)
	line("Requested Genres", rc.Genres)
	line("Notes", rc.Notes)
	return b.String()
}
