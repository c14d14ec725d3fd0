package ir

import "time"

const Version = "1.0"

type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source,omitempty"`
	IRVersion string    `json:"ir_version,omitempty"`

	Context  Context   `json:"context"`
	Traces   []string  `json:"traces,omitempty"`
	Stats    Stats     `json:"stats"`
	Warnings []Warning `json:"warnings,omitempty"`
}

type Context struct {
	WarningLimit  int      `json:"warning_limit,omitempty"`
	DisabledRules []string `json:"disabled_rules,omitempty"`
	Waived        int      `json:"waived,omitempty"`
}

// Stats summarizes what the host fed into the analyses.
type Stats struct {
	Events      int `json:"events"`
	Puts        int `json:"puts"`
	ArrayPuts   int `json:"array_puts"`
	Arrays      int `json:"arrays"`
	Transitions int `json:"transitions"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Events += o.Events
	s.Puts += o.Puts
	s.ArrayPuts += o.ArrayPuts
	s.Arrays += o.Arrays
	s.Transitions += o.Transitions
}

// Warning is one reported offending location. It is built once at report
// time and not mutated afterwards, except for the run-unique ID assigned by
// rules.Evaluate.
type Warning struct {
	ID       string `json:"id"`
	RuleID   string `json:"rule_id"`
	IID      string `json:"iid"`
	Location string `json:"location"`
	Message  string `json:"message"`
	Count    int    `json:"count"`
}
