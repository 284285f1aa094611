// Package scenario runs observing plans: ordered phases, each sending one command
// and moving on when a trigger fires.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"starcam-link/internal/command"
)

// Trigger events.
const (
	EventRecords        = "records"          // telemetry records since the phase began
	EventElapsed        = "elapsed_s"        // seconds since the phase began
	EventFocusSweepDone = "focus_sweep_done" // 1 once a sweep has started and finished
)

var ErrInvalid = errors.New("invalid scenario")

// Scenario defines an observing plan with ordered phases and an overall description.
type Scenario struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Phases      []Phase `yaml:"phases"`
}

// Phase sends Command on entry, if set, and waits for one of its triggers. A phase
// without triggers ends the scenario.
type Phase struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Command     *command.Request `yaml:"command,omitempty"`
	Triggers    []Trigger        `yaml:"triggers,omitempty"`
}

// Trigger moves the scenario to another phase based on an event.
type Trigger struct {
	Event string `yaml:"event"`
	Value int    `yaml:"value"`
	Next  string `yaml:"next"`
}

// Event represents a runtime occurrence that may advance the scenario.
type Event struct {
	Type  string
	Value int
}

// Load reads and validates a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks phase names are unique and triggers name known events and phases.
func (s *Scenario) Validate() error {
	if len(s.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalid)
	}
	names := make(map[string]bool, len(s.Phases))
	for _, p := range s.Phases {
		if p.Name == "" || names[p.Name] {
			return fmt.Errorf("%w: phase name %q empty or repeated", ErrInvalid, p.Name)
		}
		names[p.Name] = true
	}
	for _, p := range s.Phases {
		for _, tr := range p.Triggers {
			switch tr.Event {
			case EventRecords, EventElapsed, EventFocusSweepDone:
			default:
				return fmt.Errorf("%w: phase %s: unknown event %q", ErrInvalid, p.Name, tr.Event)
			}
			if !names[tr.Next] {
				return fmt.Errorf("%w: phase %s: unknown next phase %q", ErrInvalid, p.Name, tr.Next)
			}
		}
	}
	return nil
}

// Phase returns the phase with the given name.
func (s *Scenario) Phase(name string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// NextPhase returns the name of the next phase given the current phase and event.
// If no trigger matches, ok will be false.
func (s *Scenario) NextPhase(current string, ev Event) (next string, ok bool) {
	p, found := s.Phase(current)
	if !found {
		return "", false
	}
	for _, tr := range p.Triggers {
		if tr.Event == ev.Type && ev.Value >= tr.Value {
			return tr.Next, true
		}
	}
	return "", false
}
