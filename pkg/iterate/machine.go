// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package iterate

import "fmt"

// State is the position of a Machine.
type State int

const (
	NotStarted State = iota
	DefaultRunning
	Iterating
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case DefaultRunning:
		return "DEFAULT_RUN"
	case Iterating:
		return "ITERATING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Step identifies one reduction run of a strategy.
type Step struct {
	Default   bool
	Iteration int
	Phase     int
}

func (s Step) String() string {
	if s.Default {
		return "default run"
	}
	return fmt.Sprintf("iteration %d phase %d", s.Iteration+1, s.Phase)
}

// Machine sequences the reduction runs of a strategy. Each step advances
// only on Succeed; Fail is terminal.
type Machine struct {
	strategy Strategy
	state    State
	step     Step
	err      error
}

// NewMachine returns a machine for s in the NotStarted state.
func NewMachine(s Strategy) *Machine {
	return &Machine{strategy: s}
}

func (m *Machine) State() State { return m.state }

// Err returns the failure that stopped the machine.
func (m *Machine) Err() error { return m.err }

// Next returns the step to run, or false once the machine is Done or
// Failed. It does not advance the machine.
func (m *Machine) Next() (Step, bool) {
	switch m.state {
	case NotStarted:
		if m.strategy.DefaultRun() {
			m.state, m.step = DefaultRunning, Step{Default: true}
		} else if m.strategy.Iterations() > 0 {
			m.state, m.step = Iterating, Step{}
		} else {
			m.state = Done
			return Step{}, false
		}
		return m.step, true
	case DefaultRunning, Iterating:
		return m.step, true
	}
	return Step{}, false
}

// Succeed records that the current step completed and advances.
func (m *Machine) Succeed() {
	switch m.state {
	case DefaultRunning:
		if m.strategy.Iterations() == 0 {
			m.state = Done
			return
		}
		m.state, m.step = Iterating, Step{}
	case Iterating:
		if m.step.Phase+1 < m.strategy.Phases() {
			m.step.Phase++
			return
		}
		if m.step.Iteration+1 < m.strategy.Iterations() {
			m.step = Step{Iteration: m.step.Iteration + 1}
			return
		}
		m.state = Done
	}
}

// Fail halts the machine.
func (m *Machine) Fail(err error) {
	m.state, m.err = Failed, err
}
