// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"fmt"
	"slices"
)

// State is a publisher state. Every run starts from a state recomputed
// from the live remote; nothing is carried over from previous runs.
type State int

const (
	// NoRemote: the remote repository does not exist (or cannot be
	// reached with the current credentials).
	NoRemote State = iota

	// RemoteExists: the remote repository exists, possibly empty.
	RemoteExists

	// Committed: the install root's changes are recorded locally.
	Committed

	// Pushed: the remote branch matches the local branch. Terminal.
	Pushed

	// PushRejected: a normal push was refused.
	PushRejected

	// Failed: publishing gave up. Terminal.
	Failed
)

var stateNames = [...]string{
	NoRemote:     "no_remote",
	RemoteExists: "remote_exists",
	Committed:    "committed",
	Pushed:       "pushed",
	PushRejected: "push_rejected",
	Failed:       "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Pushed || s == Failed
}

// transitions lists the legal successors of each state. The only loop
// back is the forced retry out of PushRejected, and that edge leads to
// a terminal state.
var transitions = map[State][]State{
	NoRemote:     {RemoteExists, Failed},
	RemoteExists: {Committed, Pushed, PushRejected, Failed},
	Committed:    {Pushed, PushRejected, Failed},
	PushRejected: {Pushed, Failed},
}

// TransitionError reports an illegal state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("publisher: illegal transition %s -> %s", e.From, e.To)
}

// Transition validates moving from one state to another.
func Transition(from, to State) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// machine tracks the current state and the path taken to reach it.
type machine struct {
	state State
	path  []State
}

func newMachine(initial State) *machine {
	return &machine{state: initial, path: []State{initial}}
}

func (m *machine) advance(to State) error {
	if err := Transition(m.state, to); err != nil {
		return err
	}
	m.state = to
	m.path = append(m.path, to)
	return nil
}

// Snapshot is the publish-relevant state of the versioned root and its
// remote, computed fresh by [Publisher.Inspect].
type Snapshot struct {
	Dir              string `json:"dir"`
	LocalInitialized bool   `json:"local_initialized"`
	Branch           string `json:"branch,omitempty"`
	PendingChanges   bool   `json:"pending_changes"`
	RemoteName       string `json:"remote_name"`
	ConfiguredURL    string `json:"configured_url,omitempty"`
	RemoteURL        string `json:"remote_url"`
	RemoteExists     bool   `json:"remote_exists"`
}

// Initial returns the state a publish run would start in.
func (s Snapshot) Initial() State {
	if s.RemoteExists {
		return RemoteExists
	}
	return NoRemote
}
