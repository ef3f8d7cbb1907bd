// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tooltest provides a scripted [tool.Runner] for tests.
//
// A Runner matches each invocation against registered rules in
// registration order. The first matching rule answers with its next
// scripted response; the last response repeats once the script is
// exhausted. Invocations that match no rule go to the fallback runner
// when one is set (typically a real [tool.Exec], so tests can script
// only the calls they care about), and otherwise succeed with empty
// output.
package tooltest

import (
	"context"
	"slices"
	"sync"

	"github.com/bureau-foundation/shipyard/lib/tool"
)

// Response is one scripted answer.
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string

	// StartErr makes the call fail as if the binary were missing.
	StartErr error
}

// OK is a zero-exit response with no output.
var OK = Response{}

// Fail returns a response with the given exit code and stderr.
func Fail(code int, stderr string) Response {
	return Response{ExitCode: code, Stderr: stderr}
}

// Matcher selects invocations.
type Matcher func(inv tool.Invocation) bool

// Command matches invocations of name whose arguments contain words as
// an ordered subsequence. Command("git", "push", "--force") matches
// "git -C /repo push --force origin main".
func Command(name string, words ...string) Matcher {
	return func(inv tool.Invocation) bool {
		if inv.Name != name {
			return false
		}
		next := 0
		for _, arg := range inv.Args {
			if next < len(words) && arg == words[next] {
				next++
			}
		}
		return next == len(words)
	}
}

// Not inverts a matcher.
func Not(m Matcher) Matcher {
	return func(inv tool.Invocation) bool { return !m(inv) }
}

// And matches when every matcher matches.
func And(matchers ...Matcher) Matcher {
	return func(inv tool.Invocation) bool {
		for _, m := range matchers {
			if !m(inv) {
				return false
			}
		}
		return true
	}
}

type rule struct {
	match     Matcher
	responses []Response
	used      int
	hook      func(tool.Invocation)
}

// Runner is a scripted tool.Runner. Safe for concurrent use.
type Runner struct {
	// Fallback handles invocations no rule matches. Nil means succeed
	// with empty output.
	Fallback tool.Runner

	mu    sync.Mutex
	rules []*rule
	calls []tool.Invocation
}

// New returns an empty Runner with no fallback.
func New() *Runner { return &Runner{} }

// On registers a rule. With no responses the rule answers OK.
func (r *Runner) On(match Matcher, responses ...Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(responses) == 0 {
		responses = []Response{OK}
	}
	r.rules = append(r.rules, &rule{match: match, responses: responses})
	return r
}

// OnRun registers a rule that calls hook before answering. Tests use
// hooks to simulate side effects of the scripted command, such as a
// remote appearing after a creation call.
func (r *Runner) OnRun(match Matcher, hook func(tool.Invocation), responses ...Response) *Runner {
	r.On(match, responses...)
	r.mu.Lock()
	r.rules[len(r.rules)-1].hook = hook
	r.mu.Unlock()
	return r
}

// Run implements tool.Runner.
func (r *Runner) Run(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cloneInvocation(inv))
	var matched *rule
	for _, candidate := range r.rules {
		if candidate.match(inv) {
			matched = candidate
			break
		}
	}
	var response Response
	if matched != nil {
		index := min(matched.used, len(matched.responses)-1)
		response = matched.responses[index]
		matched.used++
	}
	fallback := r.Fallback
	r.mu.Unlock()

	if matched == nil {
		if fallback != nil {
			return fallback.Run(ctx, inv)
		}
		return tool.NewResult(inv, 0, "", ""), nil
	}
	if matched.hook != nil {
		matched.hook(inv)
	}
	if response.StartErr != nil {
		return tool.Result{}, &tool.StartError{Command: inv.String(), Err: response.StartErr}
	}
	return tool.NewResult(inv, response.ExitCode, response.Stdout, response.Stderr), nil
}

// Calls returns every invocation seen so far, in order.
func (r *Runner) Calls() []tool.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Matching returns the invocations selected by m, in order.
func (r *Runner) Matching(m Matcher) []tool.Invocation {
	var matched []tool.Invocation
	for _, inv := range r.Calls() {
		if m(inv) {
			matched = append(matched, inv)
		}
	}
	return matched
}

// Count returns how many invocations m selects.
func (r *Runner) Count(m Matcher) int {
	return len(r.Matching(m))
}

func cloneInvocation(inv tool.Invocation) tool.Invocation {
	inv.Args = slices.Clone(inv.Args)
	inv.Env = slices.Clone(inv.Env)
	return inv
}
