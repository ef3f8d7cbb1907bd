// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"fmt"
)

// ExecuteFixes runs the fix action for each fixable failure, updating
// results in place. In dry-run mode, no fixes are executed and an empty
// Outcome is returned.
func ExecuteFixes(ctx context.Context, results []Result, dryRun bool) Outcome {
	if dryRun {
		return Outcome{}
	}

	var outcome Outcome
	for i := range results {
		if results[i].Status != StatusFail || results[i].fix == nil {
			continue
		}
		if err := results[i].fix(ctx); err != nil {
			results[i].Message = fmt.Sprintf("%s (fix failed: %v)", results[i].Message, err)
			outcome.FailedCount++
			continue
		}
		results[i].Status = StatusFixed
		outcome.FixedCount++
	}
	return outcome
}

// BuildJSON builds the JSON output struct from results.
func BuildJSON(results []Result, dryRun bool) JSONOutput {
	return JSONOutput{
		Checks: results,
		OK:     !AnyFailed(results),
		DryRun: dryRun,
	}
}

// AnyFailed reports whether any result is still failing.
func AnyFailed(results []Result) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return true
		}
	}
	return false
}

// MarkRepaired updates results that now pass but were failing in a
// previous iteration. Those were repaired by a fix even if they did not
// carry the fix closure themselves (creating the build root also
// satisfies the state directory check). Call this after the final
// iteration with the set of names that failed in any earlier iteration.
func MarkRepaired(results []Result, repairedNames map[string]bool) {
	for i := range results {
		if results[i].Status == StatusPass && repairedNames[results[i].Name] {
			results[i].Status = StatusFixed
		}
	}
}
