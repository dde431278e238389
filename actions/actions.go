// Package actions is the old import path of the sweep action
// building blocks.
//
// Deprecated: use github.com/benchtop-io/benchd/legacy/actions
// instead.
package actions

import (
	"context"
	"time"

	legacyactions "github.com/benchtop-io/benchd/legacy/actions"
)

// Deprecated: use legacy/actions.Action.
type Action = legacyactions.Action

// Deprecated: use legacy/actions.ErrBreak.
var ErrBreak = legacyactions.ErrBreak

// Deprecated: use legacy/actions.Task.
func Task(fn func(ctx context.Context) error) legacyactions.Action {
	return legacyactions.Task(fn)
}

// Deprecated: use legacy/actions.Wait.
func Wait(d time.Duration) legacyactions.Action {
	return legacyactions.Wait(d)
}

// Deprecated: use legacy/actions.BreakIf.
func BreakIf(pred func(ctx context.Context) bool) legacyactions.Action {
	return legacyactions.BreakIf(pred)
}
