// Package actions holds the building blocks of the legacy sweep
// surface: small steps a loop executes at every point.
package actions

import (
	"context"
	"errors"
	"time"
)

// ErrBreak stops the innermost running loop without failing the sweep.
var ErrBreak = errors.New("break loop")

// Action is one step executed per loop iteration.
type Action interface {
	Do(ctx context.Context) error
}

type taskAction struct {
	fn func(ctx context.Context) error
}

func (a taskAction) Do(ctx context.Context) error { return a.fn(ctx) }

// Task wraps a function as an Action.
func Task(fn func(ctx context.Context) error) Action {
	return taskAction{fn: fn}
}

type waitAction struct {
	d time.Duration
}

func (a waitAction) Do(ctx context.Context) error {
	if a.d <= 0 {
		return nil
	}
	timer := time.NewTimer(a.d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait pauses the loop for d, honoring cancellation.
func Wait(d time.Duration) Action {
	return waitAction{d: d}
}

type breakIfAction struct {
	pred func(ctx context.Context) bool
}

func (a breakIfAction) Do(ctx context.Context) error {
	if a.pred(ctx) {
		return ErrBreak
	}
	return nil
}

// BreakIf stops the innermost loop once pred returns true.
func BreakIf(pred func(ctx context.Context) bool) Action {
	return breakIfAction{pred: pred}
}
