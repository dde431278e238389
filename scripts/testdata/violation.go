package violation

import (
	"context"

	"github.com/benchtop-io/benchd/actions"
	"github.com/benchtop-io/benchd/extensions/slack"
)

// Imports two deprecated forwarder paths on purpose; the gate test
// expects both to be flagged.
func Violate() {
	_ = actions.Task(func(context.Context) error { return nil })
	_ = slack.New
}
