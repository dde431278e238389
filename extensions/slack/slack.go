// Package slack is the old import path of the Slack webhook
// notifier.
//
// Deprecated: use github.com/benchtop-io/benchd/notify/slack instead.
package slack

import (
	notifyslack "github.com/benchtop-io/benchd/notify/slack"
)

// Deprecated: use notify/slack.Options.
type Options = notifyslack.Options

// Deprecated: use notify/slack.Notifier.
type Notifier = notifyslack.Notifier

// Deprecated: use notify/slack.New.
func New(opts notifyslack.Options) (*notifyslack.Notifier, error) {
	return notifyslack.New(opts)
}
