// Package notify is the outbound notification boundary. The engine treats a
// dispatch as a call with a binary outcome; everything transport-specific
// lives behind Sender.
package notify

import "context"

// Sender dispatches one message to one destination.
type Sender interface {
	// Send delivers message to the destination identified by target. A nil
	// error is the delivery confirmation the scheduler keys its dedup marker
	// on.
	Send(ctx context.Context, target, message string) error
	// Configured reports whether the sender has the credentials it needs.
	// An unconfigured sender causes the scheduler to skip its poll entirely.
	Configured() bool
}

// Disabled is a Sender without a configured backend.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, target, message string) error { return nil }
func (Disabled) Configured() bool                                       { return false }
