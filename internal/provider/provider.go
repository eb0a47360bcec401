// Package provider defines the interface for message delivery backends.
package provider

import (
	"context"
)

// Capture is what a delivery backend reported for one message. For the
// sendmail backend it is the raw process output; API backends put their
// response summary in Stdout.
type Capture struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Failed reports whether the backend exited with a non-zero status.
func (c *Capture) Failed() bool {
	return c.ExitCode != 0
}

// Provider is the interface that delivery backends must implement.
// Each provider hands a fully serialized RFC 5322 message to a transport
// (local sendmail, AWS SES, Microsoft Graph, stdout). Recipients are taken
// from the message headers.
type Provider interface {
	// Send delivers the raw message and returns what the transport reported.
	// A non-nil error means the transport could not be reached at all.
	Send(ctx context.Context, raw []byte) (*Capture, error)

	// Name returns the human-readable name of this provider.
	Name() string
}
