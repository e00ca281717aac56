// Package notifier delivers matched deals to their destinations.
package notifier

import (
	"context"

	"sjsage522/pepperwatch/internal/deal"
)

// Notifier is the interface for pushing deal batches to a destination.
// A destination ID names where the batch goes, e.g. "user:123" for a
// personal alert or "channel:456" for a category feed post.
type Notifier interface {
	// Deliver pushes a batch of deals to the given destination.
	Deliver(ctx context.Context, destinationID string, deals []deal.Record) error
	// TrimStreams caps the retained backlog per destination.
	TrimStreams(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}
