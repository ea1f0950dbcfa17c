// Package events publishes inventory domain events.
package events

import (
	"context"

	"github.com/vietddude/inventory/internal/core/domain"
)

// Publisher delivers grant events to downstream consumers.
type Publisher interface {
	PublishGrant(ctx context.Context, event domain.GrantEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) PublishGrant(context.Context, domain.GrantEvent) error { return nil }

func (Noop) Close() error { return nil }
