package interfaces

import (
	"context"

	"selfheal/domain/entities"
)

// EventSink delivers server to client events in order.
// Send blocks until the event is queued or ctx is done; it never drops.
type EventSink interface {
	Send(ctx context.Context, event entities.Event) error
}
