package eventstore

import (
	"context"
	"fmt"
)

// Emitter persists build lifecycle events.
type Emitter struct {
	store Store
}

// NewEmitter creates an Emitter over store. A nil store makes every emit a no-op.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store}
}

// EmitEvent persists an event to the event store.
func (e *Emitter) EmitEvent(ctx context.Context, event Event) error {
	if e == nil || e.store == nil {
		return nil
	}
	if err := e.store.Append(ctx, event.BuildID(), event.Type(), event.Payload(), event.Metadata()); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	return nil
}
