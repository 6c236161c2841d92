// Package redisink forwards change notifications to a Redis pub/sub channel,
// so other processes can react to field changes without sharing the
// persistence path.
package redisink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/conduit-lang/fieldsignals"
)

// Event is the JSON envelope published for each notification.
type Event struct {
	Model   string                 `json:"model"`
	Changed map[string]FieldChange `json:"changed"`
	Created bool                   `json:"created,omitempty"`
	Using   string                 `json:"using,omitempty"`
}

// FieldChange carries one field's old and new value.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Publisher publishes change events to one Redis channel.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

// New creates a publisher. The client is owned by the caller.
func New(client redis.UniversalClient, channel string) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
	}
}

// Listener returns the function to connect on a change channel. Marshal or
// publish failures propagate to the persistence caller, like any listener error.
func (p *Publisher) Listener() fieldsignals.ListenerFunc {
	return func(ctx context.Context, e fieldsignals.ChangeEvent) error {
		event := Event{
			Model:   e.Instance.Model().ModelName(),
			Changed: make(map[string]FieldChange, len(e.Changed)),
			Created: e.Created,
			Using:   e.Using,
		}
		for name, ch := range e.Changed {
			event.Changed[name] = FieldChange{Old: ch.Old, New: ch.New}
		}

		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode change event for %s: %w", event.Model, err)
		}
		if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
			return fmt.Errorf("publish change event for %s: %w", event.Model, err)
		}
		return nil
	}
}
