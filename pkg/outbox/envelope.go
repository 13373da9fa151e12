package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedEnvelope marks a stored payload that can never be delivered.
var ErrMalformedEnvelope = errors.New("malformed outbox envelope")

// ActorRef is who caused the change. Role is the actor's role at that moment.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. The same JSON is stored in
// outbox_events.payload and published as the message body, so consumers see
// the event id and schema version the emitter assigned.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ParseEnvelope decodes raw and checks the fields every consumer relies on.
// The returned id is the parsed EventID.
func ParseEnvelope(raw []byte) (PayloadEnvelope, uuid.UUID, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, uuid.Nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Version < 1 {
		return env, uuid.Nil, fmt.Errorf("%w: version %d", ErrMalformedEnvelope, env.Version)
	}
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return env, uuid.Nil, fmt.Errorf("%w: event id %q", ErrMalformedEnvelope, env.EventID)
	}
	if len(env.Data) == 0 {
		return env, uuid.Nil, fmt.Errorf("%w: empty data", ErrMalformedEnvelope)
	}
	return env, id, nil
}
