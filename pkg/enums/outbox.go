package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTokenizationDraft OutboxAggregateType = "tokenization_draft"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateTokenizationDraft
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTokenizationStatusChanged OutboxEventType = "tokenization_status_changed"
)

func (e OutboxEventType) IsValid() bool {
	return e.Aggregate() != ""
}

// Aggregate is the only aggregate an event type may be emitted against, or
// "" for an unknown event type.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	switch e {
	case EventTokenizationStatusChanged:
		return AggregateTokenizationDraft
	}
	return ""
}
