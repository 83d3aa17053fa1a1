package daybook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a committed ledger change.
type EventType string

const (
	EventEntryCreated      EventType = "entry.created"
	EventEntryUpdated      EventType = "entry.updated"
	EventEntryDeleted      EventType = "entry.deleted"
	EventPeriodClosed      EventType = "period.closed"
	EventOpeningBalanceSet EventType = "opening_balance.set"
	EventRecalculated      EventType = "ledger.recalculated"
)

// Event is published after the transaction that produced it has committed.
// AffectedFrom is the earliest date whose balances may have changed.
type Event struct {
	Type         EventType  `json:"type"`
	EntryID      *uuid.UUID `json:"entry_id,omitempty"`
	Month        string     `json:"month,omitempty"`
	AffectedFrom time.Time  `json:"affected_from"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Publisher delivers events to downstream consumers (report caches, notifiers).
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
