// Package events publishes ledger activity for downstream consumers.
// Publishing is fire-and-forget from the ledger's point of view: a failed
// publish never fails or rolls back the movement it describes.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dkomnen/bankledger/internal/domain"
)

const TopicMovementRecorded = "movement_recorded"

type Publisher interface {
	Publish(topic string, event any) error
}

// MovementRecorded is emitted once per committed movement.
type MovementRecorded struct {
	MovementID string              `json:"movement_id"`
	AccountID  int64               `json:"account_id"`
	Kind       domain.MovementKind `json:"kind"`
	Amount     decimal.Decimal     `json:"amount"`
	Balance    decimal.Decimal     `json:"balance"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(topic string, event any) error { return nil }
