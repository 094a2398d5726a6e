// Package outbox persists integration messages in the same transaction as the
// domain write and relays them to Kafka afterwards.
package outbox

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusDead      Status = "dead"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID          string
	Topic       string
	Key         string
	Payload     []byte
	Status      Status
	Attempts    int
	CreatedAt   time.Time
	LastAttempt *time.Time
}
