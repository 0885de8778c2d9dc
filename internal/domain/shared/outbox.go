package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	// DefaultMaxRetries is the number of failed deliveries before an entry is dead
	DefaultMaxRetries = 5

	baseBackoff = time.Second
	maxBackoff  = 5 * time.Minute
)

// RetryBackoff is the wait after the given failed attempt (1-based):
// 1s, 2s, 4s and so on, capped at five minutes.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		return maxBackoff
	}
	return min(baseBackoff<<(attempt-1), maxBackoff)
}

// OutboxEntry is a serialized domain event written in the same transaction as
// the ledger change that raised it
type OutboxEntry struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   string
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps an event and its payload in a pending entry
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		StoreID:       event.StoreID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Deliverable reports whether a processor may pick the entry up at now
func (e *OutboxEntry) Deliverable(now time.Time) bool {
	switch e.Status {
	case OutboxStatusPending:
		return true
	case OutboxStatusFailed:
		return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
	}
	return false
}

// Begin moves a pending or failed entry to processing
func (e *OutboxEntry) Begin() error {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return fmt.Errorf("outbox entry %s is %s", e.ID, e.Status)
	}
	e.Status = OutboxStatusProcessing
	e.UpdatedAt = time.Now()
	return nil
}

// Delivered records a successful publish
func (e *OutboxEntry) Delivered() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
}

// Failed records a failed publish. The entry is rescheduled with RetryBackoff
// until MaxRetries attempts have failed, then it is dead.
func (e *OutboxEntry) Failed(reason string) {
	now := time.Now()
	e.RetryCount++
	e.LastError = reason
	e.UpdatedAt = now

	limit := e.MaxRetries
	if limit <= 0 {
		limit = DefaultMaxRetries
	}
	if e.RetryCount >= limit {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(RetryBackoff(e.RetryCount))
	e.NextRetryAt = &next
}

// Requeue returns a dead entry to pending with a fresh retry budget
func (e *OutboxEntry) Requeue() error {
	if e.Status != OutboxStatusDead {
		return NewConflictError("outbox entry %s is %s, only dead entries can be retried", e.ID, e.Status)
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

func (e *OutboxEntry) IsDead() bool { return e.Status == OutboxStatusDead }

// OutboxRepository persists outbox entries
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing claims entries for one processor and returns those it won
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
