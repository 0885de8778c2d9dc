package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Service manages outbox dead letters for operators
type Service struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewService creates a new outbox service
func NewService(repo shared.OutboxRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// EntryDTO represents an outbox entry
type EntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	StoreID       uuid.UUID  `json:"store_id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   string     `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ListResult is a page of outbox entries
type ListResult struct {
	Entries  []EntryDTO `json:"entries"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// StatsDTO counts outbox entries per status
type StatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// DeadLetters returns a page of dead letter entries
func (s *Service) DeadLetters(ctx context.Context, page, pageSize int) (*ListResult, error) {
	f := shared.Filter{Page: page, PageSize: pageSize}.Normalize()
	entries, total, err := s.repo.FindDead(ctx, f.Page, f.PageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letter entries", zap.Error(err))
		return nil, err
	}
	out := make([]EntryDTO, len(entries))
	for i, entry := range entries {
		out[i] = toEntryDTO(entry)
	}
	return &ListResult{Entries: out, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// RetryDead resets one dead letter entry so the processor picks it up again
func (s *Service) RetryDead(ctx context.Context, id uuid.UUID) (*EntryDTO, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, shared.NewNotFoundError("outbox entry", id)
	}
	if err := entry.Requeue(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", id.String()))
		return nil, err
	}

	s.logger.Info("Dead letter entry reset for retry",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType))

	dto := toEntryDTO(entry)
	return &dto, nil
}

// RetryAllDead resets every dead letter entry and returns how many were reset
func (s *Service) RetryAllDead(ctx context.Context) (int64, error) {
	const pageSize = 100
	var count int64
	for {
		// Reset entries leave the dead set, so the first page is always the next batch
		entries, _, err := s.repo.FindDead(ctx, 1, pageSize)
		if err != nil {
			return count, err
		}
		if len(entries) == 0 {
			break
		}
		reset := 0
		for _, entry := range entries {
			if err := entry.Requeue(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", entry.ID.String()))
				continue
			}
			reset++
		}
		count += int64(reset)
		if reset == 0 || len(entries) < pageSize {
			break
		}
	}

	s.logger.Info("Retried dead letter entries", zap.Int64("count", count))
	return count, nil
}

// Stats returns outbox entry counts per status
func (s *Service) Stats(ctx context.Context) (*StatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	return &StatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func toEntryDTO(entry *shared.OutboxEntry) EntryDTO {
	return EntryDTO{
		ID:            entry.ID,
		StoreID:       entry.StoreID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		Status:        string(entry.Status),
		RetryCount:    entry.RetryCount,
		LastError:     entry.LastError,
		NextRetryAt:   entry.NextRetryAt,
		CreatedAt:     entry.CreatedAt,
	}
}
