package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes polling and retention. Zero fields take the
// values of DefaultOutboxProcessorConfig.
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     2 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

func (c OutboxProcessorConfig) withDefaults() OutboxProcessorConfig {
	d := DefaultOutboxProcessorConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.CleanupRetention <= 0 {
		c.CleanupRetention = d.CleanupRetention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

// OutboxProcessor publishes committed outbox entries to the event bus. Each
// entry is claimed before publishing, so several replicas may poll the same
// table.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	cfg        OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	cfg OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("outbox"),
	}
}

// Start launches the polling loop. It returns immediately.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	if p.done != nil {
		return errors.New("outbox processor already started")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

// Stop cancels the loop and waits for the batch in flight, or for ctx
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.done == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		p.logger.Info("Outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) run(ctx context.Context) {
	defer close(p.done)

	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()

	// A nil channel never fires, which disables cleanup
	var sweep <-chan time.Time
	if p.cfg.CleanupEnabled {
		t := time.NewTicker(p.cfg.CleanupInterval)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			p.ProcessOnce(ctx)
		case <-sweep:
			p.cleanup(ctx)
		}
	}
}

// ProcessOnce publishes a batch of pending entries and a batch of failed
// entries that are due, and returns the number delivered
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) int {
	delivered := 0
	for _, fetch := range []struct {
		what string
		find func() ([]*shared.OutboxEntry, error)
	}{
		{"pending", func() ([]*shared.OutboxEntry, error) { return p.repo.FindPending(ctx, p.cfg.BatchSize) }},
		{"retryable", func() ([]*shared.OutboxEntry, error) {
			return p.repo.FindRetryable(ctx, time.Now(), p.cfg.BatchSize)
		}},
	} {
		entries, err := fetch.find()
		if err != nil {
			p.logger.Error("Outbox query failed", zap.String("batch", fetch.what), zap.Error(err))
			continue
		}
		delivered += p.deliver(ctx, entries)
	}
	return delivered
}

func (p *OutboxProcessor) deliver(ctx context.Context, entries []*shared.OutboxEntry) int {
	if len(entries) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("Outbox claim failed", zap.Int("entries", len(ids)), zap.Error(err))
		return 0
	}

	n := 0
	for _, entry := range claimed {
		if p.publish(ctx, entry) {
			n++
		}
	}
	return n
}

func (p *OutboxProcessor) publish(ctx context.Context, entry *shared.OutboxEntry) bool {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate", entry.AggregateType+":"+entry.AggregateID),
	)

	evt, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.publisher.Publish(ctx, evt)
	}
	if err != nil {
		entry.Failed(err.Error())
		if entry.IsDead() {
			log.Warn("Outbox entry dead after retries", zap.Int("attempts", entry.RetryCount), zap.Error(err))
		} else {
			log.Error("Outbox delivery failed",
				zap.Int("attempts", entry.RetryCount), zap.Timep("next_retry_at", entry.NextRetryAt), zap.Error(err))
		}
		if uerr := p.repo.Update(ctx, entry); uerr != nil {
			log.Error("Outbox entry update failed", zap.Error(uerr))
		}
		return false
	}

	entry.Delivered()
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("Outbox entry update failed", zap.Error(err))
		return false
	}
	log.Debug("Outbox entry delivered")
	return true
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("Outbox cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("Outbox entries deleted", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}
