package cache

import (
	"context"
	"sync"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
)

// sweepInterval is how often expired claims are dropped
const sweepInterval = 5 * time.Minute

type claim struct {
	done  bool
	until time.Time
}

func (c claim) live(now time.Time) bool { return now.Before(c.until) }

// InMemoryIdempotencyStore keeps webhook claims in process memory. Claims are
// not visible to other replicas.
type InMemoryIdempotencyStore struct {
	mu     sync.Mutex
	claims map[string]claim
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)

// NewInMemoryIdempotencyStore starts a store with a background sweeper.
// Call Close to stop it.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &InMemoryIdempotencyStore{
		claims: make(map[string]claim),
		now:    time.Now,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *InMemoryIdempotencyStore) Claim(_ context.Context, key string, lease time.Duration) (shared.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c, ok := s.claims[key]; ok && c.live(now) {
		if c.done {
			return shared.ClaimCompleted, nil
		}
		return shared.ClaimInFlight, nil
	}
	s.claims[key] = claim{until: now.Add(lease)}
	return shared.ClaimAcquired, nil
}

func (s *InMemoryIdempotencyStore) Complete(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	s.claims[key] = claim{done: true, until: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Release frees an in-flight claim so the event can be redelivered.
// Completed keys stay.
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	if c, ok := s.claims[key]; ok && !c.done {
		delete(s.claims, key)
	}
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper. It may be called more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Len reports the number of stored keys including expired ones not yet swept
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

func (s *InMemoryIdempotencyStore) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, c := range s.claims {
		if !c.live(now) {
			delete(s.claims, key)
		}
	}
}
