package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

type userKey struct {
	userID string
	itemID string
}

// MemoryStore keeps all engagement state in process memory. Trending reads
// are served from a treap index kept in step with engagement scores.
type MemoryStore struct {
	mu     sync.RWMutex
	aggs   map[string]model.Aggregate
	users  map[userKey]model.UserEngagement
	index  scoreIndex
	closed bool

	log          logger.Logger
	maxBatchRead int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		aggs:         make(map[string]model.Aggregate),
		users:        make(map[userKey]model.UserEngagement),
		log:          o.log.Named("memory_store"),
		maxBatchRead: o.maxBatchRead,
	}
}

func (s *MemoryStore) GetAggregate(_ context.Context, itemID string) (model.Aggregate, error) {
	if err := validateIDs(itemID); err != nil {
		return model.Aggregate{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Aggregate{}, ErrClosed
	}
	agg, ok := s.aggs[itemID]
	if !ok {
		return model.Aggregate{}, ErrNotFound
	}
	return agg, nil
}

func (s *MemoryStore) GetAggregates(_ context.Context, ids []string) (map[string]model.Aggregate, error) {
	if err := validateBatch(ids, s.maxBatchRead); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]model.Aggregate, len(ids))
	for _, id := range ids {
		if agg, ok := s.aggs[id]; ok {
			out[id] = agg
		}
	}
	return out, nil
}

func (s *MemoryStore) GetUserEngagement(_ context.Context, userID, itemID string) (model.UserEngagement, error) {
	if err := validateIDs(userID, itemID); err != nil {
		return model.UserEngagement{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.UserEngagement{}, ErrClosed
	}
	ue, ok := s.users[userKey{userID, itemID}]
	if !ok {
		return model.UserEngagement{}, ErrNotFound
	}
	return ue, nil
}

func (s *MemoryStore) AddUserViewTime(_ context.Context, userID, itemID string, ms int64, at time.Time) error {
	return s.updateUser(userID, itemID, func(ue *model.UserEngagement) {
		ue.ViewTimeMS += ms
		ue.LastViewed = at
	})
}

func (s *MemoryStore) SetUserLiked(_ context.Context, userID, itemID string, liked bool, _ time.Time) (bool, error) {
	var prev bool
	err := s.updateUser(userID, itemID, func(ue *model.UserEngagement) {
		prev = ue.Liked
		ue.Liked = liked
	})
	return prev, err
}

func (s *MemoryStore) MarkUserClicked(_ context.Context, userID, itemID string, _ time.Time) error {
	return s.updateUser(userID, itemID, func(ue *model.UserEngagement) {
		ue.Clicked = true
	})
}

func (s *MemoryStore) updateUser(userID, itemID string, fn func(*model.UserEngagement)) error {
	if err := validateIDs(userID, itemID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	k := userKey{userID, itemID}
	ue, ok := s.users[k]
	if !ok {
		ue = model.UserEngagement{UserID: userID, ItemID: itemID}
	}
	fn(&ue)
	s.users[k] = ue
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, itemID string, delta model.Counters, at time.Time) (model.Aggregate, error) {
	if err := validateIDs(itemID); err != nil {
		return model.Aggregate{}, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Aggregate{}, ErrClosed
	}
	agg, ok := s.aggs[itemID]
	if !ok {
		agg = model.Aggregate{ItemID: itemID}
		s.index.insert(itemID, 0)
	}
	agg.Apply(delta, at)
	s.aggs[itemID] = agg
	count := len(s.aggs)
	s.mu.Unlock()

	if !ok {
		metrics.UpdateTrackedItems(count)
	}
	return agg, nil
}

func (s *MemoryStore) SetEngagementScore(_ context.Context, itemID string, score float64, at time.Time) error {
	if err := validateIDs(itemID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	agg, ok := s.aggs[itemID]
	if !ok {
		agg = model.Aggregate{ItemID: itemID, CreatedAt: at}
		s.index.insert(itemID, score)
	} else {
		s.index.move(itemID, agg.EngagementScore, score)
	}
	agg.EngagementScore = score
	agg.LastUpdated = at
	s.aggs[itemID] = agg
	return nil
}

func (s *MemoryStore) TopN(_ context.Context, n int) ([]model.Aggregate, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.index.top(n)
	out := make([]model.Aggregate, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.aggs[id])
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aggs)
}

// Close marks the store closed; later calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.log.Debug(context.Background(), "memory store closed", logger.Int("aggregates", len(s.aggs)))
	return nil
}
