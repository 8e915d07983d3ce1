package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
)

// Key prefixes for BadgerDB storage.
const (
	aggregateKeyPrefix = "agg:"
	userKeyPrefix      = "user:"

	conflictRetries = 5
)

// BadgerStore persists engagement state in an embedded BadgerDB.
type BadgerStore struct {
	db           *badger.DB
	log          logger.Logger
	maxBatchRead int
	closed       atomic.Bool
	writeMu      sync.Mutex
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens a BadgerDB at dir. An empty dir opens an in-memory database.
func NewBadgerStore(dir string, opts ...Option) (*BadgerStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, log: o.log.Named("badger_store"), maxBatchRead: o.maxBatchRead}, nil
}

func aggregateKey(itemID string) []byte { return []byte(aggregateKeyPrefix + itemID) }

func userEngagementKey(userID, itemID string) []byte {
	return []byte(userKeyPrefix + userID + "\x00" + itemID)
}

func (s *BadgerStore) GetAggregate(_ context.Context, itemID string) (model.Aggregate, error) {
	if err := s.check(itemID); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, aggregateKey(itemID), &agg)
	})
	if err != nil {
		return model.Aggregate{}, err
	}
	return agg, nil
}

func (s *BadgerStore) GetAggregates(_ context.Context, ids []string) (map[string]model.Aggregate, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateBatch(ids, s.maxBatchRead); err != nil {
		return nil, err
	}
	out := make(map[string]model.Aggregate, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var agg model.Aggregate
			err := getJSON(txn, aggregateKey(id), &agg)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[id] = agg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) GetUserEngagement(_ context.Context, userID, itemID string) (model.UserEngagement, error) {
	if err := s.check(userID, itemID); err != nil {
		return model.UserEngagement{}, err
	}
	var ue model.UserEngagement
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userEngagementKey(userID, itemID), &ue)
	})
	if err != nil {
		return model.UserEngagement{}, err
	}
	return ue, nil
}

func (s *BadgerStore) AddUserViewTime(_ context.Context, userID, itemID string, ms int64, at time.Time) error {
	return s.updateUser(userID, itemID, func(ue *model.UserEngagement) {
		ue.ViewTimeMS += ms
		ue.LastViewed = at
	})
}

func (s *BadgerStore) SetUserLiked(_ context.Context, userID, itemID string, liked bool, _ time.Time) (bool, error) {
	var prev bool
	err := s.updateUser(userID, itemID, func(ue *model.UserEngagement) {
		prev = ue.Liked
		ue.Liked = liked
	})
	return prev, err
}

func (s *BadgerStore) MarkUserClicked(_ context.Context, userID, itemID string, _ time.Time) error {
	return s.updateUser(userID, itemID, func(ue *model.UserEngagement) {
		ue.Clicked = true
	})
}

func (s *BadgerStore) updateUser(userID, itemID string, fn func(*model.UserEngagement)) error {
	if err := s.check(userID, itemID); err != nil {
		return err
	}
	key := userEngagementKey(userID, itemID)
	return s.update(func(txn *badger.Txn) error {
		ue := model.UserEngagement{UserID: userID, ItemID: itemID}
		if err := getJSON(txn, key, &ue); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		fn(&ue)
		return setJSON(txn, key, ue)
	})
}

func (s *BadgerStore) Increment(_ context.Context, itemID string, delta model.Counters, at time.Time) (model.Aggregate, error) {
	if err := s.check(itemID); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	key := aggregateKey(itemID)
	err := s.update(func(txn *badger.Txn) error {
		cur := model.Aggregate{ItemID: itemID}
		if err := getJSON(txn, key, &cur); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		cur.Apply(delta, at)
		agg = cur
		return setJSON(txn, key, cur)
	})
	if err != nil {
		return model.Aggregate{}, err
	}
	return agg, nil
}

func (s *BadgerStore) SetEngagementScore(_ context.Context, itemID string, score float64, at time.Time) error {
	if err := s.check(itemID); err != nil {
		return err
	}
	key := aggregateKey(itemID)
	return s.update(func(txn *badger.Txn) error {
		cur := model.Aggregate{ItemID: itemID, CreatedAt: at}
		if err := getJSON(txn, key, &cur); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		cur.EngagementScore = score
		cur.LastUpdated = at
		return setJSON(txn, key, cur)
	})
}

// TopN scans every aggregate; Badger keeps no secondary index.
func (s *BadgerStore) TopN(_ context.Context, n int) ([]model.Aggregate, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	var all []model.Aggregate
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(aggregateKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var agg model.Aggregate
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &agg)
			}); err != nil {
				return err
			}
			all = append(all, agg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan aggregates: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		return before(all[i].EngagementScore, all[i].ItemID, all[j].EngagementScore, all[j].ItemID)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *BadgerStore) Count(ctx context.Context) int {
	if s.closed.Load() {
		return 0
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(aggregateKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		s.log.Warn(ctx, "count aggregates failed", logger.Error(err))
		return 0
	}
	return n
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) check(ids ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return validateIDs(ids...)
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *BadgerStore) update(fn func(*badger.Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badger update: %w", err)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return txn.Set(key, data)
}
