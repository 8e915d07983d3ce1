package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS aggregates (
	item_id            TEXT PRIMARY KEY,
	total_view_time_ms INTEGER NOT NULL DEFAULT 0,
	total_views        INTEGER NOT NULL DEFAULT 0,
	total_likes        INTEGER NOT NULL DEFAULT 0,
	total_clicks       INTEGER NOT NULL DEFAULT 0,
	engagement_score   REAL    NOT NULL DEFAULT 0,
	last_updated       INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_aggregates_score ON aggregates (engagement_score DESC, item_id ASC);
CREATE TABLE IF NOT EXISTS user_engagement (
	user_id      TEXT    NOT NULL,
	item_id      TEXT    NOT NULL,
	view_time_ms INTEGER NOT NULL DEFAULT 0,
	last_viewed  INTEGER NOT NULL DEFAULT 0,
	liked        INTEGER NOT NULL DEFAULT 0,
	clicked      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, item_id)
);`

const aggregateColumns = `item_id, total_view_time_ms, total_views, total_likes, total_clicks, engagement_score, last_updated, created_at`

// SQLiteStore persists engagement state in a SQLite database.
type SQLiteStore struct {
	db           *sql.DB
	log          logger.Logger
	maxBatchRead int
	closed       atomic.Bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, log: o.log.Named("sqlite_store"), maxBatchRead: o.maxBatchRead}, nil
}

func (s *SQLiteStore) GetAggregate(ctx context.Context, itemID string) (model.Aggregate, error) {
	if err := s.check(itemID); err != nil {
		return model.Aggregate{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+aggregateColumns+` FROM aggregates WHERE item_id = ?`, itemID)
	agg, err := scanAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Aggregate{}, ErrNotFound
	}
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("get aggregate: %w", err)
	}
	return agg, nil
}

func (s *SQLiteStore) GetAggregates(ctx context.Context, ids []string) (map[string]model.Aggregate, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateBatch(ids, s.maxBatchRead); err != nil {
		return nil, err
	}
	out := make(map[string]model.Aggregate, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+aggregateColumns+` FROM aggregates WHERE item_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get aggregates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out[agg.ItemID] = agg
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetUserEngagement(ctx context.Context, userID, itemID string) (model.UserEngagement, error) {
	if err := s.check(userID, itemID); err != nil {
		return model.UserEngagement{}, err
	}
	ue, err := getUser(ctx, s.db, userID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserEngagement{}, ErrNotFound
	}
	if err != nil {
		return model.UserEngagement{}, fmt.Errorf("get user engagement: %w", err)
	}
	return ue, nil
}

func (s *SQLiteStore) AddUserViewTime(ctx context.Context, userID, itemID string, ms int64, at time.Time) error {
	if err := s.check(userID, itemID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO user_engagement (user_id, item_id, view_time_ms, last_viewed) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, item_id) DO UPDATE SET
	view_time_ms = view_time_ms + excluded.view_time_ms,
	last_viewed  = excluded.last_viewed`,
		userID, itemID, ms, toNanos(at))
	if err != nil {
		return fmt.Errorf("add user view time: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetUserLiked(ctx context.Context, userID, itemID string, liked bool, _ time.Time) (bool, error) {
	if err := s.check(userID, itemID); err != nil {
		return false, err
	}
	var prev bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ue, err := getUser(ctx, tx, userID, itemID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		prev = ue.Liked
		_, err = tx.ExecContext(ctx, `
INSERT INTO user_engagement (user_id, item_id, liked) VALUES (?, ?, ?)
ON CONFLICT (user_id, item_id) DO UPDATE SET liked = excluded.liked`,
			userID, itemID, liked)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("set user liked: %w", err)
	}
	return prev, nil
}

func (s *SQLiteStore) MarkUserClicked(ctx context.Context, userID, itemID string, _ time.Time) error {
	if err := s.check(userID, itemID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO user_engagement (user_id, item_id, clicked) VALUES (?, ?, 1)
ON CONFLICT (user_id, item_id) DO UPDATE SET clicked = 1`,
		userID, itemID)
	if err != nil {
		return fmt.Errorf("mark user clicked: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Increment(ctx context.Context, itemID string, delta model.Counters, at time.Time) (model.Aggregate, error) {
	if err := s.check(itemID); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanAggregate(tx.QueryRowContext(ctx,
			`SELECT `+aggregateColumns+` FROM aggregates WHERE item_id = ?`, itemID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			cur = model.Aggregate{ItemID: itemID}
		case err != nil:
			return err
		}
		cur.Apply(delta, at)
		agg = cur
		return upsertAggregate(ctx, tx, cur)
	})
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("increment aggregate: %w", err)
	}
	return agg, nil
}

func (s *SQLiteStore) SetEngagementScore(ctx context.Context, itemID string, score float64, at time.Time) error {
	if err := s.check(itemID); err != nil {
		return err
	}
	ts := toNanos(at)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO aggregates (item_id, engagement_score, last_updated, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (item_id) DO UPDATE SET
	engagement_score = excluded.engagement_score,
	last_updated     = excluded.last_updated`,
		itemID, score, ts, ts)
	if err != nil {
		return fmt.Errorf("set engagement score: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TopN(ctx context.Context, n int) ([]model.Aggregate, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+aggregateColumns+` FROM aggregates ORDER BY engagement_score DESC, item_id ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top aggregates: %w", err)
	}
	defer rows.Close()

	out := make([]model.Aggregate, 0, n)
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) int {
	if s.closed.Load() {
		return 0
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aggregates`).Scan(&n); err != nil {
		s.log.Warn(ctx, "count aggregates failed", logger.Error(err))
		return 0
	}
	return n
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) check(ids ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return validateIDs(ids...)
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanAggregate(r rowScanner) (model.Aggregate, error) {
	var (
		agg           model.Aggregate
		updated, born int64
	)
	err := r.Scan(&agg.ItemID, &agg.TotalViewTimeMS, &agg.TotalViews, &agg.TotalLikes,
		&agg.TotalClicks, &agg.EngagementScore, &updated, &born)
	if err != nil {
		return model.Aggregate{}, err
	}
	agg.LastUpdated = fromNanos(updated)
	agg.CreatedAt = fromNanos(born)
	return agg, nil
}

func getUser(ctx context.Context, q queryRower, userID, itemID string) (model.UserEngagement, error) {
	ue := model.UserEngagement{UserID: userID, ItemID: itemID}
	var viewed int64
	err := q.QueryRowContext(ctx,
		`SELECT view_time_ms, last_viewed, liked, clicked FROM user_engagement WHERE user_id = ? AND item_id = ?`,
		userID, itemID).Scan(&ue.ViewTimeMS, &viewed, &ue.Liked, &ue.Clicked)
	if err != nil {
		return ue, err
	}
	ue.LastViewed = fromNanos(viewed)
	return ue, nil
}

func upsertAggregate(ctx context.Context, tx *sql.Tx, agg model.Aggregate) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO aggregates (`+aggregateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (item_id) DO UPDATE SET
	total_view_time_ms = excluded.total_view_time_ms,
	total_views        = excluded.total_views,
	total_likes        = excluded.total_likes,
	total_clicks       = excluded.total_clicks,
	last_updated       = excluded.last_updated`,
		agg.ItemID, agg.TotalViewTimeMS, agg.TotalViews, agg.TotalLikes, agg.TotalClicks,
		agg.EngagementScore, toNanos(agg.LastUpdated), toNanos(agg.CreatedAt))
	return err
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
