package tracker

import (
	"context"
	"time"
)

// UserTracker is a Tracker bound to one user, for request-scoped callers that
// already resolved who the user is. An empty user id makes every call a no-op.
type UserTracker struct {
	t      *Tracker
	userID string
}

// ForUser binds the tracker to userID.
func (t *Tracker) ForUser(userID string) *UserTracker {
	return &UserTracker{t: t, userID: userID}
}

// UserID returns the bound user.
func (u *UserTracker) UserID() string { return u.userID }

func (u *UserTracker) StartTracking(itemID string) { u.t.StartTracking(u.userID, itemID) }

func (u *UserTracker) StopTracking(itemID string) { u.t.StopTracking(u.userID, itemID) }

func (u *UserTracker) RecordView(itemID string, d time.Duration) {
	u.t.RecordView(u.userID, itemID, d)
}

func (u *UserTracker) RecordLike(ctx context.Context, itemID string, liked bool) {
	u.t.RecordLike(ctx, u.userID, itemID, liked)
}

func (u *UserTracker) RecordClick(ctx context.Context, itemID string) {
	u.t.RecordClick(ctx, u.userID, itemID)
}
