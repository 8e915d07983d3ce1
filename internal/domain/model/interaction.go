package model

import "time"

// InteractionKind names a user signal on a content item.
type InteractionKind string

// Interaction kinds accepted by the ingestion path.
const (
	KindViewStart InteractionKind = "view_start"
	KindViewStop  InteractionKind = "view_stop"
	KindView      InteractionKind = "view" // client-measured duration
	KindLike      InteractionKind = "like"
	KindUnlike    InteractionKind = "unlike"
	KindClick     InteractionKind = "click"
)

// Valid reports whether k is a known kind.
func (k InteractionKind) Valid() bool {
	switch k {
	case KindViewStart, KindViewStop, KindView, KindLike, KindUnlike, KindClick:
		return true
	}
	return false
}

// Interaction is one client event flowing through the queue to the tracker.
type Interaction struct {
	EventID    string          // unique id for idempotency
	UserID     string          // empty for guests
	ItemID     string          // content item identifier
	Kind       InteractionKind // what happened
	DurationMS int64           // only for KindView
	TS         time.Time       // client timestamp
}
