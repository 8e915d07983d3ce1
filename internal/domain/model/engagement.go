package model

import "time"

// Counters is a delta applied to an aggregate with an atomic increment.
type Counters struct {
	ViewTimeMS int64
	Views      int64
	Likes      int64
	Clicks     int64
}

// IsZero reports whether the delta changes nothing.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Aggregate holds the accumulated engagement statistics of one item.
type Aggregate struct {
	ItemID          string    `json:"item_id"`
	TotalViewTimeMS int64     `json:"total_view_time_ms"`
	TotalViews      int64     `json:"total_views"`
	TotalLikes      int64     `json:"total_likes"`
	TotalClicks     int64     `json:"total_clicks"`
	EngagementScore float64   `json:"engagement_score"`
	LastUpdated     time.Time `json:"last_updated"`
	CreatedAt       time.Time `json:"created_at"`
}

// Apply adds delta to the aggregate. Like and click totals never go below zero.
func (a *Aggregate) Apply(delta Counters, at time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = at
	}
	a.TotalViewTimeMS += delta.ViewTimeMS
	a.TotalViews += delta.Views
	a.TotalLikes = clampAdd(a.TotalLikes, delta.Likes)
	a.TotalClicks = clampAdd(a.TotalClicks, delta.Clicks)
	a.LastUpdated = at
}

func clampAdd(v, d int64) int64 {
	v += d
	if v < 0 {
		return 0
	}
	return v
}

// UserEngagement is the per user x item record used to avoid double counting.
type UserEngagement struct {
	UserID     string    `json:"user_id"`
	ItemID     string    `json:"item_id"`
	ViewTimeMS int64     `json:"view_time_ms"`
	LastViewed time.Time `json:"last_viewed"`
	Liked      bool      `json:"liked"`
	Clicked    bool      `json:"clicked"`
}
