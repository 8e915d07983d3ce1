// Package types contains response shapes shared by the service and its transports.
package types

import (
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/ranking"
)

// FeedRequest is one feed to rank.
type FeedRequest struct {
	Items    []model.ContentItem
	Followed []string // author ids the viewer follows

	Sort      bool
	Diversify bool
	// DiversityPenalty overrides the service default when set.
	DiversityPenalty *float64
	Explain          bool
}

// TrendingEntry is one row of the trending list.
type TrendingEntry struct {
	Rank            int     `json:"rank"`
	ItemID          string  `json:"item_id"`
	EngagementScore float64 `json:"engagement_score"`
	TotalViews      int64   `json:"total_views"`
	TotalLikes      int64   `json:"total_likes"`
	TotalClicks     int64   `json:"total_clicks"`
}

// RankedItem is one slot of a ranked feed.
type RankedItem struct {
	Position        int                `json:"position"`
	ItemID          string             `json:"item_id"`
	AuthorID        string             `json:"author_id"`
	EngagementScore float64            `json:"engagement_score"`
	FinalScore      float64            `json:"final_score"`
	Placeholder     bool               `json:"placeholder,omitempty"`
	Explain         *ranking.Breakdown `json:"explain,omitempty"`
}
