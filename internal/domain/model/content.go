// Package model contains domain models passed between layers.
package model

import "time"

// ContentItem is a feed entry owned by the content-management side.
// The ranking code reads it and never mutates it.
type ContentItem struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	ImageURL  string    `json:"image_url,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Likes     int64     `json:"likes"` // denormalized like count
}

// IsPlaceholder reports whether the item carries the placeholder tag.
func (c ContentItem) IsPlaceholder(tag string) bool {
	if tag == "" {
		return false
	}
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ScoredItem is a ContentItem decorated with ranking output. Never persisted.
type ScoredItem struct {
	ContentItem
	EngagementScore float64 `json:"engagement_score"`
	FinalScore      float64 `json:"final_score"`
	Placeholder     bool    `json:"placeholder,omitempty"`
}
