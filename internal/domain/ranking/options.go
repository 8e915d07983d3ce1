// Package ranking orders content items for a feed from their engagement aggregates.
package ranking

import "time"

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithClock sets the time source used for item age. Tests freeze it.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHalfLife sets the recency half-life in days.
func WithHalfLife(days float64) Option {
	return func(s *Scorer) {
		if days > 0 {
			s.halfLifeDays = days
		}
	}
}

// WithMaxRecencyBoost sets the recency value of a brand-new item.
func WithMaxRecencyBoost(boost float64) Option {
	return func(s *Scorer) {
		if boost > 0 {
			s.maxRecencyBoost = boost
		}
	}
}

// WithEngagementWeight sets the weight of normalized engagement in the base score.
func WithEngagementWeight(w float64) Option {
	return func(s *Scorer) {
		if w >= 0 {
			s.engagementWeight = w
		}
	}
}

// WithRecencyWeight sets the weight of recency in the base score.
func WithRecencyWeight(w float64) Option {
	return func(s *Scorer) {
		if w >= 0 {
			s.recencyWeight = w
		}
	}
}

// WithFollowBoost sets the multiplier for items by followed authors.
func WithFollowBoost(boost float64) Option {
	return func(s *Scorer) {
		if boost > 0 {
			s.followBoost = boost
		}
	}
}

// WithPlaceholderTag sets the tag that marks synthetic items.
func WithPlaceholderTag(tag string) Option {
	return func(s *Scorer) {
		if tag != "" {
			s.placeholderTag = tag
		}
	}
}

// WithScoreFloor sets the minimum final score of a real item.
func WithScoreFloor(floor float64) Option {
	return func(s *Scorer) {
		if floor > 0 {
			s.floor = floor
		}
	}
}
