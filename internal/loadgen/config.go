// Package loadgen drives a running feedrank service with randomized
// interactions and checks the trending list it produces.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	NumEvents   int           // Number of interactions to generate
	Users       int           // Distinct user ids
	Items       int           // Distinct item ids
	Duplicates  int           // Events re-sent to exercise idempotency
	Workers     int           // Concurrent submitters
	TopN        int           // Trending entries to fetch
	Timeout     time.Duration // HTTP request timeout
	SettleDelay time.Duration // Wait between submission and flush
	Seed        uint64        // Random seed; zero picks one
	Verbose     bool          // Log progress
}

// Defaults for zero Config fields.
const (
	DefaultBaseURL     = "http://localhost:9080"
	DefaultNumEvents   = 10_000
	DefaultUsers       = 1_000
	DefaultItems       = 200
	DefaultWorkers     = 16
	DefaultTopN        = 10
	DefaultTimeout     = 10 * time.Second
	DefaultSettleDelay = 500 * time.Millisecond
)

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.NumEvents <= 0 {
		c.NumEvents = DefaultNumEvents
	}
	if c.Users <= 0 {
		c.Users = DefaultUsers
	}
	if c.Items <= 0 {
		c.Items = DefaultItems
	}
	if c.Duplicates < 0 {
		c.Duplicates = 0
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
}

// Event mirrors the POST /events request body.
type Event struct {
	EventID    string `json:"event_id"`
	UserID     string `json:"user_id"`
	ItemID     string `json:"item_id"`
	Kind       string `json:"kind"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	TS         string `json:"ts"`
}

// AckResponse is the POST /events response body.
type AckResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// TrendingEntry is one row of GET /trending.
type TrendingEntry struct {
	Rank            int     `json:"rank"`
	ItemID          string  `json:"item_id"`
	EngagementScore float64 `json:"engagement_score"`
	TotalViews      int64   `json:"total_views"`
	TotalLikes      int64   `json:"total_likes"`
	TotalClicks     int64   `json:"total_clicks"`
}

// FlushResult is the POST /admin/flush response body.
type FlushResult struct {
	Attempted int `json:"attempted"`
	Written   int `json:"written"`
	Failed    int `json:"failed"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated int
	EventsSubmitted int
	EventsAccepted  int
	EventsDuplicate int
	EventsThrottled int
	EventsFailed    int
	FlushWritten    int
	TrendingEntries int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
