package ranking

import (
	"math"
	"sort"
	"time"
	"unicode/utf16"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
)

// Default scorer configuration constants.
const (
	DefaultPlaceholderTag = "placeholder"

	defaultHalfLifeDays     = 7.0
	defaultMaxRecencyBoost  = 1.0
	defaultEngagementWeight = 0.7
	defaultRecencyWeight    = 0.3
	defaultFollowBoost      = 1.5
	defaultScoreFloor       = 1.0
	engagementCap           = 100.0
	finalScoreDecimals      = 3
	hoursPerDay             = 24

	jitterModulus = 200
	jitterOffset  = 100
	jitterScale   = 1000
)

// Breakdown exposes every intermediate value of one item's score.
type Breakdown struct {
	Placeholder          bool    `json:"placeholder"`
	EngagementScore      float64 `json:"engagement_score"`
	NormalizedEngagement float64 `json:"normalized_engagement"`
	AgeDays              float64 `json:"age_days"`
	Recency              float64 `json:"recency"`
	Base                 float64 `json:"base"`
	Followed             bool    `json:"followed"`
	Boosted              float64 `json:"boosted"`
	Jitter               float64 `json:"jitter"`
	Final                float64 `json:"final"`
}

// Scorer ranks content items. It holds only configuration and is safe for
// concurrent use.
type Scorer struct {
	now              func() time.Time
	halfLifeDays     float64
	maxRecencyBoost  float64
	engagementWeight float64
	recencyWeight    float64
	followBoost      float64
	placeholderTag   string
	floor            float64
}

// NewScorer creates a scorer with the reference constants unless overridden.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		now:              time.Now,
		halfLifeDays:     defaultHalfLifeDays,
		maxRecencyBoost:  defaultMaxRecencyBoost,
		engagementWeight: defaultEngagementWeight,
		recencyWeight:    defaultRecencyWeight,
		followBoost:      defaultFollowBoost,
		placeholderTag:   DefaultPlaceholderTag,
		floor:            defaultScoreFloor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceholderTag returns the tag treated as the placeholder sentinel.
func (s *Scorer) PlaceholderTag() string { return s.placeholderTag }

// ScoreArtworks scores every item against its aggregate. Items without an
// aggregate are scored as if nothing happened yet. The input is not modified.
// It panics on an item without an id.
func (s *Scorer) ScoreArtworks(items []model.ContentItem, aggregates map[string]model.Aggregate, followed map[string]struct{}) []model.ScoredItem {
	now := s.now()
	out := make([]model.ScoredItem, len(items))
	for i, item := range items {
		b := s.explainAt(now, item, aggregates, followed)
		out[i] = model.ScoredItem{
			ContentItem:     item,
			EngagementScore: b.EngagementScore,
			FinalScore:      b.Final,
			Placeholder:     b.Placeholder,
		}
	}
	return out
}

// Explain returns the full breakdown for a single item.
func (s *Scorer) Explain(item model.ContentItem, aggregates map[string]model.Aggregate, followed map[string]struct{}) Breakdown {
	return s.explainAt(s.now(), item, aggregates, followed)
}

func (s *Scorer) explainAt(now time.Time, item model.ContentItem, aggregates map[string]model.Aggregate, followed map[string]struct{}) Breakdown {
	if item.ID == "" {
		panic("ranking: content item without id")
	}
	if item.IsPlaceholder(s.placeholderTag) {
		return Breakdown{Placeholder: true}
	}

	agg, ok := aggregates[item.ID]
	if !ok {
		agg = model.Aggregate{ItemID: item.ID, TotalLikes: item.Likes}
	}

	var b Breakdown
	b.EngagementScore = agg.EngagementScore
	b.NormalizedEngagement = math.Max(0, math.Min(agg.EngagementScore, engagementCap)) / engagementCap

	b.AgeDays = now.Sub(item.CreatedAt).Hours() / hoursPerDay
	if b.AgeDays < 0 {
		b.AgeDays = 0
	}
	b.Recency = s.Recency(b.AgeDays)

	b.Base = b.NormalizedEngagement*s.engagementWeight + b.Recency*s.recencyWeight
	b.Boosted = b.Base
	if followed != nil {
		if _, ok := followed[item.AuthorID]; ok {
			b.Followed = true
			b.Boosted = b.Base * s.followBoost
		}
	}

	b.Jitter = Jitter(item.ID)
	score := b.Boosted * (1 + b.Jitter)
	if score < s.floor {
		score = s.floor
	}
	b.Final = scoring.Round(score, finalScoreDecimals)
	return b
}

// Recency is an exponential decay of item age: 1.0 when new, half of that
// after one half-life, clamped to [0, 1].
func (s *Scorer) Recency(ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	r := s.maxRecencyBoost * math.Exp(-math.Ln2/s.halfLifeDays*ageDays)
	return math.Max(0, math.Min(1, r))
}

// Jitter derives a stable value in [-0.1, 0.1] from an item id: the sum of its
// UTF-16 code units mod 200, shifted by -100 and divided by 1000.
func Jitter(id string) float64 {
	sum := 0
	for _, u := range utf16.Encode([]rune(id)) {
		sum += int(u)
	}
	return float64(sum%jitterModulus-jitterOffset) / jitterScale
}

// SortByScore returns a sorted copy: real items before placeholders, then
// final score, engagement score and creation time, all descending.
func (s *Scorer) SortByScore(items []model.ScoredItem) []model.ScoredItem {
	out := make([]model.ScoredItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ap, bp := s.isPlaceholder(a), s.isPlaceholder(b)
		if ap != bp {
			return bp
		}
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.EngagementScore != b.EngagementScore {
			return a.EngagementScore > b.EngagementScore
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}

func (s *Scorer) isPlaceholder(it model.ScoredItem) bool {
	return it.Placeholder || it.IsPlaceholder(s.placeholderTag)
}
