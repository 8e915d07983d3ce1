package ranking_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var frozen = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newScorer(opts ...ranking.Option) *ranking.Scorer {
	opts = append([]ranking.Option{ranking.WithClock(func() time.Time { return frozen })}, opts...)
	return ranking.NewScorer(opts...)
}

func TestScoreArtworks(t *testing.T) {
	Convey("Given a scorer with a frozen clock", t, func() {
		s := newScorer()

		Convey("When an item carries the placeholder tag", func() {
			items := []model.ContentItem{{ID: "p1", AuthorID: "a", CreatedAt: frozen, Tags: []string{"featured", "placeholder"}}}
			aggs := map[string]model.Aggregate{"p1": {ItemID: "p1", EngagementScore: 90}}
			out := s.ScoreArtworks(items, aggs, nil)

			Convey("Then both scores are zero", func() {
				So(out, ShouldHaveLength, 1)
				So(out[0].Placeholder, ShouldBeTrue)
				So(out[0].FinalScore, ShouldEqual, 0)
				So(out[0].EngagementScore, ShouldEqual, 0)
			})
		})

		Convey("When items have little or no engagement", func() {
			items := []model.ContentItem{
				{ID: "fresh", CreatedAt: frozen},
				{ID: "old", CreatedAt: frozen.Add(-365 * 24 * time.Hour)},
				{ID: "liked", CreatedAt: frozen, Likes: 40},
			}
			out := s.ScoreArtworks(items, map[string]model.Aggregate{}, nil)

			Convey("Then every real item is floored at 1.0", func() {
				for _, it := range out {
					So(it.FinalScore, ShouldBeGreaterThanOrEqualTo, 1.0)
					So(it.EngagementScore, ShouldEqual, 0)
				}
			})
		})

		Convey("When the author is followed", func() {
			item := model.ContentItem{ID: "abc", AuthorID: "artist", CreatedAt: frozen}
			aggs := map[string]model.Aggregate{"abc": {ItemID: "abc", EngagementScore: 250}}
			followed := map[string]struct{}{"artist": {}}

			b := s.Explain(item, aggs, followed)

			Convey("Then the base is multiplied by exactly 1.5", func() {
				So(b.NormalizedEngagement, ShouldEqual, 1.0)
				So(b.Base, ShouldAlmostEqual, 1.0, 1e-12)
				So(b.Followed, ShouldBeTrue)
				So(b.Boosted, ShouldEqual, b.Base*1.5)
			})

			Convey("And jitter is applied before rounding to three decimals", func() {
				So(b.Jitter, ShouldEqual, -0.006)
				So(b.Final, ShouldEqual, 1.491)
				out := s.ScoreArtworks([]model.ContentItem{item}, aggs, followed)
				So(out[0].FinalScore, ShouldEqual, b.Final)
				So(out[0].EngagementScore, ShouldEqual, 250)
			})

			Convey("And an unfollowed author gets no boost", func() {
				plain := s.Explain(item, aggs, nil)
				So(plain.Followed, ShouldBeFalse)
				So(plain.Boosted, ShouldEqual, plain.Base)
			})
		})

		Convey("When the same inputs are scored twice", func() {
			items := make([]model.ContentItem, 0, 20)
			aggs := make(map[string]model.Aggregate)
			for i := 0; i < 20; i++ {
				id := fmt.Sprintf("item-%d", i)
				items = append(items, model.ContentItem{ID: id, AuthorID: "a", CreatedAt: frozen.Add(-time.Duration(i) * time.Hour)})
				aggs[id] = model.Aggregate{ItemID: id, EngagementScore: float64(i * 7)}
			}

			Convey("Then the results are identical", func() {
				So(s.ScoreArtworks(items, aggs, nil), ShouldResemble, s.ScoreArtworks(items, aggs, nil))
			})
		})

		Convey("When an item has no id", func() {
			Convey("Then scoring panics", func() {
				So(func() { s.ScoreArtworks([]model.ContentItem{{AuthorID: "a"}}, nil, nil) }, ShouldPanic)
			})
		})

		Convey("When the item is from the future", func() {
			b := s.Explain(model.ContentItem{ID: "f", CreatedAt: frozen.Add(time.Hour)}, nil, nil)

			Convey("Then its age is clamped to zero", func() {
				So(b.AgeDays, ShouldEqual, 0)
				So(b.Recency, ShouldEqual, 1.0)
			})
		})
	})
}

func TestScorerOptions(t *testing.T) {
	Convey("Given a scorer with a custom placeholder tag and floor", t, func() {
		s := newScorer(ranking.WithPlaceholderTag("demo"), ranking.WithScoreFloor(0.1))

		Convey("Then only the custom tag marks placeholders", func() {
			out := s.ScoreArtworks([]model.ContentItem{
				{ID: "x", CreatedAt: frozen, Tags: []string{"placeholder"}},
				{ID: "y", CreatedAt: frozen, Tags: []string{"demo"}},
			}, nil, nil)
			So(out[0].Placeholder, ShouldBeFalse)
			So(out[1].Placeholder, ShouldBeTrue)
			So(s.PlaceholderTag(), ShouldEqual, "demo")
		})

		Convey("Then the lower floor lets recency show through", func() {
			b := s.Explain(model.ContentItem{ID: "a", CreatedAt: frozen}, nil, nil)
			So(b.Final, ShouldEqual, 0.299)
		})
	})
}

func TestRecency(t *testing.T) {
	Convey("Given the default half-life", t, func() {
		s := newScorer()

		So(s.Recency(0), ShouldEqual, 1.0)
		So(s.Recency(7), ShouldAlmostEqual, 0.5, 1e-9)
		So(s.Recency(14), ShouldAlmostEqual, 0.25, 1e-9)
		So(s.Recency(-3), ShouldEqual, 1.0)

		Convey("And a one-day half-life", func() {
			short := newScorer(ranking.WithHalfLife(1))
			So(short.Recency(1), ShouldAlmostEqual, 0.5, 1e-9)
		})
	})
}

func TestJitter(t *testing.T) {
	Convey("Given item ids", t, func() {
		So(ranking.Jitter("a"), ShouldEqual, -0.003)
		So(ranking.Jitter("abc"), ShouldEqual, -0.006)
		So(ranking.Jitter(""), ShouldEqual, -0.1)

		Convey("Then characters outside the BMP count as two code units", func() {
			So(ranking.Jitter("\U0001F600"), ShouldEqual, 0.089)
		})

		Convey("Then every value stays within ten percent", func() {
			for i := 0; i < 500; i++ {
				j := ranking.Jitter(fmt.Sprintf("artwork-%d", i))
				So(j, ShouldBeBetweenOrEqual, -0.1, 0.1)
			}
		})
	})
}

func TestSortByScore(t *testing.T) {
	Convey("Given scored items in arbitrary order", t, func() {
		s := newScorer()
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "ph", Tags: []string{"placeholder"}}, Placeholder: true},
			{ContentItem: model.ContentItem{ID: "low", CreatedAt: frozen}, FinalScore: 1.0, EngagementScore: 5},
			{ContentItem: model.ContentItem{ID: "high", CreatedAt: frozen}, FinalScore: 1.4},
			{ContentItem: model.ContentItem{ID: "tie-eng", CreatedAt: frozen}, FinalScore: 1.0, EngagementScore: 9},
			{ContentItem: model.ContentItem{ID: "tie-new", CreatedAt: frozen.Add(time.Hour)}, FinalScore: 1.0, EngagementScore: 5},
			{ContentItem: model.ContentItem{ID: "tagged", Tags: []string{"placeholder"}}, FinalScore: 3},
		}

		out := s.SortByScore(items)

		Convey("Then real items come first ordered by score, engagement and recency", func() {
			ids := make([]string, len(out))
			for i, it := range out {
				ids[i] = it.ID
			}
			So(ids[:4], ShouldResemble, []string{"high", "tie-eng", "tie-new", "low"})
			So(ids[4:], ShouldResemble, []string{"tagged", "ph"})
		})

		Convey("And the input slice is left untouched", func() {
			So(items[0].ID, ShouldEqual, "ph")
			So(items[1].ID, ShouldEqual, "low")
		})
	})
}

func TestApplyDiversityBoost(t *testing.T) {
	Convey("Given consecutive items by the same author", t, func() {
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "b1", AuthorID: "b"}, FinalScore: 8},
			{ContentItem: model.ContentItem{ID: "a1", AuthorID: "a"}, FinalScore: 10},
			{ContentItem: model.ContentItem{ID: "a2", AuthorID: "a"}, FinalScore: 9},
		}

		out := ranking.ApplyDiversityBoost(items, ranking.DefaultDiversityPenalty)

		Convey("Then the repeat is penalized by distance and order is kept", func() {
			So(out[0].ID, ShouldEqual, "a1")
			So(out[0].FinalScore, ShouldEqual, 10)
			So(out[1].ID, ShouldEqual, "a2")
			So(out[1].FinalScore, ShouldAlmostEqual, 8.7, 1e-9)
			So(out[2].ID, ShouldEqual, "b1")
			So(out[2].FinalScore, ShouldEqual, 8)
		})

		Convey("And the input is not modified", func() {
			So(items[2].FinalScore, ShouldEqual, 9)
			So(items[0].ID, ShouldEqual, "b1")
		})
	})

	Convey("Given an author repeated two slots later", t, func() {
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "a1", AuthorID: "a"}, FinalScore: 5},
			{ContentItem: model.ContentItem{ID: "b1", AuthorID: "b"}, FinalScore: 4},
			{ContentItem: model.ContentItem{ID: "a2", AuthorID: "a"}, FinalScore: 3},
			{ContentItem: model.ContentItem{ID: "c1", AuthorID: "c"}, FinalScore: 2},
			{ContentItem: model.ContentItem{ID: "d1", AuthorID: "d"}, FinalScore: 1.5},
			{ContentItem: model.ContentItem{ID: "a3", AuthorID: "a"}, FinalScore: 1},
		}
		out := ranking.ApplyDiversityBoost(items, 0.15)

		Convey("Then the penalty shrinks with distance and vanishes at three", func() {
			So(out[2].FinalScore, ShouldAlmostEqual, 2.85, 1e-9)
			So(out[5].FinalScore, ShouldEqual, 1)
		})
	})

	Convey("Given items sharing an image", t, func() {
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "x1", AuthorID: "a", ImageURL: "https://cdn/img.png"}, FinalScore: 5},
			{ContentItem: model.ContentItem{ID: "x2", AuthorID: "b", ImageURL: "https://cdn/img.png"}, FinalScore: 4},
		}
		out := ranking.ApplyDiversityBoost(items, 0.15)

		Convey("Then the image penalty is doubled", func() {
			So(out[1].FinalScore, ShouldAlmostEqual, 2.8, 1e-9)
		})
	})

	Convey("Given image urls that only differ after 100 characters", t, func() {
		prefix := "https://cdn.example.com/" + strings.Repeat("x", 100)
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "x1", AuthorID: "a", ImageURL: prefix + "?w=100"}, FinalScore: 5},
			{ContentItem: model.ContentItem{ID: "x2", AuthorID: "b", ImageURL: prefix + "?w=400"}, FinalScore: 4},
		}
		out := ranking.ApplyDiversityBoost(items, 0.15)

		Convey("Then they are treated as the same image", func() {
			So(out[1].FinalScore, ShouldAlmostEqual, 2.8, 1e-9)
		})
	})

	Convey("Given image urls whose first 100 UTF-16 units match", t, func() {
		prefix := strings.Repeat("\U0001F3A8", 50)
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "x1", AuthorID: "a", ImageURL: prefix + "a"}, FinalScore: 5},
			{ContentItem: model.ContentItem{ID: "x2", AuthorID: "b", ImageURL: prefix + "b"}, FinalScore: 4},
		}
		out := ranking.ApplyDiversityBoost(items, 0.15)

		Convey("Then surrogate pairs count as two characters and the images collide", func() {
			So(out[1].FinalScore, ShouldAlmostEqual, 2.8, 1e-9)
		})
	})

	Convey("Given four items by one author and one by another, in descending score", t, func() {
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "a1", AuthorID: "a"}, FinalScore: 10},
			{ContentItem: model.ContentItem{ID: "a2", AuthorID: "a"}, FinalScore: 9},
			{ContentItem: model.ContentItem{ID: "a3", AuthorID: "a"}, FinalScore: 8},
			{ContentItem: model.ContentItem{ID: "a4", AuthorID: "a"}, FinalScore: 7},
			{ContentItem: model.ContentItem{ID: "b1", AuthorID: "b"}, FinalScore: 6},
		}
		out := ranking.ApplyDiversityBoost(items, ranking.DefaultDiversityPenalty)

		Convey("Then every repeat inside the window loses the adjacent-slot penalty", func() {
			cases := []struct {
				id   string
				want float64
			}{
				{"a1", 10},
				{"a2", 8.7},
				{"a3", 7.7},
				{"a4", 6.7},
				{"b1", 6},
			}
			for i, c := range cases {
				So(out[i].ID, ShouldEqual, c.id)
				So(out[i].FinalScore, ShouldAlmostEqual, c.want, 1e-9)
			}
		})

		Convey("And the penalized author scores keep falling while the other author closes the gap", func() {
			for i := 1; i < 4; i++ {
				So(out[i].FinalScore, ShouldBeLessThan, out[i-1].FinalScore)
				So(out[i].FinalScore, ShouldBeLessThan, items[i].FinalScore)
			}
			So(out[3].FinalScore-out[4].FinalScore, ShouldBeLessThan, items[3].FinalScore-items[4].FinalScore)
		})
	})

	Convey("Given items without author or image", t, func() {
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "n1"}, FinalScore: 3},
			{ContentItem: model.ContentItem{ID: "n2"}, FinalScore: 2},
		}
		out := ranking.ApplyDiversityBoost(items, 0.15)

		Convey("Then nothing is penalized", func() {
			So(out[0].FinalScore, ShouldEqual, 3)
			So(out[1].FinalScore, ShouldEqual, 2)
		})
	})

	Convey("Given a penalty larger than the score", t, func() {
		items := []model.ScoredItem{
			{ContentItem: model.ContentItem{ID: "a1", AuthorID: "a"}, FinalScore: 0.5},
			{ContentItem: model.ContentItem{ID: "a2", AuthorID: "a"}, FinalScore: 0.2},
		}
		out := ranking.ApplyDiversityBoost(items, 0.15)

		Convey("Then the score is floored at 0.01", func() {
			So(out[1].FinalScore, ShouldEqual, 0.01)
		})
	})

	Convey("Given zero or one item", t, func() {
		So(ranking.ApplyDiversityBoost(nil, 0.15), ShouldBeEmpty)
		one := []model.ScoredItem{{ContentItem: model.ContentItem{ID: "x"}, FinalScore: 2}}
		So(ranking.ApplyDiversityBoost(one, 0.15), ShouldResemble, one)
	})
}
