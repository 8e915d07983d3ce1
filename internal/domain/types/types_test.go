package types_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/okian/feedrank/internal/domain/ranking"
	types "github.com/okian/feedrank/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRankedItemJSON(t *testing.T) {
	Convey("Given a ranked item", t, func() {
		item := types.RankedItem{Position: 1, ItemID: "art-1", AuthorID: "a", FinalScore: 1.2}

		Convey("When it has no breakdown", func() {
			raw, err := json.Marshal(item)

			Convey("Then explain and placeholder are omitted", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldNotContainSubstring, "explain")
				So(string(raw), ShouldNotContainSubstring, "placeholder")
				So(string(raw), ShouldContainSubstring, `"final_score":1.2`)
			})
		})

		Convey("When a breakdown is attached", func() {
			item.Explain = &ranking.Breakdown{Recency: 0.5, Final: 1.2}
			raw, err := json.Marshal(item)

			Convey("Then it is nested under explain", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `"explain":{`)
				So(string(raw), ShouldContainSubstring, `"recency":0.5`)
			})
		})
	})
}

func TestTrendingEntry(t *testing.T) {
	Convey("Given a zero trending entry", t, func() {
		var e types.TrendingEntry

		Convey("Then every field is zero", func() {
			So(e.Rank, ShouldEqual, 0)
			So(e.ItemID, ShouldEqual, "")
			So(e.EngagementScore, ShouldEqual, 0.0)
		})
	})
}
