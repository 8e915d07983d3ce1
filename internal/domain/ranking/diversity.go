package ranking

import (
	"sort"
	"unicode/utf16"

	"github.com/okian/feedrank/internal/domain/model"
)

// DefaultDiversityPenalty is the per-slot penalty used by feeds.
const DefaultDiversityPenalty = 0.15

const (
	authorWindow      = 3
	imageWindow       = 5
	imagePenaltyScale = 2
	imageKeyLength    = 100
	diversityFloor    = 0.01
)

// ApplyDiversityBoost spaces out runs of the same author or image.
//
// Items are walked once in final-score order. An author seen d < 3 slots ago
// costs penalty*(3-d); an image key seen d < 5 slots ago costs
// 2*penalty*(5-d). Adjusted scores are floored at 0.01. The walk order is
// never revised after a penalty, so the output keeps score order and only the
// reported scores change.
func ApplyDiversityBoost(items []model.ScoredItem, penalty float64) []model.ScoredItem {
	sorted := make([]model.ScoredItem, len(items))
	copy(sorted, items)
	if len(sorted) <= 1 {
		return sorted
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FinalScore > sorted[j].FinalScore
	})

	out := make([]model.ScoredItem, 0, len(sorted))
	lastAuthor := make(map[string]int, len(sorted))
	lastImage := make(map[string]int, len(sorted))

	for _, it := range sorted {
		pos := len(out)
		score := it.FinalScore

		if it.AuthorID != "" {
			if seen, ok := lastAuthor[it.AuthorID]; ok {
				if d := pos - seen; d < authorWindow {
					score -= penalty * float64(authorWindow-d)
				}
			}
		}

		key := imageKey(it.ImageURL)
		if key != "" {
			if seen, ok := lastImage[key]; ok {
				if d := pos - seen; d < imageWindow {
					score -= penalty * imagePenaltyScale * float64(imageWindow-d)
				}
			}
		}

		if score < diversityFloor {
			score = diversityFloor
		}
		it.FinalScore = score
		out = append(out, it)

		if it.AuthorID != "" {
			lastAuthor[it.AuthorID] = pos
		}
		if key != "" {
			lastImage[key] = pos
		}
	}
	return out
}

// imageKey truncates an image URL to its first 100 UTF-16 code units so
// variant suffixes of the same asset collide. Units match Jitter.
func imageKey(url string) string {
	if len(url) <= imageKeyLength {
		return url
	}
	units := utf16.Encode([]rune(url))
	if len(units) <= imageKeyLength {
		return url
	}
	return string(utf16.Decode(units[:imageKeyLength]))
}
