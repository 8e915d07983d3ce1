package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/types"
	"github.com/okian/feedrank/pkg/logger"
)

type feedItem struct {
	ID        string    `json:"id" validate:"required,max=128"`
	AuthorID  string    `json:"author_id" validate:"max=128"`
	CreatedAt time.Time `json:"created_at"`
	ImageURL  string    `json:"image_url" validate:"max=2048"`
	Tags      []string  `json:"tags" validate:"max=32"`
	Likes     int64     `json:"likes" validate:"gte=0"`
}

type feedRequest struct {
	Items            []feedItem `json:"items" validate:"required,min=1,dive"`
	FollowedAuthors  []string   `json:"followed_authors"`
	Sort             *bool      `json:"sort"`
	Diversify        bool       `json:"diversify"`
	DiversityPenalty *float64   `json:"diversity_penalty" validate:"omitempty,gte=0,lte=10"`
	Explain          bool       `json:"explain"`
}

type feedResponse struct {
	Items []types.RankedItem `json:"items"`
}

// handleRankFeed handles POST /feed/rank requests. Items are sorted unless
// the request sets sort to false.
func (s *Server) handleRankFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank_feed"
	var req feedRequest
	if err := s.decode(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Items) > s.maxFeedItems {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, fmt.Errorf("at most %d items per request", s.maxFeedItems)))
		return
	}

	items := make([]model.ContentItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = model.ContentItem{
			ID:        it.ID,
			AuthorID:  it.AuthorID,
			CreatedAt: it.CreatedAt,
			ImageURL:  it.ImageURL,
			Tags:      it.Tags,
			Likes:     it.Likes,
		}
	}

	ranked, err := s.deps.RankFeed(r.Context(), types.FeedRequest{
		Items:            items,
		Followed:         req.FollowedAuthors,
		Sort:             req.Sort == nil || *req.Sort,
		Diversify:        req.Diversify,
		DiversityPenalty: req.DiversityPenalty,
		Explain:          req.Explain,
	})
	if err != nil {
		s.log.Error(r.Context(), "rank feed failed", logger.Int("items", len(items)), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", nil)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Items: ranked})
}
