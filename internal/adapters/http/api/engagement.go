package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/types"
	"github.com/okian/feedrank/pkg/logger"
)

type engagementResponse struct {
	ItemID          string    `json:"item_id"`
	TotalViewTimeMS int64     `json:"total_view_time_ms"`
	TotalViews      int64     `json:"total_views"`
	TotalLikes      int64     `json:"total_likes"`
	TotalClicks     int64     `json:"total_clicks"`
	EngagementScore float64   `json:"engagement_score"`
	LastUpdated     time.Time `json:"last_updated"`
}

type trendingResponse struct {
	Items []types.TrendingEntry `json:"items"`
}

// handleGetEngagement handles GET /items/{itemID}/engagement requests.
func (s *Server) handleGetEngagement(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_engagement"
	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	agg, err := s.deps.Engagement(r.Context(), itemID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "engagement read failed", logger.String("item_id", itemID), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", nil)
		return
	}
	writeJSON(w, http.StatusOK, engagementResponse{
		ItemID:          agg.ItemID,
		TotalViewTimeMS: agg.TotalViewTimeMS,
		TotalViews:      agg.TotalViews,
		TotalLikes:      agg.TotalLikes,
		TotalClicks:     agg.TotalClicks,
		EngagementScore: agg.EngagementScore,
		LastUpdated:     agg.LastUpdated,
	})
}

// handleGetTrending handles GET /trending?limit=N requests.
func (s *Server) handleGetTrending(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trending"
	limit := defaultTrendingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > s.maxTrendingLimit {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, errors.New("limit must be an integer in [1, "+strconv.Itoa(s.maxTrendingLimit)+"]")))
			return
		}
		limit = n
	}

	entries, err := s.deps.Trending(r.Context(), limit)
	if err != nil {
		s.log.Error(r.Context(), "trending read failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", nil)
		return
	}
	writeJSON(w, http.StatusOK, trendingResponse{Items: entries})
}

// handleFlush handles POST /admin/flush requests.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Flush(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "flush failed", logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
