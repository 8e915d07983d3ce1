package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/feedrank/internal/adapters/mq/queue"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
)

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID    string `json:"event_id" validate:"omitempty,max=128"`
	UserID     string `json:"user_id" validate:"max=128"`
	ItemID     string `json:"item_id" validate:"required,max=128"`
	Kind       string `json:"kind" validate:"required,oneof=view_start view_stop view like unlike click"`
	DurationMS int64  `json:"duration_ms" validate:"gte=0,required_if=Kind view"`
	TS         string `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// handlePostEvent handles POST /events requests.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := s.decode(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if s.limiter != nil && !s.limiter.Allow(limiterKey(req.UserID, r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind(op, ErrRateLimited))
		return
	}

	in := model.Interaction{
		EventID:    req.EventID,
		UserID:     req.UserID,
		ItemID:     req.ItemID,
		Kind:       model.InteractionKind(req.Kind),
		DurationMS: req.DurationMS,
	}
	if in.EventID == "" {
		in.EventID = uuid.NewString()
	}
	if req.TS != "" {
		ts, err := time.Parse(time.RFC3339, req.TS)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		in.TS = ts
	}

	duplicate, err := s.deps.Enqueue(r.Context(), in)
	switch {
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
		return
	case errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	case err != nil:
		s.log.Error(r.Context(), "enqueue failed", logger.String("event_id", in.EventID), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", nil)
		return
	}

	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: in.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: in.EventID})
}
