package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/davenby/taskpilot/internal/agent"
	"github.com/davenby/taskpilot/internal/auth"
	"github.com/davenby/taskpilot/internal/usage"
)

// recordUsage persists a turn's token usage. Tracking is optional and
// best-effort; a failed insert never fails the chat turn.
func (s *Server) recordUsage(r *http.Request, ownerID, conversationID string, result *agent.Result) {
	if s.usage == nil {
		return
	}

	err := s.usage.Record(r.Context(), usage.Record{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Model:          s.loop.Model(),
		InputTokens:    result.InputTokens,
		OutputTokens:   result.OutputTokens,
		Outcome:        string(result.Outcome),
	})
	if err != nil {
		s.logger.Warn("usage record failed", "error", err)
	}
}

// handleUsage returns the caller's token usage totals. The window
// defaults to the last 30 days; ?days=N narrows or widens it.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusNotFound, "usage tracking is not enabled")
		return
	}

	ownerID := auth.OwnerID(r.Context())

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			s.errorResponse(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	end := time.Now().Add(time.Minute)
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	summary, err := s.usage.OwnerSummary(ownerID, start, end)
	if err != nil {
		s.storeError(w, err)
		return
	}
	byOutcome, err := s.usage.SummaryByOutcome(ownerID, start, end)
	if err != nil {
		s.storeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"days":       days,
		"summary":    summary,
		"by_outcome": byOutcome,
	})
}

