package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalAnalyses int64            `json:"total_analyses"`
	LastActivity  string           `json:"last_activity"`
	Sentiments    map[string]int64 `json:"sentiments"`
}

// Stats returns totals and the primary sentiment distribution.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.db.CountAnalyses(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count analyses")
		return
	}

	lastActivityTime, err := h.db.GetMostRecentActivity(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get last activity")
		return
	}

	lastActivity := "no activity yet"
	if lastActivityTime != nil {
		lastActivity = formatTimeAgo(*lastActivityTime)
	}

	sentiments, err := h.db.SentimentCounts(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count sentiments")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalAnalyses: total,
		LastActivity:  lastActivity,
		Sentiments:    sentiments,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return strconv.Itoa(n) + " " + unit + "s ago"
}
