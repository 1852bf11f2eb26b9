package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/eldtechnologies/chatmood/internal/models"
	"github.com/eldtechnologies/chatmood/internal/store"
)

const maxRecentLimit = 1000

// RecentItem is one analysis in the read API. Sentiment is the primary
// sentiment; RawSentiment keeps the model's full label.
type RecentItem struct {
	CreatedAt    string `json:"created_at"`
	Sentiment    string `json:"sentiment"`
	RawSentiment string `json:"raw_sentiment"`
	Emotion      string `json:"emotion"`
	UserName     string `json:"user_name"`
	Message      string `json:"message"`
}

// RecentResponse is the response of GET /analyses.
type RecentResponse struct {
	Analyses []RecentItem `json:"analyses"`
	Count    int          `json:"count"`
}

// RecentAnalyses lists the newest analyses, optionally filtered on primary
// sentiment. The filter applies to the newest `limit` rows.
func (h *Handler) RecentAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	sentiment := strings.TrimSpace(r.URL.Query().Get("sentiment"))

	rows, err := h.db.RecentAnalyses(r.Context(), limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load analyses")
		return
	}

	items := make([]RecentItem, 0, len(rows))
	for _, row := range rows {
		primary := models.PrimarySentiment(row.Sentiment)
		if sentiment != "" && !strings.EqualFold(primary, sentiment) {
			continue
		}
		created := ""
		if !row.CreatedAt.IsZero() {
			created = row.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		items = append(items, RecentItem{
			CreatedAt:    created,
			Sentiment:    primary,
			RawSentiment: row.Sentiment,
			Emotion:      row.Emotion,
			UserName:     row.UserName,
			Message:      row.Message,
		})
	}

	h.JSON(w, http.StatusOK, RecentResponse{Analyses: items, Count: len(items)})
}
