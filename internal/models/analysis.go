package models

import (
	"strings"
	"time"
)

// Analysis represents a row in the sentiment_analysis table.
type Analysis struct {
	MessageID     string    `json:"message_id"`
	UserName      string    `json:"user_name"`
	Message       string    `json:"message"`
	Sentiment     string    `json:"sentiment"`
	Justification string    `json:"justification"`
	Emotion       string    `json:"emotion"`
	Urgency       string    `json:"urgency"`
	IsReply       bool      `json:"is_reply"`
	RepliedToUser *string   `json:"replied_to_user,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // Assigned by the database
}

// NewAnalysis combines an inbound message with its classification.
func NewAnalysis(msg InboundMessage, c Classification) *Analysis {
	return &Analysis{
		MessageID:     msg.MessageID,
		UserName:      msg.AuthorName,
		Message:       msg.Text,
		Sentiment:     c.Sentiment,
		Justification: c.Justification,
		Emotion:       c.Emotion,
		Urgency:       c.Urgency,
		IsReply:       msg.IsReply(),
		RepliedToUser: msg.ReplyTo,
	}
}

// RecentAnalysis is the projection read by the dashboard.
type RecentAnalysis struct {
	CreatedAt time.Time `json:"created_at"`
	Sentiment string    `json:"sentiment"`
	Emotion   string    `json:"emotion"`
	UserName  string    `json:"user_name"`
	Message   string    `json:"message"`
}

// PrimarySentiment returns the first comma-separated token of a sentiment label.
// Models often answer "Positive, with some excitement"; only "Positive" is kept.
func PrimarySentiment(sentiment string) string {
	primary, _, _ := strings.Cut(sentiment, ",")
	return strings.TrimSpace(primary)
}
