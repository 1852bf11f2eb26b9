package models

// Classification is the structured result of analyzing one message.
type Classification struct {
	Sentiment     string `json:"sentiment"`
	Justification string `json:"justification"`
	Emotion       string `json:"emotion"`
	Urgency       string `json:"urgency"`
}
