package models

// InboundMessage represents one text message delivered by the chat transport.
type InboundMessage struct {
	MessageID  string  `json:"message_id"`
	AuthorName string  `json:"author_name"`
	Text       string  `json:"text"`
	ReplyTo    *string `json:"reply_to,omitempty"` // Author name of the message being replied to
}

// IsReply reports whether the message answers another message.
func (m InboundMessage) IsReply() bool {
	return m.ReplyTo != nil
}
