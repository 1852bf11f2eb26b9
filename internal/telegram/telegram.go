// Package telegram turns Telegram bot updates into pipeline messages.
package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatmood/internal/models"
)

// pollTimeout is the long-poll timeout in seconds.
const pollTimeout = 60

// updateSource is the part of tgbotapi.BotAPI the Source uses.
type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Source long-polls Telegram and emits every text message it receives.
type Source struct {
	bot    updateSource
	logger zerolog.Logger
}

// NewSource authenticates the bot token and returns a Source.
func NewSource(token string, logger zerolog.Logger) (*Source, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("authorized on Telegram")
	return &Source{bot: bot, logger: logger}, nil
}

// Messages streams inbound messages until ctx is done. The returned channel
// is closed when polling stops.
func (s *Source) Messages(ctx context.Context) <-chan models.InboundMessage {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := s.bot.GetUpdatesChan(cfg)

	out := make(chan models.InboundMessage)
	go func() {
		defer close(out)
		defer s.bot.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					s.logger.Warn().Int("update_id", update.UpdateID).Msg("update without message; skipping")
					continue
				}
				msg, ok := ToInbound(update)
				if !ok {
					s.logger.Warn().Int("update_id", update.UpdateID).Msg("ignoring update without text message")
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ToInbound converts an update. It reports false for updates that carry no
// text message, such as edits, joins, stickers and bot commands.
func ToInbound(update tgbotapi.Update) (models.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.Text == "" || m.IsCommand() {
		return models.InboundMessage{}, false
	}

	msg := models.InboundMessage{
		MessageID:  messageID(m),
		AuthorName: displayName(m.From),
		Text:       m.Text,
	}
	if m.ReplyToMessage != nil {
		name := displayName(m.ReplyToMessage.From)
		msg.ReplyTo = &name
	}
	return msg, true
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return u.FirstName
}

// messageID scopes Telegram's per-chat message id by chat.
func messageID(m *tgbotapi.Message) string {
	if m.Chat == nil {
		return strconv.Itoa(m.MessageID)
	}
	return strconv.FormatInt(m.Chat.ID, 10) + ":" + strconv.Itoa(m.MessageID)
}
