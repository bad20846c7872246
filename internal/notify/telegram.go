package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/format"
)

// TelegramSender delivers reminders as chat messages to the agenda owner.
type TelegramSender struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramSender(api *tgbotapi.BotAPI, chatID int64) *TelegramSender {
	return &TelegramSender{api: api, chatID: chatID}
}

func (s *TelegramSender) Send(ctx context.Context, n Scheduled) error {
	_ = ctx

	parsed := format.ParseMarkdown(MessageText(n))
	msg := tgbotapi.NewMessage(s.chatID, parsed.Text)
	msg.Entities = parsed.Entities

	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	return nil
}

// MessageText renders a reminder in the markdown dialect of package format.
func MessageText(n Scheduled) string {
	text := "⏰ **" + format.Escape(n.Title) + "**\n\n" + format.Escape(n.Body)
	if n.OwnerDate != "" {
		text += "\n\n📅 `" + n.OwnerDate + "` " + n.FireAt.Local().Format("15:04")
	}
	return text
}

// LogSender only logs reminders; used when no Telegram token is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n Scheduled) error {
	_ = ctx
	s.logger.Info("reminder due",
		zap.String("task_id", n.TaskID),
		zap.String("body", n.Body),
		zap.Time("fire_at", n.FireAt),
	)
	return nil
}
