package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/bot/handlers"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func New(api *tgbotapi.BotAPI, h *handlers.Handlers, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		handlers: h,
		logger:   logger,
	}
}

func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("authorized on account", zap.String("username", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			// One update at a time; the agenda has a single writer.
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	chat := update.FromChat()
	if chat == nil {
		return
	}
	if !b.handlers.Allowed(chat.ID) {
		b.logger.Warn("ignoring update from unknown chat", zap.Int64("chat_id", chat.ID))
		return
	}

	// Handle callback queries (inline keyboard buttons)
	if update.CallbackQuery != nil {
		b.handlers.HandleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	// Handle commands
	if update.Message.IsCommand() {
		b.handlers.HandleCommand(ctx, update.Message)
		return
	}

	// Handle regular messages with AI
	if update.Message.Text != "" {
		b.handlers.HandleMessage(ctx, update.Message)
	}
}
