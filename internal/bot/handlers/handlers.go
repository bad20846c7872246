package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/agenda"
	"github.com/hray3182/agenda/internal/ai"
	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/format"
	"github.com/hray3182/agenda/internal/models"
)

// Parser turns free text into a task draft.
type Parser interface {
	ParseTask(ctx context.Context, message string, now time.Time) (*ai.Draft, error)
}

// Reply is a message to send back, with optional inline buttons.
type Reply struct {
	Text     string
	Keyboard [][]Button
}

type Button struct {
	Label string
	Data  string
}

// listing remembers what the chat last saw so "/done 2" means the second
// line of that list.
type listing struct {
	date string
	ids  []string
}

type Handlers struct {
	api         *tgbotapi.BotAPI
	svc         *agenda.Service
	ai          Parser
	ownerChatID int64
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	listings map[int64]listing
	pending  map[int64]*PendingConfirmation
}

func New(api *tgbotapi.BotAPI, svc *agenda.Service, parser Parser, ownerChatID int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		api:         api,
		svc:         svc,
		ai:          parser,
		ownerChatID: ownerChatID,
		logger:      logger,
		now:         time.Now,
		listings:    map[int64]listing{},
		pending:     map[int64]*PendingConfirmation{},
	}
}

// Allowed reports whether the chat may use the bot. With no owner
// configured every chat is allowed.
func (h *Handlers) Allowed(chatID int64) bool {
	return h.ownerChatID == 0 || chatID == h.ownerChatID
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	h.send(msg.Chat.ID, h.Execute(ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments()))
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	h.send(msg.Chat.ID, h.QuickAdd(ctx, msg.Chat.ID, msg.Text))
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Answer callback to remove loading state
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		h.logger.Warn("failed to answer callback", zap.Error(err))
	}
	if callback.Message == nil {
		return
	}

	reply := h.Callback(ctx, callback.Message.Chat.ID, callback.Data)
	h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, reply)
}

// Execute runs one command and returns the reply.
func (h *Handlers) Execute(ctx context.Context, chatID int64, command, args string) Reply {
	args = strings.TrimSpace(args)

	switch command {
	case "start":
		return h.handleStart()
	case "help":
		return h.handleHelp()
	case "today":
		return h.handleDay(chatID, h.today())
	case "day":
		return h.handleDayCommand(chatID, args)
	case "add":
		return h.handleAdd(ctx, chatID, args)
	case "done":
		return h.handleDone(ctx, chatID, args)
	case "edit":
		return h.handleEdit(ctx, chatID, args)
	case "remind":
		return h.handleRemind(ctx, chatID, args)
	case "repeat":
		return h.handleRepeat(ctx, chatID, args)
	case "del":
		return h.handleDelete(chatID, args)
	case "month":
		return h.handleMonth(args)
	case "patterns":
		return h.handlePatterns()
	case "pause":
		return h.handlePause(ctx, args)
	case "clear":
		return h.handleClear(chatID)
	}
	return Reply{Text: "未知指令，請使用 /help 查看可用指令"}
}

func (h *Handlers) today() string {
	return daykey.Today(h.now())
}

func (h *Handlers) send(chatID int64, r Reply) {
	if r.Text == "" {
		return
	}
	parsed := format.ParseMarkdown(r.Text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if len(r.Keyboard) > 0 {
		msg.ReplyMarkup = keyboard(r.Keyboard)
	}
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, r Reply) {
	parsed := format.ParseMarkdown(r.Text)
	edit := tgbotapi.NewEditMessageText(chatID, messageID, parsed.Text)
	edit.Entities = parsed.Entities
	if _, err := h.api.Send(edit); err != nil {
		h.logger.Error("failed to edit message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func keyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	var out [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func (h *Handlers) handleStart() Reply {
	return Reply{Text: `👋 你好！

我是你的行事曆機器人，每天有固定的欄位可以寫下待辦事項。

我可以幫你：
📝 記下每天的待辦
🔁 設定每天、每週、每月重複
⏰ 在指定時間提醒你
🗓 查看整個月的進度

也可以直接告訴我，例如：
• "明天下午三點去銀行"
• "每週一早上九點開週會"

使用 /help 查看所有指令`}
}

func (h *Handlers) handleHelp() Reply {
	return Reply{Text: `📖 **指令列表**

**查看**
/today - 今天的待辦
/day <YYYY-MM-DD> - 指定日期的待辦
/month [YYYY-MM] - 月曆進度

**新增**
/add [YYYY-MM-DD] <內容> [@HH:MM] [#daily|#weekly|#monthly]

**編輯** (編號為最近一次列出的清單)
/done <編號> - 切換完成
/edit <編號> <內容> - 修改內容
/remind <編號> <HH:MM|off> - 設定或取消提醒
/repeat <編號> <none|daily|weekly|monthly> - 設定重複
/del <編號> - 刪除

**重複規則**
/patterns - 查看所有重複規則
/pause <ID> - 暫停或恢復規則

/clear - 清除所有資料

💡 你也可以直接用自然語言告訴我！`}
}

// errorText turns a service error into a message for the user.
func errorText(err error) string {
	switch {
	case errors.Is(err, agenda.ErrEmptyText):
		return "請提供待辦內容"
	case errors.Is(err, agenda.ErrTextTooLong):
		return fmt.Sprintf("待辦內容不能超過 %d 個字", models.MaxTextLength)
	case errors.Is(err, agenda.ErrInvalidDate):
		return "無效的日期，請使用 YYYY-MM-DD 格式"
	case errors.Is(err, agenda.ErrInvalidSlot):
		return "無效的欄位"
	case errors.Is(err, agenda.ErrReminderInPast):
		return "提醒時間必須在未來"
	case errors.Is(err, agenda.ErrReminderAfterDay):
		return "提醒時間必須在同一天內"
	case errors.Is(err, agenda.ErrDayFull):
		return "這天已經排滿了"
	case errors.Is(err, agenda.ErrSlotOccupied):
		return "這個欄位已經有待辦了"
	case errors.Is(err, agenda.ErrNotFound):
		return "找不到這個項目，請重新查看清單"
	}
	return "操作失敗，請稍後再試"
}
