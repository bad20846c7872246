package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/agenda"
	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/models"
)

// QuickAdd creates a task from a free-text message through the AI parser.
func (h *Handlers) QuickAdd(ctx context.Context, chatID int64, text string) Reply {
	if h.ai == nil {
		return Reply{Text: "AI 功能尚未啟用，請使用 /add 新增待辦"}
	}

	draft, err := h.ai.ParseTask(ctx, text, h.now())
	if err != nil {
		h.logger.Error("failed to parse task", zap.Error(err))
		return Reply{Text: "抱歉，我無法理解你的訊息。請試著用更清楚的方式描述，或使用 /help 查看可用指令。"}
	}

	h.logger.Debug("parsed draft",
		zap.String("text", draft.Text),
		zap.String("date", draft.Date),
		zap.String("time", draft.Time),
		zap.String("repeat", draft.Repeat),
		zap.Float64("confidence", draft.Confidence),
		zap.String("raw", draft.RawResponse))

	if draft.NeedMoreInfo {
		if draft.FollowUpPrompt != "" {
			return Reply{Text: draft.FollowUpPrompt}
		}
		return Reply{Text: "請提供更多資訊"}
	}
	if draft.Confidence < 0.5 || draft.Text == "" {
		return Reply{Text: "我不太確定你想新增什麼，可以說得更清楚一點嗎？"}
	}

	date := draft.Date
	if date == "" {
		date = h.today()
	}
	if !daykey.Valid(date) {
		return Reply{Text: errorText(agenda.ErrInvalidDate)}
	}

	in := agenda.NewTask{Text: draft.Text}
	if draft.Time != "" {
		at, err := daykey.ParseClock(date, draft.Time)
		if err != nil {
			return Reply{Text: fmt.Sprintf("無效的時間 %s", draft.Time)}
		}
		in.Reminder = &at
	}
	if in.Repeat, err = models.ParseRepeatOption(draft.Repeat); err != nil {
		in.Repeat = models.RepeatNone
	}
	return h.add(ctx, chatID, date, in)
}
