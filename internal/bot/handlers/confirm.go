package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/format"
)

const confirmTimeout = 2 * time.Minute

// PendingConfirmation is a destructive action waiting for the user's yes.
type PendingConfirmation struct {
	Action       string // "delete" or "clear"
	Date         string
	OccurrenceID string
	ExpiresAt    time.Time
}

func (h *Handlers) handleDelete(chatID int64, args string) Reply {
	date, id, errReply := h.lookup(chatID, args, "/del <編號>")
	if errReply != nil {
		return *errReply
	}
	occ, err := h.svc.Occurrence(date, id)
	if err != nil {
		return Reply{Text: errorText(err)}
	}

	question := fmt.Sprintf("🗑 確認刪除「%s」？", format.Escape(occ.Text()))
	if occ.Repeating() {
		question += "\n\n這是重複待辦，所有日期的重複都會一起刪除。"
	}
	return h.requestConfirmation(chatID, &PendingConfirmation{
		Action:       "delete",
		Date:         date,
		OccurrenceID: id,
	}, question)
}

func (h *Handlers) handleClear(chatID int64) Reply {
	return h.requestConfirmation(chatID, &PendingConfirmation{Action: "clear"},
		"⚠️ 確認清除所有待辦、重複規則與提醒？此操作無法復原。")
}

func (h *Handlers) requestConfirmation(chatID int64, p *PendingConfirmation, question string) Reply {
	p.ExpiresAt = h.now().Add(confirmTimeout)
	h.mu.Lock()
	h.pending[chatID] = p
	h.mu.Unlock()

	return Reply{
		Text: question,
		Keyboard: [][]Button{{
			{Label: "✅ 確認", Data: fmt.Sprintf("confirm:%d", chatID)},
			{Label: "❌ 取消", Data: fmt.Sprintf("cancel:%d", chatID)},
		}},
	}
}

// Callback handles "confirm:<chatID>" and "cancel:<chatID>" button presses.
func (h *Handlers) Callback(ctx context.Context, chatID int64, data string) Reply {
	action, owner, ok := strings.Cut(data, ":")
	if !ok {
		return Reply{Text: "❌ 無效的操作"}
	}
	ownerID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil || ownerID != chatID {
		return Reply{Text: "這不是你的操作"}
	}

	h.mu.Lock()
	pending, exists := h.pending[chatID]
	delete(h.pending, chatID)
	h.mu.Unlock()

	if !exists || h.now().After(pending.ExpiresAt) {
		return Reply{Text: "⏰ 確認已過期"}
	}

	switch action {
	case "cancel":
		return Reply{Text: "❌ 已取消操作"}
	case "confirm":
		return h.execute(ctx, chatID, pending)
	}
	return Reply{Text: "❌ 無效的操作"}
}

func (h *Handlers) execute(ctx context.Context, chatID int64, p *PendingConfirmation) Reply {
	switch p.Action {
	case "delete":
		if err := h.svc.Delete(ctx, p.Date, p.OccurrenceID); err != nil {
			return Reply{Text: errorText(err)}
		}
		return h.withDay(chatID, p.Date, "✅ 已確認\n\n🗑 已刪除")
	case "clear":
		h.svc.ClearAll(ctx)
		h.mu.Lock()
		h.listings = map[int64]listing{}
		h.mu.Unlock()
		h.logger.Info("cleared by chat", zap.Int64("chat_id", chatID))
		return Reply{Text: "✅ 已確認\n\n🧹 所有資料已清除"}
	}
	return Reply{Text: "❌ 無效的操作"}
}
