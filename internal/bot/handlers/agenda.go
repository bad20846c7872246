package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hray3182/agenda/internal/agenda"
	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/format"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/rrule"
)

var weekdayNames = [...]string{"日", "一", "二", "三", "四", "五", "六"}

func (h *Handlers) handleDayCommand(chatID int64, args string) Reply {
	if args == "" {
		return Reply{Text: "請提供日期\n用法: /day <YYYY-MM-DD>"}
	}
	return h.handleDay(chatID, args)
}

// handleDay lists a day and remembers the listing for numbered commands.
func (h *Handlers) handleDay(chatID int64, date string) Reply {
	list, err := h.svc.Agenda(date)
	if err != nil {
		return Reply{Text: errorText(err)}
	}
	h.remember(chatID, date, list)
	return Reply{Text: renderDay(date, list)}
}

func (h *Handlers) handleAdd(ctx context.Context, chatID int64, args string) Reply {
	if args == "" {
		return Reply{Text: "請提供待辦內容\n用法: /add [YYYY-MM-DD] <內容> [@HH:MM] [#daily|#weekly|#monthly]"}
	}
	date, in, err := parseAddArgs(args, h.today())
	if err != nil {
		return Reply{Text: err.Error()}
	}
	return h.add(ctx, chatID, date, in)
}

func (h *Handlers) add(ctx context.Context, chatID int64, date string, in agenda.NewTask) Reply {
	if _, err := h.svc.AddTask(ctx, date, in); err != nil {
		return Reply{Text: errorText(err)}
	}
	day := h.handleDay(chatID, date)
	return Reply{Text: fmt.Sprintf("✅ 已新增到 %s\n\n%s", date, day.Text)}
}

func (h *Handlers) handleDone(ctx context.Context, chatID int64, args string) Reply {
	date, id, errReply := h.lookup(chatID, args, "/done <編號>")
	if errReply != nil {
		return *errReply
	}
	occ, err := h.svc.ToggleCompletion(ctx, date, id)
	if err != nil {
		return Reply{Text: errorText(err)}
	}
	status := "⬜ 已標記為未完成"
	if occ.Completed() {
		status = "✅ 已完成！"
	}
	return h.withDay(chatID, date, status)
}

func (h *Handlers) handleEdit(ctx context.Context, chatID int64, args string) Reply {
	num, text, _ := strings.Cut(args, " ")
	date, id, errReply := h.lookup(chatID, num, "/edit <編號> <內容>")
	if errReply != nil {
		return *errReply
	}
	if _, err := h.svc.Edit(ctx, date, id, agenda.Changes{Text: &text}); err != nil {
		return Reply{Text: errorText(err)}
	}
	return h.withDay(chatID, date, "✏️ 已更新")
}

func (h *Handlers) handleRemind(ctx context.Context, chatID int64, args string) Reply {
	usage := "/remind <編號> <HH:MM|off>"
	num, value, _ := strings.Cut(args, " ")
	date, id, errReply := h.lookup(chatID, num, usage)
	if errReply != nil {
		return *errReply
	}

	changes := agenda.Changes{SetReminder: true}
	value = strings.TrimSpace(value)
	switch value {
	case "":
		return Reply{Text: "請提供提醒時間\n用法: " + usage}
	case "off":
	default:
		at, err := daykey.ParseClock(date, value)
		if err != nil {
			return Reply{Text: "無效的時間，請使用 HH:MM 格式"}
		}
		changes.Reminder = &at
	}

	if _, err := h.svc.Edit(ctx, date, id, changes); err != nil {
		return Reply{Text: errorText(err)}
	}
	if changes.Reminder == nil {
		return h.withDay(chatID, date, "🔕 已取消提醒")
	}
	return h.withDay(chatID, date, "⏰ 已設定提醒 "+value)
}

func (h *Handlers) handleRepeat(ctx context.Context, chatID int64, args string) Reply {
	usage := "/repeat <編號> <none|daily|weekly|monthly>"
	num, value, _ := strings.Cut(args, " ")
	date, id, errReply := h.lookup(chatID, num, usage)
	if errReply != nil {
		return *errReply
	}
	option, err := models.ParseRepeatOption(value)
	if err != nil || strings.TrimSpace(value) == "" {
		return Reply{Text: "無效的重複方式\n用法: " + usage}
	}

	if _, err := h.svc.Edit(ctx, date, id, agenda.Changes{Repeat: &option}); err != nil {
		return Reply{Text: errorText(err)}
	}
	return h.withDay(chatID, date, "🔁 重複方式: "+rrule.Label(option))
}

func (h *Handlers) handleMonth(args string) Reply {
	month := args
	if month == "" {
		month = h.now().In(time.Local).Format(daykey.MonthLayout)
	}
	marks, err := h.svc.Calendar(month)
	if err != nil {
		return Reply{Text: "無效的月份，請使用 YYYY-MM 格式"}
	}
	return Reply{Text: renderMonth(month, marks)}
}

func (h *Handlers) handlePatterns() Reply {
	patterns := h.svc.Patterns()
	if len(patterns) == 0 {
		return Reply{Text: "🔁 目前沒有重複規則"}
	}

	var sb strings.Builder
	sb.WriteString("🔁 **重複規則**\n\n")
	for i, p := range patterns {
		status := "▶️"
		if !p.IsActive {
			status = "⏸"
		}
		sb.WriteString(fmt.Sprintf("%s **%d.** %s", status, i+1, format.Escape(h.originText(p))))
		sb.WriteString(fmt.Sprintf("\n   %s，從 %s 開始", rrule.HumanReadable(p), p.StartDate))
		sb.WriteString(fmt.Sprintf("\n   ID: `%s`\n\n", p.ID))
	}
	return Reply{Text: sb.String()}
}

// originText finds the text of a pattern's origin task on its anchor day.
func (h *Handlers) originText(p models.Pattern) string {
	for _, id := range []string{agenda.SyntheticID(p.OriginalTaskID, p.StartDate), p.OriginalTaskID} {
		if occ, err := h.svc.Occurrence(p.StartDate, id); err == nil {
			return occ.Text()
		}
	}
	return "(原始待辦已刪除)"
}

func (h *Handlers) handlePause(ctx context.Context, args string) Reply {
	if args == "" {
		return Reply{Text: "請提供規則 ID\n用法: /pause <ID>"}
	}
	p, err := h.svc.TogglePattern(ctx, args)
	if err != nil {
		return Reply{Text: errorText(err)}
	}
	if p.IsActive {
		return Reply{Text: "▶️ 已恢復重複規則"}
	}
	return Reply{Text: "⏸ 已暫停重複規則"}
}

func (h *Handlers) withDay(chatID int64, date, status string) Reply {
	day := h.handleDay(chatID, date)
	return Reply{Text: status + "\n\n" + day.Text}
}

func (h *Handlers) remember(chatID int64, date string, list []agenda.Occurrence) {
	ids := make([]string, 0, len(list))
	for _, o := range list {
		ids = append(ids, o.ID())
	}
	h.mu.Lock()
	h.listings[chatID] = listing{date: date, ids: ids}
	h.mu.Unlock()
}

// lookup resolves a 1-based index into the chat's last listing.
func (h *Handlers) lookup(chatID int64, arg, usage string) (string, string, *Reply) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", &Reply{Text: "請提供編號\n用法: " + usage}
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", "", &Reply{Text: "無效的編號"}
	}

	h.mu.Lock()
	l, ok := h.listings[chatID]
	h.mu.Unlock()
	if !ok {
		return "", "", &Reply{Text: "請先使用 /today 或 /day 查看清單"}
	}
	if n < 1 || n > len(l.ids) {
		return "", "", &Reply{Text: fmt.Sprintf("編號必須介於 1 到 %d", len(l.ids))}
	}
	return l.date, l.ids[n-1], nil
}

func renderDay(date string, list []agenda.Occurrence) string {
	var sb strings.Builder
	header := date
	if t, err := daykey.Parse(date); err == nil {
		header = fmt.Sprintf("%s (週%s)", date, weekdayNames[t.Weekday()])
	}
	sb.WriteString(fmt.Sprintf("📅 **%s**\n\n", header))

	if len(list) == 0 {
		sb.WriteString("📭 這天沒有待辦事項")
		return sb.String()
	}

	for i, o := range list {
		status := "⬜"
		text := format.Escape(o.Text())
		if o.Completed() {
			status = "✅"
			text = "~~" + text + "~~"
		}
		sb.WriteString(fmt.Sprintf("%s **%d.** %s", status, i+1, text))
		if r := o.Reminder(); r != nil {
			sb.WriteString(" ⏰ " + r.In(time.Local).Format("15:04"))
		}
		if rec, ok := o.(agenda.Recurring); ok {
			sb.WriteString(" 🔁 " + rrule.HumanReadable(rec.Pattern))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMonth(month string, marks map[string]agenda.DayMark) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🗓 **%s**\n\n", month))
	if len(marks) == 0 {
		sb.WriteString("📭 這個月沒有待辦事項")
		return sb.String()
	}

	dates := make([]string, 0, len(marks))
	for d := range marks {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	total, done := 0, 0
	for _, d := range dates {
		m := marks[d]
		total += m.Total
		done += m.Completed
		status := "⬜"
		if m.Completed == m.Total {
			status = "✅"
		}
		sb.WriteString(fmt.Sprintf("%s `%s` %d/%d\n", status, d, m.Completed, m.Total))
	}
	sb.WriteString(fmt.Sprintf("\n完成 %d/%d", done, total))
	return sb.String()
}

// parseAddArgs splits "/add [date] text [@HH:MM] [#repeat]".
func parseAddArgs(args, today string) (string, agenda.NewTask, error) {
	fields := strings.Fields(args)
	date := today
	if len(fields) > 0 && daykey.Valid(fields[0]) {
		date = fields[0]
		fields = fields[1:]
	}

	var (
		in   agenda.NewTask
		text []string
	)
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "@") && len(f) > 1:
			at, err := daykey.ParseClock(date, f[1:])
			if err != nil {
				return "", agenda.NewTask{}, fmt.Errorf("無效的時間 %s，請使用 @HH:MM 格式", f)
			}
			in.Reminder = &at
		case strings.HasPrefix(f, "#") && len(f) > 1:
			option, err := models.ParseRepeatOption(f[1:])
			if err != nil {
				return "", agenda.NewTask{}, fmt.Errorf("無效的重複方式 %s，可用 #daily、#weekly、#monthly", f)
			}
			in.Repeat = option
		default:
			text = append(text, f)
		}
	}
	in.Text = strings.Join(text, " ")
	if in.Text == "" {
		return "", agenda.NewTask{}, errors.New("請提供待辦內容")
	}
	return date, in, nil
}
