package agenda

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/models"
)

func TestService_RecurringScenario(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	occ, err := f.svc.AddTaskAt(ctx, "2025-03-10", 1, NewTask{Text: "Buy milk"})
	require.NoError(t, err)
	_, err = f.svc.PromoteToRecurring(ctx, occ.ID(), models.RepeatDaily)
	require.NoError(t, err)

	list, err := f.svc.Agenda("2025-03-15")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Repeating())
	assert.False(t, list[0].Completed())

	toggled, err := f.svc.ToggleCompletion(ctx, "2025-03-15", list[0].ID())
	require.NoError(t, err)
	assert.True(t, toggled.Completed())

	list, err = f.svc.Agenda("2025-03-16")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Completed())

	list, err = f.svc.Agenda("2025-03-10")
	require.NoError(t, err)
	require.Len(t, list, 1, "origin is not listed twice on its own day")
	assert.True(t, list[0].Repeating())
}

func TestService_AddTaskValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		date string
		in   NewTask
		want error
	}{
		{"empty", "2025-03-10", NewTask{Text: "   "}, ErrEmptyText},
		{"too long", "2025-03-10", NewTask{Text: strings.Repeat("字", models.MaxTextLength+1)}, ErrTextTooLong},
		{"bad date", "2025-02-30", NewTask{Text: "x"}, ErrInvalidDate},
		{"timestamp date", "2025-03-10T09:00", NewTask{Text: "x"}, ErrInvalidDate},
		{"reminder in past", "2025-03-01", NewTask{Text: "x", Reminder: clock("2025-03-01", 7, 59)}, ErrReminderInPast},
		{"reminder now", "2025-03-01", NewTask{Text: "x", Reminder: &fixedNow}, ErrReminderInPast},
		{"reminder next day", "2025-03-10", NewTask{Text: "x", Reminder: clock("2025-03-11", 0, 0)}, ErrReminderAfterDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddTask(ctx, tt.date, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.tasks.GetAllTasks())

	occ, err := f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: strings.Repeat("字", models.MaxTextLength)})
	require.NoError(t, err)
	assert.Equal(t, 1, occ.SlotNumber())

	occ, err = f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: "  padded  ", Reminder: clock("2025-03-10", 23, 59)})
	require.NoError(t, err)
	assert.Equal(t, "padded", occ.Text())
	require.NotNil(t, occ.Reminder())
}

func TestService_SlotsAndCapacity(t *testing.T) {
	f := newFixture(t, Config{PageCapacity: 2, DayTaskLimit: 3})
	ctx := context.Background()

	_, err := f.svc.AddTaskAt(ctx, "2025-03-10", 0, NewTask{Text: "x"})
	require.ErrorIs(t, err, ErrInvalidSlot)
	_, err = f.svc.AddTaskAt(ctx, "2025-03-10", models.MaxPageCapacity+1, NewTask{Text: "x"})
	require.ErrorIs(t, err, ErrInvalidSlot)

	_, err = f.svc.AddTaskAt(ctx, "2025-03-10", 1, NewTask{Text: "one"})
	require.NoError(t, err)
	_, err = f.svc.AddTaskAt(ctx, "2025-03-10", 1, NewTask{Text: "again"})
	require.ErrorIs(t, err, ErrSlotOccupied)
	_, err = f.svc.AddTaskAt(ctx, "2025-03-10", 3, NewTask{Text: "three"})
	require.NoError(t, err)

	occ, err := f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: "fills the gap"})
	require.NoError(t, err)
	assert.Equal(t, 2, occ.SlotNumber())

	_, err = f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: "too many"})
	require.ErrorIs(t, err, ErrDayFull)

	all, err := f.svc.Agenda("2025-03-10")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	page, err := f.svc.Page("2025-03-10")
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestService_DayLimitCountsRecurring(t *testing.T) {
	f := newFixture(t, Config{DayTaskLimit: 2})
	ctx := context.Background()

	_, err := f.svc.AddTask(ctx, "2025-03-01", NewTask{Text: "daily", Repeat: models.RepeatDaily})
	require.NoError(t, err)
	_, err = f.svc.AddTask(ctx, "2025-03-05", NewTask{Text: "one-off"})
	require.NoError(t, err)

	_, err = f.svc.AddTask(ctx, "2025-03-05", NewTask{Text: "third"})
	require.ErrorIs(t, err, ErrDayFull)
}

func TestService_AddRecurring(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	occ, err := f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: "Stand-up", Repeat: models.RepeatWeekly})
	require.NoError(t, err)
	rec, ok := occ.(Recurring)
	require.True(t, ok)
	assert.Equal(t, "2025-03-10", rec.Pattern.StartDate)

	list, err := f.svc.Agenda("2025-03-17")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, SyntheticID(rec.Source.ID, "2025-03-17"), list[0].ID())
}

func TestService_EditNormal(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	occ, err := f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: "Gym", Reminder: clock("2025-03-10", 18, 0)})
	require.NoError(t, err)
	id := occ.ID()

	edited, err := f.svc.Edit(ctx, "2025-03-10", id, Changes{Text: ptr("Gym: legs"), SetReminder: true})
	require.NoError(t, err)
	assert.Equal(t, "Gym: legs", edited.Text())
	assert.Nil(t, edited.Reminder())
	_, scheduled := f.notifier.pending[id]
	assert.False(t, scheduled)

	_, err = f.svc.Edit(ctx, "2025-03-10", id, Changes{Text: ptr(" ")})
	require.ErrorIs(t, err, ErrEmptyText)
	_, err = f.svc.Edit(ctx, "2025-03-10", id, Changes{SetReminder: true, Reminder: clock("2025-03-11", 1, 0)})
	require.ErrorIs(t, err, ErrReminderAfterDay)
	_, err = f.svc.Edit(ctx, "2025-03-10", "missing", Changes{Text: ptr("x")})
	require.ErrorIs(t, err, ErrNotFound)

	promoted, err := f.svc.Edit(ctx, "2025-03-10", id, Changes{Repeat: ptr(models.RepeatWeekly)})
	require.NoError(t, err)
	assert.Equal(t, SyntheticID(id, "2025-03-10"), promoted.ID())
	p, ok := f.patterns.GetPattern(id)
	require.True(t, ok)
	assert.Equal(t, "2025-03-10", p.StartDate)
	assert.Equal(t, models.RepeatWeekly, p.RepeatOption)
}

func addDaily(t *testing.T, f fixture, date, text string) Recurring {
	t.Helper()
	occ, err := f.svc.AddTask(context.Background(), date, NewTask{Text: text, Repeat: models.RepeatDaily})
	require.NoError(t, err)
	rec, ok := occ.(Recurring)
	require.True(t, ok)
	return rec
}

func TestService_EditRecurringGoesToOrigin(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	origin := addDaily(t, f, "2025-03-10", "Water plants")

	edited, err := f.svc.Edit(ctx, "2025-03-12", SyntheticID(origin.Source.ID, "2025-03-12"), Changes{Text: ptr("Water cacti")})
	require.NoError(t, err)
	assert.Equal(t, "Water cacti", edited.Text())
	assert.True(t, edited.Repeating())

	task, ok := f.tasks.GetTask("2025-03-10", 1)
	require.True(t, ok)
	assert.Equal(t, "Water cacti", task.Text)

	list, err := f.svc.Agenda("2025-03-20")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Water cacti", list[0].Text())
}

func TestService_EditRecurringReminderStaysOnOriginDay(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	origin := addDaily(t, f, "2025-03-10", "Water plants")

	edited, err := f.svc.Edit(ctx, "2025-03-12", SyntheticID(origin.Source.ID, "2025-03-12"),
		Changes{SetReminder: true, Reminder: clock("2025-03-12", 9, 0)})
	require.NoError(t, err)
	require.NotNil(t, edited.Reminder())
	assert.Equal(t, *clock("2025-03-12", 9, 0), *edited.Reminder())

	task, ok := f.tasks.GetTask("2025-03-10", 1)
	require.True(t, ok)
	require.NotNil(t, task.Reminder)
	end, err := daykey.EndOfDay("2025-03-10")
	require.NoError(t, err)
	assert.False(t, task.Reminder.After(end), "origin reminder %s is past its own day", task.Reminder)
	assert.Equal(t, *clock("2025-03-10", 9, 0), *task.Reminder)

	req, ok := f.notifier.pending[task.ID]
	require.True(t, ok)
	assert.Equal(t, "2025-03-10", req.OwnerDate)
	assert.Equal(t, *clock("2025-03-10", 9, 0), req.FireAt)

	list, err := f.svc.Agenda("2025-03-20")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, *clock("2025-03-20", 9, 0), *list[0].Reminder())
}

func TestService_EditRecurringChangesRepeat(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	origin := addDaily(t, f, "2025-03-10", "Water plants")

	edited, err := f.svc.Edit(ctx, "2025-03-12", SyntheticID(origin.Source.ID, "2025-03-12"), Changes{Repeat: ptr(models.RepeatWeekly)})
	require.NoError(t, err)
	assert.Equal(t, SyntheticID(origin.Source.ID, "2025-03-10"), edited.ID())

	patterns := f.svc.Patterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, models.RepeatWeekly, patterns[0].RepeatOption)
	assert.Equal(t, "2025-03-10", patterns[0].StartDate)

	list, err := f.svc.Agenda("2025-03-12")
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = f.svc.Agenda("2025-03-17")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_DemoteOnOtherDay(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	origin := addDaily(t, f, "2025-03-10", "Water plants")
	synthetic := SyntheticID(origin.Source.ID, "2025-03-12")

	_, err := f.svc.ToggleCompletion(ctx, "2025-03-12", synthetic)
	require.NoError(t, err)

	occ, err := f.svc.Edit(ctx, "2025-03-12", synthetic, Changes{Repeat: ptr(models.RepeatNone)})
	require.NoError(t, err)
	normal, ok := occ.(Normal)
	require.True(t, ok)
	assert.NotEqual(t, origin.Source.ID, normal.Task.ID)
	assert.Equal(t, "Water plants", normal.Text())
	assert.Equal(t, "2025-03-12", normal.Date)
	assert.Equal(t, 1, normal.Slot)
	assert.True(t, normal.Completed(), "completion of the day carries over")

	assert.Empty(t, f.svc.Patterns())
	list, err := f.svc.Agenda("2025-03-13")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.Agenda("2025-03-10")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, origin.Source.ID, list[0].ID())
	assert.False(t, list[0].Repeating())
}

func TestService_DemoteOnOriginDay(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	origin := addDaily(t, f, "2025-03-10", "Water plants")

	occ, err := f.svc.Edit(ctx, "2025-03-10", SyntheticID(origin.Source.ID, "2025-03-10"), Changes{
		Text:   ptr("Water ferns"),
		Repeat: ptr(models.RepeatNone),
	})
	require.NoError(t, err)
	assert.Equal(t, origin.Source.ID, occ.ID())
	assert.Equal(t, "Water ferns", occ.Text())

	list, err := f.svc.Agenda("2025-03-10")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Empty(t, f.svc.Patterns())
}

func TestService_DemoteToNormalRollsBack(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	origin := addDaily(t, f, "2025-03-10", "Read")
	_, err := f.svc.AddTaskAt(ctx, "2025-03-12", 1, NewTask{Text: "Other"})
	require.NoError(t, err)

	_, err = f.svc.DemoteToNormal(ctx, origin.Source.ID, "2025-03-12", 1)
	require.ErrorIs(t, err, ErrSlotOccupied)
	assert.Len(t, f.svc.Patterns(), 1, "pattern restored")
	list, err := f.svc.Agenda("2025-03-12")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	task, err := f.svc.DemoteToNormal(ctx, origin.Source.ID, "2025-03-12", 2)
	require.NoError(t, err)
	assert.Equal(t, "Read", task.Text)
	got, ok := f.tasks.GetTask("2025-03-12", 2)
	require.True(t, ok)
	assert.Equal(t, task.ID, got.ID)
	assert.Empty(t, f.svc.Patterns())

	_, err = f.svc.DemoteToNormal(ctx, origin.Source.ID, "2025-03-12", 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_DeleteRecurring(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	first := addDaily(t, f, "2025-03-10", "Water plants")
	require.NoError(t, f.svc.Delete(ctx, "2025-03-12", SyntheticID(first.Source.ID, "2025-03-12")))
	assert.Empty(t, f.svc.Patterns())
	list, err := f.svc.Agenda("2025-03-11")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.True(t, f.tasks.Exists(first.Source.ID), "origin survives when deleted elsewhere")

	second := addDaily(t, f, "2025-03-20", "Meditate")
	require.NoError(t, f.svc.Delete(ctx, "2025-03-20", SyntheticID(second.Source.ID, "2025-03-20")))
	assert.False(t, f.tasks.Exists(second.Source.ID))
	list, err = f.svc.Agenda("2025-03-20")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.ErrorIs(t, f.svc.Delete(ctx, "2025-03-20", "missing"), ErrNotFound)
}

func TestService_DeleteNormal(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	occ, err := f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: "Gym", Reminder: clock("2025-03-10", 18, 0)})
	require.NoError(t, err)
	_, scheduled := f.notifier.pending[occ.ID()]
	require.True(t, scheduled)

	require.NoError(t, f.svc.Delete(ctx, "2025-03-10", occ.ID()))
	_, scheduled = f.notifier.pending[occ.ID()]
	assert.False(t, scheduled)
	list, err := f.svc.Agenda("2025-03-10")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_TogglePatternAndClear(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	origin := addDaily(t, f, "2025-03-10", "Water plants")

	paused, err := f.svc.TogglePattern(ctx, origin.Pattern.ID)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)
	list, err := f.svc.Agenda("2025-03-11")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.TogglePattern(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.AddTask(ctx, "2025-03-10", NewTask{Text: "Gym", Reminder: clock("2025-03-10", 18, 0)})
	require.NoError(t, err)
	f.svc.ClearAll(ctx)

	assert.Empty(t, f.tasks.GetAllTasks())
	assert.Empty(t, f.svc.Patterns())
	assert.Empty(t, f.notifier.pending)
}

func TestService_CalendarAndWidget(t *testing.T) {
	f := newFixture(t, Config{PageCapacity: 2})
	ctx := context.Background()

	addDaily(t, f, "2025-03-01", "Vitamins")
	done, err := f.svc.AddTask(ctx, "2025-03-01", NewTask{Text: "Laundry"})
	require.NoError(t, err)
	_, err = f.svc.ToggleCompletion(ctx, "2025-03-01", done.ID())
	require.NoError(t, err)
	_, err = f.svc.AddTask(ctx, "2025-03-01", NewTask{Text: "Groceries"})
	require.NoError(t, err)

	w := f.svc.Widget(fixedNow)
	assert.Equal(t, "2025-03-01", w.Date)
	assert.Equal(t, 3, w.Total)
	assert.Equal(t, 2, w.Remaining)
	assert.Len(t, w.Items, 2)
	assert.Equal(t, 1, w.More)

	marks, err := f.svc.Calendar("2025-03")
	require.NoError(t, err)
	assert.Len(t, marks, 31)
	assert.Equal(t, DayMark{Total: 3, Completed: 1}, marks["2025-03-01"])
	assert.Equal(t, DayMark{Total: 1}, marks["2025-03-31"])

	_, err = f.svc.Calendar("March")
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestService_ReadsValidateDate(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.svc.Agenda("tomorrow")
	require.ErrorIs(t, err, ErrInvalidDate)
	_, err = f.svc.Page("2025-3-1")
	require.ErrorIs(t, err, ErrInvalidDate)
	_, err = f.svc.Occurrence("2025-03-01", "nope")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "2025-03-01", f.svc.Today())
}
