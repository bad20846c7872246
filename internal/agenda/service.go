package agenda

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
)

var (
	ErrEmptyText        = errors.New("task text is empty")
	ErrTextTooLong      = fmt.Errorf("task text is longer than %d characters", models.MaxTextLength)
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidSlot      = fmt.Errorf("slot must be between 1 and %d", models.MaxPageCapacity)
	ErrReminderInPast   = errors.New("reminder must be in the future")
	ErrReminderAfterDay = errors.New("reminder must fall on the task's day")
	ErrDayFull          = errors.New("no room left on this day")
	ErrSlotOccupied     = errors.New("slot is already taken")
	ErrNotFound         = repository.ErrNotFound
	ErrNotRecurring     = repository.ErrNotRecurring
)

// NewTask is what a surface submits to create a task.
type NewTask struct {
	Text     string
	Reminder *time.Time
	Repeat   models.RepeatOption
}

// Changes edits an occurrence. Nil fields are left alone; the reminder is
// replaced only when SetReminder is true, and a nil Reminder removes it.
type Changes struct {
	Text        *string
	SetReminder bool
	Reminder    *time.Time
	Repeat      *models.RepeatOption
}

func (c Changes) patch() models.TaskPatch {
	return models.TaskPatch{Text: c.Text, SetReminder: c.SetReminder, Reminder: c.Reminder}
}

func (c Changes) touchesTask() bool {
	return c.Text != nil || c.SetReminder
}

// Widget is the home-screen preview for one day.
type Widget struct {
	Date      string `json:"date"`
	Items     []View `json:"items"`
	Total     int    `json:"total"`
	Remaining int    `json:"remaining"`
	More      int    `json:"more"`
}

type Config struct {
	PageCapacity int
	DayTaskLimit int
}

// Service validates input and applies every change to the two stores.
// Mutations are serialized; reads go straight to the stores.
type Service struct {
	mu sync.Mutex

	tasks    *repository.TaskStore
	patterns *repository.RecurrenceStore
	resolver *Resolver
	logger   *zap.Logger

	pageCapacity int
	dayLimit     int
	now          func() time.Time
}

func NewService(tasks *repository.TaskStore, patterns *repository.RecurrenceStore, logger *zap.Logger, cfg Config) *Service {
	if cfg.PageCapacity <= 0 {
		cfg.PageCapacity = models.DefaultPageCapacity
	}
	if cfg.PageCapacity > models.MaxPageCapacity {
		cfg.PageCapacity = models.MaxPageCapacity
	}
	if cfg.DayTaskLimit <= 0 {
		cfg.DayTaskLimit = models.DefaultDayTaskLimit
	}
	return &Service{
		tasks:        tasks,
		patterns:     patterns,
		resolver:     NewResolver(tasks, patterns, logger),
		logger:       logger,
		pageCapacity: cfg.PageCapacity,
		dayLimit:     cfg.DayTaskLimit,
		now:          time.Now,
	}
}

// SetClock replaces the time source used for "today" and reminder checks.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Today returns the current local day key.
func (s *Service) Today() string {
	return daykey.Today(s.now())
}

// Agenda returns every occurrence of the day in display order.
func (s *Service) Agenda(date string) ([]Occurrence, error) {
	if !daykey.Valid(date) {
		return nil, ErrInvalidDate
	}
	return s.resolver.ResolveDate(date), nil
}

// Page returns the day's occurrences capped at the page capacity.
func (s *Service) Page(date string) ([]Occurrence, error) {
	list, err := s.Agenda(date)
	if err != nil {
		return nil, err
	}
	if len(list) > s.pageCapacity {
		list = list[:s.pageCapacity]
	}
	return list, nil
}

// Occurrence finds one resolved occurrence by its id.
func (s *Service) Occurrence(date, id string) (Occurrence, error) {
	if !daykey.Valid(date) {
		return nil, ErrInvalidDate
	}
	return s.find(date, id)
}

func (s *Service) Patterns() []models.Pattern {
	return s.patterns.GetAllPatterns()
}

// Calendar returns per-day marks for a "2006-01" month.
func (s *Service) Calendar(month string) (map[string]DayMark, error) {
	marks, err := s.resolver.CalendarMonth(month)
	if err != nil {
		return nil, ErrInvalidDate
	}
	return marks, nil
}

// Widget previews the day containing now.
func (s *Service) Widget(now time.Time) Widget {
	date := daykey.Today(now)
	list := s.resolver.ResolveDate(date)

	w := Widget{Date: date, Total: len(list)}
	for _, o := range list {
		if !o.Completed() {
			w.Remaining++
		}
	}
	shown := list
	if len(shown) > s.pageCapacity {
		shown = shown[:s.pageCapacity]
	}
	w.Items = Views(shown)
	w.More = len(list) - len(shown)
	return w
}

// AddTask puts a task in the first free slot of the day.
func (s *Service) AddTask(ctx context.Context, date string, in NewTask) (Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateNew(date, &in); err != nil {
		return nil, err
	}
	slot, ok := s.freeSlot(date)
	if !ok {
		return nil, ErrDayFull
	}
	return s.insertLocked(ctx, date, slot, in)
}

// AddTaskAt puts a task in a specific slot, which must be empty.
func (s *Service) AddTaskAt(ctx context.Context, date string, slot int, in NewTask) (Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot < 1 || slot > models.MaxPageCapacity {
		return nil, ErrInvalidSlot
	}
	if err := s.validateNew(date, &in); err != nil {
		return nil, err
	}
	if _, taken := s.tasks.GetTask(date, slot); taken {
		return nil, ErrSlotOccupied
	}
	return s.insertLocked(ctx, date, slot, in)
}

func (s *Service) validateNew(date string, in *NewTask) error {
	if !daykey.Valid(date) {
		return ErrInvalidDate
	}
	text, err := cleanText(in.Text)
	if err != nil {
		return err
	}
	in.Text = text
	if in.Repeat == "" {
		in.Repeat = models.RepeatNone
	}
	if in.Reminder != nil {
		if err := s.validateReminder(date, *in.Reminder); err != nil {
			return err
		}
	}
	if len(s.resolver.ResolveDate(date)) >= s.dayLimit {
		return ErrDayFull
	}
	return nil
}

func (s *Service) insertLocked(ctx context.Context, date string, slot int, in NewTask) (Occurrence, error) {
	var id string
	err := s.transact("add", func() error {
		task := s.tasks.AddTask(ctx, date, slot, in.Text, in.Reminder)
		id = task.ID
		if !in.Repeat.IsRecurring() {
			return nil
		}
		if _, err := s.patterns.AddPattern(task.ID, in.Repeat, date); err != nil {
			return err
		}
		id = SyntheticID(task.ID, date)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("task added", zap.String("date", date), zap.Int("slot", slot), zap.String("repeat", string(in.Repeat)))
	return s.find(date, id)
}

// Edit changes an occurrence. Normal tasks are updated in place and
// promoted when given a repeat option. For recurring occurrences, text and
// reminder edits go to the origin task, a new repeat option re-anchors the
// pattern on the origin's date, and repeat none turns this day's occurrence
// into a standalone task.
func (s *Service) Edit(ctx context.Context, date, occurrenceID string, c Changes) (Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !daykey.Valid(date) {
		return nil, ErrInvalidDate
	}
	if c.Text != nil {
		text, err := cleanText(*c.Text)
		if err != nil {
			return nil, err
		}
		c.Text = &text
	}
	if c.SetReminder && c.Reminder != nil {
		if err := s.validateReminder(date, *c.Reminder); err != nil {
			return nil, err
		}
	}

	occ, err := s.find(date, occurrenceID)
	if err != nil {
		return nil, err
	}

	switch o := occ.(type) {
	case Normal:
		return s.editNormal(ctx, o, c)
	case Recurring:
		if c.Repeat != nil && !c.Repeat.IsRecurring() {
			task, err := s.demoteLocked(ctx, o, c)
			if err != nil {
				return nil, err
			}
			return s.find(date, task.ID)
		}
		return s.editRecurring(ctx, o, c)
	}
	return nil, ErrNotFound
}

func (s *Service) editNormal(ctx context.Context, o Normal, c Changes) (Occurrence, error) {
	promote := c.Repeat != nil && c.Repeat.IsRecurring()
	err := s.transact("edit", func() error {
		if c.touchesTask() {
			if _, err := s.tasks.UpdateTask(ctx, o.Date, o.Slot, c.patch()); err != nil {
				return err
			}
		}
		if promote {
			if _, err := s.patterns.AddPattern(o.Task.ID, *c.Repeat, o.Date); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if promote {
		return s.find(o.Date, SyntheticID(o.Task.ID, o.Date))
	}
	return s.find(o.Date, o.Task.ID)
}

func (s *Service) editRecurring(ctx context.Context, o Recurring, c Changes) (Occurrence, error) {
	loc, ok := s.tasks.FindTask(o.Source.ID)
	if !ok {
		return nil, ErrNotFound
	}
	// The origin keeps only the clock time; each occurrence moves it onto
	// its own day.
	if c.SetReminder && c.Reminder != nil {
		at, err := daykey.At(loc.Date, *c.Reminder)
		if err != nil {
			return nil, ErrInvalidDate
		}
		c.Reminder = &at
	}
	err := s.transact("edit", func() error {
		if c.touchesTask() {
			if _, err := s.tasks.UpdateTask(ctx, loc.Date, loc.Slot, c.patch()); err != nil {
				return err
			}
		}
		if c.Repeat != nil && *c.Repeat != o.Pattern.RepeatOption {
			if _, err := s.patterns.AddPattern(o.Source.ID, *c.Repeat, loc.Date); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if occ, err := s.find(o.Date, o.SyntheticID); err == nil {
		return occ, nil
	}
	// The new rule no longer fires on this day; it always fires on its anchor.
	return s.find(loc.Date, SyntheticID(o.Source.ID, loc.Date))
}

// Delete removes an occurrence. A recurring occurrence takes its whole
// pattern with it, and on the origin's own day the origin task too.
func (s *Service) Delete(ctx context.Context, date, occurrenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !daykey.Valid(date) {
		return ErrInvalidDate
	}
	occ, err := s.find(date, occurrenceID)
	if err != nil {
		return err
	}

	switch o := occ.(type) {
	case Normal:
		if !s.tasks.DeleteTask(ctx, o.Date, o.Slot) {
			return ErrNotFound
		}
		s.logger.Info("task deleted", zap.String("date", o.Date), zap.Int("slot", o.Slot))
	case Recurring:
		return s.transact("delete", func() error {
			s.patterns.RemovePattern(o.Source.ID)
			if loc, ok := s.tasks.FindTask(o.Source.ID); ok && loc.Date == o.Date {
				s.tasks.DeleteTask(ctx, loc.Date, loc.Slot)
			}
			s.logger.Info("pattern deleted", zap.String("task_id", o.Source.ID))
			return nil
		})
	}
	return nil
}

// ToggleCompletion flips a normal task, or a recurring occurrence on this
// date only.
func (s *Service) ToggleCompletion(ctx context.Context, date, occurrenceID string) (Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !daykey.Valid(date) {
		return nil, ErrInvalidDate
	}
	occ, err := s.find(date, occurrenceID)
	if err != nil {
		return nil, err
	}

	switch o := occ.(type) {
	case Normal:
		if _, err := s.tasks.ToggleCompletion(ctx, o.Date, o.Slot); err != nil {
			return nil, err
		}
	case Recurring:
		s.patterns.ToggleOccurrenceCompletion(o.Source.ID, o.Date)
	}
	return s.find(date, occurrenceID)
}

// PromoteToRecurring makes a task the origin of a pattern anchored on the
// task's own date, replacing any pattern it already had.
func (s *Service) PromoteToRecurring(ctx context.Context, taskID string, option models.RepeatOption) (models.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.tasks.FindTask(taskID)
	if !ok {
		return models.Pattern{}, ErrNotFound
	}
	var p models.Pattern
	err := s.transact("promote", func() error {
		var err error
		p, err = s.patterns.AddPattern(taskID, option, loc.Date)
		return err
	})
	return p, err
}

// DemoteToNormal removes a task's pattern and leaves the occurrence of date
// as a standalone task in slot. On the origin's own date the origin is
// kept where it is and slot is ignored.
func (s *Service) DemoteToNormal(ctx context.Context, taskID, date string, slot int) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !daykey.Valid(date) {
		return models.Task{}, ErrInvalidDate
	}
	occ, err := s.find(date, SyntheticID(taskID, date))
	if err != nil {
		return models.Task{}, err
	}
	o, ok := occ.(Recurring)
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return s.demoteAtLocked(ctx, o, slot, Changes{})
}

func (s *Service) demoteLocked(ctx context.Context, o Recurring, c Changes) (models.Task, error) {
	slot := 0
	if loc, ok := s.tasks.FindTask(o.Source.ID); !ok || loc.Date != o.Date {
		free, ok := s.freeSlot(o.Date)
		if !ok {
			return models.Task{}, ErrDayFull
		}
		slot = free
	}
	return s.demoteAtLocked(ctx, o, slot, c)
}

func (s *Service) demoteAtLocked(ctx context.Context, o Recurring, slot int, c Changes) (models.Task, error) {
	loc, ok := s.tasks.FindTask(o.Source.ID)
	if !ok {
		return models.Task{}, ErrNotFound
	}

	var out models.Task
	err := s.transact("demote", func() error {
		s.patterns.RemovePattern(o.Source.ID)

		if loc.Date == o.Date {
			patch := c.patch()
			done := o.Done
			patch.Completed = &done
			t, err := s.tasks.UpdateTask(ctx, loc.Date, loc.Slot, patch)
			out = t
			return err
		}

		if slot < 1 || slot > models.MaxPageCapacity {
			return ErrInvalidSlot
		}
		if _, taken := s.tasks.GetTask(o.Date, slot); taken {
			return ErrSlotOccupied
		}
		text := o.Source.Text
		if c.Text != nil {
			text = *c.Text
		}
		reminder := o.Reminder()
		if c.SetReminder {
			reminder = c.Reminder
		}
		out = s.tasks.AddTask(ctx, o.Date, slot, text, reminder)
		if o.Done {
			t, err := s.tasks.ToggleCompletion(ctx, o.Date, slot)
			out = t
			return err
		}
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	s.logger.Info("pattern demoted", zap.String("task_id", o.Source.ID), zap.String("date", o.Date))
	return out, nil
}

// TogglePattern pauses or resumes a pattern.
func (s *Service) TogglePattern(ctx context.Context, patternID string) (models.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patterns.TogglePattern(patternID)
}

// ClearAll drops every task, pattern and scheduled reminder.
func (s *Service) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks.Clear(ctx)
	s.patterns.Clear()
	s.logger.Info("all data cleared")
}

func (s *Service) find(date, id string) (Occurrence, error) {
	for _, o := range s.resolver.ResolveDate(date) {
		if o.ID() == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) freeSlot(date string) (int, bool) {
	for slot := 1; slot <= models.MaxPageCapacity; slot++ {
		if _, taken := s.tasks.GetTask(date, slot); !taken {
			return slot, true
		}
	}
	return 0, false
}

func (s *Service) validateReminder(date string, at time.Time) error {
	if !at.After(s.now()) {
		return ErrReminderInPast
	}
	end, err := daykey.EndOfDay(date)
	if err != nil {
		return ErrInvalidDate
	}
	if at.After(end) {
		return ErrReminderAfterDay
	}
	return nil
}

// transact runs fn against both stores and puts them back if it fails.
func (s *Service) transact(op string, fn func() error) error {
	tasks := s.tasks.Snapshot()
	patterns := s.patterns.Snapshot()
	if err := fn(); err != nil {
		s.tasks.Restore(tasks)
		s.patterns.Restore(patterns)
		s.logger.Warn("rolled back", zap.String("op", op), zap.Error(err))
		return err
	}
	return nil
}

func cleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(text) > models.MaxTextLength {
		return "", ErrTextTooLong
	}
	return text, nil
}
