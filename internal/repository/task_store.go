package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/kv"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/notify"
)

var ErrNotFound = errors.New("not found")

const (
	tasksKey      = "tasks"
	reminderTitle = "提醒"
)

type taskState struct {
	TasksByDate map[string]models.DaySlots `json:"tasksByDate"`
}

func (st taskState) clone() taskState {
	out := taskState{TasksByDate: make(map[string]models.DaySlots, len(st.TasksByDate))}
	for date, slots := range st.TasksByDate {
		out.TasksByDate[date] = slots.Clone()
	}
	return out
}

// TaskLocation is where a task lives.
type TaskLocation struct {
	Date string
	Slot int
	Task models.Task
}

type cellRef struct {
	date string
	slot int
}

// TaskSnapshot is an opaque copy of the store used to roll back a failed
// multi-step change.
type TaskSnapshot struct {
	state taskState
}

// TaskStore owns the one-off tasks, keyed by (date, slot). Date keys are
// opaque here; validating them is the caller's job.
type TaskStore struct {
	mu    sync.RWMutex
	state taskState
	index map[string]cellRef // task id -> cell

	writer   *kv.Writer
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewTaskStore(writer *kv.Writer, notifier notify.Notifier, logger *zap.Logger) *TaskStore {
	return &TaskStore{
		state:    taskState{TasksByDate: map[string]models.DaySlots{}},
		index:    map[string]cellRef{},
		writer:   writer,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Load replaces the in-memory state with the persisted one. Date keys that
// still carry a time component are migrated to day keys.
func (s *TaskStore) Load(ctx context.Context) error {
	raw, ok, err := s.writer.Load(ctx, tasksKey)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	if !ok {
		return nil
	}

	var loaded taskState
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return fmt.Errorf("failed to decode tasks: %w", err)
	}

	migrated := taskState{TasksByDate: map[string]models.DaySlots{}}
	changed := false
	for _, date := range sortedKeys(loaded.TasksByDate) {
		key, rewritten := daykey.Normalize(date)
		if rewritten {
			changed = true
			s.logger.Info("migrated task date key", zap.String("from", date), zap.String("to", key))
		}
		if s.mergeSlots(migrated.TasksByDate, key, loaded.TasksByDate[date]) {
			changed = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = migrated
	s.rebuildIndexLocked()
	if changed {
		s.persistLocked()
	}
	return nil
}

// mergeSlots copies slots into dst[date]. A task colliding with an occupied
// slot moves to the nearest free slot above it, wrapping to the lowest one.
// When the day has no room left the task is logged and dropped. Reports
// whether anything moved or was dropped.
func (s *TaskStore) mergeSlots(dst map[string]models.DaySlots, date string, src models.DaySlots) bool {
	day, ok := dst[date]
	if !ok {
		day = models.DaySlots{}
		dst[date] = day
	}
	changed := false
	slots := make([]int, 0, len(src))
	for slot := range src {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		t := src[slot]
		if cur, taken := day[slot]; !taken || cur == nil {
			day[slot] = t
			continue
		}
		if t == nil {
			continue
		}
		changed = true
		free, ok := freeSlotFrom(day, slot)
		if !ok {
			s.logger.Error("no free slot for migrated task, dropping it",
				zap.String("date", date),
				zap.Int("slot", slot),
				zap.String("task_id", t.ID),
				zap.String("text", t.Text))
			continue
		}
		day[free] = t
	}
	return changed
}

func freeSlotFrom(day models.DaySlots, slot int) (int, bool) {
	for i := 1; i < models.MaxPageCapacity; i++ {
		candidate := (slot-1+i)%models.MaxPageCapacity + 1
		if day[candidate] == nil {
			return candidate, true
		}
	}
	return 0, false
}

// AddTask stores a new task in the cell, scheduling its reminder if one is
// given. It does not check whether the cell is free.
func (s *TaskStore) AddTask(ctx context.Context, date string, slot int, text string, reminder *time.Time) models.Task {
	now := s.now()
	task := models.Task{
		ID:        s.newID(),
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if reminder != nil {
		r := *reminder
		task.Reminder = &r
		task.NotificationID = s.schedule(ctx, task, date)
	}

	previous, occupied := s.GetTask(date, slot)

	s.mu.Lock()
	if occupied {
		delete(s.index, previous.ID)
	}
	s.putLocked(date, slot, task)
	s.persistLocked()
	s.mu.Unlock()

	if occupied {
		s.cancel(ctx, previous.ID)
	}
	return task.Clone()
}

// UpdateTask merges patch into the task at (date, slot). Touching the
// reminder cancels the old notification before scheduling a new one.
func (s *TaskStore) UpdateTask(ctx context.Context, date string, slot int, patch models.TaskPatch) (models.Task, error) {
	cur, ok := s.GetTask(date, slot)
	if !ok {
		return models.Task{}, ErrNotFound
	}

	next := cur.Clone()
	if patch.Text != nil {
		next.Text = *patch.Text
	}
	if patch.Completed != nil {
		next.Completed = *patch.Completed
	}
	if patch.TouchesReminder() {
		s.cancel(ctx, cur.ID)
		next.Reminder = nil
		next.NotificationID = nil
		if patch.Reminder != nil {
			r := *patch.Reminder
			next.Reminder = &r
			next.NotificationID = s.schedule(ctx, next, date)
		}
	}
	next.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.state.TasksByDate[date][slot]; t == nil || t.ID != cur.ID {
		return models.Task{}, ErrNotFound
	}
	s.putLocked(date, slot, next)
	s.persistLocked()
	return next.Clone(), nil
}

// DeleteTask cancels the task's notification and empties its cell. It
// reports false when the cell was already empty.
func (s *TaskStore) DeleteTask(ctx context.Context, date string, slot int) bool {
	cur, ok := s.GetTask(date, slot)
	if !ok {
		return false
	}
	s.cancel(ctx, cur.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.state.TasksByDate[date][slot]; t == nil || t.ID != cur.ID {
		return false
	}
	s.state.TasksByDate[date][slot] = nil
	delete(s.index, cur.ID)
	s.persistLocked()
	return true
}

func (s *TaskStore) ToggleCompletion(ctx context.Context, date string, slot int) (models.Task, error) {
	cur, ok := s.GetTask(date, slot)
	if !ok {
		return models.Task{}, ErrNotFound
	}
	completed := !cur.Completed
	return s.UpdateTask(ctx, date, slot, models.TaskPatch{Completed: &completed})
}

func (s *TaskStore) GetTask(date string, slot int) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.state.TasksByDate[date][slot]
	if t == nil {
		return models.Task{}, false
	}
	return t.Clone(), true
}

// GetTasksForDate returns a copy of the date's slot map; unknown dates
// yield an empty map.
func (s *TaskStore) GetTasksForDate(date string) models.DaySlots {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots, ok := s.state.TasksByDate[date]
	if !ok {
		return models.DaySlots{}
	}
	return slots.Clone()
}

func (s *TaskStore) GetAllTasks() map[string]models.DaySlots {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone().TasksByDate
}

// FindTask locates a task by id across all dates.
func (s *TaskStore) FindTask(id string) (TaskLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.index[id]
	if !ok {
		return TaskLocation{}, false
	}
	t := s.state.TasksByDate[ref.date][ref.slot]
	if t == nil || t.ID != id {
		return TaskLocation{}, false
	}
	return TaskLocation{Date: ref.date, Slot: ref.slot, Task: t.Clone()}, true
}

// Exists reports whether a task with the id is stored anywhere.
func (s *TaskStore) Exists(id string) bool {
	_, ok := s.FindTask(id)
	return ok
}

// Clear removes every task and cancels every scheduled notification.
func (s *TaskStore) Clear(ctx context.Context) {
	if err := s.notifier.CancelAll(ctx); err != nil {
		s.logger.Warn("failed to cancel notifications", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = taskState{TasksByDate: map[string]models.DaySlots{}}
	s.index = map[string]cellRef{}
	s.persistLocked()
}

func (s *TaskStore) Snapshot() TaskSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TaskSnapshot{state: s.state.clone()}
}

// Restore puts a snapshot back. Notifications scheduled since the snapshot
// are left for reconciliation to drop.
func (s *TaskStore) Restore(snap TaskSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap.state.clone()
	if s.state.TasksByDate == nil {
		s.state.TasksByDate = map[string]models.DaySlots{}
	}
	s.rebuildIndexLocked()
	s.persistLocked()
}

func (s *TaskStore) putLocked(date string, slot int, task models.Task) {
	day, ok := s.state.TasksByDate[date]
	if !ok {
		day = models.DaySlots{}
		s.state.TasksByDate[date] = day
	}
	t := task.Clone()
	day[slot] = &t
	s.index[task.ID] = cellRef{date: date, slot: slot}
}

func (s *TaskStore) rebuildIndexLocked() {
	s.index = map[string]cellRef{}
	for date, slots := range s.state.TasksByDate {
		for slot, t := range slots {
			if t != nil {
				s.index[t.ID] = cellRef{date: date, slot: slot}
			}
		}
	}
}

func (s *TaskStore) persistLocked() {
	b, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Error("failed to encode tasks", zap.Error(err))
		return
	}
	s.writer.Save(tasksKey, string(b))
}

func (s *TaskStore) schedule(ctx context.Context, task models.Task, date string) *string {
	handle, err := s.notifier.Schedule(ctx, notify.Request{
		TaskID:    task.ID,
		Title:     reminderTitle,
		Body:      task.Text,
		FireAt:    *task.Reminder,
		OwnerDate: date,
	})
	if err != nil {
		s.logger.Warn("failed to schedule reminder", zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}
	return &handle
}

func (s *TaskStore) cancel(ctx context.Context, taskID string) {
	if err := s.notifier.Cancel(ctx, taskID); err != nil {
		s.logger.Warn("failed to cancel reminder", zap.String("task_id", taskID), zap.Error(err))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
