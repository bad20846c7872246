package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/kv"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/rrule"
)

var ErrNotRecurring = errors.New("repeat option does not recur")

const recurrenceKey = "recurrence"

type recurrenceState struct {
	RepeatingPatterns        []models.Pattern `json:"repeatingPatterns"`
	RepeatingTaskCompletions map[string]bool  `json:"repeatingTaskCompletions"`
}

func (st recurrenceState) clone() recurrenceState {
	out := recurrenceState{
		RepeatingPatterns:        append([]models.Pattern(nil), st.RepeatingPatterns...),
		RepeatingTaskCompletions: make(map[string]bool, len(st.RepeatingTaskCompletions)),
	}
	for k, v := range st.RepeatingTaskCompletions {
		out.RepeatingTaskCompletions[k] = v
	}
	return out
}

type RecurrenceSnapshot struct {
	state recurrenceState
}

// completionKey identifies one occurrence of a recurring task.
func completionKey(originalTaskID, date string) string {
	return originalTaskID + "-" + date
}

// RecurrenceStore owns repetition patterns and the per-occurrence completion
// overrides of recurring tasks.
type RecurrenceStore struct {
	mu    sync.RWMutex
	state recurrenceState

	writer *kv.Writer
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewRecurrenceStore(writer *kv.Writer, logger *zap.Logger) *RecurrenceStore {
	return &RecurrenceStore{
		state:  recurrenceState{RepeatingTaskCompletions: map[string]bool{}},
		writer: writer,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Load replaces the in-memory state with the persisted one, migrating
// timestamp-style start dates and completion keys to day keys.
func (s *RecurrenceStore) Load(ctx context.Context) error {
	raw, ok, err := s.writer.Load(ctx, recurrenceKey)
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}
	if !ok {
		return nil
	}

	var loaded recurrenceState
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return fmt.Errorf("failed to decode patterns: %w", err)
	}
	if loaded.RepeatingTaskCompletions == nil {
		loaded.RepeatingTaskCompletions = map[string]bool{}
	}

	changed := false
	for i, p := range loaded.RepeatingPatterns {
		if key, rewritten := daykey.Normalize(p.StartDate); rewritten {
			loaded.RepeatingPatterns[i].StartDate = key
			changed = true
		}
	}

	completions := make(map[string]bool, len(loaded.RepeatingTaskCompletions))
	for key, done := range loaded.RepeatingTaskCompletions {
		next := key
		for _, p := range loaded.RepeatingPatterns {
			prefix := p.OriginalTaskID + "-"
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if date, rewritten := daykey.Normalize(strings.TrimPrefix(key, prefix)); rewritten {
				next = completionKey(p.OriginalTaskID, date)
				changed = true
			}
			break
		}
		completions[next] = completions[next] || done
	}
	loaded.RepeatingTaskCompletions = completions

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = loaded
	if changed {
		s.logger.Info("migrated recurrence date keys")
		s.persistLocked()
	}
	return nil
}

// AddPattern creates an active pattern for the task. Any earlier pattern for
// the same task is removed first, so a task never has two.
func (s *RecurrenceStore) AddPattern(originalTaskID string, option models.RepeatOption, startDate string) (models.Pattern, error) {
	if !option.IsRecurring() {
		return models.Pattern{}, fmt.Errorf("%w: %q", ErrNotRecurring, option)
	}

	p := models.Pattern{
		ID:             s.newID(),
		OriginalTaskID: originalTaskID,
		RepeatOption:   option,
		StartDate:      startDate,
		IsActive:       true,
		CreatedAt:      s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(originalTaskID)
	s.state.RepeatingPatterns = append(s.state.RepeatingPatterns, p)
	s.persistLocked()
	return p, nil
}

// RemovePattern hard-deletes every pattern for the task and returns how many
// were removed.
func (s *RecurrenceStore) RemovePattern(originalTaskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.removeLocked(originalTaskID)
	if n > 0 {
		s.persistLocked()
	}
	return n
}

func (s *RecurrenceStore) removeLocked(originalTaskID string) int {
	kept := s.state.RepeatingPatterns[:0]
	removed := 0
	for _, p := range s.state.RepeatingPatterns {
		if p.OriginalTaskID == originalTaskID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.state.RepeatingPatterns = kept
	return removed
}

// TogglePattern flips IsActive on the pattern with the given id.
func (s *RecurrenceStore) TogglePattern(id string) (models.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.RepeatingPatterns {
		if s.state.RepeatingPatterns[i].ID == id {
			s.state.RepeatingPatterns[i].IsActive = !s.state.RepeatingPatterns[i].IsActive
			s.persistLocked()
			return s.state.RepeatingPatterns[i], nil
		}
	}
	return models.Pattern{}, ErrNotFound
}

// ShouldFireOnDate reports whether an active pattern of the task fires on date.
func (s *RecurrenceStore) ShouldFireOnDate(originalTaskID, date string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.state.RepeatingPatterns {
		if p.OriginalTaskID == originalTaskID && rrule.Fires(p, date) {
			return true
		}
	}
	return false
}

// ToggleOccurrenceCompletion flips the completion of one occurrence and
// returns the new value. Other dates are untouched.
func (s *RecurrenceStore) ToggleOccurrenceCompletion(originalTaskID, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := completionKey(originalTaskID, date)
	done := !s.state.RepeatingTaskCompletions[key]
	s.state.RepeatingTaskCompletions[key] = done
	s.persistLocked()
	return done
}

func (s *RecurrenceStore) IsOccurrenceCompleted(originalTaskID, date string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RepeatingTaskCompletions[completionKey(originalTaskID, date)]
}

// GetAllPatterns returns the patterns in insertion order.
func (s *RecurrenceStore) GetAllPatterns() []models.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Pattern(nil), s.state.RepeatingPatterns...)
}

func (s *RecurrenceStore) GetPattern(originalTaskID string) (models.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.state.RepeatingPatterns {
		if p.OriginalTaskID == originalTaskID {
			return p, true
		}
	}
	return models.Pattern{}, false
}

func (s *RecurrenceStore) GetPatternByID(id string) (models.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.state.RepeatingPatterns {
		if p.ID == id {
			return p, true
		}
	}
	return models.Pattern{}, false
}

func (s *RecurrenceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = recurrenceState{RepeatingTaskCompletions: map[string]bool{}}
	s.persistLocked()
}

func (s *RecurrenceStore) Snapshot() RecurrenceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RecurrenceSnapshot{state: s.state.clone()}
}

func (s *RecurrenceStore) Restore(snap RecurrenceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap.state.clone()
	s.persistLocked()
}

func (s *RecurrenceStore) persistLocked() {
	st := s.state
	if st.RepeatingPatterns == nil {
		st.RepeatingPatterns = []models.Pattern{}
	}
	b, err := json.Marshal(st)
	if err != nil {
		s.logger.Error("failed to encode patterns", zap.Error(err))
		return
	}
	s.writer.Save(recurrenceKey, string(b))
}
