package agenda

import (
	"sort"

	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
	"github.com/hray3182/agenda/internal/rrule"
)

// TaskReader is the read side of the task store.
type TaskReader interface {
	GetTasksForDate(date string) models.DaySlots
	GetAllTasks() map[string]models.DaySlots
	FindTask(id string) (repository.TaskLocation, bool)
}

// PatternReader is the read side of the recurrence store.
type PatternReader interface {
	GetAllPatterns() []models.Pattern
	IsOccurrenceCompleted(originalTaskID, date string) bool
}

// DayMark summarizes one calendar day.
type DayMark struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Resolver is a pure read over both stores. It holds no state of its own.
type Resolver struct {
	tasks    TaskReader
	patterns PatternReader
	logger   *zap.Logger
}

func NewResolver(tasks TaskReader, patterns PatternReader, logger *zap.Logger) *Resolver {
	return &Resolver{tasks: tasks, patterns: patterns, logger: logger}
}

// ResolveDate returns every occurrence visible on date: tasks in their own
// cells, minus those promoted by an active pattern, plus one synthesized
// occurrence per active pattern firing that day. Entries without a
// reminder come first, then the rest by ascending reminder time.
func (r *Resolver) ResolveDate(date string) []Occurrence {
	cells := r.tasks.GetTasksForDate(date)
	patterns := r.patterns.GetAllPatterns()
	suppressed := suppressedIDs(patterns)

	slots := make([]int, 0, len(cells))
	for slot := range cells {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	out := make([]Occurrence, 0, len(cells)+len(patterns))
	for _, slot := range slots {
		t := cells[slot]
		if t == nil || suppressed[t.ID] {
			continue
		}
		out = append(out, Normal{Task: t.Clone(), Slot: slot, Date: date})
	}

	for _, p := range patterns {
		if !rrule.Fires(p, date) {
			continue
		}
		loc, ok := r.tasks.FindTask(p.OriginalTaskID)
		if !ok {
			r.logger.Debug("skipping orphaned pattern", zap.String("pattern_id", p.ID), zap.String("task_id", p.OriginalTaskID))
			continue
		}
		out = append(out, Recurring{
			SyntheticID: SyntheticID(p.OriginalTaskID, date),
			Source:      loc.Task,
			Pattern:     p,
			Date:        date,
			Done:        r.patterns.IsOccurrenceCompleted(p.OriginalTaskID, date),
		})
	}

	sortForDisplay(out)
	return out
}

// CalendarMonth counts the occurrences of every day in a "2006-01" month
// that has at least one. Pattern days come from rule expansion and match
// what ResolveDate returns for the same day.
func (r *Resolver) CalendarMonth(month string) (map[string]DayMark, error) {
	first, last, err := daykey.MonthBounds(month)
	if err != nil {
		return nil, err
	}

	patterns := r.patterns.GetAllPatterns()
	suppressed := suppressedIDs(patterns)
	marks := map[string]DayMark{}

	for date, cells := range r.tasks.GetAllTasks() {
		if date < first || date > last {
			continue
		}
		for _, t := range cells {
			if t == nil || suppressed[t.ID] {
				continue
			}
			m := marks[date]
			m.Total++
			if t.Completed {
				m.Completed++
			}
			marks[date] = m
		}
	}

	for _, p := range patterns {
		if !p.IsActive {
			continue
		}
		if _, ok := r.tasks.FindTask(p.OriginalTaskID); !ok {
			continue
		}
		days, err := rrule.Occurrences(p, first, last)
		if err != nil {
			r.logger.Warn("failed to expand pattern", zap.String("pattern_id", p.ID), zap.Error(err))
			continue
		}
		for _, date := range days {
			m := marks[date]
			m.Total++
			if r.patterns.IsOccurrenceCompleted(p.OriginalTaskID, date) {
				m.Completed++
			}
			marks[date] = m
		}
	}
	return marks, nil
}

func suppressedIDs(patterns []models.Pattern) map[string]bool {
	ids := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		if p.IsActive {
			ids[p.OriginalTaskID] = true
		}
	}
	return ids
}

// sortForDisplay keeps the incoming order among entries without a reminder.
func sortForDisplay(list []Occurrence) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Reminder(), list[j].Reminder()
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
}
