// Package agenda merges one-off tasks and recurrence patterns into the
// ordered list of occurrences shown for a day, and is the single mutation
// boundary every surface goes through.
package agenda

import (
	"time"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/models"
)

// NoSlot is the slot of a recurring occurrence, which lives on no cell.
const NoSlot = -1

// Occurrence is one date's appearance of either a Normal task or a
// Recurring pattern. The set of implementations is closed.
type Occurrence interface {
	ID() string
	Day() string
	Text() string
	Reminder() *time.Time
	Completed() bool
	Repeating() bool
	SlotNumber() int

	occurrence()
}

// SyntheticID names the occurrence of a pattern's origin task on date.
func SyntheticID(originalTaskID, date string) string {
	return originalTaskID + "-repeat-" + date
}

// Normal is a task sitting in its own cell.
type Normal struct {
	Task models.Task
	Slot int
	Date string
}

func (n Normal) ID() string           { return n.Task.ID }
func (n Normal) Day() string          { return n.Date }
func (n Normal) Text() string         { return n.Task.Text }
func (n Normal) Reminder() *time.Time { return n.Task.Reminder }
func (n Normal) Completed() bool      { return n.Task.Completed }
func (n Normal) Repeating() bool      { return false }
func (n Normal) SlotNumber() int      { return n.Slot }
func (Normal) occurrence()            {}

// Recurring is a pattern's projection of its origin task onto Date.
type Recurring struct {
	SyntheticID string
	Source      models.Task
	Pattern     models.Pattern
	Date        string
	Done        bool
}

func (r Recurring) ID() string      { return r.SyntheticID }
func (r Recurring) Day() string     { return r.Date }
func (r Recurring) Text() string    { return r.Source.Text }
func (r Recurring) Completed() bool { return r.Done }
func (r Recurring) Repeating() bool { return true }
func (r Recurring) SlotNumber() int { return NoSlot }
func (Recurring) occurrence()       {}

// Reminder is the origin's reminder clock time placed on this occurrence's day.
func (r Recurring) Reminder() *time.Time {
	if r.Source.Reminder == nil {
		return nil
	}
	t, err := daykey.At(r.Date, *r.Source.Reminder)
	if err != nil {
		return r.Source.Reminder
	}
	return &t
}

// View is the flat JSON rendering of an occurrence.
type View struct {
	ID              string              `json:"id"`
	Date            string              `json:"date"`
	Text            string              `json:"text"`
	Completed       bool                `json:"completed"`
	Reminder        *time.Time          `json:"reminder,omitempty"`
	IsRepeating     bool                `json:"isRepeating"`
	Slot            int                 `json:"slot"`
	RepeatingTaskID string              `json:"repeatingTaskId,omitempty"`
	RepeatOption    models.RepeatOption `json:"repeatOption,omitempty"`
}

func ViewOf(o Occurrence) View {
	v := View{
		ID:          o.ID(),
		Date:        o.Day(),
		Text:        o.Text(),
		Completed:   o.Completed(),
		Reminder:    o.Reminder(),
		IsRepeating: o.Repeating(),
		Slot:        o.SlotNumber(),
	}
	if r, ok := o.(Recurring); ok {
		v.RepeatingTaskID = r.Source.ID
		v.RepeatOption = r.Pattern.RepeatOption
	}
	return v
}

func Views(list []Occurrence) []View {
	out := make([]View, 0, len(list))
	for _, o := range list {
		out = append(out, ViewOf(o))
	}
	return out
}
