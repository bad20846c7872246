package models

import "time"

const (
	// MaxTextLength bounds task text, counted in runes.
	MaxTextLength = 320

	DefaultPageCapacity = 8
	MaxPageCapacity     = 12
	DefaultDayTaskLimit = 12
)

type Task struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	Completed      bool       `json:"completed"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Reminder       *time.Time `json:"reminder,omitempty"`       // Absolute fire time, bounded by the owning day
	NotificationID *string    `json:"notificationId,omitempty"` // Set only when scheduling succeeded
}

// HasReminder returns true if the task carries a reminder time
func (t *Task) HasReminder() bool {
	return t.Reminder != nil
}

// Clone returns a deep copy so callers never share pointers with a store.
func (t Task) Clone() Task {
	if t.Reminder != nil {
		r := *t.Reminder
		t.Reminder = &r
	}
	if t.NotificationID != nil {
		n := *t.NotificationID
		t.NotificationID = &n
	}
	return t
}

// TaskPatch is a partial update. Nil fields are left untouched; the reminder
// is only applied when SetReminder is true, and a nil Reminder clears it.
type TaskPatch struct {
	Text        *string
	Completed   *bool
	SetReminder bool
	Reminder    *time.Time
}

// TouchesReminder reports whether the patch changes the reminder.
func (p TaskPatch) TouchesReminder() bool {
	return p.SetReminder
}

// DaySlots maps a slot number to its task; an empty cell is nil.
type DaySlots map[int]*Task

// Clone deep-copies the slot map.
func (d DaySlots) Clone() DaySlots {
	out := make(DaySlots, len(d))
	for slot, t := range d {
		if t == nil {
			out[slot] = nil
			continue
		}
		c := t.Clone()
		out[slot] = &c
	}
	return out
}
