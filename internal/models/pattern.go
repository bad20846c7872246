package models

import (
	"fmt"
	"strings"
	"time"
)

type RepeatOption string

const (
	RepeatNone    RepeatOption = "none"
	RepeatDaily   RepeatOption = "daily"
	RepeatWeekly  RepeatOption = "weekly"
	RepeatMonthly RepeatOption = "monthly"
)

// ParseRepeatOption accepts the option names case-insensitively. An empty
// string means none.
func ParseRepeatOption(s string) (RepeatOption, error) {
	switch RepeatOption(strings.ToLower(strings.TrimSpace(s))) {
	case "", RepeatNone:
		return RepeatNone, nil
	case RepeatDaily:
		return RepeatDaily, nil
	case RepeatWeekly:
		return RepeatWeekly, nil
	case RepeatMonthly:
		return RepeatMonthly, nil
	}
	return "", fmt.Errorf("unknown repeat option %q", s)
}

// IsRecurring returns true for every option except none
func (o RepeatOption) IsRecurring() bool {
	return o == RepeatDaily || o == RepeatWeekly || o == RepeatMonthly
}

// Pattern projects one origin task onto many dates. It only references the
// origin by id; a pattern whose origin is gone resolves to nothing.
type Pattern struct {
	ID             string       `json:"id"`
	OriginalTaskID string       `json:"originalTaskId"`
	RepeatOption   RepeatOption `json:"repeatOption"`
	StartDate      string       `json:"startDate"` // Day key of the origin cell
	IsActive       bool         `json:"isActive"`
	CreatedAt      time.Time    `json:"createdAt"`
}
