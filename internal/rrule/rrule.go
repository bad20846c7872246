package rrule

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/models"
)

// Fires reports whether an active pattern produces an occurrence on date.
//
// The day count is taken on calendar dates, never elapsed hours. Monthly
// patterns fire only when the day-of-month matches the anchor, so an anchor
// on the 31st skips every shorter month.
func Fires(p models.Pattern, date string) bool {
	if !p.IsActive {
		return false
	}
	d, err := daykey.DaysBetween(p.StartDate, date)
	if err != nil || d < 0 {
		return false
	}

	switch p.RepeatOption {
	case models.RepeatDaily:
		return true
	case models.RepeatWeekly:
		return d%7 == 0
	case models.RepeatMonthly:
		anchor, err := daykey.DayOfMonth(p.StartDate)
		if err != nil {
			return false
		}
		day, err := daykey.DayOfMonth(date)
		if err != nil {
			return false
		}
		return anchor == day
	}
	return false
}

func frequency(o models.RepeatOption) (rrule.Frequency, error) {
	switch o {
	case models.RepeatDaily:
		return rrule.DAILY, nil
	case models.RepeatWeekly:
		return rrule.WEEKLY, nil
	case models.RepeatMonthly:
		return rrule.MONTHLY, nil
	}
	return 0, fmt.Errorf("repeat option %q has no frequency", o)
}

func options(p models.Pattern) (rrule.ROption, error) {
	freq, err := frequency(p.RepeatOption)
	if err != nil {
		return rrule.ROption{}, err
	}
	// Anchor at local midnight so expansion stays on calendar days.
	dtstart, err := daykey.Parse(p.StartDate)
	if err != nil {
		return rrule.ROption{}, err
	}
	return rrule.ROption{
		Freq:     freq,
		Interval: 1,
		Dtstart:  dtstart,
	}, nil
}

// Rule builds the RFC 5545 rule for a pattern.
func Rule(p models.Pattern) (*rrule.RRule, error) {
	opt, err := options(p)
	if err != nil {
		return nil, err
	}
	return rrule.NewRRule(opt)
}

// RuleString returns the RRULE text of a pattern, or "" for non-recurring options.
func RuleString(p models.Pattern) string {
	opt, err := options(p)
	if err != nil {
		return ""
	}
	return opt.RRuleString()
}

// Occurrences lists the day keys in [from, to] on which the pattern fires.
// Inactive patterns yield nothing.
func Occurrences(p models.Pattern, from, to string) ([]string, error) {
	if !p.IsActive {
		return nil, nil
	}
	rule, err := Rule(p)
	if err != nil {
		return nil, err
	}
	start, err := daykey.Parse(from)
	if err != nil {
		return nil, err
	}
	end, err := daykey.Parse(to)
	if err != nil {
		return nil, err
	}

	var days []string
	for _, t := range rule.Between(start, end, true) {
		days = append(days, daykey.Format(t))
	}
	return days, nil
}

// NextOccurrence returns the first firing day on or after the given day.
// The second result is false when the pattern never fires again.
func NextOccurrence(p models.Pattern, from string) (string, bool, error) {
	if !p.IsActive {
		return "", false, nil
	}
	rule, err := Rule(p)
	if err != nil {
		return "", false, err
	}
	start, err := daykey.Parse(from)
	if err != nil {
		return "", false, err
	}
	next := rule.After(start, true)
	if next.IsZero() {
		return "", false, nil
	}
	return daykey.Format(next), true, nil
}

var weekdayNames = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// HumanReadable describes a pattern for display.
func HumanReadable(p models.Pattern) string {
	start, err := daykey.Parse(p.StartDate)
	if err != nil {
		return Label(p.RepeatOption)
	}
	switch p.RepeatOption {
	case models.RepeatDaily:
		return "每天"
	case models.RepeatWeekly:
		return "每週" + weekdayNames[start.Weekday()]
	case models.RepeatMonthly:
		return fmt.Sprintf("每月 %d 日", start.Day())
	}
	return Label(p.RepeatOption)
}

// Label is the short name of a repeat option.
func Label(o models.RepeatOption) string {
	switch o {
	case models.RepeatDaily:
		return "每天"
	case models.RepeatWeekly:
		return "每週"
	case models.RepeatMonthly:
		return "每月"
	}
	return "不重複"
}
