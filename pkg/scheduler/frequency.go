package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency - периодичность отчета
type Frequency string

const (
	Daily  Frequency = "daily"  // at: "HH:MM"
	Weekly Frequency = "weekly" // at: "MON:HH:MM"
	Hourly Frequency = "hourly" // at игнорируется
)

// weekdays в порядке MON..SUN
var weekdays = []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// Schedule is a parsed frequency and time of day.
type Schedule struct {
	Frequency Frequency
	Hour      int
	Minute    int
	Weekday   time.Weekday // only for Weekly
}

// ParseSchedule validates frequency and at.
func ParseSchedule(frequency Frequency, at string) (Schedule, error) {
	s := Schedule{Frequency: frequency}

	switch frequency {
	case Hourly:
		return s, nil

	case Daily:
		h, m, err := parseClock(at)
		if err != nil {
			return s, fmt.Errorf("daily schedule %q: %w", at, err)
		}
		s.Hour, s.Minute = h, m
		return s, nil

	case Weekly:
		day, clock, ok := strings.Cut(at, ":")
		if !ok {
			return s, fmt.Errorf("weekly schedule %q: want DAY:HH:MM", at)
		}
		idx := indexOf(weekdays, strings.ToUpper(day))
		if idx < 0 {
			return s, fmt.Errorf("weekly schedule %q: unknown day %q (want one of %s)", at, day, strings.Join(weekdays, ", "))
		}
		h, m, err := parseClock(clock)
		if err != nil {
			return s, fmt.Errorf("weekly schedule %q: %w", at, err)
		}
		s.Weekday = time.Weekday((idx + 1) % 7)
		s.Hour, s.Minute = h, m
		return s, nil

	default:
		return s, fmt.Errorf("unknown frequency %q (want daily, weekly or hourly)", frequency)
	}
}

func parseClock(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("want HH:MM")
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour %q", hs)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute %q", ms)
	}
	return h, m, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// Next returns the next run after now, in now's location.
//
// Daily: today at HH:MM if still ahead, else tomorrow. Weekly: the target day
// of a later week when the target is today or already passed this week, so a
// weekly report never fires the day it is created. Hourly: now + 1h.
func (s Schedule) Next(now time.Time) time.Time {
	switch s.Frequency {
	case Daily:
		next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case Weekly:
		ahead := mondayIndex(s.Weekday) - mondayIndex(now.Weekday())
		if ahead <= 0 {
			ahead += 7
		}
		d := now.AddDate(0, 0, ahead)
		return time.Date(d.Year(), d.Month(), d.Day(), s.Hour, s.Minute, 0, 0, now.Location())

	default:
		return now.Add(time.Hour)
	}
}

// mondayIndex: Monday = 0 ... Sunday = 6
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// CronSpec returns the robfig/cron spec for the schedule.
func (s Schedule) CronSpec() string {
	switch s.Frequency {
	case Daily:
		return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
	case Weekly:
		return fmt.Sprintf("%d %d * * %d", s.Minute, s.Hour, int(s.Weekday))
	default:
		return "@every 1h"
	}
}

// NextRun parses the schedule and computes its next run after now.
func NextRun(frequency Frequency, at string, now time.Time) (time.Time, error) {
	s, err := ParseSchedule(frequency, at)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(now), nil
}
