package sweep

import (
	"fmt"
	"sort"
	"time"

	"parking-reservation-backend/config"
	"parking-reservation-backend/internal/calendar"
)

// Job names one scheduled batch operation.
type Job string

const (
	JobExpire   Job = "expire-no-shows"
	JobComplete Job = "complete-finished"
	JobRemind   Job = "send-reminders"
)

// Entry fires Job at Hour:Minute local time on every working day.
type Entry struct {
	Job    Job
	Hour   int
	Minute int
}

// Schedule is the full daily plan, sorted by time of day.
type Schedule []Entry

// ParseSchedule reads the "HH:MM" lists of cfg.
func ParseSchedule(cfg config.SweepConfig) (Schedule, error) {
	var s Schedule
	add := func(job Job, times []string) error {
		for _, raw := range times {
			t, err := time.Parse("15:04", raw)
			if err != nil {
				return fmt.Errorf("invalid %s time %q: %w", job, raw, err)
			}
			s = append(s, Entry{Job: job, Hour: t.Hour(), Minute: t.Minute()})
		}
		return nil
	}
	if err := add(JobExpire, cfg.ExpireAt); err != nil {
		return nil, err
	}
	if err := add(JobComplete, cfg.CompleteAt); err != nil {
		return nil, err
	}
	if err := add(JobRemind, cfg.RemindAt); err != nil {
		return nil, err
	}

	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Hour != s[j].Hour {
			return s[i].Hour < s[j].Hour
		}
		return s[i].Minute < s[j].Minute
	})
	return s, nil
}

// Next returns the first fire time strictly after `after`, in its location,
// together with every job due at that instant. It returns the zero time when
// the schedule is empty.
func (s Schedule) Next(after time.Time) (time.Time, []Job) {
	if len(s) == 0 {
		return time.Time{}, nil
	}
	loc := after.Location()
	day := calendar.DateOf(after)

	// A week always contains a working day.
	for i := 0; i <= 7; i++ {
		d := day.AddDays(i)
		if !d.IsWorkingDay() {
			continue
		}
		for _, e := range s {
			at := d.At(e.Hour, e.Minute, loc)
			if !at.After(after) {
				continue
			}
			var jobs []Job
			for _, other := range s {
				if other.Hour == e.Hour && other.Minute == e.Minute {
					jobs = append(jobs, other.Job)
				}
			}
			return at, jobs
		}
	}
	return time.Time{}, nil
}
