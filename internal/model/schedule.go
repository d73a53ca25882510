package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ScheduleKind string

const (
	ScheduleNone   ScheduleKind = "none"
	ScheduleAllDay ScheduleKind = "all-day"
	ScheduleTimed  ScheduleKind = "timed"
)

// Schedule is a closed union over Kind. Date is only meaningful for
// ScheduleAllDay, StartAt/EndAt only for ScheduleTimed. All instants are UTC.
type Schedule struct {
	Kind    ScheduleKind
	Date    time.Time
	StartAt time.Time
	EndAt   *time.Time
}

func NoSchedule() Schedule {
	return Schedule{Kind: ScheduleNone}
}

func AllDay(date time.Time) Schedule {
	d := date.UTC()
	return Schedule{Kind: ScheduleAllDay, Date: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)}
}

func Timed(startAt time.Time, endAt *time.Time) Schedule {
	s := Schedule{Kind: ScheduleTimed, StartAt: startAt.UTC()}
	if endAt != nil {
		end := endAt.UTC()
		s.EndAt = &end
	}
	return s
}

// StartInstant is the moment the session is considered to begin. The bool is
// false for schedules without a temporal anchor.
func (s Schedule) StartInstant() (time.Time, bool) {
	switch s.Kind {
	case ScheduleTimed:
		return s.StartAt, true
	case ScheduleAllDay:
		return s.Date, true
	default:
		return time.Time{}, false
	}
}

type scheduleJSON struct {
	Kind    ScheduleKind `json:"kind"`
	Date    *string      `json:"date,omitempty"`
	StartAt *string      `json:"startAt,omitempty"`
	EndAt   *string      `json:"endAt,omitempty"`
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	out := scheduleJSON{Kind: ScheduleNone}
	switch s.Kind {
	case ScheduleAllDay:
		out.Kind = ScheduleAllDay
		date := formatInstant(s.Date)
		out.Date = &date
	case ScheduleTimed:
		out.Kind = ScheduleTimed
		start := formatInstant(s.StartAt)
		out.StartAt = &start
		if s.EndAt != nil {
			end := formatInstant(*s.EndAt)
			out.EndAt = &end
		}
	}
	return json.Marshal(out)
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSchedule validates an untyped schedule object and normalizes it. An
// absent or unknown kind yields the none schedule. The same rules apply to
// session creation and update.
func ParseSchedule(input map[string]any) (Schedule, error) {
	kind, _ := input["kind"].(string)

	switch ScheduleKind(kind) {
	case ScheduleAllDay:
		raw, ok := input["date"].(string)
		if !ok || strings.TrimSpace(raw) == "" {
			return Schedule{}, NewValidationError("schedule.date", "schedule.date must be provided")
		}
		date, err := parseCalendarDate(raw)
		if err != nil {
			return Schedule{}, NewValidationError("schedule.date", "schedule.date must be a valid ISO date")
		}
		return AllDay(date), nil

	case ScheduleTimed:
		rawStart, ok := input["startAt"].(string)
		if !ok || strings.TrimSpace(rawStart) == "" {
			return Schedule{}, NewValidationError("schedule.startAt", "schedule.startAt must be provided")
		}
		startAt, err := parseInstant(rawStart)
		if err != nil {
			return Schedule{}, NewValidationError("schedule.startAt", "schedule.startAt must be a valid ISO date")
		}

		var endAt *time.Time
		if rawEnd, present := input["endAt"]; present && rawEnd != nil {
			endStr, ok := rawEnd.(string)
			if !ok {
				return Schedule{}, NewValidationError("schedule.endAt", "schedule.endAt must be a string")
			}
			end, err := parseInstant(endStr)
			if err != nil {
				return Schedule{}, NewValidationError("schedule.endAt", "schedule.endAt must be a valid ISO date")
			}
			if !end.After(startAt) {
				return Schedule{}, NewValidationError("schedule.endAt", "schedule.endAt must be after schedule.startAt")
			}
			endAt = &end
		}
		return Timed(startAt, endAt), nil

	default:
		return NoSchedule(), nil
	}
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range instantLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// parseCalendarDate keeps the calendar day as written, ignoring any time or
// offset that came with it.
func parseCalendarDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	for _, layout := range instantLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO date %q", raw)
}

func formatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
