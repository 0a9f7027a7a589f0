package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeOfDay is returned when a time string is not zero-padded HH:MM.
var ErrInvalidTimeOfDay = errors.New("invalid time of day, expected HH:MM")

// ErrInvalidOffset is returned when an offset string is not UTC±N with N in [-12, 14].
var ErrInvalidOffset = errors.New("invalid offset, expected UTC+N or UTC-N")

// Weekdays are numbered 0=Monday .. 6=Sunday throughout this package.
var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// TimeOfDay is a wall-clock time without a date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses strict zero-padded 24-hour "HH:MM" input.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return TimeOfDay{}, ErrInvalidTimeOfDay
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String renders the zero-padded HH:MM form, round-tripping ParseTimeOfDay.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Offset is a fixed whole-hour UTC offset. Named zones are not supported:
// a schedule configured as UTC+3 stays UTC+3 across DST transitions.
type Offset int

// Offset bounds, matching the real range of standard time zones.
const (
	MinOffset = -12
	MaxOffset = 14
)

// ParseOffset parses "UTC+N" / "UTC-N" for integer N in [-12, 14].
// "UTC+0" and "UTC-0" are both accepted; anything else is rejected.
func ParseOffset(s string) (Offset, error) {
	rest, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(s)), "UTC")
	if !ok || rest == "" {
		return 0, ErrInvalidOffset
	}
	if rest[0] != '+' && rest[0] != '-' {
		return 0, ErrInvalidOffset
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < MinOffset || n > MaxOffset {
		return 0, ErrInvalidOffset
	}
	return Offset(n), nil
}

// String renders the canonical "UTC+N" form.
func (o Offset) String() string {
	return fmt.Sprintf("UTC%+d", int(o))
}

// Location returns a fixed-zone *time.Location for the offset.
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.String(), int(o)*3600)
}

// LocalDate evaluates the calendar date at the given instant in the offset's
// zone. The result is the idempotency key for daily standup creation.
func LocalDate(now time.Time, o Offset) string {
	return now.In(o.Location()).Format("2006-01-02")
}

// Spec is a fully configured recurring schedule.
type Spec struct {
	Time   TimeOfDay
	Offset Offset
	Days   []int
}

// weekdayOf maps Go's Sunday-based weekday to the Monday-based numbering.
func weekdayOf(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Normalize sorts and deduplicates a weekday set. An empty or nil set
// fails closed to every day rather than "never".
func Normalize(days []int) []int {
	set := map[int]bool{}
	for _, d := range days {
		if d >= 0 && d <= 6 {
			set[d] = true
		}
	}
	if len(set) == 0 {
		return []int{0, 1, 2, 3, 4, 5, 6}
	}
	out := make([]int, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// NextTrigger returns the next instant at which the schedule fires, strictly
// from the team's local clock: today's occurrence if it is still ahead and
// today's weekday is allowed, otherwise the first allowed day within the
// next two weeks.
func NextTrigger(now time.Time, spec Spec) time.Time {
	loc := spec.Offset.Location()
	days := Normalize(spec.Days)
	allowed := map[int]bool{}
	for _, d := range days {
		allowed[d] = true
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), spec.Time.Hour, spec.Time.Minute, 0, 0, loc)
	if !candidate.Before(now) && allowed[weekdayOf(candidate)] {
		return candidate
	}

	for add := 1; add <= 14; add++ {
		d := local.AddDate(0, 0, add)
		if allowed[weekdayOf(d)] {
			return time.Date(d.Year(), d.Month(), d.Day(), spec.Time.Hour, spec.Time.Minute, 0, 0, loc)
		}
	}

	// Unreachable: a normalized set always matches within seven days.
	return time.Time{}
}

// Label canonicalizes a weekday set to a human label. The three presets are
// matched exactly; anything else renders as a comma list in weekday order.
func Label(days []int) string {
	days = Normalize(days)
	switch {
	case equalDays(days, []int{0, 1, 2, 3, 4, 5, 6}):
		return "every day"
	case equalDays(days, []int{0, 1, 2, 3, 4}):
		return "weekdays"
	case equalDays(days, []int{5, 6}):
		return "weekends"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, dayNames[d])
	}
	return strings.Join(names, ", ")
}

func equalDays(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
