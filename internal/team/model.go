package team

import (
	"time"

	"github.com/google/uuid"

	"github.com/standupbuddy/standupbuddy/internal/schedule"
)

// Team represents a row in the teams table. A team always has at least one
// manager; the repository enforces that the last one cannot leave or be
// removed.
type Team struct {
	ID           uuid.UUID
	Name         string
	InviteCode   string
	UTCOffset    string
	ScheduleTime *string
	ScheduleDays []int
	Managers     []int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Member is a team member joined with the user's display name.
type Member struct {
	TgID int64
	Name string
}

// IsManager reports whether the given user id is in the manager list.
func (t *Team) IsManager(tgID int64) bool {
	for _, m := range t.Managers {
		if m == tgID {
			return true
		}
	}
	return false
}

// HasSchedule reports whether a recurring schedule is configured.
func (t *Team) HasSchedule() bool {
	return t.ScheduleTime != nil && *t.ScheduleTime != ""
}

// Schedule resolves the stored schedule fields into a schedule.Spec.
// The second return is false when no schedule is configured or the stored
// fields do not parse (legacy rows with named zones are treated as
// unscheduled rather than guessed at).
func (t *Team) Schedule() (schedule.Spec, bool) {
	if !t.HasSchedule() {
		return schedule.Spec{}, false
	}
	tod, err := schedule.ParseTimeOfDay(*t.ScheduleTime)
	if err != nil {
		return schedule.Spec{}, false
	}
	off, err := schedule.ParseOffset(t.UTCOffset)
	if err != nil {
		return schedule.Spec{}, false
	}
	return schedule.Spec{Time: tod, Offset: off, Days: schedule.Normalize(t.ScheduleDays)}, true
}

// Offset resolves the team's fixed UTC offset, defaulting to UTC+0 when the
// stored value does not parse.
func (t *Team) Offset() schedule.Offset {
	off, err := schedule.ParseOffset(t.UTCOffset)
	if err != nil {
		return schedule.Offset(0)
	}
	return off
}
