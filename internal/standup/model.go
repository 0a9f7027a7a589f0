package standup

import (
	"time"

	"github.com/google/uuid"
)

// Standup is one instance of the daily check-in for one team on one local
// calendar date. Rows are never mutated after creation except to record the
// timer keys, and never deleted.
type Standup struct {
	ID             uuid.UUID
	TeamID         uuid.UUID
	LocalDate      string
	StartedAt      time.Time
	ReminderJobKey string
	SummaryJobKey  string
}

// Answer is one member's response record for one standup. It is created
// unanswered in bulk at standup creation and flipped to answered at most
// once by the first qualifying reply.
type Answer struct {
	ID         uuid.UUID
	StandupID  uuid.UUID
	TgID       int64
	Answered   bool
	Text       string
	AnsweredAt *time.Time
}

// SummaryRow is a team member left-joined with their answer for one
// standup. Members who left after the standup opened still appear as long
// as their answer row exists.
type SummaryRow struct {
	TgID     int64
	Name     string
	Answered bool
	Text     string
}
