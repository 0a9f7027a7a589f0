package standup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStandupNotFound is returned when a standup record is not found.
var ErrStandupNotFound = errors.New("standup not found")

// ErrAlreadyRan is returned when a non-forced creation finds an existing
// standup for the same team and local date.
var ErrAlreadyRan = errors.New("standup already ran for this date")

// ErrNoMembers is returned when a standup would be created with no answer rows.
var ErrNoMembers = errors.New("team has no members")

// Repository provides operations on standups and answers.
type Repository interface {
	// CreateWithAnswers inserts a standup and one unanswered answer per
	// member in a single transaction. Unless force is set, it aborts with
	// ErrAlreadyRan when a standup already exists for (team, localDate);
	// the existence check and the insert are atomic with respect to
	// concurrent creations for the same team.
	CreateWithAnswers(ctx context.Context, teamID uuid.UUID, localDate string, startedAt time.Time, memberIDs []int64, force bool) (*Standup, error)
	SetJobKeys(ctx context.Context, id uuid.UUID, reminderKey, summaryKey string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Standup, error)
	// LatestForDate returns the most recent standup for (team, localDate),
	// or ErrStandupNotFound.
	LatestForDate(ctx context.Context, teamID uuid.UUID, localDate string) (*Standup, error)
	// Unanswered returns the user ids of answers still unanswered.
	Unanswered(ctx context.Context, standupID uuid.UUID) ([]int64, error)
	// SummaryRows returns the team's members left-joined with their answers
	// for the standup, ordered by display name.
	SummaryRows(ctx context.Context, standupID, teamID uuid.UUID) ([]SummaryRow, error)
	// RecordAnswer flips an unanswered answer to answered with the given
	// text and timestamp. Returns false when no unanswered row matched,
	// so a second reply on the same day changes nothing.
	RecordAnswer(ctx context.Context, standupID uuid.UUID, tgID int64, text string, answeredAt time.Time) (bool, error)
}
