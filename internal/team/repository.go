package team

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTeamNotFound is returned when a team record is not found.
var ErrTeamNotFound = errors.New("team not found")

// ErrInvalidInviteCode is returned when no team matches an invite code.
var ErrInvalidInviteCode = errors.New("invalid invite code")

// ErrMemberNotFound is returned when a (team, user) membership does not exist.
var ErrMemberNotFound = errors.New("member not found")

// ErrLastManager is returned when a mutation would leave the team without
// any manager.
var ErrLastManager = errors.New("cannot remove the last manager")

// Repository provides operations on teams and memberships. Mutations that
// enforce an invariant (membership plus manager list) run inside a single
// transaction.
type Repository interface {
	Create(ctx context.Context, name string, creator int64) (*Team, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Team, error)
	GetByInviteCode(ctx context.Context, code string) (*Team, error)
	ListByUser(ctx context.Context, tgID int64) ([]Team, error)
	ListScheduled(ctx context.Context) ([]Team, error)
	Members(ctx context.Context, teamID uuid.UUID) ([]Member, error)
	Join(ctx context.Context, code string, tgID int64) (*Team, error)
	Leave(ctx context.Context, teamID uuid.UUID, tgID int64) error
	RemoveMember(ctx context.Context, teamID uuid.UUID, tgID int64) error
	SetSchedule(ctx context.Context, teamID uuid.UUID, timeOfDay, utcOffset string, days []int) error
	ClearSchedule(ctx context.Context, teamID uuid.UUID) error
}
