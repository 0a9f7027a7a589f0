package team

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const teamColumns = `id, name, invite_code, utc_offset, schedule_time, schedule_days, managers, created_at, updated_at`

const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

func genInviteCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	for i := range b {
		b[i] = inviteCodeAlphabet[int(b[i])%len(inviteCodeAlphabet)]
	}
	return string(b), nil
}

// Create inserts a new team with a generated invite code and the creator as
// sole manager and first member, all in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, name string, creator int64) (*Team, error) {
	// Invite codes are random; retry a few times on the unlikely collision.
	for attempt := 0; attempt < 3; attempt++ {
		code, err := genInviteCode()
		if err != nil {
			return nil, err
		}

		t, err := r.createWithCode(ctx, name, code, creator)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				continue
			}
			return nil, err
		}
		return t, nil
	}
	return nil, errors.New("exhausted invite code attempts")
}

func (r *PostgresRepository) createWithCode(ctx context.Context, name, code string, creator int64) (*Team, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t := Team{Name: name, InviteCode: code, UTCOffset: "UTC+0", Managers: []int64{creator}}
	err = tx.QueryRow(ctx, `
		INSERT INTO teams (name, invite_code, managers)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		name, code, t.Managers).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting team: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, tg_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		t.ID, creator)
	if err != nil {
		return nil, fmt.Errorf("inserting creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing team creation: %w", err)
	}

	return &t, nil
}

func scanTeam(row pgx.Row) (*Team, error) {
	var t Team
	var days []int32
	err := row.Scan(&t.ID, &t.Name, &t.InviteCode, &t.UTCOffset, &t.ScheduleTime, &days, &t.Managers, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ScheduleDays = fromInt32(days)
	return &t, nil
}

func fromInt32(days []int32) []int {
	if days == nil {
		return nil
	}
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

func toInt32(days []int) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

// GetByID retrieves a single team by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Team, error) {
	t, err := scanTeam(r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("querying team: %w", err)
	}
	return t, nil
}

// GetByInviteCode retrieves a team by its invite code.
func (r *PostgresRepository) GetByInviteCode(ctx context.Context, code string) (*Team, error) {
	t, err := scanTeam(r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE invite_code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidInviteCode
		}
		return nil, fmt.Errorf("querying team by invite code: %w", err)
	}
	return t, nil
}

// ListByUser retrieves every team the user is a member of, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, tgID int64) ([]Team, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.name, t.invite_code, t.utc_offset, t.schedule_time, t.schedule_days, t.managers, t.created_at, t.updated_at
		FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.tg_id = $1
		ORDER BY t.created_at ASC`, tgID)
	if err != nil {
		return nil, fmt.Errorf("listing teams by user: %w", err)
	}
	defer rows.Close()

	return collectTeams(rows)
}

// ListScheduled retrieves every team with a configured schedule, for the
// startup restore pass.
func (r *PostgresRepository) ListScheduled(ctx context.Context) ([]Team, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE schedule_time IS NOT NULL
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing scheduled teams: %w", err)
	}
	defer rows.Close()

	return collectTeams(rows)
}

func collectTeams(rows pgx.Rows) ([]Team, error) {
	teams := []Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		teams = append(teams, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team rows: %w", err)
	}
	return teams, nil
}

// Members retrieves the team's members joined with display names, ordered
// by name.
func (r *PostgresRepository) Members(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.tg_id, u.name
		FROM team_members tm
		JOIN users u ON u.tg_id = tm.tg_id
		WHERE tm.team_id = $1
		ORDER BY lower(u.name) ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.TgID, &m.Name); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}
	return members, nil
}

// Join adds the user to the team matching the invite code. Joining a team
// the user is already in is a no-op.
func (r *PostgresRepository) Join(ctx context.Context, code string, tgID int64) (*Team, error) {
	t, err := r.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO team_members (team_id, tg_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, t.ID, tgID)
	if err != nil {
		return nil, fmt.Errorf("inserting membership: %w", err)
	}

	return t, nil
}

// Leave removes the user's own membership. The last manager cannot leave.
func (r *PostgresRepository) Leave(ctx context.Context, teamID uuid.UUID, tgID int64) error {
	return r.removeMembership(ctx, teamID, tgID)
}

// RemoveMember removes another user's membership. The last manager cannot
// be removed.
func (r *PostgresRepository) RemoveMember(ctx context.Context, teamID uuid.UUID, tgID int64) error {
	return r.removeMembership(ctx, teamID, tgID)
}

// removeMembership deletes a membership and, when the user is a manager,
// drops them from the manager list. The manager check and both writes run
// in one transaction with the team row locked, so two concurrent removals
// cannot both pass the last-manager check.
func (r *PostgresRepository) removeMembership(ctx context.Context, teamID uuid.UUID, tgID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var managers []int64
	err = tx.QueryRow(ctx, `SELECT managers FROM teams WHERE id = $1 FOR UPDATE`, teamID).Scan(&managers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("locking team: %w", err)
	}

	isManager := false
	for _, m := range managers {
		if m == tgID {
			isManager = true
		}
	}
	if isManager && len(managers) == 1 {
		return ErrLastManager
	}

	result, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND tg_id = $2`, teamID, tgID)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	if isManager {
		_, err = tx.Exec(ctx, `UPDATE teams SET managers = array_remove(managers, $2), updated_at = now() WHERE id = $1`, teamID, tgID)
		if err != nil {
			return fmt.Errorf("removing manager: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing membership removal: %w", err)
	}

	return nil
}

// SetSchedule stores the schedule fields. Validation happens in the
// conversation layer; the repository stores what it is given.
func (r *PostgresRepository) SetSchedule(ctx context.Context, teamID uuid.UUID, timeOfDay, utcOffset string, days []int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE teams
		SET schedule_time = $2, utc_offset = $3, schedule_days = $4, updated_at = now()
		WHERE id = $1`,
		teamID, timeOfDay, utcOffset, toInt32(days))
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTeamNotFound
	}
	return nil
}

// ClearSchedule removes the schedule fields, leaving the offset untouched.
func (r *PostgresRepository) ClearSchedule(ctx context.Context, teamID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE teams
		SET schedule_time = NULL, schedule_days = NULL, updated_at = now()
		WHERE id = $1`, teamID)
	if err != nil {
		return fmt.Errorf("clearing schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTeamNotFound
	}
	return nil
}
