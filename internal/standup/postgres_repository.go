package standup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// CreateWithAnswers inserts the standup and its answer rows in one
// transaction. A per-team advisory lock serializes the existence check with
// the insert: two concurrent scheduled triggers cannot both pass the check.
func (r *PostgresRepository) CreateWithAnswers(ctx context.Context, teamID uuid.UUID, localDate string, startedAt time.Time, memberIDs []int64, force bool) (*Standup, error) {
	if len(memberIDs) == 0 {
		return nil, ErrNoMembers
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, teamID.String())
	if err != nil {
		return nil, fmt.Errorf("acquiring team lock: %w", err)
	}

	if !force {
		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM standups WHERE team_id = $1 AND local_date = $2)`,
			teamID, localDate).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking existing standup: %w", err)
		}
		if exists {
			return nil, ErrAlreadyRan
		}
	}

	st := Standup{TeamID: teamID, LocalDate: localDate, StartedAt: startedAt}
	err = tx.QueryRow(ctx, `
		INSERT INTO standups (team_id, local_date, started_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		teamID, localDate, startedAt).Scan(&st.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting standup: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO answers (standup_id, tg_id)
		SELECT $1, unnest($2::bigint[])`,
		st.ID, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("inserting answers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing standup creation: %w", err)
	}

	return &st, nil
}

// SetJobKeys records the reminder and summary timer identities.
func (r *PostgresRepository) SetJobKeys(ctx context.Context, id uuid.UUID, reminderKey, summaryKey string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE standups SET reminder_job_key = $2, summary_job_key = $3 WHERE id = $1`,
		id, reminderKey, summaryKey)
	if err != nil {
		return fmt.Errorf("updating job keys: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStandupNotFound
	}
	return nil
}

// GetByID retrieves a single standup by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Standup, error) {
	var st Standup
	err := r.pool.QueryRow(ctx, `
		SELECT id, team_id, local_date, started_at, reminder_job_key, summary_job_key
		FROM standups
		WHERE id = $1`, id).
		Scan(&st.ID, &st.TeamID, &st.LocalDate, &st.StartedAt, &st.ReminderJobKey, &st.SummaryJobKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStandupNotFound
		}
		return nil, fmt.Errorf("querying standup: %w", err)
	}
	return &st, nil
}

// LatestForDate retrieves the most recent standup for (team, localDate).
// Manual runs can create several for one date; replies go to the newest.
func (r *PostgresRepository) LatestForDate(ctx context.Context, teamID uuid.UUID, localDate string) (*Standup, error) {
	var st Standup
	err := r.pool.QueryRow(ctx, `
		SELECT id, team_id, local_date, started_at, reminder_job_key, summary_job_key
		FROM standups
		WHERE team_id = $1 AND local_date = $2
		ORDER BY started_at DESC
		LIMIT 1`, teamID, localDate).
		Scan(&st.ID, &st.TeamID, &st.LocalDate, &st.StartedAt, &st.ReminderJobKey, &st.SummaryJobKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStandupNotFound
		}
		return nil, fmt.Errorf("querying latest standup: %w", err)
	}
	return &st, nil
}

// Unanswered returns the user ids whose answers are still unanswered.
func (r *PostgresRepository) Unanswered(ctx context.Context, standupID uuid.UUID) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tg_id FROM answers WHERE standup_id = $1 AND NOT answered`, standupID)
	if err != nil {
		return nil, fmt.Errorf("listing unanswered: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning unanswered row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unanswered rows: %w", err)
	}
	return ids, nil
}

// SummaryRows returns current members left-joined with their answers for
// the standup, ordered by display name.
func (r *PostgresRepository) SummaryRows(ctx context.Context, standupID, teamID uuid.UUID) ([]SummaryRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.tg_id, u.name,
		       COALESCE(a.answered, false) AS answered,
		       COALESCE(a.text, '') AS text
		FROM team_members tm
		JOIN users u ON u.tg_id = tm.tg_id
		LEFT JOIN answers a ON a.tg_id = tm.tg_id AND a.standup_id = $1
		WHERE tm.team_id = $2
		ORDER BY lower(u.name) ASC`, standupID, teamID)
	if err != nil {
		return nil, fmt.Errorf("querying summary rows: %w", err)
	}
	defer rows.Close()

	out := []SummaryRow{}
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.TgID, &row.Name, &row.Answered, &row.Text); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary rows: %w", err)
	}
	return out, nil
}

// RecordAnswer flips an unanswered answer to answered. The single guarded
// UPDATE is the whole mutation, so the first reply wins and later replies
// change nothing.
func (r *PostgresRepository) RecordAnswer(ctx context.Context, standupID uuid.UUID, tgID int64, text string, answeredAt time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE answers
		SET answered = true, text = $3, answered_at = $4
		WHERE standup_id = $1 AND tg_id = $2 AND NOT answered`,
		standupID, tgID, text, answeredAt)
	if err != nil {
		return false, fmt.Errorf("recording answer: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
