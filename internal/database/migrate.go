package database

import (
	"context"
	"fmt"
)

// schema is applied on startup. Every statement is idempotent so repeated
// boots against the same database are safe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	tg_id      BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS teams (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name          TEXT NOT NULL,
	invite_code   TEXT NOT NULL UNIQUE,
	utc_offset    TEXT NOT NULL DEFAULT 'UTC+0',
	schedule_time TEXT,
	schedule_days INT[],
	managers      BIGINT[] NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT teams_managers_nonempty CHECK (cardinality(managers) > 0)
);

CREATE TABLE IF NOT EXISTS team_members (
	team_id    UUID NOT NULL REFERENCES teams(id),
	tg_id      BIGINT NOT NULL REFERENCES users(tg_id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (team_id, tg_id)
);

CREATE TABLE IF NOT EXISTS standups (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	team_id          UUID NOT NULL REFERENCES teams(id),
	local_date       TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	reminder_job_key TEXT NOT NULL DEFAULT '',
	summary_job_key  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS answers (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	standup_id  UUID NOT NULL REFERENCES standups(id),
	tg_id       BIGINT NOT NULL,
	answered    BOOLEAN NOT NULL DEFAULT false,
	text        TEXT NOT NULL DEFAULT '',
	answered_at TIMESTAMPTZ,
	UNIQUE (standup_id, tg_id)
);

CREATE INDEX IF NOT EXISTS idx_team_members_team ON team_members(team_id);
CREATE INDEX IF NOT EXISTS idx_team_members_user ON team_members(tg_id);
CREATE INDEX IF NOT EXISTS idx_standups_team_date ON standups(team_id, local_date);
CREATE INDEX IF NOT EXISTS idx_answers_standup ON answers(standup_id);
`

// Migrate applies the schema to the connected database.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
