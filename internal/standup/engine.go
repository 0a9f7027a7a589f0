package standup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/standupbuddy/standupbuddy/internal/schedule"
	"github.com/standupbuddy/standupbuddy/internal/team"
)

// Reminder and summary delays are fixed relative to standup creation.
const (
	RemindAfter  = 10 * time.Minute
	SummaryAfter = 30 * time.Minute
)

const opTimeout = time.Minute

// Messenger delivers outbound messages. Implementations are expected to be
// safe for concurrent use; per-recipient failures are the caller's to
// swallow.
type Messenger interface {
	// SendText delivers a plain message to one recipient.
	SendText(ctx context.Context, chatID int64, text string) error
	// SendPrompt delivers the day's prompt, marked up so the recipient
	// replies to it directly.
	SendPrompt(ctx context.Context, chatID int64, text string) error
}

// Timers is the slice of the job scheduler the engine drives.
type Timers interface {
	ReplaceDaily(entityID string, spec schedule.Spec, fn func()) error
	CancelDaily(entityID string) error
	ScheduleReminder(entityID string, delay time.Duration, fn func()) (string, error)
	ScheduleSummary(entityID string, delay time.Duration, fn func()) (string, error)
}

// Engine orchestrates the standup lifecycle: open, prompt, nudge, summarize,
// and record replies. All timer callbacks route back through here.
type Engine struct {
	teams    team.Repository
	standups Repository
	msg      Messenger
	timers   Timers
	now      func() time.Time
}

// NewEngine creates a lifecycle Engine.
func NewEngine(teams team.Repository, standups Repository, msg Messenger, timers Timers) *Engine {
	return &Engine{
		teams:    teams,
		standups: standups,
		msg:      msg,
		timers:   timers,
		now:      time.Now,
	}
}

// Run opens a standup for the team: creates the standup and its answer rows,
// fans out prompts, and arms the reminder and summary timers. Scheduled runs
// are idempotent per local date; manual runs bypass that check.
//
// Absent team, empty roster and already-ran are silent aborts: the trigger
// is asynchronous and there is no one to report to.
func (e *Engine) Run(ctx context.Context, teamID uuid.UUID, manual bool) error {
	t, err := e.teams.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, team.ErrTeamNotFound) {
			slog.Debug("standup trigger for missing team", "team", teamID)
			return nil
		}
		return fmt.Errorf("loading team: %w", err)
	}

	localDate := schedule.LocalDate(e.now(), t.Offset())

	members, err := e.teams.Members(ctx, teamID)
	if err != nil {
		return fmt.Errorf("loading members: %w", err)
	}
	if len(members) == 0 {
		slog.Debug("standup trigger for empty team", "team", teamID)
		return nil
	}

	memberIDs := make([]int64, len(members))
	for i, m := range members {
		memberIDs[i] = m.TgID
	}

	st, err := e.standups.CreateWithAnswers(ctx, teamID, localDate, e.now().UTC(), memberIDs, manual)
	if err != nil {
		if errors.Is(err, ErrAlreadyRan) {
			slog.Debug("standup already ran", "team", teamID, "date", localDate)
			return nil
		}
		return fmt.Errorf("creating standup: %w", err)
	}

	slog.Info("standup opened", "team", teamID, "standup", st.ID, "date", localDate, "members", len(members), "manual", manual)

	prompt := promptText(t.Name)
	for _, id := range memberIDs {
		if err := e.msg.SendPrompt(ctx, id, prompt); err != nil {
			slog.Warn("prompt delivery failed", "standup", st.ID, "recipient", id, "error", err)
		}
	}

	standupID := st.ID
	reminderKey, err := e.timers.ScheduleReminder(standupID.String(), RemindAfter, func() {
		e.remind(standupID, teamID)
	})
	if err != nil {
		return fmt.Errorf("scheduling reminder: %w", err)
	}
	summaryKey, err := e.timers.ScheduleSummary(standupID.String(), SummaryAfter, func() {
		e.summarize(standupID, teamID)
	})
	if err != nil {
		return fmt.Errorf("scheduling summary: %w", err)
	}

	if err := e.standups.SetJobKeys(ctx, standupID, reminderKey, summaryKey); err != nil {
		return fmt.Errorf("recording job keys: %w", err)
	}

	return nil
}

// remind nudges every member whose answer is still unanswered.
func (e *Engine) remind(standupID, teamID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	t, err := e.teams.GetByID(ctx, teamID)
	if err != nil {
		if !errors.Is(err, team.ErrTeamNotFound) {
			slog.Error("reminder: loading team", "standup", standupID, "error", err)
		}
		return
	}

	pending, err := e.standups.Unanswered(ctx, standupID)
	if err != nil {
		slog.Error("reminder: loading unanswered", "standup", standupID, "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	text := fmt.Sprintf("⏰ Reminder: the standup for “%s” is still waiting for your reply.", t.Name)
	for _, id := range pending {
		if err := e.msg.SendText(ctx, id, text); err != nil {
			slog.Warn("reminder delivery failed", "standup", standupID, "recipient", id, "error", err)
		}
	}

	slog.Info("reminders sent", "standup", standupID, "pending", len(pending))
}

// summarize compiles the per-member summary and delivers it to every member
// and every manager, once each.
func (e *Engine) summarize(standupID, teamID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	t, err := e.teams.GetByID(ctx, teamID)
	if err != nil {
		if !errors.Is(err, team.ErrTeamNotFound) {
			slog.Error("summary: loading team", "standup", standupID, "error", err)
		}
		return
	}

	rows, err := e.standups.SummaryRows(ctx, standupID, teamID)
	if err != nil {
		slog.Error("summary: loading rows", "standup", standupID, "error", err)
		return
	}

	text := summaryText(t.Name, rows)

	sent := map[int64]bool{}
	for _, row := range rows {
		sent[row.TgID] = true
		if err := e.msg.SendText(ctx, row.TgID, text); err != nil {
			slog.Warn("summary delivery failed", "standup", standupID, "recipient", row.TgID, "error", err)
		}
	}
	for _, mgr := range t.Managers {
		if sent[mgr] {
			continue
		}
		if err := e.msg.SendText(ctx, mgr, text); err != nil {
			slog.Warn("summary delivery failed", "standup", standupID, "recipient", mgr, "error", err)
		}
	}

	slog.Info("summary sent", "standup", standupID, "rows", len(rows))
}

// RecordAnswer stores a member's reply against today's open standup in every
// team they belong to. Returns how many standups were satisfied; the first
// reply per standup wins and later ones change nothing.
func (e *Engine) RecordAnswer(ctx context.Context, tgID int64, text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, nil
	}

	teams, err := e.teams.ListByUser(ctx, tgID)
	if err != nil {
		return 0, fmt.Errorf("listing user teams: %w", err)
	}

	satisfied := 0
	for _, t := range teams {
		localDate := schedule.LocalDate(e.now(), t.Offset())
		st, err := e.standups.LatestForDate(ctx, t.ID, localDate)
		if err != nil {
			if errors.Is(err, ErrStandupNotFound) {
				continue
			}
			return satisfied, fmt.Errorf("finding standup: %w", err)
		}

		ok, err := e.standups.RecordAnswer(ctx, st.ID, tgID, trimmed, e.now().UTC())
		if err != nil {
			return satisfied, fmt.Errorf("recording answer: %w", err)
		}
		if ok {
			satisfied++
			slog.Info("answer recorded", "standup", st.ID, "user", tgID)
		}
	}

	return satisfied, nil
}

// Reschedule re-derives the team's daily trigger from its stored schedule:
// replace when configured, cancel when not.
func (e *Engine) Reschedule(t *team.Team) error {
	spec, ok := t.Schedule()
	if !ok {
		return e.timers.CancelDaily(t.ID.String())
	}

	teamID := t.ID
	return e.timers.ReplaceDaily(teamID.String(), spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := e.Run(ctx, teamID, false); err != nil {
			slog.Error("scheduled standup run failed", "team", teamID, "error", err)
		}
	})
}

// Restore recomputes every recurring daily trigger from stored schedules.
// Run once at startup. Pending one-shot timers from before a restart are
// not restored.
func (e *Engine) Restore(ctx context.Context) error {
	teams, err := e.teams.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("listing scheduled teams: %w", err)
	}

	for i := range teams {
		if err := e.Reschedule(&teams[i]); err != nil {
			slog.Error("restore: reschedule failed", "team", teams[i].ID, "error", err)
		}
	}

	slog.Info("daily triggers restored", "teams", len(teams))
	return nil
}

func promptText(teamName string) string {
	return fmt.Sprintf("🕒 Daily standup for “%s”\n\nReply to this message with:\n— What did you do yesterday?\n— What will you do today?\n— Any blockers?", teamName)
}

func summaryText(teamName string, rows []SummaryRow) string {
	lines := []string{fmt.Sprintf("🧾 Standup summary for “%s”:", teamName)}
	for _, row := range rows {
		switch {
		case row.Answered && strings.TrimSpace(row.Text) != "":
			lines = append(lines, fmt.Sprintf("✅ %s\n%s", row.Name, strings.TrimSpace(row.Text)))
		case row.Answered:
			lines = append(lines, fmt.Sprintf("✅ %s\n(empty answer)", row.Name))
		default:
			lines = append(lines, fmt.Sprintf("❌ %s\n— no answer", row.Name))
		}
	}
	return strings.Join(lines, "\n\n")
}
