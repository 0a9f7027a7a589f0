package standup_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standupbuddy/standupbuddy/internal/schedule"
	"github.com/standupbuddy/standupbuddy/internal/standup"
	"github.com/standupbuddy/standupbuddy/internal/team"
)

// --- fakes ---

type fakeTeamRepo struct {
	teams   map[uuid.UUID]*team.Team
	members map[uuid.UUID][]team.Member
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{
		teams:   map[uuid.UUID]*team.Team{},
		members: map[uuid.UUID][]team.Member{},
	}
}

func (f *fakeTeamRepo) add(t *team.Team, members ...team.Member) {
	f.teams[t.ID] = t
	f.members[t.ID] = members
}

func (f *fakeTeamRepo) Create(ctx context.Context, name string, creator int64) (*team.Team, error) {
	t := &team.Team{ID: uuid.New(), Name: name, UTCOffset: "UTC+0", Managers: []int64{creator}}
	f.add(t, team.Member{TgID: creator, Name: fmt.Sprintf("user%d", creator)})
	return t, nil
}

func (f *fakeTeamRepo) GetByID(ctx context.Context, id uuid.UUID) (*team.Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return nil, team.ErrTeamNotFound
	}
	return t, nil
}

func (f *fakeTeamRepo) GetByInviteCode(ctx context.Context, code string) (*team.Team, error) {
	for _, t := range f.teams {
		if t.InviteCode == code {
			return t, nil
		}
	}
	return nil, team.ErrInvalidInviteCode
}

func (f *fakeTeamRepo) ListByUser(ctx context.Context, tgID int64) ([]team.Team, error) {
	out := []team.Team{}
	for id, ms := range f.members {
		for _, m := range ms {
			if m.TgID == tgID {
				out = append(out, *f.teams[id])
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeTeamRepo) ListScheduled(ctx context.Context) ([]team.Team, error) {
	out := []team.Team{}
	for _, t := range f.teams {
		if t.HasSchedule() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTeamRepo) Members(ctx context.Context, teamID uuid.UUID) ([]team.Member, error) {
	return f.members[teamID], nil
}

func (f *fakeTeamRepo) Join(ctx context.Context, code string, tgID int64) (*team.Team, error) {
	t, err := f.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	f.members[t.ID] = append(f.members[t.ID], team.Member{TgID: tgID})
	return t, nil
}

func (f *fakeTeamRepo) Leave(ctx context.Context, teamID uuid.UUID, tgID int64) error {
	return f.RemoveMember(ctx, teamID, tgID)
}

func (f *fakeTeamRepo) RemoveMember(ctx context.Context, teamID uuid.UUID, tgID int64) error {
	t, ok := f.teams[teamID]
	if !ok {
		return team.ErrTeamNotFound
	}
	if t.IsManager(tgID) && len(t.Managers) == 1 {
		return team.ErrLastManager
	}
	ms := f.members[teamID]
	for i, m := range ms {
		if m.TgID == tgID {
			f.members[teamID] = append(ms[:i], ms[i+1:]...)
			return nil
		}
	}
	return team.ErrMemberNotFound
}

func (f *fakeTeamRepo) SetSchedule(ctx context.Context, teamID uuid.UUID, timeOfDay, utcOffset string, days []int) error {
	t := f.teams[teamID]
	t.ScheduleTime = &timeOfDay
	t.UTCOffset = utcOffset
	t.ScheduleDays = days
	return nil
}

func (f *fakeTeamRepo) ClearSchedule(ctx context.Context, teamID uuid.UUID) error {
	t := f.teams[teamID]
	t.ScheduleTime = nil
	t.ScheduleDays = nil
	return nil
}

type fakeStandupRepo struct {
	mu       sync.Mutex
	standups []*standup.Standup
	answers  map[uuid.UUID][]*standup.Answer
	names    map[int64]string
}

func newFakeStandupRepo() *fakeStandupRepo {
	return &fakeStandupRepo{
		answers: map[uuid.UUID][]*standup.Answer{},
		names:   map[int64]string{},
	}
}

func (f *fakeStandupRepo) CreateWithAnswers(ctx context.Context, teamID uuid.UUID, localDate string, startedAt time.Time, memberIDs []int64, force bool) (*standup.Standup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(memberIDs) == 0 {
		return nil, standup.ErrNoMembers
	}
	if !force {
		for _, st := range f.standups {
			if st.TeamID == teamID && st.LocalDate == localDate {
				return nil, standup.ErrAlreadyRan
			}
		}
	}
	st := &standup.Standup{ID: uuid.New(), TeamID: teamID, LocalDate: localDate, StartedAt: startedAt}
	f.standups = append(f.standups, st)
	for _, id := range memberIDs {
		f.answers[st.ID] = append(f.answers[st.ID], &standup.Answer{ID: uuid.New(), StandupID: st.ID, TgID: id})
	}
	return st, nil
}

func (f *fakeStandupRepo) SetJobKeys(ctx context.Context, id uuid.UUID, reminderKey, summaryKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.standups {
		if st.ID == id {
			st.ReminderJobKey = reminderKey
			st.SummaryJobKey = summaryKey
			return nil
		}
	}
	return standup.ErrStandupNotFound
}

func (f *fakeStandupRepo) GetByID(ctx context.Context, id uuid.UUID) (*standup.Standup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.standups {
		if st.ID == id {
			return st, nil
		}
	}
	return nil, standup.ErrStandupNotFound
}

func (f *fakeStandupRepo) LatestForDate(ctx context.Context, teamID uuid.UUID, localDate string) (*standup.Standup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.standups) - 1; i >= 0; i-- {
		if f.standups[i].TeamID == teamID && f.standups[i].LocalDate == localDate {
			return f.standups[i], nil
		}
	}
	return nil, standup.ErrStandupNotFound
}

func (f *fakeStandupRepo) Unanswered(ctx context.Context, standupID uuid.UUID) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []int64{}
	for _, a := range f.answers[standupID] {
		if !a.Answered {
			ids = append(ids, a.TgID)
		}
	}
	return ids, nil
}

func (f *fakeStandupRepo) SummaryRows(ctx context.Context, standupID, teamID uuid.UUID) ([]standup.SummaryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := []standup.SummaryRow{}
	for _, a := range f.answers[standupID] {
		name := f.names[a.TgID]
		if name == "" {
			name = fmt.Sprintf("user%d", a.TgID)
		}
		rows = append(rows, standup.SummaryRow{TgID: a.TgID, Name: name, Answered: a.Answered, Text: a.Text})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func (f *fakeStandupRepo) RecordAnswer(ctx context.Context, standupID uuid.UUID, tgID int64, text string, answeredAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.answers[standupID] {
		if a.TgID == tgID && !a.Answered {
			a.Answered = true
			a.Text = text
			at := answeredAt
			a.AnsweredAt = &at
			return true, nil
		}
	}
	return false, nil
}

type sentMessage struct {
	chatID int64
	text   string
	prompt bool
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failFor: map[int64]bool{}}
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	return f.record(chatID, text, false)
}

func (f *fakeMessenger) SendPrompt(ctx context.Context, chatID int64, text string) error {
	return f.record(chatID, text, true)
}

func (f *fakeMessenger) record(chatID int64, text string, prompt bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("recipient unreachable")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, prompt: prompt})
	return nil
}

func (f *fakeMessenger) recipients() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []int64{}
	for _, m := range f.sent {
		out = append(out, m.chatID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type timerCall struct {
	kind  string
	id    string
	delay time.Duration
	fn    func()
}

type fakeTimers struct {
	mu    sync.Mutex
	calls []timerCall
}

func (f *fakeTimers) ReplaceDaily(entityID string, spec schedule.Spec, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, timerCall{kind: "daily", id: entityID, fn: fn})
	return nil
}

func (f *fakeTimers) CancelDaily(entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, timerCall{kind: "cancel", id: entityID})
	return nil
}

func (f *fakeTimers) ScheduleReminder(entityID string, delay time.Duration, fn func()) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, timerCall{kind: "reminder", id: entityID, delay: delay, fn: fn})
	return "reminder:" + entityID, nil
}

func (f *fakeTimers) ScheduleSummary(entityID string, delay time.Duration, fn func()) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, timerCall{kind: "summary", id: entityID, delay: delay, fn: fn})
	return "summary:" + entityID, nil
}

func (f *fakeTimers) find(kind string) *timerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.calls {
		if f.calls[i].kind == kind {
			return &f.calls[i]
		}
	}
	return nil
}

// --- fixtures ---

func setupEngine(t *testing.T) (*standup.Engine, *fakeTeamRepo, *fakeStandupRepo, *fakeMessenger, *fakeTimers) {
	t.Helper()
	teams := newFakeTeamRepo()
	standups := newFakeStandupRepo()
	msg := newFakeMessenger()
	timers := &fakeTimers{}
	return standup.NewEngine(teams, standups, msg, timers), teams, standups, msg, timers
}

func seedTeam(teams *fakeTeamRepo, managers []int64, memberIDs ...int64) *team.Team {
	t := &team.Team{ID: uuid.New(), Name: "backend", UTCOffset: "UTC+3", Managers: managers}
	members := make([]team.Member, len(memberIDs))
	for i, id := range memberIDs {
		members[i] = team.Member{TgID: id, Name: fmt.Sprintf("user%d", id)}
	}
	teams.add(t, members...)
	return t
}

// --- tests ---

func TestRun_CreatesStandupWithAnswers(t *testing.T) {
	engine, teams, standups, msg, timers := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1, 2, 3)

	err := engine.Run(context.Background(), tm.ID, false)
	require.NoError(t, err)

	require.Len(t, standups.standups, 1)
	st := standups.standups[0]
	assert.Len(t, standups.answers[st.ID], 3)
	for _, a := range standups.answers[st.ID] {
		assert.False(t, a.Answered)
	}

	// Every member got a prompt.
	assert.Equal(t, []int64{1, 2, 3}, msg.recipients())
	for _, m := range msg.sent {
		assert.True(t, m.prompt)
		assert.Contains(t, m.text, "backend")
	}

	// Both one-shots were armed with the standup id and the keys recorded.
	reminder := timers.find("reminder")
	require.NotNil(t, reminder)
	assert.Equal(t, st.ID.String(), reminder.id)
	assert.Equal(t, standup.RemindAfter, reminder.delay)

	summary := timers.find("summary")
	require.NotNil(t, summary)
	assert.Equal(t, standup.SummaryAfter, summary.delay)

	assert.Equal(t, "reminder:"+st.ID.String(), st.ReminderJobKey)
	assert.Equal(t, "summary:"+st.ID.String(), st.SummaryJobKey)
}

func TestRun_ScheduledIsIdempotentPerDate(t *testing.T) {
	engine, teams, standups, _, _ := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1, 2)

	require.NoError(t, engine.Run(context.Background(), tm.ID, false))
	require.NoError(t, engine.Run(context.Background(), tm.ID, false))

	assert.Len(t, standups.standups, 1)
}

func TestRun_ManualBypassesIdempotency(t *testing.T) {
	engine, teams, standups, _, _ := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1, 2)

	require.NoError(t, engine.Run(context.Background(), tm.ID, false))
	require.NoError(t, engine.Run(context.Background(), tm.ID, true))
	require.NoError(t, engine.Run(context.Background(), tm.ID, true))

	assert.Len(t, standups.standups, 3)
}

func TestRun_MissingTeamAbortsSilently(t *testing.T) {
	engine, _, standups, msg, _ := setupEngine(t)

	err := engine.Run(context.Background(), uuid.New(), false)
	require.NoError(t, err)
	assert.Empty(t, standups.standups)
	assert.Empty(t, msg.sent)
}

func TestRun_EmptyTeamAbortsSilently(t *testing.T) {
	engine, teams, standups, msg, _ := setupEngine(t)
	tm := seedTeam(teams, []int64{1}) // no members

	err := engine.Run(context.Background(), tm.ID, false)
	require.NoError(t, err)
	assert.Empty(t, standups.standups)
	assert.Empty(t, msg.sent)
}

func TestRun_DeliveryFailureDoesNotAbortBatch(t *testing.T) {
	engine, teams, standups, msg, _ := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1, 2, 3)
	msg.failFor[2] = true

	err := engine.Run(context.Background(), tm.ID, false)
	require.NoError(t, err)

	require.Len(t, standups.standups, 1)
	assert.Equal(t, []int64{1, 3}, msg.recipients())
	// The unreachable member still has an answer row.
	assert.Len(t, standups.answers[standups.standups[0].ID], 3)
}

func TestReminder_SkipsAnsweredMembers(t *testing.T) {
	engine, teams, standups, msg, timers := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1, 2, 3)

	require.NoError(t, engine.Run(context.Background(), tm.ID, false))
	st := standups.standups[0]

	_, err := engine.RecordAnswer(context.Background(), 2, "yesterday: X; today: Y")
	require.NoError(t, err)

	msg.mu.Lock()
	msg.sent = nil
	msg.mu.Unlock()

	reminder := timers.find("reminder")
	require.NotNil(t, reminder)
	reminder.fn()

	assert.Equal(t, []int64{1, 3}, msg.recipients())
	_ = st
}

func TestReminder_NoopWhenAllAnswered(t *testing.T) {
	engine, teams, _, msg, timers := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1)

	require.NoError(t, engine.Run(context.Background(), tm.ID, false))
	_, err := engine.RecordAnswer(context.Background(), 1, "done everything")
	require.NoError(t, err)

	msg.mu.Lock()
	msg.sent = nil
	msg.mu.Unlock()

	timers.find("reminder").fn()
	assert.Empty(t, msg.sent)
}

func TestSummary_DeliveredToMembersAndManagersOnce(t *testing.T) {
	engine, teams, _, msg, timers := setupEngine(t)
	// Manager 1 is also a member; manager 9 is not a member.
	tm := seedTeam(teams, []int64{1, 9}, 1, 2)

	require.NoError(t, engine.Run(context.Background(), tm.ID, false))
	_, err := engine.RecordAnswer(context.Background(), 2, "  shipped the thing  ")
	require.NoError(t, err)

	msg.mu.Lock()
	msg.sent = nil
	msg.mu.Unlock()

	timers.find("summary").fn()

	assert.Equal(t, []int64{1, 2, 9}, msg.recipients())
	for _, m := range msg.sent {
		assert.Contains(t, m.text, "✅ user2\nshipped the thing")
		assert.Contains(t, m.text, "❌ user1\n— no answer")
	}
}

func TestRecordAnswer_FirstReplyWins(t *testing.T) {
	engine, teams, standups, _, _ := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1)

	require.NoError(t, engine.Run(context.Background(), tm.ID, false))

	n, err := engine.RecordAnswer(context.Background(), 1, " first ")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = engine.RecordAnswer(context.Background(), 1, "second")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	a := standups.answers[standups.standups[0].ID][0]
	assert.True(t, a.Answered)
	assert.Equal(t, "first", a.Text)
}

func TestRecordAnswer_SatisfiesMultipleTeams(t *testing.T) {
	engine, teams, _, _, _ := setupEngine(t)
	tm1 := seedTeam(teams, []int64{1}, 1, 5)
	tm2 := seedTeam(teams, []int64{2}, 2, 5)

	require.NoError(t, engine.Run(context.Background(), tm1.ID, false))
	require.NoError(t, engine.Run(context.Background(), tm2.ID, false))

	n, err := engine.RecordAnswer(context.Background(), 5, "both teams, one reply")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordAnswer_EmptyTextIgnored(t *testing.T) {
	engine, teams, _, _, _ := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1)
	require.NoError(t, engine.Run(context.Background(), tm.ID, false))

	n, err := engine.RecordAnswer(context.Background(), 1, "   ")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReschedule(t *testing.T) {
	engine, teams, _, _, timers := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1)

	// No schedule configured: the daily trigger is cancelled.
	require.NoError(t, engine.Reschedule(tm))
	require.NotNil(t, timers.find("cancel"))

	hhmm := "09:00"
	tm.ScheduleTime = &hhmm
	tm.ScheduleDays = []int{0, 1, 2, 3, 4}

	require.NoError(t, engine.Reschedule(tm))
	daily := timers.find("daily")
	require.NotNil(t, daily)
	assert.Equal(t, tm.ID.String(), daily.id)
}

func TestRestore_RegistersAllScheduledTeams(t *testing.T) {
	engine, teams, standups, _, timers := setupEngine(t)
	hhmm := "10:30"

	tm1 := seedTeam(teams, []int64{1}, 1)
	tm1.ScheduleTime = &hhmm
	tm2 := seedTeam(teams, []int64{2}, 2)
	tm2.ScheduleTime = &hhmm
	seedTeam(teams, []int64{3}, 3) // unscheduled

	require.NoError(t, engine.Restore(context.Background()))

	count := 0
	for _, c := range timers.calls {
		if c.kind == "daily" {
			count++
		}
	}
	assert.Equal(t, 2, count)
	assert.Empty(t, standups.standups)
}

func TestSummaryText_TrimsAndPlaceholders(t *testing.T) {
	engine, teams, _, msg, timers := setupEngine(t)
	tm := seedTeam(teams, []int64{1}, 1)

	require.NoError(t, engine.Run(context.Background(), tm.ID, false))

	timers.find("summary").fn()
	require.NotEmpty(t, msg.sent)
	assert.True(t, strings.Contains(msg.sent[len(msg.sent)-1].text, "🧾 Standup summary for “backend”:"))
}
