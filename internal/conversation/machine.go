package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/standupbuddy/standupbuddy/internal/schedule"
	"github.com/standupbuddy/standupbuddy/internal/team"
	"github.com/standupbuddy/standupbuddy/internal/user"
)

const maxTeamNameLen = 64

// ContextStore persists conversation contexts between updates.
type ContextStore interface {
	Get(ctx context.Context, userID int64) (*Context, error)
	Put(ctx context.Context, userID int64, c *Context) error
}

// Lifecycle is the slice of the standup engine the wizard drives.
type Lifecycle interface {
	Run(ctx context.Context, teamID uuid.UUID, manual bool) error
	RecordAnswer(ctx context.Context, tgID int64, text string) (int, error)
	Reschedule(t *team.Team) error
}

// Machine routes commands, button presses and free text through the
// conversation state machine. It is stateless itself; all conversation
// state lives in the ContextStore.
type Machine struct {
	users     user.Repository
	teams     team.Repository
	lifecycle Lifecycle
	store     ContextStore
	now       func() time.Time
}

// NewMachine creates a conversation Machine.
func NewMachine(users user.Repository, teams team.Repository, lifecycle Lifecycle, store ContextStore) *Machine {
	return &Machine{
		users:     users,
		teams:     teams,
		lifecycle: lifecycle,
		store:     store,
		now:       time.Now,
	}
}

// Start handles the /start command: registers (or renames) the user and
// opens the main menu.
func (m *Machine) Start(ctx context.Context, userID int64, name string) (Reply, error) {
	if strings.TrimSpace(name) == "" {
		name = strconv.FormatInt(userID, 10)
	}
	if err := m.users.Upsert(ctx, &user.User{TgID: userID, Name: name}); err != nil {
		return Reply{}, fmt.Errorf("registering user: %w", err)
	}

	c := &Context{State: StateMenu}
	if err := m.store.Put(ctx, userID, c); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:     fmt.Sprintf("👋 Hi, %s!\n\nI run daily standups for your teams. Pick an option:", name),
		Keyboard: menuKeyboard(),
	}, nil
}

// Help handles the /help command.
func (m *Machine) Help() Reply {
	return Reply{
		Text: "I collect written standups.\n\n" +
			"/start — open the menu\n" +
			"/help — this message\n\n" +
			"When a standup opens I message every team member; reply to that message with your update. " +
			"Ten minutes in I nudge whoever is still silent, and after half an hour the whole team gets a summary.",
		Keyboard: menuKeyboard(),
	}
}

// HandleButton processes one inline button press.
func (m *Machine) HandleButton(ctx context.Context, userID int64, action string) (Reply, error) {
	c, err := m.store.Get(ctx, userID)
	if err != nil {
		return Reply{}, err
	}

	reply, err := m.dispatchButton(ctx, userID, c, action)
	if err != nil {
		return Reply{}, err
	}
	if err := m.store.Put(ctx, userID, c); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (m *Machine) dispatchButton(ctx context.Context, userID int64, c *Context, action string) (Reply, error) {
	// Navigation works from any state and doubles as the wizard's cancel.
	switch action {
	case actBackMenu:
		return m.showMenu(c), nil
	case actBackTeams:
		return m.showTeamList(ctx, userID, c)
	case actBackTeam:
		c.clearPending()
		return m.showTeamMenu(ctx, userID, c, "")
	}

	if id, ok := strings.CutPrefix(action, actTeamPrefix); ok {
		teamID, err := uuid.Parse(id)
		if err != nil {
			return m.showMenu(c), nil
		}
		c.TeamID = &teamID
		return m.showTeamMenu(ctx, userID, c, "")
	}

	switch action {
	case actMenuCreate:
		c.State = StateCreateTeamName
		return Reply{Text: "What should the team be called?", Keyboard: cancelKeyboard(), Edit: true}, nil
	case actMenuJoin:
		c.State = StateJoinCode
		return Reply{Text: "Send me the team's invite code.", Keyboard: cancelKeyboard(), Edit: true}, nil
	case actMenuTeams:
		return m.showTeamList(ctx, userID, c)
	}

	switch {
	case action == actTeamInfo:
		return m.showTeamInfo(ctx, userID, c)
	case action == actTeamView:
		return m.showSchedule(ctx, userID, c)
	case action == actTeamMembers:
		return m.showMembers(ctx, userID, c)
	case action == actTeamEdit:
		return m.startScheduleWizard(ctx, userID, c)
	case action == actTeamClear:
		return m.clearSchedule(ctx, userID, c)
	case action == actTeamRun:
		return m.runStandup(ctx, userID, c)
	case action == actTeamRemove:
		return m.startMemberRemoval(ctx, userID, c)
	case action == actTeamLeave:
		return m.leaveTeam(ctx, userID, c)
	case strings.HasPrefix(action, actRemovePrefix):
		return m.removeMember(ctx, userID, c, strings.TrimPrefix(action, actRemovePrefix))
	case strings.HasPrefix(action, actOffsetPrefix):
		return m.pickOffset(c, strings.TrimPrefix(action, actOffsetPrefix))
	case action == actPresetEveryday:
		return m.saveSchedule(ctx, userID, c, []int{0, 1, 2, 3, 4, 5, 6})
	case action == actPresetWeekdays:
		return m.saveSchedule(ctx, userID, c, []int{0, 1, 2, 3, 4})
	case action == actPresetWeekends:
		return m.saveSchedule(ctx, userID, c, []int{5, 6})
	case action == actCustomStart:
		if c.State != StateSetSchedule {
			return m.showMenu(c), nil
		}
		if len(c.PendingDays) == 0 {
			c.PendingDays = []int{0, 1, 2, 3, 4}
		}
		return Reply{Text: "Toggle the days standups should run on:", Keyboard: dayPickerKeyboard(c), Edit: true}, nil
	case strings.HasPrefix(action, actCustomToggle):
		if c.State != StateSetSchedule {
			return m.showMenu(c), nil
		}
		day, err := strconv.Atoi(strings.TrimPrefix(action, actCustomToggle))
		if err == nil && day >= 0 && day <= 6 {
			c.toggleDay(day)
		}
		return Reply{Text: "Toggle the days standups should run on:", Keyboard: dayPickerKeyboard(c), Edit: true}, nil
	case action == actCustomReset:
		c.PendingDays = nil
		return Reply{Text: "Toggle the days standups should run on:", Keyboard: dayPickerKeyboard(c), Edit: true}, nil
	case action == actCustomSave:
		if len(c.PendingDays) == 0 {
			return Reply{Text: "Pick at least one day first.", Keyboard: dayPickerKeyboard(c), Edit: true}, nil
		}
		return m.saveSchedule(ctx, userID, c, c.PendingDays)
	}

	// Stale or unknown button, most likely from an expired conversation.
	return m.showMenu(c), nil
}

// HandleText processes one free-text message. A nil reply means the message
// was not for us and should be ignored. isReply marks messages sent as a
// direct reply to one of ours, which is how standup answers arrive.
func (m *Machine) HandleText(ctx context.Context, userID int64, text string, isReply bool) (*Reply, error) {
	// Replies to our messages are standup answers no matter where the
	// wizard is parked.
	if isReply {
		return m.recordAnswer(ctx, userID, text)
	}

	c, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var reply Reply
	switch c.State {
	case StateCreateTeamName:
		reply, err = m.createTeam(ctx, userID, c, text)
	case StateJoinCode:
		reply, err = m.joinTeam(ctx, userID, c, text)
	case StateSetTimeOfDay:
		reply = m.readTimeOfDay(c, text)
	case StateSetOffset:
		reply = m.readOffset(c, text)
	default:
		// Stray text outside the wizard is ignored.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, userID, c); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (m *Machine) recordAnswer(ctx context.Context, userID int64, text string) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	n, err := m.lifecycle.RecordAnswer(ctx, userID, text)
	if err != nil {
		return nil, fmt.Errorf("recording answer: %w", err)
	}
	if n == 0 {
		return &Reply{Text: "There is no standup waiting for your answer right now."}, nil
	}
	return &Reply{Text: "✅ Got it, your answer is recorded."}, nil
}

func (m *Machine) showMenu(c *Context) Reply {
	c.State = StateMenu
	c.TeamID = nil
	c.clearPending()
	return Reply{Text: "Pick an option:", Keyboard: menuKeyboard(), Edit: true}
}

func (m *Machine) showTeamList(ctx context.Context, userID int64, c *Context) (Reply, error) {
	c.clearPending()
	c.TeamID = nil

	teams, err := m.teams.ListByUser(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("listing teams: %w", err)
	}
	if len(teams) == 0 {
		c.State = StateMenu
		return Reply{Text: "You are not in any team yet. Create one or join with an invite code.", Keyboard: menuKeyboard(), Edit: true}, nil
	}

	c.State = StateTeamSelect
	return Reply{Text: "Your teams:", Keyboard: teamListKeyboard(teams), Edit: true}, nil
}

// loadTeam resolves the context's current team and verifies the user is
// still a member. A nil team means the returned Reply should be sent as is.
func (m *Machine) loadTeam(ctx context.Context, userID int64, c *Context) (*team.Team, Reply, error) {
	if c.TeamID == nil {
		return nil, m.showMenu(c), nil
	}
	t, err := m.teams.GetByID(ctx, *c.TeamID)
	if err != nil {
		if errors.Is(err, team.ErrTeamNotFound) {
			return nil, m.showMenu(c), nil
		}
		return nil, Reply{}, fmt.Errorf("loading team: %w", err)
	}

	members, err := m.teams.Members(ctx, t.ID)
	if err != nil {
		return nil, Reply{}, fmt.Errorf("loading members: %w", err)
	}
	for _, mb := range members {
		if mb.TgID == userID {
			return t, Reply{}, nil
		}
	}
	reply, err := m.showTeamList(ctx, userID, c)
	if err != nil {
		return nil, Reply{}, err
	}
	reply.Text = "You are no longer in that team.\n\n" + reply.Text
	return nil, reply, nil
}

func (m *Machine) showTeamMenu(ctx context.Context, userID int64, c *Context, prefix string) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}

	c.State = StateTeamMenu
	text := fmt.Sprintf("👥 %s", t.Name)
	if prefix != "" {
		text = prefix + "\n\n" + text
	}
	return Reply{Text: text, Keyboard: teamMenuKeyboard(t.IsManager(userID)), Edit: true}, nil
}

func (m *Machine) showTeamInfo(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}

	members, err := m.teams.Members(ctx, t.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("loading members: %w", err)
	}

	lines := []string{
		fmt.Sprintf("👥 %s", t.Name),
		fmt.Sprintf("Invite code: %s", t.InviteCode),
		fmt.Sprintf("Members: %d", len(members)),
		scheduleLine(t),
	}
	if spec, ok := t.Schedule(); ok {
		lines = append(lines, "Next run: "+m.formatNextRun(spec))
	}
	return Reply{Text: strings.Join(lines, "\n"), Keyboard: teamMenuKeyboard(t.IsManager(userID)), Edit: true}, nil
}

func (m *Machine) showSchedule(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}

	text := scheduleLine(t)
	if spec, ok := t.Schedule(); ok {
		text += "\nNext run: " + m.formatNextRun(spec)
	}
	return Reply{Text: text, Keyboard: teamMenuKeyboard(t.IsManager(userID)), Edit: true}, nil
}

func (m *Machine) showMembers(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}

	members, err := m.teams.Members(ctx, t.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("loading members: %w", err)
	}

	lines := []string{fmt.Sprintf("Members of “%s”:", t.Name)}
	for _, mb := range members {
		name := mb.Name
		if t.IsManager(mb.TgID) {
			name += " (manager)"
		}
		lines = append(lines, "• "+name)
	}
	return Reply{Text: strings.Join(lines, "\n"), Keyboard: teamMenuKeyboard(t.IsManager(userID)), Edit: true}, nil
}

func (m *Machine) startScheduleWizard(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}
	if !t.IsManager(userID) {
		return m.managerOnly(), nil
	}

	c.State = StateSetTimeOfDay
	c.clearPending()
	return Reply{
		Text:     "Send the standup time as HH:MM, 24-hour. For example 09:30.",
		Keyboard: teamCancelKeyboard(),
		Edit:     true,
	}, nil
}

func (m *Machine) clearSchedule(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}
	if !t.IsManager(userID) {
		return m.managerOnly(), nil
	}

	if err := m.teams.ClearSchedule(ctx, t.ID); err != nil {
		return Reply{}, fmt.Errorf("clearing schedule: %w", err)
	}
	updated := *t
	updated.ScheduleTime = nil
	updated.ScheduleDays = nil
	if err := m.lifecycle.Reschedule(&updated); err != nil {
		slog.Error("cancelling daily trigger", "team", t.ID, "error", err)
	}
	return m.showTeamMenu(ctx, userID, c, "🗑 Schedule deleted.")
}

func (m *Machine) runStandup(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}
	if !t.IsManager(userID) {
		return m.managerOnly(), nil
	}

	if err := m.lifecycle.Run(ctx, t.ID, true); err != nil {
		return Reply{}, fmt.Errorf("running standup: %w", err)
	}
	return m.showTeamMenu(ctx, userID, c, "▶️ Standup started, everyone has been messaged.")
}

func (m *Machine) startMemberRemoval(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}
	if !t.IsManager(userID) {
		return m.managerOnly(), nil
	}

	members, err := m.teams.Members(ctx, t.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("loading members: %w", err)
	}
	others := make([]team.Member, 0, len(members))
	for _, mb := range members {
		if mb.TgID != userID {
			others = append(others, mb)
		}
	}
	if len(others) == 0 {
		return m.showTeamMenu(ctx, userID, c, "There is no one else to remove.")
	}

	c.State = StateRemoveMemberSelect
	return Reply{Text: "Who should be removed?", Keyboard: removeMemberKeyboard(others), Edit: true}, nil
}

func (m *Machine) removeMember(ctx context.Context, userID int64, c *Context, rawID string) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}
	if !t.IsManager(userID) {
		return m.managerOnly(), nil
	}

	target, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return m.showTeamMenu(ctx, userID, c, "")
	}

	switch err := m.teams.RemoveMember(ctx, t.ID, target); {
	case errors.Is(err, team.ErrLastManager):
		return m.showTeamMenu(ctx, userID, c, "That member is the team's last manager and cannot be removed.")
	case errors.Is(err, team.ErrMemberNotFound):
		return m.showTeamMenu(ctx, userID, c, "They are already gone.")
	case err != nil:
		return Reply{}, fmt.Errorf("removing member: %w", err)
	}
	return m.showTeamMenu(ctx, userID, c, "🚷 Member removed.")
}

func (m *Machine) leaveTeam(ctx context.Context, userID int64, c *Context) (Reply, error) {
	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}

	switch err := m.teams.Leave(ctx, t.ID, userID); {
	case errors.Is(err, team.ErrLastManager):
		return m.showTeamMenu(ctx, userID, c, "You are the last manager; promote someone else before leaving.")
	case err != nil:
		return Reply{}, fmt.Errorf("leaving team: %w", err)
	}

	reply, err := m.showTeamList(ctx, userID, c)
	if err != nil {
		return Reply{}, err
	}
	reply.Text = fmt.Sprintf("🚪 You left “%s”.\n\n", t.Name) + reply.Text
	return reply, nil
}

func (m *Machine) pickOffset(c *Context, raw string) (Reply, error) {
	if c.State != StateSetOffset {
		return m.showMenu(c), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < schedule.MinOffset || n > schedule.MaxOffset {
		return Reply{Text: "Pick the team's UTC offset:", Keyboard: offsetKeyboard(), Edit: true}, nil
	}
	c.PendingOffset = schedule.Offset(n).String()
	c.State = StateSetSchedule
	return Reply{Text: "On which days should standups run?", Keyboard: presetKeyboard(), Edit: true}, nil
}

func (m *Machine) saveSchedule(ctx context.Context, userID int64, c *Context, days []int) (Reply, error) {
	if c.State != StateSetSchedule || c.PendingTime == "" || c.PendingOffset == "" {
		return m.showMenu(c), nil
	}

	t, fallback, err := m.loadTeam(ctx, userID, c)
	if t == nil {
		return fallback, err
	}
	if !t.IsManager(userID) {
		return m.managerOnly(), nil
	}

	normalized := schedule.Normalize(days)
	if err := m.teams.SetSchedule(ctx, t.ID, c.PendingTime, c.PendingOffset, normalized); err != nil {
		return Reply{}, fmt.Errorf("saving schedule: %w", err)
	}

	updated := *t
	scheduleTime := c.PendingTime
	updated.ScheduleTime = &scheduleTime
	updated.UTCOffset = c.PendingOffset
	updated.ScheduleDays = normalized
	if err := m.lifecycle.Reschedule(&updated); err != nil {
		slog.Error("arming daily trigger", "team", t.ID, "error", err)
	}

	prefix := "✅ Schedule saved. " + scheduleLine(&updated)
	if spec, ok := updated.Schedule(); ok {
		prefix += "\nNext run: " + m.formatNextRun(spec)
	}
	c.clearPending()
	return m.showTeamMenu(ctx, userID, c, prefix)
}

func (m *Machine) createTeam(ctx context.Context, userID int64, c *Context, text string) (Reply, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return Reply{Text: "The team name cannot be empty. Try again:", Keyboard: cancelKeyboard()}, nil
	}
	if len([]rune(name)) > maxTeamNameLen {
		return Reply{Text: fmt.Sprintf("That name is too long, keep it under %d characters:", maxTeamNameLen), Keyboard: cancelKeyboard()}, nil
	}

	t, err := m.teams.Create(ctx, name, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("creating team: %w", err)
	}

	c.State = StateTeamMenu
	c.TeamID = &t.ID
	text = fmt.Sprintf("✅ Team “%s” created.\nInvite code: %s\nShare it with your teammates.", t.Name, t.InviteCode)
	return Reply{Text: text, Keyboard: teamMenuKeyboard(true)}, nil
}

func (m *Machine) joinTeam(ctx context.Context, userID int64, c *Context, text string) (Reply, error) {
	code := strings.ToUpper(strings.TrimSpace(text))
	if code == "" {
		return Reply{Text: "Send me the invite code:", Keyboard: cancelKeyboard()}, nil
	}

	t, err := m.teams.Join(ctx, code, userID)
	if err != nil {
		if errors.Is(err, team.ErrInvalidInviteCode) {
			return Reply{Text: "That code does not match any team. Check it and try again:", Keyboard: cancelKeyboard()}, nil
		}
		return Reply{}, fmt.Errorf("joining team: %w", err)
	}

	c.State = StateTeamMenu
	c.TeamID = &t.ID
	return Reply{
		Text:     fmt.Sprintf("✅ You joined “%s”.", t.Name),
		Keyboard: teamMenuKeyboard(t.IsManager(userID)),
	}, nil
}

func (m *Machine) readTimeOfDay(c *Context, text string) Reply {
	tod, err := schedule.ParseTimeOfDay(strings.TrimSpace(text))
	if err != nil {
		return Reply{Text: "That does not look like a time. Send it as HH:MM, for example 09:30.", Keyboard: teamCancelKeyboard()}
	}
	c.PendingTime = tod.String()
	c.State = StateSetOffset
	return Reply{Text: "Now pick the team's UTC offset:", Keyboard: offsetKeyboard()}
}

func (m *Machine) readOffset(c *Context, text string) Reply {
	off, err := schedule.ParseOffset(text)
	if err != nil {
		return Reply{Text: "Use the buttons, or send the offset as UTC+N or UTC-N.", Keyboard: offsetKeyboard()}
	}
	c.PendingOffset = off.String()
	c.State = StateSetSchedule
	return Reply{Text: "On which days should standups run?", Keyboard: presetKeyboard()}
}

func (m *Machine) managerOnly() Reply {
	return Reply{Text: "Only a team manager can do that.", Keyboard: teamCancelKeyboard(), Edit: true}
}

func (m *Machine) formatNextRun(spec schedule.Spec) string {
	next := schedule.NextTrigger(m.now(), spec)
	return next.In(spec.Offset.Location()).Format("Mon, 02 Jan 15:04") + " " + spec.Offset.String()
}
