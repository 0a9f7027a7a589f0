// Package conversation implements the per-user wizard that drives team
// setup, membership and schedule configuration. Every transition receives
// an explicit Context record; free text is interpreted strictly by the
// context's state tag, never by ambient flags.
package conversation

import "github.com/google/uuid"

// State tags the wizard position of one conversation.
type State string

const (
	// StateIdle is the terminal state: free text is interpreted only as a
	// standup answer, buttons re-open the menu.
	StateIdle               State = "idle"
	StateMenu               State = "menu"
	StateTeamSelect         State = "team_select"
	StateTeamMenu           State = "team_menu"
	StateCreateTeamName     State = "create_team_name"
	StateJoinCode           State = "join_code"
	StateSetTimeOfDay       State = "set_time_of_day"
	StateSetOffset          State = "set_offset"
	StateSetSchedule        State = "set_schedule"
	StateRemoveMemberSelect State = "remove_member_select"
)

// Context is the transient per-conversation record. It carries the state
// tag plus the wizard's pending inputs; schedule pendings are cleared on
// save and on cancel.
type Context struct {
	State         State      `json:"state"`
	TeamID        *uuid.UUID `json:"team_id,omitempty"`
	PendingTime   string     `json:"pending_time,omitempty"`
	PendingOffset string     `json:"pending_offset,omitempty"`
	PendingDays   []int      `json:"pending_days,omitempty"`
}

// clearPending drops the schedule wizard's transient inputs.
func (c *Context) clearPending() {
	c.PendingTime = ""
	c.PendingOffset = ""
	c.PendingDays = nil
}

// toggleDay flips one weekday in the pending custom selection.
func (c *Context) toggleDay(day int) {
	for i, d := range c.PendingDays {
		if d == day {
			c.PendingDays = append(c.PendingDays[:i], c.PendingDays[i+1:]...)
			return
		}
	}
	c.PendingDays = append(c.PendingDays, day)
}

func (c *Context) hasDay(day int) bool {
	for _, d := range c.PendingDays {
		if d == day {
			return true
		}
	}
	return false
}
