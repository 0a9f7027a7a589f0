package conversation

import (
	"fmt"
	"strconv"

	"github.com/standupbuddy/standupbuddy/internal/schedule"
	"github.com/standupbuddy/standupbuddy/internal/team"
)

// Button is one inline keyboard button: a visible label plus the opaque
// action delivered back through HandleButton.
type Button struct {
	Label  string
	Action string
}

// Reply is what a handler wants shown to the user. Edit asks the transport
// to rewrite the message the pressed keyboard was attached to instead of
// sending a new one.
type Reply struct {
	Text     string
	Keyboard [][]Button
	Edit     bool
}

// Button actions. Team-scoped actions rely on the context's TeamID rather
// than embedding the id.
const (
	actMenuCreate = "m:create"
	actMenuJoin   = "m:join"
	actMenuTeams  = "m:teams"

	actBackMenu  = "back:menu"
	actBackTeams = "back:teams"
	actBackTeam  = "back:team"

	actTeamPrefix = "t:"

	actTeamInfo       = "tm:info"
	actTeamView       = "tm:view"
	actTeamEdit       = "tm:edit"
	actTeamClear      = "tm:clear"
	actTeamRun        = "tm:run"
	actTeamMembers    = "tm:members"
	actTeamRemove     = "tm:remove"
	actTeamLeave      = "tm:leave"
	actRemovePrefix   = "rm:"
	actOffsetPrefix   = "tz:"
	actPresetEveryday = "sch:everyday"
	actPresetWeekdays = "sch:weekdays"
	actPresetWeekends = "sch:weekends"
	actCustomStart    = "sch:custom"
	actCustomToggle   = "sch:toggle:"
	actCustomReset    = "sch:reset"
	actCustomSave     = "sch:save"
)

func menuKeyboard() [][]Button {
	return [][]Button{
		{{Label: "➕ Create a team", Action: actMenuCreate}},
		{{Label: "🔑 Join a team", Action: actMenuJoin}},
		{{Label: "👥 My teams", Action: actMenuTeams}},
	}
}

func teamListKeyboard(teams []team.Team) [][]Button {
	rows := make([][]Button, 0, len(teams)+1)
	for _, t := range teams {
		rows = append(rows, []Button{{Label: t.Name, Action: actTeamPrefix + t.ID.String()}})
	}
	rows = append(rows, []Button{{Label: "⬅️ Back", Action: actBackMenu}})
	return rows
}

func teamMenuKeyboard(manager bool) [][]Button {
	rows := [][]Button{
		{{Label: "ℹ️ Team info", Action: actTeamInfo}},
		{{Label: "🗓 View schedule", Action: actTeamView}},
		{{Label: "👥 Members", Action: actTeamMembers}},
	}
	if manager {
		rows = append(rows,
			[]Button{{Label: "✏️ Edit schedule", Action: actTeamEdit}},
			[]Button{{Label: "🗑 Delete schedule", Action: actTeamClear}},
			[]Button{{Label: "▶️ Run standup now", Action: actTeamRun}},
			[]Button{{Label: "🚷 Remove a member", Action: actTeamRemove}},
		)
	}
	rows = append(rows,
		[]Button{{Label: "🚪 Leave team", Action: actTeamLeave}},
		[]Button{{Label: "⬅️ Back", Action: actBackTeams}},
	)
	return rows
}

// offsetKeyboard lays the UTC-12..UTC+14 grid out four to a row.
func offsetKeyboard() [][]Button {
	var rows [][]Button
	var row []Button
	for n := schedule.MinOffset; n <= schedule.MaxOffset; n++ {
		row = append(row, Button{
			Label:  schedule.Offset(n).String(),
			Action: actOffsetPrefix + strconv.Itoa(n),
		})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []Button{{Label: "❌ Cancel", Action: actBackTeam}})
	return rows
}

func presetKeyboard() [][]Button {
	return [][]Button{
		{{Label: "Every day", Action: actPresetEveryday}},
		{{Label: "Weekdays (Mon–Fri)", Action: actPresetWeekdays}},
		{{Label: "Weekends (Sat–Sun)", Action: actPresetWeekends}},
		{{Label: "⚙️ Custom days", Action: actCustomStart}},
		{{Label: "❌ Cancel", Action: actBackTeam}},
	}
}

var dayLabels = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// dayPickerKeyboard renders the custom selection with checkmarks on the
// currently toggled days.
func dayPickerKeyboard(c *Context) [][]Button {
	var rows [][]Button
	var row []Button
	for d := 0; d < 7; d++ {
		label := dayLabels[d]
		if c.hasDay(d) {
			label = "✅ " + label
		}
		row = append(row, Button{Label: label, Action: actCustomToggle + strconv.Itoa(d)})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows,
		[]Button{
			{Label: "♻️ Reset", Action: actCustomReset},
			{Label: "💾 Save", Action: actCustomSave},
		},
		[]Button{{Label: "❌ Cancel", Action: actBackTeam}},
	)
	return rows
}

func removeMemberKeyboard(members []team.Member) [][]Button {
	rows := make([][]Button, 0, len(members)+1)
	for _, m := range members {
		rows = append(rows, []Button{{
			Label:  m.Name,
			Action: actRemovePrefix + strconv.FormatInt(m.TgID, 10),
		}})
	}
	rows = append(rows, []Button{{Label: "⬅️ Back", Action: actBackTeam}})
	return rows
}

func cancelKeyboard() [][]Button {
	return [][]Button{{{Label: "❌ Cancel", Action: actBackMenu}}}
}

func teamCancelKeyboard() [][]Button {
	return [][]Button{{{Label: "❌ Cancel", Action: actBackTeam}}}
}

func scheduleLine(t *team.Team) string {
	spec, ok := t.Schedule()
	if !ok {
		return "No schedule is configured."
	}
	return fmt.Sprintf("Standups run at %s %s on %s.", spec.Time, spec.Offset, schedule.Label(spec.Days))
}
