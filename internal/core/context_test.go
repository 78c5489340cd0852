package core

import (
	"fmt"
	"testing"

	"bizassist/pkg"

	"github.com/stretchr/testify/assert"
)

func history(n int) []pkg.Turn {
	turns := make([]pkg.Turn, n)
	for i := range turns {
		turns[i] = pkg.Turn{Role: pkg.RoleUser, Text: fmt.Sprintf("turn %d", i)}
	}
	return turns
}

func TestRecentTurns(t *testing.T) {
	assert.Len(t, recentTurns(history(3), 6), 3)
	assert.Nil(t, recentTurns(history(3), 0))

	window := recentTurns(history(20), 3)
	assert.Len(t, window, 6)
	assert.Equal(t, "turn 14", window[0].Text)
	assert.Equal(t, "turn 19", window[5].Text)
}

func TestRecentTurnsDoesNotAlias(t *testing.T) {
	turns := history(4)
	window := recentTurns(turns, 1)
	window[0].Text = "changed"
	assert.Equal(t, "turn 2", turns[2].Text)
}

func TestActionNotes(t *testing.T) {
	assert.Empty(t, actionNotes(nil))
	assert.Empty(t, actionNotes([]pkg.ToolAction{{ToolName: "send_email", Outcome: pkg.ToolOutcome{Status: pkg.ToolSucceeded}}}))

	notes := actionNotes([]pkg.ToolAction{
		{ToolName: "create_calendar_event", Outcome: pkg.ToolOutcome{Status: pkg.ToolFailed, Reason: "timed out"}},
		{ToolName: "send_email", Outcome: pkg.ToolOutcome{Status: pkg.ToolSkipped}},
	})
	assert.Contains(t, notes, "Note: I couldn't complete these actions: create calendar event (timed out).")
	assert.Contains(t, notes, "Note: send email was already done earlier in this conversation")
}
