package core

import (
	"slices"

	"bizassist/pkg"
)

// recentTurns returns the last maxTurns exchanges of a history. One exchange
// is a user turn and the assistant reply, so the window holds 2*maxTurns entries.
func recentTurns(turns []pkg.Turn, maxTurns int) []pkg.Turn {
	if maxTurns <= 0 {
		return nil
	}
	return slices.Clone(trimTail(turns, maxTurns*2))
}

func trimTail(turns []pkg.Turn, n int) []pkg.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
