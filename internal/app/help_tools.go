package app

import "quiz-room-service/internal/domain"

// HiddenAnswers derives the option indices masked for a player from the
// question's correct index and the tools already spent in the room. The mask
// is recomputed for every question; reveal-half wins over reveal-one.
func HiddenAnswers(correctIndex int, tools domain.HelpTools) []int {
	hide := 0
	switch {
	case tools.RevealHalf:
		hide = 2
	case tools.RevealOne:
		hide = 1
	}
	hidden := make([]int, 0, hide)
	for i := 0; i < domain.OptionCount && len(hidden) < hide; i++ {
		if i == correctIndex {
			continue
		}
		hidden = append(hidden, i)
	}
	return hidden
}

// DoubleActive reports whether double-points applies to the question at pos.
// The flag only counts on the question it was spent on.
func DoubleActive(tools domain.HelpTools, pos domain.Position) bool {
	return tools.DoublePoints && tools.DoubleAt == pos
}

// UseTool marks tool as spent at pos. It fails with ErrToolUsed when the tool
// was already spent in this room.
func UseTool(tools domain.HelpTools, tool domain.HelpTool, pos domain.Position) (domain.HelpTools, error) {
	if tools.Used(tool) {
		return tools, domain.ErrToolUsed
	}
	switch tool {
	case domain.ToolRevealHalf:
		tools.RevealHalf = true
	case domain.ToolRevealOne:
		tools.RevealOne = true
	case domain.ToolDoublePoints:
		tools.DoublePoints = true
		tools.DoubleAt = pos
	default:
		return tools, &domain.ValidationError{Field: "tool", Reason: "unknown help tool " + string(tool)}
	}
	return tools, nil
}
