package domain

// RoomStatus is the coarse lifecycle of a room.
type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in-progress"
	StatusEnded      RoomStatus = "ended"
	StatusOff        RoomStatus = "off"
)

// ParseRoomStatus validates a status read from a store or a request.
func ParseRoomStatus(s string) (RoomStatus, error) {
	switch st := RoomStatus(s); st {
	case StatusWaiting, StatusInProgress, StatusEnded, StatusOff:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown status " + s}
}

// Phase (questionStarted) drives which screen every client renders.
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseHome    Phase = "home"
	PhasePlaying Phase = "playing"
	PhaseResult  Phase = "result"
	PhaseLearn   Phase = "learn"
	PhaseEndgame Phase = "endgame"
)

// ParsePhase validates a phase read from a store or a request.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseWaiting, PhaseHome, PhasePlaying, PhaseResult, PhaseLearn, PhaseEndgame:
		return p, nil
	}
	return "", &ValidationError{Field: "questionStarted", Reason: "unknown phase " + s}
}

// Role distinguishes players from the room admin.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role read from a store or a request.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, nil
	}
	return "", &ValidationError{Field: "role", Reason: "unknown role " + s}
}

// HelpTool names one of the one-shot player modifiers.
type HelpTool string

const (
	ToolRevealHalf   HelpTool = "reveal-half"
	ToolRevealOne    HelpTool = "reveal-one"
	ToolDoublePoints HelpTool = "double-points"
)

// ParseHelpTool validates a tool name from a client message.
func ParseHelpTool(s string) (HelpTool, error) {
	switch t := HelpTool(s); t {
	case ToolRevealHalf, ToolRevealOne, ToolDoublePoints:
		return t, nil
	}
	return "", &ValidationError{Field: "tool", Reason: "unknown help tool " + s}
}

// HelpTools records which tools a player has spent in a room. DoubleAt is the
// question the double-points tool was spent on.
type HelpTools struct {
	RevealHalf   bool     `json:"revealHalf"`
	RevealOne    bool     `json:"revealOne"`
	DoublePoints bool     `json:"doublePoints"`
	DoubleAt     Position `json:"doubleAt"`
}

// Used reports whether tool has already been spent.
func (t HelpTools) Used(tool HelpTool) bool {
	switch tool {
	case ToolRevealHalf:
		return t.RevealHalf
	case ToolRevealOne:
		return t.RevealOne
	case ToolDoublePoints:
		return t.DoublePoints
	}
	return false
}
