package domain

import (
	"regexp"
	"strings"
	"time"
)

// OptionCount is the fixed number of answer options on every question.
const OptionCount = 4

// NoAnswer marks a player who has not picked an option.
const NoAnswer = -1

var roomCodePattern = regexp.MustCompile(`^[0-9]{5}$`)

// ValidateRoomCode checks the 5-digit room code format.
func ValidateRoomCode(code string) error {
	if !roomCodePattern.MatchString(code) {
		return ErrInvalidRoomCode
	}
	return nil
}

// Position addresses one question: the level and the 1-based order within it.
type Position struct {
	Level    int `json:"level"`
	Question int `json:"currentQ"`
}

// IsZero reports whether the position is unset.
func (p Position) IsZero() bool {
	return p.Level == 0 && p.Question == 0
}

// Room is the shared session document every participant renders from.
type Room struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Status         RoomStatus `json:"status"`
	Phase          Phase      `json:"questionStarted"`
	Level          int        `json:"level"`
	CurrentQ       int        `json:"currentQ"`
	SubmittedCount int        `json:"submittedCount"`
	AdminID        string     `json:"adminId"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Position returns the question the room currently points at.
func (r Room) Position() Position {
	return Position{Level: r.Level, Question: r.CurrentQ}
}

// Active reports whether the room still holds its code.
func (r Room) Active() bool {
	return r.Status != StatusOff
}

// Validate checks the invariants that must hold for any room read from a store.
func (r Room) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "missing"}
	}
	if err := ValidateRoomCode(r.Code); err != nil {
		return &ValidationError{Field: "code", Reason: "must be 5 digits"}
	}
	if _, err := ParseRoomStatus(string(r.Status)); err != nil {
		return err
	}
	if _, err := ParsePhase(string(r.Phase)); err != nil {
		return err
	}
	if r.Level < 1 {
		return &ValidationError{Field: "level", Reason: "must be positive"}
	}
	if r.CurrentQ < 0 {
		return &ValidationError{Field: "currentQ", Reason: "must not be negative"}
	}
	if r.SubmittedCount < 0 {
		return &ValidationError{Field: "submittedCount", Reason: "must not be negative"}
	}
	return nil
}

// RoomUpdate is a partial room write; nil fields are left untouched.
type RoomUpdate struct {
	Status         *RoomStatus
	Phase          *Phase
	Level          *int
	CurrentQ       *int
	SubmittedCount *int
}

// Apply merges the update into r.
func (u RoomUpdate) Apply(r *Room) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Phase != nil {
		r.Phase = *u.Phase
	}
	if u.Level != nil {
		r.Level = *u.Level
	}
	if u.CurrentQ != nil {
		r.CurrentQ = *u.CurrentQ
	}
	if u.SubmittedCount != nil {
		r.SubmittedCount = *u.SubmittedCount
	}
}

// RoomCounter names a room field that can be incremented atomically.
type RoomCounter string

const CounterSubmitted RoomCounter = "submittedCount"

// RoomSnapshot is one change notification from a room subscription.
// Exists is false once the room has been deleted.
type RoomSnapshot struct {
	Room   Room
	Exists bool
}

// RoomSummary is a room plus its player count, for admin listings.
type RoomSummary struct {
	Room
	PlayerCount int `json:"playerCount"`
}

// Player is a participant document inside a room, keyed by nickname.
type Player struct {
	Nickname    string    `json:"nickname"`
	Role        Role      `json:"role"`
	Score       int       `json:"score"`
	Answer      int       `json:"answer"`
	Avatar      string    `json:"avatar"`
	Tools       HelpTools `json:"tools"`
	SubmittedAt Position  `json:"submittedAt"`
}

// HasAnswered reports whether the player submitted an option.
func (p Player) HasAnswered() bool {
	return p.Answer != NoAnswer
}

// PlayerUpdate is a partial player write; nil fields are left untouched.
type PlayerUpdate struct {
	Role        *Role
	Score       *int
	Answer      *int
	Avatar      *string
	Tools       *HelpTools
	SubmittedAt *Position
}

// Apply merges the update into p.
func (u PlayerUpdate) Apply(p *Player) {
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Score != nil {
		p.Score = *u.Score
	}
	if u.Answer != nil {
		p.Answer = *u.Answer
	}
	if u.Avatar != nil {
		p.Avatar = *u.Avatar
	}
	if u.Tools != nil {
		p.Tools = *u.Tools
	}
	if u.SubmittedAt != nil {
		p.SubmittedAt = *u.SubmittedAt
	}
}

// NewPlayer returns a player document with no answer recorded.
func NewPlayer(nickname string) Player {
	return Player{Nickname: nickname, Role: RoleUser, Answer: NoAnswer}
}

// UserProfile is the global per-nickname profile that outlives rooms.
type UserProfile struct {
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
	Level    int    `json:"level"`
	Avatar   string `json:"avatar"`
}

// ProfileUpdate is a partial profile write; nil fields are left untouched.
type ProfileUpdate struct {
	Role   *Role
	Level  *int
	Avatar *string
}

// Apply merges the update into p.
func (u ProfileUpdate) Apply(p *UserProfile) {
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Level != nil {
		p.Level = *u.Level
	}
	if u.Avatar != nil {
		p.Avatar = *u.Avatar
	}
}

// Question models a 4-option question addressed by (level, order).
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Level         int      `json:"level" yaml:"level"`
	Order         int      `json:"order" yaml:"order"`
	Text          string   `json:"text" yaml:"text"`
	Options       []string `json:"options" yaml:"options"`
	CorrectIndex  int      `json:"correctIndex" yaml:"correctIndex"`
	BackgroundImg string   `json:"backgroundImg" yaml:"backgroundImg"`
	SlideURL      string   `json:"slideUrl" yaml:"slideUrl"`
}

// Position returns the (level, order) address of the question.
func (q Question) Position() Position {
	return Position{Level: q.Level, Question: q.Order}
}

// Validate checks the authoring rules: text, exactly 4 non-empty options,
// a correct index in range and a positive level.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return &ValidationError{Field: "text", Reason: "required"}
	}
	if len(q.Options) != OptionCount {
		return &ValidationError{Field: "options", Reason: "exactly 4 options required"}
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return &ValidationError{Field: "options", Reason: "all options required"}
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
		return &ValidationError{Field: "correctIndex", Reason: "must be between 0 and 3"}
	}
	if q.Level < 1 {
		return &ValidationError{Field: "level", Reason: "must be positive"}
	}
	return nil
}

// ScoreEntry is the input of a ranking.
type ScoreEntry struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

// Standing is a ranked score entry.
type Standing struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// GameResult is the final record of a finished room.
type GameResult struct {
	RoomID     string     `json:"roomId"`
	Code       string     `json:"code"`
	Level      int        `json:"level"`
	Standings  []Standing `json:"standings"`
	FinishedAt time.Time  `json:"finishedAt"`
}
