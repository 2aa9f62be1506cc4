package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quiz-room-service/internal/domain"
)

// DefaultFinalLevel is the last level of a game; next past its final
// question ends the game.
const DefaultFinalLevel = 4

// Action is an admin-issued room transition.
type Action string

const (
	ActionStart   Action = "start"
	ActionEnd     Action = "end"
	ActionLearn   Action = "learn"
	ActionNext    Action = "next"
	ActionReset   Action = "reset"
	ActionEndgame Action = "endgame"
	ActionOff     Action = "off"
	ActionDelete  Action = "delete"
)

// ParseAction validates an action name from a request path.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStart, ActionEnd, ActionLearn, ActionNext, ActionReset, ActionEndgame, ActionOff, ActionDelete:
		return a, nil
	}
	return "", &domain.ValidationError{Field: "action", Reason: "unknown action " + s}
}

// Command is an admin transition. When At is set the command only applies if
// the room still points at that position, so a repeated click is a no-op.
type Command struct {
	Action Action
	At     *domain.Position
}

// RoomService owns the room lifecycle and the admin transitions.
type RoomService struct {
	rooms      RoomStore
	questions  QuestionStore
	recorders  []ResultRecorder
	finalLevel int
	now        func() time.Time
	log        *slog.Logger
}

// RoomServiceOption configures a RoomService.
type RoomServiceOption func(*RoomService)

// WithFinalLevel overrides DefaultFinalLevel.
func WithFinalLevel(level int) RoomServiceOption {
	return func(s *RoomService) {
		if level > 0 {
			s.finalLevel = level
		}
	}
}

// WithRecorders registers sinks for final standings.
func WithRecorders(recorders ...ResultRecorder) RoomServiceOption {
	return func(s *RoomService) {
		s.recorders = append(s.recorders, recorders...)
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) RoomServiceOption {
	return func(s *RoomService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) RoomServiceOption {
	return func(s *RoomService) {
		s.now = now
	}
}

func NewRoomService(rooms RoomStore, questions QuestionStore, opts ...RoomServiceOption) *RoomService {
	s := &RoomService{
		rooms:      rooms,
		questions:  questions,
		finalLevel: DefaultFinalLevel,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom opens a room for adminID under a unique 5-digit code.
func (s *RoomService) CreateRoom(ctx context.Context, code, adminID string) (domain.Room, error) {
	if err := domain.ValidateRoomCode(code); err != nil {
		return domain.Room{}, err
	}
	if strings.TrimSpace(adminID) == "" {
		return domain.Room{}, &domain.ValidationError{Field: "adminId", Reason: "required"}
	}
	room, err := s.rooms.CreateRoom(ctx, code, adminID)
	if err != nil {
		return domain.Room{}, err
	}
	s.log.Info("room created", "room", room.ID, "code", room.Code, "admin", adminID)
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	return s.rooms.GetRoom(ctx, roomID)
}

// ListRooms returns the rooms of an admin with their player counts.
func (s *RoomService) ListRooms(ctx context.Context, adminID string) ([]domain.RoomSummary, error) {
	rooms, err := s.rooms.ListRoomsByAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		players, err := s.rooms.ListPlayers(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, p := range players {
			if p.Role == domain.RoleUser {
				count++
			}
		}
		summaries = append(summaries, domain.RoomSummary{Room: room, PlayerCount: count})
	}
	return summaries, nil
}

// Standings ranks the players of a room.
func (s *RoomService) Standings(ctx context.Context, roomID string) ([]domain.Standing, error) {
	players, err := s.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return RankPlayers(players), nil
}

// JoinRoom registers nickname in the in-progress room using code. A nickname
// already in the room rejoins with its score and spent tools intact.
func (s *RoomService) JoinRoom(ctx context.Context, code, nickname, avatar string) (domain.Room, domain.Player, error) {
	if err := domain.ValidateRoomCode(code); err != nil {
		return domain.Room{}, domain.Player{}, err
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domain.Room{}, domain.Player{}, &domain.ValidationError{Field: "nickname", Reason: "required"}
	}

	room, err := s.rooms.FindRoomByCode(ctx, code)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	player, err := s.rooms.GetPlayer(ctx, room.ID, nickname)
	switch {
	case err == nil:
		if avatar != "" && avatar != player.Avatar {
			if err := s.rooms.UpsertPlayer(ctx, room.ID, nickname, domain.PlayerUpdate{Avatar: &avatar}); err != nil {
				return domain.Room{}, domain.Player{}, err
			}
			player.Avatar = avatar
		}
		s.log.Info("player rejoined", "room", room.ID, "nickname", nickname, "score", player.Score)
		return room, player, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Room{}, domain.Player{}, err
	}

	if room.Status != domain.StatusInProgress {
		return domain.Room{}, domain.Player{}, domain.ErrRoomNotJoinable
	}

	player = domain.NewPlayer(nickname)
	player.Avatar = avatar
	if err := s.rooms.UpsertPlayer(ctx, room.ID, nickname, domain.PlayerUpdate{
		Role:   ptr(player.Role),
		Score:  ptr(player.Score),
		Answer: ptr(player.Answer),
		Avatar: &avatar,
	}); err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	if err := s.ensureProfile(ctx, nickname, avatar); err != nil {
		return domain.Room{}, domain.Player{}, err
	}
	s.log.Info("player joined", "room", room.ID, "nickname", nickname)
	return room, player, nil
}

func (s *RoomService) ensureProfile(ctx context.Context, nickname, avatar string) error {
	_, err := s.rooms.GetUserProfile(ctx, nickname)
	if err == nil {
		if avatar == "" {
			return nil
		}
		return s.rooms.UpsertUserProfile(ctx, nickname, domain.ProfileUpdate{Avatar: &avatar})
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return s.rooms.UpsertUserProfile(ctx, nickname, domain.ProfileUpdate{
		Role:   ptr(domain.RoleUser),
		Level:  ptr(1),
		Avatar: &avatar,
	})
}

// Apply runs an admin transition and returns the resulting room. Delete
// returns the zero room.
func (s *RoomService) Apply(ctx context.Context, roomID string, cmd Command) (domain.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	// An off room has released its code; only delete may touch it.
	if room.Status == domain.StatusOff && cmd.Action != ActionDelete {
		return room, domain.ErrInvalidTransition
	}
	if cmd.At != nil && *cmd.At != room.Position() {
		s.log.Debug("stale admin command ignored", "room", roomID, "action", cmd.Action,
			"at", *cmd.At, "current", room.Position())
		return room, nil
	}

	var update domain.RoomUpdate
	switch cmd.Action {
	case ActionStart:
		q := room.CurrentQ
		if q < 1 {
			q = 1
		}
		update = domain.RoomUpdate{
			Status:         ptr(domain.StatusInProgress),
			Phase:          ptr(domain.PhasePlaying),
			CurrentQ:       &q,
			SubmittedCount: ptr(0),
		}
	case ActionEnd:
		update = domain.RoomUpdate{Phase: ptr(domain.PhaseResult)}
	case ActionLearn:
		if room.Phase != domain.PhaseResult && room.Phase != domain.PhaseLearn {
			return room, domain.ErrInvalidTransition
		}
		update = domain.RoomUpdate{Phase: ptr(domain.PhaseLearn)}
	case ActionNext:
		return s.next(ctx, room)
	case ActionReset:
		return s.reset(ctx, room)
	case ActionEndgame:
		return s.endgame(ctx, room)
	case ActionOff:
		update = domain.RoomUpdate{Status: ptr(domain.StatusOff)}
	case ActionDelete:
		return domain.Room{}, s.deleteRoom(ctx, room)
	default:
		return room, &domain.ValidationError{Field: "action", Reason: "unknown action " + string(cmd.Action)}
	}

	if err := s.rooms.UpdateRoom(ctx, roomID, update); err != nil {
		return room, err
	}
	update.Apply(&room)
	s.logTransition(cmd.Action, room)
	return room, nil
}

func (s *RoomService) next(ctx context.Context, room domain.Room) (domain.Room, error) {
	maxOrder, err := s.maxOrder(ctx, room.Level)
	if err != nil {
		return room, err
	}
	current := room.CurrentQ
	if current < 1 {
		current = 1
	}

	if current+1 <= maxOrder {
		update := domain.RoomUpdate{CurrentQ: ptr(current + 1), SubmittedCount: ptr(0)}
		if err := s.rooms.UpdateRoom(ctx, room.ID, update); err != nil {
			return room, err
		}
		update.Apply(&room)
		s.logTransition(ActionNext, room)
		return room, nil
	}

	if room.Level >= s.finalLevel {
		return s.endgame(ctx, room)
	}

	newLevel := room.Level + 1
	update := domain.RoomUpdate{
		Level:          &newLevel,
		CurrentQ:       ptr(1),
		Phase:          ptr(domain.PhaseHome),
		SubmittedCount: ptr(0),
	}
	if err := s.rooms.UpdateRoom(ctx, room.ID, update); err != nil {
		return room, err
	}
	update.Apply(&room)
	s.logTransition(ActionNext, room)

	s.forEachProfile(ctx, room.ID, func(p domain.UserProfile) *domain.ProfileUpdate {
		if p.Level >= newLevel {
			return nil
		}
		return &domain.ProfileUpdate{Level: &newLevel}
	})
	return room, nil
}

func (s *RoomService) maxOrder(ctx context.Context, level int) (int, error) {
	questions, err := s.questions.ListLevel(ctx, level)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, q := range questions {
		if q.Order > max {
			max = q.Order
		}
	}
	if max == 0 {
		max = 1
	}
	return max, nil
}

func (s *RoomService) reset(ctx context.Context, room domain.Room) (domain.Room, error) {
	update := domain.RoomUpdate{
		Level:          ptr(1),
		CurrentQ:       ptr(1),
		Phase:          ptr(domain.PhaseHome),
		SubmittedCount: ptr(0),
		Status:         ptr(domain.StatusWaiting),
	}
	if err := s.rooms.UpdateRoom(ctx, room.ID, update); err != nil {
		return room, err
	}
	update.Apply(&room)
	s.logTransition(ActionReset, room)

	// Replayed questions must be answerable again.
	players, err := s.rooms.ListPlayers(ctx, room.ID)
	if err != nil {
		s.log.Warn("list players after reset", "room", room.ID, "err", err)
	}
	for _, p := range players {
		if p.Role != domain.RoleUser || p.SubmittedAt.IsZero() {
			continue
		}
		if err := s.rooms.UpsertPlayer(ctx, room.ID, p.Nickname, domain.PlayerUpdate{
			Answer:      ptr(domain.NoAnswer),
			SubmittedAt: &domain.Position{},
		}); err != nil {
			s.log.Warn("clear player submission", "room", room.ID, "nickname", p.Nickname, "err", err)
		}
	}

	s.forEachProfile(ctx, room.ID, func(p domain.UserProfile) *domain.ProfileUpdate {
		if p.Level == 1 {
			return nil
		}
		return &domain.ProfileUpdate{Level: ptr(1)}
	})
	return room, nil
}

func (s *RoomService) endgame(ctx context.Context, room domain.Room) (domain.Room, error) {
	alreadyOver := room.Phase == domain.PhaseEndgame && room.Status == domain.StatusEnded
	update := domain.RoomUpdate{Phase: ptr(domain.PhaseEndgame), Status: ptr(domain.StatusEnded)}
	if err := s.rooms.UpdateRoom(ctx, room.ID, update); err != nil {
		return room, err
	}
	update.Apply(&room)
	s.logTransition(ActionEndgame, room)
	if !alreadyOver {
		s.recordResult(ctx, room)
	}
	return room, nil
}

func (s *RoomService) recordResult(ctx context.Context, room domain.Room) {
	if len(s.recorders) == 0 {
		return
	}
	standings, err := s.Standings(ctx, room.ID)
	if err != nil {
		s.log.Warn("load final standings", "room", room.ID, "err", err)
		return
	}
	result := domain.GameResult{
		RoomID:     room.ID,
		Code:       room.Code,
		Level:      room.Level,
		Standings:  standings,
		FinishedAt: s.now().UTC(),
	}
	for _, rec := range s.recorders {
		if err := rec.Record(ctx, result); err != nil {
			s.log.Warn("record game result", "room", room.ID, "err", err)
		}
	}
}

func (s *RoomService) deleteRoom(ctx context.Context, room domain.Room) error {
	players, err := s.rooms.ListPlayers(ctx, room.ID)
	if err != nil {
		return err
	}
	for _, p := range players {
		if err := s.rooms.DeletePlayer(ctx, room.ID, p.Nickname); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if err := s.rooms.DeleteRoom(ctx, room.ID); err != nil {
		return err
	}
	s.log.Info("room deleted", "room", room.ID, "code", room.Code, "players", len(players))
	return nil
}

// forEachProfile applies fn's update to the existing profile of every
// user-role player in the room. Failures are logged; the room transition has
// already been written.
func (s *RoomService) forEachProfile(ctx context.Context, roomID string, fn func(domain.UserProfile) *domain.ProfileUpdate) {
	players, err := s.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		s.log.Warn("list players for profile update", "room", roomID, "err", err)
		return
	}
	for _, p := range players {
		if p.Role != domain.RoleUser {
			continue
		}
		profile, err := s.rooms.GetUserProfile(ctx, p.Nickname)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			s.log.Warn("read user profile", "nickname", p.Nickname, "err", err)
			continue
		}
		update := fn(profile)
		if update == nil {
			continue
		}
		if err := s.rooms.UpsertUserProfile(ctx, p.Nickname, *update); err != nil {
			s.log.Warn("update user profile", "nickname", p.Nickname, "err", err)
		}
	}
}

func (s *RoomService) logTransition(action Action, room domain.Room) {
	s.log.Info("room transition",
		"room", room.ID,
		"action", action,
		"status", room.Status,
		"phase", room.Phase,
		"level", room.Level,
		"currentQ", room.CurrentQ,
	)
}

func ptr[T any](v T) *T {
	return &v
}
