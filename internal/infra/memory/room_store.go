package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. Every mutation
// is broadcast to subscribers under the write lock.
type RoomStore struct {
	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	rooms    map[string]*roomEntry
	profiles map[string]*profileEntry
}

type roomEntry struct {
	room       domain.Room
	players    map[string]domain.Player
	roomSubs   map[chan domain.RoomSnapshot]struct{}
	playerSubs map[chan []domain.Player]struct{}
}

type profileEntry struct {
	profile domain.UserProfile
	exists  bool
	subs    map[chan domain.UserProfile]struct{}
}

func NewRoomStore() *RoomStore {
	return NewRoomStoreWithClock(time.Now)
}

// NewRoomStoreWithClock is test-only for deterministic timestamps.
func NewRoomStoreWithClock(now func() time.Time) *RoomStore {
	return &RoomStore{
		now:      now,
		newID:    uuid.NewString,
		rooms:    make(map[string]*roomEntry),
		profiles: make(map[string]*profileEntry),
	}
}

func (s *RoomStore) CreateRoom(_ context.Context, code, adminID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.rooms {
		if e.room.Code == code && e.room.Active() {
			return domain.Room{}, domain.ErrDuplicateCode
		}
	}
	room := domain.Room{
		ID:        s.newID(),
		Code:      code,
		Status:    domain.StatusWaiting,
		Phase:     domain.PhaseWaiting,
		Level:     1,
		AdminID:   adminID,
		CreatedAt: s.now().UTC(),
	}
	s.rooms[room.ID] = &roomEntry{
		room:       room,
		players:    make(map[string]domain.Player),
		roomSubs:   make(map[chan domain.RoomSnapshot]struct{}),
		playerSubs: make(map[chan []domain.Player]struct{}),
	}
	return room, nil
}

func (s *RoomStore) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return e.room, nil
}

// FindRoomByCode returns the active room holding code.
func (s *RoomStore) FindRoomByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.rooms {
		if e.room.Code == code && e.room.Active() {
			return e.room, nil
		}
	}
	return domain.Room{}, domain.ErrRoomNotFound
}

// ListRoomsByAdmin returns the admin's rooms, newest first.
func (s *RoomStore) ListRoomsByAdmin(_ context.Context, adminID string) ([]domain.Room, error) {
	s.mu.RLock()
	rooms := make([]domain.Room, 0)
	for _, e := range s.rooms {
		if e.room.AdminID == adminID {
			rooms = append(rooms, e.room)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

func (s *RoomStore) UpdateRoom(_ context.Context, roomID string, update domain.RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	update.Apply(&e.room)
	broadcast(e.roomSubs, domain.RoomSnapshot{Room: e.room, Exists: true})
	return nil
}

func (s *RoomStore) IncrementRoomField(_ context.Context, roomID string, field domain.RoomCounter, delta int) (int, error) {
	if field != domain.CounterSubmitted {
		return 0, &domain.ValidationError{Field: string(field), Reason: "not a counter"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	if e.room.SubmittedCount+delta < 0 {
		return 0, &domain.ValidationError{Field: string(field), Reason: "must not be negative"}
	}
	e.room.SubmittedCount += delta
	broadcast(e.roomSubs, domain.RoomSnapshot{Room: e.room, Exists: true})
	return e.room.SubmittedCount, nil
}

// DeleteRoom removes the room with its players and closes its subscriptions
// after a final Exists=false snapshot.
func (s *RoomStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	broadcast(e.roomSubs, domain.RoomSnapshot{Room: e.room, Exists: false})
	for ch := range e.roomSubs {
		delete(e.roomSubs, ch)
		close(ch)
	}
	for ch := range e.playerSubs {
		delete(e.playerSubs, ch)
		close(ch)
	}
	delete(s.rooms, roomID)
	return nil
}

func (s *RoomStore) SubscribeRoom(_ context.Context, roomID string) (<-chan domain.RoomSnapshot, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch := make(chan domain.RoomSnapshot, 8)
	e.roomSubs[ch] = struct{}{}
	ch <- domain.RoomSnapshot{Room: e.room, Exists: true}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := e.roomSubs[ch]; ok {
			delete(e.roomSubs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (s *RoomStore) ListPlayers(_ context.Context, roomID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return playersLocked(e), nil
}

func (s *RoomStore) GetPlayer(_ context.Context, roomID, nickname string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return domain.Player{}, domain.ErrRoomNotFound
	}
	p, ok := e.players[nickname]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (s *RoomStore) SubscribePlayers(_ context.Context, roomID string) (<-chan []domain.Player, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch := make(chan []domain.Player, 8)
	e.playerSubs[ch] = struct{}{}
	ch <- playersLocked(e)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := e.playerSubs[ch]; ok {
			delete(e.playerSubs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// UpsertPlayer merges update into the player document, creating it when the
// nickname is new to the room.
func (s *RoomStore) UpsertPlayer(_ context.Context, roomID, nickname string, update domain.PlayerUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	p, ok := e.players[nickname]
	if !ok {
		p = domain.NewPlayer(nickname)
	}
	update.Apply(&p)
	e.players[nickname] = p
	broadcast(e.playerSubs, playersLocked(e))
	return nil
}

func (s *RoomStore) IncrementPlayerScore(_ context.Context, roomID, nickname string, delta int) (int, error) {
	if delta < 0 {
		return 0, domain.ErrNegativeDelta
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	p, ok := e.players[nickname]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	p.Score += delta
	e.players[nickname] = p
	broadcast(e.playerSubs, playersLocked(e))
	return p.Score, nil
}

func (s *RoomStore) DeletePlayer(_ context.Context, roomID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, ok := e.players[nickname]; !ok {
		return domain.ErrPlayerNotFound
	}
	delete(e.players, nickname)
	broadcast(e.playerSubs, playersLocked(e))
	return nil
}

func (s *RoomStore) GetUserProfile(_ context.Context, nickname string) (domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pe, ok := s.profiles[nickname]
	if !ok || !pe.exists {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	return pe.profile, nil
}

// UpsertUserProfile merges update into the profile; a new profile starts as a
// level 1 user.
func (s *RoomStore) UpsertUserProfile(_ context.Context, nickname string, update domain.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pe := s.profileLocked(nickname)
	if !pe.exists {
		pe.profile = domain.UserProfile{Nickname: nickname, Role: domain.RoleUser, Level: 1}
		pe.exists = true
	}
	update.Apply(&pe.profile)
	broadcast(pe.subs, pe.profile)
	return nil
}

// SubscribeUserProfile follows a profile; nothing is delivered until it exists.
func (s *RoomStore) SubscribeUserProfile(_ context.Context, nickname string) (<-chan domain.UserProfile, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pe := s.profileLocked(nickname)
	ch := make(chan domain.UserProfile, 8)
	pe.subs[ch] = struct{}{}
	if pe.exists {
		ch <- pe.profile
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := pe.subs[ch]; ok {
			delete(pe.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (s *RoomStore) profileLocked(nickname string) *profileEntry {
	pe, ok := s.profiles[nickname]
	if !ok {
		pe = &profileEntry{subs: make(map[chan domain.UserProfile]struct{})}
		s.profiles[nickname] = pe
	}
	return pe
}

func playersLocked(e *roomEntry) []domain.Player {
	players := make([]domain.Player, 0, len(e.players))
	for _, p := range e.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].Nickname < players[j].Nickname
	})
	return players
}

// broadcast delivers v to every subscriber. A full channel loses its oldest
// value so a slow reader never blocks writers. Callers hold the write lock,
// which makes them the only sender.
func broadcast[T any](subs map[chan T]struct{}, v T) {
	for ch := range subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}
