package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/domain"
)

// Key layout:
//
//	room:{id}                  hash   room document
//	room:code:{code}           string id of the active room holding the code
//	rooms:admin:{adminID}      set    room ids created by the admin
//	room:{id}:players          set    nicknames
//	room:{id}:player:{nick}    hash   player document
//	user:{nick}                hash   profile
//
// Every write publishes "updated" or "deleted" on the owning events channel;
// subscribers re-read the document on each message.
const (
	msgUpdated = "updated"
	msgDeleted = "deleted"
)

// Lua results below zero are status codes; real values are never negative.
const (
	luaMissingParent = -1
	luaMissingTarget = -2
	luaNegative      = -3
)

// KEYS[1] parent, KEYS[2] hash; ARGV[1] field, ARGV[2] delta.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('EXISTS', KEYS[2]) == 0 then return -2 end
local cur = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if cur + tonumber(ARGV[2]) < 0 then return -3 end
return redis.call('HINCRBY', KEYS[2], ARGV[1], ARGV[2])
`)

// KEYS[1] hash; ARGV field/value pairs.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if #ARGV > 0 then redis.call('HSET', KEYS[1], unpack(ARGV)) end
return 1
`)

// KEYS[1] parent, KEYS[2] hash, KEYS[3] index set; ARGV[1] index member,
// ARGV[2] number of default pairs, then defaults, then updates.
var upsertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local n = tonumber(ARGV[2])
for i = 3, 2 + 2 * n, 2 do
  redis.call('HSETNX', KEYS[2], ARGV[i], ARGV[i + 1])
end
for i = 3 + 2 * n, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

// KEYS[1] string; ARGV[1] expected value.
var deleteIfScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then return redis.call('DEL', KEYS[1]) end
return 0
`)

// RoomStore is a Redis-backed implementation of app.RoomStore. Any number of
// service instances can share it; change feeds travel over pub/sub.
type RoomStore struct {
	client *redis.Client
	now    func() time.Time
	newID  func() string
}

func NewRoomStore(client *redis.Client) *RoomStore {
	return &RoomStore{client: client, now: time.Now, newID: uuid.NewString}
}

// CreateRoom claims the code with a WATCH transaction so two admins racing
// for the same code cannot both win.
func (s *RoomStore) CreateRoom(ctx context.Context, code, adminID string) (domain.Room, error) {
	room := domain.Room{
		ID:        s.newID(),
		Code:      code,
		Status:    domain.StatusWaiting,
		Phase:     domain.PhaseWaiting,
		Level:     1,
		AdminID:   adminID,
		CreatedAt: s.now().UTC(),
	}
	ck := codeKey(code)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, ck).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrDuplicateCode
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ck, room.ID, 0)
			pipe.HSet(ctx, roomKey(room.ID), encodeRoom(room))
			pipe.SAdd(ctx, adminKey(adminID), room.ID)
			return nil
		})
		return err
	}, ck)
	switch {
	case errors.Is(err, domain.ErrDuplicateCode), errors.Is(err, redis.TxFailedErr):
		return domain.Room{}, domain.ErrDuplicateCode
	case err != nil:
		return domain.Room{}, domain.Transient("create room", err)
	}
	return room, nil
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	fields, err := s.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return domain.Room{}, domain.Transient("get room", err)
	}
	if len(fields) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return decodeRoom(fields)
}

func (s *RoomStore) FindRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, domain.Transient("find room", err)
	}
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	if !room.Active() {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

// ListRoomsByAdmin returns the admin's rooms, newest first.
func (s *RoomStore) ListRoomsByAdmin(ctx context.Context, adminID string) ([]domain.Room, error) {
	ids, err := s.client.SMembers(ctx, adminKey(adminID)).Result()
	if err != nil {
		return nil, domain.Transient("list rooms", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, roomKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, domain.Transient("list rooms", err)
	}
	rooms := make([]domain.Room, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		room, err := decodeRoom(fields)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

// UpdateRoom writes the set fields. Turning a room off releases its code.
func (s *RoomStore) UpdateRoom(ctx context.Context, roomID string, update domain.RoomUpdate) error {
	var room domain.Room
	if update.Status != nil && *update.Status == domain.StatusOff {
		var err error
		if room, err = s.GetRoom(ctx, roomID); err != nil {
			return err
		}
	}
	res, err := updateScript.Run(ctx, s.client, []string{roomKey(roomID)}, roomUpdateArgs(update)...).Int()
	if err != nil {
		return domain.Transient("update room", err)
	}
	if res == luaMissingParent {
		return domain.ErrRoomNotFound
	}
	if room.ID != "" {
		if err := deleteIfScript.Run(ctx, s.client, []string{codeKey(room.Code)}, room.ID).Err(); err != nil {
			return domain.Transient("release room code", err)
		}
	}
	return s.notify(ctx, roomEvents(roomID), msgUpdated)
}

func (s *RoomStore) IncrementRoomField(ctx context.Context, roomID string, field domain.RoomCounter, delta int) (int, error) {
	if field != domain.CounterSubmitted {
		return 0, &domain.ValidationError{Field: string(field), Reason: "not a counter"}
	}
	key := roomKey(roomID)
	n, err := incrementScript.Run(ctx, s.client, []string{key, key}, string(field), delta).Int()
	if err != nil {
		return 0, domain.Transient("increment room", err)
	}
	switch n {
	case luaMissingParent, luaMissingTarget:
		return 0, domain.ErrRoomNotFound
	case luaNegative:
		return 0, &domain.ValidationError{Field: string(field), Reason: "must not be negative"}
	}
	return n, s.notify(ctx, roomEvents(roomID), msgUpdated)
}

// DeleteRoom removes the room with its players and ends every subscription.
func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	nicks, err := s.client.SMembers(ctx, playersKey(roomID)).Result()
	if err != nil {
		return domain.Transient("delete room", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, nick := range nicks {
			pipe.Del(ctx, playerKey(roomID, nick))
		}
		pipe.Del(ctx, playersKey(roomID), roomKey(roomID))
		pipe.SRem(ctx, adminKey(room.AdminID), roomID)
		deleteIfScript.Eval(ctx, pipe, []string{codeKey(room.Code)}, roomID)
		pipe.Publish(ctx, roomEvents(roomID), msgDeleted)
		pipe.Publish(ctx, playerEvents(roomID), msgDeleted)
		return nil
	})
	if err != nil {
		return domain.Transient("delete room", err)
	}
	return nil
}

// SubscribeRoom delivers the current room, then one snapshot per change.
// After deletion a final Exists=false snapshot is sent and the channel closes.
func (s *RoomStore) SubscribeRoom(ctx context.Context, roomID string) (<-chan domain.RoomSnapshot, func(), error) {
	first := func(ctx context.Context) (*domain.RoomSnapshot, error) {
		room, err := s.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return &domain.RoomSnapshot{Room: room, Exists: true}, nil
	}
	return subscribe(ctx, s.client, roomEvents(roomID), first, s.roomSnapshot(roomID))
}

func (s *RoomStore) roomSnapshot(roomID string) func(context.Context) (domain.RoomSnapshot, bool, error) {
	return func(ctx context.Context) (domain.RoomSnapshot, bool, error) {
		room, err := s.GetRoom(ctx, roomID)
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.RoomSnapshot{Room: domain.Room{ID: roomID}}, false, nil
		}
		if err != nil {
			return domain.RoomSnapshot{}, false, err
		}
		return domain.RoomSnapshot{Room: room, Exists: true}, true, nil
	}
}

func (s *RoomStore) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	n, err := s.client.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, domain.Transient("list players", err)
	}
	if n == 0 {
		return nil, domain.ErrRoomNotFound
	}
	nicks, err := s.client.SMembers(ctx, playersKey(roomID)).Result()
	if err != nil {
		return nil, domain.Transient("list players", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(nicks))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, nick := range nicks {
			cmds[i] = pipe.HGetAll(ctx, playerKey(roomID, nick))
		}
		return nil
	})
	if err != nil {
		return nil, domain.Transient("list players", err)
	}
	players := make([]domain.Player, 0, len(nicks))
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		p, err := decodePlayer(cmd.Val())
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].Nickname < players[j].Nickname
	})
	return players, nil
}

func (s *RoomStore) GetPlayer(ctx context.Context, roomID, nickname string) (domain.Player, error) {
	var roomExists *redis.IntCmd
	var fields *redis.MapStringStringCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		roomExists = pipe.Exists(ctx, roomKey(roomID))
		fields = pipe.HGetAll(ctx, playerKey(roomID, nickname))
		return nil
	})
	if err != nil {
		return domain.Player{}, domain.Transient("get player", err)
	}
	if roomExists.Val() == 0 {
		return domain.Player{}, domain.ErrRoomNotFound
	}
	if len(fields.Val()) == 0 {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return decodePlayer(fields.Val())
}

// SubscribePlayers delivers the full player list on every change.
func (s *RoomStore) SubscribePlayers(ctx context.Context, roomID string) (<-chan []domain.Player, func(), error) {
	first := func(ctx context.Context) (*[]domain.Player, error) {
		players, err := s.ListPlayers(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return &players, nil
	}
	load := func(ctx context.Context) ([]domain.Player, bool, error) {
		players, err := s.ListPlayers(ctx, roomID)
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, false, errEnd
		}
		return players, true, err
	}
	return subscribe(ctx, s.client, playerEvents(roomID), first, load)
}

// UpsertPlayer merges update into the player hash, creating it with defaults
// when the nickname is new to the room.
func (s *RoomStore) UpsertPlayer(ctx context.Context, roomID, nickname string, update domain.PlayerUpdate) error {
	p := domain.NewPlayer(nickname)
	defaults, err := playerArgs(domain.PlayerUpdate{
		Role: &p.Role, Score: &p.Score, Answer: &p.Answer,
		Avatar: &p.Avatar, Tools: &p.Tools, SubmittedAt: &p.SubmittedAt,
	})
	if err != nil {
		return err
	}
	defaults = append(defaults, "nickname", nickname)
	updates, err := playerArgs(update)
	if err != nil {
		return err
	}
	args := make([]interface{}, 0, 2+len(defaults)+len(updates))
	args = append(args, nickname, len(defaults)/2)
	args = append(args, defaults...)
	args = append(args, updates...)

	keys := []string{roomKey(roomID), playerKey(roomID, nickname), playersKey(roomID)}
	res, err := upsertScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return domain.Transient("upsert player", err)
	}
	if res == luaMissingParent {
		return domain.ErrRoomNotFound
	}
	return s.notify(ctx, playerEvents(roomID), msgUpdated)
}

func (s *RoomStore) IncrementPlayerScore(ctx context.Context, roomID, nickname string, delta int) (int, error) {
	if delta < 0 {
		return 0, domain.ErrNegativeDelta
	}
	keys := []string{roomKey(roomID), playerKey(roomID, nickname)}
	n, err := incrementScript.Run(ctx, s.client, keys, "score", delta).Int()
	if err != nil {
		return 0, domain.Transient("increment score", err)
	}
	switch n {
	case luaMissingParent:
		return 0, domain.ErrRoomNotFound
	case luaMissingTarget:
		return 0, domain.ErrPlayerNotFound
	}
	return n, s.notify(ctx, playerEvents(roomID), msgUpdated)
}

func (s *RoomStore) DeletePlayer(ctx context.Context, roomID, nickname string) error {
	if _, err := s.GetPlayer(ctx, roomID, nickname); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, playerKey(roomID, nickname))
		pipe.SRem(ctx, playersKey(roomID), nickname)
		pipe.Publish(ctx, playerEvents(roomID), msgUpdated)
		return nil
	})
	if err != nil {
		return domain.Transient("delete player", err)
	}
	return nil
}

func (s *RoomStore) GetUserProfile(ctx context.Context, nickname string) (domain.UserProfile, error) {
	fields, err := s.client.HGetAll(ctx, userKey(nickname)).Result()
	if err != nil {
		return domain.UserProfile{}, domain.Transient("get profile", err)
	}
	if len(fields) == 0 {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	return decodeProfile(fields)
}

// UpsertUserProfile merges update into the profile; a new profile starts as a
// level 1 user.
func (s *RoomStore) UpsertUserProfile(ctx context.Context, nickname string, update domain.ProfileUpdate) error {
	key := userKey(nickname)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "nickname", nickname)
		pipe.HSetNX(ctx, key, "role", string(domain.RoleUser))
		pipe.HSetNX(ctx, key, "level", 1)
		pipe.HSetNX(ctx, key, "avatar", "")
		if args := profileUpdateArgs(update); len(args) > 0 {
			pipe.HSet(ctx, key, args...)
		}
		pipe.Publish(ctx, userEvents(nickname), msgUpdated)
		return nil
	})
	if err != nil {
		return domain.Transient("upsert profile", err)
	}
	return nil
}

// SubscribeUserProfile follows a profile; nothing is delivered until it exists.
func (s *RoomStore) SubscribeUserProfile(ctx context.Context, nickname string) (<-chan domain.UserProfile, func(), error) {
	first := func(ctx context.Context) (*domain.UserProfile, error) {
		profile, err := s.GetUserProfile(ctx, nickname)
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			return nil, nil
		case err != nil:
			return nil, err
		}
		return &profile, nil
	}
	load := func(ctx context.Context) (domain.UserProfile, bool, error) {
		p, err := s.GetUserProfile(ctx, nickname)
		if errors.Is(err, domain.ErrUserNotFound) {
			return p, true, errSkip
		}
		return p, true, err
	}
	return subscribe(ctx, s.client, userEvents(nickname), first, load)
}

func (s *RoomStore) notify(ctx context.Context, channel, msg string) error {
	if err := s.client.Publish(ctx, channel, msg).Err(); err != nil {
		return domain.Transient("publish "+channel, err)
	}
	return nil
}

// errSkip tells the subscription loop to drop the message without ending.
var errSkip = errors.New("skip")

// errEnd closes the feed without delivering the loaded value.
var errEnd = errors.New("end")

// subscribe wires a pub/sub channel to a typed feed. first reads the initial
// document once SUBSCRIBE is confirmed, so a write racing the subscription is
// still seen as a message; a nil value delivers nothing. load re-reads the
// document on each message: alive=false delivers the value and closes the feed,
// errSkip ignores the message, errEnd closes without delivering, and any
// other error closes the feed so the consumer resubscribes.
func subscribe[T any](ctx context.Context, client *redis.Client, channel string, first func(context.Context) (*T, error), load func(context.Context) (T, bool, error)) (<-chan T, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, domain.Transient("subscribe "+channel, err)
	}

	initial, err := first(ctx)
	if err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, err
	}
	out := make(chan T, 8)
	if initial != nil {
		out <- *initial
	}
	msgs := pubsub.Channel()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				v, alive, err := load(ctx)
				switch {
				case errors.Is(err, errSkip):
					continue
				case err != nil:
					return
				}
				deliver(out, v)
				if !alive {
					return
				}
			}
		}
	}()
	return out, stop, nil
}

// deliver drops the oldest pending value when the reader is behind.
func deliver[T any](out chan T, v T) {
	select {
	case out <- v:
	default:
		select {
		case <-out:
		default:
		}
		out <- v
	}
}

func roomKey(id string) string { return "room:" + id }

func codeKey(code string) string { return "room:code:" + code }

func adminKey(adminID string) string { return "rooms:admin:" + adminID }

func playersKey(roomID string) string { return "room:" + roomID + ":players" }

func playerKey(roomID, nick string) string { return "room:" + roomID + ":player:" + nick }

func userKey(nick string) string { return "user:" + nick }

func roomEvents(id string) string { return "room:" + id + ":events" }

func playerEvents(roomID string) string { return "room:" + roomID + ":players:events" }

func userEvents(nick string) string { return "user:" + nick + ":events" }

func encodeRoom(r domain.Room) map[string]interface{} {
	return map[string]interface{}{
		"id":             r.ID,
		"code":           r.Code,
		"status":         string(r.Status),
		"phase":          string(r.Phase),
		"level":          r.Level,
		"currentQ":       r.CurrentQ,
		"submittedCount": r.SubmittedCount,
		"adminId":        r.AdminID,
		"createdAt":      r.CreatedAt.Format(time.RFC3339Nano),
	}
}

func roomUpdateArgs(u domain.RoomUpdate) []interface{} {
	var args []interface{}
	if u.Status != nil {
		args = append(args, "status", string(*u.Status))
	}
	if u.Phase != nil {
		args = append(args, "phase", string(*u.Phase))
	}
	if u.Level != nil {
		args = append(args, "level", *u.Level)
	}
	if u.CurrentQ != nil {
		args = append(args, "currentQ", *u.CurrentQ)
	}
	if u.SubmittedCount != nil {
		args = append(args, string(domain.CounterSubmitted), *u.SubmittedCount)
	}
	return args
}

// decodeRoom parses and validates a room hash; a document that breaks the
// room invariants is reported as a validation error.
func decodeRoom(f map[string]string) (domain.Room, error) {
	room := domain.Room{
		ID:      f["id"],
		Code:    f["code"],
		Status:  domain.RoomStatus(f["status"]),
		Phase:   domain.Phase(f["phase"]),
		AdminID: f["adminId"],
	}
	var err error
	if room.Level, err = atoi(f, "level"); err != nil {
		return domain.Room{}, err
	}
	if room.CurrentQ, err = atoi(f, "currentQ"); err != nil {
		return domain.Room{}, err
	}
	if room.SubmittedCount, err = atoi(f, string(domain.CounterSubmitted)); err != nil {
		return domain.Room{}, err
	}
	if raw := f["createdAt"]; raw != "" {
		if room.CreatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return domain.Room{}, &domain.ValidationError{Field: "createdAt", Reason: err.Error()}
		}
	}
	if err := room.Validate(); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// playerArgs flattens the set fields of u into HSET pairs.
func playerArgs(u domain.PlayerUpdate) ([]interface{}, error) {
	var args []interface{}
	if u.Role != nil {
		args = append(args, "role", string(*u.Role))
	}
	if u.Score != nil {
		args = append(args, "score", *u.Score)
	}
	if u.Answer != nil {
		args = append(args, "answer", *u.Answer)
	}
	if u.Avatar != nil {
		args = append(args, "avatar", *u.Avatar)
	}
	if u.Tools != nil {
		raw, err := json.Marshal(u.Tools)
		if err != nil {
			return nil, fmt.Errorf("encode tools: %w", err)
		}
		args = append(args, "tools", string(raw))
	}
	if u.SubmittedAt != nil {
		raw, err := json.Marshal(u.SubmittedAt)
		if err != nil {
			return nil, fmt.Errorf("encode submittedAt: %w", err)
		}
		args = append(args, "submittedAt", string(raw))
	}
	return args, nil
}

func decodePlayer(f map[string]string) (domain.Player, error) {
	role, err := domain.ParseRole(f["role"])
	if err != nil {
		return domain.Player{}, err
	}
	p := domain.Player{Nickname: f["nickname"], Role: role, Avatar: f["avatar"]}
	if p.Score, err = atoi(f, "score"); err != nil {
		return domain.Player{}, err
	}
	if p.Answer, err = atoi(f, "answer"); err != nil {
		return domain.Player{}, err
	}
	if raw := f["tools"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Tools); err != nil {
			return domain.Player{}, &domain.ValidationError{Field: "tools", Reason: err.Error()}
		}
	}
	if raw := f["submittedAt"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.SubmittedAt); err != nil {
			return domain.Player{}, &domain.ValidationError{Field: "submittedAt", Reason: err.Error()}
		}
	}
	return p, nil
}

func profileUpdateArgs(u domain.ProfileUpdate) []interface{} {
	var args []interface{}
	if u.Role != nil {
		args = append(args, "role", string(*u.Role))
	}
	if u.Level != nil {
		args = append(args, "level", *u.Level)
	}
	if u.Avatar != nil {
		args = append(args, "avatar", *u.Avatar)
	}
	return args
}

func decodeProfile(f map[string]string) (domain.UserProfile, error) {
	role, err := domain.ParseRole(f["role"])
	if err != nil {
		return domain.UserProfile{}, err
	}
	level, err := atoi(f, "level")
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{Nickname: f["nickname"], Role: role, Level: level, Avatar: f["avatar"]}, nil
}

func atoi(f map[string]string, field string) (int, error) {
	raw, ok := f[field]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Reason: "not an integer"}
	}
	return n, nil
}
