package app

import (
	"context"

	"quiz-room-service/internal/domain"
)

// RoomStore abstracts the shared room document store (in-memory, Redis).
// Subscriptions deliver the full current state on every change; the caller
// must invoke the returned cancel function to avoid leaks.
type RoomStore interface {
	CreateRoom(ctx context.Context, code, adminID string) (domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	FindRoomByCode(ctx context.Context, code string) (domain.Room, error)
	ListRoomsByAdmin(ctx context.Context, adminID string) ([]domain.Room, error)
	UpdateRoom(ctx context.Context, roomID string, update domain.RoomUpdate) error
	IncrementRoomField(ctx context.Context, roomID string, field domain.RoomCounter, delta int) (int, error)
	DeleteRoom(ctx context.Context, roomID string) error
	SubscribeRoom(ctx context.Context, roomID string) (<-chan domain.RoomSnapshot, func(), error)

	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)
	GetPlayer(ctx context.Context, roomID, nickname string) (domain.Player, error)
	SubscribePlayers(ctx context.Context, roomID string) (<-chan []domain.Player, func(), error)
	UpsertPlayer(ctx context.Context, roomID, nickname string, update domain.PlayerUpdate) error
	IncrementPlayerScore(ctx context.Context, roomID, nickname string, delta int) (int, error)
	DeletePlayer(ctx context.Context, roomID, nickname string) error

	GetUserProfile(ctx context.Context, nickname string) (domain.UserProfile, error)
	UpsertUserProfile(ctx context.Context, nickname string, update domain.ProfileUpdate) error
	SubscribeUserProfile(ctx context.Context, nickname string) (<-chan domain.UserProfile, func(), error)
}

// QuestionStore is the question bank addressed by (level, order).
type QuestionStore interface {
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	QueryQuestion(ctx context.Context, level, order int) (domain.Question, error)
	ListQuestions(ctx context.Context) ([]domain.Question, error)
	ListLevel(ctx context.Context, level int) ([]domain.Question, error)
	UpsertQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
}

// ResultRecorder receives the final standings of a finished room.
type ResultRecorder interface {
	Record(ctx context.Context, result domain.GameResult) error
}
