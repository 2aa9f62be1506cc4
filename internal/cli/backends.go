package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/infra/memory"
	"quiz-room-service/internal/infra/postgres"
	redisstore "quiz-room-service/internal/infra/redis"
)

// backends holds the stores selected by the config. Postgres and Redis are
// optional; without them the in-memory implementations are used.
type backends struct {
	redis     *redis.Client
	pool      *pgxpool.Pool
	rooms     app.RoomStore
	questions app.QuestionStore
}

func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.rooms = redisstore.NewRoomStore(b.redis)
		log.Info("using redis room store", "addr", cfg.Redis.Addr)
	} else {
		b.rooms = memory.NewRoomStore()
		log.Info("using in-memory room store")
	}

	var base app.QuestionStore
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
		base = postgres.NewQuestionStore(pool)
	} else {
		base = memory.NewQuestionBank()
	}

	ttl := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	if b.redis != nil {
		b.questions = redisstore.NewQuestionCache(b.redis, base, ttl)
	} else {
		b.questions = memory.NewCachedQuestionStore(base, ttl)
	}
	return b, nil
}

// seedQuestions imports the seed file when the bank is still empty.
func seedQuestions(ctx context.Context, cfg config.Config, service *app.QuestionService, log *slog.Logger) error {
	if cfg.Questions.SeedFile == "" {
		return nil
	}
	existing, err := service.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	questions, err := config.LoadQuestions(cfg.Questions.SeedFile)
	if err != nil {
		return err
	}
	n, err := service.Import(ctx, questions)
	if err != nil {
		return err
	}
	log.Info("seeded question bank", "file", cfg.Questions.SeedFile, "count", n)
	return nil
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
