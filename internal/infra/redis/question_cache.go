package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

const generationKey = "questions:gen"

// QuestionCache caches each level's questions in Redis as a JSON string and
// falls back to the backing store on a miss. Cache keys embed a generation
// counter that every write bumps, so all instances drop stale levels at once:
//
//	questions:gen                     string  generation counter
//	questions:{gen}:level:{level}     string  JSON array of questions
type QuestionCache struct {
	client *redis.Client
	store  app.QuestionStore
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, store app.QuestionStore, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		store:  store,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListLevel(ctx context.Context, level int) ([]domain.Question, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return c.store.ListLevel(ctx, level)
	}
	key := levelKey(gen, level)
	if questions, ok := c.cached(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cached(ctx, key); ok {
			return questions, nil
		}
		questions, err := c.store.ListLevel(ctx, level)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneQuestions(result.([]domain.Question)), nil
}

// QueryQuestion is served from the cached level.
func (c *QuestionCache) QueryQuestion(ctx context.Context, level, order int) (domain.Question, error) {
	questions, err := c.ListLevel(ctx, level)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.Order == order {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (c *QuestionCache) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	return c.store.GetQuestion(ctx, id)
}

func (c *QuestionCache) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	return c.store.ListQuestions(ctx)
}

func (c *QuestionCache) UpsertQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.invalidate(ctx)
	return c.store.UpsertQuestion(ctx, q)
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, id string) error {
	defer c.invalidate(ctx)
	return c.store.DeleteQuestion(ctx, id)
}

// invalidate moves every reader to a fresh generation; old keys expire on
// their own.
func (c *QuestionCache) invalidate(ctx context.Context) {
	_ = c.client.Incr(ctx, generationKey).Err()
}

func (c *QuestionCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *QuestionCache) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func levelKey(gen int64, level int) string {
	return "questions:" + strconv.FormatInt(gen, 10) + ":level:" + strconv.Itoa(level)
}

func cloneQuestions(in []domain.Question) []domain.Question {
	out := make([]domain.Question, len(in))
	copy(out, in)
	return out
}
