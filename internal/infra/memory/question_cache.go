package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// CachedQuestionStore caches each level's questions with TTL to avoid
// repeated DB hits while a room plays through it. Writes go to the backing
// store and drop the cache.
type CachedQuestionStore struct {
	store app.QuestionStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[int]cachedLevel
}

type cachedLevel struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedQuestionStore(store app.QuestionStore, ttl time.Duration) *CachedQuestionStore {
	return &CachedQuestionStore{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[int]cachedLevel),
	}
}

func (c *CachedQuestionStore) ListLevel(ctx context.Context, level int) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[level]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return cloneQuestions(entry.questions), nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(strconv.Itoa(level), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[level]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.store.ListLevel(ctx, level)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[level] = cachedLevel{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneQuestions(result.([]domain.Question)), nil
}

// QueryQuestion is served from the cached level.
func (c *CachedQuestionStore) QueryQuestion(ctx context.Context, level, order int) (domain.Question, error) {
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

func (c *CachedQuestionStore) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	return c.store.GetQuestion(ctx, id)
}

func (c *CachedQuestionStore) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	return c.store.ListQuestions(ctx)
}

func (c *CachedQuestionStore) UpsertQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.invalidate()
	return c.store.UpsertQuestion(ctx, q)
}

func (c *CachedQuestionStore) DeleteQuestion(ctx context.Context, id string) error {
	defer c.invalidate()
	return c.store.DeleteQuestion(ctx, id)
}

func (c *CachedQuestionStore) invalidate() {
	c.mu.Lock()
	c.cache = make(map[int]cachedLevel)
	c.mu.Unlock()
}

func (c *CachedQuestionStore) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cloneQuestions(in []domain.Question) []domain.Question {
	out := make([]domain.Question, len(in))
	copy(out, in)
	return out
}
