package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	bank := &countingBank{QuestionBank: memory.NewQuestionBank(sampleQuestions()...)}
	cache := NewQuestionCache(client, bank, time.Minute)

	q, err := cache.QueryQuestion(ctx, 1, 2)
	if err != nil {
		t.Fatalf("query question: %v", err)
	}
	if q.ID != "q2" || q.Options[3] != "d" {
		t.Fatalf("unexpected question %+v", q)
	}
	if bank.calls != 1 {
		t.Fatalf("expected loader called once, got %d", bank.calls)
	}
	if !mr.Exists("questions:0:level:1") {
		t.Fatalf("expected level cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	_, _ = cache.QueryQuestion(ctx, 1, 1)
	if bank.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", bank.calls)
	}

	// A second instance sharing the server reuses the entry.
	other := NewQuestionCache(client, bank, time.Minute)
	if _, err := other.ListLevel(ctx, 1); err != nil {
		t.Fatalf("list level: %v", err)
	}
	if bank.calls != 1 {
		t.Fatalf("expected shared cache hit, loader calls=%d", bank.calls)
	}
}

func TestQuestionCacheWriteBumpsGeneration(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	bank := &countingBank{QuestionBank: memory.NewQuestionBank(sampleQuestions()...)}
	cache := NewQuestionCache(client, bank, time.Minute)
	other := NewQuestionCache(client, bank, time.Minute)

	if _, err := cache.ListLevel(ctx, 1); err != nil {
		t.Fatalf("list level: %v", err)
	}
	added := domain.Question{ID: "q3", Level: 1, Order: 3, Text: "Third?", Options: []string{"a", "b", "c", "d"}}
	if _, err := cache.UpsertQuestion(ctx, added); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got, _ := mr.Get(generationKey); got != "1" {
		t.Fatalf("expected generation 1, got %q", got)
	}

	questions, err := other.ListLevel(ctx, 1)
	if err != nil {
		t.Fatalf("list level after write: %v", err)
	}
	if len(questions) != 3 || bank.calls != 2 {
		t.Fatalf("expected reload with 3 questions, got %d after %d loads", len(questions), bank.calls)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	bank := &countingBank{QuestionBank: memory.NewQuestionBank(sampleQuestions()...)}
	cache := NewQuestionCache(client, bank, time.Second)

	_, _ = cache.ListLevel(ctx, 1)
	mr.FastForward(2 * time.Second)
	_, _ = cache.ListLevel(ctx, 1)
	if bank.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls=%d", bank.calls)
	}
}

type countingBank struct {
	*memory.QuestionBank
	calls int
}

func (b *countingBank) ListLevel(ctx context.Context, level int) ([]domain.Question, error) {
	b.calls++
	return b.QuestionBank.ListLevel(ctx, level)
}

func sampleQuestions() []domain.Question {
	opts := []string{"a", "b", "c", "d"}
	return []domain.Question{
		{ID: "q1", Level: 1, Order: 1, Text: "What is 2 + 2?", Options: opts, CorrectIndex: 1},
		{ID: "q2", Level: 1, Order: 2, Text: "Capital of France?", Options: opts, CorrectIndex: 0},
		{ID: "q4", Level: 2, Order: 1, Text: "Largest planet?", Options: opts, CorrectIndex: 2},
	}
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
