package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-room-service/internal/domain"
)

func TestCachedQuestionStoreCachesLevels(t *testing.T) {
	ctx := context.Background()
	bank := &countingBank{QuestionBank: NewQuestionBank(sampleQuestions()...)}
	cache := NewCachedQuestionStore(bank, time.Minute)

	q, err := cache.QueryQuestion(ctx, 1, 2)
	if err != nil {
		t.Fatalf("query question: %v", err)
	}
	if q.ID != "q2" {
		t.Fatalf("expected q2, got %+v", q)
	}
	if bank.calls != 1 {
		t.Fatalf("expected backing store once, got %d", bank.calls)
	}

	if _, err := cache.QueryQuestion(ctx, 1, 1); err != nil {
		t.Fatalf("query question 2: %v", err)
	}
	if bank.calls != 1 {
		t.Fatalf("expected cache hit, backing calls %d", bank.calls)
	}

	if _, err := cache.QueryQuestion(ctx, 1, 9); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestCachedQuestionStoreInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	bank := &countingBank{QuestionBank: NewQuestionBank(sampleQuestions()...)}
	cache := NewCachedQuestionStore(bank, time.Minute)

	if _, err := cache.ListLevel(ctx, 1); err != nil {
		t.Fatalf("list level: %v", err)
	}
	added := domain.Question{ID: "q3", Level: 1, Order: 3, Text: "Third?", Options: []string{"a", "b", "c", "d"}}
	if _, err := cache.UpsertQuestion(ctx, added); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	questions, err := cache.ListLevel(ctx, 1)
	if err != nil {
		t.Fatalf("list level after write: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions after write, got %d", len(questions))
	}
	if bank.calls != 2 {
		t.Fatalf("expected reload after write, backing calls %d", bank.calls)
	}
}

func TestCachedQuestionStoreExpires(t *testing.T) {
	ctx := context.Background()
	bank := &countingBank{QuestionBank: NewQuestionBank(sampleQuestions()...)}
	cache := NewCachedQuestionStore(bank, time.Minute)
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.ListLevel(ctx, 1)
	now = now.Add(2 * time.Minute)
	_, _ = cache.ListLevel(ctx, 1)

	if bank.calls != 2 {
		t.Fatalf("expected reload after ttl, backing calls %d", bank.calls)
	}
}

func TestCachedQuestionStoreConcurrentLevels(t *testing.T) {
	cache := NewCachedQuestionStore(NewQuestionBank(sampleQuestions()...), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			if _, err := cache.ListLevel(context.Background(), level); err != nil {
				t.Errorf("list level %d: %v", level, err)
			}
			cache.invalidate()
		}(i%3 + 1)
	}
	wg.Wait()

	questions, err := cache.ListLevel(context.Background(), 2)
	if err != nil || len(questions) != 1 || questions[0].ID != "q4" {
		t.Fatalf("expected level 2 from cache, got %+v %v", questions, err)
	}
}

type countingBank struct {
	*QuestionBank
	calls int
}

func (b *countingBank) ListLevel(ctx context.Context, level int) ([]domain.Question, error) {
	b.calls++
	return b.QuestionBank.ListLevel(ctx, level)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Level: 1, Order: 1, Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectIndex: 1},
		{ID: "q2", Level: 1, Order: 2, Text: "Capital of France?", Options: []string{"Paris", "Rome", "Oslo", "Bern"}, CorrectIndex: 0},
		{ID: "q4", Level: 2, Order: 1, Text: "Largest planet?", Options: []string{"Mars", "Venus", "Jupiter", "Earth"}, CorrectIndex: 2},
	}
}
