package memory

import (
	"context"
	"sync"

	"quiz-room-service/internal/domain"
)

// QuestionBank is an in-memory question store (useful for tests/demos, and
// when no Postgres is configured).
type QuestionBank struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
}

func NewQuestionBank(questions ...domain.Question) *QuestionBank {
	b := &QuestionBank{questions: make(map[string]domain.Question, len(questions))}
	for _, q := range questions {
		b.questions[q.ID] = q
	}
	return b
}

func (b *QuestionBank) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (b *QuestionBank) QueryQuestion(_ context.Context, level, order int) (domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, q := range b.questions {
		if q.Level == level && q.Order == order {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (b *QuestionBank) ListQuestions(_ context.Context) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Question, 0, len(b.questions))
	for _, q := range b.questions {
		out = append(out, q)
	}
	return out, nil
}

func (b *QuestionBank) ListLevel(_ context.Context, level int) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range b.questions {
		if q.Level == level {
			out = append(out, q)
		}
	}
	return out, nil
}

func (b *QuestionBank) UpsertQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		return domain.Question{}, &domain.ValidationError{Field: "id", Reason: "required"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q.Options = append([]string(nil), q.Options...)
	b.questions[q.ID] = q
	return q, nil
}

func (b *QuestionBank) DeleteQuestion(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(b.questions, id)
	return nil
}
