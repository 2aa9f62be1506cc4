package app

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"quiz-room-service/internal/domain"
)

// QuestionService authors the question bank and keeps every level's orders
// dense: 1..N with no gaps.
type QuestionService struct {
	store QuestionStore
	log   *slog.Logger

	// mu serialises order assignment within this process.
	mu sync.Mutex
}

func NewQuestionService(store QuestionStore, log *slog.Logger) *QuestionService {
	if log == nil {
		log = slog.Default()
	}
	return &QuestionService{store: store, log: log}
}

// Add appends q to its level with order max+1 and returns the stored question.
func (s *QuestionService) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	max, err := s.maxOrderLocked(ctx, q.Level)
	if err != nil {
		return domain.Question{}, err
	}
	q.Order = max + 1
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	stored, err := s.store.UpsertQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, err
	}
	s.log.Info("question added", "id", stored.ID, "level", stored.Level, "order", stored.Order)
	return stored, nil
}

// Update replaces the content of an existing question. Level and order are
// kept; a question moves only through delete and add.
func (s *QuestionService) Update(ctx context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetQuestion(ctx, q.ID)
	if err != nil {
		return domain.Question{}, err
	}
	q.Level = existing.Level
	q.Order = existing.Order
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	return s.store.UpsertQuestion(ctx, q)
}

// Delete removes a question and shifts the later questions of its level down
// by one so the orders stay contiguous.
func (s *QuestionService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}

	rest, err := s.store.ListLevel(ctx, existing.Level)
	if err != nil {
		return err
	}
	sortQuestions(rest)
	shifted := 0
	for _, q := range rest {
		if q.Order <= existing.Order {
			continue
		}
		q.Order--
		if _, err := s.store.UpsertQuestion(ctx, q); err != nil {
			return err
		}
		shifted++
	}
	s.log.Info("question deleted", "id", id, "level", existing.Level, "order", existing.Order, "shifted", shifted)
	return nil
}

// Get returns the question at (level, order).
func (s *QuestionService) Get(ctx context.Context, level, order int) (domain.Question, error) {
	return s.store.QueryQuestion(ctx, level, order)
}

// List returns every question sorted by level, then order.
func (s *QuestionService) List(ctx context.Context) ([]domain.Question, error) {
	questions, err := s.store.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	sortQuestions(questions)
	return questions, nil
}

// Import appends questions in the given sequence, each at the end of its level.
func (s *QuestionService) Import(ctx context.Context, questions []domain.Question) (int, error) {
	for i, q := range questions {
		if _, err := s.Add(ctx, q); err != nil {
			return i, err
		}
	}
	return len(questions), nil
}

func (s *QuestionService) maxOrderLocked(ctx context.Context, level int) (int, error) {
	questions, err := s.store.ListLevel(ctx, level)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, q := range questions {
		if q.Order > max {
			max = q.Order
		}
	}
	return max, nil
}

func sortQuestions(qs []domain.Question) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].Level != qs[j].Level {
			return qs[i].Level < qs[j].Level
		}
		return qs[i].Order < qs[j].Order
	})
}
