package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-room-service/internal/domain"
)

const uniqueViolation = "23505"

const questionColumns = `id, level, sort_order, text, options, correct_index, background_img, slide_url`

// QuestionStore is the question bank on Postgres; options are kept as JSONB.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id)
	return scanQuestion(row)
}

func (s *QuestionStore) QueryQuestion(ctx context.Context, level, order int) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE level=$1 AND sort_order=$2`, level, order)
	return scanQuestion(row)
}

func (s *QuestionStore) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY level, sort_order`)
	if err != nil {
		return nil, domain.Transient("list questions", err)
	}
	return collectQuestions(rows)
}

func (s *QuestionStore) ListLevel(ctx context.Context, level int) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE level=$1 ORDER BY sort_order`, level)
	if err != nil {
		return nil, domain.Transient("list level", err)
	}
	return collectQuestions(rows)
}

// UpsertQuestion inserts or replaces the question keyed by id.
func (s *QuestionStore) UpsertQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	options, err := json.Marshal(q.Options)
	if err != nil {
		return domain.Question{}, fmt.Errorf("marshal options: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO questions (`+questionColumns+`, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (id) DO UPDATE SET
    level=EXCLUDED.level,
    sort_order=EXCLUDED.sort_order,
    text=EXCLUDED.text,
    options=EXCLUDED.options,
    correct_index=EXCLUDED.correct_index,
    background_img=EXCLUDED.background_img,
    slide_url=EXCLUDED.slide_url,
    updated_at=now()
RETURNING `+questionColumns,
		q.ID, q.Level, q.Order, q.Text, string(options), q.CorrectIndex, q.BackgroundImg, q.SlideURL)
	saved, err := scanQuestion(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Question{}, &domain.ValidationError{Field: "order", Reason: "position already taken"}
	}
	return saved, err
}

func (s *QuestionStore) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return domain.Transient("delete question", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q   domain.Question
		raw []byte
	)
	err := row.Scan(&q.ID, &q.Level, &q.Order, &q.Text, &raw, &q.CorrectIndex, &q.BackgroundImg, &q.SlideURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, domain.Transient("load question", err)
	}
	if err := json.Unmarshal(raw, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return q, nil
}

func collectQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()
	questions := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("list questions", err)
	}
	return questions, nil
}
