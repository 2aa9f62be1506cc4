package app_test

import (
	"context"
	"errors"
	"testing"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

func TestAddAssignsNextOrder(t *testing.T) {
	ctx := context.Background()
	svc := app.NewQuestionService(memory.NewQuestionBank(sampleQuestions()...), discardLogger())

	q, err := svc.Add(ctx, newQuestion(1, "Fourth?"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if q.Order != 4 || q.ID == "" {
		t.Fatalf("expected order 4 with an id, got %+v", q)
	}

	q, err = svc.Add(ctx, newQuestion(3, "New level?"))
	if err != nil {
		t.Fatalf("add to new level: %v", err)
	}
	if q.Order != 1 {
		t.Fatalf("expected first order in an empty level, got %d", q.Order)
	}
}

func TestAddValidates(t *testing.T) {
	ctx := context.Background()
	svc := app.NewQuestionService(memory.NewQuestionBank(), discardLogger())

	bad := []domain.Question{
		{Level: 1, Text: "", Options: []string{"a", "b", "c", "d"}},
		{Level: 1, Text: "Three options?", Options: []string{"a", "b", "c"}},
		{Level: 1, Text: "Blank option?", Options: []string{"a", " ", "c", "d"}},
		{Level: 1, Text: "Index?", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 4},
		{Level: 0, Text: "Level?", Options: []string{"a", "b", "c", "d"}},
	}
	for i, q := range bad {
		if _, err := svc.Add(ctx, q); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestDeleteKeepsOrdersDense(t *testing.T) {
	ctx := context.Background()
	bank := memory.NewQuestionBank(sampleQuestions()...)
	svc := app.NewQuestionService(bank, discardLogger())

	if err := svc.Delete(ctx, "q1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	level, _ := bank.ListLevel(ctx, 1)
	if len(level) != 2 {
		t.Fatalf("expected 2 questions left, got %d", len(level))
	}
	second, err := svc.Get(ctx, 1, 1)
	if err != nil || second.ID != "q2" {
		t.Fatalf("expected q2 moved to order 1, got %+v err=%v", second, err)
	}
	third, err := svc.Get(ctx, 1, 2)
	if err != nil || third.ID != "q3" {
		t.Fatalf("expected q3 moved to order 2, got %+v err=%v", third, err)
	}
	other, _ := svc.Get(ctx, 2, 1)
	if other.ID != "q4" {
		t.Fatalf("expected other levels untouched, got %+v", other)
	}

	if err := svc.Delete(ctx, "missing"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateKeepsPosition(t *testing.T) {
	ctx := context.Background()
	svc := app.NewQuestionService(memory.NewQuestionBank(sampleQuestions()...), discardLogger())

	edit := newQuestion(4, "Reworded?")
	edit.ID = "q2"
	edit.Order = 9
	got, err := svc.Update(ctx, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Level != 1 || got.Order != 2 || got.Text != "Reworded?" {
		t.Fatalf("expected content change only, got %+v", got)
	}
}

func TestListSortedAndImport(t *testing.T) {
	ctx := context.Background()
	svc := app.NewQuestionService(memory.NewQuestionBank(), discardLogger())

	n, err := svc.Import(ctx, []domain.Question{
		newQuestion(2, "L2 first"),
		newQuestion(1, "L1 first"),
		newQuestion(2, "L2 second"),
	})
	if err != nil || n != 3 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"L1 first", "L2 first", "L2 second"}
	for i, text := range want {
		if list[i].Text != text {
			t.Fatalf("position %d: expected %q, got %q", i, text, list[i].Text)
		}
	}
	if list[2].Order != 2 {
		t.Fatalf("expected imported order 2, got %d", list[2].Order)
	}
}

func newQuestion(level int, text string) domain.Question {
	return domain.Question{Level: level, Text: text, Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0}
}
