package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"quiz-room-service/internal/domain"
)

type gameResultRow struct {
	bun.BaseModel `bun:"table:game_results"`

	ID         int64             `bun:"id,pk,autoincrement"`
	RoomID     string            `bun:"room_id,notnull"`
	Code       string            `bun:"code,notnull"`
	Level      int               `bun:"level,notnull"`
	Standings  []domain.Standing `bun:"standings,type:jsonb,notnull"`
	FinishedAt time.Time         `bun:"finished_at,notnull"`
}

// ResultArchive stores final standings of finished rooms.
type ResultArchive struct {
	db *bun.DB
}

func NewResultArchive(db *bun.DB) *ResultArchive {
	return &ResultArchive{db: db}
}

func (a *ResultArchive) Record(ctx context.Context, result domain.GameResult) error {
	row := &gameResultRow{
		RoomID:     result.RoomID,
		Code:       result.Code,
		Level:      result.Level,
		Standings:  result.Standings,
		FinishedAt: result.FinishedAt,
	}
	if row.Standings == nil {
		row.Standings = []domain.Standing{}
	}
	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return domain.Transient("archive result", err)
	}
	return nil
}

// Recent returns the latest finished games, newest first.
func (a *ResultArchive) Recent(ctx context.Context, limit int) ([]domain.GameResult, error) {
	var rows []gameResultRow
	err := a.db.NewSelect().
		Model(&rows).
		OrderExpr("finished_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, domain.Transient("list results", err)
	}
	results := make([]domain.GameResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, domain.GameResult{
			RoomID:     r.RoomID,
			Code:       r.Code,
			Level:      r.Level,
			Standings:  r.Standings,
			FinishedAt: r.FinishedAt,
		})
	}
	return results, nil
}
