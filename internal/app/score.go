package app

import (
	"sort"

	"quiz-room-service/internal/domain"
)

const (
	// BasePoints is awarded for any correct answer before the time bonus.
	BasePoints = 100
	// MaxQuestionSeconds bounds the time bonus.
	MaxQuestionSeconds = 60
)

// ComputeDelta returns the points a submission earns. secondsRemaining is
// clamped to [0, MaxQuestionSeconds].
func ComputeDelta(correct bool, secondsRemaining int, doubled bool) int {
	if !correct {
		return 0
	}
	if secondsRemaining < 0 {
		secondsRemaining = 0
	}
	if secondsRemaining > MaxQuestionSeconds {
		secondsRemaining = MaxQuestionSeconds
	}
	points := BasePoints + secondsRemaining
	if doubled {
		points *= 2
	}
	return points
}

// Rank sorts entries by score descending and assigns competition ranks:
// tied scores share a rank and the next distinct score takes its 1-based
// position. Equal scores keep their input order.
func Rank(entries []domain.ScoreEntry) []domain.Standing {
	sorted := make([]domain.ScoreEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	standings := make([]domain.Standing, len(sorted))
	for i, e := range sorted {
		rank := i + 1
		if i > 0 && e.Score == sorted[i-1].Score {
			rank = standings[i-1].Rank
		}
		standings[i] = domain.Standing{Nickname: e.Nickname, Score: e.Score, Rank: rank}
	}
	return standings
}

// RankPlayers ranks the user-role players of a room; admins are not scored.
func RankPlayers(players []domain.Player) []domain.Standing {
	entries := make([]domain.ScoreEntry, 0, len(players))
	for _, p := range players {
		if p.Role != domain.RoleUser {
			continue
		}
		entries = append(entries, domain.ScoreEntry{Nickname: p.Nickname, Score: p.Score})
	}
	return Rank(entries)
}
