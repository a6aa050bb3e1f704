package quiz

import (
	"testing"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopWinnersEmpty(t *testing.T) {
	_, err := TopWinners(db.Leaderboard{}, func(int) int { return 0 })
	assert.ErrorIs(t, err, ErrNoData)
}

func TestTopWinnersSingleLeader(t *testing.T) {
	s, err := TopWinners(db.Leaderboard{"alice": 3, "bob": 1}, func(int) int { panic("no tie to break") })
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Winner)
	assert.Equal(t, []string{"alice"}, s.Tied)
	assert.Equal(t, 3, s.MaxWins)
}

func TestTopWinnersTieIsStable(t *testing.T) {
	board := db.Leaderboard{"carol": 2, "alice": 2, "bob": 1}

	first, err := TopWinners(board, func(int) int { return 0 })
	require.NoError(t, err)
	second, err := TopWinners(board, func(n int) int { return n - 1 })
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, []string{"alice", "carol"}, first.Tied)
	assert.Equal(t, first.Tied, second.Tied)
	assert.Equal(t, "alice", first.Winner)
	assert.Equal(t, "carol", second.Winner)
}

func TestRankedSharesRanks(t *testing.T) {
	entries := Ranked(db.Leaderboard{"a": 2, "b": 2, "c": 1})
	assert.Equal(t, []Entry{
		{Rank: 1, Participant: "a", Wins: 2},
		{Rank: 1, Participant: "b", Wins: 2},
		{Rank: 3, Participant: "c", Wins: 1},
	}, entries)
}
