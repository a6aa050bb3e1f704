package quiz

import (
	"sort"

	"github.com/airylvat/quizpoll-bot/db"
)

// Entry is one leaderboard line.
type Entry struct {
	Rank        int    `json:"rank"`
	Participant string `json:"participant"`
	Wins        int    `json:"wins"`
}

// Standings is the answer to a winners query. Tied is sorted and stable
// across calls; Winner is drawn from it at random.
type Standings struct {
	Entries []Entry  `json:"leaderboard"`
	MaxWins int      `json:"max_wins"`
	Tied    []string `json:"tied"`
	Winner  string   `json:"winner"`
}

// Ranked orders the board by wins, then identity. Equal wins share a rank.
func Ranked(board db.Leaderboard) []Entry {
	entries := make([]Entry, 0, len(board))
	for p, w := range board {
		entries = append(entries, Entry{Participant: p, Wins: w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Wins != entries[j].Wins {
			return entries[i].Wins > entries[j].Wins
		}
		return entries[i].Participant < entries[j].Participant
	})
	for i := range entries {
		if i > 0 && entries[i].Wins == entries[i-1].Wins {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}

// TopWinners returns the full board and everyone at the maximum win count.
// pick(n) must return a value in [0, n) and chooses the reported winner.
func TopWinners(board db.Leaderboard, pick func(n int) int) (Standings, error) {
	if len(board) == 0 {
		return Standings{}, ErrNoData
	}

	entries := Ranked(board)
	maxWins := entries[0].Wins
	var tied []string
	for _, e := range entries {
		if e.Wins != maxWins {
			break
		}
		tied = append(tied, e.Participant)
	}

	winner := tied[0]
	if len(tied) > 1 {
		winner = tied[pick(len(tied))]
	}
	return Standings{Entries: entries, MaxWins: maxWins, Tied: tied, Winner: winner}, nil
}
