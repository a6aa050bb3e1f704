package db

import "strings"

// ResultRow is one option of a finalized poll as recorded in the results ledger.
type ResultRow struct {
	Batch    string   `json:"batch,omitempty"`
	Question string   `json:"question"`
	Option   string   `json:"option"`
	Voters   []string `json:"voters"`
	Correct  bool     `json:"is_correct"`
}

// Leaderboard maps a participant identity to a win count.
type Leaderboard map[string]int

func (l Leaderboard) Clone() Leaderboard {
	out := make(Leaderboard, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

const voterSeparator = ", "

// JoinVoters renders voters the way the ledger stores them.
func JoinVoters(voters []string) string {
	return strings.Join(voters, voterSeparator)
}

func SplitVoters(s string) []string {
	var voters []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			voters = append(voters, v)
		}
	}
	return voters
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
