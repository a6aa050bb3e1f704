package quiz

import (
	"fmt"
	"strings"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

func helpText(prefix string) string {
	lines := []string{
		"**Quiz Bot Help**",
		"Here are the available commands:",
		"- **" + prefix + "create_quiz**: Create a new quiz.",
		"- **" + prefix + "done** / **" + prefix + "cancel**: Finish the answer options, or abandon the quiz being created.",
		"- **" + prefix + "process [poll id]**: Score the latest quiz (or the given one).",
		"- **" + prefix + "winners**: Show the current leaderboard.",
		"- **" + prefix + "reset**: Reset all results and start a new round of quizzes.",
		"- **" + prefix + "rebuild**: Recompute the leaderboard from the results log.",
		"- **" + prefix + "status**: Show your quiz draft and open polls.",
	}
	return strings.Join(lines, "\n")
}

func resultsReport(question string, rows []db.ResultRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Quiz results: %s\n\n", question)
	for _, r := range rows {
		status := "❌"
		if r.Correct {
			status = "✅"
		}
		voters := db.JoinVoters(r.Voters)
		if voters == "" {
			voters = "No votes"
		}
		fmt.Fprintf(&b, "%s %s\n👥 Voted: %s\n\n", status, r.Option, voters)
	}
	return strings.TrimRight(b.String(), "\n")
}

func leaderboardReport(entries []Entry) string {
	var b strings.Builder
	b.WriteString("🏆 Current leaderboard:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s. @%s: %s\n", humanize.Ordinal(e.Rank), e.Participant, english.Plural(e.Wins, "win", ""))
	}
	return strings.TrimRight(b.String(), "\n")
}

func winnerReport(s Standings) string {
	msg := fmt.Sprintf("🎉 Winner: %s with %s!", s.Winner, english.Plural(s.MaxWins, "win", ""))
	if len(s.Tied) > 1 {
		msg += fmt.Sprintf("\nTied at the top: %s", strings.Join(s.Tied, ", "))
	}
	return msg
}
