package bot

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/airylvat/quizpoll-bot/quiz"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Token             string
	QuizChannelID     string
	AllowedChannels   []string
	Prefix            string
	Storage           db.Options
	VotePolicy        quiz.VotePolicy
	DraftIdleTimeout  time.Duration
	PollDurationHours int
	HTTPAddr          string
	LogLevel          string
}

// ReadConfig loads .env when present, then reads everything from the
// environment.
func ReadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("COMMAND_PREFIX", "!")
	v.SetDefault("STORAGE_BACKEND", db.BackendSQLite)
	v.SetDefault("DATABASE_PATH", "./quiz.db")
	v.SetDefault("WINS_FILE", "wins.json")
	v.SetDefault("RESULTS_FILE", "quiz_results.csv")
	v.SetDefault("DYNAMO_LEADERBOARD_TABLE", "QuizLeaderboard")
	v.SetDefault("DYNAMO_RESULTS_TABLE", "QuizResults")
	v.SetDefault("POLL_DURATION_HOURS", 24)
	v.SetDefault("DRAFT_IDLE_TIMEOUT", "0s")
	v.SetDefault("LOG_LEVEL", "info")

	policy, err := quiz.ParseVotePolicy(v.GetString("VOTE_POLICY"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Token:           v.GetString("DISCORD_TOKEN"),
		QuizChannelID:   v.GetString("QUIZ_CHANNEL_ID"),
		AllowedChannels: splitList(v.GetString("ALLOWED_CHANNELS")),
		Prefix:          v.GetString("COMMAND_PREFIX"),
		Storage: db.Options{
			Backend:          v.GetString("STORAGE_BACKEND"),
			DatabasePath:     v.GetString("DATABASE_PATH"),
			DatabaseURL:      v.GetString("DATABASE_URL"),
			WinsFile:         v.GetString("WINS_FILE"),
			ResultsFile:      v.GetString("RESULTS_FILE"),
			LeaderboardTable: v.GetString("DYNAMO_LEADERBOARD_TABLE"),
			ResultsTable:     v.GetString("DYNAMO_RESULTS_TABLE"),
		},
		VotePolicy:        policy,
		DraftIdleTimeout:  v.GetDuration("DRAFT_IDLE_TIMEOUT"),
		PollDurationHours: v.GetInt("POLL_DURATION_HOURS"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}

	if cfg.Token == "" {
		return nil, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.QuizChannelID == "" {
		return nil, errors.New("QUIZ_CHANNEL_ID is required")
	}
	if cfg.Storage.Backend == db.BackendPostgres && cfg.Storage.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres backend")
	}
	if cfg.PollDurationHours < 1 {
		return nil, errors.New("POLL_DURATION_HOURS must be at least 1")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
