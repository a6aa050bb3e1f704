package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/airylvat/quizpoll-bot/logging"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore keeps the leaderboard and ledger in two tables. The same queries
// run on sqlite and postgres; placeholders are rewritten per driver.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver == DriverSQLite && strings.TrimSpace(dsn) == "" {
		dsn = "./quiz.db"
	}
	logging.Log.Infof("SQL: opening %s database", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS leaderboard (
			participant TEXT PRIMARY KEY,
			wins INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			position INTEGER PRIMARY KEY,
			batch_id TEXT NOT NULL,
			question TEXT NOT NULL,
			option_text TEXT NOT NULL,
			voters TEXT NOT NULL,
			is_correct INTEGER NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) LoadLeaderboard(ctx context.Context) (Leaderboard, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT participant, wins FROM leaderboard")
	if err != nil {
		logging.Log.Errorf("SQL: leaderboard query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	board := make(Leaderboard)
	for rows.Next() {
		var participant string
		var wins int
		if err := rows.Scan(&participant, &wins); err != nil {
			return nil, err
		}
		board[participant] = wins
	}
	return board, rows.Err()
}

func (s *SQLStore) LoadResultRows(ctx context.Context) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT batch_id, question, option_text, voters, is_correct FROM results ORDER BY position")
	if err != nil {
		logging.Log.Errorf("SQL: results query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		var voters string
		var correct int
		if err := rows.Scan(&r.Batch, &r.Question, &r.Option, &voters, &correct); err != nil {
			return nil, err
		}
		r.Voters = SplitVoters(voters)
		r.Correct = correct != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveLeaderboard(ctx context.Context, board Leaderboard) error {
	return s.inTx(ctx, func(q queryer) error {
		return s.writeLeaderboard(ctx, q, board)
	})
}

func (s *SQLStore) SaveResultRows(ctx context.Context, rows []ResultRow) error {
	return s.inTx(ctx, func(q queryer) error {
		return s.writeResults(ctx, q, rows)
	})
}

// Commit rewrites both tables in a single transaction.
func (s *SQLStore) Commit(ctx context.Context, board Leaderboard, rows []ResultRow) error {
	return s.inTx(ctx, func(q queryer) error {
		if err := s.writeResults(ctx, q, rows); err != nil {
			return err
		}
		return s.writeLeaderboard(ctx, q, board)
	})
}

func (s *SQLStore) inTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logging.Log.Errorf("SQL: begin failed: %v", err)
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		logging.Log.Errorf("SQL: write failed, rolled back: %v", err)
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) writeLeaderboard(ctx context.Context, q queryer, board Leaderboard) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM leaderboard"); err != nil {
		return err
	}
	insert := s.rebind("INSERT INTO leaderboard (participant, wins) VALUES (?, ?)")
	for participant, wins := range board {
		if _, err := q.ExecContext(ctx, insert, participant, wins); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) writeResults(ctx context.Context, q queryer, rows []ResultRow) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM results"); err != nil {
		return err
	}
	insert := s.rebind(`INSERT INTO results (position, batch_id, question, option_text, voters, is_correct)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i, r := range rows {
		correct := 0
		if r.Correct {
			correct = 1
		}
		if _, err := q.ExecContext(ctx, insert, i, r.Batch, r.Question, r.Option, JoinVoters(r.Voters), correct); err != nil {
			return err
		}
	}
	return nil
}
