package db

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/airylvat/quizpoll-bot/logging"
)

var resultsHeader = []string{"Question", "Option", "Voters", "Is_Correct"}

// FileStore keeps the leaderboard as a flat JSON object and the ledger as a
// CSV file with the columns Question, Option, Voters, Is_Correct.
type FileStore struct {
	mu          sync.Mutex
	winsPath    string
	resultsPath string
}

func NewFileStore(winsPath, resultsPath string) *FileStore {
	if winsPath == "" {
		winsPath = "wins.json"
	}
	if resultsPath == "" {
		resultsPath = "quiz_results.csv"
	}
	return &FileStore{winsPath: winsPath, resultsPath: resultsPath}
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) LoadLeaderboard(_ context.Context) (Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.winsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Leaderboard{}, nil
	}
	if err != nil {
		logging.Log.Errorf("FILES: read %s failed: %v", s.winsPath, err)
		return nil, err
	}

	board := Leaderboard{}
	if len(data) == 0 {
		return board, nil
	}
	if err := json.Unmarshal(data, &board); err != nil {
		logging.Log.Errorf("FILES: decode %s failed: %v", s.winsPath, err)
		return nil, fmt.Errorf("decode %s: %w", s.winsPath, err)
	}
	return board, nil
}

func (s *FileStore) LoadResultRows(_ context.Context) ([]ResultRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.resultsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		logging.Log.Errorf("FILES: open %s failed: %v", s.resultsPath, err)
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.resultsPath, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var rows []ResultRow
	for _, rec := range records[1:] {
		if len(rec) != len(resultsHeader) {
			return nil, fmt.Errorf("decode %s: expected %d columns, got %d", s.resultsPath, len(resultsHeader), len(rec))
		}
		rows = append(rows, ResultRow{
			Question: rec[0],
			Option:   rec[1],
			Voters:   SplitVoters(rec[2]),
			Correct:  rec[3] == "Yes",
		})
	}
	return rows, nil
}

func (s *FileStore) SaveLeaderboard(_ context.Context, board Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := s.stageLeaderboard(board)
	if err != nil {
		return err
	}
	return os.Rename(tmp, s.winsPath)
}

func (s *FileStore) SaveResultRows(_ context.Context, rows []ResultRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := s.stageResults(rows)
	if err != nil {
		return err
	}
	return os.Rename(tmp, s.resultsPath)
}

// Commit stages both files before renaming either, so an encode or write
// failure leaves the previous files untouched. The ledger is renamed last:
// a failed Commit never leaves its rows in the ledger, and since the
// leaderboard is a full snapshot a retry rewrites it to the same value.
func (s *FileStore) Commit(_ context.Context, board Leaderboard, rows []ResultRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resultsTmp, err := s.stageResults(rows)
	if err != nil {
		return err
	}
	winsTmp, err := s.stageLeaderboard(board)
	if err != nil {
		_ = os.Remove(resultsTmp)
		return err
	}
	if err := os.Rename(winsTmp, s.winsPath); err != nil {
		_ = os.Remove(winsTmp)
		_ = os.Remove(resultsTmp)
		logging.Log.Errorf("FILES: replace %s failed: %v", s.winsPath, err)
		return err
	}
	if err := os.Rename(resultsTmp, s.resultsPath); err != nil {
		_ = os.Remove(resultsTmp)
		logging.Log.Errorf("FILES: replace %s failed: %v", s.resultsPath, err)
		return err
	}
	return nil
}

func (s *FileStore) stageLeaderboard(board Leaderboard) (string, error) {
	if board == nil {
		board = Leaderboard{}
	}
	data, err := json.MarshalIndent(board, "", "    ")
	if err != nil {
		return "", err
	}
	return writeTemp(s.winsPath, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

func (s *FileStore) stageResults(rows []ResultRow) (string, error) {
	return writeTemp(s.resultsPath, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(resultsHeader); err != nil {
			return err
		}
		for _, r := range rows {
			if err := w.Write([]string{r.Question, r.Option, JoinVoters(r.Voters), yesNo(r.Correct)}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

func writeTemp(target string, write func(f *os.File) error) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		logging.Log.Errorf("FILES: create temp for %s failed: %v", target, err)
		return "", err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
