package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/airylvat/quizpoll-bot/db"
)

type memStore struct {
	board db.Leaderboard
	rows  []db.ResultRow

	commitErr error
	// partialErr makes Commit keep the rows but drop the leaderboard.
	partialErr error
	loadErr    error
	commits    int
}

func newMemStore() *memStore {
	return &memStore{board: db.Leaderboard{}}
}

func (m *memStore) LoadLeaderboard(context.Context) (db.Leaderboard, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.board.Clone(), nil
}

func (m *memStore) SaveLeaderboard(_ context.Context, board db.Leaderboard) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.board = board.Clone()
	return nil
}

func (m *memStore) LoadResultRows(context.Context) ([]db.ResultRow, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]db.ResultRow(nil), m.rows...), nil
}

func (m *memStore) SaveResultRows(_ context.Context, rows []db.ResultRow) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.rows = append([]db.ResultRow(nil), rows...)
	return nil
}

func (m *memStore) Commit(_ context.Context, board db.Leaderboard, rows []db.ResultRow) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.rows = append([]db.ResultRow(nil), rows...)
	if m.partialErr != nil {
		return m.partialErr
	}
	m.commits++
	m.board = board.Clone()
	return nil
}

func (m *memStore) Close() error { return nil }

type sentMessage struct {
	chat string
	text string
}

// fakeTransport records messages and hands out sequential poll ids.
type fakeTransport struct {
	messages []sentMessage
	polls    []PollRequest
	pollErr  error
}

func (f *fakeTransport) SendMessage(_ context.Context, chat, text string) error {
	f.messages = append(f.messages, sentMessage{chat: chat, text: text})
	return nil
}

func (f *fakeTransport) CreatePoll(_ context.Context, req PollRequest) (string, error) {
	if f.pollErr != nil {
		return "", f.pollErr
	}
	f.polls = append(f.polls, req)
	return fmt.Sprintf("poll-%d", len(f.polls)), nil
}

func (f *fakeTransport) last() string {
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].text
}

var errDiskFull = errors.New("disk full")
