package quiz

import (
	"context"
	"fmt"
	"testing"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, policy VotePolicy) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	e := NewEngine(store, policy)
	var n int
	e.batchID = func() string {
		n++
		return fmt.Sprintf("batch-%d", n)
	}
	require.NoError(t, e.Load(context.Background()))
	return e, store
}

func TestEngineFinalizeScenario(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	ctx := context.Background()

	require.NoError(t, e.OnPollDefined("p1", "2+2?", []string{"3", "4", "5"}, 1))
	require.NoError(t, e.OnVote("p1", "alice", 1))
	require.NoError(t, e.OnVote("p1", "bob", 0))

	p, rows, err := e.Finalize(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, []db.ResultRow{
		{Batch: "batch-1", Question: "2+2?", Option: "3", Voters: []string{"bob"}},
		{Batch: "batch-1", Question: "2+2?", Option: "4", Voters: []string{"alice"}, Correct: true},
		{Batch: "batch-1", Question: "2+2?", Option: "5"},
	}, rows)
	assert.Equal(t, db.Leaderboard{"alice": 1}, store.board)
	assert.Len(t, store.rows, 3)
}

func TestEngineFinalizeAppendsToLedger(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	ctx := context.Background()

	require.NoError(t, e.OnPollDefined("p1", "Q1", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("p1", "alice", 0))
	_, _, err := e.Finalize(ctx, "")
	require.NoError(t, err)

	require.NoError(t, e.OnPollDefined("p2", "Q2", []string{"a", "b"}, 1))
	require.NoError(t, e.OnVote("p2", "alice", 1))
	require.NoError(t, e.OnVote("p2", "bob", 1))
	_, _, err = e.Finalize(ctx, "")
	require.NoError(t, err)

	assert.Len(t, store.rows, 4)
	assert.Equal(t, db.Leaderboard{"alice": 2, "bob": 1}, store.board)
	assert.Equal(t, store.board, LeaderboardFromLedger(store.rows))
}

func TestEngineFinalizeTargetsMostRecentlyDefined(t *testing.T) {
	e, _ := newTestEngine(t, LastVoteWins)

	require.NoError(t, e.OnPollDefined("old", "Old", []string{"a", "b"}, 0))
	require.NoError(t, e.OnPollDefined("new", "New", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("old", "alice", 0))

	p, _, err := e.Finalize(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "new", p.ID)

	p, _, err = e.Finalize(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "old", p.ID)
}

func TestEngineFinalizeNotFound(t *testing.T) {
	e, _ := newTestEngine(t, LastVoteWins)

	_, _, err := e.Finalize(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoPoll)
	_, _, err = e.Finalize(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoPoll)
}

func TestEngineFinalizeOnce(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	require.NoError(t, e.OnPollDefined("p1", "Q", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("p1", "alice", 0))

	_, _, err := e.Finalize(context.Background(), "")
	require.NoError(t, err)
	_, _, err = e.Finalize(context.Background(), "")
	assert.ErrorIs(t, err, ErrPollFinalized)
	assert.Equal(t, 1, store.commits)
	assert.Equal(t, db.Leaderboard{"alice": 1}, store.board)

	assert.ErrorIs(t, e.OnVote("p1", "bob", 0), ErrPollFinalized)
}

func TestEngineFinalizePersistenceFailureChangesNothing(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	require.NoError(t, e.OnPollDefined("p1", "Q", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("p1", "alice", 0))

	store.commitErr = errDiskFull
	_, _, err := e.Finalize(context.Background(), "")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, e.Leaderboard())

	store.commitErr = nil
	_, _, err = e.Finalize(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, db.Leaderboard{"alice": 1}, e.Leaderboard())
}

func TestEngineFinalizeRetryAfterPartialCommit(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	ctx := context.Background()
	require.NoError(t, e.OnPollDefined("p1", "Q", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("p1", "alice", 0))

	// The ledger write lands but the leaderboard write fails.
	store.partialErr = errDiskFull
	_, _, err := e.Finalize(ctx, "")
	require.Error(t, err)
	require.Len(t, store.rows, 2)
	assert.Empty(t, store.board)

	store.partialErr = nil
	_, _, err = e.Finalize(ctx, "")
	require.NoError(t, err)
	assert.Len(t, store.rows, 2)
	assert.Equal(t, db.Leaderboard{"alice": 1}, store.board)
	assert.Equal(t, store.board, LeaderboardFromLedger(store.rows))
}

func TestEngineBoundsPendingPolls(t *testing.T) {
	e, _ := newTestEngine(t, LastVoteWins)

	for i := 0; i < 5000; i++ {
		require.NoError(t, e.OnVote(fmt.Sprintf("stray-%d", i), "alice", 0))
	}
	assert.Equal(t, maxPendingPolls, e.Pending())
	assert.Len(t, e.pendingOrder, maxPendingPolls)

	// The newest stray polls survive, the oldest were evicted.
	_, ok := e.pending["stray-4999"]
	assert.True(t, ok)
	_, ok = e.pending["stray-0"]
	assert.False(t, ok)

	require.NoError(t, e.OnPollDefined("stray-4999", "Q", []string{"a", "b"}, 0))
	assert.Equal(t, maxPendingPolls-1, e.Pending())
	assert.Len(t, e.pendingOrder, maxPendingPolls-1)
	p, ok := e.Latest()
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, p.Votes[0])
}

func TestEngineVotePolicies(t *testing.T) {
	cases := []struct {
		policy VotePolicy
		want   [][]string
	}{
		{LastVoteWins, [][]string{{"bob"}, {"alice"}}},
		{FirstVoteWins, [][]string{{"alice", "bob"}, {}}},
		{EveryVoteCounts, [][]string{{"alice", "bob"}, {"alice"}}},
	}
	for _, tc := range cases {
		t.Run(tc.policy.String(), func(t *testing.T) {
			e, _ := newTestEngine(t, tc.policy)
			require.NoError(t, e.OnPollDefined("p", "Q", []string{"a", "b"}, 1))
			require.NoError(t, e.OnVote("p", "alice", 0))
			require.NoError(t, e.OnVote("p", "bob", 0))
			require.NoError(t, e.OnVote("p", "alice", 1))
			assert.Equal(t, tc.want, e.polls["p"].Votes)
		})
	}
}

func TestEngineRetract(t *testing.T) {
	e, _ := newTestEngine(t, LastVoteWins)
	require.NoError(t, e.OnPollDefined("p", "Q", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("p", "alice", 0))
	require.NoError(t, e.OnRetract("p", "alice", 0))
	require.NoError(t, e.OnRetract("p", "nobody", 1))
	assert.Equal(t, [][]string{{}, {}}, e.polls["p"].Votes)
}

func TestEngineOutOfOrderVotesAreReplayed(t *testing.T) {
	e, _ := newTestEngine(t, LastVoteWins)
	require.NoError(t, e.OnVote("p", "alice", 1))
	require.NoError(t, e.OnVote("p", "bob", 0))
	require.NoError(t, e.OnRetract("p", "bob", 0))

	require.NoError(t, e.OnPollDefined("p", "Q", []string{"a", "b"}, 1))
	assert.Equal(t, [][]string{{}, {"alice"}}, e.polls["p"].Votes)
	assert.Empty(t, e.pending)
}

func TestEngineRejectsBadIndexes(t *testing.T) {
	e, _ := newTestEngine(t, LastVoteWins)
	assert.ErrorIs(t, e.OnPollDefined("p", "Q", []string{"a", "b"}, 2), ErrOptionOutOfRange)

	require.NoError(t, e.OnPollDefined("p", "Q", []string{"a", "b"}, 0))
	assert.ErrorIs(t, e.OnVote("p", "alice", 5), ErrOptionOutOfRange)
	assert.ErrorIs(t, e.OnVote("p", "alice", -1), ErrOptionOutOfRange)
}

func TestEngineResetThenProcess(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	ctx := context.Background()
	require.NoError(t, e.OnPollDefined("p1", "Q", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("p1", "alice", 0))
	_, _, err := e.Finalize(ctx, "")
	require.NoError(t, err)
	require.NoError(t, e.OnPollDefined("p2", "Q", []string{"a", "b"}, 0))
	require.NoError(t, e.OnVote("p3", "alice", 0))

	require.NoError(t, e.Reset(ctx))
	assert.Empty(t, store.board)
	assert.Empty(t, store.rows)
	assert.Empty(t, e.pending)

	_, _, err = e.Finalize(ctx, "p2")
	assert.ErrorIs(t, err, ErrNoPoll)
	_, _, err = e.Finalize(ctx, "")
	assert.ErrorIs(t, err, ErrNoPoll)
}

func TestEngineResetFailureKeepsState(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	require.NoError(t, e.OnPollDefined("p1", "Q", []string{"a", "b"}, 0))

	store.commitErr = errDiskFull
	assert.Error(t, e.Reset(context.Background()))
	_, ok := e.Latest()
	assert.True(t, ok)
}

func TestEngineRebuild(t *testing.T) {
	e, store := newTestEngine(t, LastVoteWins)
	store.rows = []db.ResultRow{
		{Question: "Q1", Option: "a", Voters: []string{"alice", "bob"}, Correct: true},
		{Question: "Q1", Option: "b", Voters: []string{"carol"}},
		{Question: "Q2", Option: "a", Voters: []string{"alice"}, Correct: true},
	}

	board, err := e.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.Leaderboard{"alice": 2, "bob": 1}, board)
	assert.Equal(t, board, store.board)
}

func TestParseVotePolicy(t *testing.T) {
	for in, want := range map[string]VotePolicy{
		"":                  LastVoteWins,
		"last-vote-wins":    LastVoteWins,
		"First-Vote-Wins":   FirstVoteWins,
		"every-vote-counts": EveryVoteCounts,
	} {
		got, err := ParseVotePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseVotePolicy("most-votes")
	assert.Error(t, err)
}
