package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "wins.json"), filepath.Join(dir, "quiz_results.csv")), dir
}

func TestFileStoreMissingFilesAreEmpty(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	board, err := store.LoadLeaderboard(ctx)
	require.NoError(t, err)
	assert.Empty(t, board)

	rows, err := store.LoadResultRows(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFileStoreCommitWritesLayout(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Commit(ctx, Leaderboard{"alice": 1}, sampleRows()))

	csvData, err := os.ReadFile(filepath.Join(dir, "quiz_results.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"Question,Option,Voters,Is_Correct\n2+2?,3,bob,No\n2+2?,4,alice,Yes\n2+2?,5,,No\n",
		string(csvData))

	jsonData, err := os.ReadFile(filepath.Join(dir, "wins.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"alice": 1}`, string(jsonData))

	rows, err := store.LoadResultRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"alice"}, rows[1].Voters)
	assert.True(t, rows[1].Correct)
	assert.Nil(t, rows[2].Voters)
}

func TestFileStoreMultipleVotersRoundTrip(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	in := []ResultRow{{Question: "Capital, of France?", Option: "Paris", Voters: []string{"alice", "bob"}, Correct: true}}
	require.NoError(t, store.SaveResultRows(ctx, in))

	rows, err := store.LoadResultRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, rows)
}

func TestFileStoreLeaderboardReloadIsNoop(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wins.json"), []byte(`{"alice": 4, "bob": 2}`), 0o644))

	first, err := store.LoadLeaderboard(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveLeaderboard(ctx, first))
	second, err := store.LoadLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, Leaderboard{"alice": 4, "bob": 2}, second)
}

func TestFileStoreFailedCommitLeavesLedgerUntouched(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Commit(ctx, Leaderboard{"alice": 1}, sampleRows()[:1]))

	// A non-empty directory in place of wins.json makes its rename fail.
	winsPath := filepath.Join(dir, "wins.json")
	require.NoError(t, os.Remove(winsPath))
	require.NoError(t, os.MkdirAll(filepath.Join(winsPath, "locked"), 0o755))

	require.Error(t, store.Commit(ctx, Leaderboard{"alice": 2}, sampleRows()))

	rows, err := store.LoadResultRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreCorruptLeaderboard(t *testing.T) {
	store, dir := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wins.json"), []byte("{not json"), 0o644))

	_, err := store.LoadLeaderboard(context.Background())
	assert.Error(t, err)
}

func TestSplitVoters(t *testing.T) {
	assert.Nil(t, SplitVoters(""))
	assert.Equal(t, []string{"a", "b"}, SplitVoters("a, b"))
	assert.Equal(t, "a, b", JoinVoters([]string{"a", "b"}))
}
