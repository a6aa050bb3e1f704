package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

type LeaderboardStore interface {
	LoadLeaderboard(ctx context.Context) (Leaderboard, error)
	SaveLeaderboard(ctx context.Context, board Leaderboard) error
}

// ResultsLedger has full-rewrite semantics: SaveResultRows replaces every stored row.
type ResultsLedger interface {
	LoadResultRows(ctx context.Context) ([]ResultRow, error)
	SaveResultRows(ctx context.Context, rows []ResultRow) error
}

// Store persists both the leaderboard and the ledger. Commit writes both as
// one unit where the backend allows it.
type Store interface {
	LeaderboardStore
	ResultsLedger
	Commit(ctx context.Context, board Leaderboard, rows []ResultRow) error
	Close() error
}

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFiles    = "files"
	BackendDynamo   = "dynamodb"
)

type Options struct {
	Backend          string
	DatabasePath     string
	DatabaseURL      string
	WinsFile         string
	ResultsFile      string
	LeaderboardTable string
	ResultsTable     string
}

// Open builds the store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendSQLite:
		return NewSQLStore(ctx, DriverSQLite, opts.DatabasePath)
	case BackendPostgres:
		return NewSQLStore(ctx, DriverPostgres, opts.DatabaseURL)
	case BackendFiles:
		return NewFileStore(opts.WinsFile, opts.ResultsFile), nil
	case BackendDynamo:
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewDynamoStore(dynamodb.NewFromConfig(cfg), opts.LeaderboardTable, opts.ResultsTable), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
