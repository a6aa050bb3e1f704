package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	batchWriteLimit    = 25
	maxBatchAttempts   = 5
	unprocessedBackoff = 50 * time.Millisecond
)

var ErrUnprocessedItems = errors.New("dynamodb left items unprocessed")

// DynamoAPI is the part of the DynamoDB client the store needs.
type DynamoAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type leaderboardItem struct {
	Participant string `dynamodbav:"PK"`
	Wins        int    `dynamodbav:"Wins"`
}

type resultItem struct {
	Position int      `dynamodbav:"PK"`
	Batch    string   `dynamodbav:"Batch"`
	Question string   `dynamodbav:"Question"`
	Option   string   `dynamodbav:"Option"`
	Voters   []string `dynamodbav:"Voters"`
	Correct  bool     `dynamodbav:"IsCorrect"`
}

// DynamoStore keeps each leaderboard entry and ledger row as an item.
// DynamoDB batch writes are not transactional, so Commit writes the ledger
// first and a failed leaderboard write can then be repaired with a rebuild.
// Both tables are overwritten in place and never emptied first.
type DynamoStore struct {
	Client           DynamoAPI
	LeaderboardTable string
	ResultsTable     string
}

func NewDynamoStore(client DynamoAPI, leaderboardTable, resultsTable string) *DynamoStore {
	return &DynamoStore{Client: client, LeaderboardTable: leaderboardTable, ResultsTable: resultsTable}
}

func (s *DynamoStore) Close() error { return nil }

func (s *DynamoStore) LoadLeaderboard(ctx context.Context) (Leaderboard, error) {
	items, err := s.scanAll(ctx, s.LeaderboardTable, nil)
	if err != nil {
		return nil, err
	}

	var entries []leaderboardItem
	if err := attributevalue.UnmarshalListOfMaps(items, &entries); err != nil {
		logging.Log.Errorf("DYNAMO: failed to unmarshal leaderboard: %v", err)
		return nil, err
	}
	board := make(Leaderboard, len(entries))
	for _, e := range entries {
		board[e.Participant] = e.Wins
	}
	return board, nil
}

func (s *DynamoStore) LoadResultRows(ctx context.Context) ([]ResultRow, error) {
	items, err := s.scanAll(ctx, s.ResultsTable, nil)
	if err != nil {
		return nil, err
	}

	var stored []resultItem
	if err := attributevalue.UnmarshalListOfMaps(items, &stored); err != nil {
		logging.Log.Errorf("DYNAMO: failed to unmarshal results: %v", err)
		return nil, err
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Position < stored[j].Position })

	rows := make([]ResultRow, 0, len(stored))
	for _, it := range stored {
		rows = append(rows, ResultRow{
			Batch:    it.Batch,
			Question: it.Question,
			Option:   it.Option,
			Voters:   it.Voters,
			Correct:  it.Correct,
		})
	}
	return rows, nil
}

func (s *DynamoStore) SaveLeaderboard(ctx context.Context, board Leaderboard) error {
	existing, err := s.scanAll(ctx, s.LeaderboardTable, aws.String("PK"))
	if err != nil {
		return err
	}

	var items []map[string]types.AttributeValue
	for participant, wins := range board {
		item, err := attributevalue.MarshalMap(leaderboardItem{Participant: participant, Wins: wins})
		if err != nil {
			logging.Log.Errorf("DYNAMO: failed to marshal leaderboard entry: %v", err)
			return err
		}
		items = append(items, item)
	}
	if err := s.putAll(ctx, s.LeaderboardTable, items); err != nil {
		return err
	}

	var stale []map[string]types.AttributeValue
	for _, item := range existing {
		var key leaderboardItem
		if err := attributevalue.UnmarshalMap(item, &key); err != nil {
			return err
		}
		if _, ok := board[key.Participant]; !ok {
			stale = append(stale, item)
		}
	}
	return s.deleteKeys(ctx, s.LeaderboardTable, stale)
}

// SaveResultRows overwrites the ledger in place: rows are keyed by position,
// so the new rows are put first and only positions past the end are deleted
// afterwards. A failed put leaves every earlier row readable.
func (s *DynamoStore) SaveResultRows(ctx context.Context, rows []ResultRow) error {
	existing, err := s.scanAll(ctx, s.ResultsTable, aws.String("PK"))
	if err != nil {
		return err
	}

	items := make([]map[string]types.AttributeValue, 0, len(rows))
	for i, r := range rows {
		item, err := attributevalue.MarshalMap(resultItem{
			Position: i,
			Batch:    r.Batch,
			Question: r.Question,
			Option:   r.Option,
			Voters:   r.Voters,
			Correct:  r.Correct,
		})
		if err != nil {
			logging.Log.Errorf("DYNAMO: failed to marshal result row: %v", err)
			return err
		}
		items = append(items, item)
	}
	if err := s.putAll(ctx, s.ResultsTable, items); err != nil {
		return err
	}

	var stale []map[string]types.AttributeValue
	for _, item := range existing {
		var key struct {
			Position int `dynamodbav:"PK"`
		}
		if err := attributevalue.UnmarshalMap(item, &key); err != nil {
			return err
		}
		if key.Position >= len(rows) {
			stale = append(stale, item)
		}
	}
	return s.deleteKeys(ctx, s.ResultsTable, stale)
}

func (s *DynamoStore) Commit(ctx context.Context, board Leaderboard, rows []ResultRow) error {
	if err := s.SaveResultRows(ctx, rows); err != nil {
		return err
	}
	return s.SaveLeaderboard(ctx, board)
}

func (s *DynamoStore) scanAll(ctx context.Context, table string, projection *string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		out, err := s.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(table),
			ExclusiveStartKey:    lastEvaluatedKey,
			ProjectionExpression: projection,
		})
		if err != nil {
			logging.Log.Errorf("DYNAMO: scan of %s failed: %v", table, err)
			return nil, err
		}
		items = append(items, out.Items...)

		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		lastEvaluatedKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) deleteKeys(ctx context.Context, table string, items []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{"PK": item["PK"]},
			},
		})
	}
	return s.batchWrite(ctx, table, requests)
}

func (s *DynamoStore) putAll(ctx context.Context, table string, items []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	return s.batchWrite(ctx, table, requests)
}

func (s *DynamoStore) batchWrite(ctx context.Context, table string, requests []types.WriteRequest) error {
	for i := 0; i < len(requests); i += batchWriteLimit {
		end := min(i+batchWriteLimit, len(requests))
		if err := s.writeBatch(ctx, table, requests[i:end]); err != nil {
			return err
		}
		logging.Log.Debugf("DYNAMO: wrote batch of %d items to %s", end-i, table)
	}
	return nil
}

// writeBatch sends one batch and resends whatever DynamoDB reports as
// unprocessed, up to maxBatchAttempts times.
func (s *DynamoStore) writeBatch(ctx context.Context, table string, batch []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{table: batch}
	for attempt := 1; ; attempt++ {
		out, err := s.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			logging.Log.Errorf("DYNAMO: batch write to %s failed: %v", table, err)
			return err
		}
		if out == nil || len(out.UnprocessedItems[table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
		if attempt == maxBatchAttempts {
			logging.Log.Errorf("DYNAMO: %d items to %s still unprocessed after %d attempts", len(pending[table]), table, attempt)
			return fmt.Errorf("%w: %d items to %s", ErrUnprocessedItems, len(pending[table]), table)
		}
		logging.Log.Warnf("DYNAMO: retrying %d unprocessed items to %s", len(pending[table]), table)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * unprocessedBackoff):
		}
	}
}
