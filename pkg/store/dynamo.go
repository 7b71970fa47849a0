package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

// batchWriteMax is the item ceiling of one BatchWriteItem call.
const batchWriteMax = 25

// DynamoAPI is the subset of the DynamoDB client used here. Satisfied by
// *dynamodb.Client.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type dynamoStore struct {
	log   logrus.FieldLogger
	api   DynamoAPI
	table string
}

var _ Store = (*dynamoStore)(nil)

func newDynamoStore(log logrus.FieldLogger, cfg *Config, api DynamoAPI) *dynamoStore {
	table := cfg.DynamoDB.TableName
	if table == "" {
		table = DefaultTableName
	}

	return &dynamoStore{
		log:   log.WithField("component", "store"),
		api:   api,
		table: table,
	}
}

// Start is a no-op: the table and its indexes are provisioned by the
// infrastructure stack.
func (s *dynamoStore) Start(_ context.Context) error {
	s.log.WithField("table", s.table).Info("Using DynamoDB storage")

	return nil
}

func (s *dynamoStore) Stop() error {
	return nil
}

func (s *dynamoStore) CreateRun(ctx context.Context, run *benchmark.Run) error {
	item, err := attributevalue.MarshalMap(runItemFromDomain(run))
	if err != nil {
		return fmt.Errorf("marshaling run record: %w", err)
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}

	return nil
}

func (s *dynamoStore) FinalizeRun(ctx context.Context, runID string, status benchmark.RunStatus, endedAt int64, failedInvocations int, errorSummary string) error {
	update := "SET #status = :status, endTime = :end, failedInvocations = :failed"
	names := map[string]string{"#status": "status"}
	values := map[string]ddbtypes.AttributeValue{
		":status": &ddbtypes.AttributeValueMemberS{Value: string(status)},
		":end":    &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(endedAt, 10)},
		":failed": &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(failedInvocations)},
	}

	if errorSummary != "" {
		update += ", errorSummary = :error"
		values[":error"] = &ddbtypes.AttributeValueMemberS{Value: errorSummary}
	}

	if _, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       runKeyAttributes(runID),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}); err != nil {
		return fmt.Errorf("finalizing run %s: %w", runID, err)
	}

	return nil
}

func (s *dynamoStore) GetRun(ctx context.Context, runID string) (*benchmark.Run, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       runKeyAttributes(runID),
	})
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}

	if len(out.Item) == 0 {
		return nil, ErrRunNotFound
	}

	var item runItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", runID, err)
	}

	return item.toDomain(), nil
}

func (s *dynamoStore) ListRuns(ctx context.Context, limit int) ([]benchmark.Run, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("itemType = :t"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":t": &ddbtypes.AttributeValueMemberS{Value: ItemTypeRun},
		},
	}

	var items []runItem

	for {
		out, err := s.api.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scanning runs: %w", err)
		}

		var page []runItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling runs: %w", err)
		}

		items = append(items, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}

		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(items, func(i, j int) bool { return items[i].StartTime > items[j].StartTime })

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	runs := make([]benchmark.Run, 0, len(items))
	for i := range items {
		runs = append(runs, *items[i].toDomain())
	}

	return runs, nil
}

func (s *dynamoStore) PutResult(ctx context.Context, result *benchmark.Result) error {
	item, err := attributevalue.MarshalMap(resultItemFromDomain(result))
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("writing result %s/%s: %w", result.ConfigID, result.InvocationType, err)
	}

	return nil
}

func (s *dynamoStore) ListGroupResults(ctx context.Context, runID, configID string, invType benchmark.InvocationType) ([]benchmark.Result, error) {
	pk, _ := ResultKey(runID, configID, invType, 0)

	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: GroupSKPrefix(invType)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s %s results: %w", configID, invType, err)
	}

	results, err := resultsFromItems(items)
	if err != nil {
		return nil, err
	}

	// Sort keys order lexicographically, which misorders sequences past 9.
	sort.Slice(results, func(i, j int) bool { return results[i].Sequence < results[j].Sequence })

	return results, nil
}

func (s *dynamoStore) ListRunResults(ctx context.Context, runID string) ([]benchmark.Result, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(runTimestampIndex),
		KeyConditionExpression: aws.String("testRunId = :rid"),
		FilterExpression:       aws.String("itemType = :t"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":rid": &ddbtypes.AttributeValueMemberS{Value: runID},
			":t":   &ddbtypes.AttributeValueMemberS{Value: ItemTypeResult},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying results of run %s: %w", runID, err)
	}

	return resultsFromItems(items)
}

func (s *dynamoStore) ListConfigResults(ctx context.Context, configID string, limit int) ([]benchmark.Result, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(configTimestampIndex),
		KeyConditionExpression: aws.String("configId = :cid"),
		FilterExpression:       aws.String("itemType = :t"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":cid": &ddbtypes.AttributeValueMemberS{Value: configID},
			":t":   &ddbtypes.AttributeValueMemberS{Value: ItemTypeResult},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var results []benchmark.Result

	for {
		out, err := s.api.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("querying results of %s: %w", configID, err)
		}

		page, err := resultsFromItems(out.Items)
		if err != nil {
			return nil, err
		}

		results = append(results, page...)

		if limit > 0 && len(results) >= limit {
			return results[:limit], nil
		}

		if len(out.LastEvaluatedKey) == 0 {
			return results, nil
		}

		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *dynamoStore) PutAggregate(ctx context.Context, agg *benchmark.Aggregate) error {
	item, err := attributevalue.MarshalMap(aggregateItemFromDomain(agg))
	if err != nil {
		return fmt.Errorf("marshaling aggregate: %w", err)
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("writing aggregate %s/%s: %w", agg.ConfigID, agg.InvocationType, err)
	}

	return nil
}

func (s *dynamoStore) ListAggregates(ctx context.Context, runID string) ([]benchmark.Aggregate, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: RunKey(runID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: aggregateSKPrefix},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying aggregates of run %s: %w", runID, err)
	}

	var records []aggregateItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling aggregates: %w", err)
	}

	aggs := make([]benchmark.Aggregate, 0, len(records))
	for i := range records {
		aggs = append(aggs, *records[i].toDomain())
	}

	return aggs, nil
}

func (s *dynamoStore) Purge(ctx context.Context) (int, error) {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("pk, sk"),
	}

	deleted := 0

	for {
		out, err := s.api.Scan(ctx, input)
		if err != nil {
			return deleted, fmt.Errorf("scanning table for purge: %w", err)
		}

		n, err := s.deleteItems(ctx, out.Items)
		deleted += n

		if err != nil {
			return deleted, err
		}

		if len(out.LastEvaluatedKey) == 0 {
			return deleted, nil
		}

		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// deleteItems removes scanned keys in write batches, retrying whatever
// the service leaves unprocessed.
func (s *dynamoStore) deleteItems(ctx context.Context, items []map[string]ddbtypes.AttributeValue) (int, error) {
	deleted := 0

	for start := 0; start < len(items); start += batchWriteMax {
		end := min(start+batchWriteMax, len(items))

		batch := make([]ddbtypes.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			batch = append(batch, ddbtypes.WriteRequest{
				DeleteRequest: &ddbtypes.DeleteRequest{Key: item},
			})
		}

		requests := map[string][]ddbtypes.WriteRequest{s.table: batch}

		for len(requests[s.table]) > 0 {
			out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: requests,
			})
			if err != nil {
				return deleted, fmt.Errorf("deleting batch: %w", err)
			}

			deleted += len(requests[s.table]) - len(out.UnprocessedItems[s.table])
			requests = out.UnprocessedItems
		}
	}

	return deleted, nil
}

func (s *dynamoStore) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]ddbtypes.AttributeValue, error) {
	var items []map[string]ddbtypes.AttributeValue

	for {
		out, err := s.api.Query(ctx, input)
		if err != nil {
			return nil, err
		}

		items = append(items, out.Items...)

		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}

		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func runKeyAttributes(runID string) map[string]ddbtypes.AttributeValue {
	key := RunKey(runID)

	return map[string]ddbtypes.AttributeValue{
		"pk": &ddbtypes.AttributeValueMemberS{Value: key},
		"sk": &ddbtypes.AttributeValueMemberS{Value: key},
	}
}

func resultsFromItems(items []map[string]ddbtypes.AttributeValue) ([]benchmark.Result, error) {
	var records []resultItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling results: %w", err)
	}

	results := make([]benchmark.Result, 0, len(records))
	for i := range records {
		results = append(results, *records[i].toDomain())
	}

	return results, nil
}
