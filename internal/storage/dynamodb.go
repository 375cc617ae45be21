package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// dynamodbAPI is the subset of the DynamoDB client the store uses
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBStore implements Store using AWS DynamoDB.
//
// Calls are keyed by ID. Turns, metrics and suggestions are keyed by
// CallID (hash) and ID (range) so a call's children come back with one Query.
type DynamoDBStore struct {
	client dynamodbAPI
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Local {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	if cfg.Local {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}
	store := newDynamoDBStore(client, cfg, logger)

	logger.Info().
		Bool("local", cfg.Local).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func newDynamoDBStore(api dynamodbAPI, cfg DynamoConfig, logger zerolog.Logger) *DynamoDBStore {
	return &DynamoDBStore{
		client: api,
		config: cfg,
		logger: logger,
	}
}

func (s *DynamoDBStore) Close() error { return nil }

// --- calls ---

func (s *DynamoDBStore) CreateCall(ctx context.Context, call types.Call) (types.Call, error) {
	call = prepareCall(call)
	if err := s.putNew(ctx, s.config.CallsTable, call); err != nil {
		return types.Call{}, fmt.Errorf("create call: %w", err)
	}
	return call, nil
}

func (s *DynamoDBStore) GetCall(ctx context.Context, id string) (types.Call, error) {
	var call types.Call
	if err := s.getItem(ctx, s.config.CallsTable, callKey(id), &call); err != nil {
		return types.Call{}, fmt.Errorf("get call: %w", err)
	}
	return call, nil
}

func (s *DynamoDBStore) UpdateCall(ctx context.Context, id string, update types.CallUpdate) (types.Call, error) {
	set := expression.Set(expression.Name("UpdatedAt"), expression.Value(now()))
	if update.EndTime != nil {
		set = set.Set(expression.Name("EndTime"), expression.Value(*update.EndTime))
	}
	if update.DurationSeconds != nil {
		set = set.Set(expression.Name("DurationSeconds"), expression.Value(*update.DurationSeconds))
	}
	if update.Outcome != nil {
		set = set.Set(expression.Name("Outcome"), expression.Value(*update.Outcome))
	}
	if update.OverallSentiment != nil {
		set = set.Set(expression.Name("OverallSentiment"), expression.Value(*update.OverallSentiment))
	}
	if update.Summary != nil {
		set = set.Set(expression.Name("Summary"), expression.Value(*update.Summary))
	}
	if update.RecordingURL != nil {
		set = set.Set(expression.Name("RecordingURL"), expression.Value(*update.RecordingURL))
	}

	var call types.Call
	if err := s.updateItem(ctx, s.config.CallsTable, callKey(id), set, &call); err != nil {
		return types.Call{}, fmt.Errorf("update call: %w", err)
	}
	return call, nil
}

// ListCalls scans the calls table and filters, sorts and limits in process.
// For production volumes a GSI on AgentID and StartTime would be more efficient.
func (s *DynamoDBStore) ListCalls(ctx context.Context, filters types.CallFilters, limit int) ([]types.Call, error) {
	var calls []types.Call
	var lastKey map[string]dbtypes.AttributeValue

	for {
		result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.config.CallsTable),
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan calls: %w", err)
		}

		var page []types.Call
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal calls: %w", err)
		}
		for _, c := range page {
			if filters.Match(c) {
				calls = append(calls, c)
			}
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	if calls == nil {
		calls = []types.Call{}
	}
	sortCallsByStartDesc(calls)
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

func (s *DynamoDBStore) DeleteCall(ctx context.Context, id string) error {
	if err := s.deleteItem(ctx, s.config.CallsTable, callKey(id)); err != nil {
		return fmt.Errorf("delete call: %w", err)
	}

	for _, table := range []string{s.config.TurnsTable, s.config.MetricsTable, s.config.SuggestionsTable} {
		if err := s.deleteChildren(ctx, table, id); err != nil {
			return fmt.Errorf("delete call children from %s: %w", table, err)
		}
	}
	return nil
}

// --- turns ---

func (s *DynamoDBStore) CreateTurn(ctx context.Context, turn types.ConversationalTurn) (types.ConversationalTurn, error) {
	turn = prepareTurn(turn)
	if err := s.requireCall(ctx, turn.CallID); err != nil {
		return types.ConversationalTurn{}, fmt.Errorf("create turn: %w", err)
	}

	// (CallID, TurnNumber) uniqueness is checked with a filtered query; the
	// pipeline serialises turn numbering per call so the window is not contended.
	filter := expression.Name("TurnNumber").Equal(expression.Value(turn.TurnNumber))
	items, err := s.queryChildren(ctx, s.config.TurnsTable, turn.CallID, &filter)
	if err != nil {
		return types.ConversationalTurn{}, fmt.Errorf("create turn: %w", err)
	}
	if len(items) > 0 {
		return types.ConversationalTurn{}, fmt.Errorf("create turn: %w", ErrConflict)
	}

	if err := s.putNew(ctx, s.config.TurnsTable, turn); err != nil {
		return types.ConversationalTurn{}, fmt.Errorf("create turn: %w", err)
	}
	return turn, nil
}

func (s *DynamoDBStore) GetTurn(ctx context.Context, id string) (types.ConversationalTurn, error) {
	var turn types.ConversationalTurn
	if err := s.scanByID(ctx, s.config.TurnsTable, id, &turn); err != nil {
		return types.ConversationalTurn{}, fmt.Errorf("get turn: %w", err)
	}
	return turn, nil
}

func (s *DynamoDBStore) ListTurns(ctx context.Context, callID string) ([]types.ConversationalTurn, error) {
	items, err := s.queryChildren(ctx, s.config.TurnsTable, callID, nil)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}

	turns := make([]types.ConversationalTurn, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turns: %w", err)
	}
	sortTurns(turns)
	return turns, nil
}

func (s *DynamoDBStore) DeleteTurn(ctx context.Context, id string) error {
	turn, err := s.GetTurn(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deleteItem(ctx, s.config.TurnsTable, childKey(turn.CallID, id)); err != nil {
		return fmt.Errorf("delete turn: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) MaxTurnNumber(ctx context.Context, callID string) (int, error) {
	turns, err := s.ListTurns(ctx, callID)
	if err != nil {
		return 0, err
	}
	if len(turns) == 0 {
		return 0, nil
	}
	return turns[len(turns)-1].TurnNumber, nil
}

// --- metrics ---

func (s *DynamoDBStore) CreateMetric(ctx context.Context, metric types.EmotionalMetric) (types.EmotionalMetric, error) {
	metric = prepareMetric(metric)
	if err := s.requireCall(ctx, metric.CallID); err != nil {
		return types.EmotionalMetric{}, fmt.Errorf("create metric: %w", err)
	}
	if err := s.putNew(ctx, s.config.MetricsTable, metric); err != nil {
		return types.EmotionalMetric{}, fmt.Errorf("create metric: %w", err)
	}
	return metric, nil
}

func (s *DynamoDBStore) GetMetric(ctx context.Context, id string) (types.EmotionalMetric, error) {
	var metric types.EmotionalMetric
	if err := s.scanByID(ctx, s.config.MetricsTable, id, &metric); err != nil {
		return types.EmotionalMetric{}, fmt.Errorf("get metric: %w", err)
	}
	return metric, nil
}

func (s *DynamoDBStore) ListMetrics(ctx context.Context, callID string) ([]types.EmotionalMetric, error) {
	items, err := s.queryChildren(ctx, s.config.MetricsTable, callID, nil)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	metrics := make([]types.EmotionalMetric, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	sortMetrics(metrics)
	return metrics, nil
}

func (s *DynamoDBStore) DeleteMetric(ctx context.Context, id string) error {
	metric, err := s.GetMetric(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deleteItem(ctx, s.config.MetricsTable, childKey(metric.CallID, id)); err != nil {
		return fmt.Errorf("delete metric: %w", err)
	}
	return nil
}

// --- suggestions ---

func (s *DynamoDBStore) CreateSuggestion(ctx context.Context, sg types.Suggestion) (types.Suggestion, error) {
	sg = prepareSuggestion(sg)
	if err := s.requireCall(ctx, sg.CallID); err != nil {
		return types.Suggestion{}, fmt.Errorf("create suggestion: %w", err)
	}
	if err := s.putNew(ctx, s.config.SuggestionsTable, sg); err != nil {
		return types.Suggestion{}, fmt.Errorf("create suggestion: %w", err)
	}
	return sg, nil
}

func (s *DynamoDBStore) GetSuggestion(ctx context.Context, id string) (types.Suggestion, error) {
	var sg types.Suggestion
	if err := s.scanByID(ctx, s.config.SuggestionsTable, id, &sg); err != nil {
		return types.Suggestion{}, fmt.Errorf("get suggestion: %w", err)
	}
	return sg, nil
}

func (s *DynamoDBStore) ListSuggestions(ctx context.Context, callID string) ([]types.Suggestion, error) {
	items, err := s.queryChildren(ctx, s.config.SuggestionsTable, callID, nil)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}

	out := make([]types.Suggestion, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
	}
	sortSuggestions(out)
	return out, nil
}

func (s *DynamoDBStore) UpdateSuggestion(ctx context.Context, id string, update types.SuggestionUpdate) (types.Suggestion, error) {
	current, err := s.GetSuggestion(ctx, id)
	if err != nil {
		return types.Suggestion{}, err
	}

	// SET with no clauses is rejected, so an empty update is a read
	if update.WasFollowed == nil && update.HistoricalSuccessRate == nil && update.SimilarCaseIDs == nil {
		return current, nil
	}

	var set expression.UpdateBuilder
	if update.WasFollowed != nil {
		set = set.Set(expression.Name("WasFollowed"), expression.Value(*update.WasFollowed))
	}
	if update.HistoricalSuccessRate != nil {
		set = set.Set(expression.Name("HistoricalSuccessRate"), expression.Value(*update.HistoricalSuccessRate))
	}
	if update.SimilarCaseIDs != nil {
		set = set.Set(expression.Name("SimilarCaseIDs"), expression.Value(update.SimilarCaseIDs))
	}

	var sg types.Suggestion
	if err := s.updateItem(ctx, s.config.SuggestionsTable, childKey(current.CallID, id), set, &sg); err != nil {
		return types.Suggestion{}, fmt.Errorf("update suggestion: %w", err)
	}
	return sg, nil
}

func (s *DynamoDBStore) DeleteSuggestion(ctx context.Context, id string) error {
	sg, err := s.GetSuggestion(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deleteItem(ctx, s.config.SuggestionsTable, childKey(sg.CallID, id)); err != nil {
		return fmt.Errorf("delete suggestion: %w", err)
	}
	return nil
}

// --- helpers ---

func callKey(id string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"ID": &dbtypes.AttributeValueMemberS{Value: id},
	}
}

func childKey(callID, id string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"CallID": &dbtypes.AttributeValueMemberS{Value: callID},
		"ID":     &dbtypes.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *dbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// putNew writes v unless an item with the same ID already exists
func (s *DynamoDBStore) putNew(ctx context.Context, table string, v interface{}) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("ID"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if isConditionFailed(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) getItem(ctx context.Context, table string, key map[string]dbtypes.AttributeValue, out interface{}) error {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) requireCall(ctx context.Context, callID string) error {
	var call types.Call
	return s.getItem(ctx, s.config.CallsTable, callKey(callID), &call)
}

func (s *DynamoDBStore) updateItem(ctx context.Context, table string, key map[string]dbtypes.AttributeValue, set expression.UpdateBuilder, out interface{}) error {
	expr, err := expression.NewBuilder().
		WithUpdate(set).
		WithCondition(expression.AttributeExists(expression.Name("ID"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              dbtypes.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if err := attributevalue.UnmarshalMap(result.Attributes, out); err != nil {
		return fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) deleteItem(ctx context.Context, table string, key map[string]dbtypes.AttributeValue) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("ID"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(table),
		Key:                      key,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// queryChildren returns every item of the call in table, following pagination
func (s *DynamoDBStore) queryChildren(ctx context.Context, table, callID string, filter *expression.ConditionBuilder) ([]map[string]dbtypes.AttributeValue, error) {
	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key("CallID").Equal(expression.Value(callID)))
	if filter != nil {
		builder = builder.WithFilter(*filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var items []map[string]dbtypes.AttributeValue
	var lastKey map[string]dbtypes.AttributeValue
	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(table),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", table, err)
		}
		items = append(items, result.Items...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			return items, nil
		}
	}
}

// scanByID finds a child item by its own ID. Children are keyed by call
// first, so lookups without the call id fall back to a filtered scan.
func (s *DynamoDBStore) scanByID(ctx context.Context, table, id string, out interface{}) error {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("ID").Equal(expression.Value(id))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	var lastKey map[string]dbtypes.AttributeValue
	for {
		result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(table),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		if len(result.Items) > 0 {
			if err := attributevalue.UnmarshalMap(result.Items[0], out); err != nil {
				return fmt.Errorf("failed to unmarshal item: %w", err)
			}
			return nil
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			return ErrNotFound
		}
	}
}

// deleteChildren removes every item of the call from table
func (s *DynamoDBStore) deleteChildren(ctx context.Context, table, callID string) error {
	items, err := s.queryChildren(ctx, table, callID, nil)
	if err != nil {
		return err
	}

	// Batch delete in groups of 25
	for i := 0; i < len(items); i += 25 {
		end := i + 25
		if end > len(items) {
			end = len(items)
		}

		requests := make([]dbtypes.WriteRequest, 0, end-i)
		for _, item := range items[i:end] {
			requests = append(requests, dbtypes.WriteRequest{
				DeleteRequest: &dbtypes.DeleteRequest{
					Key: map[string]dbtypes.AttributeValue{
						"CallID": item["CallID"],
						"ID":     item["ID"],
					},
				},
			})
		}

		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]dbtypes.WriteRequest{
				table: requests,
			},
		})
		if err != nil {
			return err
		}
	}

	s.logger.Debug().Str("table", table).Str("call_id", callID).Int("items", len(items)).Msg("call children deleted")
	return nil
}
