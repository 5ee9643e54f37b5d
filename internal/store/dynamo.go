package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// DynamoConfig holds connection settings for DynamoStore.
type DynamoConfig struct {
	Region             string
	AccessKey          string
	SecretKey          string
	Endpoint           string // Optional: DynamoDB Local or LocalStack
	Table              string
	DeletionProtection bool
}

// DynamoStore keeps every entity in a single DynamoDB table.
type DynamoStore struct {
	client             DynamoAPI
	table              string
	deletionProtection bool
}

// NewDynamoStore builds a DynamoDB client from cfg.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	slog.Info("initializing dynamodb store", "table", cfg.Table, "region", cfg.Region, "endpoint", cfg.Endpoint)
	return NewDynamoStoreWithClient(client, cfg.Table, cfg.DeletionProtection), nil
}

func NewDynamoStoreWithClient(client DynamoAPI, table string, deletionProtection bool) *DynamoStore {
	return &DynamoStore{
		client:             client,
		table:              table,
		deletionProtection: deletionProtection,
	}
}

func (s *DynamoStore) Get(ctx context.Context, kind, id string, out any) error {
	item, err := s.getRaw(ctx, id, false)
	if err != nil {
		return err
	}
	return unmarshalKind(item, kind, id, out)
}

func (s *DynamoStore) getInto(ctx context.Context, kind, id string, out any) error {
	item, err := s.getRaw(ctx, id, true)
	if err != nil {
		return err
	}
	return unmarshalKind(item, kind, id, out)
}

func unmarshalKind(item map[string]types.AttributeValue, kind, id string, out any) error {
	if !hasKind(item, kind) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	err := attributevalue.UnmarshalMap(item, out)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *DynamoStore) getRaw(ctx context.Context, id string, consistent bool) (map[string]types.AttributeValue, error) {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	if res.Item == nil {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return res.Item, nil
}

func (s *DynamoStore) Put(ctx context.Context, kind string, item any, unique ...Unique) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	id, ok := scalarAttr(av, "id")
	if !ok || id == "" {
		return fmt.Errorf("put %s: missing id", kind)
	}
	av[TypeAttr] = &types.AttributeValueMemberS{Value: kind}

	keys, err := guardKeys(kind, unique, func(field string) (string, bool) {
		return scalarAttr(av, field)
	})
	if err != nil {
		return err
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build put condition: %w", err)
	}

	if len(keys) == 0 {
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                aws.String(s.table),
			Item:                     av,
			ConditionExpression:      expr.Condition(),
			ExpressionAttributeNames: expr.Names(),
		})
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to put %s %s: %w", kind, id, err)
		}
		return nil
	}

	av[UniqueKeysAttr] = stringList(keys)
	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                aws.String(s.table),
			Item:                     av,
			ConditionExpression:      expr.Condition(),
			ExpressionAttributeNames: expr.Names(),
		},
	}}
	for _, k := range keys {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(s.table),
				Item:                     guardItem(k, id),
				ConditionExpression:      expr.Condition(),
				ExpressionAttributeNames: expr.Names(),
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if _, failed := cancellationReason(err); failed {
		return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to put %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, kind, id string, upd *Update, unique ...Unique) error {
	if upd.IsEmpty() {
		return nil
	}

	var builder expression.UpdateBuilder
	for _, a := range upd.sets {
		builder = builder.Set(expression.Name(a.Field), expression.Value(a.Value))
	}
	for _, a := range upd.adds {
		builder = builder.Add(expression.Name(a.Field), expression.Value(a.Value))
	}
	for _, f := range upd.removes {
		builder = builder.Remove(expression.Name(f))
	}

	cond := expression.AttributeExists(expression.Name("id")).
		And(expression.Name(TypeAttr).Equal(expression.Value(kind)))
	for _, a := range upd.atLeast {
		cond = cond.And(expression.Name(a.Field).GreaterThanEqual(expression.Value(a.Value)))
	}

	var claim, release []string
	if touchesUnique(upd, unique) {
		current, err := s.getRaw(ctx, id, true)
		if err != nil {
			return err
		}
		if !hasKind(current, kind) {
			return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		after, err := patchedAttrs(current, upd)
		if err != nil {
			return err
		}
		claim, release, err = diffGuards(kind, unique,
			func(f string) (string, bool) { return scalarAttr(current, f) },
			func(f string) (string, bool) { return scalarAttr(after, f) },
		)
		if err != nil {
			return err
		}
		if len(claim) > 0 {
			stored := stringListAttr(current, UniqueKeysAttr)
			builder = builder.Set(expression.Name(UniqueKeysAttr), expression.Value(applyGuardDiff(stored, claim, release)))
		}
	}

	expr, err := expression.NewBuilder().WithUpdate(builder).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build update for %s %s: %w", kind, id, err)
	}

	if len(claim) == 0 {
		in := &dynamodb.UpdateItemInput{
			TableName:                           aws.String(s.table),
			Key:                                 idKey(id),
			UpdateExpression:                    expr.Update(),
			ConditionExpression:                 expr.Condition(),
			ExpressionAttributeNames:            expr.Names(),
			ExpressionAttributeValues:           expr.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		}
		if upd.returning != nil {
			in.ReturnValues = types.ReturnValueAllNew
		}
		res, err := s.client.UpdateItem(ctx, in)
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return conditionError(kind, id, ccf.Item)
		}
		if err != nil {
			return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
		}
		if upd.returning != nil {
			err = attributevalue.UnmarshalMap(res.Attributes, upd.returning)
			if err != nil {
				return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
			}
		}
		return nil
	}

	items := []types.TransactWriteItem{{
		Update: &types.Update{
			TableName:                           aws.String(s.table),
			Key:                                 idKey(id),
			UpdateExpression:                    expr.Update(),
			ConditionExpression:                 expr.Condition(),
			ExpressionAttributeNames:            expr.Names(),
			ExpressionAttributeValues:           expr.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}}
	notExists, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build guard condition: %w", err)
	}
	for _, k := range claim {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(s.table),
				Item:                     guardItem(k, id),
				ConditionExpression:      notExists.Condition(),
				ExpressionAttributeNames: notExists.Names(),
			},
		})
	}
	for _, k := range release {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(s.table),
				Key:       idKey(k),
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if reasons, failed := cancellationReason(err); failed {
		if len(reasons) > 0 && reasons[0].Code != nil && *reasons[0].Code == "ConditionalCheckFailed" {
			return conditionError(kind, id, reasons[0].Item)
		}
		return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
	}
	if upd.returning != nil {
		// Transactions return no item; read it back.
		return s.getInto(ctx, kind, id, upd.returning)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	proj, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name(UniqueKeysAttr))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build projection: %w", err)
	}
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.table),
		Key:                      idKey(id),
		ProjectionExpression:     proj.Projection(),
		ExpressionAttributeNames: proj.Names(),
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to read guards for %s: %w", id, err)
	}

	guards := stringListAttr(res.Item, UniqueKeysAttr)
	if len(guards) == 0 {
		_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       idKey(id),
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
		return nil
	}

	items := []types.TransactWriteItem{{Delete: &types.Delete{TableName: aws.String(s.table), Key: idKey(id)}}}
	for _, k := range guards {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{TableName: aws.String(s.table), Key: idKey(k)}})
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// Scan lists every row of a kind through the type index. The cost grows with
// the number of rows of that kind.
func (s *DynamoStore) Scan(ctx context.Context, kind string, filter Filter, out any) error {
	key := expression.Key(TypeAttr).Equal(expression.Value(kind))
	return s.query(ctx, IndexName(TypeAttr), key, nil, filter, out)
}

func (s *DynamoStore) Query(ctx context.Context, kind, field string, value any, filter Filter, out any) error {
	key := expression.Key(field).Equal(expression.Value(value))
	typeCond := expression.Name(TypeAttr).Equal(expression.Value(kind))
	return s.query(ctx, IndexName(field), key, &typeCond, filter, out)
}

func (s *DynamoStore) query(ctx context.Context, index string, key expression.KeyConditionBuilder, extra *expression.ConditionBuilder, filter Filter, out any) error {
	builder := expression.NewBuilder().WithKeyCondition(key)
	if cond, ok := filterCondition(extra, filter); ok {
		builder = builder.WithFilter(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build query on %s: %w", index, err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", index, err)
		}
		items = append(items, page.Items...)
	}

	err = attributevalue.UnmarshalListOfMaps(items, out)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s results: %w", index, err)
	}
	return nil
}

// EnsureTable creates the table with its indexes unless it already exists.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		slog.Debug("dynamodb table exists", "table", s.table)
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", s.table, err)
	}

	attrs := []types.AttributeDefinition{{
		AttributeName: aws.String("id"),
		AttributeType: types.ScalarAttributeTypeS,
	}}
	var gsis []types.GlobalSecondaryIndex
	for _, field := range Indexes {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(field),
			AttributeType: types.ScalarAttributeTypeS,
		})
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName: aws.String(IndexName(field)),
			KeySchema: []types.KeySchemaElement{{
				AttributeName: aws.String(field),
				KeyType:       types.KeyTypeHash,
			}},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(s.table),
		AttributeDefinitions: attrs,
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String("id"),
			KeyType:       types.KeyTypeHash,
		}},
		GlobalSecondaryIndexes:    gsis,
		BillingMode:               types.BillingModePayPerRequest,
		DeletionProtectionEnabled: aws.Bool(s.deletionProtection),
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", s.table, err)
	}

	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(s.table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(TTLAttr),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable ttl on %s: %w", s.table, err)
	}

	slog.Info("created dynamodb table", "table", s.table, "indexes", len(gsis))
	return nil
}

func (s *DynamoStore) DropTable(ctx context.Context) error {
	_, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(s.table)})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(s.client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("failed waiting for table %s deletion: %w", s.table, err)
	}
	slog.Info("deleted dynamodb table", "table", s.table)
	return nil
}

// Close is a no-op; the SDK client holds no connections that need releasing.
func (s *DynamoStore) Close() error {
	return nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func guardItem(key, owner string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":     &types.AttributeValueMemberS{Value: key},
		TypeAttr: &types.AttributeValueMemberS{Value: guardKind},
		"owner":  &types.AttributeValueMemberS{Value: owner},
	}
}

func hasKind(item map[string]types.AttributeValue, kind string) bool {
	v, ok := item[TypeAttr].(*types.AttributeValueMemberS)
	return ok && v.Value == kind
}

func scalarAttr(item map[string]types.AttributeValue, field string) (string, bool) {
	switch v := item[field].(type) {
	case *types.AttributeValueMemberS:
		return v.Value, true
	case *types.AttributeValueMemberN:
		return v.Value, true
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value), true
	default:
		return "", false
	}
}

func stringList(values []string) *types.AttributeValueMemberL {
	list := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		list = append(list, &types.AttributeValueMemberS{Value: v})
	}
	return &types.AttributeValueMemberL{Value: list}
}

func stringListAttr(item map[string]types.AttributeValue, field string) []string {
	list, ok := item[field].(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range list.Value {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}

// patchedAttrs returns a copy of item with the update's sets and removes applied.
func patchedAttrs(item map[string]types.AttributeValue, upd *Update) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	for _, a := range upd.sets {
		av, err := attributevalue.Marshal(a.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", a.Field, err)
		}
		out[a.Field] = av
	}
	for _, f := range upd.removes {
		delete(out, f)
	}
	return out, nil
}

func filterCondition(extra *expression.ConditionBuilder, f Filter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if extra != nil {
		conds = append(conds, *extra)
	}
	for field, value := range f.Equals {
		conds = append(conds, expression.Name(field).Equal(expression.Value(value)))
	}
	if f.Search != "" && len(f.SearchFields) > 0 {
		var search []expression.ConditionBuilder
		for _, field := range f.SearchFields {
			search = append(search, expression.Contains(expression.Name(field), f.Search))
		}
		conds = append(conds, either(search))
	}
	if len(conds) == 0 {
		return expression.ConditionBuilder{}, false
	}
	if len(conds) == 1 {
		return conds[0], true
	}
	return expression.And(conds[0], conds[1], conds[2:]...), true
}

func either(conds []expression.ConditionBuilder) expression.ConditionBuilder {
	if len(conds) == 1 {
		return conds[0]
	}
	return expression.Or(conds[0], conds[1], conds[2:]...)
}

func conditionError(kind, id string, old map[string]types.AttributeValue) error {
	if old == nil || !hasKind(old, kind) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, id, ErrConditionFailed)
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// cancellationReason reports whether err is a transaction cancelled by a
// failed condition, along with the per-item reasons.
func cancellationReason(err error) ([]types.CancellationReason, bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false
	}
	for _, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return tce.CancellationReasons, true
		}
	}
	return nil, false
}
