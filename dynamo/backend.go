// Package dynamo implements store.Backend and store.Locker on DynamoDB.
//
// Each collection is a table keyed by "_key". Revisions are uuid strings
// checked with condition expressions; unique indexes are enforced with one
// constraint record per entry, written in the same TransactWriteItems call as
// the document. Graph and index definitions live in small catalog tables
// created by Bootstrap.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jacentio/canopy/internal/keys"
	"github.com/jacentio/canopy/store"
)

// uniquePKsAttr lists the constraint records owned by a document.
const uniquePKsAttr = "_unique_pks"

// API is the subset of *dynamodb.Client used by this package.
type API interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ store.Backend = (*Backend)(nil)

// Backend provides DynamoDB storage for canopy collections.
type Backend struct {
	client API
	config Config

	indexes    sync.Map // collection -> [][]string
	indexLoads singleflight.Group
}

// New creates a new Backend instance.
func New(client API, config Config) *Backend {
	config.validate()
	return &Backend{
		client: client,
		config: config,
	}
}

// Bootstrap creates the catalog, constraint and lock tables and enables TTL
// expiry on the lock table. Existing tables are left untouched.
func (b *Backend) Bootstrap(ctx context.Context) error {
	tables := []struct {
		name string
		hash string
		sort string
	}{
		{b.config.GraphTable, "name", ""},
		{b.config.IndexTable, "collection", "index"},
		{b.config.ConstraintTable, "pk", "sk"},
		{b.config.LockTable, "name", ""},
	}
	for _, t := range tables {
		if err := b.createTable(ctx, t.name, t.hash, t.sort); err != nil {
			return err
		}
	}

	_, err := b.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(b.config.LockTable),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(ttlAttr),
			Enabled:       aws.Bool(true),
		},
	})
	// TTL already enabled is reported as a validation error; it is the desired state.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		return nil
	}
	return translate(err, b.config.LockTable)
}

// tableInput describes a pay-per-request table keyed by hash and, when set,
// sortKey.
func tableInput(name, hash, sortKey string) *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(hash), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	if sortKey != "" {
		input.AttributeDefinitions = append(input.AttributeDefinitions,
			types.AttributeDefinition{AttributeName: aws.String(sortKey), AttributeType: types.ScalarAttributeTypeS})
		input.KeySchema = append(input.KeySchema,
			types.KeySchemaElement{AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange})
	}
	return input
}

// createTable creates a pay-per-request table and waits until it is active.
// An existing table is success.
func (b *Backend) createTable(ctx context.Context, name, hash, sortKey string) error {
	return b.create(ctx, tableInput(name, hash, sortKey))
}

func (b *Backend) create(ctx context.Context, input *dynamodb.CreateTableInput) error {
	name := aws.ToString(input.TableName)
	_, err := b.client.CreateTable(ctx, input)
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return translate(err, name)
	}

	waiter := dynamodb.NewTableExistsWaiter(b.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, b.config.TableWaitTimeout); err != nil {
		return fmt.Errorf("%w: wait for table %q: %w", store.ErrStore, name, err)
	}
	return nil
}

// EnsureCollection implements store.Backend.
func (b *Backend) EnsureCollection(ctx context.Context, collection string) error {
	return b.createTable(ctx, collection, store.AttrKey, "")
}

// edgeIndex names the global secondary index over an edge endpoint attribute.
func edgeIndex(attr string) string {
	return attr + "-index"
}

// EnsureEdgeCollection implements store.Backend. The table carries one
// keys-only global secondary index per endpoint attribute.
func (b *Backend) EnsureEdgeCollection(ctx context.Context, collection string) error {
	input := tableInput(collection, store.AttrKey, "")
	for _, attr := range []string{store.AttrFrom, store.AttrTo} {
		input.AttributeDefinitions = append(input.AttributeDefinitions,
			types.AttributeDefinition{AttributeName: aws.String(attr), AttributeType: types.ScalarAttributeTypeS})
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(edgeIndex(attr)),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(attr), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly},
		})
	}
	return b.create(ctx, input)
}

// EdgeKeys implements store.Backend with a Query on the endpoint index.
// Index reads are eventually consistent: an edge written moments before may
// be missed, which the stream handler covers.
func (b *Backend) EdgeKeys(ctx context.Context, collection, attr, vertexID string) ([]string, error) {
	paginator := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
		TableName:                aws.String(collection),
		IndexName:                aws.String(edgeIndex(attr)),
		KeyConditionExpression:   aws.String("#a = :v"),
		ExpressionAttributeNames: map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: vertexID},
		},
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate(err, collection)
		}
		for _, item := range page.Items {
			keys = append(keys, stringAttr(item, store.AttrKey))
		}
	}
	return keys, nil
}

// DeleteCollection implements store.Backend. Documents of collections with
// unique indexes are removed first so their constraint records go too.
func (b *Backend) DeleteCollection(ctx context.Context, collection string) error {
	idxs, err := b.uniqueIndexes(ctx, collection)
	if err != nil {
		return err
	}
	if len(idxs) > 0 {
		if err := b.TruncateCollection(ctx, collection); err != nil {
			return err
		}
	}

	if _, err := b.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(collection),
	}); err != nil {
		return translate(err, collection)
	}
	if err := b.dropIndexes(ctx, collection, idxs); err != nil {
		return err
	}

	waiter := dynamodb.NewTableNotExistsWaiter(b.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(collection)}, b.config.TableWaitTimeout); err != nil {
		return fmt.Errorf("%w: wait for table %q deletion: %w", store.ErrStore, collection, err)
	}
	return nil
}

// TruncateCollection implements store.Backend.
func (b *Backend) TruncateCollection(ctx context.Context, collection string) error {
	if ok, err := b.HasCollection(ctx, collection); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: collection %q", store.ErrDataSourceNotFound, collection)
	}

	paginator := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName:                aws.String(collection),
		ProjectionExpression:     aws.String("#key, #upks"),
		ExpressionAttributeNames: map[string]string{"#key": store.AttrKey, "#upks": uniquePKsAttr},
		ConsistentRead:           aws.Bool(true),
	})

	var docKeys, constraintKeys []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return translate(err, collection)
		}
		for _, item := range page.Items {
			docKeys = append(docKeys, map[string]types.AttributeValue{store.AttrKey: item[store.AttrKey]})
			for _, pk := range stringList(item[uniquePKsAttr]) {
				constraintKeys = append(constraintKeys, constraintKey(pk))
			}
		}
	}

	if err := b.batchDelete(ctx, collection, docKeys); err != nil {
		return err
	}
	return b.batchDelete(ctx, b.config.ConstraintTable, constraintKeys)
}

// batchDelete removes keys from table in chunks of 25, retrying unprocessed items.
func (b *Backend) batchDelete(ctx context.Context, table string, itemKeys []map[string]types.AttributeValue) error {
	for start := 0; start < len(itemKeys); start += 25 {
		end := min(start+25, len(itemKeys))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, k := range itemKeys[start:end] {
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
		}

		pending := map[string][]types.WriteRequest{table: requests}
		for len(pending) > 0 {
			out, err := b.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return translate(err, table)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// HasCollection implements store.Backend.
func (b *Backend) HasCollection(ctx context.Context, collection string) (bool, error) {
	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(collection),
	})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err, collection)
	}
	return true, nil
}

// indexRecord is the catalog entry of a unique index.
type indexRecord struct {
	Collection string   `dynamodbav:"collection"`
	Index      string   `dynamodbav:"index"`
	Fields     []string `dynamodbav:"fields"`
}

// EnsureUniqueIndex implements store.Backend. Documents stored before the
// index was declared are not checked retroactively.
func (b *Backend) EnsureUniqueIndex(ctx context.Context, collection string, fields []string) error {
	if ok, err := b.HasCollection(ctx, collection); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: collection %q", store.ErrDataSourceNotFound, collection)
	}

	item, err := attributevalue.MarshalMap(indexRecord{
		Collection: collection,
		Index:      keys.IndexName(fields),
		Fields:     fields,
	})
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.config.IndexTable),
		Item:      item,
	}); err != nil {
		return translate(err, b.config.IndexTable)
	}
	b.indexes.Delete(collection)
	return nil
}

// uniqueIndexes returns the unique indexes of collection, loading the catalog
// once per collection. Concurrent loads are deduplicated.
func (b *Backend) uniqueIndexes(ctx context.Context, collection string) ([][]string, error) {
	if v, ok := b.indexes.Load(collection); ok {
		return v.([][]string), nil
	}
	v, err, _ := b.indexLoads.Do(collection, func() (any, error) {
		var idxs [][]string
		paginator := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
			TableName:                aws.String(b.config.IndexTable),
			KeyConditionExpression:   aws.String("#c = :c"),
			ExpressionAttributeNames: map[string]string{"#c": "collection"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: collection},
			},
			ConsistentRead: aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, translate(err, b.config.IndexTable)
			}
			var recs []indexRecord
			if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
				return nil, fmt.Errorf("%w: unmarshal indexes: %w", store.ErrStore, err)
			}
			for _, r := range recs {
				idxs = append(idxs, r.Fields)
			}
		}
		b.indexes.Store(collection, idxs)
		return idxs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]string), nil
}

func (b *Backend) dropIndexes(ctx context.Context, collection string, idxs [][]string) error {
	var itemKeys []map[string]types.AttributeValue
	for _, fields := range idxs {
		itemKeys = append(itemKeys, map[string]types.AttributeValue{
			"collection": &types.AttributeValueMemberS{Value: collection},
			"index":      &types.AttributeValueMemberS{Value: keys.IndexName(fields)},
		})
	}
	b.indexes.Delete(collection)
	return b.batchDelete(ctx, b.config.IndexTable, itemKeys)
}

// constraintPKs computes the constraint records rec occupies.
func constraintPKs(collection string, idxs [][]string, rec store.Record) []string {
	pks := make([]string, 0, len(idxs))
	for _, fields := range idxs {
		values := make([]string, len(fields))
		for i, f := range fields {
			values[i] = encodeValue(store.Lookup(rec, store.SortKey{Field: f}.Path()))
		}
		pks = append(pks, keys.ConstraintPK(collection, keys.IndexName(fields), values))
	}
	return pks
}

func constraintKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: "CONSTRAINT"},
	}
}

func (b *Backend) constraintPut(collection, key, pk string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(b.config.ConstraintTable),
			Item: map[string]types.AttributeValue{
				"pk":         &types.AttributeValueMemberS{Value: pk},
				"sk":         &types.AttributeValueMemberS{Value: "CONSTRAINT"},
				"collection": &types.AttributeValueMemberS{Value: collection},
				"entity_key": &types.AttributeValueMemberS{Value: key},
			},
			// Fails if another document already holds this entry
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}
}

// Insert implements store.Backend.
func (b *Backend) Insert(ctx context.Context, collection string, rec store.Record) (string, error) {
	key := stringAttr(rec, store.AttrKey)
	idxs, err := b.uniqueIndexes(ctx, collection)
	if err != nil {
		return "", err
	}

	rev := uuid.NewString()
	item := copyRecord(rec)
	item[store.AttrRev] = &types.AttributeValueMemberS{Value: rev}

	collision := func(error) error {
		return fmt.Errorf("%w: document %s/%s already exists", store.ErrUniqueConstraint, collection, key)
	}

	// Fast path: no unique indexes
	if len(idxs) == 0 {
		_, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                aws.String(collection),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#key)"),
			ExpressionAttributeNames: map[string]string{"#key": store.AttrKey},
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return "", collision(err)
		}
		if err != nil {
			return "", translate(err, collection)
		}
		return rev, nil
	}

	pks := constraintPKs(collection, idxs, rec)
	item[uniquePKsAttr] = stringListValue(pks)

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                aws.String(collection),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#key)"),
			ExpressionAttributeNames: map[string]string{"#key": store.AttrKey},
		},
	}}
	for _, pk := range pks {
		items = append(items, b.constraintPut(collection, key, pk))
	}

	_, err = b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return "", mapTransactionError(err, collection, key, 0, func(map[string]types.AttributeValue) error {
			return collision(err)
		})
	}
	return rev, nil
}

// Replace implements store.Backend.
func (b *Backend) Replace(ctx context.Context, collection, key, rev string, rec store.Record) (string, error) {
	idxs, err := b.uniqueIndexes(ctx, collection)
	if err != nil {
		return "", err
	}

	newRev := uuid.NewString()
	item := copyRecord(rec)
	item[store.AttrRev] = &types.AttributeValueMemberS{Value: newRev}
	cond := aws.String("#rev = :rev")
	names := map[string]string{"#rev": store.AttrRev}
	values := map[string]types.AttributeValue{":rev": &types.AttributeValueMemberS{Value: rev}}

	// Fast path: no unique indexes
	if len(idxs) == 0 {
		_, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                           aws.String(collection),
			Item:                                item,
			ConditionExpression:                 cond,
			ExpressionAttributeNames:            names,
			ExpressionAttributeValues:           values,
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return "", conditionFailure(err, condErr.Item, collection, key)
		}
		if err != nil {
			return "", translate(err, collection)
		}
		return newRev, nil
	}

	// Fetch current document to learn the constraint records it holds
	current, err := b.getRaw(ctx, collection, key)
	if err != nil {
		return "", err
	}
	oldPKs := stringList(current[uniquePKsAttr])
	newPKs := constraintPKs(collection, idxs, rec)
	item[uniquePKsAttr] = stringListValue(newPKs)

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                           aws.String(collection),
			Item:                                item,
			ConditionExpression:                 cond,
			ExpressionAttributeNames:            names,
			ExpressionAttributeValues:           values,
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}}

	// For each changed entry: delete old constraint, create new constraint
	for _, pk := range oldPKs {
		if !contains(newPKs, pk) {
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(b.config.ConstraintTable),
					Key:       constraintKey(pk),
				},
			})
		}
	}
	for _, pk := range newPKs {
		if !contains(oldPKs, pk) {
			items = append(items, b.constraintPut(collection, key, pk))
		}
	}

	_, err = b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return "", mapTransactionError(err, collection, key, 0, func(old map[string]types.AttributeValue) error {
			return conditionFailure(err, old, collection, key)
		})
	}
	return newRev, nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, collection, key string) (store.Record, error) {
	item, err := b.getRaw(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	return strip(item), nil
}

func (b *Backend) getRaw(ctx context.Context, collection, key string) (map[string]types.AttributeValue, error) {
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(collection),
		Key:            docKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, translate(err, collection)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: document %s/%s", store.ErrModelNotFound, collection, key)
	}
	return result.Item, nil
}

// Remove implements store.Backend. Constraint records of the removed document
// are deleted after the document itself.
func (b *Backend) Remove(ctx context.Context, collection, key, rev string) error {
	input := &dynamodb.DeleteItemInput{
		TableName:                           aws.String(collection),
		Key:                                 docKey(key),
		ConditionExpression:                 aws.String("attribute_exists(#key)"),
		ExpressionAttributeNames:            map[string]string{"#key": store.AttrKey},
		ReturnValues:                        types.ReturnValueAllOld,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if rev != "" {
		input.ConditionExpression = aws.String("attribute_exists(#key) AND #rev = :rev")
		input.ExpressionAttributeNames["#rev"] = store.AttrRev
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":rev": &types.AttributeValueMemberS{Value: rev},
		}
	}

	out, err := b.client.DeleteItem(ctx, input)
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return conditionFailure(err, condErr.Item, collection, key)
	}
	if err != nil {
		return translate(err, collection)
	}

	var constraintKeys []map[string]types.AttributeValue
	for _, pk := range stringList(out.Attributes[uniquePKsAttr]) {
		constraintKeys = append(constraintKeys, constraintKey(pk))
	}
	return b.batchDelete(ctx, b.config.ConstraintTable, constraintKeys)
}

// graphRecord is the catalog entry of a graph.
type graphRecord struct {
	Name            string                  `dynamodbav:"name"`
	EdgeDefinitions []store.EdgeCollections `dynamodbav:"edge_definitions"`
}

// EnsureGraph implements store.Backend.
func (b *Backend) EnsureGraph(ctx context.Context, name string, defs []store.EdgeCollections) error {
	item, err := attributevalue.MarshalMap(graphRecord{Name: name, EdgeDefinitions: defs})
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(b.config.GraphTable),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#name)"),
		ExpressionAttributeNames: map[string]string{"#name": "name"},
	})
	// Ignore condition failure - graph already exists
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return translate(err, b.config.GraphTable)
}

// DeleteGraph implements store.Backend.
func (b *Backend) DeleteGraph(ctx context.Context, name string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.config.GraphTable),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression:      aws.String("attribute_exists(#name)"),
		ExpressionAttributeNames: map[string]string{"#name": "name"},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: graph %q", store.ErrGraphNotFound, name)
	}
	return translate(err, b.config.GraphTable)
}

func docKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		store.AttrKey: &types.AttributeValueMemberS{Value: key},
	}
}

// strip removes backend bookkeeping attributes from a stored item.
func strip(item map[string]types.AttributeValue) store.Record {
	rec := copyRecord(item)
	delete(rec, uniquePKsAttr)
	return rec
}

func copyRecord(rec map[string]types.AttributeValue) store.Record {
	out := make(store.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func stringAttr(rec map[string]types.AttributeValue, attr string) string {
	if v, ok := rec[attr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func stringListValue(list []string) types.AttributeValue {
	out := make([]types.AttributeValue, len(list))
	for i, s := range list {
		out[i] = &types.AttributeValueMemberS{Value: s}
	}
	return &types.AttributeValueMemberL{Value: out}
}

func stringList(v types.AttributeValue) []string {
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range l.Value {
		if s, ok := item.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
