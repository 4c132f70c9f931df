package dynamo

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var errUnexpected = errors.New("unexpected call")

// fakeAPI scripts DynamoDB responses per operation and records inputs.
type fakeAPI struct {
	mu sync.Mutex

	createTable      func(*dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error)
	deleteTable      func(*dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error)
	describeTable    func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
	updateTimeToLive func(*dynamodb.UpdateTimeToLiveInput) (*dynamodb.UpdateTimeToLiveOutput, error)
	getItem          func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem          func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	deleteItem       func(*dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	query            func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	scan             func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	batchWriteItem   func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
	transactWrite    func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)

	puts      []*dynamodb.PutItemInput
	deletes   []*dynamodb.DeleteItemInput
	scans     []*dynamodb.ScanInput
	batches   []*dynamodb.BatchWriteItemInput
	transacts []*dynamodb.TransactWriteItemsInput
}

var _ API = (*fakeAPI)(nil)

// activeTable answers DescribeTable for any table as ACTIVE.
func activeTable(in *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

// noIndexes answers index catalog queries with no entries.
func noIndexes(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeAPI) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if f.createTable == nil {
		return nil, errUnexpected
	}
	return f.createTable(in)
}

func (f *fakeAPI) DeleteTable(_ context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if f.deleteTable == nil {
		return nil, errUnexpected
	}
	return f.deleteTable(in)
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeTable == nil {
		return activeTable(in)
	}
	return f.describeTable(in)
}

func (f *fakeAPI) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	if f.updateTimeToLive == nil {
		return nil, errUnexpected
	}
	return f.updateTimeToLive(in)
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getItem == nil {
		return nil, errUnexpected
	}
	return f.getItem(in)
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	f.puts = append(f.puts, in)
	f.mu.Unlock()
	if f.putItem == nil {
		return &dynamodb.PutItemOutput{}, nil
	}
	return f.putItem(in)
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	f.deletes = append(f.deletes, in)
	f.mu.Unlock()
	if f.deleteItem == nil {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	return f.deleteItem(in)
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.query == nil {
		return noIndexes(in)
	}
	return f.query(in)
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	f.scans = append(f.scans, in)
	f.mu.Unlock()
	if f.scan == nil {
		return &dynamodb.ScanOutput{}, nil
	}
	return f.scan(in)
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	f.batches = append(f.batches, in)
	f.mu.Unlock()
	if f.batchWriteItem == nil {
		return &dynamodb.BatchWriteItemOutput{}, nil
	}
	return f.batchWriteItem(in)
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	f.transacts = append(f.transacts, in)
	f.mu.Unlock()
	if f.transactWrite == nil {
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	return f.transactWrite(in)
}
