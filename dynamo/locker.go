package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/store"
)

var _ store.Locker = (*Locker)(nil)

// Locker implements store.Locker with conditional writes on the lock table.
// Every successful Acquire extends the record's TTL, so a crashed holder
// blocks others for at most Config.LockTTL.
type Locker struct {
	client API
	config Config
	now    func() time.Time
}

// NewLocker creates a Locker on the lock table named in config.
func NewLocker(client API, config Config) *Locker {
	config.validate()
	return &Locker{client: client, config: config, now: time.Now}
}

var lockNames = map[string]string{
	"#name":  "name",
	"#owner": "owner",
	"#ttl":   ttlAttr,
}

// Acquire implements store.Locker.
func (l *Locker) Acquire(ctx context.Context, name, owner string, block bool) (bool, error) {
	for {
		ok, err := l.tryAcquire(ctx, name, owner)
		if err != nil || ok || !block {
			return ok, err
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.config.LockPollInterval):
		}
	}
}

func (l *Locker) tryAcquire(ctx context.Context, name, owner string) (bool, error) {
	now := l.now()
	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.config.LockTable),
		Item: map[string]types.AttributeValue{
			"name":  &types.AttributeValueMemberS{Value: name},
			"owner": &types.AttributeValueMemberS{Value: owner},
			ttlAttr: ttlValue(now.Add(l.config.LockTTL)),
		},
		ConditionExpression:      aws.String(acquireCondition()),
		ExpressionAttributeNames: lockNames,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
			":now":   ttlValue(now),
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return false, nil
	}
	if err != nil {
		return false, translate(err, l.config.LockTable)
	}
	return true, nil
}

// Release implements store.Locker. A lock that expired, and possibly was
// taken over by another owner, is left alone and ErrLockLost is returned.
func (l *Locker) Release(ctx context.Context, name, owner string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.config.LockTable),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %q is no longer held by %s", store.ErrLockLost, name, owner)
	}
	if err != nil {
		return fmt.Errorf("release %q: %w", name, translate(err, l.config.LockTable))
	}
	return nil
}

// Holder returns the current owner of the named lock, or "" if the lock is
// free or its TTL has passed.
func (l *Locker) Holder(ctx context.Context, name string) (string, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.config.LockTable),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", translate(err, l.config.LockTable)
	}
	if out.Item == nil || expired(out.Item, l.now()) {
		return "", nil
	}
	return stringAttr(out.Item, "owner"), nil
}
