package dynamo

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/store"
)

// translate maps a DynamoDB error to the store taxonomy. Conditional check
// failures are operation-specific and must be handled by the caller first.
func translate(err error, collection string) error {
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: collection %q: %w", store.ErrDataSourceNotFound, collection, err)
	}
	return fmt.Errorf("%w: %w", store.ErrStore, err)
}

// conditionFailure distinguishes a missing document from a stale revision.
// old is the item DynamoDB returned on the failed condition, nil if absent.
func conditionFailure(err error, old map[string]types.AttributeValue, collection, key string) error {
	if old == nil {
		return fmt.Errorf("%w: document %s/%s: %w", store.ErrModelNotFound, collection, key, err)
	}
	return fmt.Errorf("%w: conflict on %s/%s: %w", store.ErrUniqueConstraint, collection, key, err)
}

// mapTransactionError maps TransactWriteItems errors. entityIndex is the index
// of the document write; keyConflict describes what its failed condition
// means (collision on insert, missing/stale on replace).
func mapTransactionError(err error, collection, key string, entityIndex int, keyConflict func(old map[string]types.AttributeValue) error) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				if i == entityIndex {
					return keyConflict(reason.Item)
				}
				// Must be a unique constraint
				return fmt.Errorf("%w: unique index entry for %s/%s already taken: %w",
					store.ErrUniqueConstraint, collection, key, err)
			}
		}
	}

	return translate(err, collection)
}
