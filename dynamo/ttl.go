package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ttlAttr is the DynamoDB TTL attribute on lock records.
const ttlAttr = "ttl"

// expired checks if a lock record's TTL has passed. DynamoDB deletes expired
// items lazily, so readers must treat them as absent themselves.
func expired(item map[string]types.AttributeValue, now time.Time) bool {
	ttlNum, ok := item[ttlAttr].(*types.AttributeValueMemberN)
	if !ok {
		return false // No TTL = held until released
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// ttlValue returns the TTL attribute value for an expiry time.
func ttlValue(at time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(at.Unix(), 10)}
}

// acquireCondition lets a put through when the lock is free, already ours,
// or left behind by a holder whose TTL has passed.
func acquireCondition() string {
	return "attribute_not_exists(#name) OR #owner = :owner OR #ttl <= :now"
}
