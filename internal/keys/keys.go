// Package keys derives deterministic keys for locks and unique constraints.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LockName returns the lock name guarding a document.
func LockName(collection, key string) string {
	return "lock:" + collection + "/" + key
}

// IndexName returns the stable name of a unique index over fields.
func IndexName(fields []string) string {
	return strings.Join(fields, "+")
}

// ConstraintPK computes a hash-distributed partition key for one unique index
// entry. Each entry lands on its own partition, avoiding hot partitions.
func ConstraintPK(collection, index string, values []string) string {
	var b strings.Builder
	b.WriteString(collection)
	b.WriteByte('#')
	b.WriteString(index)
	for _, v := range values {
		b.WriteByte('#')
		b.WriteString(v)
	}
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}
