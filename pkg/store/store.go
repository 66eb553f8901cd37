// Package store defines the Store contract shared by the in-memory
// reference implementation and the replicated client: a single interface
// every backend implements directly, rather than a class hierarchy (see
// DESIGN.md).
package store

import (
	"context"
	"strings"
)

// Sep is the two-byte delimiter joining a table and key into their
// canonical fully-qualified form. Neither component may contain it.
const Sep = "\x00\x01"

// TombstoneValue is the sentinel payload written in place of a deleted
// record's data. It is distinguished from an empty byte slice (which
// means "a zero-length value was legitimately stored") by using a
// multi-byte reserved pattern no real caller is expected to write.
var TombstoneValue = []byte("\x00__vshard_tombstone__\x00")

// IsTombstone reports whether data is the tombstone sentinel.
func IsTombstone(data []byte) bool {
	return string(data) == string(TombstoneValue)
}

// NewKey joins table and key into their canonical fully-qualified form. It
// fails if either component contains the separator, since that would make
// the join ambiguous to split back apart.
func NewKey(table, key string) (string, error) {
	if strings.Contains(table, Sep) {
		return "", &KeyError{Component: "table", Value: table}
	}
	if strings.Contains(key, Sep) {
		return "", &KeyError{Component: "key", Value: key}
	}
	return table + Sep + key, nil
}

// KeyError reports that a table or key component contained the reserved
// separator and cannot be joined into a fully-qualified key.
type KeyError struct {
	Component string
	Value     string
}

func (e *KeyError) Error() string {
	return "store: " + e.Component + " contains reserved separator: " + e.Value
}

// Status is the outcome taxonomy surfaced to callers.
type Status int

const (
	// StatusOK means the operation succeeded.
	StatusOK Status = iota
	// StatusNotFound means at least one replica was reachable and
	// reported a miss or a tombstone.
	StatusNotFound
	// StatusDataContention means another writer won the CAS race; the
	// caller must re-read before retrying.
	StatusDataContention
	// StatusError means no replica produced an authoritative result
	// within policy.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusDataContention:
		return "DATA_CONTENTION"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result-and-value sum type every Store method returns,
// replacing pointer-to-output-parameter style: callers branch on Status,
// not on a returned Go error, for ordinary outcomes.
type Outcome struct {
	Status Status
	Data   []byte
	CAS    uint64
}

// Store is the contract applications use, satisfied by LocalStore (the
// in-memory reference/test double), by replicated.Worker (the per-worker
// handle returned by replicated.Client.ForWorker) and by
// replicated.NeutralClient.
type Store interface {
	// Get fetches the record at (table, key). A tombstoned record
	// surfaces as StatusNotFound with CAS forced to zero.
	Get(ctx context.Context, table, key string) (Outcome, error)

	// Set writes data at (table, key). cas == 0 means create or
	// overwrite a tombstone; a non-zero cas means compare-and-swap
	// against that token. expirySeconds == 0 means expire immediately.
	Set(ctx context.Context, table, key string, data []byte, cas uint64, expirySeconds int) (Outcome, error)

	// Delete removes the record at (table, key). It is idempotent and
	// always returns StatusOK barring a hard internal error.
	Delete(ctx context.Context, table, key string) (Outcome, error)
}
