// Package ledger guards the shared financial ledger: per-user balance
// and per-user-per-symbol position, mutated only through optimistic
// check-and-mutate operations so no accepted operation can drive a
// value negative under concurrent writers.
package ledger

import "context"

// MaxAttempts bounds the optimistic retry loop. Exhausting it turns the
// operation into a rejection, never a fault.
const MaxAttempts = 10

// ErrContention is returned by Store.Update when every attempt lost the
// race against a concurrent writer on the watched key.
var ErrContention = errorString("ledger: write conflict retries exhausted")

// ErrInsufficient aborts an attempt whose bound check failed: committing
// the delta would leave a balance or position negative.
var ErrInsufficient = errorString("ledger: insufficient balance or position")

type errorString string

func (e errorString) Error() string { return string(e) }

// Reader reads current ledger values inside a single optimistic
// attempt. The bool result reports whether the key exists.
type Reader interface {
	Float(ctx context.Context, key string) (float64, bool, error)
	Int(ctx context.Context, key string) (int64, bool, error)
}

// Change is one increment, committed atomically with the rest of its
// batch only if the watched key is unchanged since the attempt read it.
type Change struct {
	Key     string
	ByFloat float64
	ByInt   int64
	IsFloat bool
}

// IncrFloat builds a balance increment (negative to debit).
func IncrFloat(key string, by float64) Change {
	return Change{Key: key, ByFloat: by, IsFloat: true}
}

// IncrInt builds a position increment (negative to debit).
func IncrInt(key string, by int64) Change {
	return Change{Key: key, ByInt: by}
}

// AttemptFunc computes the changes for one optimistic attempt from the
// values read through r. Returning ErrInsufficient (or any other error)
// aborts the operation without retrying; the driver retries only when
// the commit itself loses to a concurrent writer.
type AttemptFunc func(ctx context.Context, r Reader) ([]Change, error)

// Store is the ledger's key-value service. Update is the optimistic
// primitive: watch key, run attempt against the current values, commit
// its changes transactionally, and retry from a fresh read when a
// concurrent writer invalidated the watch - up to MaxAttempts, then
// ErrContention. Apply commits unconditional credits that need no bound
// check.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Apply(ctx context.Context, changes ...Change) error
	Update(ctx context.Context, key string, attempt AttemptFunc) error
}

// BalanceKey is the ledger key of a user's cash balance.
func BalanceKey(username string) string {
	return username + ":balance"
}

// StockKey is the ledger key of a user's position in one symbol.
func StockKey(username, symbol string) string {
	return username + ":" + symbol
}
