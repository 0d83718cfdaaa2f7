package dbx

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// serializationFailureCode is the SQLSTATE PostgreSQL reports when a
// serializable transaction must be retried by the client.
const serializationFailureCode = "40001"

// RetryPolicy bounds the retry loop around serializable transactions.
// The n-th retry sleeps IntervalFirst * IntervalFactor^n before running.
type RetryPolicy struct {
	Retries        int
	IntervalFirst  time.Duration
	IntervalFactor float64
}

// IsSerializationFailure reports whether err is a PostgreSQL serialization
// conflict (SQLSTATE 40001), the only error class the retry loop retries.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode
}

// WithSerializableTx runs fn inside a SERIALIZABLE transaction and retries it
// on serialization conflicts according to policy. Business errors returned by
// fn and connection faults are surfaced immediately; only SQLSTATE 40001
// consumes retry budget. When the budget is exhausted the caller gets
// common.ErrorTransaction.
//
// Serializable isolation plus this loop is what makes the service's
// count-then-insert bound checks race-free under concurrent requests.
func WithSerializableTx(ctx context.Context, db *sql.DB, policy RetryPolicy, fn func(ctx context.Context, tx DBTX) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	backoff := retry.WithMaxRetries(uint64(policy.Retries), exponentialBackoff(policy))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := WithTx(ctx, db, opts, fn)
		if IsSerializationFailure(txErr) {
			return retry.RetryableError(txErr)
		}
		return txErr
	})

	if IsSerializationFailure(err) {
		return common.ErrorTransaction
	}
	return err
}

// exponentialBackoff grows the delay by policy.IntervalFactor on every
// attempt. go-retry's stock exponential is pinned to a factor of two, so the
// configurable factor is implemented as a BackoffFunc.
func exponentialBackoff(policy RetryPolicy) retry.Backoff {
	interval := policy.IntervalFirst
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := interval
		interval = time.Duration(float64(interval) * policy.IntervalFactor)
		return d, false
	})
}
