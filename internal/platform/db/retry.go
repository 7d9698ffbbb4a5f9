package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Storage operation names accepted by Dispatch.
const (
	OpAdd     = "add"
	OpCommit  = "commit"
	OpRefresh = "refresh"
	OpDelete  = "delete"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// Retrier runs storage calls with a fixed-delay retry policy.
type Retrier struct {
	maxAttempts int
	delay       time.Duration
	retryable   func(error) bool
	logger      zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) RetryOption {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithDelay sets the fixed pause between attempts.
func WithDelay(d time.Duration) RetryOption {
	return func(r *Retrier) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithRetryable replaces the predicate deciding which errors are retried.
func WithRetryable(fn func(error) bool) RetryOption {
	return func(r *Retrier) {
		if fn != nil {
			r.retryable = fn
		}
	}
}

func WithLogger(logger zerolog.Logger) RetryOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// NewRetrier returns a Retrier with 3 attempts, a 2 second delay and
// IsTransient as the predicate, adjusted by opts.
func NewRetrier(opts ...RetryOption) *Retrier {
	r := &Retrier{
		maxAttempts: DefaultMaxAttempts,
		delay:       DefaultRetryDelay,
		retryable:   IsTransient,
		logger:      zerolog.Nop(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned unmodified. A context
// cancelled during the pause ends the sequence early with the last error.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= r.maxAttempts || !r.retryable(err) {
			return err
		}

		r.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", r.maxAttempts).
			Dur("delay", r.delay).
			Msg("storage operation failed, retrying")

		if r.sleep(ctx, r.delay) != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Retrier) Add(ctx context.Context, s Session, e Entity) error {
	return r.Do(ctx, OpAdd, func(ctx context.Context) error { return s.Add(ctx, e) })
}

func (r *Retrier) Commit(ctx context.Context, s Session) error {
	return r.Do(ctx, OpCommit, s.Commit)
}

func (r *Retrier) Refresh(ctx context.Context, s Session, e Entity) error {
	return r.Do(ctx, OpRefresh, func(ctx context.Context) error { return s.Refresh(ctx, e) })
}

func (r *Retrier) Delete(ctx context.Context, s Session, e Entity) error {
	return r.Do(ctx, OpDelete, func(ctx context.Context) error { return s.Delete(ctx, e) })
}

// Dispatch routes op to the matching retried session call.
func (r *Retrier) Dispatch(ctx context.Context, op string, s Session, e Entity) error {
	if op != OpCommit && op != OpAdd && op != OpRefresh && op != OpDelete {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	if op != OpCommit && e == nil {
		return fmt.Errorf("%s: %w", op, ErrNilEntity)
	}

	switch op {
	case OpAdd:
		return r.Add(ctx, s, e)
	case OpRefresh:
		return r.Refresh(ctx, s, e)
	case OpDelete:
		return r.Delete(ctx, s, e)
	default:
		return r.Commit(ctx, s)
	}
}

// Run dispatches ops in order against e, stopping at the first failure.
// Each operation is retried independently.
func (r *Retrier) Run(ctx context.Context, s Session, e Entity, ops ...string) error {
	for _, op := range ops {
		if err := r.Dispatch(ctx, op, s, e); err != nil {
			return err
		}
	}
	return nil
}

// SaveAndRefresh stages e, commits, and reloads it from storage.
func (r *Retrier) SaveAndRefresh(ctx context.Context, s Session, e Entity) error {
	return r.Run(ctx, s, e, OpAdd, OpCommit, OpRefresh)
}

// DeleteAndCommit stages the removal of e and commits it.
func (r *Retrier) DeleteAndCommit(ctx context.Context, s Session, e Entity) error {
	return r.Run(ctx, s, e, OpDelete, OpCommit)
}
