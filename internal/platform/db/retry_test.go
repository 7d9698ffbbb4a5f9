package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func newTestRetrier(sleeps *[]time.Duration, opts ...RetryOption) *Retrier {
	r := NewRetrier(opts...)
	r.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return r
}

func TestRetrier_Defaults(t *testing.T) {
	r := NewRetrier()
	if r.maxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", r.maxAttempts)
	}
	if r.delay != 2*time.Second {
		t.Errorf("expected 2s delay, got %s", r.delay)
	}
}

func TestRetrier_SucceedsOnThirdAttempt(t *testing.T) {
	var sleeps []time.Duration
	r := newTestRetrier(&sleeps)

	calls := 0
	err := r.Do(context.Background(), OpCommit, func(context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("connection reset"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("expected two 2s pauses, got %v", sleeps)
	}
}

func TestRetrier_ExhaustedReturnsLastErrorUnmodified(t *testing.T) {
	var sleeps []time.Duration
	r := newTestRetrier(&sleeps)

	errs := []error{
		&pgconn.PgError{Code: "08006", Message: "first"},
		&pgconn.PgError{Code: "08006", Message: "second"},
		&pgconn.PgError{Code: "08006", Message: "third"},
	}
	calls := 0
	err := r.Do(context.Background(), OpAdd, func(context.Context) error {
		e := errs[calls]
		calls++
		return e
	})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if err != errs[2] {
		t.Errorf("expected the third error unmodified, got %v", err)
	}
	if len(sleeps) != 2 {
		t.Errorf("expected no pause after the final attempt, got %d pauses", len(sleeps))
	}
}

func TestRetrier_DoesNotRetryPermanentErrors(t *testing.T) {
	var sleeps []time.Duration
	r := newTestRetrier(&sleeps)

	permanent := &pgconn.PgError{Code: CodeForeignKeyViolation}
	calls := 0
	err := r.Do(context.Background(), OpCommit, func(context.Context) error {
		calls++
		return permanent
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if err != permanent {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestRetrier_Options(t *testing.T) {
	var sleeps []time.Duration
	boom := errors.New("boom")
	r := newTestRetrier(&sleeps,
		WithMaxAttempts(5),
		WithDelay(10*time.Millisecond),
		WithRetryable(func(err error) bool { return errors.Is(err, boom) }),
	)

	calls := 0
	err := r.Do(context.Background(), "custom", func(context.Context) error {
		calls++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if calls != 5 {
		t.Errorf("expected 5 calls, got %d", calls)
	}
	if len(sleeps) != 4 || sleeps[0] != 10*time.Millisecond {
		t.Errorf("unexpected pauses %v", sleeps)
	}
}

func TestRetrier_StopsWhenContextCancelled(t *testing.T) {
	r := NewRetrier(WithDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	transient := Transient(errors.New("timeout"))
	err := r.Do(ctx, OpRefresh, func(context.Context) error {
		calls++
		cancel()
		return transient
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if err != transient {
		t.Errorf("expected last error, got %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked", Transient(errors.New("x")), true},
		{"connection exception class", &pgconn.PgError{Code: "08001"}, true},
		{"admin shutdown", &pgconn.PgError{Code: CodeAdminShutdown}, true},
		{"serialization failure", &pgconn.PgError{Code: CodeSerializationFailure}, true},
		{"wrapped connection exception", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "08003"}), true},
		{"net error", timeoutErr{}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"foreign key violation", &pgconn.PgError{Code: CodeForeignKeyViolation}, false},
		{"no rows", pgx.ErrNoRows, false},
		{"plain", errors.New("bad input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	if !errors.Is(NotFound(pgx.ErrNoRows), ErrNotFound) {
		t.Error("expected pgx.ErrNoRows to map to ErrNotFound")
	}
	other := errors.New("other")
	if NotFound(other) != other {
		t.Error("expected other errors to pass through")
	}
}

func TestForeignKeyViolation(t *testing.T) {
	fk := &pgconn.PgError{Code: CodeForeignKeyViolation, ConstraintName: "observations_subject_reference_fkey"}
	if got := ForeignKeyViolation(fmt.Errorf("commit: %w", fk)); got != fk {
		t.Errorf("expected wrapped fk error to be found, got %v", got)
	}
	if ForeignKeyViolation(&pgconn.PgError{Code: "23505"}) != nil {
		t.Error("expected nil for unique violation")
	}
}
