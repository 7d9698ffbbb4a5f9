package db

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	DBConnKey  contextKey = "db_conn"
	SessionKey contextKey = "db_session"
)

// Querier is the query surface shared by pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Entity is a record that knows how to persist itself.
type Entity interface {
	EntityKey() string
	// Save inserts the record or replaces the stored row with the same key.
	Save(ctx context.Context, q Querier) error
	Remove(ctx context.Context, q Querier) error
	// Load overwrites the in-memory record with the stored row.
	Load(ctx context.Context, q Querier) error
}

// Session is a unit of work scoped to one request. Add and Delete stage
// changes; Commit applies them atomically.
type Session interface {
	Add(ctx context.Context, e Entity) error
	Delete(ctx context.Context, e Entity) error
	Commit(ctx context.Context) error
	Refresh(ctx context.Context, e Entity) error
}

type sessionConn interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// leasedConn is a connection borrowed from the pool.
type leasedConn interface {
	sessionConn
	IsClosed() bool
	Release()
}

type pooledConn struct {
	*pgxpool.Conn
}

func (c pooledConn) IsClosed() bool { return c.Conn.Conn().IsClosed() }

type acquireFunc func(ctx context.Context) (leasedConn, error)

func poolAcquirer(pool *pgxpool.Pool) acquireFunc {
	return func(ctx context.Context) (leasedConn, error) {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return pooledConn{c}, nil
	}
}

// lease holds the connection a request works on. A connection that the
// server or network has closed is released on the next get and replaced by
// a fresh one. Not safe for concurrent use.
type lease struct {
	acquire acquireFunc
	conn    leasedConn
}

func (l *lease) get(ctx context.Context) (sessionConn, error) {
	if l.conn != nil && l.conn.IsClosed() {
		l.conn.Release()
		l.conn = nil
	}
	if l.conn == nil {
		c, err := l.acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
		l.conn = c
	}
	return l.conn, nil
}

func (l *lease) release() {
	if l.conn != nil {
		l.conn.Release()
		l.conn = nil
	}
}

type opKind int

const (
	opSave opKind = iota
	opRemove
)

type pendingOp struct {
	kind   opKind
	entity Entity
}

type pgSession struct {
	lease   *lease
	pending []pendingOp
}

func newSession(l *lease) *pgSession {
	return &pgSession{lease: l}
}

// NewPoolSession returns a Session drawing its connection from pool, and a
// func that returns the connection to the pool. Staged changes are kept
// until a Commit succeeds, and every Commit or Refresh runs on a live
// connection, so a call that failed on a dropped connection can be retried.
func NewPoolSession(pool *pgxpool.Pool) (Session, func()) {
	l := &lease{acquire: poolAcquirer(pool)}
	return newSession(l), l.release
}

func (s *pgSession) Add(_ context.Context, e Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	s.pending = append(s.pending, pendingOp{kind: opSave, entity: e})
	return nil
}

func (s *pgSession) Delete(_ context.Context, e Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	s.pending = append(s.pending, pendingOp{kind: opRemove, entity: e})
	return nil
}

func (s *pgSession) Commit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	conn, err := s.lease.get(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, op := range s.pending {
		var err error
		switch op.kind {
		case opSave:
			err = op.entity.Save(ctx, tx)
		case opRemove:
			err = op.entity.Remove(ctx, tx)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *pgSession) Refresh(ctx context.Context, e Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	conn, err := s.lease.get(ctx)
	if err != nil {
		return err
	}
	return e.Load(ctx, conn)
}

// SessionMiddleware acquires one pooled connection per request, exposes it
// and a Session leasing it through the request context, and releases it
// when the handler returns. A connection that drops mid-request is replaced
// rather than reused.
func SessionMiddleware(pool *pgxpool.Pool, retrier *Retrier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			l := &lease{acquire: poolAcquirer(pool)}
			err := retrier.Do(ctx, "acquire", func(ctx context.Context) error {
				_, err := l.get(ctx)
				return err
			})
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "database unavailable").SetInternal(err)
			}
			defer l.release()

			ctx = context.WithValue(ctx, DBConnKey, l)
			ctx = WithSession(ctx, newSession(l))
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// SessionFromContext returns the request's Session or ErrNoSession.
func SessionFromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(SessionKey).(Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// QuerierFromContext returns the request's live connection, falling back
// to pool outside SessionMiddleware or when no connection can be leased.
func QuerierFromContext(ctx context.Context, pool *pgxpool.Pool) Querier {
	if l, ok := ctx.Value(DBConnKey).(*lease); ok {
		if conn, err := l.get(ctx); err == nil {
			return conn
		}
	}
	return pool
}
