package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"letterduel/internal/engine"
)

// notifyChannel carries the room code of every committed patch.
const notifyChannel = "room_changes"

// Postgres stores room documents as JSONB rows and pushes change
// notifications over LISTEN/NOTIFY, so subscribers on different relay
// processes observe the same document stream.
type Postgres struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS rooms (
		code TEXT PRIMARY KEY,
		doc  JSONB NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating rooms table: %w", err)
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// Patch applies a read-modify-write under a row lock, then notifies every
// listener. The row lock serializes concurrent patches to one room; the
// per-field merge inside engine.Apply keeps them last-writer-wins.
func (s *Postgres) Patch(ctx context.Context, code string, p engine.Patch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning patch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var base engine.Room
	var data []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM rooms WHERE code = $1 FOR UPDATE`, code).Scan(&data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Absent document: the patch starts from the zero document.
	case err != nil:
		return fmt.Errorf("reading room %s: %w", code, err)
	default:
		if err := json.Unmarshal(data, &base); err != nil {
			return fmt.Errorf("decoding room %s: %w", code, err)
		}
	}

	next, err := engine.Apply(base, p)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding room %s: %w", code, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO rooms (code, doc) VALUES ($1, $2)
		 ON CONFLICT (code) DO UPDATE SET doc = EXCLUDED.doc`, code, doc); err != nil {
		return fmt.Errorf("writing room %s: %w", code, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, code); err != nil {
		return fmt.Errorf("notifying room %s: %w", code, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing room %s: %w", code, err)
	}
	return nil
}

func (s *Postgres) Subscribe(ctx context.Context, code string, fn SnapshotFunc) (Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening on %s: %w", notifyChannel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer conn.Release()

		doc, err := s.fetch(subCtx, code)
		if err != nil {
			s.log.Warn("initial room fetch failed", zap.String("code", code), zap.Error(err))
		} else {
			fn(doc)
		}

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				// Cancelled or connection lost; either way delivery ends.
				return
			}
			if n.Payload != code {
				continue
			}
			doc, err := s.fetch(subCtx, code)
			if err != nil {
				s.log.Warn("room fetch failed", zap.String("code", code), zap.Error(err))
				continue
			}
			fn(doc)
		}
	}()

	return &pgSubscription{cancel: cancel}, nil
}

func (s *Postgres) fetch(ctx context.Context, code string) (*engine.Room, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM rooms WHERE code = $1`, code).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var room engine.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

type pgSubscription struct {
	cancel context.CancelFunc
}

func (s *pgSubscription) Cancel() {
	s.cancel()
}
