// Package db is the ingestion worker's gateway onto the relational store:
// a fixed set of parameterized operations against stored procedures and
// direct column updates, plus a composable wrapper that attributes a
// failed work function's error to a file_id.
//
// Grounded on the original lega.utils.db module (Status enum, the
// insert_file/set_error call shapes) and on the teacher's
// db/postgres_pgx.go for the pgx/pgxpool connection shape — chosen over
// the teacher's own GORM usage because the spec calls for fixed
// parameterized statements against stored procedures, not ORM models.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/neicnordic/ingest-worker/internal/ingesterr"
	"github.com/neicnordic/ingest-worker/internal/model"
	"github.com/neicnordic/ingest-worker/internal/retry"
)

// conn is the subset of *pgxpool.Pool the gateway needs. Declared as an
// interface so tests can substitute a fake without a real database.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// pgconnCommandTag avoids importing pgconn just for its tag type in the
// conn interface; callers that only need success/failure can ignore it.
type pgconnCommandTag = interface{}

// pgxPool adapts *pgxpool.Pool to conn.
type pgxPool struct {
	pool *pgxpool.Pool
}

func (p *pgxPool) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

func (p *pgxPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *pgxPool) Close() {
	p.pool.Close()
}

// Gateway is the DB gateway. The zero value is not usable; build one with
// Connect.
type Gateway struct {
	conn     conn
	hostname string
}

// Connect opens the pool under a bounded retry (matching db.try /
// db.try_interval from config). The connection is made eagerly: the pool
// is created and pinged before Connect returns, not on first use.
// connString typically comes from
// config.Store.GetSensitive("db", "connection") so it may originate from
// a one-shot secret file.
func Connect(ctx context.Context, connString string, attempts int, interval time.Duration) (*Gateway, error) {
	var pool *pgxpool.Pool
	err := retry.Do("DB connection", attempts, interval, isConnErrRetryable, nil, func() error {
		p, poolErr := pgxpool.New(ctx, connString)
		if poolErr != nil {
			return poolErr
		}
		if pingErr := p.Ping(ctx); pingErr != nil {
			p.Close()
			return pingErr
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	hostname, hErr := os.Hostname()
	if hErr != nil {
		hostname = "unknown"
	}

	return &Gateway{conn: &pgxPool{pool: pool}, hostname: hostname}, nil
}

func isConnErrRetryable(error) bool { return true }

// Close releases the underlying connection pool.
func (g *Gateway) Close() {
	g.conn.Close()
}

// InsertFile creates a file row in state model.StatusReceived via the insert_file
// stored procedure and returns the assigned file_id. The original source
// carries a richer six-argument insert_file (with checksums) that this
// worker does not use; only the two-argument form is wired here.
func (g *Gateway) InsertFile(ctx context.Context, filepath, userID string) (int64, error) {
	var fileID int64
	row := g.conn.QueryRow(ctx, `SELECT insert_file($1, $2)`, filepath, userID)
	if err := row.Scan(&fileID); err != nil {
		return 0, fmt.Errorf("insert_file(%s, %s): %w", filepath, userID, err)
	}
	return fileID, nil
}

// MarkInProgress transitions file_id's status to model.StatusInProgress.
func (g *Gateway) MarkInProgress(ctx context.Context, fileID int64) error {
	_, err := g.conn.Exec(ctx, `UPDATE files SET status = $1 WHERE id = $2`, string(model.StatusInProgress), fileID)
	if err != nil {
		return fmt.Errorf("mark_in_progress(%d): %w", fileID, err)
	}
	return nil
}

// SetInfo persists the vault location, size, and full header-as-hex for
// file_id. It does not change status.
func (g *Gateway) SetInfo(ctx context.Context, fileID int64, vaultPath string, vaultSize int64, headerHex string) error {
	_, err := g.conn.Exec(ctx,
		`UPDATE files SET vault_path = $1, vault_size = $2, header = $3 WHERE id = $4`,
		vaultPath, vaultSize, headerHex, fileID)
	if err != nil {
		return fmt.Errorf("set_info(%d): %w", fileID, err)
	}
	return nil
}

// SetError inserts an error row for fileID via the insert_error stored
// procedure. The message is prefixed with the worker's hostname and the
// cause's concrete error-class name, exactly as the original's set_error
// does ("[hostname][ErrorClassName] message"), using
// error.__class__.__name__ rather than the wrapper type's name.
func (g *Gateway) SetError(ctx context.Context, fileID int64, cause error) error {
	fromUser := false
	className := fmt.Sprintf("%T", cause)
	unwrapped := cause
	var fu *ingesterr.FromUser
	if errors.As(cause, &fu) {
		fromUser = true
		className = fu.ClassName
		unwrapped = fu.Cause
	} else if _, ok := cause.(*ingesterr.RejectMessage); ok {
		className = "RejectMessage"
	}

	message := fmt.Sprintf("[%s][%s] %s", g.hostname, className, unwrapped.Error())

	_, err := g.conn.Exec(ctx, `SELECT insert_error($1, $2, $3)`, fileID, message, fromUser)
	if err != nil {
		return fmt.Errorf("set_error(%d): %w", fileID, err)
	}
	return nil
}

// CatchError wraps work so that any error it returns is first attributed
// to the file_id found in data (under the key "file_id"), via SetError,
// then re-raised unchanged. It never swallows the error.
func (g *Gateway) CatchError(work func(ctx context.Context, data map[string]any) error) func(context.Context, map[string]any) error {
	return func(ctx context.Context, data map[string]any) error {
		err := work(ctx, data)
		if err == nil {
			return nil
		}
		if rawID, ok := data["file_id"]; ok {
			if fileID, ok := toInt64(rawID); ok {
				if setErr := g.SetError(ctx, fileID, err); setErr != nil {
					logrus.WithError(setErr).Error("failed to record error for file_id")
				}
			}
		}
		return err
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
