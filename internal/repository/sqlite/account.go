package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/adsabs/harbour/internal/model"
	"github.com/adsabs/harbour/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

// FindByUID retrieves the link record for an absolute uid.
// Returns repository.ErrNotFound if no record exists.
func (db *DB) FindByUID(ctx context.Context, uid int64) (*model.LinkedAccount, error) {
	return findByUID(ctx, db.conn, uid)
}

// querier covers both *sql.DB and *sql.Tx so the same lookup serves plain
// reads and the read half of an upsert transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findByUID(ctx context.Context, q querier, uid int64) (*model.LinkedAccount, error) {
	var a model.LinkedAccount
	err := q.QueryRowContext(ctx,
		`SELECT id, absolute_uid, classic_email, classic_mirror, classic_cookie,
		        twopointoh_email, created_at, updated_at
		 FROM accounts WHERE absolute_uid = ?`,
		uid,
	).Scan(
		&a.ID,
		&a.AbsoluteUID,
		&a.ClassicEmail,
		&a.ClassicMirror,
		&a.ClassicCookie,
		&a.TwoPointOhEmail,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: getting account for uid %d: %w", uid, err)
	}
	return &a, nil
}

// UpsertClassic writes the classic email/mirror/cookie trio for uid, creating
// the record on first link. The exists-check and the write share one immediate
// transaction so concurrent links for the same uid serialize; a failure on any
// path rolls back and leaves the previous state intact.
func (db *DB) UpsertClassic(ctx context.Context, uid int64, email, mirror, cookie string) error {
	return db.upsert(ctx, uid, func(tx *sql.Tx, existing *model.LinkedAccount, now time.Time) error {
		if existing != nil {
			_, err := tx.ExecContext(ctx,
				`UPDATE accounts
				 SET classic_email = ?, classic_mirror = ?, classic_cookie = ?, updated_at = ?
				 WHERE absolute_uid = ?`,
				email, mirror, cookie, now, uid,
			)
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts
			   (id, absolute_uid, classic_email, classic_mirror, classic_cookie, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			xid.New().String(), uid, email, mirror, cookie, now, now,
		)
		return err
	})
}

// UpsertTwoPointOh writes only the 2.0 email for uid, preserving any stored
// classic fields.
func (db *DB) UpsertTwoPointOh(ctx context.Context, uid int64, email string) error {
	return db.upsert(ctx, uid, func(tx *sql.Tx, existing *model.LinkedAccount, now time.Time) error {
		if existing != nil {
			_, err := tx.ExecContext(ctx,
				`UPDATE accounts SET twopointoh_email = ?, updated_at = ? WHERE absolute_uid = ?`,
				email, now, uid,
			)
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, absolute_uid, twopointoh_email, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			xid.New().String(), uid, email, now, now,
		)
		return err
	})
}

// upsert runs the exists-check and the caller's write inside one transaction
// with commit-or-rollback on every exit path.
func (db *DB) upsert(ctx context.Context, uid int64, write func(tx *sql.Tx, existing *model.LinkedAccount, now time.Time) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning upsert for uid %d: %w", uid, err)
	}
	defer tx.Rollback()

	existing, err := findByUID(ctx, tx, uid)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if err := write(tx, existing, time.Now().UTC()); err != nil {
		return fmt.Errorf("sqlite: writing account for uid %d: %w", uid, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing upsert for uid %d: %w", uid, err)
	}
	return nil
}
