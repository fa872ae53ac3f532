package repository

import (
	"context"
	"errors"

	"github.com/adsabs/harbour/internal/model"
)

// ErrNotFound is returned by FindByUID when no record exists for the uid.
// The orchestrator maps it to the caller-visible NoLinkedAccount kind; the
// store itself does not know which legacy system the caller was asking about.
var ErrNotFound = errors.New("repository: account not found")

// AccountRepository is the only path to the persisted link records. The
// orchestrator never runs ad-hoc queries; everything goes through this
// contract.
//
// Both upserts are atomic: the exists-check and the write happen inside one
// transaction, so two concurrent link attempts for the same uid serialize
// instead of interleaving into a half-written record.
type AccountRepository interface {
	// FindByUID returns the record for uid, or ErrNotFound if none exists.
	FindByUID(ctx context.Context, uid int64) (*model.LinkedAccount, error)

	// UpsertClassic writes the classic trio (email, mirror, cookie) together,
	// creating the record on first link and updating it in place afterwards.
	// The 2.0 email, if any, is left untouched.
	UpsertClassic(ctx context.Context, uid int64, email, mirror, cookie string) error

	// UpsertTwoPointOh writes only the 2.0 email, preserving any classic
	// fields already stored.
	UpsertTwoPointOh(ctx context.Context, uid int64, email string) error
}
