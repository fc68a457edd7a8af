// Package store defines the persistence interfaces of the Linka services: the off-chain mirror of escrows and users
// (DB) and the intent log used as a transactional outbox around chain calls (IntentLog).
package store

import (
	"context"
	"errors"
	"time"
)

// DB holds the off-chain mirror records. The smart contracts own the authoritative state; these records are kept for
// query convenience and marketplace metadata.
type DB interface {
	// transaction mirror
	InsertTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, escrowID string, u TransactionUpdate) (*Transaction, error)
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListTransactions(ctx context.Context, email string, f TxFilter) ([]Transaction, error)
	// users and vendors
	InsertUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, email string) (*User, error)
	GetUserByAddress(ctx context.Context, address string) (*User, error)
	UpdateProfile(ctx context.Context, email string, p Profile) (*User, error)
	LinkFarcaster(ctx context.Context, email, fid string) (*User, error)
	SetReputation(ctx context.Context, address string, r Reputation) error
	ListVendors(ctx context.Context, f VendorFilter) ([]User, int64, error)
	StaleReputations(ctx context.Context, before time.Time, limit int) ([]User, error)
}

// IntentLog records every chain operation before it is attempted so that a crash or a failed mirror write can be
// repaired later.
type IntentLog interface {
	AddIntent(ctx context.Context, in *Intent) error
	UpdateIntent(ctx context.Context, id string, u IntentUpdate) error
	GetIntent(ctx context.Context, id string) (*Intent, error)
	OpenIntents(ctx context.Context, before time.Time, limit int) ([]Intent, error)
}

// Errors returned.
var (
	ErrNotFound  = errors.New("record was not found in store")
	ErrDuplicate = errors.New("record already exists in store")
)
