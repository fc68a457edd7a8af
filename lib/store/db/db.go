// Package db implements the opening and graceful closing of database connections.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/store/mongo"
	"github.com/tarancss/linka/lib/store/postgres"
)

const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// ErrUnsupported is returned for database types that cannot serve the requested store.
var ErrUnsupported = errors.New("unsupported database type")

// New returns a connection to the mirror database. Only MongoDB holds mirror records.
func New(options, connection, name string) (store.DB, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection, name)
	default:
		return nil, fmt.Errorf("mirror store %q: %w", options, ErrUnsupported)
	}
}

// NewIntentLog returns a connection to the intent log, either a MongoDB collection or a PostgreSQL table.
func NewIntentLog(ctx context.Context, options, connection, name string) (store.IntentLog, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection, name)
	case POSTGRES:
		p, err := postgres.New(connection)
		if err != nil {
			return nil, err
		}

		if err = p.Setup(ctx); err != nil {
			_ = p.ClosePostgres()

			return nil, err
		}

		return p, nil
	default:
		return nil, fmt.Errorf("intent log %q: %w", options, ErrUnsupported)
	}
}

// Close gracefully closes the database connection held by dh.
func Close(dh interface{}) error {
	switch c := dh.(type) {
	case *mongo.Mongo:
		return c.CloseMongo()
	case *postgres.Postgres:
		return c.ClosePostgres()
	}

	return nil
}
