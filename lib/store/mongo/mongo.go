// Package mongo implements the store interfaces for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/linka/lib/store"
)

// Collection names.
const (
	colTransactions = "transactions"
	colUsers        = "users"
	colIntents      = "intents"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

// New returns a Mongo client connection to the database name at the specified MongoDB uri.
func New(uri, name string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	m := &Mongo{c: c, db: c.Database(name)}
	if err = m.EnsureIndexes(ctx); err != nil {
		_ = c.Disconnect(context.Background())

		return nil, err
	}

	return m, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// EnsureIndexes creates the indexes the services rely on. Escrow ids and transaction ids are unique, as are user
// emails and wallet addresses.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	idx := map[string][]mgo.IndexModel{
		colTransactions: {
			{Keys: bson.D{{Key: "transactionId", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "escrowId", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "buyerEmail", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "sellerEmail", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "walletAddress", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "profile.isVendor", Value: 1}, {Key: "reputation.score", Value: -1}}},
			{Keys: bson.D{{Key: "profile.categories", Value: 1}}},
			{Keys: bson.D{{Key: "reputation.lastSynced", Value: 1}}},
		},
		colIntents: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
		},
	}

	for col, models := range idx {
		if _, err := m.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("cannot create indexes on %s: %w", col, err)
		}
	}

	return nil
}

// isDuplicate reports whether err is a unique index violation.
func isDuplicate(err error) bool {
	var we mgo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}

	var ce mgo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == 11000
	}

	return false
}

func notFound(err error) error {
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.ErrNotFound
	}

	return err
}
