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

// InsertTransaction saves a new escrow mirror. It returns store.ErrDuplicate if the escrow or transaction id is
// already mirrored.
func (m *Mongo) InsertTransaction(ctx context.Context, t *store.Transaction) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	t.UpdatedAt = now

	if _, err := m.db.Collection(colTransactions).InsertOne(ctx, t); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("transaction %s: %w", t.EscrowID, store.ErrDuplicate)
		}

		return fmt.Errorf("could not insert transaction in db: %w", err)
	}

	return nil
}

// UpdateTransaction moves the transaction mirroring escrowID to a new status and appends to its timeline. A record
// already in that status is returned untouched, so applying the same update twice adds a single timeline entry. No
// record is created when there is none: store.ErrNotFound is returned instead.
func (m *Mongo) UpdateTransaction(ctx context.Context, escrowID string, u store.TransactionUpdate) (*store.Transaction, error) {
	set := bson.M{"status": u.Status, "updatedAt": time.Now().UTC()}
	if u.Dispute != nil {
		set["dispute"] = u.Dispute
	}

	var t store.Transaction

	err := m.db.Collection(colTransactions).FindOneAndUpdate(ctx,
		bson.M{"escrowId": escrowID, "status": bson.M{"$ne": u.Status}},
		bson.M{"$set": set, "$push": bson.M{"timeline": u.Entry}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if errors.Is(err, mgo.ErrNoDocuments) {
		// either there is no record or it is already in the target status
		err = m.db.Collection(colTransactions).FindOne(ctx, bson.M{"escrowId": escrowID}).Decode(&t)
	}

	if err != nil {
		return nil, fmt.Errorf("could not update transaction %s: %w", escrowID, notFound(err))
	}

	return &t, nil
}

// GetTransaction finds a transaction by transaction id or escrow id.
func (m *Mongo) GetTransaction(ctx context.Context, id string) (*store.Transaction, error) {
	var t store.Transaction

	err := m.db.Collection(colTransactions).FindOne(ctx, bson.M{"$or": bson.A{
		bson.M{"transactionId": id},
		bson.M{"escrowId": id},
	}}).Decode(&t)
	if err != nil {
		return nil, fmt.Errorf("could not get transaction %s: %w", id, notFound(err))
	}

	return &t, nil
}

// ListTransactions returns the transactions where email is buyer or seller, newest first.
func (m *Mongo) ListTransactions(ctx context.Context, email string, f store.TxFilter) ([]store.Transaction, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyerEmail": email}, bson.M{"sellerEmail": email}}}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	if f.Type != "" {
		filter["type"] = f.Type
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := m.db.Collection(colTransactions).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list transactions: %w", err)
	}

	txs := []store.Transaction{}
	if err = cur.All(ctx, &txs); err != nil {
		return nil, fmt.Errorf("could not decode transactions: %w", err)
	}

	return txs, nil
}
