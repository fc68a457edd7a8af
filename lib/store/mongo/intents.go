package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/linka/lib/store"
)

// AddIntent records a new intent.
func (m *Mongo) AddIntent(ctx context.Context, in *store.Intent) error {
	now := time.Now().UTC()
	in.CreatedAt, in.UpdatedAt = now, now

	if _, err := m.db.Collection(colIntents).InsertOne(ctx, in); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("intent %s: %w", in.ID, store.ErrDuplicate)
		}

		return fmt.Errorf("could not insert intent in db: %w", err)
	}

	return nil
}

// UpdateIntent sets the non-empty fields of u and counts one more attempt.
func (m *Mongo) UpdateIntent(ctx context.Context, id string, u store.IntentUpdate) error {
	set := bson.M{"updatedAt": time.Now().UTC()}

	for k, v := range map[string]string{"status": u.Status, "txHash": u.TxHash, "escrowId": u.EscrowID, "error": u.Error} {
		if v != "" {
			set[k] = v
		}
	}

	res, err := m.db.Collection(colIntents).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set, "$inc": bson.M{"attempts": 1}},
	)
	if err != nil {
		return fmt.Errorf("could not update intent %s: %w", id, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("intent %s: %w", id, store.ErrNotFound)
	}

	return nil
}

// GetIntent finds an intent by id.
func (m *Mongo) GetIntent(ctx context.Context, id string) (*store.Intent, error) {
	var in store.Intent
	if err := m.db.Collection(colIntents).FindOne(ctx, bson.M{"_id": id}).Decode(&in); err != nil {
		return nil, fmt.Errorf("could not get intent %s: %w", id, notFound(err))
	}

	return &in, nil
}

// OpenIntents returns intents still pending, submitted or mined that were last touched before the given time, least
// recently touched first.
func (m *Mongo) OpenIntents(ctx context.Context, before time.Time, limit int) ([]store.Intent, error) {
	cur, err := m.db.Collection(colIntents).Find(ctx,
		bson.M{"status": bson.M{"$in": store.OpenStatuses}, "updatedAt": bson.M{"$lt": before}},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("could not list open intents: %w", err)
	}

	ins := []store.Intent{}
	if err = cur.All(ctx, &ins); err != nil {
		return nil, fmt.Errorf("could not decode intents: %w", err)
	}

	return ins, nil
}
