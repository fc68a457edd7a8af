package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/linka/lib/store"
)

// InsertUser saves a new user. It returns store.ErrDuplicate if the email or wallet address is taken.
func (m *Mongo) InsertUser(ctx context.Context, u *store.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	if u.Profile.Categories == nil {
		u.Profile.Categories = []string{}
	}

	if _, err := m.db.Collection(colUsers).InsertOne(ctx, u); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("user %s: %w", u.Email, store.ErrDuplicate)
		}

		return fmt.Errorf("could not insert user in db: %w", err)
	}

	return nil
}

// GetUser finds a user by email.
func (m *Mongo) GetUser(ctx context.Context, email string) (*store.User, error) {
	return m.findUser(ctx, bson.M{"email": email})
}

// GetUserByAddress finds a user by wallet address (checksummed hex).
func (m *Mongo) GetUserByAddress(ctx context.Context, address string) (*store.User, error) {
	return m.findUser(ctx, bson.M{"walletAddress": address})
}

func (m *Mongo) findUser(ctx context.Context, filter bson.M) (*store.User, error) {
	var u store.User
	if err := m.db.Collection(colUsers).FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, fmt.Errorf("could not get user: %w", notFound(err))
	}

	return &u, nil
}

func (m *Mongo) setUser(ctx context.Context, email string, set bson.M) (*store.User, error) {
	set["updatedAt"] = time.Now().UTC()

	var u store.User

	err := m.db.Collection(colUsers).FindOneAndUpdate(ctx,
		bson.M{"email": email},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, fmt.Errorf("could not update user %s: %w", email, notFound(err))
	}

	return &u, nil
}

// UpdateProfile replaces the marketplace profile of a user.
func (m *Mongo) UpdateProfile(ctx context.Context, email string, p store.Profile) (*store.User, error) {
	if p.Categories == nil {
		p.Categories = []string{}
	}

	return m.setUser(ctx, email, bson.M{"profile": p})
}

// LinkFarcaster stores the Farcaster id of a user.
func (m *Mongo) LinkFarcaster(ctx context.Context, email, fid string) (*store.User, error) {
	return m.setUser(ctx, email, bson.M{"farcasterFid": fid})
}

// SetReputation refreshes the cached score of the user owning address. Marketplace counters are left untouched.
func (m *Mongo) SetReputation(ctx context.Context, address string, r store.Reputation) error {
	res, err := m.db.Collection(colUsers).UpdateOne(ctx,
		bson.M{"walletAddress": address},
		bson.M{"$set": bson.M{
			"reputation.score":      r.Score,
			"reputation.source":     r.Source,
			"reputation.lastSynced": r.LastSynced,
		}},
	)
	if err != nil {
		return fmt.Errorf("could not set reputation of %s: %w", address, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("no user with address %s: %w", address, store.ErrNotFound)
	}

	return nil
}

// ListVendors returns a page of vendors sorted by reputation score, and the total number of matches.
func (m *Mongo) ListVendors(ctx context.Context, f store.VendorFilter) ([]store.User, int64, error) {
	filter := bson.M{"profile.isVendor": true}
	if f.Category != "" {
		filter["profile.categories"] = f.Category
	}

	if f.MinReputation > 0 {
		filter["reputation.score"] = bson.M{"$gte": f.MinReputation}
	}

	if f.Page < 1 {
		f.Page = 1
	}

	col := m.db.Collection(colUsers)

	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("could not count vendors: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "reputation.score", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("could not list vendors: %w", err)
	}

	users := []store.User{}
	if err = cur.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("could not decode vendors: %w", err)
	}

	return users, total, nil
}

// StaleReputations returns users whose reputation copy was last synced before the given time.
func (m *Mongo) StaleReputations(ctx context.Context, before time.Time, limit int) ([]store.User, error) {
	cur, err := m.db.Collection(colUsers).Find(ctx,
		bson.M{"walletAddress": bson.M{"$ne": ""}, "reputation.lastSynced": bson.M{"$lt": before}},
		options.Find().SetSort(bson.D{{Key: "reputation.lastSynced", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("could not list stale reputations: %w", err)
	}

	users := []store.User{}
	if err = cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("could not decode users: %w", err)
	}

	return users, nil
}
