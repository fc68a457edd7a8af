// Package reputation mirrors the reputation registry. The chain is authoritative: the redis cache and the user
// record hold copies labelled with the time they were read from the chain, refreshed on every successful read, on
// update, and by the reconciler for copies older than the configured age.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/lib/cache"
	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/store"
)

// MaxScore is the highest score accepted by the registry.
const MaxScore = 1000

// Sources of a reputation view.
const (
	SourceChain = "chain"
	SourceCache = "cache"
	SourceUser  = "user"
)

// ErrBadScore is returned for scores above MaxScore.
var ErrBadScore = fmt.Errorf("score must be between 0 and %d", MaxScore)

var readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals // prometheus collectors
	Name: "linka_reputation_reads_total",
	Help: "Reputation reads by the source that served them.",
}, []string{"source"})

// Registry is the reputation registry contract.
type Registry interface {
	UpdateReputation(ctx context.Context, user common.Address, score uint64) (*chain.Receipt, error)
	Reputation(ctx context.Context, user common.Address) (uint64, error)
}

// Cache holds labelled copies of scores.
type Cache interface {
	Get(ctx context.Context, address string) (cache.Entry, bool, error)
	Set(ctx context.Context, address string, score uint64, syncedAt time.Time) error
}

// Users is the part of the mirror store holding the user copies.
type Users interface {
	GetUserByAddress(ctx context.Context, address string) (*store.User, error)
	SetReputation(ctx context.Context, address string, r store.Reputation) error
	StaleReputations(ctx context.Context, before time.Time, limit int) ([]store.User, error)
}

// View is a reputation score and where it came from. Stale is set when the chain could not be read and the score is
// a copy as of LastSynced.
type View struct {
	Address    string    `json:"address"`
	Score      uint64    `json:"score"`
	Source     string    `json:"source"`
	LastSynced time.Time `json:"lastSynced"`
	Stale      bool      `json:"stale"`
}

// Service reads and updates reputation scores.
type Service struct {
	reg   Registry
	cache Cache
	users Users
	now   func() time.Time
}

// New returns a Service. cache and users may be nil.
func New(reg Registry, c Cache, users Users) *Service {
	return &Service{reg: reg, cache: c, users: users, now: time.Now}
}

// Update writes score to the registry and refreshes the copies.
func (s *Service) Update(ctx context.Context, address string, score uint64) (*chain.Receipt, error) {
	addr, err := chain.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	if score > MaxScore {
		return nil, fmt.Errorf("%w: got %d", ErrBadScore, score)
	}

	rec, err := s.reg.UpdateReputation(ctx, addr, score)
	if err != nil {
		return nil, err
	}

	s.refresh(ctx, addr, score)

	log.WithFields(log.Fields{"func": "Update", "address": addr.Hex(), "score": score, "hash": rec.TxHash}).Info("reputation updated")

	return rec, nil
}

// Get reads the score from the chain. When the chain cannot be read the freshest copy is returned with Stale set;
// with no copy at all the chain error is returned.
func (s *Service) Get(ctx context.Context, address string) (View, error) {
	addr, err := chain.ParseAddress(address)
	if err != nil {
		return View{}, err
	}

	score, err := s.reg.Reputation(ctx, addr)
	if err == nil {
		at := s.refresh(ctx, addr, score)
		readsTotal.WithLabelValues(SourceChain).Inc()

		return View{Address: addr.Hex(), Score: score, Source: SourceChain, LastSynced: at}, nil
	}

	l := log.WithFields(log.Fields{"func": "Get", "address": addr.Hex()})
	l.WithError(err).Warn("cannot read reputation from chain, trying copies")

	if v, ok := s.copy(ctx, addr); ok {
		readsTotal.WithLabelValues(v.Source).Inc()

		return v, nil
	}

	return View{}, fmt.Errorf("no reputation available for %s: %w", addr.Hex(), err)
}

// copy returns the freshest labelled copy of the score of addr.
func (s *Service) copy(ctx context.Context, addr common.Address) (View, bool) {
	var best View

	found := false

	if s.cache != nil {
		e, ok, err := s.cache.Get(ctx, addr.Hex())
		if err != nil {
			log.WithField("address", addr.Hex()).WithError(err).Warn("cannot read reputation cache")
		}

		if ok {
			best = View{Address: addr.Hex(), Score: e.Score, Source: SourceCache, LastSynced: e.SyncedAt, Stale: true}
			found = true
		}
	}

	if s.users != nil {
		u, err := s.users.GetUserByAddress(ctx, addr.Hex())
		if err == nil && u.Reputation.Source == store.SourceChain && (!found || u.Reputation.LastSynced.After(best.LastSynced)) {
			best = View{Address: addr.Hex(), Score: u.Reputation.Score, Source: SourceUser, LastSynced: u.Reputation.LastSynced, Stale: true}
			found = true
		}
	}

	return best, found
}

// refresh writes score to the copies and returns the sync time. Failures are logged only: the chain keeps the truth.
func (s *Service) refresh(ctx context.Context, addr common.Address, score uint64) time.Time {
	at := s.now().UTC()
	l := log.WithFields(log.Fields{"func": "refresh", "address": addr.Hex()})

	if s.cache != nil {
		if err := s.cache.Set(ctx, addr.Hex(), score, at); err != nil {
			l.WithError(err).Warn("cannot cache reputation")
		}
	}

	if s.users != nil {
		err := s.users.SetReputation(ctx, addr.Hex(), store.Reputation{Score: score, Source: store.SourceChain, LastSynced: at})

		switch {
		case errors.Is(err, store.ErrNotFound):
			l.Debug("address is not a linka user")
		case err != nil:
			l.WithError(err).Warn("cannot store reputation copy")
		}
	}

	return at
}

// SyncStale refreshes up to limit user copies last synced more than olderThan ago and returns how many were
// refreshed. Users whose score cannot be read are skipped.
func (s *Service) SyncStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if s.users == nil {
		return 0, nil
	}

	users, err := s.users.StaleReputations(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	n := 0

	for i := range users {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		if !common.IsHexAddress(users[i].WalletAddress) {
			continue
		}

		addr := common.HexToAddress(users[i].WalletAddress)

		score, err := s.reg.Reputation(ctx, addr)
		if err != nil {
			log.WithFields(log.Fields{"func": "SyncStale", "address": addr.Hex()}).WithError(err).Warn("cannot read reputation")

			continue
		}

		s.refresh(ctx, addr, score)
		n++
	}

	return n, nil
}
