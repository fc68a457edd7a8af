// Package api implements the Linka REST service.
//
// The service exposes the escrow lifecycle (create, release, refund, dispute, get and the dispute pathway), the
// custodial identities and their wallets, vendor discovery, the transaction mirror, direct payments and reputation.
// Every reply is a JSON envelope {success, data, error}.
package api

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/escrow"
	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/wallet"
	"github.com/tarancss/linka/reputation"
)

// Version is reported by the health route.
const Version = "1.0.0"

// Escrows runs the escrow lifecycle.
type Escrows interface {
	Create(ctx context.Context, r escrow.CreateRequest) (*escrow.CreateResult, error)
	Release(ctx context.Context, escrowID string) (*escrow.Result, error)
	Refund(ctx context.Context, escrowID string) (*escrow.Result, error)
	Dispute(ctx context.Context, escrowID, reason string, evidence []string) (*escrow.Result, error)
	Get(ctx context.Context, escrowID string) (chain.EscrowView, error)
	OpenDispute(ctx context.Context, escrowID, evidence string) (*escrow.Result, error)
	AddEvidence(ctx context.Context, escrowID, evidence string) (*escrow.Result, error)
	ResolveDispute(ctx context.Context, escrowID, winner string) (*escrow.Result, error)
	GetDispute(ctx context.Context, escrowID string) (chain.DisputeView, error)
}

// Reputations reads and updates reputation scores.
type Reputations interface {
	Get(ctx context.Context, address string) (reputation.View, error)
	Update(ctx context.Context, address string, score uint64) (*chain.Receipt, error)
}

// Payments makes direct payments.
type Payments interface {
	MakePayment(ctx context.Context, payee common.Address, amount *big.Int, token common.Address) (*chain.Receipt, error)
}

// Keystore creates and opens custodial wallets.
type Keystore interface {
	CreateWallet(secret string) (wallet.Wallet, error)
	Balance(ctx context.Context, p wallet.BalanceReader, ciphertext, secret, token string) (wallet.Balance, error)
}

// Deps are the collaborators of the service. Balances may be nil, in which case balances are reported unknown.
type Deps struct {
	Escrows     Escrows
	Reputations Reputations
	Payments    Payments
	DB          store.DB
	Keystore    Keystore
	Balances    wallet.BalanceReader
}

// Options configure the http surface.
type Options struct {
	CORSOrigins []string
	RateLimit   int // requests per window per client address, 0 disables rate limiting
	RateWindow  int // seconds
	ChainWait   int // seconds a handler may block on a receipt, writes are allowed that long plus the base timeout
}

// Service contains the data necessary to deliver the REST API.
type Service struct {
	Deps
	opts Options

	s  *http.Server  // http server
	ss *http.Server  // https server
	sc chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Service.
func New(d Deps, opts Options) *Service {
	return &Service{Deps: d, opts: opts, sc: make(chan struct{})}
}

// Stop shuts down the http servers implementing the RESTful API. Closing the stores and the broker is up to the
// caller.
func (s *Service) Stop() {
	if s.s != nil {
		if err := s.s.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("Error in http server shutdown")
		}
	}

	if s.ss != nil {
		if err := s.ss.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("Error in https server shutdown")
		}
	}

	close(s.sc) // indicate shutdowns have finished
}
