// Package escrow orchestrates the escrow lifecycle across the escrow contracts and the off-chain mirror.
//
// Every state changing operation is recorded in the intent log before the chain is called, and the intent is marked
// confirmed only after both the chain transaction and the mirror write succeed. Intents left open by a crash or a failed
// mirror write are repaired by Repair, which the reconciler service calls on a schedule.
package escrow

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/msg"
	"github.com/tarancss/linka/lib/store"
)

// Timeline descriptions and actors.
const (
	ActorSystem = "system"

	descCreated  = "Escrow created"
	descReleased = "Payment released to seller"
	descRefunded = "Payment refunded to buyer"
	descDisputed = "Dispute filed: "
)

// Operation outcomes reported in metrics.
const (
	outcomeOK          = "ok"
	outcomeInvalid     = "invalid"
	outcomeChain       = "chain_error"
	outcomePersistence = "persistence_error"
	outcomeUnmirrored  = "unmirrored"
	outcomeIntent      = "intent_error"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals // prometheus collectors
		Name: "linka_escrow_operations_total",
		Help: "Escrow operations by outcome.",
	}, []string{"op", "outcome"})
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{ //nolint:gochecknoglobals // prometheus collectors
		Name:    "linka_escrow_operation_seconds",
		Help:    "Duration of escrow operations, chain wait included.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"op"})
)

// EscrowContract is the escrow manager contract.
type EscrowContract interface {
	CreateEscrow(ctx context.Context, seller common.Address, amount *big.Int, token common.Address, deadline *big.Int) (*chain.Receipt, error)
	ReleaseEscrow(ctx context.Context, id chain.EscrowID) (*chain.Receipt, error)
	RefundEscrow(ctx context.Context, id chain.EscrowID) (*chain.Receipt, error)
	DisputeEscrow(ctx context.Context, id chain.EscrowID) (*chain.Receipt, error)
	Escrow(ctx context.Context, id chain.EscrowID) (chain.EscrowView, error)
	Receipt(ctx context.Context, hash string) (*chain.Receipt, error)
	FindCreated(ctx context.Context, fromBlock uint64, seller common.Address, amount *big.Int, token common.Address, deadline *big.Int) (*chain.Receipt, error)
}

// DisputeContract is the dispute resolution contract.
type DisputeContract interface {
	OpenDispute(ctx context.Context, id chain.EscrowID, evidence string) (*chain.Receipt, error)
	AddEvidence(ctx context.Context, id chain.EscrowID, evidence string) (*chain.Receipt, error)
	ResolveDispute(ctx context.Context, id chain.EscrowID, winner common.Address) (*chain.Receipt, error)
	Dispute(ctx context.Context, id chain.EscrowID) (chain.DisputeView, error)
}

// Chain provides the chain wide reads the orchestrator needs.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
}

// Mirror is the part of the mirror store written by the orchestrator.
type Mirror interface {
	InsertTransaction(ctx context.Context, t *store.Transaction) error
	UpdateTransaction(ctx context.Context, escrowID string, u store.TransactionUpdate) (*store.Transaction, error)
}

// Publisher publishes escrow events.
type Publisher interface {
	SendEvent(e msg.Event) error
}

// Orchestrator sequences contract calls with mirror writes.
type Orchestrator struct {
	chain    Chain
	escrows  EscrowContract
	disputes DisputeContract
	db       Mirror
	intents  store.IntentLog
	pub      Publisher
	native   string // symbol of the native coin

	now   func() time.Time
	newID func() string
}

// New returns an Orchestrator. A nil pub discards events.
func New(c Chain, e EscrowContract, d DisputeContract, db Mirror, il store.IntentLog, pub Publisher, nativeSymbol string) *Orchestrator {
	if pub == nil {
		pub = msg.Discard{}
	}

	return &Orchestrator{
		chain:    c,
		escrows:  e,
		disputes: d,
		db:       db,
		intents:  il,
		pub:      pub,
		native:   nativeSymbol,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (o *Orchestrator) publish(kind string, in *store.Intent, mirrored bool) {
	e := msg.Event{
		Kind:     kind,
		EscrowID: in.EscrowID,
		TxHash:   in.TxHash,
		IntentID: in.ID,
		Status:   in.Status,
		Mirrored: mirrored,
		TS:       o.now().UTC(),
	}

	if err := o.pub.SendEvent(e); err != nil {
		log.WithFields(log.Fields{"kind": kind, "intent": in.ID}).WithError(err).Warn("cannot publish escrow event")
	}
}

// setIntent updates the intent in the log and in memory. A failure is logged only: the intent stays open in the log
// and the reconciler will pick it up.
func (o *Orchestrator) setIntent(ctx context.Context, in *store.Intent, u store.IntentUpdate) {
	if u.Status != "" {
		in.Status = u.Status
	}

	if u.TxHash != "" {
		in.TxHash = u.TxHash
	}

	if u.EscrowID != "" {
		in.EscrowID = u.EscrowID
	}

	if u.Error != "" {
		in.Error = u.Error
	}

	if err := o.intents.UpdateIntent(ctx, in.ID, u); err != nil {
		log.WithFields(log.Fields{"intent": in.ID, "status": u.Status}).WithError(err).Error("cannot update intent")
	}
}

func observe(op string, start time.Time, outcome string) {
	opsTotal.WithLabelValues(op, outcome).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
