package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/msg"
	"github.com/tarancss/linka/lib/store"
)

// The dispute pathway is driven on chain only. Resolving a dispute leaves the mirror record disputed.

// OpenDispute opens a dispute for the escrow in the dispute resolution contract.
func (o *Orchestrator) OpenDispute(ctx context.Context, escrowID, evidence string) (*Result, error) {
	return o.disputeTx(ctx, "openDispute", msg.KindOpened, escrowID, func(id chain.EscrowID) (*chain.Receipt, error) {
		return o.disputes.OpenDispute(ctx, id, strings.TrimSpace(evidence))
	})
}

// AddEvidence appends evidence to an open dispute.
func (o *Orchestrator) AddEvidence(ctx context.Context, escrowID, evidence string) (*Result, error) {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return nil, invalid("evidence", "is required")
	}

	return o.disputeTx(ctx, "addEvidence", msg.KindEvidence, escrowID, func(id chain.EscrowID) (*chain.Receipt, error) {
		return o.disputes.AddEvidence(ctx, id, evidence)
	})
}

// ResolveDispute resolves the dispute in favour of winner, who must be the buyer or the seller on chain.
func (o *Orchestrator) ResolveDispute(ctx context.Context, escrowID, winner string) (*Result, error) {
	w, err := chain.ParseAddress(winner)
	if err != nil {
		return nil, invalid("winner", "%v", err)
	}

	return o.disputeTx(ctx, "resolveDispute", msg.KindResolved, escrowID, func(id chain.EscrowID) (*chain.Receipt, error) {
		return o.disputes.ResolveDispute(ctx, id, w)
	})
}

// GetDispute reads the dispute of the escrow from the chain.
func (o *Orchestrator) GetDispute(ctx context.Context, escrowID string) (chain.DisputeView, error) {
	id, err := chain.ParseEscrowID(escrowID)
	if err != nil {
		return chain.DisputeView{}, invalid("escrowId", "%v", err)
	}

	v, err := o.disputes.Dispute(ctx, id)
	if err != nil {
		return v, err
	}

	if v.Initiator == (common.Address{}).Hex() {
		return v, fmt.Errorf("dispute %s: %w", escrowID, store.ErrNotFound)
	}

	return v, nil
}

func (o *Orchestrator) disputeTx(ctx context.Context, op, kind, escrowID string, tx func(chain.EscrowID) (*chain.Receipt, error)) (*Result, error) {
	start := o.now()
	l := log.WithFields(log.Fields{"func": op, "escrowId": escrowID})

	id, err := chain.ParseEscrowID(escrowID)
	if err != nil {
		observe(op, start, outcomeInvalid)

		return nil, invalid("escrowId", "%v", err)
	}

	rec, err := tx(id)
	if err != nil {
		observe(op, start, outcomeChain)
		l.WithError(err).Error("dispute transaction failed")

		return nil, err
	}

	observe(op, start, outcomeOK)
	l.WithField("hash", rec.TxHash).Info("dispute transaction mined")
	o.publish(kind, &store.Intent{EscrowID: id.Hex(), TxHash: rec.TxHash}, false)

	return &Result{Hash: rec.TxHash}, nil
}
