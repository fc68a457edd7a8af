package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/msg"
	"github.com/tarancss/linka/lib/store"
)

// Repair drives an open intent towards a closed status and returns the status reached:
//
// - pending: the chain is searched for the effect of the intent (an EscrowCreated event since the intent's block for
// create, the escrow flags otherwise). ErrNotOnChain is returned when there is none.
//
// - submitted: the receipt of the transaction is fetched. chain.ErrPending is returned while it is not mined; a
// reverted transaction fails the intent.
//
// - mined: the mirror write is redone. A record already inserted counts as done.
//
// Closed intents are returned untouched.
func (o *Orchestrator) Repair(ctx context.Context, in store.Intent) (string, error) {
	l := log.WithFields(log.Fields{"func": "Repair", "intent": in.ID, "op": in.Op, "status": in.Status})

	var p payload
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			o.setIntent(ctx, &in, store.IntentUpdate{Status: store.IntentFailed, Error: "corrupt payload: " + err.Error()})

			return in.Status, fmt.Errorf("cannot decode payload of intent %s: %w", in.ID, err)
		}
	}

	switch in.Status {
	case store.IntentPending:
		if err := o.locate(ctx, &in, &p); err != nil {
			return in.Status, err
		}
	case store.IntentSubmitted:
		if err := o.confirm(ctx, &in); err != nil {
			return in.Status, err
		}

		if in.Status == store.IntentFailed {
			l.Warn("intent transaction reverted")

			return in.Status, nil
		}
	case store.IntentMined:
	default:
		return in.Status, nil
	}

	var err error
	if in.Op == store.OpCreate {
		err = o.insertMirror(ctx, &in, &p)
	} else {
		_, err = o.updateMirror(ctx, &in, &p)
	}

	if err != nil {
		l.WithError(err).Error("mirror write failed again")

		return in.Status, err
	}

	o.publish(msg.KindRepaired, &in, in.Status == store.IntentConfirmed)
	l.WithField("reached", in.Status).Info("intent repaired")

	return in.Status, nil
}

// locate finds the chain effect of a pending intent and marks it mined.
func (o *Orchestrator) locate(ctx context.Context, in *store.Intent, p *payload) error {
	if in.Op == store.OpCreate {
		a, err := p.args()
		if err != nil {
			o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentFailed, Error: err.Error()})

			return err
		}

		rec, err := o.escrows.FindCreated(ctx, in.FromBlock, a.seller, a.amount, a.token, a.deadline)
		if errors.Is(err, chain.ErrNoEvent) {
			return ErrNotOnChain
		}

		if err != nil {
			return err
		}

		o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentMined, TxHash: rec.TxHash, EscrowID: rec.EscrowID.Hex()})

		return nil
	}

	id, err := chain.ParseEscrowID(in.EscrowID)
	if err != nil {
		o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentFailed, Error: err.Error()})

		return err
	}

	v, err := o.escrows.Escrow(ctx, id)
	if err != nil {
		return err
	}

	var done bool

	switch in.Op {
	case store.OpRelease:
		done = v.Released
	case store.OpRefund:
		done = v.Refunded
	case store.OpDispute:
		done = v.Disputed
	}

	if !done {
		return ErrNotOnChain
	}

	// the effect is on chain but the transaction that caused it is unknown
	o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentMined})

	return nil
}

// confirm fetches the receipt of a submitted intent and marks it mined or failed.
func (o *Orchestrator) confirm(ctx context.Context, in *store.Intent) error {
	rec, err := o.escrows.Receipt(ctx, in.TxHash)

	switch {
	case errors.Is(err, chain.ErrReverted):
		o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentFailed, Error: err.Error()})

		return nil
	case err != nil:
		return err
	}

	u := store.IntentUpdate{Status: store.IntentMined}

	if in.Op == store.OpCreate {
		if rec.EscrowID.IsZero() {
			o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentFailed, Error: chain.ErrNoEvent.Error()})

			return nil
		}

		u.EscrowID = rec.EscrowID.Hex()
	}

	o.setIntent(ctx, in, u)

	return nil
}
