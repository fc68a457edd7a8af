package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/msg"
	"github.com/tarancss/linka/lib/store"
)

// CreateRequest opens an escrow. An empty TokenAddress means the native coin. Deadline is a unix time in seconds.
type CreateRequest struct {
	Seller              string                 `json:"seller"`
	Amount              string                 `json:"amount"`
	TokenAddress        string                 `json:"tokenAddress"`
	Deadline            int64                  `json:"deadline"`
	BuyerEmail          string                 `json:"buyerEmail"`
	SellerEmail         string                 `json:"sellerEmail"`
	Metadata            map[string]interface{} `json:"metadata"`
	ConversationContext map[string]interface{} `json:"conversationContext"`
}

// CreateResult identifies a created escrow. TransactionID is the creation tx hash; EscrowID is the id assigned by the
// contract.
type CreateResult struct {
	Hash          string `json:"hash"`
	TransactionID string `json:"transactionId"`
	EscrowID      string `json:"escrowId"`
}

// Result is returned by release, refund and dispute. Mirrored is false when there was no mirror record to update.
type Result struct {
	Hash     string `json:"hash"`
	Mirrored bool   `json:"mirrored"`
}

// payload is the intent payload, enough to redo the mirror write.
type payload struct {
	Seller              string                 `json:"seller,omitempty"`
	Amount              string                 `json:"amount,omitempty"`
	Token               string                 `json:"token,omitempty"`
	Deadline            int64                  `json:"deadline,omitempty"`
	Currency            string                 `json:"currency,omitempty"`
	BuyerEmail          string                 `json:"buyerEmail,omitempty"`
	SellerEmail         string                 `json:"sellerEmail,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	ConversationContext map[string]interface{} `json:"conversationContext,omitempty"`
	Reason              string                 `json:"reason,omitempty"`
	Evidence            []string               `json:"evidence,omitempty"`
}

// createArgs are the validated arguments of a createEscrow call.
type createArgs struct {
	seller   common.Address
	amount   *big.Int
	token    common.Address
	deadline *big.Int
}

func (p *payload) args() (createArgs, error) {
	var a createArgs

	var err error

	if a.seller, err = chain.ParseAddress(p.Seller); err != nil {
		return a, invalid("seller", "%v", err)
	}

	if a.amount, err = chain.ParseAmount(p.Amount); err != nil {
		return a, invalid("amount", "%v", err)
	}

	if p.Token != "" {
		if a.token, err = chain.ParseAddress(p.Token); err != nil {
			return a, invalid("tokenAddress", "%v", err)
		}
	}

	a.deadline = big.NewInt(p.Deadline)

	return a, nil
}

func (o *Orchestrator) validateCreate(r CreateRequest) (*payload, createArgs, error) {
	p := &payload{
		Seller:              r.Seller,
		Amount:              r.Amount,
		Token:               r.TokenAddress,
		Deadline:            r.Deadline,
		BuyerEmail:          strings.TrimSpace(r.BuyerEmail),
		SellerEmail:         strings.TrimSpace(r.SellerEmail),
		Metadata:            r.Metadata,
		ConversationContext: r.ConversationContext,
	}

	a, err := p.args()
	if err != nil {
		return nil, a, err
	}

	switch {
	case r.Deadline <= o.now().Unix():
		return nil, a, invalid("deadline", "%d is not in the future", r.Deadline)
	case p.BuyerEmail == "":
		return nil, a, invalid("buyerEmail", "is required")
	case p.SellerEmail == "":
		return nil, a, invalid("sellerEmail", "is required")
	}

	// canonical forms
	p.Seller = a.seller.Hex()
	p.Amount = chain.FormatAmount(a.amount)
	p.Token = a.token.Hex()

	return p, a, nil
}

// currency labels the escrowed asset: the native symbol for the zero address, otherwise the token's symbol(), or the
// token address when the view fails.
func (o *Orchestrator) currency(ctx context.Context, token common.Address) string {
	if chain.IsNative(token) {
		return o.native
	}

	sym, err := o.chain.TokenSymbol(ctx, token)
	if err != nil || sym == "" {
		log.WithFields(log.Fields{"func": "currency", "token": token.Hex()}).WithError(err).Warn("cannot read token symbol")

		return token.Hex()
	}

	return sym
}

// Create opens an escrow on chain and inserts its mirror record with status pending and one timeline entry.
//
// It returns a *ValidationError for bad input and a *chain.CallError when the chain call fails. When the chain call
// succeeds but the mirror insert fails it returns the result together with a *PersistenceError.
func (o *Orchestrator) Create(ctx context.Context, r CreateRequest) (*CreateResult, error) {
	start := o.now()
	l := log.WithFields(log.Fields{"func": "Create", "seller": r.Seller, "amount": r.Amount, "token": r.TokenAddress, "deadline": r.Deadline})

	p, a, err := o.validateCreate(r)
	if err != nil {
		observe(store.OpCreate, start, outcomeInvalid)

		return nil, err
	}

	p.Currency = o.currency(ctx, a.token)

	block, err := o.chain.BlockNumber(ctx)
	if err != nil {
		observe(store.OpCreate, start, outcomeChain)

		return nil, fmt.Errorf("cannot read block number: %w", err)
	}

	in, err := o.addIntent(ctx, store.OpCreate, "", block, p)
	if err != nil {
		observe(store.OpCreate, start, outcomeIntent)

		return nil, err
	}

	l = l.WithField("intent", in.ID)

	rec, err := o.escrows.CreateEscrow(ctx, a.seller, a.amount, a.token, a.deadline)
	if err != nil {
		o.chainFailed(ctx, in, err)
		observe(store.OpCreate, start, outcomeChain)
		l.WithError(err).Error("createEscrow failed")

		return nil, err
	}

	o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentMined, TxHash: rec.TxHash, EscrowID: rec.EscrowID.Hex()})

	res := &CreateResult{Hash: rec.TxHash, TransactionID: rec.TxHash, EscrowID: rec.EscrowID.Hex()}

	if err = o.insertMirror(ctx, in, p); err != nil {
		o.publish(msg.KindMirrorFailed, in, false)
		observe(store.OpCreate, start, outcomePersistence)
		l.WithError(err).Error("escrow created on chain but mirror insert failed")

		return res, err
	}

	observe(store.OpCreate, start, outcomeOK)
	l.WithFields(log.Fields{"hash": res.Hash, "escrowId": res.EscrowID}).Info("escrow created")

	return res, nil
}

// Release pays the seller and marks the mirror record completed.
func (o *Orchestrator) Release(ctx context.Context, escrowID string) (*Result, error) {
	return o.lifecycle(ctx, store.OpRelease, escrowID, &payload{})
}

// Refund returns the funds to the buyer and marks the mirror record cancelled.
func (o *Orchestrator) Refund(ctx context.Context, escrowID string) (*Result, error) {
	return o.lifecycle(ctx, store.OpRefund, escrowID, &payload{})
}

// Dispute freezes the escrow and marks the mirror record disputed with a dispute sub-record.
func (o *Orchestrator) Dispute(ctx context.Context, escrowID, reason string, evidence []string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		observe(store.OpDispute, o.now(), outcomeInvalid)

		return nil, invalid("reason", "is required")
	}

	if evidence == nil {
		evidence = []string{}
	}

	return o.lifecycle(ctx, store.OpDispute, escrowID, &payload{Reason: reason, Evidence: evidence})
}

// lifecycle runs release, refund and dispute. When there is no mirror record for the escrow, none is created: the
// intent is marked unmirrored and the result reports the hash with Mirrored false.
func (o *Orchestrator) lifecycle(ctx context.Context, op, escrowID string, p *payload) (*Result, error) {
	start := o.now()
	l := log.WithFields(log.Fields{"func": op, "escrowId": escrowID})

	id, err := chain.ParseEscrowID(escrowID)
	if err != nil {
		observe(op, start, outcomeInvalid)

		return nil, invalid("escrowId", "%v", err)
	}

	in, err := o.addIntent(ctx, op, id.Hex(), 0, p)
	if err != nil {
		observe(op, start, outcomeIntent)

		return nil, err
	}

	l = l.WithField("intent", in.ID)

	var rec *chain.Receipt

	switch op {
	case store.OpRelease:
		rec, err = o.escrows.ReleaseEscrow(ctx, id)
	case store.OpRefund:
		rec, err = o.escrows.RefundEscrow(ctx, id)
	default:
		rec, err = o.escrows.DisputeEscrow(ctx, id)
	}

	if err != nil {
		o.chainFailed(ctx, in, err)
		observe(op, start, outcomeChain)
		l.WithError(err).Error("escrow transaction failed")

		return nil, err
	}

	o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentMined, TxHash: rec.TxHash})

	res := &Result{Hash: rec.TxHash}

	res.Mirrored, err = o.updateMirror(ctx, in, p)
	if err != nil {
		o.publish(msg.KindMirrorFailed, in, false)
		observe(op, start, outcomePersistence)
		l.WithError(err).Error("escrow transaction mined but mirror update failed")

		return res, err
	}

	if !res.Mirrored {
		observe(op, start, outcomeUnmirrored)
		l.WithField("hash", res.Hash).Warn("escrow transaction mined but there is no mirror record")

		return res, nil
	}

	observe(op, start, outcomeOK)
	l.WithField("hash", res.Hash).Info("escrow updated")

	return res, nil
}

func (o *Orchestrator) addIntent(ctx context.Context, op, escrowID string, block uint64, p *payload) (*store.Intent, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("cannot encode intent payload: %w", err)
	}

	now := o.now().UTC()
	in := &store.Intent{
		ID:        o.newID(),
		Op:        op,
		EscrowID:  escrowID,
		FromBlock: block,
		Payload:   b,
		Status:    store.IntentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err = o.intents.AddIntent(ctx, in); err != nil {
		return nil, fmt.Errorf("cannot record %s intent: %w", op, err)
	}

	return in, nil
}

// chainFailed records a failed chain call. A transaction known to the node whose receipt was not seen stays open as
// submitted; anything else failed.
func (o *Orchestrator) chainFailed(ctx context.Context, in *store.Intent, err error) {
	u := store.IntentUpdate{Status: store.IntentFailed, Error: err.Error()}

	var ce *chain.CallError
	if errors.As(err, &ce) && ce.Hash != "" {
		u.TxHash = ce.Hash
		if ce.Submitted() && !errors.Is(err, chain.ErrNoEvent) {
			u.Status = store.IntentSubmitted
		}
	}

	o.setIntent(ctx, in, u)
}

// insertMirror inserts the mirror record of a created escrow and confirms the intent. A record already present counts
// as done.
func (o *Orchestrator) insertMirror(ctx context.Context, in *store.Intent, p *payload) error {
	now := o.now().UTC()

	typ := store.TypeMarketplace
	if _, ok := p.Metadata["milestones"]; ok {
		typ = store.TypeService
	}

	t := &store.Transaction{
		TransactionID:       in.TxHash,
		EscrowID:            in.EscrowID,
		BuyerEmail:          p.BuyerEmail,
		SellerEmail:         p.SellerEmail,
		Amount:              p.Amount,
		Currency:            p.Currency,
		TokenAddress:        p.Token,
		Type:                typ,
		Metadata:            p.Metadata,
		ConversationContext: p.ConversationContext,
		Status:              store.StatusPending,
		Timeline:            []store.TimelineEntry{{Status: store.StatusPending, Description: descCreated, Actor: p.BuyerEmail, Timestamp: now}},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := o.db.InsertTransaction(ctx, t)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		o.setIntent(ctx, in, store.IntentUpdate{Error: err.Error()})

		return &PersistenceError{Op: in.Op, TxHash: in.TxHash, EscrowID: in.EscrowID, Err: err}
	}

	o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentConfirmed})
	o.publish(msg.KindCreated, in, true)

	return nil
}

// updateMirror applies a lifecycle operation to the mirror record and closes the intent. It reports whether a record
// was there to update.
func (o *Orchestrator) updateMirror(ctx context.Context, in *store.Intent, p *payload) (bool, error) {
	now := o.now().UTC()

	var u store.TransactionUpdate

	var kind string

	switch in.Op {
	case store.OpRelease:
		u = store.TransactionUpdate{Status: store.StatusCompleted, Entry: store.TimelineEntry{Description: descReleased}}
		kind = msg.KindReleased
	case store.OpRefund:
		u = store.TransactionUpdate{Status: store.StatusCancelled, Entry: store.TimelineEntry{Description: descRefunded}}
		kind = msg.KindRefunded
	case store.OpDispute:
		evidence := p.Evidence
		if evidence == nil {
			evidence = []string{}
		}

		u = store.TransactionUpdate{
			Status:  store.StatusDisputed,
			Entry:   store.TimelineEntry{Description: descDisputed + p.Reason},
			Dispute: &store.Dispute{Reason: p.Reason, Evidence: evidence, CreatedAt: now},
		}
		kind = msg.KindDisputed
	default:
		return false, fmt.Errorf("unknown escrow operation %q", in.Op)
	}

	u.Entry.Status = u.Status
	u.Entry.Actor = ActorSystem
	u.Entry.Timestamp = now

	_, err := o.db.UpdateTransaction(ctx, in.EscrowID, u)

	switch {
	case errors.Is(err, store.ErrNotFound):
		o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentUnmirrored})
		o.publish(kind, in, false)

		return false, nil
	case err != nil:
		o.setIntent(ctx, in, store.IntentUpdate{Error: err.Error()})

		return false, &PersistenceError{Op: in.Op, TxHash: in.TxHash, EscrowID: in.EscrowID, Err: err}
	}

	o.setIntent(ctx, in, store.IntentUpdate{Status: store.IntentConfirmed})
	o.publish(kind, in, true)

	return true, nil
}

// Get reads the escrow from the chain. An escrow with no buyer does not exist.
func (o *Orchestrator) Get(ctx context.Context, escrowID string) (chain.EscrowView, error) {
	id, err := chain.ParseEscrowID(escrowID)
	if err != nil {
		return chain.EscrowView{}, invalid("escrowId", "%v", err)
	}

	v, err := o.escrows.Escrow(ctx, id)
	if err != nil {
		return v, err
	}

	if v.Buyer == (common.Address{}).Hex() {
		return v, fmt.Errorf("escrow %s: %w", escrowID, store.ErrNotFound)
	}

	return v, nil
}
