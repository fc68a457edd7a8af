package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/msg"
	"github.com/tarancss/linka/lib/store"
)

type fakeChain struct {
	block    uint64
	blockErr error
	symbols  map[common.Address]string
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.block, f.blockErr }

func (f *fakeChain) TokenSymbol(_ context.Context, token common.Address) (string, error) {
	if s, ok := f.symbols[token]; ok {
		return s, nil
	}

	return "", errors.New("execution reverted")
}

type createCall struct {
	seller   common.Address
	amount   *big.Int
	token    common.Address
	deadline *big.Int
}

type fakeEscrows struct {
	mu       sync.Mutex
	creates  []createCall
	calls    []string // lifecycle methods called
	txHash   string
	id       chain.EscrowID
	err      error
	views    map[chain.EscrowID]chain.EscrowView
	receipts map[string]*chain.Receipt
	rcptErr  error
	found    *chain.Receipt
}

func (f *fakeEscrows) CreateEscrow(_ context.Context, seller common.Address, amount *big.Int, token common.Address, deadline *big.Int) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates = append(f.creates, createCall{seller, amount, token, deadline})
	if f.err != nil {
		return nil, f.err
	}

	return &chain.Receipt{TxHash: f.txHash, Block: 10, EscrowID: f.id}, nil
}

func (f *fakeEscrows) lifecycle(method string) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, method)
	if f.err != nil {
		return nil, f.err
	}

	return &chain.Receipt{TxHash: f.txHash, Block: 11}, nil
}

func (f *fakeEscrows) ReleaseEscrow(context.Context, chain.EscrowID) (*chain.Receipt, error) {
	return f.lifecycle("releaseEscrow")
}

func (f *fakeEscrows) RefundEscrow(context.Context, chain.EscrowID) (*chain.Receipt, error) {
	return f.lifecycle("refundEscrow")
}

func (f *fakeEscrows) DisputeEscrow(context.Context, chain.EscrowID) (*chain.Receipt, error) {
	return f.lifecycle("disputeEscrow")
}

func (f *fakeEscrows) Escrow(_ context.Context, id chain.EscrowID) (chain.EscrowView, error) {
	if v, ok := f.views[id]; ok {
		return v, nil
	}

	zero := (common.Address{}).Hex()

	return chain.EscrowView{Buyer: zero, Seller: zero, Amount: "0.0", Token: zero}, nil
}

func (f *fakeEscrows) Receipt(_ context.Context, hash string) (*chain.Receipt, error) {
	if f.rcptErr != nil {
		return nil, f.rcptErr
	}

	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}

	return nil, chain.ErrPending
}

func (f *fakeEscrows) FindCreated(context.Context, uint64, common.Address, *big.Int, common.Address, *big.Int) (*chain.Receipt, error) {
	if f.found == nil {
		return nil, chain.ErrNoEvent
	}

	return f.found, nil
}

type fakeDisputes struct {
	calls  []string
	winner common.Address
	view   *chain.DisputeView
}

func (f *fakeDisputes) OpenDispute(_ context.Context, _ chain.EscrowID, evidence string) (*chain.Receipt, error) {
	f.calls = append(f.calls, "openDispute:"+evidence)

	return &chain.Receipt{TxHash: "0xd1"}, nil
}

func (f *fakeDisputes) AddEvidence(_ context.Context, _ chain.EscrowID, evidence string) (*chain.Receipt, error) {
	f.calls = append(f.calls, "addEvidence:"+evidence)

	return &chain.Receipt{TxHash: "0xd2"}, nil
}

func (f *fakeDisputes) ResolveDispute(_ context.Context, _ chain.EscrowID, winner common.Address) (*chain.Receipt, error) {
	f.calls = append(f.calls, "resolveDispute")
	f.winner = winner

	return &chain.Receipt{TxHash: "0xd3"}, nil
}

func (f *fakeDisputes) Dispute(_ context.Context, id chain.EscrowID) (chain.DisputeView, error) {
	if f.view != nil {
		return *f.view, nil
	}

	return chain.DisputeView{EscrowID: id.Hex(), Initiator: (common.Address{}).Hex(), Evidence: []string{}}, nil
}

type fakeMirror struct {
	mu        sync.Mutex
	txs       map[string]*store.Transaction // by escrow id
	inserts   int
	insertErr error
	updateErr error
}

func newMirror() *fakeMirror {
	return &fakeMirror{txs: map[string]*store.Transaction{}}
}

func (f *fakeMirror) InsertTransaction(_ context.Context, t *store.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}

	if _, ok := f.txs[t.EscrowID]; ok {
		return store.ErrDuplicate
	}

	f.inserts++
	cp := *t
	f.txs[t.EscrowID] = &cp

	return nil
}

func (f *fakeMirror) UpdateTransaction(_ context.Context, escrowID string, u store.TransactionUpdate) (*store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}

	t, ok := f.txs[escrowID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if t.Status == u.Status {
		return t, nil
	}

	t.Status = u.Status
	t.Timeline = append(t.Timeline, u.Entry)

	if u.Dispute != nil {
		t.Dispute = u.Dispute
	}

	return t, nil
}

type fakeIntents struct {
	mu      sync.Mutex
	intents map[string]*store.Intent
	history map[string][]string // statuses by intent
	addErr  error
}

func newIntents() *fakeIntents {
	return &fakeIntents{intents: map[string]*store.Intent{}, history: map[string][]string{}}
}

func (f *fakeIntents) AddIntent(_ context.Context, in *store.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addErr != nil {
		return f.addErr
	}

	cp := *in
	f.intents[in.ID] = &cp
	f.history[in.ID] = []string{in.Status}

	return nil
}

func (f *fakeIntents) UpdateIntent(_ context.Context, id string, u store.IntentUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.intents[id]
	if !ok {
		return store.ErrNotFound
	}

	if u.Status != "" {
		in.Status = u.Status
		f.history[id] = append(f.history[id], u.Status)
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

	in.Attempts++

	return nil
}

func (f *fakeIntents) GetIntent(_ context.Context, id string) (*store.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.intents[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *in

	return &cp, nil
}

func (f *fakeIntents) OpenIntents(_ context.Context, before time.Time, limit int) ([]store.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res []store.Intent

	for _, in := range f.intents {
		if in.CreatedAt.Before(before) && (in.Status == store.IntentPending || in.Status == store.IntentSubmitted || in.Status == store.IntentMined) {
			res = append(res, *in)
		}
	}

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}

	return res, nil
}

// only returns the single intent recorded.
func (f *fakeIntents) only() *store.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.intents) != 1 {
		panic(fmt.Sprintf("%d intents recorded", len(f.intents)))
	}

	for _, in := range f.intents {
		return in
	}

	return nil
}

type fakePub struct {
	mu     sync.Mutex
	events []msg.Event
}

func (f *fakePub) SendEvent(e msg.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, e)

	return nil
}

func (f *fakePub) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := make([]string, 0, len(f.events))
	for _, e := range f.events {
		k = append(k, e.Kind)
	}

	return k
}
