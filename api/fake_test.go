package api

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/linka/escrow"
	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/util"
	"github.com/tarancss/linka/reputation"
)

type call struct {
	op, id, arg string
	evidence    []string
}

type fakeEscrows struct {
	calls  []call
	create *escrow.CreateResult
	res    *escrow.Result
	view   chain.EscrowView
	disp   chain.DisputeView
	err    error
}

func (f *fakeEscrows) Create(_ context.Context, r escrow.CreateRequest) (*escrow.CreateResult, error) {
	f.calls = append(f.calls, call{op: "create", arg: r.Seller})

	return f.create, f.err
}

func (f *fakeEscrows) lifecycle(c call) (*escrow.Result, error) {
	f.calls = append(f.calls, c)

	return f.res, f.err
}

func (f *fakeEscrows) Release(_ context.Context, id string) (*escrow.Result, error) {
	return f.lifecycle(call{op: "release", id: id})
}

func (f *fakeEscrows) Refund(_ context.Context, id string) (*escrow.Result, error) {
	return f.lifecycle(call{op: "refund", id: id})
}

func (f *fakeEscrows) Dispute(_ context.Context, id, reason string, evidence []string) (*escrow.Result, error) {
	return f.lifecycle(call{op: "dispute", id: id, arg: reason, evidence: evidence})
}

func (f *fakeEscrows) Get(_ context.Context, id string) (chain.EscrowView, error) {
	f.calls = append(f.calls, call{op: "get", id: id})

	return f.view, f.err
}

func (f *fakeEscrows) OpenDispute(_ context.Context, id, evidence string) (*escrow.Result, error) {
	return f.lifecycle(call{op: "open", id: id, arg: evidence})
}

func (f *fakeEscrows) AddEvidence(_ context.Context, id, evidence string) (*escrow.Result, error) {
	return f.lifecycle(call{op: "evidence", id: id, arg: evidence})
}

func (f *fakeEscrows) ResolveDispute(_ context.Context, id, winner string) (*escrow.Result, error) {
	return f.lifecycle(call{op: "resolve", id: id, arg: winner})
}

func (f *fakeEscrows) GetDispute(_ context.Context, id string) (chain.DisputeView, error) {
	f.calls = append(f.calls, call{op: "getDispute", id: id})

	return f.disp, f.err
}

type fakeReputations struct {
	view    reputation.View
	err     error
	updated map[string]uint64
}

func (f *fakeReputations) Get(_ context.Context, address string) (reputation.View, error) {
	if f.err != nil {
		return reputation.View{}, f.err
	}

	v := f.view
	v.Address = address

	return v, nil
}

func (f *fakeReputations) Update(_ context.Context, address string, score uint64) (*chain.Receipt, error) {
	if score > reputation.MaxScore {
		return nil, reputation.ErrBadScore
	}

	f.updated[address] = score

	return &chain.Receipt{TxHash: "0xrep"}, nil
}

type payment struct {
	payee, token common.Address
	amount       *big.Int
}

type fakePayments struct {
	paid []payment
}

func (f *fakePayments) MakePayment(_ context.Context, payee common.Address, amount *big.Int, token common.Address) (*chain.Receipt, error) {
	f.paid = append(f.paid, payment{payee: payee, amount: amount, token: token})

	return &chain.Receipt{TxHash: "0xpay"}, nil
}

type fakeBalances struct {
	native *big.Int
	err    error
}

func (f *fakeBalances) Balance(_ context.Context, _, token string) (*big.Int, *big.Int, error) {
	if f.err != nil {
		return nil, nil, f.err
	}

	if token == "" {
		return f.native, nil, nil
	}

	return f.native, big.NewInt(0), nil
}

// fakeDB keeps users and transactions in memory.
type fakeDB struct {
	mu    sync.Mutex
	users map[string]*store.User
	txs   map[string]*store.Transaction
}

func newDB() *fakeDB {
	return &fakeDB{users: map[string]*store.User{}, txs: map[string]*store.Transaction{}}
}

func (f *fakeDB) InsertTransaction(_ context.Context, t *store.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.txs[t.TransactionID]; ok {
		return store.ErrDuplicate
	}

	f.txs[t.TransactionID] = t

	return nil
}

func (f *fakeDB) UpdateTransaction(_ context.Context, escrowID string, u store.TransactionUpdate) (*store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.txs {
		if t.EscrowID == escrowID {
			if t.Status == u.Status {
				return t, nil
			}

			t.Status = u.Status
			t.Timeline = append(t.Timeline, u.Entry)

			return t, nil
		}
	}

	return nil, store.ErrNotFound
}

func (f *fakeDB) GetTransaction(_ context.Context, id string) (*store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.txs[id]; ok {
		return t, nil
	}

	return nil, store.ErrNotFound
}

func (f *fakeDB) ListTransactions(_ context.Context, email string, fl store.TxFilter) ([]store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ret := []store.Transaction{}

	for _, t := range f.txs {
		if t.BuyerEmail != email && t.SellerEmail != email {
			continue
		}

		if (fl.Status != "" && t.Status != fl.Status) || (fl.Type != "" && t.Type != fl.Type) {
			continue
		}

		ret = append(ret, *t)
	}

	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.After(ret[j].CreatedAt) })

	if fl.Limit > 0 && len(ret) > fl.Limit {
		ret = ret[:fl.Limit]
	}

	return ret, nil
}

func (f *fakeDB) InsertUser(_ context.Context, u *store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[u.Email]; ok {
		return store.ErrDuplicate
	}

	f.users[u.Email] = u

	return nil
}

func (f *fakeDB) GetUser(_ context.Context, email string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[email]; ok {
		return u, nil
	}

	return nil, store.ErrNotFound
}

func (f *fakeDB) GetUserByAddress(_ context.Context, address string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if strings.EqualFold(u.WalletAddress, address) {
			return u, nil
		}
	}

	return nil, store.ErrNotFound
}

func (f *fakeDB) UpdateProfile(ctx context.Context, email string, p store.Profile) (*store.User, error) {
	u, err := f.GetUser(ctx, email)
	if err != nil {
		return nil, err
	}

	u.Profile = p

	return u, nil
}

func (f *fakeDB) LinkFarcaster(ctx context.Context, email, fid string) (*store.User, error) {
	u, err := f.GetUser(ctx, email)
	if err != nil {
		return nil, err
	}

	u.FarcasterFID = fid

	return u, nil
}

func (f *fakeDB) SetReputation(ctx context.Context, address string, r store.Reputation) error {
	u, err := f.GetUserByAddress(ctx, address)
	if err != nil {
		return err
	}

	u.Reputation = r

	return nil
}

func (f *fakeDB) ListVendors(_ context.Context, fl store.VendorFilter) ([]store.User, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := []store.User{}

	for _, u := range f.users {
		if !u.Profile.IsVendor || u.Reputation.Score < fl.MinReputation {
			continue
		}

		if fl.Category != "" && !util.In(u.Profile.Categories, fl.Category) {
			continue
		}

		all = append(all, *u)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Reputation.Score > all[j].Reputation.Score })

	from := (fl.Page - 1) * fl.Limit
	if from > len(all) {
		from = len(all)
	}

	to := from + fl.Limit
	if to > len(all) {
		to = len(all)
	}

	return all[from:to], int64(len(all)), nil
}

func (f *fakeDB) StaleReputations(context.Context, time.Time, int) ([]store.User, error) {
	return nil, nil
}
