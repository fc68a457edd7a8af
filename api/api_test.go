package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/linka/escrow"
	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/wallet"
	"github.com/tarancss/linka/reputation"
)

const escrowID = "0x00000000000000000000000000000000000000000000000000000000000000ab"

type fixture struct {
	s        *Service
	h        http.Handler
	escrows  *fakeEscrows
	reps     *fakeReputations
	payments *fakePayments
	db       *fakeDB
	balances *fakeBalances
}

func setup(t *testing.T, opts Options) *fixture {
	t.Helper()

	ks, err := wallet.New("server-encryption-key")
	require.NoError(t, err)

	f := &fixture{
		escrows:  &fakeEscrows{res: &escrow.Result{Hash: "0xabc", Mirrored: true}},
		reps:     &fakeReputations{view: reputation.View{Score: 720, Source: reputation.SourceChain}, updated: map[string]uint64{}},
		payments: &fakePayments{},
		db:       newDB(),
		balances: &fakeBalances{native: big.NewInt(1500000000000000000)},
	}
	f.s = New(Deps{
		Escrows:     f.escrows,
		Reputations: f.reps,
		Payments:    f.payments,
		DB:          f.db,
		Keystore:    ks,
		Balances:    f.balances,
	}, opts)
	f.h = f.s.Handler()

	return f
}

// envelope is Response with the data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (f *fixture) do(t *testing.T, method, uri string, body interface{}, hdr ...string) (int, envelope) {
	t.Helper()

	var b []byte

	switch v := body.(type) {
	case nil:
	case string:
		b = []byte(v)
	default:
		var err error
		b, err = json.Marshal(v)
		require.NoError(t, err)
	}

	r := httptest.NewRequest(method, uri, bytes.NewReader(b))
	for i := 0; i+1 < len(hdr); i += 2 {
		r.Header.Set(hdr[i], hdr[i+1])
	}

	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)

	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())

	return w.Code, e
}

func TestStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &escrow.ValidationError{Field: "amount", Msg: "must be positive"}, http.StatusBadRequest},
		{"badRequest", fmt.Errorf("%w: x", ErrBadRequest), http.StatusBadRequest},
		{"badAddress", chain.ErrBadAddress, http.StatusBadRequest},
		{"badScore", reputation.ErrBadScore, http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"notFound", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{"duplicate", store.ErrDuplicate, http.StatusConflict},
		{"tooLarge", &http.MaxBytesError{Limit: MaxBody}, http.StatusRequestEntityTooLarge},
		{"tooMany", errTooManyRequests, http.StatusTooManyRequests},
		{"persistence", &escrow.PersistenceError{Op: "create", Err: errors.New("down")}, http.StatusInternalServerError},
		{"chain", &chain.CallError{Contract: "EscrowManager", Method: "createEscrow", Err: chain.ErrReverted}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		code, msg := status(c.err)
		assert.Equal(t, c.code, code, c.name)
		assert.NotEmpty(t, msg, c.name)
	}

	_, msg := status(fmt.Errorf("open: %w", wallet.ErrDecryption))
	assert.Equal(t, "failed to get wallet", msg)
}

func TestRouting(t *testing.T) {
	f := setup(t, Options{})

	code, e := f.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, e.Success)
	assert.Contains(t, string(e.Data), Version)

	code, e = f.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, e.Success)
	assert.Equal(t, errNoRoute.Error(), e.Error)

	code, _ = f.do(t, http.MethodPut, "/api/escrow/create", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	// payment/direct and timeline are not taken for an email
	code, _ = f.do(t, http.MethodPost, "/api/transactions/payment/direct", map[string]string{"payee": "0x1", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, f.payments.paid)
}

func TestCreateEscrow(t *testing.T) {
	req := escrow.CreateRequest{Seller: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Amount: "1.0"}
	created := &escrow.CreateResult{Hash: "0xabc", TransactionID: "0xabc", EscrowID: escrowID}

	cases := []struct {
		name    string
		body    interface{}
		res     *escrow.CreateResult
		err     error
		code    int
		hasData bool
	}{
		{"ok", req, created, nil, http.StatusOK, true},
		{"badJSON", "{seller", nil, nil, http.StatusBadRequest, false},
		{"invalid", req, nil, &escrow.ValidationError{Field: "deadline", Msg: "must be in the future"}, http.StatusBadRequest, false},
		{"chainFailed", req, nil, &chain.CallError{Contract: "EscrowManager", Method: "createEscrow", Err: chain.ErrReverted}, http.StatusInternalServerError, false},
		{"notMirrored", req, created, &escrow.PersistenceError{Op: "create", TxHash: "0xabc", EscrowID: escrowID, Err: errors.New("db down")}, http.StatusInternalServerError, true},
	}

	for _, c := range cases {
		f := setup(t, Options{})
		f.escrows.create, f.escrows.err = c.res, c.err

		code, e := f.do(t, http.MethodPost, "/api/escrow/create", c.body)
		assert.Equal(t, c.code, code, c.name)
		assert.Equal(t, c.err == nil && c.code == http.StatusOK, e.Success, c.name)

		if !c.hasData {
			assert.Empty(t, e.Data, c.name)

			continue
		}

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(e.Data, &got), c.name)
		assert.Equal(t, escrowID, got["escrowId"], c.name)
		assert.Equal(t, "0xabc", got["hash"], c.name)

		if c.err != nil {
			assert.Equal(t, false, got["mirrored"], c.name)
			assert.Contains(t, e.Error, "mirror write failed", c.name)
		}
	}
}

func TestLifecycle(t *testing.T) {
	f := setup(t, Options{})

	for _, op := range []string{"release", "refund"} {
		code, e := f.do(t, http.MethodPost, "/api/escrow/"+escrowID+"/"+op, nil)
		require.Equal(t, http.StatusOK, code, op)
		assert.JSONEq(t, `{"hash":"0xabc","mirrored":true}`, string(e.Data), op)
	}

	code, _ := f.do(t, http.MethodPost, "/api/escrow/"+escrowID+"/dispute", disputeReq{Reason: "item not received", Evidence: []string{"ipfs://a"}})
	require.Equal(t, http.StatusOK, code)

	require.Len(t, f.escrows.calls, 3)
	assert.Equal(t, call{op: "release", id: escrowID}, f.escrows.calls[0])
	assert.Equal(t, "refund", f.escrows.calls[1].op)
	assert.Equal(t, call{op: "dispute", id: escrowID, arg: "item not received", evidence: []string{"ipfs://a"}}, f.escrows.calls[2])

	// chain succeeded without a mirror record
	f.escrows.res = &escrow.Result{Hash: "0xdef"}
	_, e := f.do(t, http.MethodPost, "/api/escrow/"+escrowID+"/release", nil)
	assert.JSONEq(t, `{"hash":"0xdef","mirrored":false}`, string(e.Data))

	f.escrows.res, f.escrows.err = nil, chain.ErrBadEscrowID
	code, e = f.do(t, http.MethodPost, "/api/escrow/0x12/refund", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, chain.ErrBadEscrowID.Error(), e.Error)

	f.escrows.err = store.ErrNotFound
	code, _ = f.do(t, http.MethodGet, "/api/escrow/"+escrowID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDisputePathway(t *testing.T) {
	f := setup(t, Options{})
	winner := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	cases := []struct {
		uri  string
		body interface{}
		exp  call
	}{
		{"/disputes/open", map[string]string{"evidence": "ipfs://open"}, call{op: "open", id: escrowID, arg: "ipfs://open"}},
		{"/disputes/evidence", map[string]string{"evidence": "ipfs://more"}, call{op: "evidence", id: escrowID, arg: "ipfs://more"}},
		{"/disputes/resolve", map[string]string{"winner": winner}, call{op: "resolve", id: escrowID, arg: winner}},
		{"/disputes/resolve", map[string]string{"winnerAddress": winner}, call{op: "resolve", id: escrowID, arg: winner}},
	}

	for i, c := range cases {
		code, e := f.do(t, http.MethodPost, "/api/escrow/"+escrowID+c.uri, c.body)
		require.Equal(t, http.StatusOK, code, c.uri)
		assert.True(t, e.Success)
		assert.Equal(t, c.exp, f.escrows.calls[i], c.uri)
	}

	f.escrows.disp = chain.DisputeView{EscrowID: escrowID, Initiator: winner, Evidence: []string{"ipfs://open"}}
	code, e := f.do(t, http.MethodGet, "/api/escrow/"+escrowID+"/disputes", nil)
	require.Equal(t, http.StatusOK, code)

	var v chain.DisputeView
	require.NoError(t, json.Unmarshal(e.Data, &v))
	assert.Equal(t, f.escrows.disp, v)
}

func TestIdentity(t *testing.T) {
	f := setup(t, Options{})

	body := map[string]interface{}{
		"email":    "Alice@Linka.xyz",
		"username": "alice",
		"password": "s3cret",
		"profile":  map[string]interface{}{"name": "Alice", "isVendor": true, "categories": []string{"art"}},
	}

	code, e := f.do(t, http.MethodPost, "/api/identity/create", body)
	require.Equal(t, http.StatusOK, code, e.Error)

	var u store.User
	require.NoError(t, json.Unmarshal(e.Data, &u))
	assert.Equal(t, "alice@linka.xyz", u.Email)
	assert.True(t, common.IsHexAddress(u.WalletAddress))
	assert.Equal(t, uint64(store.DefaultScore), u.Reputation.Score)
	assert.Equal(t, store.SourceLocal, u.Reputation.Source)
	assert.NotContains(t, string(e.Data), "encryptedPrivateKey")
	assert.NotContains(t, string(e.Data), "passwordHash")

	stored := f.db.users["alice@linka.xyz"]
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.EncryptedPrivateKey)
	assert.NotEqual(t, "s3cret", stored.PasswordHash)

	cases := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{"duplicate", body, http.StatusConflict},
		{"noEmail", map[string]interface{}{"username": "bob"}, http.StatusBadRequest},
		{"badEmail", map[string]interface{}{"email": "bob", "username": "bob"}, http.StatusBadRequest},
		{"noUsername", map[string]interface{}{"email": "bob@linka.xyz"}, http.StatusBadRequest},
		{"badCategory", map[string]interface{}{"email": "bob@linka.xyz", "username": "bob", "profile": map[string]interface{}{"categories": []string{"weapons"}}}, http.StatusBadRequest},
	}

	for _, c := range cases {
		code, _ := f.do(t, http.MethodPost, "/api/identity/create", c.body)
		assert.Equal(t, c.code, code, c.name)
	}

	code, _ = f.do(t, http.MethodGet, "/api/identity/ALICE@linka.xyz", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodGet, "/api/identity/carol@linka.xyz", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// wrapped and bare profiles
	code, _ = f.do(t, http.MethodPut, "/api/identity/alice@linka.xyz/profile", map[string]interface{}{"profile": map[string]interface{}{"name": "Al", "bio": "painter"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "painter", stored.Profile.Bio)

	code, _ = f.do(t, http.MethodPut, "/api/identity/alice@linka.xyz/profile", map[string]interface{}{"name": "Alice", "isVendor": true, "categories": []string{"art", "digital"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"art", "digital"}, stored.Profile.Categories)

	code, _ = f.do(t, http.MethodPost, "/api/identity/alice@linka.xyz/link-farcaster", map[string]string{"farcasterFid": "1234"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1234", stored.FarcasterFID)

	code, _ = f.do(t, http.MethodPost, "/api/identity/alice@linka.xyz/link-farcaster", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBalance(t *testing.T) {
	f := setup(t, Options{})

	for _, email := range []string{"alice@linka.xyz", "bob@linka.xyz"} {
		body := map[string]interface{}{"email": email, "username": strings.Split(email, "@")[0]}
		if email == "alice@linka.xyz" {
			body["password"] = "s3cret"
		}

		code, e := f.do(t, http.MethodPost, "/api/identity/create", body)
		require.Equal(t, http.StatusOK, code, e.Error)
	}

	uri := "/api/identity/alice@linka.xyz/wallet/balance"

	code, e := f.do(t, http.MethodGet, uri, nil, walletSecretHeader, "s3cret")
	require.Equal(t, http.StatusOK, code, e.Error)

	var b wallet.Balance
	require.NoError(t, json.Unmarshal(e.Data, &b))
	assert.Equal(t, wallet.BalanceConfirmed, b.Status)
	assert.Equal(t, f.db.users["alice@linka.xyz"].WalletAddress, b.Address)

	code, _ = f.do(t, http.MethodGet, uri, nil, walletSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodGet, uri, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// a provider failure is an unknown balance, not an empty wallet
	f.balances.err = errors.New("rpc down")
	code, e = f.do(t, http.MethodGet, "/api/identity/bob@linka.xyz/wallet/balance?tok=0x036CbD53842c5426634e7929541eC2318f3dCF7e", nil)
	require.Equal(t, http.StatusOK, code, e.Error)
	require.NoError(t, json.Unmarshal(e.Data, &b))
	assert.Equal(t, wallet.BalanceUnknown, b.Status)
	assert.Equal(t, "0.0", b.Native)
	assert.Equal(t, "0.0", b.Token)

	// a wallet sealed under another key cannot be opened
	f.db.users["bob@linka.xyz"].EncryptedPrivateKey = "v1:00:00:00"
	code, e = f.do(t, http.MethodGet, "/api/identity/bob@linka.xyz/wallet/balance", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "failed to get wallet", e.Error)
}

func TestVendors(t *testing.T) {
	f := setup(t, Options{})

	for i, score := range []uint64{300, 900, 600} {
		email := fmt.Sprintf("v%d@linka.xyz", i)
		f.db.users[email] = &store.User{
			Email:      email,
			Profile:    store.Profile{IsVendor: true, Categories: []string{"art"}},
			Reputation: store.Reputation{Score: score},
		}
	}

	f.db.users["buyer@linka.xyz"] = &store.User{Email: "buyer@linka.xyz", Reputation: store.Reputation{Score: 1000}}

	code, e := f.do(t, http.MethodGet, "/api/vendors?category=art&limit=2&minReputation=500", nil)
	require.Equal(t, http.StatusOK, code, e.Error)

	var got struct {
		Vendors    []store.User `json:"vendors"`
		Pagination struct {
			Page, Limit, Total, Pages int
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &got))
	require.Len(t, got.Vendors, 2)
	assert.Equal(t, uint64(900), got.Vendors[0].Reputation.Score)
	assert.Equal(t, 1, got.Pagination.Page)
	assert.Equal(t, 2, got.Pagination.Limit)
	assert.Equal(t, 2, got.Pagination.Total)
	assert.Equal(t, 1, got.Pagination.Pages)

	for _, q := range []string{"category=weapons", "page=0", "limit=x", "minReputation=-1"} {
		code, _ := f.do(t, http.MethodGet, "/api/vendors?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestTransactions(t *testing.T) {
	f := setup(t, Options{})
	now := time.Now().UTC()

	for i, status := range []string{store.StatusPending, store.StatusCompleted, store.StatusPending} {
		id := fmt.Sprintf("0x%02d", i)
		f.db.txs[id] = &store.Transaction{
			TransactionID: id,
			BuyerEmail:    "buyer@linka.xyz",
			SellerEmail:   "seller@linka.xyz",
			Status:        status,
			Type:          store.TypeMarketplace,
			Timeline:      []store.TimelineEntry{{Status: store.StatusPending, Description: "Escrow created", Actor: "buyer@linka.xyz"}},
			CreatedAt:     now.Add(time.Duration(i) * time.Minute),
		}
	}

	code, e := f.do(t, http.MethodGet, "/api/transactions/seller@linka.xyz?status=pending&limit=1", nil)
	require.Equal(t, http.StatusOK, code, e.Error)

	var txs []store.Transaction
	require.NoError(t, json.Unmarshal(e.Data, &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "0x02", txs[0].TransactionID)

	code, _ = f.do(t, http.MethodGet, "/api/transactions/seller@linka.xyz?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, e = f.do(t, http.MethodGet, "/api/transactions/Buyer@linka.xyz/0x01", nil)
	require.Equal(t, http.StatusOK, code, e.Error)

	// not a participant
	code, _ = f.do(t, http.MethodGet, "/api/transactions/eve@linka.xyz/0x01", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, e = f.do(t, http.MethodGet, "/api/transactions/0x01/timeline", nil)
	require.Equal(t, http.StatusOK, code, e.Error)

	var tl []store.TimelineEntry
	require.NoError(t, json.Unmarshal(e.Data, &tl))
	require.Len(t, tl, 1)
	assert.Equal(t, "Escrow created", tl[0].Description)

	code, _ = f.do(t, http.MethodGet, "/api/transactions/0x99/timeline", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPayment(t *testing.T) {
	f := setup(t, Options{})
	payee := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	code, e := f.do(t, http.MethodPost, "/api/transactions/payment/direct", paymentReq{Payee: payee, Amount: "0.5"})
	require.Equal(t, http.StatusOK, code, e.Error)
	assert.JSONEq(t, `{"hash":"0xpay"}`, string(e.Data))

	require.Len(t, f.payments.paid, 1)
	assert.Equal(t, common.HexToAddress(payee), f.payments.paid[0].payee)
	assert.Equal(t, "500000000000000000", f.payments.paid[0].amount.String())
	assert.True(t, chain.IsNative(f.payments.paid[0].token))

	for _, req := range []paymentReq{
		{Payee: payee, Amount: "-1"},
		{Payee: payee, Amount: "1", TokenAddress: "usdc"},
		{Payee: "alice", Amount: "1"},
	} {
		code, _ := f.do(t, http.MethodPost, "/api/transactions/payment/direct", req)
		assert.Equal(t, http.StatusBadRequest, code, req)
	}

	assert.Len(t, f.payments.paid, 1)
}

func TestReputation(t *testing.T) {
	f := setup(t, Options{})
	addr := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	code, e := f.do(t, http.MethodGet, "/api/reputation/"+addr, nil)
	require.Equal(t, http.StatusOK, code, e.Error)

	var v reputation.View
	require.NoError(t, json.Unmarshal(e.Data, &v))
	assert.Equal(t, uint64(720), v.Score)
	assert.Equal(t, addr, v.Address)

	code, e = f.do(t, http.MethodPost, "/api/reputation/update", map[string]interface{}{"userAddress": addr, "score": 0})
	require.Equal(t, http.StatusOK, code, e.Error)
	assert.JSONEq(t, `{"hash":"0xrep","score":0}`, string(e.Data))
	assert.Equal(t, uint64(0), f.reps.updated[addr])

	code, _ = f.do(t, http.MethodPost, "/api/reputation/update", map[string]interface{}{"userAddress": addr})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/reputation/update", map[string]interface{}{"userAddress": addr, "score": 1001})
	assert.Equal(t, http.StatusBadRequest, code)

	f.reps.err = errors.New("no copy and chain unreachable")
	code, _ = f.do(t, http.MethodGet, "/api/reputation/"+addr, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRateLimit(t *testing.T) {
	f := setup(t, Options{RateLimit: 2, RateWindow: 900})

	for i := 0; i < 2; i++ {
		code, _ := f.do(t, http.MethodGet, "/", nil)
		require.Equal(t, http.StatusOK, code)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// another client has its own bucket
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:4321"
	w = httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBodyLimit(t *testing.T) {
	f := setup(t, Options{})

	body := `{"seller":"` + strings.Repeat("a", MaxBody) + `"}`
	code, e := f.do(t, http.MethodPost, "/api/escrow/create", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, errTooLarge.Error(), e.Error)
	assert.Empty(t, f.escrows.calls)
}

func TestCORS(t *testing.T) {
	f := setup(t, Options{CORSOrigins: []string{"https://app.linka.xyz"}})

	r := httptest.NewRequest(http.MethodOptions, "/api/escrow/create", nil)
	r.Header.Set("Origin", "https://app.linka.xyz")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Header.Set("Access-Control-Request-Headers", walletSecretHeader)

	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	assert.Equal(t, "https://app.linka.xyz", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example")

	w = httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerTimeouts(t *testing.T) {
	cases := []struct {
		name      string
		chainWait int
		write     time.Duration
	}{
		{name: "noChainWait", write: timeout * time.Second},
		{name: "defaultReceiptWait", chainWait: 60, write: 75 * time.Second},
		{name: "longReceiptWait", chainWait: 90, write: 105 * time.Second},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := New(Deps{}, Options{ChainWait: c.chainWait})
			srv := s.server(http.NotFoundHandler(), "localhost:8080")
			assert.Equal(t, "localhost:8080", srv.Addr)
			assert.Equal(t, c.write, srv.WriteTimeout)
			assert.Greater(t, srv.WriteTimeout, time.Duration(c.chainWait)*time.Second)
			assert.Equal(t, timeout*time.Second, srv.ReadTimeout)
		})
	}
}
