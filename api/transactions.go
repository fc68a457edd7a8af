package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/reputation"
)

// transactionsHandler lists the escrows where the user is buyer or seller, newest first.
func (s *Service) transactionsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	q := r.URL.Query()
	f := store.TxFilter{Status: q.Get("status"), Type: q.Get("type")}

	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 1 {
			err = fmt.Errorf("%w: limit must be a positive number", ErrBadRequest)

			return
		}
	}

	var txs []store.Transaction
	if txs, err = s.DB.ListTransactions(r.Context(), strings.ToLower(mux.Vars(r)["email"]), f); err == nil {
		data = txs
	}
}

// transactionHandler replies one escrow of the user.
func (s *Service) transactionHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	v := mux.Vars(r)
	email := strings.ToLower(v["email"])

	var t *store.Transaction
	if t, err = s.DB.GetTransaction(r.Context(), v["transactionId"]); err != nil {
		return
	}

	if !strings.EqualFold(t.BuyerEmail, email) && !strings.EqualFold(t.SellerEmail, email) {
		err = fmt.Errorf("transaction %s of %s: %w", v["transactionId"], email, store.ErrNotFound)

		return
	}

	data = t
}

func (s *Service) timelineHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var t *store.Transaction
	if t, err = s.DB.GetTransaction(r.Context(), mux.Vars(r)["transactionId"]); err == nil {
		data = t.Timeline
	}
}

// paymentReq is the body of a direct payment. An empty token means the native coin.
type paymentReq struct {
	Payee        string `json:"payee"`
	Amount       string `json:"amount"`
	TokenAddress string `json:"tokenAddress"`
}

// paymentHandler pays payee directly through the payment processor.
func (s *Service) paymentHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var req paymentReq
	if err = decode(r, &req); err != nil {
		return
	}

	payee, err := chain.ParseAddress(req.Payee)
	if err != nil {
		return
	}

	amount, err := chain.ParseAmount(req.Amount)
	if err != nil {
		return
	}

	var token common.Address
	if req.TokenAddress != "" {
		if token, err = chain.ParseAddress(req.TokenAddress); err != nil {
			return
		}
	}

	var rec *chain.Receipt
	if rec, err = s.Payments.MakePayment(r.Context(), payee, amount, token); err == nil {
		data = map[string]string{"hash": rec.TxHash}
	}
}

func (s *Service) reputationHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var v reputation.View
	if v, err = s.Reputations.Get(r.Context(), mux.Vars(r)["userAddress"]); err == nil {
		data = v
	}
}

// reputationReq is the body of a reputation update.
type reputationReq struct {
	UserAddress string  `json:"userAddress"`
	Score       *uint64 `json:"score"`
}

func (s *Service) updateReputationHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var req reputationReq
	if err = decode(r, &req); err != nil {
		return
	}

	if req.Score == nil {
		err = fmt.Errorf("%w: score is required", ErrBadRequest)

		return
	}

	var rec *chain.Receipt
	if rec, err = s.Reputations.Update(r.Context(), req.UserAddress, *req.Score); err == nil {
		data = map[string]interface{}{"hash": rec.TxHash, "score": *req.Score}
	}
}
