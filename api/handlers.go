package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/escrow"
	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/util"
	"github.com/tarancss/linka/lib/wallet"
	"github.com/tarancss/linka/reputation"
)

// Errors returned to client requests.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthorized    = errors.New("invalid wallet secret")
	errTooManyRequests = errors.New("too many requests from this IP, please try again later")
	errNotAllowed      = errors.New("method not allowed")
	errNoRoute         = errors.New("route not found")
	errTooLarge        = errors.New("request body too large")
)

// Response defines the envelope returned to the client making the http request.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// status maps an error to the http status and message replied to the client.
func status(err error) (int, string) {
	var (
		ve *escrow.ValidationError
		pe *escrow.PersistenceError
		ce *chain.CallError
		mb *http.MaxBytesError
	)

	switch {
	case errors.As(err, &ve), errors.Is(err, ErrBadRequest), errors.Is(err, chain.ErrBadAddress),
		errors.Is(err, chain.ErrBadAmount), errors.Is(err, chain.ErrBadEscrowID), errors.Is(err, reputation.ErrBadScore):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &mb), errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge, errTooLarge.Error()
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errNoRoute):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errNotAllowed):
		return http.StatusMethodNotAllowed, err.Error()
	case errors.Is(err, errTooManyRequests):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, wallet.ErrDecryption):
		return http.StatusInternalServerError, "failed to get wallet"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, pe.Error()
	case errors.As(err, &ce):
		return http.StatusInternalServerError, ce.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// reply writes the envelope for the outcome of a handler and logs the request. Handlers defer it.
func reply(rw http.ResponseWriter, r *http.Request, data interface{}, err error) {
	res := Response{Success: err == nil, Data: data}
	code := http.StatusOK

	l := log.WithFields(log.Fields{"remote": r.RemoteAddr, "method": r.Method, "uri": r.RequestURI})

	if err != nil {
		code, res.Error = status(err)
		if code >= http.StatusInternalServerError {
			l.WithError(err).Error("httpreq")
		} else {
			l.WithError(err).Info("httpreq")
		}
	} else {
		l.Debug("httpreq")
	}

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(&res)
}

// decode reads the JSON body of r into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)

	var mb *http.MaxBytesError

	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &mb):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
}

// homeHandler replies the health of the service.
func (s *Service) homeHandler(rw http.ResponseWriter, r *http.Request) {
	reply(rw, r, map[string]interface{}{
		"message":  "Linka Backend Service is running!",
		"version":  Version,
		"services": []string{"identity", "escrow", "payment", "reputation", "transactions", "vendors"},
	}, nil)
}

func (s *Service) notFoundHandler(rw http.ResponseWriter, r *http.Request) {
	reply(rw, r, nil, errNoRoute)
}

func (s *Service) notAllowedHandler(rw http.ResponseWriter, r *http.Request) {
	reply(rw, r, nil, errNotAllowed)
}

// createHandler opens an escrow. When the escrow was created on chain but could not be mirrored, the reply carries
// the hash and the escrow id with mirrored false along with the error.
func (s *Service) createHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var req escrow.CreateRequest
	if err = decode(r, &req); err != nil {
		return
	}

	var res *escrow.CreateResult

	res, err = s.Escrows.Create(r.Context(), req)
	if res == nil {
		return
	}

	if err != nil {
		data = map[string]interface{}{"hash": res.Hash, "transactionId": res.TransactionID, "escrowId": res.EscrowID, "mirrored": false}

		return
	}

	data = res
}

func (s *Service) releaseHandler(rw http.ResponseWriter, r *http.Request) {
	s.lifecycle(rw, r, s.Escrows.Release)
}

func (s *Service) refundHandler(rw http.ResponseWriter, r *http.Request) {
	s.lifecycle(rw, r, s.Escrows.Refund)
}

// disputeReq is the body of a dispute request.
type disputeReq struct {
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence"`
}

func (s *Service) disputeHandler(rw http.ResponseWriter, r *http.Request) {
	var req disputeReq
	if err := decode(r, &req); err != nil {
		reply(rw, r, nil, err)

		return
	}

	s.lifecycle(rw, r, func(ctx context.Context, id string) (*escrow.Result, error) {
		return s.Escrows.Dispute(ctx, id, req.Reason, req.Evidence)
	})
}

// lifecycle replies the hash of a release, refund or dispute, and whether the mirror was updated.
func (s *Service) lifecycle(rw http.ResponseWriter, r *http.Request, op func(context.Context, string) (*escrow.Result, error)) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var res *escrow.Result
	if res, err = op(r.Context(), mux.Vars(r)["escrowId"]); res != nil {
		data = res
	}
}

func (s *Service) escrowHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var v chain.EscrowView
	if v, err = s.Escrows.Get(r.Context(), mux.Vars(r)["escrowId"]); err == nil {
		data = v
	}
}

// evidenceReq is the body of the dispute resolution requests. Winner is also accepted as winnerAddress.
type evidenceReq struct {
	Evidence      string `json:"evidence"`
	Winner        string `json:"winner"`
	WinnerAddress string `json:"winnerAddress"`
}

func (s *Service) disputeTx(rw http.ResponseWriter, r *http.Request, op func(context.Context, string, evidenceReq) (*escrow.Result, error)) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var req evidenceReq
	if err = decode(r, &req); err != nil {
		return
	}

	var res *escrow.Result
	if res, err = op(r.Context(), mux.Vars(r)["escrowId"], req); err == nil {
		data = res
	}
}

func (s *Service) openDisputeHandler(rw http.ResponseWriter, r *http.Request) {
	s.disputeTx(rw, r, func(ctx context.Context, id string, req evidenceReq) (*escrow.Result, error) {
		return s.Escrows.OpenDispute(ctx, id, req.Evidence)
	})
}

func (s *Service) evidenceHandler(rw http.ResponseWriter, r *http.Request) {
	s.disputeTx(rw, r, func(ctx context.Context, id string, req evidenceReq) (*escrow.Result, error) {
		return s.Escrows.AddEvidence(ctx, id, req.Evidence)
	})
}

func (s *Service) resolveHandler(rw http.ResponseWriter, r *http.Request) {
	s.disputeTx(rw, r, func(ctx context.Context, id string, req evidenceReq) (*escrow.Result, error) {
		return s.Escrows.ResolveDispute(ctx, id, util.FirstNonEmpty(req.Winner, req.WinnerAddress))
	})
}

func (s *Service) getDisputeHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var data interface{}

	defer func() { reply(rw, r, data, err) }()

	var v chain.DisputeView
	if v, err = s.Escrows.GetDispute(r.Context(), mux.Vars(r)["escrowId"]); err == nil {
		data = v
	}
}
