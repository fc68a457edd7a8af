package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const timeout = 15

// Handler returns the API router wrapped in the CORS, rate limiting, body limit and metrics middleware.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.homeHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	// escrow lifecycle
	api.HandleFunc("/escrow/create", s.createHandler).Methods(http.MethodPost)
	api.HandleFunc("/escrow/{escrowId}/release", s.releaseHandler).Methods(http.MethodPost)
	api.HandleFunc("/escrow/{escrowId}/refund", s.refundHandler).Methods(http.MethodPost)
	api.HandleFunc("/escrow/{escrowId}/dispute", s.disputeHandler).Methods(http.MethodPost)
	api.HandleFunc("/escrow/{escrowId}", s.escrowHandler).Methods(http.MethodGet)
	// dispute resolution
	api.HandleFunc("/escrow/{escrowId}/disputes/open", s.openDisputeHandler).Methods(http.MethodPost)
	api.HandleFunc("/escrow/{escrowId}/disputes/evidence", s.evidenceHandler).Methods(http.MethodPost)
	api.HandleFunc("/escrow/{escrowId}/disputes/resolve", s.resolveHandler).Methods(http.MethodPost)
	api.HandleFunc("/escrow/{escrowId}/disputes", s.getDisputeHandler).Methods(http.MethodGet)
	// identities and wallets
	api.HandleFunc("/identity/create", s.createUserHandler).Methods(http.MethodPost)
	api.HandleFunc("/identity/{email}", s.userHandler).Methods(http.MethodGet)
	api.HandleFunc("/identity/{email}/profile", s.profileHandler).Methods(http.MethodPut)
	api.HandleFunc("/identity/{email}/link-farcaster", s.farcasterHandler).Methods(http.MethodPost)
	api.HandleFunc("/identity/{email}/wallet/balance", s.balanceHandler).Methods(http.MethodGet)
	api.HandleFunc("/vendors", s.vendorsHandler).Methods(http.MethodGet)
	// transaction mirror and payments
	api.HandleFunc("/transactions/payment/direct", s.paymentHandler).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{transactionId}/timeline", s.timelineHandler).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{email}", s.transactionsHandler).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{email}/{transactionId}", s.transactionHandler).Methods(http.MethodGet)
	// reputation
	api.HandleFunc("/reputation/update", s.updateReputationHandler).Methods(http.MethodPost)
	api.HandleFunc("/reputation/{userAddress}", s.reputationHandler).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.notAllowedHandler)
	r.Use(instrument, limitBody)

	var h http.Handler = r
	if s.opts.RateLimit > 0 {
		h = newLimiter(s.opts.RateLimit, time.Duration(s.opts.RateWindow)*time.Second).middleware(h)
	}

	return withCORS(s.opts.CORSOrigins, h)
}

// server returns an http server for addr. Handlers may wait on a receipt, so the write timeout covers ChainWait on top
// of the base timeout.
func (s *Service) server(h http.Handler, addr string) *http.Server {
	write := timeout * time.Second
	if s.opts.ChainWait > 0 {
		write += time.Duration(s.opts.ChainWait) * time.Second
	}

	return &http.Server{
		Handler:      h,
		Addr:         addr,
		WriteTimeout: write,
		ReadTimeout:  timeout * time.Second,
	}
}

// Init sets up and starts the http/https server to service the RESTful API. If sslPort, sslCert and sslKey are
// informed, it will start an https (TLS) server on the specified endpoint. It returns when Stop is called.
func (s *Service) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	h := s.Handler()

	// start http server
	if port != "" {
		s.s = s.server(h, endpoint+":"+port)

		go func() {
			if e := s.s.ListenAndServe(); !errors.Is(e, http.ErrServerClosed) {
				err = e
			}
		}()

		log.Infof("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		s.ss = s.server(h, endpoint+":"+sslPort)

		go func() {
			if e := s.ss.ListenAndServeTLS(sslCert, sslKey); !errors.Is(e, http.ErrServerClosed) {
				errTLS = e
			}
		}()

		log.Infof("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-s.sc

	return fmt.Sprintf("shutdown http server:%v, https server:%v", err, errTLS)
}
