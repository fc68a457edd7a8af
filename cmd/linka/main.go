// Package main: linka service.
//
// The service exposes the escrow lifecycle, identities, vendors, the transaction mirror, direct payments and
// reputation over a RESTful API. Chain operations are recorded in the intent log before being attempted; the
// reconciler service (cmd/reconciler) repairs the ones left open, so both must share the intent log and the broker.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/api"
	"github.com/tarancss/linka/lib/boot"
	"github.com/tarancss/linka/lib/wallet"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100/metrics")
	flag.Parse()

	boot.Logging()

	// extract configuration
	conf, err := boot.Config(*confPath)
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	log.Infof("Configuration:%s", conf)

	ks, err := wallet.New(conf.EncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("Cannot load keystore")
	}

	st, err := boot.Load(context.Background(), conf)
	if err != nil {
		log.WithError(err).Fatal("Cannot load services")
	}

	defer st.Close()

	deps := api.Deps{
		Escrows:     st.Orchestrator,
		Reputations: st.Reputation,
		Payments:    st.Payments,
		DB:          st.DB,
		Keystore:    ks,
	}

	// balances are read through a separate connection so a slow node never blocks the signer
	if bal, err := wallet.NewEthcli(conf.Chain.Node, conf.Chain.Secret); err != nil {
		log.WithError(err).Warn("Balance provider unavailable, balances will be reported unknown")
	} else {
		defer bal.Close()

		deps.Balances = bal
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Info("Serving metrics API")

			h := http.NewServeMux()
			h.Handle("/metrics", promhttp.Handler())

			if err := http.ListenAndServe(":9100", h); !errors.Is(err, http.ErrServerClosed) { //nolint:gosec // metrics only
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	s := api.New(deps, api.Options{
		CORSOrigins: conf.CORSOrigins,
		RateLimit:   conf.RateLimit,
		RateWindow:  conf.RateWindow,
		ChainWait:   conf.Chain.Timeout,
	})

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan struct{})

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("Program killed !")
		// wait for the http servers to end in-flight requests
		s.Stop()
		close(finish)
	}()

	// init RESTful API, wait for its return and log response
	log.Infof("Linka: %s", s.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}
