// Package main: reconciler service.
//
// The reconciler sweeps the intent log shared with the linka service, drives open intents to a closed status and
// consumes mirrorfailed events to repair them at once. It also refreshes reputation copies that got too old.
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

	"github.com/tarancss/linka/lib/boot"
	"github.com/tarancss/linka/reconciler"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9101/metrics")
	flag.Parse()

	boot.Logging()

	// extract configuration
	conf, err := boot.Config(*confPath)
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	log.Infof("Configuration:%s", conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := boot.Load(ctx, conf)
	if err != nil {
		log.WithError(err).Fatal("Cannot load services")
	}

	defer st.Close()

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Info("Serving metrics API")

			h := http.NewServeMux()
			h.Handle("/metrics", promhttp.Handler())

			if err := http.ListenAndServe(":9101", h); !errors.Is(err, http.ErrServerClosed) { //nolint:gosec // metrics only
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	r := reconciler.New(st.Intents, st.Orchestrator, st.Reputation, st.Broker, conf.Reconcile)

	done, err := r.Reconcile(ctx)
	if err != nil {
		log.WithError(err).Error("Cannot start reconciler")

		return
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("Program killed !")
		// let the sweep in progress finish
		r.Stop()
	}()

	log.Infof("Reconcile: %s", <-done)
}
