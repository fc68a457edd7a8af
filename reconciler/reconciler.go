// Package reconciler implements the reconciler microservice. The reconciler sweeps the intent log for chain operations
// left open by a crash or a failed mirror write and drives them to a closed status, repairs at once the operations
// reported by mirrorfailed events, and refreshes reputation copies older than the configured age.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/escrow"
	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/config"
	"github.com/tarancss/linka/lib/msg"
	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/util"
)

// Queue is the broker queue the reconciler consumes mirrorfailed events from.
const Queue = "linka.reconciler"

const batch = 100

// Repair outcomes.
const (
	OutcomeRepaired  = "repaired"
	OutcomePending   = "pending"
	OutcomeAbandoned = "abandoned"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
)

var (
	repairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals // prometheus collectors
		Name: "linka_reconciler_repairs_total",
		Help: "Intent repairs attempted by the reconciler, labeled by trigger and outcome.",
	}, []string{"trigger", "outcome"})
	openIntents = promauto.NewGauge(prometheus.GaugeOpts{ //nolint:gochecknoglobals // prometheus collectors
		Name: "linka_reconciler_open_intents",
		Help: "Open intents found by the last sweep.",
	})
)

// Repairer drives an open intent towards a closed status.
type Repairer interface {
	Repair(ctx context.Context, in store.Intent) (string, error)
}

// Syncer refreshes the reputation copies older than olderThan.
type Syncer interface {
	SyncStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Stats summarises one sweep.
type Stats struct {
	Open      int
	Repaired  int
	Failed    int
	Pending   int
	Abandoned int
	Errors    int
	Synced    int
}

// Reconciler implements the reconciler service.
type Reconciler struct {
	intents store.IntentLog
	repair  Repairer
	reps    Syncer
	mb      msg.Broker
	conf    config.ReconcileConfig
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// New instantiates a reconciler. reps may be nil to skip reputation syncs; a nil broker disables event consumption.
func New(il store.IntentLog, r Repairer, reps Syncer, mb msg.Broker, conf config.ReconcileConfig) *Reconciler {
	if mb == nil {
		mb = msg.Discard{}
	}

	return &Reconciler{
		intents: il,
		repair:  r,
		reps:    reps,
		mb:      mb,
		conf:    conf,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Reconcile starts the event consumer and the sweep loop. A sweep runs at once and then every configured interval.
// The returned channel receives a message when the loop ends after Stop is called.
func (r *Reconciler) Reconcile(ctx context.Context) (chan string, error) {
	if err := r.ManageEvents(ctx); err != nil {
		return nil, err
	}

	ret := make(chan string, 1)

	interval := time.Duration(r.conf.Interval) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.ReconcileDefault.Interval) * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			s, err := r.Sweep(ctx)
			if err != nil {
				log.WithError(err).Error("sweep failed")
			} else if s.Open > 0 || s.Synced > 0 {
				log.WithFields(log.Fields{
					"open": s.Open, "repaired": s.Repaired, "failed": s.Failed, "pending": s.Pending,
					"abandoned": s.Abandoned, "errors": s.Errors, "synced": s.Synced,
				}).Info("sweep done")
			}

			select {
			case <-t.C:
			case <-r.stop:
				ret <- "reconciler: Done!"

				return
			case <-ctx.Done():
				ret <- fmt.Sprintf("reconciler: %v", ctx.Err())

				return
			}
		}
	}()

	return ret, nil
}

// Stop ends the sweep loop. A sweep in progress is finished first.
func (r *Reconciler) Stop() {
	r.once.Do(func() { close(r.stop) })
}

// Sweep repairs the intents open for longer than the grace period, abandons those that never reached the chain
// within the abandon period, and syncs stale reputation copies.
func (r *Reconciler) Sweep(ctx context.Context) (Stats, error) {
	var s Stats

	now := r.now()

	ins, err := r.intents.OpenIntents(ctx, now.Add(-time.Duration(r.conf.Grace)*time.Second), batch)
	if err != nil {
		return s, fmt.Errorf("cannot load open intents: %w", err)
	}

	s.Open = len(ins)
	openIntents.Set(float64(s.Open))

	for i := range ins {
		switch r.fix(ctx, "sweep", &ins[i]) {
		case OutcomeRepaired:
			s.Repaired++
		case OutcomeFailed:
			s.Failed++
		case OutcomePending:
			s.Pending++
		case OutcomeAbandoned:
			s.Abandoned++
		case OutcomeError:
			s.Errors++
		}
	}

	if r.reps != nil && r.conf.ReputationAge > 0 {
		if s.Synced, err = r.reps.SyncStale(ctx, time.Duration(r.conf.ReputationAge)*time.Second, batch); err != nil {
			log.WithError(err).Warn("reputation sync failed")
		}
	}

	return s, nil
}

// fix repairs one intent and returns the outcome. An intent still unresolved once the abandon period has passed since
// it was created is abandoned, whether its transaction was never found or never mined. Any other attempt that leaves
// the intent open touches it, so the next sweep starts with intents that have waited longest.
func (r *Reconciler) fix(ctx context.Context, trigger string, in *store.Intent) (outcome string) {
	l := log.WithFields(log.Fields{"intent": in.ID, "op": in.Op, "status": in.Status, "trigger": trigger})

	defer func() { repairsTotal.WithLabelValues(trigger, outcome).Inc() }()

	status, err := r.repair.Repair(ctx, *in)

	switch {
	case err == nil && status == store.IntentFailed:
		return OutcomeFailed
	case err == nil:
		return OutcomeRepaired
	case errors.Is(err, chain.ErrPending), errors.Is(err, escrow.ErrNotOnChain):
		if r.now().Sub(in.CreatedAt) < time.Duration(r.conf.Abandon)*time.Second {
			l.WithError(err).Debug("intent not settled on chain yet")
			r.touch(ctx, l, in.ID, err)

			return OutcomePending
		}

		if err = r.intents.UpdateIntent(ctx, in.ID, store.IntentUpdate{Status: store.IntentAbandoned, Error: err.Error()}); err != nil {
			l.WithError(err).Error("cannot abandon intent")

			return OutcomeError
		}

		l.Warn("intent abandoned, never settled on chain")

		return OutcomeAbandoned
	default:
		l.WithError(err).Warn("repair failed")
		r.touch(ctx, l, in.ID, err)

		return OutcomeError
	}
}

// touch records a failed attempt on an intent that stays open.
func (r *Reconciler) touch(ctx context.Context, l *log.Entry, id string, cause error) {
	if err := r.intents.UpdateIntent(ctx, id, store.IntentUpdate{Error: cause.Error()}); err != nil {
		l.WithError(err).Warn("cannot record repair attempt")
	}
}

// ManageEvents starts a go routine consuming mirrorfailed events, repairing the intent each one refers to without
// waiting for the next sweep. The event is acknowledged once the repair has been attempted. Resolved disputes are
// consumed too and logged, since they do not change the mirror.
func (r *Reconciler) ManageEvents(ctx context.Context) error {
	mut := new(sync.Mutex)

	mut.Lock()

	evCh, errCh, err := r.mb.GetEvents(Queue, mut, msg.KindMirrorFailed, msg.KindResolved)
	if err != nil {
		return fmt.Errorf("reconciler: cannot get events: %w", err)
	}

	go func() {
		log.Info("Start listening to escrow events")

		for {
			select {
			case e, ok := <-evCh:
				if !ok {
					log.Info("Stop listening to escrow events")

					return
				}

				r.handle(ctx, e)
				mut.Unlock()
			case e, ok := <-errCh:
				if !ok {
					errCh = nil

					continue
				}

				log.WithError(e).Warn("Received undecodable event")
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (r *Reconciler) handle(ctx context.Context, e msg.Event) {
	l := log.WithFields(log.Fields{"kind": e.Kind, "intent": e.IntentID, "escrow": e.EscrowID, "tx": e.TxHash})

	if e.Kind == msg.KindResolved {
		l.Info("dispute resolved, mirror status left as is")

		return
	}

	if e.IntentID == "" {
		l.Warn("mirrorfailed event without intent")

		return
	}

	in, err := r.intents.GetIntent(ctx, e.IntentID)
	if err != nil {
		l.WithError(err).Warn("cannot load intent of mirrorfailed event")

		return
	}

	if !util.In(store.OpenStatuses, in.Status) {
		l.WithField("status", in.Status).Debug("intent already closed")

		return
	}

	l.WithField("outcome", r.fix(ctx, "event", in)).Info("mirrorfailed event handled")
}
