// Package boot wires the Linka services from their configuration: logging, the chain client and contract bindings,
// the mirror database and intent log, the message broker and the reputation cache.
package boot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/escrow"
	"github.com/tarancss/linka/lib/cache"
	"github.com/tarancss/linka/lib/chain"
	"github.com/tarancss/linka/lib/config"
	"github.com/tarancss/linka/lib/msg"
	"github.com/tarancss/linka/lib/msg/amqp"
	"github.com/tarancss/linka/lib/store"
	"github.com/tarancss/linka/lib/store/db"
	"github.com/tarancss/linka/lib/store/mongo"
	"github.com/tarancss/linka/lib/wallet"
	"github.com/tarancss/linka/reputation"
)

// AMQP is the only message broker type supported.
const AMQP = "amqp"

// brokerRetry is how long to wait for the broker to come up before the second and last attempt.
var brokerRetry = 10 * time.Second //nolint:gochecknoglobals // overridden in tests

// Logging sets the logrus level and format from LOG_LEVEL (default info) and LOG_FORMAT (text or json).
func Logging() {
	lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		lvl = log.InfoLevel
	}

	log.SetLevel(lvl)

	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// Config loads a .env file if there is one, then the configuration from path and the environment, and validates it.
func Config(path string) (config.ServiceConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("cannot read .env file")
	}

	conf, err := config.ExtractConfiguration(path)
	if err != nil {
		return conf, err
	}

	return conf, conf.Validate()
}

// Broker connects to the configured message broker and declares its exchange. With no broker type, events are
// discarded.
func Broker(conf config.ServiceConfig) (msg.Broker, error) {
	switch conf.MbType {
	case AMQP:
		mb, err := amqp.New(conf.MbConn)
		if err != nil {
			log.WithError(err).Warnf("message broker not ready, retrying in %s", brokerRetry)
			time.Sleep(brokerRetry)

			if mb, err = amqp.New(conf.MbConn); err != nil {
				return nil, err
			}
		}

		if err = mb.Setup(nil); err != nil {
			_ = mb.Close()

			return nil, err
		}

		return mb, nil
	case "":
		log.Warn("No message broker configured, events will be discarded")

		return msg.Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown message broker type: %s", conf.MbType)
	}
}

// Stack holds the components shared by the Linka services.
type Stack struct {
	Chain    *chain.Client
	Escrows  *chain.EscrowManager
	Disputes *chain.DisputeResolution
	Payments *chain.PaymentProcessor
	Registry *chain.ReputationRegistry

	DB      store.DB
	Intents store.IntentLog
	Cache   *cache.Redis
	Broker  msg.Broker

	Orchestrator *escrow.Orchestrator
	Reputation   *reputation.Service
}

// Load connects every component described by conf. On error, whatever was connected is closed.
func Load(ctx context.Context, conf config.ServiceConfig) (st *Stack, err error) {
	st = &Stack{}

	defer func() {
		if err != nil {
			st.Close()
			st = nil
		}
	}()

	key, err := wallet.OperatorKey(conf.Chain)
	if err != nil {
		return st, err
	}

	if st.Chain, err = chain.Dial(ctx, conf.Chain, key); err != nil {
		return st, err
	}

	log.WithFields(log.Fields{"node": conf.Chain.Node, "operator": st.Chain.From().Hex()}).Info("Chain client loaded")

	if err = st.bind(conf.Contracts); err != nil {
		return st, err
	}

	if st.DB, err = db.New(conf.DBType, conf.DBConn, conf.DBName); err != nil {
		return st, err
	}

	if m, ok := st.DB.(*mongo.Mongo); ok {
		if err = m.EnsureIndexes(ctx); err != nil {
			return st, err
		}
	}

	log.WithField("type", conf.DBType).Info("Connected to mirror database")

	if st.Intents, err = intentLog(ctx, conf, st.DB); err != nil {
		return st, err
	}

	log.WithField("type", conf.IntentDBType).Info("Connected to intent log")

	if st.Broker, err = Broker(conf); err != nil {
		return st, err
	}

	// reputation.New must get an untyped nil when there is no cache
	var rc reputation.Cache

	if conf.Redis.Addr != "" {
		if st.Cache, err = cache.New(ctx, conf.Redis); err != nil {
			log.WithError(err).Warn("Reputation cache unreachable, serving without it")

			err = nil
		} else {
			rc = st.Cache
		}
	}

	st.Orchestrator = escrow.New(st.Chain, st.Escrows, st.Disputes, st.DB, st.Intents, st.Broker, conf.Chain.NativeSymbol)
	st.Reputation = reputation.New(st.Registry, rc, st.DB)

	return st, nil
}

func (st *Stack) bind(c config.Contracts) (err error) {
	if st.Escrows, err = st.Chain.EscrowManager(c.Escrow); err != nil {
		return err
	}

	if st.Disputes, err = st.Chain.DisputeResolution(c.Dispute); err != nil {
		return err
	}

	if st.Payments, err = st.Chain.PaymentProcessor(c.Payment); err != nil {
		return err
	}

	st.Registry, err = st.Chain.ReputationRegistry(c.Reputation)

	return err
}

// intentLog reuses the mirror connection when the intent log lives in the same database.
func intentLog(ctx context.Context, conf config.ServiceConfig, mirror store.DB) (store.IntentLog, error) {
	if conf.IntentDBType == conf.DBType && conf.IntentDBConn == conf.DBConn {
		if il, ok := mirror.(store.IntentLog); ok {
			return il, nil
		}
	}

	return db.NewIntentLog(ctx, conf.IntentDBType, conf.IntentDBConn, conf.DBName)
}

// Close releases every connection held by the stack.
func (st *Stack) Close() {
	if st.Broker != nil {
		if err := st.Broker.Close(); err != nil {
			log.WithError(err).Warn("Error closing message broker")
		}
	}

	if st.Cache != nil {
		if err := st.Cache.Close(); err != nil {
			log.WithError(err).Warn("Error closing reputation cache")
		}
	}

	if st.Intents != nil && interface{}(st.Intents) != interface{}(st.DB) {
		if err := db.Close(st.Intents); err != nil {
			log.WithError(err).Warn("Error closing intent log")
		}
	}

	if st.DB != nil {
		if err := db.Close(st.DB); err != nil {
			log.WithError(err).Warn("Error closing mirror database")
		}
	}

	if st.Chain != nil {
		st.Chain.Close()
	}
}
