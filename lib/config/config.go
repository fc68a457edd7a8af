// Package config provides helper functionality to read the Linka services configuration from a JSON config file and
// OS ENV variables. The default configuration is overridden first by:
//
// - a valid JSON config file (see cmd/conf.json for a sample) and then by
//
// - OS ENV variables. The deployment names used by the Linka backend are honoured (BASE_RPC_URL, PRIVATE_KEY,
// ESCROW_MANAGER_ADDRESS, PAYMENT_PROCESSOR_ADDRESS, REPUTATION_REGISTRY_ADDRESS, DISPUTE_RESOLUTION_ADDRESS,
// MONGODB_URI, ENCRYPTION_KEY, BACKEND_PORT); everything else is prefixed with LINKA_ (ie. LINKA_MBTYPE,
// LINKA_REDIS_ADDR, ...).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Default configuration variables.
var (
	DBTypeDefault       = "mongodb"
	DBNameDefault       = "linka"
	RestfulEPDefault    = ""
	PortDefault         = "4000"
	NativeSymbolDefault = "ETH"
	TimeoutDefault      = 60
	RedisTTLDefault     = 3600
	RateLimitDefault    = 100
	RateWindowDefault   = 900
	ReconcileDefault    = ReconcileConfig{Interval: 30, Grace: 120, Abandon: 3600, ReputationAge: 3600}
)

// Errors returned by Validate.
var (
	ErrMissing = errors.New("missing required configuration")
	ErrInvalid = errors.New("invalid configuration")
)

// ChainConfig defines the connection to the EVM node and the operator signer. Secret is an optional password for
// nodes requiring Basic Authentication. The signer is either Key (hex) or derived from Seed at the HD path
// HDWallet/HDChange/HDIndex.
type ChainConfig struct {
	Node         string `json:"node"`
	Secret       string `json:"secret"`
	ChainID      int64  `json:"chainId"`
	Key          string `json:"key"`
	Seed         string `json:"hdseed"`
	HDWallet     uint32 `json:"hdWallet"`
	HDChange     uint8  `json:"hdChange"`
	HDIndex      uint32 `json:"hdIndex"`
	Timeout      int    `json:"timeout"` // seconds to wait for a receipt
	NativeSymbol string `json:"nativeSymbol"`
}

// Contracts holds the deployed contract addresses.
type Contracts struct {
	Escrow     string `json:"escrowManager"`
	Payment    string `json:"paymentProcessor"`
	Reputation string `json:"reputationRegistry"`
	Dispute    string `json:"disputeResolution"`
}

// RedisConfig configures the reputation cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TTL      int    `json:"ttl"` // seconds
}

// ReconcileConfig configures the reconciler sweeps. All values are seconds.
type ReconcileConfig struct {
	Interval      int `json:"interval"`
	Grace         int `json:"grace"`         // minimum intent age before it is swept
	Abandon       int `json:"abandon"`       // age after which an intent not settled on chain is given up
	ReputationAge int `json:"reputationAge"` // maximum age of an off-chain reputation copy
}

// ServiceConfig contains the fields for the linka and reconciler services.
type ServiceConfig struct {
	DBType          string          `json:"dbtype"`
	DBConn          string          `json:"dbconn"`
	DBName          string          `json:"dbname"`
	IntentDBType    string          `json:"intentDbtype"` // defaults to DBType
	IntentDBConn    string          `json:"intentDbconn"` // defaults to DBConn
	RestfulEndpoint string          `json:"endpoint"`
	Port            string          `json:"port"`
	SSLPort         string          `json:"sslport"`
	SSLCert         string          `json:"sslcert"`
	SSLKey          string          `json:"sslkey"`
	MbType          string          `json:"mbtype"`
	MbConn          string          `json:"mbconn"`
	Chain           ChainConfig     `json:"chain"`
	Contracts       Contracts       `json:"contracts"`
	EncryptionKey   string          `json:"encryptionKey"`
	Redis           RedisConfig     `json:"redis"`
	CORSOrigins     []string        `json:"corsOrigins"`
	RateLimit       int             `json:"rateLimit"`  // requests per window per client
	RateWindow      int             `json:"rateWindow"` // seconds
	Reconcile       ReconcileConfig `json:"reconcile"`
}

// ExtractConfiguration reads from the given JSON filename and returns the ServiceConfig or an error otherwise.
func ExtractConfiguration(filename string) (ServiceConfig, error) {
	conf := ServiceConfig{
		DBType:          DBTypeDefault,
		DBName:          DBNameDefault,
		RestfulEndpoint: RestfulEPDefault,
		Port:            PortDefault,
		Chain:           ChainConfig{Timeout: TimeoutDefault, NativeSymbol: NativeSymbolDefault},
		Redis:           RedisConfig{TTL: RedisTTLDefault},
		RateLimit:       RateLimitDefault,
		RateWindow:      RateWindowDefault,
		Reconcile:       ReconcileDefault,
	}
	// read from config file first
	if filename != "" {
		file, err := os.Open(filename)
		if err != nil {
			log.WithField("file", filename).Error("Configuration file not found.")

			return conf, fmt.Errorf("cannot open config file: %w", err)
		}
		defer file.Close()

		if err = json.NewDecoder(file).Decode(&conf); err != nil {
			return conf, fmt.Errorf("cannot decode config file %s: %w", filename, err)
		}
	}
	// then override config values with OS ENV variables
	for env, field := range map[string]*string{
		"MONGODB_URI":                 &conf.DBConn,
		"BACKEND_PORT":                &conf.Port,
		"BASE_RPC_URL":                &conf.Chain.Node,
		"PRIVATE_KEY":                 &conf.Chain.Key,
		"ESCROW_MANAGER_ADDRESS":      &conf.Contracts.Escrow,
		"PAYMENT_PROCESSOR_ADDRESS":   &conf.Contracts.Payment,
		"REPUTATION_REGISTRY_ADDRESS": &conf.Contracts.Reputation,
		"DISPUTE_RESOLUTION_ADDRESS":  &conf.Contracts.Dispute,
		"ENCRYPTION_KEY":              &conf.EncryptionKey,
		"LINKA_DBTYPE":                &conf.DBType,
		"LINKA_DBCONN":                &conf.DBConn,
		"LINKA_DBNAME":                &conf.DBName,
		"LINKA_INTENT_DBTYPE":         &conf.IntentDBType,
		"LINKA_INTENT_DBCONN":         &conf.IntentDBConn,
		"LINKA_ENDPOINT":              &conf.RestfulEndpoint,
		"LINKA_PORT":                  &conf.Port,
		"LINKA_SSLPORT":               &conf.SSLPort,
		"LINKA_SSLCERT":               &conf.SSLCert,
		"LINKA_SSLKEY":                &conf.SSLKey,
		"LINKA_MBTYPE":                &conf.MbType,
		"LINKA_MBCONN":                &conf.MbConn,
		"LINKA_NODE_SECRET":           &conf.Chain.Secret,
		"LINKA_HDSEED":                &conf.Chain.Seed,
		"LINKA_NATIVE_SYMBOL":         &conf.Chain.NativeSymbol,
		"LINKA_REDIS_ADDR":            &conf.Redis.Addr,
		"LINKA_REDIS_PASSWORD":        &conf.Redis.Password,
	} {
		if tmp := os.Getenv(env); tmp != "" {
			*field = tmp
		}
	}

	for env, field := range map[string]*int{
		"LINKA_CHAIN_TIMEOUT":      &conf.Chain.Timeout,
		"LINKA_REDIS_DB":           &conf.Redis.DB,
		"LINKA_REDIS_TTL":          &conf.Redis.TTL,
		"LINKA_RATE_LIMIT":         &conf.RateLimit,
		"LINKA_RATE_WINDOW":        &conf.RateWindow,
		"LINKA_RECONCILE_INTERVAL": &conf.Reconcile.Interval,
		"LINKA_RECONCILE_GRACE":    &conf.Reconcile.Grace,
		"LINKA_RECONCILE_ABANDON":  &conf.Reconcile.Abandon,
		"LINKA_REPUTATION_AGE":     &conf.Reconcile.ReputationAge,
	} {
		if tmp := os.Getenv(env); tmp != "" {
			v, err := strconv.Atoi(tmp)
			if err != nil {
				return conf, fmt.Errorf("OS ENV %s is not a number: %w", env, err)
			}

			*field = v
		}
	}

	if tmp := os.Getenv("LINKA_CHAIN_ID"); tmp != "" {
		id, err := strconv.ParseInt(tmp, 10, 64)
		if err != nil {
			return conf, fmt.Errorf("OS ENV LINKA_CHAIN_ID is not a number: %w", err)
		}

		conf.Chain.ChainID = id
	}

	if tmp := os.Getenv("LINKA_CORS_ORIGINS"); tmp != "" {
		conf.CORSOrigins = strings.Split(tmp, ",")
	}

	if conf.IntentDBType == "" {
		conf.IntentDBType = conf.DBType
	}

	if conf.IntentDBConn == "" {
		conf.IntentDBConn = conf.DBConn
	}

	return conf, nil
}

// Validate checks that every required value is present: node URL, signer, the four contract addresses, the database
// connection string and the encryption key. The reconcile grace period must outlast the receipt wait, or intents still
// being confirmed by a request would be swept too.
func (c ServiceConfig) Validate() error {
	var missing []string

	check := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}

	check("BASE_RPC_URL", c.Chain.Node)
	check("ESCROW_MANAGER_ADDRESS", c.Contracts.Escrow)
	check("PAYMENT_PROCESSOR_ADDRESS", c.Contracts.Payment)
	check("REPUTATION_REGISTRY_ADDRESS", c.Contracts.Reputation)
	check("DISPUTE_RESOLUTION_ADDRESS", c.Contracts.Dispute)
	check("MONGODB_URI", c.DBConn)
	check("ENCRYPTION_KEY", c.EncryptionKey)

	if c.Chain.Key == "" && c.Chain.Seed == "" {
		missing = append(missing, "PRIVATE_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	if c.Reconcile.Grace <= c.Chain.Timeout {
		return fmt.Errorf("%w: reconcile grace (%ds) must be longer than chain timeout (%ds)",
			ErrInvalid, c.Reconcile.Grace, c.Chain.Timeout)
	}

	return nil
}

// String hides secrets so the configuration can be logged at startup.
func (c ServiceConfig) String() string {
	cp := c
	for _, s := range []*string{&cp.Chain.Key, &cp.Chain.Seed, &cp.Chain.Secret, &cp.EncryptionKey, &cp.Redis.Password} {
		if *s != "" {
			*s = "***"
		}
	}

	b, _ := json.Marshal(cp)

	return string(b)
}
