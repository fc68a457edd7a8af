// Package chain implements typed clients to the Linka smart contracts deployed on an EVM network. Each contract has its
// own binding exposing one Go method per on-chain method; transactions are signed by the operator key held by the
// Client and are only reported once mined.
package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/lib/config"
)

const defaultWait = 60 * time.Second

var callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals // prometheus collectors
	Name: "linka_chain_calls_total",
	Help: "Contract calls and transactions by contract, method and outcome.",
}, []string{"contract", "method", "outcome"})

// Client is a connection to an EVM node plus the operator signer.
type Client struct {
	ec      *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	wait    time.Duration
}

// Dial connects to the node in conf. key may be nil for read-only use.
func Dial(ctx context.Context, conf config.ChainConfig, key *ecdsa.PrivateKey) (*Client, error) {
	rc, err := rpc.DialContext(ctx, conf.Node)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to chain node %s: %w", conf.Node, err)
	}

	if conf.Secret != "" {
		rc.SetHeader("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(":"+conf.Secret)))
	}

	return newClient(ctx, ethclient.NewClient(rc), key, conf.ChainID, time.Duration(conf.Timeout)*time.Second)
}

func newClient(ctx context.Context, ec *ethclient.Client, key *ecdsa.PrivateKey, chainID int64, wait time.Duration) (*Client, error) {
	c := &Client{ec: ec, key: key, wait: wait}

	if key != nil {
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	if c.wait <= 0 {
		c.wait = defaultWait
	}

	if chainID > 0 {
		c.chainID = big.NewInt(chainID)

		return c, nil
	}

	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()

		return nil, fmt.Errorf("cannot get chain id: %w", err)
	}

	c.chainID = id

	return c, nil
}

// Close ends the connection to the node.
func (c *Client) Close() {
	c.ec.Close()
}

// From returns the operator address, the msg.sender of every transaction.
func (c *Client) From() common.Address {
	return c.from
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, &CallError{Contract: "node", Method: "blockNumber", Err: err}
	}

	return n, nil
}

// TokenSymbol reads the ERC-20 symbol of token.
func (c *Client) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	k, err := c.bind("ERC20", token, erc20ABI)
	if err != nil {
		return "", err
	}

	out, err := k.call(ctx, "symbol")
	if err != nil {
		return "", err
	}

	return out[0].(string), nil
}

// contract is an ABI bound to a deployed address.
type contract struct {
	name  string
	addr  common.Address
	abi   abi.ABI
	bound *bind.BoundContract
	c     *Client
}

func (c *Client) bind(name string, addr common.Address, def string) (*contract, error) {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s ABI: %w", name, err)
	}

	return &contract{
		name:  name,
		addr:  addr,
		abi:   parsed,
		bound: bind.NewBoundContract(addr, parsed, c.ec, c.ec, c.ec),
		c:     c,
	}, nil
}

// Address returns the contract address.
func (k *contract) Address() common.Address {
	return k.addr
}

func (k *contract) fail(method, hash string, err error) error {
	callsTotal.WithLabelValues(k.name, method, "error").Inc()
	log.WithFields(log.Fields{"contract": k.name, "method": method, "hash": hash}).WithError(err).Error("contract call failed")

	return &CallError{Contract: k.name, Method: method, Hash: hash, Err: err}
}

// transact signs and submits a call to method attaching value (may be nil), then waits for it to be mined.
func (k *contract) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	if k.c.key == nil {
		return nil, k.fail(method, "", ErrNoSigner)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(k.c.key, k.c.chainID)
	if err != nil {
		return nil, k.fail(method, "", err)
	}

	opts.Context = ctx
	opts.Value = value

	if opts.GasPrice, err = k.c.ec.SuggestGasPrice(ctx); err != nil {
		return nil, k.fail(method, "", err)
	}

	tx, err := k.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, k.fail(method, "", err)
	}

	hash := tx.Hash().Hex()
	log.WithFields(log.Fields{"contract": k.name, "method": method, "hash": hash, "value": value}).Info("transaction submitted")

	wctx, cancel := context.WithTimeout(ctx, k.c.wait)
	defer cancel()

	r, err := bind.WaitMined(wctx, k.c.ec, tx)
	if err != nil {
		return nil, k.fail(method, hash, err)
	}

	if r.Status != types.ReceiptStatusSuccessful {
		return r, k.fail(method, hash, ErrReverted)
	}

	callsTotal.WithLabelValues(k.name, method, "ok").Inc()

	return r, nil
}

// call runs a read-only method.
func (k *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}

	if err := k.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, k.fail(method, "", err)
	}

	callsTotal.WithLabelValues(k.name, method, "ok").Inc()

	return out, nil
}

func toReceipt(r *types.Receipt) *Receipt {
	rec := &Receipt{TxHash: r.TxHash.Hex()}
	if r.BlockNumber != nil {
		rec.Block = r.BlockNumber.Uint64()
	}

	return rec
}
