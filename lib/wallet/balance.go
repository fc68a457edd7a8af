package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	log "github.com/sirupsen/logrus"
	"github.com/tarancss/ethcli"

	"github.com/tarancss/linka/lib/chain"
)

// Balance statuses.
const (
	BalanceConfirmed = "confirmed"
	BalanceUnknown   = "unknown" // provider unreachable, amounts are the zero sentinel
)

// Balance is the tagged result of a balance lookup. When Status is BalanceUnknown the amounts are "0.0" and must not
// be read as an empty wallet.
type Balance struct {
	Address string `json:"address"`
	Native  string `json:"balance"`
	Token   string `json:"tokenBalance,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// BalanceReader reads native and token balances of an address. tok is nil when no token was asked for.
type BalanceReader interface {
	Balance(ctx context.Context, address, token string) (native, tok *big.Int, err error)
}

// Balance looks up the balances of the wallet sealed in ciphertext. Provider failures, or a nil provider, never fail
// the call: they are logged and reported as BalanceUnknown. Only decryption errors are returned.
func (k *Keystore) Balance(ctx context.Context, p BalanceReader, ciphertext, secret, token string) (Balance, error) {
	addr, err := k.Address(ciphertext, secret)
	if err != nil {
		return Balance{}, err
	}

	b := Balance{Address: addr.Hex(), Native: "0.0", Status: BalanceUnknown}
	if token != "" {
		b.Token = "0.0"
	}

	l := log.WithFields(log.Fields{"func": "Balance", "address": b.Address, "token": token})

	if p == nil {
		b.Error = "no balance provider configured"
		l.Warn("balance unknown: no provider")

		return b, nil
	}

	native, tok, err := p.Balance(ctx, b.Address, token)
	if err != nil {
		b.Error = "balance provider unreachable"
		l.WithError(err).Warn("balance unknown: provider failed")

		return b, nil
	}

	b.Status = BalanceConfirmed
	b.Native = chain.FormatAmount(native)

	if token != "" {
		b.Token = chain.FormatAmount(tok)
	}

	return b, nil
}

// Ethcli reads balances through an ethcli connection to the node.
type Ethcli struct {
	c *ethcli.EthCli
}

// NewEthcli connects to node, using secret for Basic Authentication when not empty.
func NewEthcli(node, secret string) (*Ethcli, error) {
	c := ethcli.Init(node, secret)
	if c == nil {
		return nil, fmt.Errorf("cannot connect to balance provider in %s", node)
	}

	return &Ethcli{c: c}, nil
}

// Balance implements BalanceReader. A token unknown to the chain yields a zero token balance, with the native
// balance read again on its own.
func (e *Ethcli) Balance(_ context.Context, address, token string) (*big.Int, *big.Int, error) {
	native, tok, err := e.c.GetBalance(address, token)
	if err == nil {
		return native, tok, nil
	}

	if token == "" || !errors.Is(err, ethcli.ErrBadAmt) {
		return nil, nil, fmt.Errorf("cannot get balance of %s: %w", address, err)
	}

	// the token contract answered with no data, typically because it does not exist on this chain
	if native, _, err = e.c.GetBalance(address, ""); err != nil {
		return nil, nil, fmt.Errorf("cannot get balance of %s: %w", address, err)
	}

	return native, new(big.Int), nil
}

// Close ends the connection.
func (e *Ethcli) Close() {
	if err := e.c.End(); err != nil {
		log.WithError(err).Warn("cannot close balance provider")
	}
}
