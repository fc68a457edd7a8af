package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarancss/hd"

	"github.com/tarancss/linka/lib/config"
)

// ErrNoOperator is returned when neither an operator key nor an HD seed is configured.
var ErrNoOperator = errors.New("no operator key or HD seed configured")

// OperatorKey returns the key signing contract transactions. A raw key takes precedence; otherwise the key is
// derived from the HD seed at path HDWallet/HDChange/HDIndex.
func OperatorKey(conf config.ChainConfig) (*ecdsa.PrivateKey, error) {
	if conf.Key != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(conf.Key, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid operator key: %w", err)
		}

		return key, nil
	}

	if conf.Seed == "" {
		return nil, ErrNoOperator
	}

	seed, err := hex.DecodeString(conf.Seed)
	if err != nil {
		return nil, fmt.Errorf("invalid HD seed: %w", err)
	}

	hdw, err := hd.Init(seed)
	if err != nil {
		return nil, fmt.Errorf("cannot init HD wallet: %w", err)
	}

	_, key, _, err := hdw.Address(conf.HDWallet, conf.HDChange, conf.HDIndex)
	if err != nil {
		return nil, fmt.Errorf("cannot derive HD key %d/%d/%d: %w", conf.HDWallet, conf.HDChange, conf.HDIndex, err)
	}

	return crypto.ToECDSA(key)
}
