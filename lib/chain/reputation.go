package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ReputationRegistry is the binding to the reputation contract, the authoritative source of scores.
type ReputationRegistry struct {
	*contract
}

// ReputationRegistry binds the reputation registry deployed at addr.
func (c *Client) ReputationRegistry(addr string) (*ReputationRegistry, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	k, err := c.bind("ReputationRegistry", a, reputationABI)
	if err != nil {
		return nil, err
	}

	return &ReputationRegistry{k}, nil
}

// UpdateReputation sets the score of user.
func (r *ReputationRegistry) UpdateReputation(ctx context.Context, user common.Address, score uint64) (*Receipt, error) {
	rc, err := r.transact(ctx, nil, "updateReputation", user, new(big.Int).SetUint64(score))
	if err != nil {
		return nil, err
	}

	return toReceipt(rc), nil
}

// Reputation reads the score of user.
func (r *ReputationRegistry) Reputation(ctx context.Context, user common.Address) (uint64, error) {
	out, err := r.call(ctx, "getReputation", user)
	if err != nil {
		return 0, err
	}

	return out[0].(*big.Int).Uint64(), nil
}
