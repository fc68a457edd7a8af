package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DisputeResolution is the binding to the dispute resolution contract.
type DisputeResolution struct {
	*contract
}

// DisputeResolution binds the dispute resolution contract deployed at addr.
func (c *Client) DisputeResolution(addr string) (*DisputeResolution, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	k, err := c.bind("DisputeResolution", a, disputeABI)
	if err != nil {
		return nil, err
	}

	return &DisputeResolution{k}, nil
}

// OpenDispute starts arbitration for escrow id with a first piece of evidence.
func (d *DisputeResolution) OpenDispute(ctx context.Context, id EscrowID, evidence string) (*Receipt, error) {
	r, err := d.transact(ctx, nil, "openDispute", [32]byte(id), evidence)
	if err != nil {
		return nil, err
	}

	return toReceipt(r), nil
}

// AddEvidence appends evidence to an open dispute.
func (d *DisputeResolution) AddEvidence(ctx context.Context, id EscrowID, evidence string) (*Receipt, error) {
	r, err := d.transact(ctx, nil, "addEvidence", [32]byte(id), evidence)
	if err != nil {
		return nil, err
	}

	return toReceipt(r), nil
}

// ResolveDispute settles the dispute in favour of winner.
func (d *DisputeResolution) ResolveDispute(ctx context.Context, id EscrowID, winner common.Address) (*Receipt, error) {
	r, err := d.transact(ctx, nil, "resolveDispute", [32]byte(id), winner)
	if err != nil {
		return nil, err
	}

	return toReceipt(r), nil
}

// Dispute reads the dispute of escrow id.
func (d *DisputeResolution) Dispute(ctx context.Context, id EscrowID) (DisputeView, error) {
	out, err := d.call(ctx, "getDispute", [32]byte(id))
	if err != nil {
		return DisputeView{}, err
	}

	v := DisputeView{
		EscrowID:  id.Hex(),
		Initiator: out[0].(common.Address).Hex(),
		Evidence:  out[1].([]string),
		Resolved:  out[3].(bool),
		CreatedAt: out[4].(*big.Int).Uint64(),
	}
	if w := out[2].(common.Address); !IsNative(w) {
		v.Winner = w.Hex()
	}

	if v.Evidence == nil {
		v.Evidence = []string{}
	}

	return v, nil
}
