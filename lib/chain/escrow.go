package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EscrowManager is the binding to the escrow manager contract.
type EscrowManager struct {
	*contract
}

// EscrowManager binds the escrow manager deployed at addr.
func (c *Client) EscrowManager(addr string) (*EscrowManager, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	k, err := c.bind("EscrowManager", a, escrowABI)
	if err != nil {
		return nil, err
	}

	return &EscrowManager{k}, nil
}

// CreateEscrow opens an escrow for seller. The amount is attached as value only when token is the native coin;
// tokens must have been approved beforehand. The returned receipt carries the escrow id assigned by the contract.
func (m *EscrowManager) CreateEscrow(ctx context.Context, seller common.Address, amount *big.Int, token common.Address, deadline *big.Int) (*Receipt, error) {
	var value *big.Int
	if IsNative(token) {
		value = amount
	}

	r, err := m.transact(ctx, value, "createEscrow", seller, amount, token, deadline)
	if err != nil {
		return nil, err
	}

	rec := toReceipt(r)
	if rec.EscrowID, err = m.decodeCreated(r.Logs); err != nil {
		return rec, &CallError{Contract: m.name, Method: "createEscrow", Hash: rec.TxHash, Err: err}
	}

	return rec, nil
}

// ReleaseEscrow pays the escrowed funds to the seller.
func (m *EscrowManager) ReleaseEscrow(ctx context.Context, id EscrowID) (*Receipt, error) {
	return m.lifecycle(ctx, "releaseEscrow", id)
}

// RefundEscrow returns the escrowed funds to the buyer.
func (m *EscrowManager) RefundEscrow(ctx context.Context, id EscrowID) (*Receipt, error) {
	return m.lifecycle(ctx, "refundEscrow", id)
}

// DisputeEscrow freezes the escrow pending arbitration.
func (m *EscrowManager) DisputeEscrow(ctx context.Context, id EscrowID) (*Receipt, error) {
	return m.lifecycle(ctx, "disputeEscrow", id)
}

func (m *EscrowManager) lifecycle(ctx context.Context, method string, id EscrowID) (*Receipt, error) {
	r, err := m.transact(ctx, nil, method, [32]byte(id))
	if err != nil {
		return nil, err
	}

	return toReceipt(r), nil
}

// Escrow reads the on-chain state of escrow id.
func (m *EscrowManager) Escrow(ctx context.Context, id EscrowID) (EscrowView, error) {
	out, err := m.call(ctx, "escrows", [32]byte(id))
	if err != nil {
		return EscrowView{}, err
	}

	if len(out) != 8 {
		return EscrowView{}, &CallError{Contract: m.name, Method: "escrows", Err: fmt.Errorf("unexpected %d outputs", len(out))}
	}

	return EscrowView{
		Buyer:    out[0].(common.Address).Hex(),
		Seller:   out[1].(common.Address).Hex(),
		Amount:   FormatAmount(out[2].(*big.Int)),
		Token:    out[3].(common.Address).Hex(),
		Deadline: out[4].(*big.Int).Uint64(),
		Released: out[5].(bool),
		Refunded: out[6].(bool),
		Disputed: out[7].(bool),
	}, nil
}

// Receipt fetches the receipt of a submitted transaction. It returns ErrPending while the transaction is not mined
// and a CallError wrapping ErrReverted if it failed. The escrow id is set when the receipt carries an EscrowCreated
// event of this contract.
func (m *EscrowManager) Receipt(ctx context.Context, hash string) (*Receipt, error) {
	r, err := m.c.ec.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrPending
	}

	if err != nil {
		return nil, &CallError{Contract: m.name, Method: "receipt", Hash: hash, Err: err}
	}

	rec := toReceipt(r)
	if r.Status != types.ReceiptStatusSuccessful {
		return rec, &CallError{Contract: m.name, Method: "receipt", Hash: hash, Err: ErrReverted}
	}

	rec.EscrowID, _ = m.decodeCreated(r.Logs)

	return rec, nil
}

// FindCreated searches EscrowCreated events emitted since fromBlock for an escrow opened by the operator with the
// given terms. It returns ErrNoEvent when there is none.
func (m *EscrowManager) FindCreated(ctx context.Context, fromBlock uint64, seller common.Address, amount *big.Int, token common.Address, deadline *big.Int) (*Receipt, error) {
	ev := m.abi.Events["EscrowCreated"]

	logs, err := m.c.ec.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{m.addr},
		Topics:    [][]common.Hash{{ev.ID}, nil, {common.BytesToHash(m.c.from.Bytes())}, {common.BytesToHash(seller.Bytes())}},
	})
	if err != nil {
		return nil, &CallError{Contract: m.name, Method: "EscrowCreated", Err: err}
	}

	for _, l := range logs {
		if l.Removed || len(l.Topics) < 4 {
			continue
		}

		vals, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(vals) != 3 {
			continue
		}

		if vals[0].(*big.Int).Cmp(amount) == 0 && vals[1].(common.Address) == token && vals[2].(*big.Int).Cmp(deadline) == 0 {
			return &Receipt{TxHash: l.TxHash.Hex(), Block: l.BlockNumber, EscrowID: EscrowID(l.Topics[1])}, nil
		}
	}

	return nil, ErrNoEvent
}

func (m *EscrowManager) decodeCreated(logs []*types.Log) (EscrowID, error) {
	ev := m.abi.Events["EscrowCreated"]

	for _, l := range logs {
		if l.Address == m.addr && len(l.Topics) > 1 && l.Topics[0] == ev.ID {
			return EscrowID(l.Topics[1]), nil
		}
	}

	return EscrowID{}, ErrNoEvent
}
