package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Errors returned by the chain clients.
var (
	ErrReverted    = errors.New("transaction reverted")
	ErrPending     = errors.New("transaction not mined yet")
	ErrNoEvent     = errors.New("expected event not found in receipt")
	ErrNoSigner    = errors.New("no signer key configured")
	ErrBadEscrowID = errors.New("escrow id must be 0x followed by 64 hex digits")
	ErrBadAddress  = errors.New("invalid address")
	ErrBadAmount   = errors.New("invalid amount")
)

// CallError is returned when a contract call or transaction fails. Hash is set when the transaction reached the node.
type CallError struct {
	Contract string
	Method   string
	Hash     string
	Err      error
}

func (e *CallError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s.%s tx %s: %v", e.Contract, e.Method, e.Hash, e.Err)
	}

	return fmt.Sprintf("%s.%s: %v", e.Contract, e.Method, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Submitted reports whether the failed transaction was accepted by the node, so its outcome is still to be known.
func (e *CallError) Submitted() bool {
	return e.Hash != "" && !errors.Is(e.Err, ErrReverted)
}

// EscrowID is the contract assigned identifier of an escrow.
type EscrowID [32]byte

// ParseEscrowID decodes a 0x prefixed 32-byte hex string.
func ParseEscrowID(s string) (EscrowID, error) {
	var id EscrowID

	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return id, ErrBadEscrowID
	}

	b, err := hexutil.Decode(s)
	if err != nil {
		return id, ErrBadEscrowID
	}

	copy(id[:], b)

	return id, nil
}

// Hex returns the 0x prefixed hex representation of the id.
func (id EscrowID) Hex() string { return hexutil.Encode(id[:]) }

func (id EscrowID) String() string { return id.Hex() }

// IsZero reports whether the id is unset.
func (id EscrowID) IsZero() bool { return id == EscrowID{} }

// ParseAddress validates and converts a hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}

	return common.HexToAddress(s), nil
}

// IsNative reports whether token denotes the chain's native coin. Only the zero address does.
func IsNative(token common.Address) bool {
	return token == common.Address{}
}

// Receipt summarises a mined transaction.
type Receipt struct {
	TxHash   string
	Block    uint64
	EscrowID EscrowID // set only for receipts carrying an EscrowCreated event
}

// EscrowView is the on-chain state of an escrow reshaped for clients.
type EscrowView struct {
	Buyer    string `json:"buyer"`
	Seller   string `json:"seller"`
	Amount   string `json:"amount"`
	Token    string `json:"token"`
	Deadline uint64 `json:"deadline"`
	Released bool   `json:"released"`
	Refunded bool   `json:"refunded"`
	Disputed bool   `json:"disputed"`
}

// DisputeView is the on-chain state of a dispute.
type DisputeView struct {
	EscrowID  string   `json:"escrowId"`
	Initiator string   `json:"initiator"`
	Evidence  []string `json:"evidence"`
	Winner    string   `json:"winner,omitempty"`
	Resolved  bool     `json:"resolved"`
	CreatedAt uint64   `json:"createdAt"`
}
