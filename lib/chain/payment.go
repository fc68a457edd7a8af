package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentProcessor is the binding to the direct payment contract.
type PaymentProcessor struct {
	*contract
}

// PaymentProcessor binds the payment processor deployed at addr.
func (c *Client) PaymentProcessor(addr string) (*PaymentProcessor, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	k, err := c.bind("PaymentProcessor", a, paymentABI)
	if err != nil {
		return nil, err
	}

	return &PaymentProcessor{k}, nil
}

// MakePayment pays payee directly. As for escrows, value is attached only for the native coin.
func (p *PaymentProcessor) MakePayment(ctx context.Context, payee common.Address, amount *big.Int, token common.Address) (*Receipt, error) {
	var value *big.Int
	if IsNative(token) {
		value = amount
	}

	r, err := p.transact(ctx, value, "makePayment", payee, amount, token)
	if err != nil {
		return nil, err
	}

	return toReceipt(r), nil
}
