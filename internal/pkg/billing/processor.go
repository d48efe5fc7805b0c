package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest is what the service hands a processor adapter when creating
// a hosted invoice. Amount is the USD source amount; Currency is the crypto
// currency the customer chose to pay with.
type ChargeRequest struct {
	OrderNumber string
	OrderName   string
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
}

// Charge is the processor's answer: its transaction id and the hosted
// payment page the customer is redirected to.
type Charge struct {
	TxnID     string
	HostedURL string
}

// CallbackEvent is the normalized content of a verified webhook payload.
// Status is the processor's raw token; NormalizeStatus maps it onto the
// internal invoice status enum.
type CallbackEvent struct {
	OrderNumber string
	TxnID       string
	Status      string
}

// Processor is the adapter capability one payment integration implements.
// The reconciliation service never branches on which processor is behind it
// beyond looking the adapter up by name.
type Processor interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	VerifyCallback(raw []byte) bool
	ParseCallback(raw []byte) (*CallbackEvent, error)
	NormalizeStatus(processorStatus string) string
}
