package models

import (
	"github.com/shopspring/decimal"
)

// PaymentRequest is what the ledger asks the payment gateway to open
type PaymentRequest struct {
	Amount         decimal.Decimal
	Description    string
	IdempotenceKey string
	Metadata       map[string]string
}

// Gateway payment statuses that end a payment
const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusCanceled  = "canceled"
)

// PaymentSession is a hosted payment as the gateway reports it
type PaymentSession struct {
	ID              string
	Status          string
	Amount          decimal.Decimal
	ConfirmationURL string
}

// Outcome maps a final gateway status onto a deposit outcome; ok is false while the payment is still open
func (p *PaymentSession) Outcome() (outcome DepositOutcome, ok bool) {
	switch p.Status {
	case PaymentStatusSucceeded:
		return DepositOutcomeSucceeded, true
	case PaymentStatusCanceled:
		return DepositOutcomeCancelled, true
	}
	return "", false
}

// DepositIntent is a pending deposit together with the URL the user must visit
type DepositIntent struct {
	Transaction     *LedgerTransaction
	ConfirmationURL string
}
