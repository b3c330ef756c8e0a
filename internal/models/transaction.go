package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the final outcome recorded for a transaction
type TransactionStatus string

const (
	StatusApproved TransactionStatus = "APPROVED"
	StatusDeclined TransactionStatus = "DECLINED"
)

// AuthorizationOutcome is the answer an authorizer gives for a charge
type AuthorizationOutcome int

const (
	OutcomeDeclined AuthorizationOutcome = iota
	OutcomeApproved
)

// Status maps an authorization outcome to the status written to the log
func (o AuthorizationOutcome) Status() TransactionStatus {
	if o == OutcomeApproved {
		return StatusApproved
	}
	return StatusDeclined
}

func (o AuthorizationOutcome) String() string {
	return string(o.Status())
}

// TransactionRecord is an append-only entry in the transaction log
type TransactionRecord struct {
	ID          string            `json:"id"`
	CardID      string            `json:"card_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description,omitempty"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}
