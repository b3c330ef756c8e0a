package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionSummary aggregates the transaction log over a time window
type TransactionSummary struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	ApprovedCount  int64           `json:"approved_count"`
	DeclinedCount  int64           `json:"declined_count"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	DeclinedAmount decimal.Decimal `json:"declined_amount"`
}

// Total returns the number of transactions in the window
func (s TransactionSummary) Total() int64 {
	return s.ApprovedCount + s.DeclinedCount
}
