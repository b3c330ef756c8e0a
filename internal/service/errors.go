package service

import (
	"errors"
	"fmt"

	"github.com/Dan9191/card-payments/internal/utils"
)

var (
	// ErrInvalidAmount is returned when the amount is not positive or has more than two decimal places
	ErrInvalidAmount = errors.New("transaction amount must be greater than zero with at most two decimal places")

	// ErrInvalidDescription is returned when the description exceeds MaxDescriptionLength characters
	ErrInvalidDescription = errors.New("transaction description must be at most 255 characters")

	// ErrStorage is returned when the card store or transaction log fails
	ErrStorage = errors.New("storage failure")

	// ErrGateway is returned when the authorizer could not produce a decision.
	// The transaction is still recorded as DECLINED.
	ErrGateway = errors.New("payment gateway error")
)

// InvalidCardError reports which validation check rejected the card
type InvalidCardError struct {
	Reason utils.CardCheck
}

func (e *InvalidCardError) Error() string {
	return fmt.Sprintf("invalid credit card details: %s check failed", e.Reason)
}
