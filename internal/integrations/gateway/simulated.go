package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/Dan9191/card-payments/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultDeclinedCard is the test card number the simulated gateway declines by default
const DefaultDeclinedCard = "4111111111111112"

// Simulated is an in-process stand-in for a payment gateway. It waits for a
// configurable latency and declines a fixed set of card numbers.
type Simulated struct {
	declined map[string]struct{}
	latency  time.Duration
	log      *logrus.Logger
}

// NewSimulated creates a simulated gateway that declines the given card numbers
func NewSimulated(declined []string, latency time.Duration, log *logrus.Logger) *Simulated {
	set := make(map[string]struct{}, len(declined))
	for _, number := range declined {
		if n := utils.NormalizeCardNumber(number); n != "" {
			set[n] = struct{}{}
		}
	}
	return &Simulated{declined: set, latency: latency, log: log}
}

// Authorize approves every card not on the decline list once the latency has elapsed.
// Cancellation of ctx is reported as an error.
func (s *Simulated) Authorize(ctx context.Context, card models.CardDetails, amount decimal.Decimal) (models.AuthorizationOutcome, error) {
	s.log.Debugf("Connecting to simulated payment gateway for %s", amount.StringFixed(2))

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.OutcomeDeclined, fmt.Errorf("simulated gateway: %w", ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return models.OutcomeDeclined, fmt.Errorf("simulated gateway: %w", err)
	}

	if _, ok := s.declined[utils.NormalizeCardNumber(card.CardNumber)]; ok {
		return models.OutcomeDeclined, nil
	}
	return models.OutcomeApproved, nil
}
