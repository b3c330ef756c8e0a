package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Summarizer aggregates the transaction log over a window
type Summarizer interface {
	Summarize(ctx context.Context, from, to time.Time) (models.TransactionSummary, error)
}

// SummaryNotifier delivers a finished summary, for example by email
type SummaryNotifier interface {
	SendDailySummary(summary models.TransactionSummary) error
}

// Reporter runs the daily transaction summary on a cron schedule
type Reporter struct {
	cron     *cron.Cron
	source   Summarizer
	notifier SummaryNotifier
	now      func() time.Time
	log      *logrus.Logger
}

// NewReporter creates a reporter. notifier may be nil, in which case summaries are only logged.
func NewReporter(source Summarizer, notifier SummaryNotifier, log *logrus.Logger) *Reporter {
	return &Reporter{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		source:   source,
		notifier: notifier,
		now:      time.Now,
		log:      log,
	}
}

// Schedule registers the report job with a standard five-field cron spec
func (r *Reporter) Schedule(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.WithError(err).Error("Daily transaction report failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", spec, err)
	}
	return nil
}

// Start runs the scheduler in the background
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce summarizes the previous full UTC day
func (r *Reporter) RunOnce(ctx context.Context) (models.TransactionSummary, error) {
	to := r.now().UTC().Truncate(24 * time.Hour)
	from := to.Add(-24 * time.Hour)

	summary, err := r.source.Summarize(ctx, from, to)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize transactions: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"from":            from.Format(time.RFC3339),
		"to":              to.Format(time.RFC3339),
		"approved_count":  summary.ApprovedCount,
		"declined_count":  summary.DeclinedCount,
		"approved_amount": summary.ApprovedAmount.StringFixed(2),
		"declined_amount": summary.DeclinedAmount.StringFixed(2),
	}).Info("Daily transaction summary")

	if r.notifier != nil {
		if err := r.notifier.SendDailySummary(summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
