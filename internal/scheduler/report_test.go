package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/Dan9191/card-payments/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type captureNotifier struct {
	sent []models.TransactionSummary
	err  error
}

func (c *captureNotifier) SendDailySummary(s models.TransactionSummary) error {
	c.sent = append(c.sent, s)
	return c.err
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seed(t *testing.T, store *repository.Memory, day time.Time) {
	t.Helper()
	ctx := context.Background()
	card := &models.CardRecord{ID: uuid.NewString(), Fingerprint: "fp", LastFour: "1111", CreatedAt: day}
	if _, err := store.Insert(ctx, card); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	for i, e := range []struct {
		amount string
		status models.TransactionStatus
		offset time.Duration
	}{
		{"10.00", models.StatusApproved, 2 * time.Hour},
		{"20.50", models.StatusApproved, 5 * time.Hour},
		{"7.25", models.StatusDeclined, 9 * time.Hour},
		{"99.00", models.StatusApproved, 26 * time.Hour}, // next day
	} {
		err := store.Append(ctx, &models.TransactionRecord{
			ID:        uuid.NewString(),
			CardID:    card.ID,
			Amount:    decimal.RequireFromString(e.amount),
			Status:    e.status,
			CreatedAt: day.Add(e.offset).Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

func TestReporter_RunOnce(t *testing.T) {
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	store := repository.NewMemory()
	seed(t, store, day)

	notifier := &captureNotifier{}
	r := NewReporter(store, notifier, testLogger())
	r.now = func() time.Time { return day.Add(24*time.Hour + 30*time.Minute) }

	summary, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if !summary.From.Equal(day) || !summary.To.Equal(day.Add(24*time.Hour)) {
		t.Errorf("unexpected window %v - %v", summary.From, summary.To)
	}
	if summary.ApprovedCount != 2 || summary.DeclinedCount != 1 {
		t.Errorf("unexpected counts %+v", summary)
	}
	if !summary.ApprovedAmount.Equal(decimal.RequireFromString("30.50")) {
		t.Errorf("approved amount = %s", summary.ApprovedAmount)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("expected one notification, got %d", len(notifier.sent))
	}
}

func TestReporter_NotifierError(t *testing.T) {
	store := repository.NewMemory()
	notifier := &captureNotifier{err: errors.New("smtp down")}
	r := NewReporter(store, notifier, testLogger())

	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Error("expected notifier error to surface")
	}
}

func TestReporter_Schedule(t *testing.T) {
	r := NewReporter(repository.NewMemory(), nil, testLogger())
	if err := r.Schedule("0 0 * * *"); err != nil {
		t.Errorf("Schedule() error = %v", err)
	}
	if err := r.Schedule("not a schedule"); err == nil {
		t.Error("expected error for invalid spec")
	}
	r.Start()
	r.Stop()
}
