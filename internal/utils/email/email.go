package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Dan9191/card-payments/internal/config"
	"github.com/Dan9191/card-payments/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// BuildDailySummary renders the subject and plain-text body of a summary email
func BuildDailySummary(summary models.TransactionSummary) (string, string) {
	subject := fmt.Sprintf("Card transactions summary for %s", summary.From.Format("2006-01-02"))

	var body strings.Builder
	body.WriteString("Hello,\n\n")
	fmt.Fprintf(&body, "Card transactions between %s and %s:\n\n",
		summary.From.Format("2006-01-02 15:04"), summary.To.Format("2006-01-02 15:04"))
	fmt.Fprintf(&body, "Approved: %d (total %s)\n", summary.ApprovedCount, summary.ApprovedAmount.StringFixed(2))
	fmt.Fprintf(&body, "Declined: %d (total %s)\n", summary.DeclinedCount, summary.DeclinedAmount.StringFixed(2))
	fmt.Fprintf(&body, "Total:    %d\n", summary.Total())
	body.WriteString("\nBest regards,\nCard Payments Service")

	return subject, body.String()
}

// SendDailySummary emails the transaction summary to the configured recipient
func (s *Sender) SendDailySummary(summary models.TransactionSummary) error {
	subject, body := BuildDailySummary(summary)

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.ReportRecipient}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send summary email to %s: %v", s.cfg.ReportRecipient, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.ReportRecipient, e.Subject)
	return nil
}
