package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/Dan9191/card-payments/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CardStore persists encrypted card records keyed by fingerprint
type CardStore interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.CardRecord, error)
	FindByID(ctx context.Context, id string) (*models.CardRecord, error)
	Insert(ctx context.Context, card *models.CardRecord) (string, error)
}

// TransactionLog is the append-only record of processed transactions
type TransactionLog interface {
	Append(ctx context.Context, tx *models.TransactionRecord) error
	ListByCard(ctx context.Context, cardID string) ([]models.TransactionRecord, error)
}

// Authorizer asks a payment gateway to approve or decline a charge
type Authorizer interface {
	Authorize(ctx context.Context, card models.CardDetails, amount decimal.Decimal) (models.AuthorizationOutcome, error)
}

// EventPublisher is notified after a transaction has been recorded
type EventPublisher interface {
	PublishTransactionProcessed(ctx context.Context, tx *models.TransactionRecord) error
}

// CardCipher encrypts card fields and computes their lookup fingerprint
type CardCipher interface {
	Fingerprint(plaintext string) string
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Result is what ProcessTransaction returns for an accepted request
type Result struct {
	TransactionID string                   `json:"transaction_id"`
	CardID        string                   `json:"card_id"`
	Status        models.TransactionStatus `json:"status"`
}

// Options tunes the processor. Zero values fall back to defaults.
type Options struct {
	GatewayTimeout time.Duration
	Now            func() time.Time
	Publisher      EventPublisher
}

const (
	defaultGatewayTimeout = 10 * time.Second

	// MaxDescriptionLength matches the transactions.description column
	MaxDescriptionLength = 255
)

// Service processes card payments: validate, store the card, authorize, record
type Service struct {
	cards      CardStore
	log        TransactionLog
	authorizer Authorizer
	cipher     CardCipher
	validator  *utils.Validator
	publisher  EventPublisher
	timeout    time.Duration
	now        func() time.Time
	logger     *logrus.Logger
}

// NewService initializes a new service
func NewService(cards CardStore, txLog TransactionLog, authorizer Authorizer, cipher CardCipher, logger *logrus.Logger, opts Options) *Service {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = defaultGatewayTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		cards:      cards,
		log:        txLog,
		authorizer: authorizer,
		cipher:     cipher,
		validator:  utils.NewValidator(opts.Now),
		publisher:  opts.Publisher,
		timeout:    opts.GatewayTimeout,
		now:        opts.Now,
		logger:     logger,
	}
}

// ProcessTransaction validates the card, finds or creates its stored record,
// authorizes the charge and appends the outcome to the transaction log.
//
// Amount, description and card validation failures return before any side effect. A gateway
// failure still records a DECLINED transaction and returns it together with an
// error wrapping ErrGateway. Storage failures abort the request.
func (s *Service) ProcessTransaction(ctx context.Context, card models.CardDetails, amount decimal.Decimal, description string) (*Result, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, ErrInvalidAmount
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, ErrInvalidDescription
	}

	if res := s.validator.Validate(card); !res.Valid {
		s.logger.WithField("check", res.Failed).Info("Card rejected by validation")
		return nil, &InvalidCardError{Reason: res.Failed}
	}
	card.CardNumber = utils.NormalizeCardNumber(card.CardNumber)

	cardID, err := s.storeCard(ctx, card)
	if err != nil {
		return nil, err
	}

	status, gatewayErr := s.authorize(ctx, card, amount)

	record := &models.TransactionRecord{
		ID:          uuid.NewString(),
		CardID:      cardID,
		Amount:      amount,
		Description: description,
		Status:      status,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.log.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": record.ID,
		"card_id":        cardID,
		"status":         status,
		"amount":         amount.StringFixed(2),
	}).Info("Transaction processed")

	s.publish(record)

	result := &Result{TransactionID: record.ID, CardID: cardID, Status: status}
	if gatewayErr != nil {
		return result, gatewayErr
	}
	return result, nil
}

// storeCard returns the id of the record for card, creating it on first sight.
// A lost insert race is resolved by reading the winner's record.
func (s *Service) storeCard(ctx context.Context, card models.CardDetails) (string, error) {
	fingerprint := s.cipher.Fingerprint(card.CardNumber)

	existing, err := s.cards.FindByFingerprint(ctx, fingerprint)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, models.ErrCardNotFound) {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	record, err := s.newCardRecord(card, fingerprint)
	if err != nil {
		return "", err
	}

	id, err := s.cards.Insert(ctx, record)
	if err == nil {
		s.logger.WithFields(logrus.Fields{"card_id": id, "last_four": record.LastFour}).Info("Card stored")
		return id, nil
	}
	if !errors.Is(err, models.ErrDuplicateKey) {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Debug("Concurrent card insert detected, re-reading by fingerprint")
	existing, err = s.cards.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", fmt.Errorf("%w: re-read after duplicate key: %v", ErrStorage, err)
	}
	return existing.ID, nil
}

func (s *Service) newCardRecord(card models.CardDetails, fingerprint string) (*models.CardRecord, error) {
	encryptedNumber, err := s.cipher.Encrypt(card.CardNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt card number: %w", err)
	}
	encryptedName, err := s.cipher.Encrypt(card.CardholderName)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt cardholder name: %w", err)
	}
	encryptedExpiry, err := s.cipher.Encrypt(card.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt expiry date: %w", err)
	}

	return &models.CardRecord{
		ID:                      uuid.NewString(),
		Fingerprint:             fingerprint,
		CardNumberEncrypted:     encryptedNumber,
		CardholderNameEncrypted: encryptedName,
		ExpiryDateEncrypted:     encryptedExpiry,
		LastFour:                utils.LastFour(card.CardNumber),
		CreatedAt:               s.now().UTC(),
	}, nil
}

// authorize calls the gateway under the configured deadline. Errors and
// timeouts become a DECLINED status plus an ErrGateway-wrapped error.
func (s *Service) authorize(ctx context.Context, card models.CardDetails, amount decimal.Decimal) (models.TransactionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outcome, err := s.authorizer.Authorize(ctx, card, amount)
	if err != nil {
		s.logger.WithError(err).Warn("Payment gateway failed, declining transaction")
		return models.StatusDeclined, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return outcome.Status(), nil
}

func (s *Service) publish(record *models.TransactionRecord) {
	if s.publisher == nil {
		return
	}
	// Best-effort: the record is already durable
	go func(tx models.TransactionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishTransactionProcessed(ctx, &tx); err != nil {
			s.logger.WithError(err).WithField("transaction_id", tx.ID).Warn("Failed to publish transaction event")
		}
	}(*record)
}

// Card returns a decrypted, masked view of a stored card
func (s *Service) Card(ctx context.Context, id string) (*models.CardView, error) {
	record, err := s.cards.FindByID(ctx, id)
	if errors.Is(err, models.ErrCardNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	name, err := s.cipher.Decrypt(record.CardholderNameEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt cardholder name: %w", err)
	}
	expiry, err := s.cipher.Decrypt(record.ExpiryDateEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt expiry date: %w", err)
	}

	return &models.CardView{
		ID:             record.ID,
		CardholderName: name,
		ExpiryDate:     expiry,
		MaskedNumber:   utils.MaskCardNumber(record.LastFour),
		CreatedAt:      record.CreatedAt,
	}, nil
}

// Transactions lists the recorded transactions of a stored card, oldest first
func (s *Service) Transactions(ctx context.Context, cardID string) ([]models.TransactionRecord, error) {
	if _, err := s.cards.FindByID(ctx, cardID); err != nil {
		if errors.Is(err, models.ErrCardNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	txs, err := s.log.ListByCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return txs, nil
}
