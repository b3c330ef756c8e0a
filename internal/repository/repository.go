package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// Repository provides PostgreSQL-backed card storage and the transaction log
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByFingerprint retrieves a card record by its fingerprint
func (r *Repository) FindByFingerprint(ctx context.Context, fingerprint string) (*models.CardRecord, error) {
	query := `
		SELECT id, card_number_hash, card_number_encrypted, cardholder_name_encrypted,
		       expiry_date_encrypted, last_four_digits, created_at
		FROM payments.credit_cards
		WHERE card_number_hash = $1`
	return r.scanCard(r.db.QueryRowContext(ctx, query, fingerprint))
}

// FindByID retrieves a card record by its id
func (r *Repository) FindByID(ctx context.Context, id string) (*models.CardRecord, error) {
	query := `
		SELECT id, card_number_hash, card_number_encrypted, cardholder_name_encrypted,
		       expiry_date_encrypted, last_four_digits, created_at
		FROM payments.credit_cards
		WHERE id = $1`
	return r.scanCard(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repository) scanCard(row *sql.Row) (*models.CardRecord, error) {
	card := &models.CardRecord{}
	err := row.Scan(&card.ID, &card.Fingerprint, &card.CardNumberEncrypted, &card.CardholderNameEncrypted,
		&card.ExpiryDateEncrypted, &card.LastFour, &card.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return card, nil
}

// Insert stores a new card record. A second record with the same fingerprint
// is rejected with models.ErrDuplicateKey.
func (r *Repository) Insert(ctx context.Context, card *models.CardRecord) (string, error) {
	query := `
		INSERT INTO payments.credit_cards (id, card_number_hash, card_number_encrypted,
			cardholder_name_encrypted, expiry_date_encrypted, last_four_digits, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, card.ID, card.Fingerprint, card.CardNumberEncrypted,
		card.CardholderNameEncrypted, card.ExpiryDateEncrypted, card.LastFour, card.CreatedAt).
		Scan(&card.ID, &card.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", models.ErrDuplicateKey
		}
		return "", fmt.Errorf("failed to insert card: %w", err)
	}
	return card.ID, nil
}

// Append writes a transaction record to the log
func (r *Repository) Append(ctx context.Context, tx *models.TransactionRecord) error {
	query := `
		INSERT INTO payments.transactions (id, credit_card_id, amount, description, status, transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, tx.ID, tx.CardID, tx.Amount, nullString(tx.Description),
		string(tx.Status), tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// ListByCard returns the transactions recorded against a card, oldest first
func (r *Repository) ListByCard(ctx context.Context, cardID string) ([]models.TransactionRecord, error) {
	query := `
		SELECT id, credit_card_id, amount, COALESCE(description, ''), status, transaction_date
		FROM payments.transactions
		WHERE credit_card_id = $1
		ORDER BY transaction_date, id`
	rows, err := r.db.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.CardID, &rec.Amount, &rec.Description, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		rec.Status = models.TransactionStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return records, nil
}

// Summarize aggregates approved and declined transactions in [from, to)
func (r *Repository) Summarize(ctx context.Context, from, to time.Time) (models.TransactionSummary, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payments.transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		GROUP BY status`
	summary := models.TransactionSummary{From: from, To: to}

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		var total decimal.Decimal
		if err := rows.Scan(&status, &count, &total); err != nil {
			return summary, fmt.Errorf("failed to scan summary: %w", err)
		}
		switch models.TransactionStatus(status) {
		case models.StatusApproved:
			summary.ApprovedCount, summary.ApprovedAmount = count, total
		case models.StatusDeclined:
			summary.DeclinedCount, summary.DeclinedAmount = count, total
		}
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("failed to iterate summary: %w", err)
	}
	return summary, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
