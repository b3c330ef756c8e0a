package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
	"github.com/shopspring/decimal"
)

// Memory is an in-process card store and transaction log.
// It enforces the same fingerprint uniqueness as the PostgreSQL tables.
type Memory struct {
	mu            sync.RWMutex
	cards         map[string]models.CardRecord // by id
	byFingerprint map[string]string            // fingerprint -> id
	transactions  []models.TransactionRecord
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		cards:         make(map[string]models.CardRecord),
		byFingerprint: make(map[string]string),
	}
}

func (m *Memory) FindByFingerprint(ctx context.Context, fingerprint string) (*models.CardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byFingerprint[fingerprint]
	if !ok {
		return nil, models.ErrCardNotFound
	}
	card := m.cards[id]
	return &card, nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (*models.CardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[id]
	if !ok {
		return nil, models.ErrCardNotFound
	}
	return &card, nil
}

func (m *Memory) Insert(ctx context.Context, card *models.CardRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byFingerprint[card.Fingerprint]; ok {
		return "", models.ErrDuplicateKey
	}
	m.cards[card.ID] = *card
	m.byFingerprint[card.Fingerprint] = card.ID
	return card.ID, nil
}

// Append rejects records whose card does not exist, like the foreign key does
func (m *Memory) Append(ctx context.Context, tx *models.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cards[tx.CardID]; !ok {
		return models.ErrCardNotFound
	}
	m.transactions = append(m.transactions, *tx)
	return nil
}

func (m *Memory) ListByCard(ctx context.Context, cardID string) ([]models.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []models.TransactionRecord
	for _, tx := range m.transactions {
		if tx.CardID == cardID {
			records = append(records, tx)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (m *Memory) Summarize(ctx context.Context, from, to time.Time) (models.TransactionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := models.TransactionSummary{From: from, To: to, ApprovedAmount: decimal.Zero, DeclinedAmount: decimal.Zero}
	for _, tx := range m.transactions {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		switch tx.Status {
		case models.StatusApproved:
			summary.ApprovedCount++
			summary.ApprovedAmount = summary.ApprovedAmount.Add(tx.Amount)
		case models.StatusDeclined:
			summary.DeclinedCount++
			summary.DeclinedAmount = summary.DeclinedAmount.Add(tx.Amount)
		}
	}
	return summary, nil
}

// CardCount returns the number of stored card records
func (m *Memory) CardCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cards)
}

// Transactions returns a copy of every appended record in append order
func (m *Memory) Transactions() []models.TransactionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.TransactionRecord(nil), m.transactions...)
}
