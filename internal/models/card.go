package models

import (
	"errors"
	"time"
)

var (
	// ErrCardNotFound is returned by card stores when no record matches the lookup key
	ErrCardNotFound = errors.New("card not found")

	// ErrDuplicateKey is returned by card stores when the fingerprint is already taken
	ErrDuplicateKey = errors.New("duplicate card fingerprint")
)

// CardDetails is the plaintext card data supplied with a single payment request.
// It is never persisted.
type CardDetails struct {
	CardNumber     string `json:"card_number"`
	CardholderName string `json:"cardholder_name"`
	ExpiryDate     string `json:"expiry_date"` // MM/YY
	CVV            string `json:"-"`
}

// CardRecord is the stored, encrypted form of a card
type CardRecord struct {
	ID                      string    `json:"id"`
	Fingerprint             string    `json:"-"`
	CardNumberEncrypted     string    `json:"-"`
	CardholderNameEncrypted string    `json:"-"`
	ExpiryDateEncrypted     string    `json:"-"`
	LastFour                string    `json:"last_four"`
	CreatedAt               time.Time `json:"created_at"`
}

// CardView is a decrypted, masked projection of a CardRecord for display
type CardView struct {
	ID             string    `json:"id"`
	CardholderName string    `json:"cardholder_name"`
	ExpiryDate     string    `json:"expiry_date"`
	MaskedNumber   string    `json:"masked_number"`
	CreatedAt      time.Time `json:"created_at"`
}
