package utils

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
)

// CardCheck names one of the validation checks applied to a card
type CardCheck string

const (
	CheckLuhn   CardCheck = "luhn"
	CheckExpiry CardCheck = "expiry"
	CheckCVV    CardCheck = "cvv"
)

const (
	minCardNumberLength = 13
	maxCardNumberLength = 19
)

var (
	expiryPattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3,4}$`)
)

// ValidationResult reports whether a card passed validation and, if not, which check failed first
type ValidationResult struct {
	Valid  bool
	Failed CardCheck
}

// Validator checks card details against the Luhn, expiry and CVV rules
type Validator struct {
	now func() time.Time
}

// NewValidator creates a validator. A nil clock defaults to time.Now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate runs the checks in order: card number, expiry, CVV.
// A failure is a normal result, not an error.
func (v *Validator) Validate(card models.CardDetails) ValidationResult {
	if !IsValidLuhn(card.CardNumber) {
		return ValidationResult{Failed: CheckLuhn}
	}
	if !IsValidExpiry(card.ExpiryDate, v.now()) {
		return ValidationResult{Failed: CheckExpiry}
	}
	if !IsValidCVV(card.CVV) {
		return ValidationResult{Failed: CheckCVV}
	}
	return ValidationResult{Valid: true}
}

// NormalizeCardNumber strips every non-digit character from a card number
func NormalizeCardNumber(cardNumber string) string {
	var builder strings.Builder
	builder.Grow(len(cardNumber))
	for i := 0; i < len(cardNumber); i++ {
		if c := cardNumber[i]; c >= '0' && c <= '9' {
			builder.WriteByte(c)
		}
	}
	return builder.String()
}

// IsValidLuhn reports whether the digits of cardNumber have a valid length and Luhn checksum
func IsValidLuhn(cardNumber string) bool {
	digits := NormalizeCardNumber(cardNumber)
	if len(digits) < minCardNumberLength || len(digits) > maxCardNumberLength {
		return false
	}
	return luhnSum(digits)%10 == 0
}

// luhnSum scans from the rightmost digit, doubling every second one
func luhnSum(digits string) int {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum
}

// IsValidExpiry reports whether an MM/YY expiry is well formed and not before the month of now
func IsValidExpiry(expiry string, now time.Time) bool {
	if !expiryPattern.MatchString(expiry) {
		return false
	}
	month, _ := strconv.Atoi(expiry[:2])
	year, _ := strconv.Atoi(expiry[3:])
	year += 2000
	if month < 1 || month > 12 {
		return false
	}

	currentYear, currentMonth := now.Year(), int(now.Month())
	return year > currentYear || (year == currentYear && month >= currentMonth)
}

// IsValidCVV reports whether cvv is exactly 3 or 4 ASCII digits
func IsValidCVV(cvv string) bool {
	return cvvPattern.MatchString(cvv)
}

// LastFour returns the last four digits of a card number
func LastFour(cardNumber string) string {
	digits := NormalizeCardNumber(cardNumber)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// MaskCardNumber renders a display form such as "**** **** **** 1111"
func MaskCardNumber(lastFour string) string {
	return "**** **** **** " + lastFour
}

// GenerateCardNumber generates a Luhn-valid card number with the specified prefix and length
func GenerateCardNumber(prefix string, length int) (string, error) {
	if length <= len(prefix) || length < minCardNumberLength || length > maxCardNumberLength {
		return "", fmt.Errorf("invalid card number length: %d", length)
	}

	// Random body, last digit reserved for the check digit
	digits := make([]byte, length-len(prefix)-1)
	_, err := rand.Read(digits)
	if err != nil {
		return "", fmt.Errorf("failed to generate random digits: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	for _, b := range digits {
		builder.WriteByte(b%10 + '0')
	}

	body := builder.String()
	// Appending a zero shifts the doubling so the sum reflects the final position
	check := (10 - luhnSum(body+"0")%10) % 10
	cardNumber := body + strconv.Itoa(check)

	if len(cardNumber) != length {
		return "", fmt.Errorf("generated card number has incorrect length: got %d, want %d", len(cardNumber), length)
	}

	return cardNumber, nil
}

// GenerateExpiryDate generates an expiry date (MM/YY) the given number of years from now
func GenerateExpiryDate(now time.Time, years int) string {
	return fmt.Sprintf("%02d/%02d", now.Month(), (now.Year()+years)%100)
}

// GenerateCVV generates a 3-digit CVV code
func GenerateCVV() string {
	b := make([]byte, 3)
	rand.Read(b)
	return fmt.Sprintf("%03d", (int(b[0])%10)*100+(int(b[1])%10)*10+int(b[2])%10)
}
