package utils

import (
	"testing"
	"time"

	"github.com/Dan9191/card-payments/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
}

func TestIsValidLuhn(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{"visa test card", "4111111111111111", true},
		{"bad check digit", "4111111111111112", false},
		{"mastercard test card", "5555555555554444", true},
		{"amex 15 digits", "378282246310005", true},
		{"spaces stripped", "4111 1111 1111 1111", true},
		{"dashes stripped", "4111-1111-1111-1111", true},
		{"too short", "411111111111", false},
		{"too long", "41111111111111111111", false},
		{"empty", "", false},
		{"letters only", "abcdabcdabcdabcd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidLuhn(tt.number); got != tt.want {
				t.Errorf("IsValidLuhn(%q) = %v, want %v", tt.number, got, tt.want)
			}
		})
	}
}

func TestIsValidExpiry(t *testing.T) {
	now := fixedClock()
	tests := []struct {
		expiry string
		want   bool
	}{
		{"10/26", true},
		{"11/26", true},
		{"01/27", true},
		{"09/26", false},
		{"12/25", false},
		{"13/25", false},
		{"13/30", false},
		{"00/30", false},
		{"1/25", false},
		{"10/2026", false},
		{"10-26", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.expiry, func(t *testing.T) {
			if got := IsValidExpiry(tt.expiry, now); got != tt.want {
				t.Errorf("IsValidExpiry(%q) = %v, want %v", tt.expiry, got, tt.want)
			}
		})
	}
}

func TestIsValidExpiry_CurrentMonth(t *testing.T) {
	now := time.Now()
	if !IsValidExpiry(GenerateExpiryDate(now, 0), now) {
		t.Error("expected current month to be valid")
	}
	if IsValidExpiry(GenerateExpiryDate(now.AddDate(0, -1, 0), 0), now) {
		t.Error("expected previous month to be expired")
	}
}

func TestIsValidCVV(t *testing.T) {
	tests := []struct {
		cvv  string
		want bool
	}{
		{"123", true},
		{"1234", true},
		{"12", false},
		{"12345", false},
		{"12a", false},
		{"", false},
		{" 123", false},
	}

	for _, tt := range tests {
		if got := IsValidCVV(tt.cvv); got != tt.want {
			t.Errorf("IsValidCVV(%q) = %v, want %v", tt.cvv, got, tt.want)
		}
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator(fixedClock)
	valid := models.CardDetails{
		CardNumber:     "4111111111111111",
		CardholderName: "John Doe",
		ExpiryDate:     "12/27",
		CVV:            "123",
	}

	tests := []struct {
		name   string
		mutate func(*models.CardDetails)
		want   ValidationResult
	}{
		{"valid card", func(*models.CardDetails) {}, ValidationResult{Valid: true}},
		{"luhn failure", func(c *models.CardDetails) { c.CardNumber = "4111111111111112" }, ValidationResult{Failed: CheckLuhn}},
		{"expired", func(c *models.CardDetails) { c.ExpiryDate = "12/25" }, ValidationResult{Failed: CheckExpiry}},
		{"bad cvv", func(c *models.CardDetails) { c.CVV = "12" }, ValidationResult{Failed: CheckCVV}},
		{"luhn reported before expiry", func(c *models.CardDetails) {
			c.CardNumber = "4111111111111112"
			c.ExpiryDate = "01/20"
		}, ValidationResult{Failed: CheckLuhn}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := valid
			tt.mutate(&card)
			if got := v.Validate(card); got != tt.want {
				t.Errorf("Validate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLastFour(t *testing.T) {
	if got := LastFour("4111 1111 1111 1234"); got != "1234" {
		t.Errorf("LastFour() = %q, want 1234", got)
	}
	if got := MaskCardNumber("1234"); got != "**** **** **** 1234" {
		t.Errorf("MaskCardNumber() = %q", got)
	}
}

func TestGenerateCardNumber(t *testing.T) {
	for i := 0; i < 50; i++ {
		number, err := GenerateCardNumber("400000", 16)
		if err != nil {
			t.Fatalf("GenerateCardNumber() error = %v", err)
		}
		if len(number) != 16 {
			t.Fatalf("expected 16 digits, got %d", len(number))
		}
		if number[:6] != "400000" {
			t.Fatalf("expected prefix 400000, got %s", number)
		}
		if !IsValidLuhn(number) {
			t.Fatalf("generated number %s fails Luhn", number)
		}
	}

	if _, err := GenerateCardNumber("400000", 25); err == nil {
		t.Error("expected error for length 25")
	}
}

func TestGenerateCVV(t *testing.T) {
	if cvv := GenerateCVV(); !IsValidCVV(cvv) {
		t.Errorf("GenerateCVV() = %q is not a valid CVV", cvv)
	}
}
