package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// MaxPaymentAmount is the platform-wide per-payment cap, in whole tokens.
var MaxPaymentAmount = decimal.NewFromInt(1000000)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func ValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseAmount parses a user-supplied decimal amount and enforces platform bounds.
func ParseAmount(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %s", amount)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be greater than zero")
	}
	if d.GreaterThan(MaxPaymentAmount) {
		return decimal.Zero, fmt.Errorf("amount exceeds maximum of %s", MaxPaymentAmount.String())
	}
	return d, nil
}

// ValidAddress reports whether s is a full-length Aptos account address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

func ValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}
