package utils

import (
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ValidateEmail checks basic email format
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateCurrency checks for an ISO 4217 style three-letter code
func ValidateCurrency(code string) bool {
	return currencyRegex.MatchString(code)
}

// ValidateAmount checks that a monetary amount is positive and within bounds
func ValidateAmount(amount float64) bool {
	return amount > 0 && amount <= 100_000_000
}

// SanitizeString trims whitespace and collapses internal runs of spaces
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	return strings.Join(strings.Fields(s), " ")
}
