// Package pan generates, validates, seals and masks primary account numbers.
package pan

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	apperr "cardledger/internal/errors"
)

const (
	// MinLength is the shortest card number ValidateLuhn accepts.
	MinLength = 12
	// MaxLength is the longest card number ValidateLuhn accepts.
	MaxLength = 19
	// GeneratedLength is the length of numbers produced by Generate.
	GeneratedLength = 16
)

// Normalize strips the spaces and dashes people type between digit groups.
func Normalize(number string) string {
	return strings.ReplaceAll(strings.ReplaceAll(number, " ", ""), "-", "")
}

// ValidateLuhn reports whether digits is 12-19 decimal digits whose Luhn sum
// is divisible by 10.
func ValidateLuhn(digits string) bool {
	if len(digits) < MinLength || len(digits) > MaxLength {
		return false
	}
	sum, ok := luhnSum(digits, false)
	return ok && sum%10 == 0
}

// RequireValid returns ErrInvalidCardNumber unless number passes ValidateLuhn.
func RequireValid(number string) error {
	if !ValidateLuhn(number) {
		return apperr.ErrInvalidCardNumber
	}
	return nil
}

// CheckDigit computes the digit that makes payload+digit Luhn-valid.
func CheckDigit(payload string) (byte, error) {
	sum, ok := luhnSum(payload, true)
	if !ok {
		return 0, fmt.Errorf("%w: payload must be numeric", apperr.ErrInvalidInput)
	}
	return byte('0' + (10-sum%10)%10), nil
}

// Generate returns a random 16-digit Luhn-valid card number: 15 random digits
// followed by the check digit.
func Generate() (string, error) {
	payload := make([]byte, GeneratedLength-1)
	ten := big.NewInt(10)
	for i := range payload {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate card number: %w", err)
		}
		payload[i] = byte('0' + n.Int64())
	}
	check, err := CheckDigit(string(payload))
	if err != nil {
		return "", err
	}
	return string(append(payload, check)), nil
}

// luhnSum walks digits from the right, doubling every second digit. When
// doubleFirst is set the rightmost digit is doubled, which is the position
// it takes once a check digit is appended.
func luhnSum(digits string, doubleFirst bool) (int, bool) {
	if digits == "" {
		return 0, false
	}
	sum := 0
	double := doubleFirst
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum, true
}
