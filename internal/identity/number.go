// Package identity models the producer's national identity number (CPF).
//
// Parse and WithCheckDigits only return numbers that have 11 digits, are not a
// repeated-digit sequence and carry valid modulo-11 check digits. Number is a
// plain string type, so code that accepts one from a caller checks it again
// with Validate.
package identity

import (
	"errors"
	"strings"

	dErrors "semear/pkg/domain-errors"
)

// Length is the number of digits in a CPF.
const Length = 11

// ErrInvalidIdentity is returned for any number that fails length, repetition
// or checksum rules. It is local and never worth retrying.
var ErrInvalidIdentity = errors.New("invalid identity number")

// Number is a validated, digits-only CPF.
type Number string

// Parse normalizes raw to digits and validates it.
func Parse(raw string) (Number, error) {
	digits := Sanitize(raw)
	if !Valid(digits) {
		return "", dErrors.Wrap(ErrInvalidIdentity, dErrors.CodeInvalidInput, "invalid cpf")
	}
	return Number(digits), nil
}

// MustParse panics on invalid input. Intended for fixtures and constants.
func MustParse(raw string) Number {
	n, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return n
}

// WithCheckDigits completes a 9-digit base with its two check digits.
func WithCheckDigits(base string) (Number, error) {
	digits := Sanitize(base)
	if len(digits) != Length-2 {
		return "", dErrors.Wrap(ErrInvalidIdentity, dErrors.CodeInvalidInput, "cpf base must have 9 digits")
	}
	first := checkDigit(digits)
	second := checkDigit(digits + string(first))
	return Parse(digits + string(first) + string(second))
}

// Sanitize strips every non-digit character.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether digits is a well-formed CPF. digits must already be sanitized.
func Valid(digits string) bool {
	if len(digits) != Length {
		return false
	}
	if repeated(digits) {
		return false
	}
	return checkDigit(digits[:9]) == digits[9] && checkDigit(digits[:10]) == digits[10]
}

// checkDigit computes the next modulo-11 check digit for prefix, weighting
// digits from len(prefix)+1 down to 2.
func checkDigit(prefix string) byte {
	sum := 0
	weight := len(prefix) + 1
	for i := 0; i < len(prefix); i++ {
		sum += int(prefix[i]-'0') * weight
		weight--
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		rest = 0
	}
	return byte('0' + rest)
}

func repeated(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

func (n Number) String() string {
	return string(n)
}

// Formatted renders the conventional 000.000.000-00 form.
func (n Number) Formatted() string {
	s := string(n)
	if len(s) != Length {
		return s
	}
	return s[0:3] + "." + s[3:6] + "." + s[6:9] + "-" + s[9:11]
}

// Masked keeps the first three and last two digits, for logs.
func (n Number) Masked() string {
	s := string(n)
	if len(s) != Length {
		return "***"
	}
	return s[0:3] + ".***.***-" + s[9:11]
}

// Validate reports ErrInvalidIdentity unless n would have been accepted by Parse.
func (n Number) Validate() error {
	if !Valid(string(n)) {
		return dErrors.Wrap(ErrInvalidIdentity, dErrors.CodeInvalidInput, "invalid cpf")
	}
	return nil
}

// IsZero reports whether n is the zero value.
func (n Number) IsZero() bool {
	return n == ""
}
