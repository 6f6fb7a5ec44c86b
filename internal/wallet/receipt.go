// Package wallet keeps a producer's delivery receipts. Every receipt is
// verified against the owner's identity before it is stored, and the same
// token is never stored twice.
package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"semear/internal/credential"
	"semear/pkg/platform/sentinel"
)

var (
	// ErrAlreadySaved is returned when the token is already in the wallet.
	ErrAlreadySaved = fmt.Errorf("receipt already saved: %w", sentinel.ErrConflict)
	// ErrNotFound is returned for an unknown receipt ID.
	ErrNotFound = fmt.Errorf("receipt not found: %w", sentinel.ErrNotFound)
	// ErrUnknownPayload is returned when a scanned QR is neither a URL nor a token.
	ErrUnknownPayload = errors.New("qr payload is neither a credential URL nor a token")
)

// Receipt is a verified credential held by the wallet.
type Receipt struct {
	ID      string          `json:"id"`
	Token   string          `json:"vc_jwt"`
	Data    credential.Data `json:"data"`
	SavedAt time.Time       `json:"saved_at"`
}

// ReceiptID is the hex SHA-256 of the token. Identical tokens share an ID,
// which is how duplicates are detected.
func ReceiptID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Expired reports whether the credential has passed its expiry at now.
func (r Receipt) Expired(now time.Time) bool {
	return !r.Data.ExpiresAt.IsZero() && !now.Before(r.Data.ExpiresAt)
}
