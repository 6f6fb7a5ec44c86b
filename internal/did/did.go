// Package did derives the pseudonymous, period-scoped identifiers embedded in
// delivery receipts and the historical sets verifiers match them against.
//
// Derivation is a pure function of (identity number, period label, salt):
//
//	suffix = base64url(SHA-256(number || label || salt))[:44]
//	did    = "did:key:z" + suffix
//
// A SHA-256 digest encodes to 43 unpadded characters, so the 44-character
// prefix is in practice the whole digest.
//
// The concatenation order and encoding are part of the wire contract with every
// wallet; changing either silently breaks ownership checks.
package did

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"semear/internal/identity"
	"semear/internal/rotation"
)

const (
	// Prefix decorates every derived identifier.
	Prefix = "did:key:z"

	maxSuffixLength = 44
	digestLength    = 43
)

// DID is an opaque decentralized identifier string.
type DID string

func (d DID) String() string {
	return string(d)
}

// IsDerived reports whether d has the shape of a producer DID.
func (d DID) IsDerived() bool {
	s := string(d)
	return strings.HasPrefix(s, Prefix) && len(s) == len(Prefix)+digestLength
}

// Derive validates number and derives its DID for the given period and salt.
// Invalid numbers fail with identity.ErrInvalidIdentity.
func Derive(number, periodLabel, salt string) (DID, error) {
	n, err := identity.Parse(number)
	if err != nil {
		return "", err
	}
	return DeriveFor(n, periodLabel, salt), nil
}

// DeriveFor derives from an already validated number.
func DeriveFor(n identity.Number, periodLabel, salt string) DID {
	h := sha256.New()
	h.Write([]byte(n))
	h.Write([]byte(periodLabel))
	h.Write([]byte(salt))
	encoded := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return DID(Prefix + encoded[:min(len(encoded), maxSuffixLength)])
}

// Current derives the DID for the period containing now.
func Current(n identity.Number, cfg rotation.Config, now time.Time) DID {
	return DeriveFor(n, cfg.PeriodLabel(now), cfg.Salt())
}

// Historical returns cfg.Depth() DIDs for number, current period first.
// It is recomputed on every call and never cached.
func Historical(number string, cfg rotation.Config, now time.Time) ([]DID, error) {
	n, err := identity.Parse(number)
	if err != nil {
		return nil, err
	}
	return HistoricalFor(n, cfg, now), nil
}

// HistoricalFor is Historical for an already validated number.
func HistoricalFor(n identity.Number, cfg rotation.Config, now time.Time) []DID {
	labels := cfg.HistoricalLabels(now)
	dids := make([]DID, 0, len(labels))
	for _, label := range labels {
		dids = append(dids, DeriveFor(n, label, cfg.Salt()))
	}
	return dids
}

// Set is a membership view over a historical sequence.
type Set map[DID]struct{}

// NewSet builds a Set from dids.
func NewSet(dids []DID) Set {
	s := make(Set, len(dids))
	for _, d := range dids {
		s[d] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s Set) Contains(d DID) bool {
	_, ok := s[d]
	return ok
}
