package testutil

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"semear/internal/identity"
)

// KnownNumber is a published, checksum-valid CPF used across fixtures.
const KnownNumber identity.Number = "52998224725"

// RandomNumber returns a checksum-valid CPF drawn from r.
func RandomNumber(t testing.TB, r *rand.Rand) identity.Number {
	t.Helper()
	for {
		base := fmt.Sprintf("%09d", r.IntN(1_000_000_000))
		n, err := identity.WithCheckDigits(base)
		if err == nil {
			return n
		}
	}
}
