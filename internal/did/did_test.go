package did_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"semear/internal/did"
	"semear/internal/identity"
	"semear/internal/rotation"
	"semear/pkg/testutil"
)

type DeriveSuite struct {
	suite.Suite
	now time.Time
}

func TestDeriveSuite(t *testing.T) {
	suite.Run(t, new(DeriveSuite))
}

func (s *DeriveSuite) SetupTest() {
	s.now = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)
}

func (s *DeriveSuite) TestKnownAnswer() {
	d, err := did.Derive("52998224725", "2026-10-17", "test-salt")
	s.Require().NoError(err)
	s.Equal(did.DID("did:key:zexQDrsXfJvtkBwQeE_Ab6K175gMgVgvPtH08jyTiRig"), d)
	s.True(d.IsDerived())
}

func (s *DeriveSuite) TestFormattedInputMatchesDigits() {
	a, err := did.Derive("529.982.247-25", "2024-2028", "salt")
	s.Require().NoError(err)
	b, err := did.Derive("52998224725", "2024-2028", "salt")
	s.Require().NoError(err)
	s.Equal(a, b)
}

func (s *DeriveSuite) TestDeterminism() {
	r := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		n := testutil.RandomNumber(s.T(), r)
		first := did.DeriveFor(n, "2026-W42", "salt")
		second := did.DeriveFor(n, "2026-W42", "salt")
		s.Require().Equal(first, second)
	}
}

func (s *DeriveSuite) TestEveryInputChangesOutput() {
	base := did.DeriveFor(testutil.KnownNumber, "2026-10", "salt")
	s.NotEqual(base, did.DeriveFor(testutil.KnownNumber, "2026-09", "salt"))
	s.NotEqual(base, did.DeriveFor(testutil.KnownNumber, "2026-10", "salt2"))
	s.NotEqual(base, did.DeriveFor(identity.MustParse("11144477735"), "2026-10", "salt"))
}

func (s *DeriveSuite) TestRejectsInvalidIdentity() {
	for _, raw := range []string{"11111111111", "52998224726", "123", ""} {
		_, err := did.Derive(raw, "2026-10", "salt")
		s.Require().ErrorIs(err, identity.ErrInvalidIdentity, raw)
	}
	_, err := did.Historical("11111111111", rotation.MustConfig(rotation.Daily, "salt"), s.now)
	s.ErrorIs(err, identity.ErrInvalidIdentity)
}

func (s *DeriveSuite) TestHistoricalOrderAndLength() {
	cfg := rotation.MustConfig(rotation.Daily, "test-salt")
	dids, err := did.Historical("52998224725", cfg, s.now)
	s.Require().NoError(err)
	s.Require().Len(dids, 7)
	s.Equal(did.Current(testutil.KnownNumber, cfg, s.now), dids[0])

	yesterday := did.DeriveFor(testutil.KnownNumber, "2026-10-16", "test-salt")
	s.Equal(yesterday, dids[1])

	again, err := did.Historical("52998224725", cfg, s.now)
	s.Require().NoError(err)
	s.Equal(dids, again)
}

func (s *DeriveSuite) TestHistoricalCoverageWeekly() {
	cfg := rotation.MustConfig(rotation.Weekly, "salt")
	issuedAt := s.now
	issued := did.Current(testutil.KnownNumber, cfg, issuedAt)

	nextWeek := did.NewSet(did.HistoricalFor(testutil.KnownNumber, cfg, issuedAt.AddDate(0, 0, 7)))
	s.True(nextWeek.Contains(issued))

	eleventhWeek := did.NewSet(did.HistoricalFor(testutil.KnownNumber, cfg, issuedAt.AddDate(0, 0, 7*11)))
	s.True(eleventhWeek.Contains(issued), "week N+11 is the last one inside a 12-period window")

	twentiethWeek := did.NewSet(did.HistoricalFor(testutil.KnownNumber, cfg, issuedAt.AddDate(0, 0, 7*20)))
	s.False(twentiethWeek.Contains(issued))
}

func TestOwnershipIsolation(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	now := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

	for _, mode := range rotation.Modes {
		cfg := rotation.MustConfig(mode, "isolation-salt")
		t.Run(string(mode), func(t *testing.T) {
			for range 100 {
				a := testutil.RandomNumber(t, r)
				b := testutil.RandomNumber(t, r)
				if a == b {
					continue
				}
				issued := did.Current(a, cfg, now)
				other := did.NewSet(did.HistoricalFor(b, cfg, now))
				require.False(t, other.Contains(issued), "%s leaked into %s", a.Masked(), b.Masked())
			}
		})
	}
}

func TestSet(t *testing.T) {
	set := did.NewSet([]did.DID{"did:key:za", "did:key:zb"})
	assert.True(t, set.Contains("did:key:za"))
	assert.False(t, set.Contains("did:key:zc"))
	assert.False(t, did.DID("did:key:za").IsDerived())
}
