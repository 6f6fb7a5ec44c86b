package wallet_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	jwttoken "semear/internal/jwt_token"
	"semear/internal/rotation"
	"semear/internal/wallet"
	"semear/internal/wallet/store"
	"semear/pkg/platform/audit"
	"semear/pkg/platform/audit/publisher"
	auditmemory "semear/pkg/platform/audit/store/memory"
	"semear/pkg/testutil"
)

var issuedAt = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

type WalletSuite struct {
	suite.Suite
	cfg    rotation.Config
	engine *jwttoken.Engine
	issuer *credential.Issuer
	now    time.Time
	events *auditmemory.InMemoryStore
	wallet *wallet.Wallet
}

func TestWalletSuite(t *testing.T) {
	suite.Run(t, new(WalletSuite))
}

func (s *WalletSuite) SetupTest() {
	s.cfg = rotation.MustConfig(rotation.Weekly, "wallet-salt")
	s.engine = jwttoken.NewEngine()
	key, err := did.GenerateKey()
	s.Require().NoError(err)
	s.issuer, err = credential.NewIssuer(s.engine, key, s.cfg, "Cooperativa Semear",
		credential.WithIssuerClock(func() time.Time { return issuedAt }))
	s.Require().NoError(err)
	s.now = issuedAt.Add(24 * time.Hour)
	s.events = auditmemory.NewInMemoryStore()
	s.wallet = s.walletFor(testutil.KnownNumber)
}

func (s *WalletSuite) walletFor(owner identity.Number, opts ...wallet.Option) *wallet.Wallet {
	verifier, err := credential.NewVerifier(s.engine, s.cfg, credential.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	opts = append([]wallet.Option{
		wallet.WithAuditPublisher(publisher.NewPublisher(s.events)),
		wallet.WithClock(func() time.Time { return s.now }),
	}, opts...)
	w, err := wallet.New(owner, verifier, store.NewMemory(), opts...)
	s.Require().NoError(err)
	return w
}

func (s *WalletSuite) issue(n identity.Number) string {
	issued, err := s.issuer.Issue(context.Background(), credential.Producer{Name: "Maria da Silva", Number: n}, credential.DeliveryEvent{
		Product:  "Café",
		Quantity: 12,
		Unit:     "sacas",
	})
	s.Require().NoError(err)
	return issued.Token
}

func (s *WalletSuite) TestImportRawToken() {
	token := s.issue(testutil.KnownNumber)

	r, err := s.wallet.Import(context.Background(), "  "+token+"\n")
	s.Require().NoError(err)
	s.Equal(wallet.ReceiptID(token), r.ID)
	s.Equal(token, r.Token)
	s.Equal("Café", r.Data.Delivery.Product)
	s.Equal(s.now, r.SavedAt)

	got, err := s.wallet.Get(context.Background(), r.ID)
	s.Require().NoError(err)
	s.Equal(*r, got)

	events, err := s.events.ListBySubject(context.Background(), r.Data.Subject.String())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionCredentialImported, events[0].Action)
	s.Equal("529.***.***-25", events[0].MaskedNumber)
}

func (s *WalletSuite) TestImportTwiceIsRejected() {
	token := s.issue(testutil.KnownNumber)
	_, err := s.wallet.Import(context.Background(), token)
	s.Require().NoError(err)

	_, err = s.wallet.Import(context.Background(), token)
	s.ErrorIs(err, wallet.ErrAlreadySaved)

	list, err := s.wallet.List(context.Background())
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *WalletSuite) TestImportForeignCredential() {
	token := s.issue(identity.MustParse("111.444.777-35"))

	_, err := s.wallet.Import(context.Background(), token)
	s.ErrorIs(err, credential.ErrNotMine)

	list, err := s.wallet.List(context.Background())
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *WalletSuite) TestImportAcrossPeriods() {
	token := s.issue(testutil.KnownNumber)

	s.now = issuedAt.AddDate(0, 0, 7*11)
	_, err := s.wallet.Import(context.Background(), token)
	s.NoError(err, "eleven weeks later the issuance week is still in the window")

	s.now = issuedAt.AddDate(0, 0, 7*13)
	_, err = s.walletFor(testutil.KnownNumber).Import(context.Background(), token)
	s.ErrorIs(err, credential.ErrNotMine)
}

func (s *WalletSuite) TestImportUnknownPayload() {
	_, err := s.wallet.Import(context.Background(), "BEGIN:VCARD")
	s.ErrorIs(err, wallet.ErrUnknownPayload)
}

func (s *WalletSuite) TestImportFromURL() {
	token := s.issue(testutil.KnownNumber)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/credentials/ref/abc":
			_ = json.NewEncoder(w).Encode(map[string]string{"vc_jwt": token})
		case "/legacy":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "vcJWT": token})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "not_found"})
		}
	}))
	defer srv.Close()

	w := s.walletFor(testutil.KnownNumber, wallet.WithFetcher(wallet.NewFetcher(srv.Client())))

	r, err := w.Import(context.Background(), srv.URL+"/api/credentials/ref/abc")
	s.Require().NoError(err)
	s.Equal(token, r.Token)

	_, err = w.Import(context.Background(), srv.URL+"/legacy")
	s.ErrorIs(err, wallet.ErrAlreadySaved, "same token through the legacy field")

	_, err = w.Import(context.Background(), srv.URL+"/api/credentials/ref/missing")
	s.ErrorIs(err, wallet.ErrNotFound)
}

func (s *WalletSuite) TestDelete() {
	r, err := s.wallet.Import(context.Background(), s.issue(testutil.KnownNumber))
	s.Require().NoError(err)

	s.Require().NoError(s.wallet.Delete(context.Background(), r.ID))
	_, err = s.wallet.Get(context.Background(), r.ID)
	s.ErrorIs(err, wallet.ErrNotFound)
	s.ErrorIs(s.wallet.Delete(context.Background(), r.ID), wallet.ErrNotFound)

	events, err := s.events.ListBySubject(context.Background(), r.Data.Subject.String())
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *WalletSuite) TestDIDs() {
	dids := s.wallet.DIDs(s.now)
	s.Len(dids, rotation.Weekly.DefaultDepth())
	s.Equal(did.Current(testutil.KnownNumber, s.cfg, s.now), dids[0])
}

func TestNewRequiresValidOwner(t *testing.T) {
	verifier, err := credential.NewVerifier(jwttoken.NewEngine(), rotation.MustConfig(rotation.Daily, "s"))
	if err != nil {
		t.Fatal(err)
	}
	for _, owner := range []identity.Number{"", "11111111111", "52998224726", "5299822472"} {
		if _, err := wallet.New(owner, verifier, store.NewMemory()); !errors.Is(err, identity.ErrInvalidIdentity) {
			t.Fatalf("owner %q: expected ErrInvalidIdentity, got %v", owner, err)
		}
	}
}

func TestReceiptExpired(t *testing.T) {
	r := wallet.Receipt{Data: credential.Data{ExpiresAt: issuedAt}}
	if r.Expired(issuedAt.Add(-time.Second)) {
		t.Fatal("not expired before exp")
	}
	if !r.Expired(issuedAt) {
		t.Fatal("expired at exp")
	}
}
