package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	jwttoken "semear/internal/jwt_token"
	"semear/internal/rotation"
	"semear/internal/wallet"
	"semear/pkg/testutil"
)

const rotationYAML = "mode: weekly\nsalt: cli-salt\n"

type cliFixture struct {
	t       *testing.T
	dir     string
	rotPath string
	issuer  *credential.Issuer
	key     *did.IssuerKey
}

func newFixture(t *testing.T) *cliFixture {
	t.Helper()
	for _, name := range []string{"DID_ROTATION_MODE", "DID_SALT", "DID_HISTORY_DEPTH", "DID_TIMEZONE", "TRUSTED_ISSUERS"} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	rotPath := filepath.Join(dir, "rotation.yaml")
	require.NoError(t, os.WriteFile(rotPath, []byte(rotationYAML), 0o600))

	key, err := did.GenerateKey()
	require.NoError(t, err)
	issuer, err := credential.NewIssuer(jwttoken.NewEngine(), key, rotation.MustConfig(rotation.Weekly, "cli-salt"), "Cooperativa Semear")
	require.NoError(t, err)
	return &cliFixture{t: t, dir: dir, rotPath: rotPath, issuer: issuer, key: key}
}

func (f *cliFixture) issue(n identity.Number) string {
	f.t.Helper()
	issued, err := f.issuer.Issue(context.Background(),
		credential.Producer{Name: "Maria da Silva", Number: n},
		credential.DeliveryEvent{Product: "Café", Quantity: 12, Unit: "sacas"},
	)
	require.NoError(f.t, err)
	return issued.Token
}

// run executes the CLI as owner with extra global flags before the command.
func (f *cliFixture) run(owner identity.Number, args ...string) (string, error) {
	f.t.Helper()
	var out, errOut bytes.Buffer
	argv := []string{"wallet",
		"--cpf", owner.Formatted(),
		"--db", filepath.Join(f.dir, "db-"+owner.String()),
		"--rotation-config", f.rotPath,
	}
	err := newApp(&out, &errOut).Run(append(argv, args...))
	return out.String(), err
}

func TestWalletLifecycle(t *testing.T) {
	f := newFixture(t)
	token := f.issue(testutil.KnownNumber)
	short := wallet.ReceiptID(token)[:shortID]

	imported := testutil.Given(t, "a receipt imported from a scanned token", func(t *testing.T) {
		out, err := f.run(testutil.KnownNumber, "import", token)
		require.NoError(t, err)
		assert.Contains(t, out, "saved "+short)
		assert.Contains(t, out, "12 sacas of Café")
	})
	require.True(t, imported)

	testutil.When(t, "the same receipt is imported again", func(t *testing.T) {
		_, err := f.run(testutil.KnownNumber, "import", token)
		require.ErrorIs(t, err, wallet.ErrAlreadySaved)
	})

	testutil.Then(t, "it is listed and shown by prefix", func(t *testing.T) {
		out, err := f.run(testutil.KnownNumber, "list")
		require.NoError(t, err)
		assert.Contains(t, out, short)
		assert.Contains(t, out, "valid")

		out, err = f.run(testutil.KnownNumber, "show", "--token", short[:6])
		require.NoError(t, err)
		assert.Equal(t, token, strings.TrimSpace(out))
	})

	testutil.Then(t, "it can be deleted", func(t *testing.T) {
		out, err := f.run(testutil.KnownNumber, "delete", short)
		require.NoError(t, err)
		assert.Contains(t, out, "deleted "+short)

		out, err = f.run(testutil.KnownNumber, "list")
		require.NoError(t, err)
		assert.Contains(t, out, "no receipts saved")

		_, err = f.run(testutil.KnownNumber, "show", short)
		require.ErrorIs(t, err, wallet.ErrNotFound)
	})
}

func TestImportRejectsOtherProducersReceipt(t *testing.T) {
	f := newFixture(t)
	other, err := identity.WithCheckDigits("111444777")
	require.NoError(t, err)

	_, err = f.run(testutil.KnownNumber, "import", f.issue(other))
	require.ErrorIs(t, err, credential.ErrNotMine)
	assert.Contains(t, err.Error(), "outro produtor")
}

func TestCheckDoesNotSave(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(testutil.KnownNumber, "check", f.issue(testutil.KnownNumber))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "valid\n"))

	out, err = f.run(testutil.KnownNumber, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no receipts saved")
}

func TestTrustedIssuerFilter(t *testing.T) {
	f := newFixture(t)
	stranger, err := did.GenerateKey()
	require.NoError(t, err)
	token := f.issue(testutil.KnownNumber)

	_, err = f.run(testutil.KnownNumber, "--trusted-issuer", stranger.DID().String(), "check", token)
	require.ErrorIs(t, err, credential.ErrInvalidSignature)

	_, err = f.run(testutil.KnownNumber, "--trusted-issuer", f.key.DID().String(), "check", token)
	require.NoError(t, err)
}

func TestRotationFilePinsIssuer(t *testing.T) {
	f := newFixture(t)
	token := f.issue(testutil.KnownNumber)
	stranger, err := did.GenerateKey()
	require.NoError(t, err)

	pin := func(d did.DID) {
		body := rotationYAML + "trusted_issuers:\n  - " + d.String() + "\n"
		require.NoError(t, os.WriteFile(f.rotPath, []byte(body), 0o600))
	}

	pin(stranger.DID())
	_, err = f.run(testutil.KnownNumber, "check", token)
	require.ErrorIs(t, err, credential.ErrInvalidSignature)

	_, err = f.run(testutil.KnownNumber, "--trusted-issuer", f.key.DID().String(), "check", token)
	require.NoError(t, err, "the flag adds to the pinned list")

	pin(f.key.DID())
	_, err = f.run(testutil.KnownNumber, "check", token)
	require.NoError(t, err)
}

func TestRotationFileRejectsBadPin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.rotPath, []byte(rotationYAML+"trusted_issuers: [\"did:web:coop.example\"]\n"), 0o600))

	_, err := f.run(testutil.KnownNumber, "list")
	require.ErrorIs(t, err, did.ErrInvalidIssuerDID)
}

func TestDIDsPrintsWindowCurrentFirst(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(testutil.KnownNumber, "dids")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, rotation.Weekly.DefaultDepth())
	assert.True(t, strings.HasSuffix(lines[0], "(current)"))
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "did:key:z"))
	}
}

func TestRejectsInvalidOwner(t *testing.T) {
	var out, errOut bytes.Buffer
	err := newApp(&out, &errOut).Run([]string{"wallet", "--cpf", "111.111.111-11", "list"})
	require.ErrorIs(t, err, identity.ErrInvalidIdentity)
}
