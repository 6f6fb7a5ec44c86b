package did_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semear/internal/did"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestIssuerDIDRoundTrip(t *testing.T) {
	key, err := did.GenerateKey()
	require.NoError(t, err)

	d := key.DID()
	assert.True(t, strings.HasPrefix(d.String(), "did:key:zQ3s"), d)
	assert.False(t, d.IsDerived())

	pub, err := did.ParseIssuerDID(d)
	require.NoError(t, err)
	assert.True(t, pub.IsEqual(key.Public()))
}

func TestKeyFromHex(t *testing.T) {
	key, err := did.GenerateKey()
	require.NoError(t, err)

	restored, err := did.KeyFromHex("0x" + key.Hex())
	require.NoError(t, err)
	assert.Equal(t, key.DID(), restored.DID())

	_, err = did.KeyFromHex("zz")
	require.ErrorIs(t, err, did.ErrInvalidKey)
	_, err = did.KeyFromHex("abcd")
	require.ErrorIs(t, err, did.ErrInvalidKey)
	_, err = did.KeyFromHex(strings.Repeat("00", 32))
	require.ErrorIs(t, err, did.ErrInvalidKey)
}

func TestKeyFromMnemonic(t *testing.T) {
	a, err := did.KeyFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	b, err := did.KeyFromMnemonic("  "+testMnemonic+"\n", "")
	require.NoError(t, err)
	assert.Equal(t, a.DID(), b.DID())

	withPassphrase, err := did.KeyFromMnemonic(testMnemonic, "cooperativa")
	require.NoError(t, err)
	assert.NotEqual(t, a.DID(), withPassphrase.DID())

	_, err = did.KeyFromMnemonic("abandon abandon abandon", "")
	require.ErrorIs(t, err, did.ErrInvalidKey)
}

func TestNewMnemonic(t *testing.T) {
	phrase, err := did.NewMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(phrase), 24)

	_, err = did.KeyFromMnemonic(phrase, "")
	require.NoError(t, err)
}

func TestParseIssuerDIDRejects(t *testing.T) {
	derived := did.DID("did:key:zexQDrsXfJvtkBwQeE_Ab6K175gMgVgvPtH08jyTiRig")

	tests := []struct {
		name string
		in   did.DID
	}{
		{"missing prefix", "did:web:example.org"},
		{"empty", ""},
		{"derived producer did", derived},
		{"wrong multibase", "did:key:f" + "e701"},
		{"wrong codec", "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := did.ParseIssuerDID(tt.in)
			require.ErrorIs(t, err, did.ErrInvalidIssuerDID)
		})
	}
}
