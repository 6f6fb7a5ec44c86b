package did

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/multiformats/go-multibase"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const (
	keyMethodPrefix = "did:key:"

	// hkdfInfoIssuer separates issuer signing keys from any other use of a mnemonic.
	hkdfInfoIssuer = "semear/issuer/es256k/v1"
)

// multicodec secp256k1-pub, unsigned varint encoded
var secp256k1PubCodec = []byte{0xe7, 0x01}

var (
	ErrInvalidIssuerDID = errors.New("invalid issuer did")
	ErrInvalidKey       = errors.New("invalid issuer key")
)

// IssuerKey is the cooperative's secp256k1 signing key.
type IssuerKey struct {
	priv *secp256k1.PrivateKey
}

// GenerateKey creates a random issuer key.
func GenerateKey() (*IssuerKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &IssuerKey{priv: priv}, nil
}

// KeyFromHex parses a 32-byte hex private key.
func KeyFromHex(raw string) (*IssuerKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, secp256k1.PrivKeyBytesLen, len(b))
	}
	return keyFromBytes(b)
}

// NewMnemonic returns a fresh 24-word BIP-39 backup phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// KeyFromMnemonic derives the issuer key from a BIP-39 phrase via HKDF-SHA256.
func KeyFromMnemonic(mnemonic, passphrase string) (*IssuerKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	reader := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoIssuer))
	out := make([]byte, secp256k1.PrivKeyBytesLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("derive issuer key: %w", err)
	}
	return keyFromBytes(out)
}

func keyFromBytes(b []byte) (*IssuerKey, error) {
	priv := secp256k1.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKey)
	}
	return &IssuerKey{priv: priv}, nil
}

// Private exposes the key for the signature engine.
func (k *IssuerKey) Private() *secp256k1.PrivateKey {
	return k.priv
}

// Public returns the verification key.
func (k *IssuerKey) Public() *secp256k1.PublicKey {
	return k.priv.PubKey()
}

// Hex encodes the private key; only for the key generation tool.
func (k *IssuerKey) Hex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// DID returns the issuer's did:key identifier.
func (k *IssuerKey) DID() DID {
	d, _ := IssuerDID(k.Public())
	return d
}

// IssuerDID encodes pub as did:key:z<base58btc(0xe7 0x01 || compressed key)>.
func IssuerDID(pub *secp256k1.PublicKey) (DID, error) {
	data := append(append([]byte{}, secp256k1PubCodec...), pub.SerializeCompressed()...)
	encoded, err := multibase.Encode(multibase.Base58BTC, data)
	if err != nil {
		return "", fmt.Errorf("encode issuer key: %w", err)
	}
	return DID(keyMethodPrefix + encoded), nil
}

// ParseIssuerDID recovers the public key embedded in an issuer did:key.
func ParseIssuerDID(d DID) (*secp256k1.PublicKey, error) {
	s := string(d)
	if !strings.HasPrefix(s, keyMethodPrefix) {
		return nil, fmt.Errorf("%w: missing did:key prefix", ErrInvalidIssuerDID)
	}
	enc, data, err := multibase.Decode(strings.TrimPrefix(s, keyMethodPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerDID, err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("%w: unexpected multibase encoding", ErrInvalidIssuerDID)
	}
	if len(data) <= len(secp256k1PubCodec) || data[0] != secp256k1PubCodec[0] || data[1] != secp256k1PubCodec[1] {
		return nil, fmt.Errorf("%w: not a secp256k1 key", ErrInvalidIssuerDID)
	}
	pub, err := secp256k1.ParsePubKey(data[len(secp256k1PubCodec):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerDID, err)
	}
	return pub, nil
}
