package jwttoken

import (
	"crypto/sha256"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// AlgES256K is the JOSE name for ECDSA over secp256k1 with SHA-256.
	AlgES256K = "ES256K"

	scalarSize    = 32
	signatureSize = 2 * scalarSize
)

var errSignatureSize = errors.New("es256k: signature must be 64 bytes")

// SigningMethodES256K signs with a *secp256k1.PrivateKey and verifies with a
// *secp256k1.PublicKey. Signatures are the fixed-width R || S concatenation.
type SigningMethodES256K struct{}

// ES256K is registered with jwt at init so parsers resolve the alg header.
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(AlgES256K, func() jwt.SigningMethod {
		return ES256K
	})
}

func (m *SigningMethodES256K) Alg() string {
	return AlgES256K
}

func (m *SigningMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	digest := sha256.Sum256([]byte(signingString))
	sig := ecdsa.Sign(priv, digest[:])

	r, s := sig.R(), sig.S()
	out := make([]byte, signatureSize)
	r.PutBytesUnchecked(out[:scalarSize])
	s.PutBytesUnchecked(out[scalarSize:])
	return out, nil
}

func (m *SigningMethodES256K) Verify(signingString string, signature []byte, key interface{}) error {
	pub, ok := key.(*secp256k1.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(signature) != signatureSize {
		return errSignatureSize
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:scalarSize]); overflow || r.IsZero() {
		return jwt.ErrECDSAVerification
	}
	if overflow := s.SetByteSlice(signature[scalarSize:]); overflow || s.IsZero() {
		return jwt.ErrECDSAVerification
	}
	// high-S signatures are malleable copies of a valid one
	if s.IsOverHalfOrder() {
		return jwt.ErrECDSAVerification
	}

	digest := sha256.Sum256([]byte(signingString))
	if !ecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		return jwt.ErrECDSAVerification
	}
	return nil
}
