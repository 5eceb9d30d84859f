package ota

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/jedisct1/go-minisign"
)

// Verifier checks a completed image against the token carried in the
// final chunk. Verification runs before the slot is ever marked
// bootable; a failure leaves the active slot untouched.
type Verifier interface {
	Verify(image []byte, token string) error
}

// MinisignVerifier verifies a minisign signature over the image.
type MinisignVerifier struct {
	pubKey minisign.PublicKey
}

// NewMinisignVerifier parses the base64 public key from configuration.
func NewMinisignVerifier(publicKey string) (*MinisignVerifier, error) {
	pubKey, err := minisign.NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("parsing minisign public key: %w", err)
	}
	return &MinisignVerifier{pubKey: pubKey}, nil
}

// Verify checks the armored signature in token against the image.
func (v *MinisignVerifier) Verify(image []byte, token string) error {
	sig, err := minisign.DecodeSignature(token)
	if err != nil {
		return fmt.Errorf("%w: decoding signature: %v", ErrVerification, err)
	}

	valid, err := v.pubKey.Verify(image, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !valid {
		return fmt.Errorf("%w: signature does not match", ErrVerification)
	}
	return nil
}

// SHA256Verifier compares the image digest to a hex token.
// Weaker than a signature (integrity only, no authenticity); intended
// for development and closed networks.
type SHA256Verifier struct{}

// Verify checks the hex-encoded digest in token against the image.
func (SHA256Verifier) Verify(image []byte, token string) error {
	want, err := hex.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: decoding checksum: %v", ErrVerification, err)
	}

	sum := sha256.Sum256(image)
	if subtle.ConstantTimeCompare(sum[:], want) != 1 {
		return fmt.Errorf("%w: checksum does not match", ErrVerification)
	}
	return nil
}
