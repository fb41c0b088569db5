package rules

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer obtains a signature over an acceptance digest from the player's
// identity key. Implementations typically suspend pending an out-of-band
// confirmation; a decline must surface as common.ErrUserRejected.
type Signer interface {
	Address() string
	PublicKey() string
	Sign(ctx context.Context, digest []byte) (string, error)
}

// Keypair is an ed25519 identity key held in process; it signs without
// prompting and exists for headless clients and tests.
type Keypair struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// GenerateKeypair creates a new ed25519 identity keypair
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity keypair; %s", err.Error())
	}
	return &Keypair{
		privateKey: priv,
		publicKey:  pub,
	}, nil
}

// Address returns the 40-char hex address derived from the public key;
// the first 20 bytes of its sha256 hash.
func (k *Keypair) Address() string {
	return AddressFromPublicKey(k.publicKey)
}

// PublicKey returns the hex-encoded public key
func (k *Keypair) PublicKey() string {
	return hex.EncodeToString(k.publicKey)
}

// Sign signs the digest and returns a hex-encoded signature
func (k *Keypair) Sign(ctx context.Context, digest []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(k.privateKey, digest)), nil
}

// AddressFromPublicKey derives the canonical player address for a public key
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:20])
}

// VerifySignature checks a hex-encoded ed25519 signature over the digest
// against the hex-encoded public key and confirms the claimed address was
// derived from that key.
func VerifySignature(publicKeyHex, claimedAddress string, digest []byte, signatureHex string) error {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex; %s", err.Error())
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes; got %d", ed25519.PublicKeySize, len(pub))
	}
	if AddressFromPublicKey(pub) != claimedAddress {
		return fmt.Errorf("public key does not derive claimed address %s", claimedAddress)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex; %s", err.Error())
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
		return fmt.Errorf("signature verification failed for address %s", claimedAddress)
	}
	return nil
}
