// Package cryptoport is the Crypto port: symmetric key generation
// and ECIES-style public-key encryption, consumed exclusively by the group
// key-rotation engine to wrap a fresh feed key per member.
//
// The cryptographic primitives themselves are explicitly out of scope for
// soundness review, but the port still needs one concrete,
// real implementation to exercise. It is grounded on the teacher's
// pkg/wallet.Wallet (secp256k1 key handling via go-ethereum's crypto
// package) for key parsing, composed with a standard ECIES construction
// (ephemeral ECDH + HKDF-SHA256 + AES-256-GCM) built on golang.org/x/crypto,
// which the teacher already carries as an indirect dependency of
// go-ethereum and is promoted to direct use here.
package cryptoport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidKeyFormat is returned when a member's stored public encryption
// key cannot be parsed as a point on the curve.
var ErrInvalidKeyFormat = errors.New("invalid public key format")

const symmetricKeySize = 32 // AES-256

// Port is the Crypto port consumed by the rotation engine.
type Port interface {
	// GenerateSymmetricKey returns a fresh random 256-bit key.
	GenerateSymmetricKey() ([]byte, error)
	// EncryptWithPublicKey wraps plaintext for the holder of the given
	// uncompressed secp256k1 public key (go-ethereum/crypto.FromECDSAPub
	// format). Returns ErrInvalidKeyFormat if pubkey does not parse.
	EncryptWithPublicKey(plaintext, pubkey []byte) ([]byte, error)
}

// ECIES is the default Port implementation.
type ECIES struct{}

// New returns the default ECIES-based crypto port.
func New() *ECIES { return &ECIES{} }

// GenerateSymmetricKey implements Port.
func (e *ECIES) GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, symmetricKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("reading random key material: %w", err)
	}
	return key, nil
}

// EncryptWithPublicKey implements Port using an ephemeral-ECDH + HKDF +
// AES-GCM construction, the standard shape of ECIES. The wire format is
// ephemeralPubKey(65) || nonce(12) || ciphertext+tag.
func (e *ECIES) EncryptWithPublicKey(plaintext, pubkey []byte) ([]byte, error) {
	recipientPub, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyFormat, err)
	}

	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}

	sharedX, _ := recipientPub.Curve.ScalarMult(recipientPub.X, recipientPub.Y, ephemeral.D.Bytes())
	secret := sharedX.Bytes()

	symKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("hushnetwork/feed-key-wrap")), symKey); err != nil {
		return nil, fmt.Errorf("deriving wrap key: %w", err)
	}

	block, err := aes.NewCipher(symKey)
	if err != nil {
		return nil, fmt.Errorf("constructing aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("reading nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	ephemeralPub := crypto.FromECDSAPub(&ephemeral.PublicKey)
	out := make([]byte, 0, len(ephemeralPub)+len(nonce)+len(ciphertext))
	out = append(out, ephemeralPub...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// marshalPub is a small unexported helper kept for symmetry with
// UnmarshalPubkey.
func marshalPub(pub *ecdsa.PublicKey) []byte {
	return elliptic.Marshal(pub.Curve, pub.X, pub.Y)
}
