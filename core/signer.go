package core

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

const (
	SignatureAlgEd25519    = "ed25519"
	SignatureAlgDilithium3 = "dilithium3"
)

// Ed25519SummarySigner signs sha256(payload) with an Ed25519 key.
type Ed25519SummarySigner struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	keyID      string
}

func NewEd25519SummarySigner(privateKey ed25519.PrivateKey) (*Ed25519SummarySigner, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("core: invalid ed25519 private key length")
	}
	publicKey, ok := privateKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("core: ed25519 public key unavailable")
	}
	keyID, err := ContentID(publicKey)
	if err != nil {
		return nil, err
	}
	return &Ed25519SummarySigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		keyID:      keyID,
	}, nil
}

func GenerateEd25519SummarySigner(random io.Reader) (*Ed25519SummarySigner, error) {
	if random == nil {
		random = rand.Reader
	}
	_, privateKey, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("core: generate ed25519 key: %w", err)
	}
	return NewEd25519SummarySigner(privateKey)
}

func (s *Ed25519SummarySigner) Algorithm() string { return SignatureAlgEd25519 }

func (s *Ed25519SummarySigner) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *Ed25519SummarySigner) PublicKey() ed25519.PublicKey {
	if s == nil {
		return nil
	}
	return append(ed25519.PublicKey(nil), s.publicKey...)
}

func (s *Ed25519SummarySigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	if s == nil || len(s.privateKey) == 0 {
		return nil, fmt.Errorf("core: ed25519 signer is not configured")
	}
	digest := sha256.Sum256(payload)
	return ed25519.Sign(s.privateKey, digest[:]), nil
}

func (s *Ed25519SummarySigner) Verify(_ context.Context, payload []byte, signature []byte) error {
	if s == nil || len(s.publicKey) == 0 {
		return fmt.Errorf("core: ed25519 verifier is not configured")
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("core: invalid ed25519 signature length")
	}
	digest := sha256.Sum256(payload)
	if !ed25519.Verify(s.publicKey, digest[:], signature) {
		return fmt.Errorf("core: summary signature invalid")
	}
	return nil
}

// Dilithium3SummarySigner signs sha3-256(payload) with a post-quantum
// Dilithium mode 3 key.
type Dilithium3SummarySigner struct {
	privateKey *mode3.PrivateKey
	publicKey  *mode3.PublicKey
	keyID      string
}

func NewDilithium3SummarySigner(publicKey *mode3.PublicKey, privateKey *mode3.PrivateKey) (*Dilithium3SummarySigner, error) {
	if publicKey == nil || privateKey == nil {
		return nil, fmt.Errorf("core: dilithium3 key pair is required")
	}
	keyID, err := ContentID(publicKey.Bytes())
	if err != nil {
		return nil, err
	}
	return &Dilithium3SummarySigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		keyID:      keyID,
	}, nil
}

func GenerateDilithium3SummarySigner(random io.Reader) (*Dilithium3SummarySigner, error) {
	if random == nil {
		random = rand.Reader
	}
	publicKey, privateKey, err := mode3.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("core: generate dilithium3 key: %w", err)
	}
	return NewDilithium3SummarySigner(publicKey, privateKey)
}

func (s *Dilithium3SummarySigner) Algorithm() string { return SignatureAlgDilithium3 }

func (s *Dilithium3SummarySigner) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *Dilithium3SummarySigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.privateKey == nil {
		return nil, fmt.Errorf("core: dilithium3 signer is not configured")
	}
	digest := sha3.Sum256(payload)
	signature := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.privateKey, digest[:], signature)
	return signature, nil
}

func (s *Dilithium3SummarySigner) Verify(_ context.Context, payload []byte, signature []byte) error {
	if s == nil || s.publicKey == nil {
		return fmt.Errorf("core: dilithium3 verifier is not configured")
	}
	if len(signature) != mode3.SignatureSize {
		return fmt.Errorf("core: invalid dilithium3 signature length")
	}
	digest := sha3.Sum256(payload)
	if !mode3.Verify(s.publicKey, digest[:], signature) {
		return fmt.Errorf("core: summary signature invalid")
	}
	return nil
}

var (
	_ SummarySigner   = (*Ed25519SummarySigner)(nil)
	_ SummaryVerifier = (*Ed25519SummarySigner)(nil)
	_ SummarySigner   = (*Dilithium3SummarySigner)(nil)
	_ SummaryVerifier = (*Dilithium3SummarySigner)(nil)
)
