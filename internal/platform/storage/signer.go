package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Signer signs the canonical request of a V4 signed URL.
type Signer interface {
	// Email is used as the GoogleAccessID of the signed URL.
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

var errSignerKey = errors.New("storage: invalid service account key")

// ServiceAccountSigner signs media upload URLs with the uploader service account's key.
type ServiceAccountSigner struct {
	email string
	key   crypto.Signer
}

// LoadServiceAccountSigner reads the key from source, which is either the key JSON itself
// (a resolved secret) or a path to the key file.
func LoadServiceAccountSigner(source string) (*ServiceAccountSigner, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return nil, fmt.Errorf("%w: no key configured", errSignerKey)
	case strings.HasPrefix(source, "{"):
		return NewServiceAccountSignerFromJSON([]byte(source))
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("storage: read signer key: %w", err)
	}
	return NewServiceAccountSignerFromJSON(data)
}

// NewServiceAccountSignerFromJSON parses a service account key document.
func NewServiceAccountSignerFromJSON(data []byte) (*ServiceAccountSigner, error) {
	var doc struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errSignerKey, err)
	}
	email := strings.TrimSpace(doc.ClientEmail)
	if email == "" || strings.TrimSpace(doc.PrivateKey) == "" {
		return nil, fmt.Errorf("%w: client_email and private_key are required", errSignerKey)
	}
	key, err := decodeRSAKey([]byte(doc.PrivateKey))
	if err != nil {
		return nil, err
	}
	return &ServiceAccountSigner{email: email, key: key}, nil
}

func (s *ServiceAccountSigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes returns an RSA PKCS#1 v1.5 signature over the SHA-256 digest of payload.
func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := s.key.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return sig, nil
}

// decodeRSAKey accepts PKCS#8 keys as issued by Google, and PKCS#1 for locally generated ones.
func decodeRSAKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: private_key is not PEM", errSignerKey)
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private_key is not RSA", errSignerKey)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errSignerKey, err)
	}
	return key, nil
}
