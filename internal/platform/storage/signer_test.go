package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func serviceAccountJSON(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	data, err := json.Marshal(map[string]string{
		"client_email": "media@threadcart.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return data
}

func TestLoadServiceAccountSigner(t *testing.T) {
	data := serviceAccountJSON(t)

	inline, err := LoadServiceAccountSigner(string(data))
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if inline.Email() != "media@threadcart.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %q", inline.Email())
	}

	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	fromFile, err := LoadServiceAccountSigner(path)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	sig, err := fromFile.SignBytes(context.Background(), []byte("payload"))
	if err != nil || len(sig) == 0 {
		t.Fatalf("expected signature, got %v", err)
	}

	if _, err := LoadServiceAccountSigner(""); err == nil {
		t.Fatalf("expected error for empty source")
	}
	if _, err := NewServiceAccountSignerFromJSON([]byte(`{"client_email":"x"}`)); err == nil {
		t.Fatalf("expected error for missing private key")
	}
}
