package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/neurosurgery/actionbridge/pkg/adapters/memory"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/persistence/middleware"
	"github.com/neurosurgery/actionbridge/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunStateStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	ctx := context.Background()
	original := domain.NewSessionState("s1", "ventriculostomy", "trajectory")
	original.Context["patient_name"] = "Jane Roe"

	if err := secure.Save(ctx, "s1", original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := underlying.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if _, ok := stored.Context["patient_name"]; ok {
		t.Fatal("expected context to be hidden")
	}
	if stored.StepID != "" {
		t.Fatalf("expected step to be hidden, got %q", stored.StepID)
	}
	if stored.Status != domain.StatusActive {
		t.Fatalf("expected status to stay visible, got %q", stored.Status)
	}

	loaded, err := secure.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.Context["patient_name"] != "Jane Roe" || loaded.StepID != "trajectory" {
		t.Errorf("unexpected decrypted state: %+v", loaded)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	ctx := context.Background()
	state := domain.NewSessionState("rot", "ventriculostomy", "trajectory")
	state.Context["data"] = "old"

	if err := secureOld.Save(ctx, "rot", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := secureNew.Load(ctx, "rot")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Context["data"] != "old" {
		t.Errorf("decryption with fallback key failed")
	}

	loaded.Context["data"] = "new"
	if err := secureNew.Save(ctx, "rot", loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := secureOld.Load(ctx, "rot"); err == nil {
		t.Error("expected old key alone to fail after re-encryption")
	}
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	underlying := memory.NewStore()
	if err := underlying.Save(context.Background(), "plain", domain.NewSessionState("plain", "p", "a")); err != nil {
		t.Fatal(err)
	}
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	if _, err := secure.Load(context.Background(), "plain"); err == nil {
		t.Fatal("expected plain state to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for invalid key size")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
}

func TestDecodeKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.DecodeKey(base64.StdEncoding.EncodeToString(key))
	if err != nil || string(got) != string(key) {
		t.Fatalf("DecodeKey() = %v, %v", got, err)
	}
	if _, err := middleware.DecodeKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected short key to be rejected")
	}
	if _, err := middleware.DecodeKey("%%%"); err == nil {
		t.Fatal("expected invalid base64 to be rejected")
	}
}
