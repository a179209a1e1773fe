package tokenstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// mintToken builds a decodable session token for tests.
func mintToken(t *testing.T, userID string, iat, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id":  userID,
		"email":    userID + "@example.com",
		"name":     "Test User",
		"provider": "google",
		"iat":      iat.Unix(),
		"exp":      exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

// failingStorage implements Storage and fails every write.
type failingStorage struct{}

func (failingStorage) Load(key string) (string, error) { return "", nil }
func (failingStorage) Store(key, value string) error   { return errors.New("disk full") }
func (failingStorage) Delete(key string) error         { return errors.New("disk full") }

func TestSetToken_Success(t *testing.T) {
	store := New(NewMemory(), "test_token")

	store.SetToken("tok123")

	token, ok := store.Token()
	if !ok {
		t.Fatal("expected token to be present")
	}
	if token != "tok123" {
		t.Errorf("expected tok123, got %s", token)
	}
}

func TestToken_Empty(t *testing.T) {
	store := New(NewMemory(), "test_token")

	_, ok := store.Token()

	if ok {
		t.Error("expected no token")
	}
}

func TestRemoveToken(t *testing.T) {
	store := New(NewMemory(), "test_token")
	store.SetToken("tok123")

	store.RemoveToken()

	if _, ok := store.Token(); ok {
		t.Error("token should be removed")
	}
}

func TestSetToken_StorageFailure(t *testing.T) {
	store := New(failingStorage{}, "test_token")

	// Must not panic; the failure is logged and the call returns.
	store.SetToken("tok123")
}

func TestIsTokenValid_Success(t *testing.T) {
	now := time.Now()
	store := New(NewMemory(), "test_token", WithClock(func() time.Time { return now }))
	store.SetToken(mintToken(t, "user1", now, now.Add(time.Hour)))

	if !store.IsTokenValid() {
		t.Error("token expiring in one hour should be valid")
	}
}

func TestIsTokenValid_Expired(t *testing.T) {
	now := time.Now()
	store := New(NewMemory(), "test_token", WithClock(func() time.Time { return now }))
	store.SetToken(mintToken(t, "user1", now.Add(-2*time.Hour), now.Add(-time.Hour)))

	if store.IsTokenValid() {
		t.Error("expired token should be invalid")
	}
}

func TestIsTokenValid_NoToken(t *testing.T) {
	store := New(NewMemory(), "test_token")

	if store.IsTokenValid() {
		t.Error("missing token should be invalid")
	}
}

func TestIsTokenValid_Malformed(t *testing.T) {
	store := New(NewMemory(), "test_token")
	store.SetToken("not-a-jwt")

	if store.IsTokenValid() {
		t.Error("malformed token should be invalid")
	}
}

func TestDecodeClaims_Success(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	exp := now.Add(time.Hour)
	store := New(NewMemory(), "test_token")
	store.SetToken(mintToken(t, "user42", now, exp))

	claims := store.DecodeClaims()

	if claims == nil {
		t.Fatal("expected claims")
	}
	if claims.UserID != "user42" {
		t.Errorf("expected user42, got %s", claims.UserID)
	}
	if claims.Email != "user42@example.com" {
		t.Errorf("unexpected email %s", claims.Email)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("expected exp %v, got %v", exp, claims.ExpiresAt)
	}
	if !claims.IssuedAt.Equal(now) {
		t.Errorf("expected iat %v, got %v", now, claims.IssuedAt)
	}
}

func TestDecodeClaims_NoToken(t *testing.T) {
	store := New(NewMemory(), "test_token")

	if store.DecodeClaims() != nil {
		t.Error("expected nil claims without a token")
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode("garbage")

	if err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestConsumeState_Success(t *testing.T) {
	store := New(NewMemory(), "test_token")
	store.SetState("nonce123")

	state, ok := store.ConsumeState()

	if !ok {
		t.Fatal("expected stored state")
	}
	if state != "nonce123" {
		t.Errorf("expected nonce123, got %s", state)
	}
}

func TestConsumeState_SingleUse(t *testing.T) {
	store := New(NewMemory(), "test_token")
	store.SetState("nonce123")

	store.ConsumeState()
	_, ok := store.ConsumeState()

	if ok {
		t.Error("state must be consumed exactly once")
	}
}

func TestConsumeState_Empty(t *testing.T) {
	store := New(NewMemory(), "test_token")

	_, ok := store.ConsumeState()

	if ok {
		t.Error("expected no state")
	}
}

func TestFileStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	storage, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}

	if err := storage.Store("key1", "value1"); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	got, err := storage.Load("key1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != "value1" {
		t.Errorf("expected value1, got %s", got)
	}

	// A second storage over the same file sees the persisted value.
	reopened, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	got, err = reopened.Load("key1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != "value1" {
		t.Errorf("expected value1 after reopen, got %s", got)
	}
}

func TestFileStorage_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	storage, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if err := storage.Store("key1", "value1"); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	if err := storage.Delete("key1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	got, err := storage.Load("key1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty value after delete, got %s", got)
	}
}
