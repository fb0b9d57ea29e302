package exchange

import (
	"testing"
	"time"
)

func TestStoreRegisterAndFind(t *testing.T) {
	store := NewStore(time.Minute)
	ex := NewExchange(OriginLocal, testAddr("127.0.0.1:5683"))

	midKey := NewKeyMID(ex.RemoteAddr, 42)
	if err := store.RegisterMID(midKey, ex); err != nil {
		t.Fatalf("RegisterMID() error = %v", err)
	}
	if got, ok := store.FindByMID(midKey); !ok || got != ex {
		t.Errorf("FindByMID() = (%v, %v), want (ex, true)", got, ok)
	}

	tokenKey := NewKeyToken(ex.RemoteAddr, []byte{1, 2, 3})
	if err := store.RegisterToken(tokenKey, ex); err != nil {
		t.Fatalf("RegisterToken() error = %v", err)
	}
	if got, ok := store.FindByToken(tokenKey); !ok || got != ex {
		t.Errorf("FindByToken() = (%v, %v), want (ex, true)", got, ok)
	}
}

func TestStoreRegisterMIDIdempotent(t *testing.T) {
	store := NewStore(time.Minute)
	ex := NewExchange(OriginLocal, testAddr("127.0.0.1:5683"))
	key := NewKeyMID(ex.RemoteAddr, 1)

	if err := store.RegisterMID(key, ex); err != nil {
		t.Fatalf("first RegisterMID() error = %v", err)
	}
	if err := store.RegisterMID(key, ex); err != nil {
		t.Fatalf("repeat RegisterMID() error = %v, want nil", err)
	}
}

func TestStoreRegisterMIDRejectsCollision(t *testing.T) {
	store := NewStore(time.Minute)
	peer := testAddr("127.0.0.1:5683")
	a := NewExchange(OriginLocal, peer)
	b := NewExchange(OriginLocal, peer)
	key := NewKeyMID(peer, 1)

	if err := store.RegisterMID(key, a); err != nil {
		t.Fatalf("RegisterMID(a) error = %v", err)
	}
	if err := store.RegisterMID(key, b); err != ErrDuplicateMID {
		t.Errorf("RegisterMID(b) error = %v, want ErrDuplicateMID", err)
	}
}

func TestStoreRegisterTokenRejectsCollision(t *testing.T) {
	store := NewStore(time.Minute)
	peer := testAddr("127.0.0.1:5683")
	a := NewExchange(OriginLocal, peer)
	b := NewExchange(OriginLocal, peer)
	key := NewKeyToken(peer, []byte{0xAB})

	if err := store.RegisterToken(key, a); err != nil {
		t.Fatalf("RegisterToken(a) error = %v", err)
	}
	if err := store.RegisterToken(key, b); err != ErrRejectedDuplicateToken {
		t.Errorf("RegisterToken(b) error = %v, want ErrRejectedDuplicateToken", err)
	}
}

func TestStoreRemoveClearsAllTables(t *testing.T) {
	store := NewStore(time.Minute)
	ex := NewExchange(OriginLocal, testAddr("127.0.0.1:5683"))

	midKey := NewKeyMID(ex.RemoteAddr, 7)
	tokenKey := NewKeyToken(ex.RemoteAddr, []byte{9})
	_ = store.RegisterMID(midKey, ex)
	_ = store.RegisterToken(tokenKey, ex)

	store.Remove(ex)

	if _, ok := store.FindByMID(midKey); ok {
		t.Error("FindByMID() found entry after Remove")
	}
	if _, ok := store.FindByToken(tokenKey); ok {
		t.Error("FindByToken() found entry after Remove")
	}
}

func TestStoreTokenExpiresAfterLifetime(t *testing.T) {
	store := NewStore(20 * time.Millisecond)
	ex := NewExchange(OriginLocal, testAddr("127.0.0.1:5683"))
	tokenKey := NewKeyToken(ex.RemoteAddr, []byte{1})

	if err := store.RegisterToken(tokenKey, ex); err != nil {
		t.Fatalf("RegisterToken() error = %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if _, ok := store.FindByToken(tokenKey); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("token entry never expired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !ex.IsCompleted() {
		t.Error("exchange was not completed on expiry")
	}
}

func TestStoreExemptFromEvictionSurvivesLifetime(t *testing.T) {
	store := NewStore(15 * time.Millisecond)
	ex := NewExchange(OriginLocal, testAddr("127.0.0.1:5683"))
	tokenKey := NewKeyToken(ex.RemoteAddr, []byte{2})

	if err := store.RegisterToken(tokenKey, ex); err != nil {
		t.Fatalf("RegisterToken() error = %v", err)
	}
	store.ExemptFromEviction(ex)

	time.Sleep(60 * time.Millisecond)

	if _, ok := store.FindByToken(tokenKey); !ok {
		t.Error("exempted entry was evicted")
	}
	if ex.IsCompleted() {
		t.Error("exempted exchange was completed")
	}
}
