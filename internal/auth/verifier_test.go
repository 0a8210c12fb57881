package auth

import (
	"testing"
	"time"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	token, err := v.Issue(Identity{UserID: "user-1", Role: RoleMerchant}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "user-1" || id.Role != RoleMerchant {
		t.Fatalf("identity = %+v", id)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	token, err := v.Issue(Identity{UserID: "user-1", Role: RoleShopper}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = v.Verify(token)
	if apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("expired token: got %v, want AuthError", err)
	}
	if apperr.CodeOf(err) != "expired_credential" {
		t.Fatalf("expired token code = %s", apperr.CodeOf(err))
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTVerifier("secret-a")
	verifier := NewJWTVerifier("secret-b")

	token, err := issuer.Issue(Identity{UserID: "user-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := verifier.Verify(token); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("forged token: got %v, want AuthError", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := v.Verify(token); apperr.KindOf(err) != apperr.KindAuth {
			t.Fatalf("Verify(%q): got %v, want AuthError", token, err)
		}
	}
}
