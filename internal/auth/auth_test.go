package auth_test

import (
	"context"
	"testing"
	"time"

	"podmill/internal/auth"
)

const testSecret = "unit-test-secret"

func TestSignVerifyRoundTrip(t *testing.T) {
	want := auth.Identity{UserID: "u123", Workspace: "ws-9", Tier: "premium"}
	token, err := auth.Sign(testSecret, want, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := auth.NewJWTVerifier(testSecret).Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != want {
		t.Fatalf("identity = %+v, want %+v", got, want)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := auth.Sign(testSecret, auth.Identity{UserID: "u123"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := auth.NewJWTVerifier("other-secret").Verify(context.Background(), token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	token, err := auth.Sign(testSecret, auth.Identity{UserID: "u123"}, -time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := auth.NewJWTVerifier(testSecret).Verify(context.Background(), token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if _, err := auth.NewJWTVerifier(testSecret).Verify(context.Background(), "not-a-token"); err == nil {
		t.Fatal("malformed token must be rejected")
	}
}

func TestSignRequiresIdentity(t *testing.T) {
	if _, err := auth.Sign(testSecret, auth.Identity{}, time.Hour); err == nil {
		t.Fatal("empty user ID must fail")
	}
	if _, err := auth.Sign("", auth.Identity{UserID: "u1"}, time.Hour); err == nil {
		t.Fatal("empty secret must fail")
	}
}

func TestStaticVerifier(t *testing.T) {
	verifier := auth.StaticVerifier{
		"dev-token": {UserID: "dev", Tier: "admin"},
	}
	got, err := verifier.Verify(context.Background(), "dev-token")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.UserID != "dev" || got.Tier != "admin" {
		t.Fatalf("identity = %+v", got)
	}
	if _, err := verifier.Verify(context.Background(), "nope"); err == nil {
		t.Fatal("unknown token must be rejected")
	}
}
