package redis

import (
	"context"
	"testing"
	"time"
)

func TestVerifiedFlagRepository_SetAndCheck(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewVerifiedFlagRepository(client, "reset_verified")

	ctx := context.Background()
	ttl := 10 * time.Minute

	if err := repo.Set(ctx, "User@Example.com", ttl); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	set, err := repo.IsSet(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("IsSet returned error: %v", err)
	}
	if !set {
		t.Fatal("expected flag to be set")
	}

	remaining := server.TTL("reset_verified:user@example.com")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestVerifiedFlagRepository_MissAndClear(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewVerifiedFlagRepository(client, "reset_verified")

	ctx := context.Background()

	set, err := repo.IsSet(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("IsSet returned error: %v", err)
	}
	if set {
		t.Fatal("expected flag to be absent")
	}

	if err := repo.Set(ctx, "user@example.com", time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := repo.Clear(ctx, "user@example.com"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	// clearing an already-absent flag stays quiet
	if err := repo.Clear(ctx, "user@example.com"); err != nil {
		t.Fatalf("second Clear returned error: %v", err)
	}

	set, err = repo.IsSet(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("IsSet returned error: %v", err)
	}
	if set {
		t.Fatal("expected flag cleared")
	}
}

func TestVerifiedFlagRepository_Expires(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewVerifiedFlagRepository(client, "reset_verified")

	ctx := context.Background()

	if err := repo.Set(ctx, "user@example.com", time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	set, err := repo.IsSet(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("IsSet returned error: %v", err)
	}
	if set {
		t.Fatal("expected flag to expire")
	}
}
