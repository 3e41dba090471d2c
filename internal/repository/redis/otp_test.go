package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resumekit/credential-service/internal/repository"
)

func TestOTPRepository_StoreAndFetch(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOTPRepository(client, "reset_otp")

	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return fixed })

	ctx := context.Background()
	ttl := 10 * time.Minute

	record, err := repo.Store(ctx, "User@Example.com", "483920", ttl)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if record.Email != "user@example.com" {
		t.Fatalf("expected normalized email, got %s", record.Email)
	}
	if !record.ExpiresAt.Equal(fixed.Add(ttl)) {
		t.Fatalf("expected expiry %v, got %v", fixed.Add(ttl), record.ExpiresAt)
	}

	fetched, err := repo.Fetch(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.Code != "483920" {
		t.Fatalf("expected code 483920, got %s", fetched.Code)
	}
	if fetched.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", fetched.Attempts)
	}

	remaining := server.TTL("reset_otp:user@example.com")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestOTPRepository_StoreReplacesPending(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "reset_otp")

	ctx := context.Background()

	if _, err := repo.Store(ctx, "user@example.com", "111111", 10*time.Minute); err != nil {
		t.Fatalf("first Store returned error: %v", err)
	}
	if _, err := repo.IncrementAttempts(ctx, "user@example.com"); err != nil {
		t.Fatalf("IncrementAttempts returned error: %v", err)
	}
	if _, err := repo.Store(ctx, "user@example.com", "222222", 10*time.Minute); err != nil {
		t.Fatalf("second Store returned error: %v", err)
	}

	fetched, err := repo.Fetch(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.Code != "222222" {
		t.Fatalf("expected replacement code, got %s", fetched.Code)
	}
	if fetched.Attempts != 0 {
		t.Fatalf("expected attempts reset on reissue, got %d", fetched.Attempts)
	}
}

func TestOTPRepository_FetchMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "reset_otp")

	if _, err := repo.Fetch(context.Background(), "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOTPRepository_IncrementAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "reset_otp")

	ctx := context.Background()

	if _, err := repo.Store(ctx, "user@example.com", "483920", 10*time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementAttempts(ctx, "user@example.com")
		if err != nil {
			t.Fatalf("IncrementAttempts returned error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d attempts, got %d", want, got)
		}
	}
}

func TestOTPRepository_DeleteEnforcesSingleUse(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "reset_otp")

	ctx := context.Background()

	if _, err := repo.Store(ctx, "user@example.com", "483920", 10*time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if err := repo.Delete(ctx, "user@example.com"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(ctx, "user@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := repo.Fetch(ctx, "user@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOTPRepository_ExpiredKeyEvicted(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOTPRepository(client, "reset_otp")

	ctx := context.Background()

	if _, err := repo.Store(ctx, "user@example.com", "483920", time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := repo.Fetch(ctx, "user@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}
