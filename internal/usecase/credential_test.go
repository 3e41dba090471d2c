package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
)

const (
	strongPassword  = "mangrove-oriole-91"
	anotherPassword = "quartz-lantern-55"
)

func newCredentialFixture(t *testing.T) (*CredentialService, *memBlobStore, *capturedEvents) {
	t.Helper()
	blobs := newMemBlobStore()
	events := &capturedEvents{}
	svc := NewCredentialService(blobs, events, nil, zap.NewNop())
	fixed := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })
	return svc, blobs, events
}

func TestCredentialServiceRegisterAndAuthenticate(t *testing.T) {
	svc, _, events := newCredentialFixture(t)
	ctx := context.Background()

	created, err := svc.Register(ctx, "Person@Example.com", strongPassword, "", domain.RoleUser)
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected account to be created")
	}

	account, err := svc.Authenticate(ctx, "person@example.com", strongPassword)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if account.Email != "person@example.com" {
		t.Fatalf("expected normalized email, got %s", account.Email)
	}
	if account.DisplayName != "person" {
		t.Fatalf("expected display name derived from email, got %s", account.DisplayName)
	}
	if !strings.HasPrefix(account.PasswordHash, "argon2id$") {
		t.Fatalf("expected argon2id hash, got %s", account.PasswordHash)
	}
	if account.PasswordHash == strongPassword {
		t.Fatalf("password stored in the clear")
	}

	if len(events.registered) != 1 {
		t.Fatalf("expected 1 registered event, got %d", len(events.registered))
	}
	if events.registered[0].Source != "local" {
		t.Fatalf("expected event source local, got %s", events.registered[0].Source)
	}
}

func TestCredentialServiceDuplicateRegisterLeavesPasswordUnchanged(t *testing.T) {
	svc, _, events := newCredentialFixture(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "person@example.com", strongPassword, "Person", domain.RoleUser); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}

	created, err := svc.Register(ctx, "PERSON@example.com", anotherPassword, "Impostor", domain.RoleAdmin)
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	if created {
		t.Fatalf("duplicate register must not report creation")
	}

	if _, err := svc.Authenticate(ctx, "person@example.com", strongPassword); err != nil {
		t.Fatalf("original password stopped working after duplicate register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "person@example.com", anotherPassword); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("duplicate register must not change the password, got %v", err)
	}

	if len(events.registered) != 1 {
		t.Fatalf("expected only the first registration to publish, got %d events", len(events.registered))
	}
}

func TestCredentialServiceAuthenticateFailures(t *testing.T) {
	svc, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "person@example.com", strongPassword, "Person", domain.RoleUser); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "nobody@example.com", strongPassword); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for unknown email, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "person@example.com", "wrong-pass-11"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for wrong password, got %v", err)
	}
}

func TestCredentialServiceRegisterRejectsWeakPassword(t *testing.T) {
	svc, _, _ := newCredentialFixture(t)

	if _, err := svc.Register(context.Background(), "person@example.com", "password", "", domain.RoleUser); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestCredentialServiceRegisterRejectsMalformedEmail(t *testing.T) {
	svc, _, _ := newCredentialFixture(t)

	if _, err := svc.Register(context.Background(), "not-an-email", strongPassword, "", domain.RoleUser); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestCredentialServiceChangePassword(t *testing.T) {
	svc, _, events := newCredentialFixture(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "person@example.com", strongPassword, "Person", domain.RoleUser); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if err := svc.ChangePassword(ctx, "person@example.com", "wrong-pass-11", anotherPassword); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for wrong current password, got %v", err)
	}

	if err := svc.ChangePassword(ctx, "person@example.com", strongPassword, anotherPassword); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "person@example.com", anotherPassword); err != nil {
		t.Fatalf("new password rejected after change: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "person@example.com", strongPassword); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("old password still accepted after change")
	}

	if len(events.changed) != 1 {
		t.Fatalf("expected 1 password changed event, got %d", len(events.changed))
	}
	if events.changed[0].Flow != "change" {
		t.Fatalf("expected flow change, got %s", events.changed[0].Flow)
	}
	if events.changed[0].Store != "local" {
		t.Fatalf("expected store local, got %s", events.changed[0].Store)
	}
}

func TestCredentialServiceCorruptBlobStartsEmpty(t *testing.T) {
	svc, blobs, _ := newCredentialFixture(t)
	ctx := context.Background()

	if err := blobs.Set(ctx, KeyRegisteredUsers, []byte("{not json")); err != nil {
		t.Fatalf("seeding corrupt blob: %v", err)
	}

	created, err := svc.Register(ctx, "person@example.com", strongPassword, "", domain.RoleUser)
	if err != nil {
		t.Fatalf("Register on corrupt blob returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected registration to succeed on corrupt blob")
	}
}

func TestCredentialServiceRemoveAccount(t *testing.T) {
	svc, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "person@example.com", strongPassword, "", domain.RoleUser); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if err := svc.RemoveAccount(ctx, "person@example.com"); err != nil {
		t.Fatalf("RemoveAccount returned error: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "person@example.com", strongPassword); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("removed account still authenticates")
	}
	if err := svc.RemoveAccount(ctx, "person@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on second removal, got %v", err)
	}
}

func TestCredentialServiceListAccountsBlanksHashes(t *testing.T) {
	svc, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", strongPassword, "A", domain.RoleUser); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, err := svc.Register(ctx, "b@example.com", anotherPassword, "B", domain.RoleAdmin); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	accounts, err := svc.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	for _, account := range accounts {
		if account.PasswordHash != "" {
			t.Fatalf("expected password hash blanked for %s", account.Email)
		}
	}
}
