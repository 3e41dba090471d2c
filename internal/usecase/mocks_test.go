package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/repository"
)

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	getErr    error
	setErr    error
	updateErr error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (m *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.blobs[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *memBlobStore) Set(_ context.Context, key string, payload []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), payload...)
	return nil
}

func (m *memBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}

func (m *memBlobStore) Update(_ context.Context, key string, mutate func(current []byte) ([]byte, error)) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.blobs[key]
	if !ok {
		current = nil
	}
	next, err := mutate(current)
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.blobs, key)
		return nil
	}
	m.blobs[key] = append([]byte(nil), next...)
	return nil
}

type memOTPStore struct {
	records map[string]*domain.OTPRecord
	now     func() time.Time

	storeErr error
	fetchErr error
}

func newMemOTPStore(clock func() time.Time) *memOTPStore {
	if clock == nil {
		clock = time.Now
	}
	return &memOTPStore{records: map[string]*domain.OTPRecord{}, now: clock}
}

func (m *memOTPStore) Store(_ context.Context, email, code string, ttl time.Duration) (*domain.OTPRecord, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	now := m.now().UTC()
	record := &domain.OTPRecord{
		Email:     email,
		Code:      code,
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	m.records[email] = record
	out := *record
	return &out, nil
}

func (m *memOTPStore) Fetch(_ context.Context, email string) (*domain.OTPRecord, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	record, ok := m.records[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *record
	return &out, nil
}

func (m *memOTPStore) IncrementAttempts(_ context.Context, email string) (int, error) {
	record, ok := m.records[email]
	if !ok {
		return 0, repository.ErrNotFound
	}
	record.Attempts++
	return record.Attempts, nil
}

func (m *memOTPStore) Delete(_ context.Context, email string) error {
	if _, ok := m.records[email]; !ok {
		return repository.ErrNotFound
	}
	delete(m.records, email)
	return nil
}

type memFlagStore struct {
	flags map[string]bool

	setErr   error
	isSetErr error
	clearErr error
}

func newMemFlagStore() *memFlagStore {
	return &memFlagStore{flags: map[string]bool{}}
}

func (m *memFlagStore) Set(_ context.Context, email string, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.flags[email] = true
	return nil
}

func (m *memFlagStore) IsSet(_ context.Context, email string) (bool, error) {
	if m.isSetErr != nil {
		return false, m.isSetErr
	}
	return m.flags[email], nil
}

func (m *memFlagStore) Clear(_ context.Context, email string) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.flags, email)
	return nil
}

type memResetTokenStore struct {
	byHash map[string]domain.ResetToken

	createErr  error
	consumeErr error
}

func newMemResetTokenStore() *memResetTokenStore {
	return &memResetTokenStore{byHash: map[string]domain.ResetToken{}}
}

func (m *memResetTokenStore) Create(_ context.Context, token domain.ResetToken, _ time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byHash[token.TokenHash] = token
	return nil
}

func (m *memResetTokenStore) GetByHash(_ context.Context, hash string) (*domain.ResetToken, error) {
	token, ok := m.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := token
	return &out, nil
}

func (m *memResetTokenStore) Consume(_ context.Context, hash string) (*domain.ResetToken, error) {
	if m.consumeErr != nil {
		return nil, m.consumeErr
	}
	token, ok := m.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.byHash, hash)
	out := token
	return &out, nil
}

type memRateLimitStore struct {
	attempts map[string][]time.Time
}

func newMemRateLimitStore() *memRateLimitStore {
	return &memRateLimitStore{attempts: map[string][]time.Time{}}
}

func (m *memRateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	threshold := reference.Add(-window)
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if at.After(threshold) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *memRateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	threshold := reference.Add(-window)
	count := 0
	for _, at := range m.attempts[identifier] {
		if at.After(threshold) {
			count++
		}
	}
	return count, nil
}

func (m *memRateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *memRateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	threshold := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range m.attempts[identifier] {
		if !at.After(threshold) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

type capturedEvents struct {
	registered     []domain.AccountRegisteredEvent
	changed        []domain.PasswordChangedEvent
	resetRequested []domain.PasswordResetRequestedEvent
	otpIssued      []domain.OTPIssuedEvent
}

func (c *capturedEvents) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	c.registered = append(c.registered, event)
	return nil
}

func (c *capturedEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	c.changed = append(c.changed, event)
	return nil
}

func (c *capturedEvents) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	c.resetRequested = append(c.resetRequested, event)
	return nil
}

func (c *capturedEvents) PublishOTPIssued(_ context.Context, event domain.OTPIssuedEvent) error {
	c.otpIssued = append(c.otpIssued, event)
	return nil
}

// hostedAuthMock scripts the external identity service for orchestrator tests.
type hostedAuthMock struct {
	session      *domain.HostedSession
	adoptSession *domain.HostedSession

	sendResetErr     error
	sendResetCalls   []string
	updateErr        error
	updatedPasswords []string
	adoptErr         error
	adoptedTokens    []string
	getSessionErr    error
}

func (m *hostedAuthMock) SignUp(context.Context, string, string) (*domain.HostedSession, error) {
	return nil, errors.New("unexpected call: SignUp")
}

func (m *hostedAuthMock) SignIn(context.Context, string, string) (*domain.HostedSession, error) {
	return nil, errors.New("unexpected call: SignIn")
}

func (m *hostedAuthMock) SignOut(context.Context) error {
	m.session = nil
	return nil
}

func (m *hostedAuthMock) UpdatePassword(_ context.Context, newPassword string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.session == nil {
		return errors.New("no active session")
	}
	m.updatedPasswords = append(m.updatedPasswords, newPassword)
	return nil
}

func (m *hostedAuthMock) SendPasswordResetEmail(_ context.Context, email string) error {
	m.sendResetCalls = append(m.sendResetCalls, email)
	return m.sendResetErr
}

func (m *hostedAuthMock) GetSession(context.Context) (*domain.HostedSession, error) {
	if m.getSessionErr != nil {
		return nil, m.getSessionErr
	}
	if m.session == nil {
		return nil, nil
	}
	out := *m.session
	return &out, nil
}

func (m *hostedAuthMock) AdoptSession(_ context.Context, accessToken string) (*domain.HostedSession, error) {
	if m.adoptErr != nil {
		return nil, m.adoptErr
	}
	m.adoptedTokens = append(m.adoptedTokens, accessToken)
	if m.adoptSession != nil {
		installed := *m.adoptSession
		installed.AccessToken = accessToken
		m.session = &installed
	} else if m.session == nil {
		m.session = &domain.HostedSession{AccessToken: accessToken}
	}
	out := *m.session
	return &out, nil
}

func (m *hostedAuthMock) Subscribe(int) (<-chan domain.HostedUserChange, func()) {
	ch := make(chan domain.HostedUserChange)
	return ch, func() { close(ch) }
}
