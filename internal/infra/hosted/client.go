package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/config"
)

// ErrNotConfigured is returned when the hosted service base URL is unset.
// Callers treat it like any other transport failure and fall back locally.
var ErrNotConfigured = errors.New("hosted auth service is not configured")

var errNoActiveSession = errors.New("no active hosted session")

// Client talks to the external identity service over its REST surface and
// tracks the current session. It implements port.HostedAuth.
type Client struct {
	baseURL    string
	apiKey     string
	redirectTo string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	session *domain.HostedSession

	subMu       sync.Mutex
	subscribers map[int]chan domain.HostedUserChange
	nextSubID   int
}

// NewClient constructs a hosted auth client from configuration.
func NewClient(cfg config.HostedSettings, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		redirectTo:  cfg.RedirectTo,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log,
		now:         time.Now,
		subscribers: make(map[int]chan domain.HostedUserChange),
	}
}

// WithClock overrides the internal clock, used in tests.
func (c *Client) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

type hostedUser struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *hostedUser `json:"user"`

	// signup without autoconfirm returns a bare user object
	hostedUser
}

type apiError struct {
	Code             string `json:"error_code"`
	Message          string `json:"msg"`
	Error_           string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// SignUp registers the email with the hosted service and returns the resulting
// session. Services configured to require email confirmation return a session
// without tokens.
func (c *Client) SignUp(ctx context.Context, email, password string) (*domain.HostedSession, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]any{
			"display_name": domain.DisplayNameFromEmail(email),
		},
	}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, body, "", &resp); err != nil {
		return nil, err
	}

	session := c.sessionFromToken(resp, email)
	if session.AccessToken != "" {
		c.installSession(session)
	}

	return session, nil
}

// SignIn exchanges credentials for a hosted session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.HostedSession, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}

	query := url.Values{"grant_type": []string{"password"}}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", query, body, "", &resp); err != nil {
		return nil, err
	}

	session := c.sessionFromToken(resp, email)
	c.installSession(session)

	return session, nil
}

// SignOut revokes the current session with the service and clears it locally.
// Clearing happens even when the revoke call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, session.AccessToken, nil)

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	c.emit(domain.HostedUserChange{Event: domain.HostedUserSignedOut, At: c.now().UTC()})

	if err != nil {
		var hostedErr *domain.HostedError
		// the service treats an already-dead token as revoked
		if errors.As(err, &hostedErr) && hostedErr.Status == http.StatusUnauthorized {
			return nil
		}
		return err
	}

	return nil
}

// UpdatePassword changes the password of the user behind the current session.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil || session.IsExpired(c.now()) {
		return errNoActiveSession
	}

	body := map[string]any{"password": newPassword}
	return c.do(ctx, http.MethodPut, "/auth/v1/user", nil, body, session.AccessToken, nil)
}

// SendPasswordResetEmail asks the service to email a recovery link.
func (c *Client) SendPasswordResetEmail(ctx context.Context, email string) error {
	body := map[string]any{"email": email}

	var query url.Values
	if c.redirectTo != "" {
		query = url.Values{"redirect_to": []string{c.redirectTo}}
	}

	return c.do(ctx, http.MethodPost, "/auth/v1/recover", query, body, "", nil)
}

// GetSession returns the currently held session, or (nil, nil) when none is
// active. Expired sessions are dropped on observation.
func (c *Client) GetSession(_ context.Context) (*domain.HostedSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, nil
	}
	if c.session.IsExpired(c.now()) {
		c.session = nil
		return nil, nil
	}

	copied := *c.session
	return &copied, nil
}

// AdoptSession validates an access token delivered out of band (the emailed
// recovery link) and installs it as the current session.
func (c *Client) AdoptSession(ctx context.Context, accessToken string) (*domain.HostedSession, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}

	var user hostedUser
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, accessToken, &user); err != nil {
		return nil, err
	}

	session := &domain.HostedSession{
		AccessToken: accessToken,
		Email:       domain.NormalizeEmail(user.Email),
		DisplayName: displayNameFromMetadata(user),
		Role:        roleFromMetadata(user),
		ExpiresAt:   expiryFromToken(accessToken),
	}
	if session.DisplayName == "" {
		session.DisplayName = domain.DisplayNameFromEmail(session.Email)
	}

	c.installSession(session)

	return session, nil
}

// Subscribe registers a listener on the current-user stream.
func (c *Client) Subscribe(buffer int) (<-chan domain.HostedUserChange, func()) {
	if buffer <= 0 {
		buffer = 1
	}

	ch := make(chan domain.HostedUserChange, buffer)

	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		if existing, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(existing)
		}
		c.subMu.Unlock()
	}

	return ch, cancel
}

func (c *Client) installSession(session *domain.HostedSession) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.emit(domain.HostedUserChange{
		Event:   domain.HostedUserSignedIn,
		Session: session,
		At:      c.now().UTC(),
	})
}

// emit delivers the change to every subscriber without blocking; slow
// listeners miss events rather than stalling auth calls.
func (c *Client) emit(change domain.HostedUserChange) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}

func (c *Client) sessionFromToken(resp tokenResponse, fallbackEmail string) *domain.HostedSession {
	user := resp.User
	if user == nil {
		user = &resp.hostedUser
	}

	email := domain.NormalizeEmail(user.Email)
	if email == "" {
		email = domain.NormalizeEmail(fallbackEmail)
	}

	session := &domain.HostedSession{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Email:        email,
		DisplayName:  displayNameFromMetadata(*user),
		Role:         roleFromMetadata(*user),
	}
	if session.DisplayName == "" {
		session.DisplayName = domain.DisplayNameFromEmail(email)
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = c.now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else if resp.AccessToken != "" {
		session.ExpiresAt = expiryFromToken(resp.AccessToken)
	}

	return session
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hosted auth request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}

	c.logger.Debug("hosted auth call completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	message := apiErr.Message
	if message == "" {
		message = apiErr.ErrorDescription
	}
	if message == "" {
		message = apiErr.Error_
	}
	if message == "" {
		message = http.StatusText(status)
	}

	code := apiErr.Code
	if code == "" {
		code = apiErr.Error_
	}

	return &domain.HostedError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func displayNameFromMetadata(user hostedUser) string {
	if user.UserMetadata == nil {
		return ""
	}
	if name, ok := user.UserMetadata["display_name"].(string); ok {
		return strings.TrimSpace(name)
	}
	return ""
}

func roleFromMetadata(user hostedUser) domain.Role {
	if user.AppMetadata != nil {
		if raw, ok := user.AppMetadata["role"].(string); ok {
			return domain.ParseRole(raw)
		}
	}
	return domain.RoleUser
}

// expiryFromToken reads the exp claim without verifying the signature; the
// hosted service is the authority on the token, this client only observes it.
func expiryFromToken(accessToken string) time.Time {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}

	return exp.Time.UTC()
}

var _ port.HostedAuth = (*Client)(nil)
