package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/logger"
	"github.com/resumekit/credential-service/internal/transport/http/middleware"
	"github.com/resumekit/credential-service/internal/usecase"
)

const (
	sourceHosted = "hosted"
	sourceLocal  = "local"
)

// AuthHandler exposes registration, login, logout, and session endpoints. The
// hosted identity service is authoritative whenever reachable; the local
// credential store takes over only on transport failure.
type AuthHandler struct {
	hosted      port.HostedAuth
	credentials *usecase.CredentialService
	sessions    *usecase.SessionService
	logger      *zap.Logger
}

func NewAuthHandler(hosted port.HostedAuth, credentials *usecase.CredentialService, sessions *usecase.SessionService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		hosted:      hosted,
		credentials: credentials,
		sessions:    sessions,
		logger:      log,
	}
}

// RegisterRoutes wires the auth endpoints onto the provided group.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup, sessionMiddleware gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	registerHandlers := append([]gin.HandlerFunc{}, loginMiddlewares...)
	rg.POST("/register", append(registerHandlers, h.Register)...)

	loginHandlers := append([]gin.HandlerFunc{}, loginMiddlewares...)
	rg.POST("/login", append(loginHandlers, h.Login)...)

	rg.POST("/logout", h.Logout)
	rg.GET("/session", h.Session)

	rg.POST("/password/change", sessionMiddleware, h.ChangePassword)
}

// Register creates an account with the hosted service, falling back to the
// local store when the service is unreachable.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	ctx := c.Request.Context()

	hostedSession, err := h.hosted.SignUp(ctx, req.Email, req.Password)
	if err == nil {
		session, establishErr := h.sessions.SetCurrentUser(ctx, hostedSession.Email, firstNonEmpty(req.DisplayName, hostedSession.DisplayName), hostedSession.Role)
		if establishErr != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to establish session"))
			return
		}
		c.JSON(http.StatusCreated, LoginResponse{Session: newSessionSummary(session), Source: sourceHosted})
		return
	}

	var hostedErr *domain.HostedError
	if errors.As(err, &hostedErr) {
		status := http.StatusBadRequest
		if hostedErr.Status == http.StatusUnprocessableEntity || hostedErr.Status == http.StatusConflict {
			status = http.StatusConflict
		}
		c.JSON(status, NewErrorResponse(c, hostedErr.Message))
		return
	}

	h.logger.Warn("hosted sign-up unreachable, registering locally",
		zap.String("email", logger.MaskEmail(req.Email)),
		zap.Error(err),
	)

	h.registerLocally(c, req)
}

func (h *AuthHandler) registerLocally(c *gin.Context, req RegisterRequest) {
	ctx := c.Request.Context()

	created, err := h.credentials.Register(ctx, req.Email, req.Password, req.DisplayName, domain.RoleUser)
	if err != nil || !created {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrDuplicateAccount, Status: http.StatusConflict, Message: "an account with this email already exists"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "password does not meet the strength requirements"},
			{Err: usecase.ErrInvalidCredential, Status: http.StatusBadRequest, Message: "invalid email address"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	account, err := h.credentials.Lookup(ctx, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "registration failed"))
		return
	}

	session, err := h.sessions.SetCurrentUser(ctx, account.Email, account.DisplayName, account.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to establish session"))
		return
	}

	c.JSON(http.StatusCreated, LoginResponse{Session: newSessionSummary(session), Source: sourceLocal})
}

// Login authenticates against the hosted service first, then the local store
// on transport failure.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	ctx := c.Request.Context()

	hostedSession, err := h.hosted.SignIn(ctx, req.Email, req.Password)
	if err == nil {
		session, establishErr := h.sessions.SetCurrentUser(ctx, hostedSession.Email, hostedSession.DisplayName, hostedSession.Role)
		if establishErr != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to establish session"))
			return
		}
		c.JSON(http.StatusOK, LoginResponse{Session: newSessionSummary(session), Source: sourceHosted})
		return
	}

	var hostedErr *domain.HostedError
	if errors.As(err, &hostedErr) {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid email or password"))
		return
	}

	h.logger.Warn("hosted sign-in unreachable, authenticating locally",
		zap.String("email", logger.MaskEmail(req.Email)),
		zap.Error(err),
	)

	session, err := h.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Message: "invalid email or password"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Session: newSessionSummary(session), Source: sourceLocal})
}

// Logout ends the hosted and local sessions. Double logout is a no-op.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.hosted.SignOut(ctx); err != nil {
		// local state is cleared regardless
		h.logger.Warn("hosted sign-out failed", zap.Error(err))
	}

	if err := h.sessions.Logout(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "failed to clear session"))
		return
	}

	c.Status(http.StatusNoContent)
}

// Session reports the current session state.
func (h *AuthHandler) Session(c *gin.Context) {
	session, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session state unavailable"))
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, SessionResponse{LoggedIn: false})
		return
	}

	summary := newSessionSummary(session)
	c.JSON(http.StatusOK, SessionResponse{LoggedIn: true, Session: &summary})
}

// ChangePassword updates the active session's password after checking the
// current one. Hosted accounts are updated through the hosted service, which
// holds its own proof of identity.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change password payload"))
		return
	}

	ctx := c.Request.Context()

	exists, err := h.credentials.Exists(ctx, session.Email)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "storage unavailable"))
		return
	}

	if exists {
		err = h.credentials.ChangePassword(ctx, session.Email, req.CurrentPassword, req.NewPassword)
	} else {
		err = h.hosted.UpdatePassword(ctx, req.NewPassword)
	}
	if err != nil {
		var hostedErr *domain.HostedError
		if errors.As(err, &hostedErr) {
			c.JSON(http.StatusBadGateway, NewErrorResponse(c, hostedErr.Message))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredential, Status: http.StatusForbidden, Message: "current password is incorrect"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "password does not meet the strength requirements"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "password change failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
