package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/usecase"
)

// SessionKey is the context key holding the active session.
const SessionKey = "session"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireSession admits only requests made while a session is active. The
// session is stored in the Gin context for downstream handlers.
func RequireSession(sessions *usecase.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessions.Current(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				newErrorResponse(c, "session state unavailable"))
			return
		}
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		c.Set(SessionKey, session)
		c.Set(UserIDKey, session.Email)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = session.Email
		}

		c.Next()
	}
}

// RequireAdmin admits only admin sessions. Must run after RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}
		if !session.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// GetSession retrieves the active session from the context (helper for handlers).
func GetSession(c *gin.Context) (*domain.Session, bool) {
	value, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*domain.Session)
	return session, ok
}
