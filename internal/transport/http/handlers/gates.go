package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/resumekit/credential-service/internal/usecase"
)

// GateHandler answers the client shell's route-protection queries. A denied
// gate still returns 200: the decision payload carries the redirect, the
// caller is not the one being blocked.
type GateHandler struct {
	guard *usecase.GuardService
}

func NewGateHandler(guard *usecase.GuardService) *GateHandler {
	return &GateHandler{guard: guard}
}

// RegisterRoutes wires the gate endpoints onto the provided group.
func (h *GateHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth", h.Auth)
	rg.GET("/admin", h.Admin)
	rg.GET("/reset-password", h.ResetPassword)
}

// Auth decides whether the visitor may see authenticated pages.
func (h *GateHandler) Auth(c *gin.Context) {
	decision, err := h.guard.AuthGate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session state unavailable"))
		return
	}
	c.JSON(http.StatusOK, toGateResponse(decision))
}

// Admin decides whether the visitor may see admin pages.
func (h *GateHandler) Admin(c *gin.Context) {
	decision, err := h.guard.AdminGate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session state unavailable"))
		return
	}
	c.JSON(http.StatusOK, toGateResponse(decision))
}

// ResetPassword decides whether the visitor may see the final reset page.
// The verified query parameter is corroborated against server-side state.
func (h *GateHandler) ResetPassword(c *gin.Context) {
	email := c.Query("email")
	verified, _ := strconv.ParseBool(c.DefaultQuery("verified", "false"))

	decision, err := h.guard.ResetPasswordGate(c.Request.Context(), email, verified)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "verification state unavailable"))
		return
	}
	c.JSON(http.StatusOK, toGateResponse(decision))
}

func toGateResponse(d usecase.Decision) GateResponse {
	return GateResponse{
		Allowed:  d.Allowed,
		Redirect: d.Redirect,
		Overlay:  d.Overlay,
	}
}
