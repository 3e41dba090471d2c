package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resumekit/credential-service/internal/usecase"
)

// the same message regardless of whether the account exists
const genericResetMessage = "if an account exists for this email, a reset message has been sent"

// PasswordHandler exposes the two recovery flows: the emailed reset link
// (hosted with local fallback) and the OTP-gated update.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
	isDev bool
}

func NewPasswordHandler(reset *usecase.PasswordResetService, isDev bool) *PasswordHandler {
	return &PasswordHandler{
		reset: reset,
		isDev: isDev,
	}
}

// RegisterRoutes wires the recovery endpoints onto the provided group.
func (h *PasswordHandler) RegisterRoutes(rg *gin.RouterGroup, requestMiddlewares ...gin.HandlerFunc) {
	resetGroup := rg.Group("/reset")
	requestHandlers := append([]gin.HandlerFunc{}, requestMiddlewares...)
	resetGroup.POST("/request", append(requestHandlers, h.RequestReset)...)
	resetGroup.POST("/complete", h.CompleteReset)
	resetGroup.POST("/confirm", h.ConfirmResetToken)

	otpGroup := rg.Group("/otp")
	otpRequestHandlers := append([]gin.HandlerFunc{}, requestMiddlewares...)
	otpGroup.POST("/request", append(otpRequestHandlers, h.RequestOTP)...)
	otpGroup.POST("/verify", h.VerifyOTP)
	otpGroup.POST("/complete", h.UpdatePassword)
	otpGroup.POST("/abandon", h.Abandon)
}

// RequestReset starts the emailed link flow. The response never reveals
// whether the account exists.
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	var req ResetRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset request payload"))
		return
	}

	res, err := h.reset.RequestReset(c.Request.Context(), req.Email, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredential, Status: http.StatusBadRequest, Message: "invalid email address"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "reset request failed")
		return
	}

	resp := ResetRequestResponse{Message: genericResetMessage}
	if h.isDev {
		resp.DevToken = res.Token
	}
	c.JSON(http.StatusOK, resp)
}

// CompleteReset finishes the hosted link flow and logs the user in.
func (h *PasswordHandler) CompleteReset(c *gin.Context) {
	var req ResetCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset completion payload"))
		return
	}

	session, err := h.reset.CompleteReset(c.Request.Context(), req.AccessToken, req.NewPassword)
	if err != nil {
		h.respondResetCompletionError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Session: newSessionSummary(session), Source: sourceHosted})
}

// ConfirmResetToken finishes the local fallback link flow and logs the user in.
func (h *PasswordHandler) ConfirmResetToken(c *gin.Context) {
	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset confirmation payload"))
		return
	}

	session, err := h.reset.CompleteResetWithToken(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.respondResetCompletionError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Session: newSessionSummary(session), Source: sourceLocal})
}

func (h *PasswordHandler) respondResetCompletionError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrExpiredOrInvalidLink, Status: http.StatusUnauthorized, Message: "reset link is expired or invalid"},
		{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "password does not meet the strength requirements"},
		{Err: usecase.ErrAccountNotFound, Status: http.StatusUnauthorized, Message: "reset link is expired or invalid"},
		{Err: usecase.ErrHostedService, Status: http.StatusBadGateway, Message: "identity service unavailable"},
		{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
	}, http.StatusInternalServerError, "reset failed")
}

// RequestOTP issues a recovery code, subject to the resend cooldown.
func (h *PasswordHandler) RequestOTP(c *gin.Context) {
	var req OTPRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid code request payload"))
		return
	}

	res, err := h.reset.RequestOTP(c.Request.Context(), req.Email)
	if err != nil {
		var cooldown *usecase.CooldownError
		if errors.As(err, &cooldown) {
			c.Header("Retry-After", cooldown.RetryAfterSeconds())
			c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, cooldown.Error()))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredential, Status: http.StatusBadRequest, Message: "invalid email address"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "code request failed")
		return
	}

	resp := OTPRequestResponse{
		Message:   genericResetMessage,
		ExpiresAt: res.ExpiresAt,
	}
	if h.isDev {
		resp.DevCode = res.Code
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyOTP checks a recovery code and arms the verified flag on success.
func (h *PasswordHandler) VerifyOTP(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	err := h.reset.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrExpiredOrInvalidToken, Status: http.StatusUnauthorized, Message: "code is expired or invalid"},
			{Err: usecase.ErrCodeMismatch, Status: http.StatusUnauthorized, Message: "incorrect code"},
			{Err: usecase.ErrTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many incorrect attempts, request a new code"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "code verified"})
}

// UpdatePassword is the gated final step of the code flow.
func (h *PasswordHandler) UpdatePassword(c *gin.Context) {
	var req OTPUpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password update payload"))
		return
	}

	err := h.reset.UpdatePassword(c.Request.Context(), req.Email, req.NewPassword)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrVerificationRequired, Status: http.StatusForbidden, Message: "code verification required"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "password does not meet the strength requirements"},
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "no account found for this email"},
			{Err: usecase.ErrHostedService, Status: http.StatusBadGateway, Message: "identity service unavailable"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "password update failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

// Abandon drops a pending verification so the capability cannot linger.
func (h *PasswordHandler) Abandon(c *gin.Context) {
	var req OTPAbandonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	if err := h.reset.ClearVerification(c.Request.Context(), req.Email); err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "storage unavailable"))
		return
	}

	c.Status(http.StatusNoContent)
}
