package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resumekit/credential-service/internal/usecase"
)

// AdminHandler exposes the admin console endpoints: account listing, account
// removal, and roster management. All routes sit behind the admin gate.
type AdminHandler struct {
	credentials *usecase.CredentialService
	sessions    *usecase.SessionService
}

func NewAdminHandler(credentials *usecase.CredentialService, sessions *usecase.SessionService) *AdminHandler {
	return &AdminHandler{
		credentials: credentials,
		sessions:    sessions,
	}
}

// RegisterRoutes wires the admin endpoints onto the provided group. The group
// is expected to carry the session and admin middleware already.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/accounts", h.ListAccounts)
	rg.DELETE("/accounts/:email", h.RemoveAccount)
	rg.GET("/roster", h.Roster)
	rg.DELETE("/roster/:email", h.LogoutUser)
}

// ListAccounts returns every registered local account without password material.
func (h *AdminHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.credentials.ListAccounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "storage unavailable"))
		return
	}

	views := make([]AccountView, len(accounts))
	for i, account := range accounts {
		views[i] = AccountView{
			Email:        account.Email,
			DisplayName:  account.DisplayName,
			Role:         string(account.Role),
			RegisteredAt: account.RegisteredAt,
		}
	}

	c.JSON(http.StatusOK, AccountListResponse{Accounts: views})
}

// RemoveAccount hard-deletes a local account.
func (h *AdminHandler) RemoveAccount(c *gin.Context) {
	email := c.Param("email")

	err := h.credentials.RemoveAccount(c.Request.Context(), email)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
		}, http.StatusInternalServerError, "account removal failed")
		return
	}

	c.Status(http.StatusNoContent)
}

// Roster lists the logged-in-users roster.
func (h *AdminHandler) Roster(c *gin.Context) {
	entries, err := h.sessions.Roster(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "storage unavailable"))
		return
	}

	views := make([]RosterEntryView, len(entries))
	for i, entry := range entries {
		views[i] = RosterEntryView{
			Email:       entry.Email,
			DisplayName: entry.DisplayName,
			Role:        string(entry.Role),
			LoggedInAt:  entry.LoggedInAt,
		}
	}

	c.JSON(http.StatusOK, RosterResponse{Users: views})
}

// LogoutUser removes a roster entry, ending that user's session when active.
func (h *AdminHandler) LogoutUser(c *gin.Context) {
	email := c.Param("email")

	if err := h.sessions.LogoutUser(c.Request.Context(), email); err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "storage unavailable"))
		return
	}

	c.Status(http.StatusNoContent)
}
