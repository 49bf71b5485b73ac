package api

import (
	"net/http"

	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AdminHandler handles administrator-initiated identity management:
// pre-provisioning identities (which makes an address classify as
// KNOWN_NO_MFA) and removing them again.
type AdminHandler struct {
	repo *store.Repository
	log  zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(repo *store.Repository, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		repo: repo,
		log:  log.With().Str("component", "admin-api").Logger(),
	}
}

// CreateIdentityRequest represents a pre-provisioning request.
type CreateIdentityRequest struct {
	Email string        `json:"email" binding:"required"`
	Name  string        `json:"name"`
	Role  identity.Role `json:"role"`
}

// ListIdentities returns all identities with secrets redacted.
// GET /v1/admin/identities
func (h *AdminHandler) ListIdentities(c *gin.Context) {
	identities, err := h.repo.LoadAll(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load identities")
		RespondError(c, http.StatusBadGateway, "store_unavailable", "Identity store is unavailable")
		return
	}

	out := make([]identity.Identity, 0, len(identities))
	for _, id := range identities {
		out = append(out, redact(id))
	}
	c.JSON(http.StatusOK, out)
}

// CreateIdentity pre-provisions an identity without a TOTP secret. The
// user completes enrollment on first sign-in. Never touches the
// primary-admin flag.
// POST /v1/admin/identities
func (h *AdminHandler) CreateIdentity(c *gin.Context) {
	var req CreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if !identity.ValidEmail(req.Email) {
		RespondError(c, http.StatusBadRequest, "invalid_email", "Please provide a valid email address")
		return
	}

	role := req.Role
	if role == "" {
		role = identity.RoleViewer
	}
	if !role.Valid() {
		RespondError(c, http.StatusBadRequest, "invalid_role", "Role must be Admin, Auditor or Viewer")
		return
	}

	identities, err := h.repo.LoadAll(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load identities")
		RespondError(c, http.StatusBadGateway, "store_unavailable", "Identity store is unavailable")
		return
	}
	if _, exists := identity.Find(req.Email, identities); exists {
		RespondError(c, http.StatusConflict, "identity_exists", "An identity with this email already exists")
		return
	}

	email := identity.NormalizeEmail(req.Email)
	name := req.Name
	if name == "" {
		name = email
	}

	id := identity.Identity{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: name,
		Role:        role,
		Status:      identity.StatusActive,
	}

	if err := h.repo.Upsert(c.Request.Context(), id); err != nil {
		h.log.Error().Err(err).Str("email", email).Msg("failed to create identity")
		RespondError(c, http.StatusBadGateway, "store_unavailable", "Failed to store identity")
		return
	}

	h.log.Info().Str("email", email).Str("role", string(role)).Msg("identity pre-provisioned")
	c.JSON(http.StatusOK, redact(id))
}

// DeleteIdentity removes an identity by ID. Idempotent: deleting an
// unknown ID succeeds.
// DELETE /v1/admin/identities/:id
func (h *AdminHandler) DeleteIdentity(c *gin.Context) {
	identityID := c.Param("id")

	if err := h.repo.Remove(c.Request.Context(), identityID); err != nil {
		h.log.Error().Err(err).Str("id", identityID).Msg("failed to delete identity")
		RespondError(c, http.StatusBadGateway, "store_unavailable", "Failed to delete identity")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
