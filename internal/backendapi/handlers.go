package backendapi

import (
	"net/http"

	"github.com/adamscao/cspmauth/internal/api"
	"github.com/adamscao/cspmauth/internal/db/repository"
	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type handler struct {
	identities *repository.IdentityRepository
	audit      *repository.AuditRepository
	log        zerolog.Logger
}

func newHandler(identities *repository.IdentityRepository, audit *repository.AuditRepository, log zerolog.Logger) *handler {
	return &handler{
		identities: identities,
		audit:      audit,
		log:        log.With().Str("component", "backend").Logger(),
	}
}

// Status is the readiness probe the auth core calls once at start.
// GET /api/status
func (h *handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"isSetup": true,
		"mode":    "sqlite-wal",
	})
}

// ListIdentities returns every identity record, secrets included: the
// auth core needs the stored secret to validate login codes. The
// backend is never exposed beyond the platform boundary.
// GET /api/users
func (h *handler) ListIdentities(c *gin.Context) {
	identities, err := h.identities.List()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list identities")
		api.RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list identities")
		return
	}

	if identities == nil {
		identities = []identity.Identity{}
	}
	c.JSON(http.StatusOK, identities)
}

// UpsertIdentity applies an insert-or-update keyed by email. Assigns
// an ID to records that arrive without one.
// POST /api/users
func (h *handler) UpsertIdentity(c *gin.Context) {
	var id identity.Identity
	if err := c.ShouldBindJSON(&id); err != nil {
		api.RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if id.Email == "" {
		api.RespondError(c, http.StatusBadRequest, "invalid_request", "Email is required")
		return
	}
	if id.ID == "" {
		id.ID = uuid.NewString()
	}

	if err := h.identities.UpsertByEmail(&id); err != nil {
		h.log.Error().Err(err).Str("email", id.Email).Msg("failed to upsert identity")
		h.auditEntry(c, models.ActionIdentityUpsert, id.Email, false, err.Error())
		api.RespondError(c, http.StatusInternalServerError, "database_error", "Failed to store identity")
		return
	}

	h.auditEntry(c, models.ActionIdentityUpsert, id.Email, true, "")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "id": id.ID})
}

// DeleteIdentity removes an identity by ID. Deleting an unknown ID
// returns 404, which the auth core treats as success.
// DELETE /api/users/:id
func (h *handler) DeleteIdentity(c *gin.Context) {
	identityID := c.Param("id")

	deleted, err := h.identities.Delete(identityID)
	if err != nil {
		h.log.Error().Err(err).Str("id", identityID).Msg("failed to delete identity")
		h.auditEntry(c, models.ActionIdentityDelete, "", false, err.Error())
		api.RespondError(c, http.StatusInternalServerError, "database_error", "Failed to delete identity")
		return
	}

	if !deleted {
		api.RespondError(c, http.StatusNotFound, "not_found", "Identity not found")
		return
	}

	h.auditEntry(c, models.ActionIdentityDelete, "", true, "")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// auditEntry records an audit row; audit failures are logged, never
// surfaced.
func (h *handler) auditEntry(c *gin.Context, action, email string, success bool, errMsg string) {
	entry := &models.AuditLog{
		Action:    action,
		Email:     email,
		ClientIP:  api.GetClientIP(c),
		UserAgent: c.GetHeader("User-Agent"),
		Success:   success,
		ErrorMsg:  errMsg,
	}
	if err := h.audit.Create(entry); err != nil {
		h.log.Warn().Err(err).Msg("failed to write audit log")
	}
}
