package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/adamscao/cspmauth/internal/flow"
	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/session"
	"github.com/adamscao/cspmauth/internal/totp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// qrSize is the rendered QR edge length in pixels.
const qrSize = 256

// AuthHandler exposes the three-step authentication flow.
type AuthHandler struct {
	flow       *flow.Flow
	sessions   *session.Manager
	signingKey []byte
	log        zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(fl *flow.Flow, sessions *session.Manager, signingKey []byte, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		flow:       fl,
		sessions:   sessions,
		signingKey: signingKey,
		log:        log.With().Str("component", "api").Logger(),
	}
}

// EmailRequest is the address submission payload.
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// EmailResponse reports the classification outcome and, on the enroll
// path, the transient secret plus its provisioning URI so the UI can
// fall back to manual entry if QR rendering fails.
type EmailResponse struct {
	Status identity.EmailStatus `json:"status"`
	Step   string               `json:"step"`
	Secret string               `json:"secret,omitempty"`
	OTPURI string               `json:"otpauth_uri,omitempty"`
}

// SubmitEmail handles the address step.
// POST /v1/auth/email
func (h *AuthHandler) SubmitEmail(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.flow.SubmitEmail(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, flow.ErrInvalidEmail):
		RespondError(c, http.StatusBadRequest, "invalid_email", "Please enter a valid email address")
		return
	case errors.Is(err, flow.ErrBusy):
		RespondError(c, http.StatusConflict, "busy", "Another submission is still being processed")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("address submission failed")
		RespondError(c, http.StatusBadGateway, "store_unavailable", "Identity store is unavailable")
		return
	}

	if result.Denied {
		// One message for every unknown address; it must not reveal
		// whether the denial was a typo or policy.
		RespondError(c, http.StatusForbidden, "access_denied",
			"Access Denied. This user does not exist in the system. Please contact an Administrator.")
		return
	}

	c.JSON(http.StatusOK, EmailResponse{
		Status: result.Status,
		Step:   result.Step.String(),
		Secret: result.Secret,
		OTPURI: result.ProvisioningURI,
	})
}

// QR renders the pending enrollment's provisioning QR code. A render
// failure returns an error without touching the pending secret: the
// raw secret from the email step remains usable for manual entry.
// GET /v1/auth/qr
func (h *AuthHandler) QR(c *gin.Context) {
	uri := h.flow.PendingProvisioningURI()
	if uri == "" {
		RespondError(c, http.StatusNotFound, "no_enrollment", "No enrollment is in progress")
		return
	}

	png, err := totp.QRPNG(uri, qrSize)
	if err != nil {
		h.log.Error().Err(err).Msg("QR rendering failed")
		RespondError(c, http.StatusBadGateway, "qr_unavailable",
			"QR rendering failed; enter the secret into your authenticator manually")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// CodeRequest is a 6-digit code submission.
type CodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// AuthResponse reports a completed authentication.
type AuthResponse struct {
	Status   string            `json:"status"`
	Identity identity.Identity `json:"identity"`
}

// Enroll handles the code submission that completes enrollment.
// POST /v1/auth/enroll
func (h *AuthHandler) Enroll(c *gin.Context) {
	h.submitCode(c, h.flow.SubmitEnrollCode,
		"Invalid code. Ensure you scanned the QR correctly.")
}

// Verify handles the login code submission for enrolled identities.
// POST /v1/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	h.submitCode(c, h.flow.SubmitVerifyCode,
		"Invalid Authentication Code. Please try again.")
}

func (h *AuthHandler) submitCode(c *gin.Context, submit func(ctx context.Context, code string) (flow.AuthResult, error), mismatchMsg string) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := submit(c.Request.Context(), req.Code)
	switch {
	case errors.Is(err, flow.ErrBusy):
		RespondError(c, http.StatusConflict, "busy", "Another submission is still being processed")
		return
	case errors.Is(err, flow.ErrWrongStep):
		RespondError(c, http.StatusConflict, "wrong_step", "No code is expected in the current step")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("code submission failed")
		RespondError(c, http.StatusBadGateway, "store_unavailable", "Identity store is unavailable")
		return
	}

	if !result.OK {
		// Retryable: the flow kept its step (and, during enrollment,
		// the pending secret).
		RespondError(c, http.StatusUnauthorized, "invalid_code", mismatchMsg)
		return
	}

	token, err := mintSessionToken(h.signingKey, result.Identity, result.Session.AuthenticatedAt)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to mint session token")
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to establish session")
		return
	}

	c.SetCookie(sessionCookie, token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, AuthResponse{
		Status:   "ok",
		Identity: redact(result.Identity),
	})
}

// Back returns the flow to the address step.
// POST /v1/auth/back
func (h *AuthHandler) Back(c *gin.Context) {
	if err := h.flow.Back(); err != nil {
		RespondError(c, http.StatusConflict, "busy", "Another submission is still being processed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"step": flow.StepAddress.String()})
}

// Logout tears down the session and clears the session cookie.
// POST /v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Close(); err != nil {
		h.log.Error().Err(err).Msg("failed to close session")
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to close session")
		return
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Session returns the current session for a valid session cookie.
// GET /v1/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	tokenString, err := c.Cookie(sessionCookie)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", "No session")
		return
	}

	subject, err := parseSessionToken(h.signingKey, tokenString)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", "Invalid session")
		return
	}

	sess := h.sessions.Current()
	if sess == nil || sess.Identity.ID != subject {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", "No session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated":    true,
		"identity":         redact(sess.Identity),
		"authenticated_at": sess.AuthenticatedAt,
	})
}

// redact strips the TOTP secret before an identity leaves the API.
func redact(id identity.Identity) identity.Identity {
	id.TOTPSecret = ""
	return id
}
