// Package totp implements the shared-secret engine for RFC 6238
// time-based one-time passwords: secret provisioning, otpauth URI
// construction, and windowed code validation.
//
// Parameters are pinned to the RFC defaults (SHA1, 6 digits, 30-second
// period) so any compliant authenticator app works without custom
// configuration. Replay of a code within the accepted window is not
// prevented here; callers that need replay protection must track the
// last accepted step themselves.
package totp

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step in seconds.
	Period = 30

	// Skew is the number of adjacent steps accepted on either side of
	// the current one, tolerating roughly ±30s of clock drift.
	Skew = 1

	// secretBytes is the raw secret length before base32 encoding.
	// RFC 4226 recommends at least 160 bits.
	secretBytes = 20
)

// Engine generates and validates TOTP secrets and codes.
type Engine struct {
	issuer string
	now    func() time.Time
}

// NewEngine creates an engine that stamps provisioning URIs with the
// given issuer.
func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer, now: time.Now}
}

// WithClock returns a copy of the engine using the given clock.
// Intended for tests that freeze time.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	return &Engine{issuer: e.issuer, now: now}
}

// GenerateSecret produces a new 160-bit base32-encoded shared secret
// for the given account. The secret comes from the platform CSPRNG;
// an entropy failure is returned as an error and is fatal for the
// enrollment attempt. There is no weak-randomness fallback.
func (e *Engine) GenerateSecret(account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		SecretSize:  secretBytes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), nil
}

// ProvisioningURI builds the otpauth URI consumed by authenticator
// apps. The format is fixed:
//
//	otpauth://totp/{issuer}:{account}?secret={secret}&issuer={issuer}
//
// Algorithm, digit count and period are the RFC defaults and are left
// implicit, matching what standard apps assume.
func (e *Engine) ProvisioningURI(account, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.QueryEscape(e.issuer),
		url.QueryEscape(account),
		secret,
		url.QueryEscape(e.issuer))
}

// Validate checks a submitted 6-digit code against the secret at the
// current time, accepting the current step and Skew steps on either
// side. The underlying comparison is constant-time. Any outcome other
// than a clean match, including a malformed secret, is reported as
// false.
func (e *Engine) Validate(secret, code string) bool {
	return e.ValidateAt(secret, code, e.now())
}

// ValidateAt is Validate against an explicit instant.
func (e *Engine) ValidateAt(secret, code string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, validateOpts())
	if err != nil {
		return false
	}
	return ok
}

// CodeAt computes the code for the given secret and instant. Used by
// the admin tooling to print a current code next to a freshly issued
// secret.
func CodeAt(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, validateOpts())
	if err != nil {
		return "", fmt.Errorf("failed to compute TOTP code: %w", err)
	}
	return code, nil
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
