// Package flow drives the three-step authentication flow:
//
//	ADDRESS -> ENROLL (system bootstrap or first-time MFA setup) -> done
//	ADDRESS -> VERIFY (already enrolled) -> done
//
// The flow holds the only pending (unverified) TOTP secret; the secret
// is never persisted until a correct code proves the authenticator has
// imported it. All failures are typed outcomes, never panics: the flow
// is the single place that decides which UI state comes next.
package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/session"
	"github.com/adamscao/cspmauth/internal/store"
	"github.com/adamscao/cspmauth/internal/totp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Step is the current UI state of the flow.
type Step int

const (
	// StepAddress is the initial state: waiting for an email address.
	StepAddress Step = iota

	// StepEnroll shows the provisioning QR and waits for the first
	// code from the newly imported secret.
	StepEnroll

	// StepVerify waits for a code from an already-stored secret.
	StepVerify
)

func (s Step) String() string {
	switch s {
	case StepEnroll:
		return "ENROLL"
	case StepVerify:
		return "VERIFY"
	default:
		return "ADDRESS"
	}
}

var (
	// ErrBusy is returned when a submission arrives while another one
	// is still in flight. The flow is not reentrant; the caller retries
	// after the pending transition resolves.
	ErrBusy = errors.New("another submission is in flight")

	// ErrInvalidEmail is returned for a malformed address. Recovered
	// locally with no state change.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrWrongStep is returned when a code is submitted in a state
	// that does not expect one.
	ErrWrongStep = errors.New("submission does not match current step")
)

// EmailResult is the outcome of an address submission.
type EmailResult struct {
	Status identity.EmailStatus
	Step   Step

	// Denied is set for UNKNOWN classifications. The message shown to
	// the user must not reveal whether this was a typo or policy.
	Denied bool

	// Secret and ProvisioningURI are populated only when the flow
	// entered ENROLL. The secret is transient until verified.
	Secret          string
	ProvisioningURI string
}

// AuthResult is the outcome of a code submission. OK false with a nil
// error is a retryable mismatch: the step does not change and, during
// enrollment, the pending secret is preserved so the user can retry
// against the same QR.
type AuthResult struct {
	OK       bool
	Identity identity.Identity
	Session  session.Session
}

// Flow is the enrollment/login state machine. One instance serves one
// session context; it owns no identity data beyond the transient
// pending secret, and all persistence goes through the repository.
type Flow struct {
	repo     *store.Repository
	engine   *totp.Engine
	sessions *session.Manager
	now      func() time.Time
	log      zerolog.Logger

	mu            sync.Mutex
	inFlight      bool
	step          Step
	email         string
	pendingSecret string
}

// New builds a flow over its collaborators.
func New(repo *store.Repository, engine *totp.Engine, sessions *session.Manager, log zerolog.Logger) *Flow {
	return &Flow{
		repo:     repo,
		engine:   engine,
		sessions: sessions,
		now:      time.Now,
		log:      log.With().Str("component", "flow").Logger(),
	}
}

// Step returns the current UI step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// PendingProvisioningURI returns the otpauth URI for the pending
// enrollment, or "" outside of ENROLL. Used by the QR endpoint; a QR
// rendering failure downstream never invalidates the pending secret.
func (f *Flow) PendingProvisioningURI() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepEnroll {
		return ""
	}
	return f.engine.ProvisioningURI(f.email, f.pendingSecret)
}

// SubmitEmail classifies the address against a fresh identity snapshot
// and branches the flow. Classification is re-evaluated on every call;
// nothing is cached across submissions.
func (f *Flow) SubmitEmail(ctx context.Context, email string) (EmailResult, error) {
	release, err := f.begin()
	if err != nil {
		return EmailResult{}, err
	}
	defer release()

	if !identity.ValidEmail(email) {
		return EmailResult{}, ErrInvalidEmail
	}
	norm := identity.NormalizeEmail(email)

	identities, err := f.repo.LoadAll(ctx)
	if err != nil {
		return EmailResult{}, err
	}

	status := identity.Classify(norm, identities)
	switch status {
	case identity.Unknown:
		f.setState(StepAddress, "", "")
		f.log.Info().Str("email", norm).Msg("address rejected, identity not provisioned")
		return EmailResult{Status: status, Step: StepAddress, Denied: true}, nil

	case identity.SystemInit, identity.KnownNoMFA:
		secret, err := f.engine.GenerateSecret(norm)
		if err != nil {
			// Entropy failure is fatal for this attempt; there is no
			// predictable-secret fallback.
			return EmailResult{}, err
		}
		f.setState(StepEnroll, norm, secret)
		return EmailResult{
			Status:          status,
			Step:            StepEnroll,
			Secret:          secret,
			ProvisioningURI: f.engine.ProvisioningURI(norm, secret),
		}, nil

	default: // identity.KnownWithMFA
		f.setState(StepVerify, norm, "")
		return EmailResult{Status: status, Step: StepVerify}, nil
	}
}

// SubmitEnrollCode completes enrollment. On the first correct code the
// pending secret is committed: either the bootstrap identity is
// created (primary admin, exactly once, only against an empty set) or
// the pre-provisioned identity is updated in place. A wrong code keeps
// the step and the pending secret.
func (f *Flow) SubmitEnrollCode(ctx context.Context, code string) (AuthResult, error) {
	release, err := f.begin()
	if err != nil {
		return AuthResult{}, err
	}
	defer release()

	f.mu.Lock()
	step, email, pending := f.step, f.email, f.pendingSecret
	f.mu.Unlock()

	if step != StepEnroll {
		return AuthResult{}, ErrWrongStep
	}

	if !f.engine.Validate(pending, code) {
		f.log.Info().Str("email", email).Msg("enrollment code mismatch")
		return AuthResult{}, nil
	}

	identities, err := f.repo.LoadAll(ctx)
	if err != nil {
		return AuthResult{}, err
	}

	var id identity.Identity
	existing, found := identity.Find(email, identities)
	switch {
	case found:
		// Pre-provisioned identity finishing first-time setup: update
		// in place, same ID, never a duplicate. PrimaryAdmin is left
		// exactly as stored.
		id = existing
		id.TOTPSecret = pending
		id.LastLoginAt = f.now()

	case len(identities) == 0:
		// System bootstrap: the first enrolled identity becomes the
		// sole primary administrator.
		id = identity.Identity{
			ID:           uuid.NewString(),
			Email:        email,
			DisplayName:  displayNameFor(email),
			Role:         identity.RoleAdmin,
			Status:       identity.StatusActive,
			TOTPSecret:   pending,
			PrimaryAdmin: true,
			LastLoginAt:  f.now(),
		}
		f.log.Info().Str("email", email).Msg("bootstrapping first administrator")

	default:
		// The identity set changed underneath the enrollment (the
		// address is no longer provisioned). Surface as a mismatch so
		// the user lands back on a retry rather than silently creating
		// an account.
		f.log.Warn().Str("email", email).Msg("enrollment target disappeared mid-flow")
		return AuthResult{}, nil
	}

	if err := f.repo.Upsert(ctx, id); err != nil {
		return AuthResult{}, err
	}

	sess, err := f.sessions.Open(id)
	if err != nil {
		return AuthResult{}, err
	}

	f.setState(StepAddress, "", "")
	return AuthResult{OK: true, Identity: id, Session: sess}, nil
}

// SubmitVerifyCode validates a code against the identity's stored
// secret. Success updates the last-login timestamp and opens a
// session; failure keeps the step for a retry. No lockout or backoff
// is applied.
func (f *Flow) SubmitVerifyCode(ctx context.Context, code string) (AuthResult, error) {
	release, err := f.begin()
	if err != nil {
		return AuthResult{}, err
	}
	defer release()

	f.mu.Lock()
	step, email := f.step, f.email
	f.mu.Unlock()

	if step != StepVerify {
		return AuthResult{}, ErrWrongStep
	}

	identities, err := f.repo.LoadAll(ctx)
	if err != nil {
		return AuthResult{}, err
	}

	id, found := identity.Find(email, identities)
	if !found || !id.Enrolled() {
		f.log.Warn().Str("email", email).Msg("verification target missing or not enrolled")
		return AuthResult{}, nil
	}

	if !f.engine.Validate(id.TOTPSecret, code) {
		f.log.Info().Str("email", email).Msg("verification code mismatch")
		return AuthResult{}, nil
	}

	id.LastLoginAt = f.now()
	if err := f.repo.Upsert(ctx, id); err != nil {
		return AuthResult{}, err
	}

	sess, err := f.sessions.Open(id)
	if err != nil {
		return AuthResult{}, err
	}

	f.setState(StepAddress, "", "")
	return AuthResult{OK: true, Identity: id, Session: sess}, nil
}

// Back returns to the address step, discarding any pending secret.
// Refused while a submission is in flight: the pending transition still
// holds copies of the state it is about to commit, and clearing it here
// would let a session open after the user navigated away.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return ErrBusy
	}
	f.step = StepAddress
	f.email = ""
	f.pendingSecret = ""
	return nil
}

// Reset is Back plus clearing any in-flight marker. Only used when the
// owning session context is torn down.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = StepAddress
	f.email = ""
	f.pendingSecret = ""
	f.inFlight = false
}

// begin marks a submission in flight, rejecting overlap. The returned
// release must be called when the transition resolves.
func (f *Flow) begin() (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return nil, ErrBusy
	}
	f.inFlight = true
	return func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}, nil
}

func (f *Flow) setState(step Step, email, pendingSecret string) {
	f.mu.Lock()
	f.step = step
	f.email = email
	f.pendingSecret = pendingSecret
	f.mu.Unlock()
}

// displayNameFor derives the initial display name from the address
// local part; an administrator can rename the identity later.
func displayNameFor(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
