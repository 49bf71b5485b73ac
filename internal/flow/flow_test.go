package flow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adamscao/cspmauth/internal/flow"
	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/session"
	"github.com/adamscao/cspmauth/internal/store"
	"github.com/adamscao/cspmauth/internal/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var frozenNow = time.Unix(1700000000, 0).UTC()

type fixture struct {
	flow     *flow.Flow
	repo     *store.Repository
	local    *store.LocalStore
	sessions *session.Manager
}

func testKey() [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = 7
	}
	return key
}

// newFixture builds a local-mode flow over a temp directory with a
// frozen clock, so codes computed for frozenNow always validate.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	local := store.NewLocalStore(dir, testKey())
	repo := store.NewRepository(nil, local, zerolog.Nop())
	sessions := session.NewManager(dir, testKey(), zerolog.Nop())
	engine := totp.NewEngine("CSPM").WithClock(func() time.Time { return frozenNow })

	return &fixture{
		flow:     flow.New(repo, engine, sessions, zerolog.Nop()),
		repo:     repo,
		local:    local,
		sessions: sessions,
	}
}

func codeFor(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.CodeAt(secret, frozenNow)
	require.NoError(t, err)
	return code
}

func (f *fixture) provision(t *testing.T, id identity.Identity) {
	t.Helper()
	require.NoError(t, f.local.Upsert(context.Background(), id))
}

func TestBootstrapFirstAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitEmail(ctx, "Founder@Example.com")
	require.NoError(t, err)
	require.Equal(t, identity.SystemInit, res.Status)
	require.Equal(t, flow.StepEnroll, res.Step)
	require.NotEmpty(t, res.Secret)
	require.Contains(t, res.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, res.ProvisioningURI, "secret="+res.Secret)

	auth, err := f.flow.SubmitEnrollCode(ctx, codeFor(t, res.Secret))
	require.NoError(t, err)
	require.True(t, auth.OK)

	// The first enrollment creates the sole primary administrator.
	require.Equal(t, "founder@example.com", auth.Identity.Email)
	require.Equal(t, identity.RoleAdmin, auth.Identity.Role)
	require.True(t, auth.Identity.PrimaryAdmin)
	require.Equal(t, "founder", auth.Identity.DisplayName)
	require.Equal(t, res.Secret, auth.Identity.TOTPSecret)
	require.NotEmpty(t, auth.Identity.ID)

	require.True(t, auth.Session.Authenticated)
	require.NotNil(t, f.sessions.Current())
	require.Equal(t, flow.StepAddress, f.flow.Step())

	identities, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, identities, 1)
}

func TestPreProvisionedEnrollmentUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provision(t, identity.Identity{
		ID: "admin-1", Email: "admin@example.com", DisplayName: "Admin",
		Role: identity.RoleAdmin, Status: identity.StatusActive,
		TOTPSecret: "EXISTINGSECRET234", PrimaryAdmin: true,
	})
	f.provision(t, identity.Identity{
		ID: "viewer-1", Email: "viewer@example.com", DisplayName: "Viewer",
		Role: identity.RoleViewer, Status: identity.StatusActive,
	})

	res, err := f.flow.SubmitEmail(ctx, "viewer@example.com")
	require.NoError(t, err)
	require.Equal(t, identity.KnownNoMFA, res.Status)
	require.Equal(t, flow.StepEnroll, res.Step)

	auth, err := f.flow.SubmitEnrollCode(ctx, codeFor(t, res.Secret))
	require.NoError(t, err)
	require.True(t, auth.OK)

	// Same ID, role and primary flag; only the secret and login time
	// changed. No duplicate record.
	require.Equal(t, "viewer-1", auth.Identity.ID)
	require.Equal(t, identity.RoleViewer, auth.Identity.Role)
	require.False(t, auth.Identity.PrimaryAdmin)
	require.Equal(t, res.Secret, auth.Identity.TOTPSecret)

	identities, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, identities, 2)
}

func TestVerifyWrongThenRightCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	f.provision(t, identity.Identity{
		ID: "user-1", Email: "user@example.com", Role: identity.RoleViewer,
		Status: identity.StatusActive, TOTPSecret: secret,
	})

	res, err := f.flow.SubmitEmail(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, identity.KnownWithMFA, res.Status)
	require.Equal(t, flow.StepVerify, res.Step)
	require.Empty(t, res.Secret)

	// Wrong code: retryable mismatch, step unchanged, no session.
	auth, err := f.flow.SubmitVerifyCode(ctx, "000000")
	require.NoError(t, err)
	require.False(t, auth.OK)
	require.Equal(t, flow.StepVerify, f.flow.Step())
	require.Nil(t, f.sessions.Current())

	auth, err = f.flow.SubmitVerifyCode(ctx, codeFor(t, secret))
	require.NoError(t, err)
	require.True(t, auth.OK)
	require.False(t, auth.Identity.LastLoginAt.IsZero())
	require.NotNil(t, f.sessions.Current())
	require.Equal(t, flow.StepAddress, f.flow.Step())
}

func TestUnknownAddressDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provision(t, identity.Identity{ID: "1", Email: "admin@example.com", TOTPSecret: "S"})

	res, err := f.flow.SubmitEmail(ctx, "stranger@example.com")
	require.NoError(t, err)
	require.Equal(t, identity.Unknown, res.Status)
	require.True(t, res.Denied)
	require.Equal(t, flow.StepAddress, res.Step)
	require.Equal(t, flow.StepAddress, f.flow.Step())
}

func TestInvalidEmailRejectedLocally(t *testing.T) {
	f := newFixture(t)

	_, err := f.flow.SubmitEmail(context.Background(), "not-an-email")
	require.ErrorIs(t, err, flow.ErrInvalidEmail)
	require.Equal(t, flow.StepAddress, f.flow.Step())
}

func TestWrongEnrollCodeKeepsPendingSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)

	auth, err := f.flow.SubmitEnrollCode(ctx, "000000")
	require.NoError(t, err)
	require.False(t, auth.OK)
	require.Equal(t, flow.StepEnroll, f.flow.Step())

	// Nothing persisted on a mismatch.
	identities, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, identities)

	// The same QR is still live: the original secret verifies.
	require.Contains(t, f.flow.PendingProvisioningURI(), "secret="+res.Secret)
	auth, err = f.flow.SubmitEnrollCode(ctx, codeFor(t, res.Secret))
	require.NoError(t, err)
	require.True(t, auth.OK)
}

func TestCodeSubmissionOutsideStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.flow.SubmitEnrollCode(ctx, "123456")
	require.ErrorIs(t, err, flow.ErrWrongStep)

	_, err = f.flow.SubmitVerifyCode(ctx, "123456")
	require.ErrorIs(t, err, flow.ErrWrongStep)

	// ENROLL does not accept verify submissions and vice versa.
	_, err = f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)
	_, err = f.flow.SubmitVerifyCode(ctx, "123456")
	require.ErrorIs(t, err, flow.ErrWrongStep)
}

func TestBackDiscardsPendingSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)
	require.Equal(t, flow.StepEnroll, f.flow.Step())

	require.NoError(t, f.flow.Back())
	require.Equal(t, flow.StepAddress, f.flow.Step())
	require.Empty(t, f.flow.PendingProvisioningURI())

	_, err = f.flow.SubmitEnrollCode(ctx, "123456")
	require.ErrorIs(t, err, flow.ErrWrongStep)
}

func TestEachEnrollmentGetsFreshSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)

	require.NoError(t, f.flow.Back())

	second, err := f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)
}

func TestBootstrapOnlyAgainstEmptySet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)

	// Someone else got provisioned between the address submission and
	// the code: the bootstrap must not fire.
	f.provision(t, identity.Identity{ID: "1", Email: "other@example.com", TOTPSecret: "S"})

	auth, err := f.flow.SubmitEnrollCode(ctx, codeFor(t, res.Secret))
	require.NoError(t, err)
	require.False(t, auth.OK)

	identities, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, identities, 1)
	require.Equal(t, "other@example.com", identities[0].Email)
}

// slowBackendFlow builds a remote-mode flow whose identity listing
// blocks until release is closed, holding a submission in flight for as
// long as the test needs.
func slowBackendFlow(t *testing.T) (*flow.Flow, chan struct{}, chan struct{}) {
	t.Helper()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"isSetup": true, "mode": "sqlite-wal"})
	})
	mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		json.NewEncoder(w).Encode([]identity.Identity{})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	local := store.NewLocalStore(dir, testKey())
	remote := store.NewRemoteStore(srv.URL, 30*time.Second)
	repo := store.NewRepository(remote, local, zerolog.Nop())
	require.Equal(t, store.ModeRemote, repo.Probe(context.Background()))

	sessions := session.NewManager(dir, testKey(), zerolog.Nop())
	engine := totp.NewEngine("CSPM").WithClock(func() time.Time { return frozenNow })
	return flow.New(repo, engine, sessions, zerolog.Nop()), entered, release
}

func TestOverlappingSubmissionsRejected(t *testing.T) {
	fl, entered, release := slowBackendFlow(t)
	ctx := context.Background()

	type outcome struct {
		res flow.EmailResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fl.SubmitEmail(ctx, "founder@example.com")
		done <- outcome{res, err}
	}()

	// The first submission is suspended inside the identity listing.
	<-entered

	_, err := fl.SubmitEmail(ctx, "other@example.com")
	require.ErrorIs(t, err, flow.ErrBusy)

	_, err = fl.SubmitEnrollCode(ctx, "123456")
	require.ErrorIs(t, err, flow.ErrBusy)

	_, err = fl.SubmitVerifyCode(ctx, "123456")
	require.ErrorIs(t, err, flow.ErrBusy)

	// Navigating back while the transition is pending is refused too:
	// it would clear state the submission is about to commit.
	require.ErrorIs(t, fl.Back(), flow.ErrBusy)

	// Releasing the backend lets the original submission land intact.
	close(release)
	got := <-done
	require.NoError(t, got.err)
	require.Equal(t, identity.SystemInit, got.res.Status)
	require.Equal(t, flow.StepEnroll, got.res.Step)
	require.Equal(t, flow.StepEnroll, fl.Step())

	// The flow is reusable once the submission resolves.
	require.NoError(t, fl.Back())
	require.Equal(t, flow.StepAddress, fl.Step())
}

func TestRepeatLoginKeepsSingleRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)
	_, err = f.flow.SubmitEnrollCode(ctx, codeFor(t, res.Secret))
	require.NoError(t, err)

	// Second login goes through VERIFY against the stored secret.
	res, err = f.flow.SubmitEmail(ctx, "founder@example.com")
	require.NoError(t, err)
	require.Equal(t, identity.KnownWithMFA, res.Status)

	identities, err := f.repo.LoadAll(ctx)
	require.NoError(t, err)
	secret := identities[0].TOTPSecret

	auth, err := f.flow.SubmitVerifyCode(ctx, codeFor(t, secret))
	require.NoError(t, err)
	require.True(t, auth.OK)

	identities, err = f.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, identities, 1)
	require.True(t, identities[0].PrimaryAdmin)
}
