package flow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/config"
	"onboarding_backend/internal/draft"
	"onboarding_backend/internal/identity"
	"onboarding_backend/internal/session"
)

type countingRecorder struct {
	mu        sync.Mutex
	steps     map[string]int
	redirects map[string]int
	failures  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{steps: map[string]int{}, redirects: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) StepSubmitted(step, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step+"/"+outcome]++
}

func (r *countingRecorder) GuardRedirected(step, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects[step+"->"+target]++
}

func (r *countingRecorder) GatewayFailed(op, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op+"/"+kind]++
}

func (r *countingRecorder) step(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps[key]
}

type fakeDirectory struct {
	mu       sync.Mutex
	profiles []*identity.Profile
	err      error
}

func (d *fakeDirectory) RecordSignup(_ context.Context, profile *identity.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles = append(d.profiles, profile)
	return d.err
}

// cancelingGateway ends the request right after a successful account creation.
type cancelingGateway struct {
	*identity.MemoryGateway
	cancel context.CancelFunc
}

func (g *cancelingGateway) CreateAccount(ctx context.Context, email, password string) (*identity.User, error) {
	user, err := g.MemoryGateway.CreateAccount(ctx, email, password)
	if err == nil && g.cancel != nil {
		g.cancel()
	}
	return user, err
}

type fixture struct {
	manager   *session.Manager
	gateway   *cancelingGateway
	clock     *fakeClock
	directory *fakeDirectory
	recorder  *countingRecorder
	service   *Service
}

func testConfig() *config.Config {
	return &config.Config{
		SessionSecret:        "0123456789abcdef0123456789abcdef",
		SessionCookieName:    "onboarding_session",
		SessionTTL:           time.Hour,
		ProfileCacheTTL:      time.Minute,
		ProfileFetchAttempts: 1,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gateway:   &cancelingGateway{MemoryGateway: identity.NewMemoryGateway(zap.NewNop())},
		clock:     &fakeClock{},
		directory: &fakeDirectory{},
		recorder:  newCountingRecorder(),
	}
	f.manager = session.NewManager(testConfig(), draft.NewMemoryStore(time.Minute), f.gateway, session.NewHub(), zap.NewNop())
	f.service = NewService(f.manager, Options{
		GracePeriod:  20 * time.Millisecond,
		SuccessDelay: 3 * time.Second,
		AfterFunc:    f.clock.AfterFunc,
		Recorder:     f.recorder,
		Directory:    f.directory,
	}, zap.NewNop())
	t.Cleanup(f.manager.WaitIdle)
	return f
}

func (f *fixture) open(sid string) *session.Context {
	sc := f.manager.Open(sid, zap.NewNop())
	sc.Resolve(context.Background())
	return sc
}

func validRegistration(email string) RegisterRequest {
	return RegisterRequest{Email: email, Password: "Secret123", ConfirmPassword: "Secret123"}
}

func validPersonalInfo() PersonalInfoRequest {
	return PersonalInfoRequest{FullName: "Ana Perez", Gender: "female", CountryCode: "+598", PhoneNumber: "099 123 456"}
}

func validAddress() AddressFormRequest {
	return AddressFormRequest{StreetAddress: "123 Main St", City: "Montevideo", State: "MO", ZipCode: "12345"}
}

// throughLocation drives a fresh session up to the address form.
func (f *fixture) throughLocation(t *testing.T, sid, email string) *session.Context {
	t.Helper()
	ctx := context.Background()
	sc := f.open(sid)

	_, err := f.service.Register(ctx, sc, validRegistration(email))
	require.NoError(t, err)
	_, err = f.service.SubmitPersonalInfo(ctx, sc, validPersonalInfo())
	require.NoError(t, err)
	_, err = f.service.SubmitAddressSearch(ctx, sc, AddressSearchRequest{Action: ActionManual})
	require.NoError(t, err)
	return sc
}

func redirectTarget(t *testing.T, err error) string {
	t.Helper()
	var re *RedirectError
	require.True(t, errors.As(err, &re), "expected a redirect, got %v", err)
	return re.To
}

func TestService_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.open("sid-happy")

	out, err := f.service.Register(ctx, sc, validRegistration("ana@example.com"))
	require.NoError(t, err)
	assert.Equal(t, PathPersonalInfo, out.Next)

	reg, err := sc.Draft.Registration(ctx)
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, "ana@example.com", reg.Email)
	assert.Equal(t, sc.CurrentUser().UID, reg.UserID)
	assert.Equal(t, string(StepPersonalInfo), reg.RegistrationStep)

	out, err = f.service.EnterPersonalInfo(ctx, sc)
	require.NoError(t, err)
	view := out.Data.(PersonalInfoView)
	assert.Equal(t, "ana@example.com", view.Email)
	assert.Equal(t, "+598", view.DefaultCountryCode)

	out, err = f.service.SubmitPersonalInfo(ctx, sc, validPersonalInfo())
	require.NoError(t, err)
	assert.Equal(t, PathAddressSearch, out.Next)
	assert.Equal(t, "Ana Perez", sc.CurrentUser().DisplayName)

	info, err := sc.Draft.PersonalInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+598099123456", info.PhoneNumber)
	assert.Nil(t, info.Birthday)

	out, err = f.service.SubmitAddressSearch(ctx, sc, AddressSearchRequest{Action: ActionSearch, Query: "  Main St "})
	require.NoError(t, err)
	assert.Equal(t, PathAddressForm, out.Next)

	out, err = f.service.EnterAddressForm(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, "Main St", out.Data.(AddressFormView).Prefill.StreetAddress)

	out, err = f.service.SubmitAddressForm(ctx, sc, validAddress())
	require.NoError(t, err)
	assert.Equal(t, PathSuccess, out.Next)

	snap, err := sc.Draft.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.True(t, sc.Completed(ctx))

	profile, err := f.gateway.GetProfile(ctx, sc.CurrentUser().UID)
	require.NoError(t, err)
	assert.True(t, profile.RegistrationCompleted)
	assert.Equal(t, "ana@example.com", profile.Email)
	assert.Equal(t, "ana-perez", profile.Handle)
	assert.Equal(t, "+598099123456", profile.PhoneNumber)
	assert.Equal(t, "female", profile.Gender)
	assert.Nil(t, profile.Address.Apartment)
	assert.Equal(t, "12345", profile.Address.ZipCode)
	assert.False(t, profile.CreatedAt.IsZero())
	assert.Equal(t, profile.CreatedAt, profile.UpdatedAt)

	require.Len(t, f.directory.profiles, 1)
	assert.Equal(t, "ana@example.com", f.directory.profiles[0].Email)

	for _, step := range []Step{StepRegister, StepPersonalInfo, StepAddressSearch, StepAddressForm} {
		assert.Equal(t, 1, f.recorder.step(string(step)+"/"+OutcomeSuccess), step)
	}
}

func TestService_RegisterValidationHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.open("sid-weak")

	_, err := f.service.Register(ctx, sc, RegisterRequest{Email: "ana@example.com", Password: "abc12345", ConfirmPassword: "abc12345"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "password")

	_, err = f.gateway.SignIn(ctx, "ana@example.com", "abc12345")
	assert.Equal(t, identity.UserNotFound, identity.KindOf(err))
	assert.Nil(t, sc.CurrentUser())
	assert.Equal(t, 1, f.recorder.step("register/"+OutcomeValidation))
}

func TestService_RegisterEmailInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, f.open("sid-first"), validRegistration("ana@example.com"))
	require.NoError(t, err)

	second := f.open("sid-second")
	_, err = f.service.Register(ctx, second, validRegistration("ana@example.com"))
	var se *SubmitError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, identity.EmailInUse, se.Kind)
	assert.Equal(t, "ana@example.com", se.Values["email"])

	apiErr, ok := toAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, se.Message, apiErr.Message)

	reg, err := second.Draft.Registration(ctx)
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestService_RegisterDiscardsStaleResult(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.cancel = cancel
	sc := f.open("sid-stale")

	_, err := f.service.Register(ctx, sc, validRegistration("ana@example.com"))
	assert.ErrorIs(t, err, ErrStale)

	reg, err := sc.Draft.Registration(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reg)
	assert.Equal(t, 1, f.recorder.step("register/"+OutcomeStale))
}

func TestService_RegisterRefusesConcurrentSubmission(t *testing.T) {
	f := newFixture(t)
	sc := f.open("sid-double")

	release, err := sc.Begin(string(StepRegister))
	require.NoError(t, err)
	defer release()

	_, err = f.service.Register(context.Background(), sc, validRegistration("ana@example.com"))
	assert.ErrorIs(t, err, common.ErrSubmissionPending)
}

func TestService_StepEntryRedirects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.open("sid-empty")

	_, err := f.service.EnterPersonalInfo(ctx, sc)
	assert.Equal(t, PathRegister, redirectTarget(t, err))

	_, err = f.service.EnterAddressSearch(ctx, sc)
	assert.Equal(t, PathPersonalInfo, redirectTarget(t, err))

	_, err = f.service.EnterAddressForm(ctx, sc)
	assert.Equal(t, PathAddressSearch, redirectTarget(t, err))

	_, err = f.service.SubmitPersonalInfo(ctx, sc, validPersonalInfo())
	assert.Equal(t, PathRegister, redirectTarget(t, err))

	_, err = f.service.SubmitAddressForm(ctx, sc, validAddress())
	assert.Equal(t, PathAddressSearch, redirectTarget(t, err))
}

func TestService_PersonalInfoWaitsForSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("no user within grace goes back to register", func(t *testing.T) {
		sc := f.open("sid-nouser")
		require.NoError(t, sc.Draft.PutRegistration(ctx, &draft.Registration{Email: "ghost@example.com"}))

		_, err := f.service.EnterPersonalInfo(ctx, sc)
		assert.Equal(t, PathRegister, redirectTarget(t, err))
	})

	t.Run("sign-in from another request is picked up", func(t *testing.T) {
		f.service.grace = 2 * time.Second
		sc := f.open("sid-late")
		require.NoError(t, sc.Draft.PutRegistration(ctx, &draft.Registration{Email: "late@example.com"}))

		go func() {
			time.Sleep(20 * time.Millisecond)
			other := f.open("sid-late")
			_, _ = other.SignUp(ctx, "late@example.com", "Secret123")
		}()

		out, err := f.service.EnterPersonalInfo(ctx, sc)
		require.NoError(t, err)
		assert.Equal(t, "late@example.com", out.Data.(PersonalInfoView).Email)
		require.NotNil(t, sc.CurrentUser())
	})
}

func TestService_AddressSearchMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.open("sid-search")
	_, err := f.service.Register(ctx, sc, validRegistration("ana@example.com"))
	require.NoError(t, err)
	_, err = f.service.SubmitPersonalInfo(ctx, sc, validPersonalInfo())
	require.NoError(t, err)

	out, err := f.service.SubmitAddressSearch(ctx, sc, AddressSearchRequest{Action: ActionSearch, Query: "   "})
	require.NoError(t, err)
	assert.Equal(t, PathAddressSearch, out.Next)
	loc, err := sc.Draft.Location(ctx)
	require.NoError(t, err)
	assert.Nil(t, loc)

	out, err = f.service.SubmitAddressSearch(ctx, sc, AddressSearchRequest{Action: ActionCurrentLocation, GeolocationError: "User denied Geolocation"})
	require.NoError(t, err)
	assert.Equal(t, PathAddressForm, out.Next)
	loc, err = sc.Draft.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, draft.MethodManual, loc.Method)

	lat, lon := -34.9, -56.2
	_, err = f.service.SubmitAddressSearch(ctx, sc, AddressSearchRequest{Action: ActionCurrentLocation, Latitude: &lat, Longitude: &lon})
	require.NoError(t, err)
	loc, err = sc.Draft.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, draft.MethodGeolocation, loc.Method)
	assert.InDelta(t, lat, *loc.Latitude, 1e-9)
}

func TestService_AddressFormKeepsApartmentAndSurvivesDirectoryFailure(t *testing.T) {
	f := newFixture(t)
	f.directory.err = errors.New("directory down")
	ctx := context.Background()
	sc := f.throughLocation(t, "sid-apt", "apt@example.com")

	req := validAddress()
	req.Apartment = " 4B "
	req.ZipCode = "12345-6789"
	out, err := f.service.SubmitAddressForm(ctx, sc, req)
	require.NoError(t, err)
	assert.Equal(t, PathSuccess, out.Next)

	profile := sc.Profile()
	require.NotNil(t, profile)
	require.NotNil(t, profile.Address.Apartment)
	assert.Equal(t, "4B", *profile.Address.Apartment)
	assert.Equal(t, "12345-6789", profile.Address.ZipCode)
}

func TestService_AddressFormInvalidZipKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.throughLocation(t, "sid-zip", "zip@example.com")

	req := validAddress()
	req.ZipCode = "1234"
	_, err := f.service.SubmitAddressForm(ctx, sc, req)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "zipCode")

	snap, err := sc.Draft.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.PersonalInfo)
	assert.NotNil(t, snap.Location)
	assert.False(t, sc.Completed(ctx))
}

func TestService_SuccessAutoAdvanceSignsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.throughLocation(t, "sid-success", "done@example.com")
	_, err := f.service.SubmitAddressForm(ctx, sc, validAddress())
	require.NoError(t, err)

	out, err := f.service.EnterSuccess(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, PathLogin, out.Next)
	assert.Equal(t, int64(3000), out.Data.(SuccessView).RedirectInMS)

	f.clock.last().Fire()

	after := f.open("sid-success")
	assert.Nil(t, after.CurrentUser())
	assert.False(t, after.Completed(ctx))
}

func TestService_FinishSuccessPreventsTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.throughLocation(t, "sid-finish", "finish@example.com")
	_, err := f.service.SubmitAddressForm(ctx, sc, validAddress())
	require.NoError(t, err)
	_, err = f.service.EnterSuccess(ctx, sc)
	require.NoError(t, err)
	timer := f.clock.last()

	out, err := f.service.FinishSuccess(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, PathLogin, out.Next)
	assert.True(t, timer.stopped)
	assert.Nil(t, f.open("sid-finish").CurrentUser())
}

func TestService_LoginClearsRegistrationDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gateway.CreateAccount(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)

	sc := f.open("sid-login")
	require.NoError(t, sc.Draft.PutRegistration(ctx, &draft.Registration{Email: "old@example.com"}))
	require.NoError(t, sc.Draft.PutLocation(ctx, &draft.Location{Method: draft.MethodManual}))

	_, err = f.service.Login(ctx, sc, LoginRequest{Email: "ana@example.com", Password: "wrong-pass"})
	var se *SubmitError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, identity.WrongPassword, se.Kind)
	assert.Equal(t, "Incorrect password", se.Message)

	out, err := f.service.Login(ctx, sc, LoginRequest{Email: "ana@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, PathDashboard, out.Next)

	snap, err := sc.Draft.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Registration)
	assert.NotNil(t, snap.Location)
}

func TestService_LogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.throughLocation(t, "sid-logout", "bye@example.com")

	out, err := f.service.Logout(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, PathLogin, out.Next)

	snap, err := sc.Draft.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.Nil(t, f.open("sid-logout").CurrentUser())

	// Logging out twice is harmless.
	_, err = f.service.Logout(ctx, sc)
	assert.NoError(t, err)
}

func TestService_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := f.open("sid-status")

	out, err := f.service.Status(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, PathLogin, out.Next)
	status := out.Data.(Status)
	assert.Equal(t, session.StateAnonymous, status.AuthState)
	assert.Equal(t, AwaitingAccount, status.FlowState)

	_, err = f.service.Register(ctx, sc, validRegistration("ana@example.com"))
	require.NoError(t, err)

	out, err = f.service.Status(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, PathPersonalInfo, out.Next)
	status = out.Data.(Status)
	assert.Equal(t, session.StateAuthenticated, status.AuthState)
	assert.Equal(t, AwaitingPersonalInfo, status.FlowState)
	require.NotNil(t, status.Draft.Registration)
}
