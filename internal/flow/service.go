package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"onboarding_backend/internal/draft"
	"onboarding_backend/internal/identity"
	"onboarding_backend/internal/session"
)

// Step outcomes reported to the Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeGateway    = "gateway_error"
	OutcomeStale      = "stale"
	OutcomePending    = "pending"
	OutcomeError      = "error"
)

// Recorder receives flow telemetry.
type Recorder interface {
	StepSubmitted(step, outcome string)
	GuardRedirected(step, target string)
	GatewayFailed(operation, kind string)
}

type nopRecorder struct{}

func (nopRecorder) StepSubmitted(string, string)   {}
func (nopRecorder) GuardRedirected(string, string) {}
func (nopRecorder) GatewayFailed(string, string)   {}

// CustomerDirectory receives every completed signup.
type CustomerDirectory interface {
	RecordSignup(ctx context.Context, profile *identity.Profile) error
}

// SessionOpener opens a session outside of a request.
type SessionOpener interface {
	Open(sid string, logger *zap.Logger) *session.Context
}

// Options configures a Service.
type Options struct {
	GracePeriod  time.Duration
	SuccessDelay time.Duration
	AfterFunc    AfterFunc
	Recorder     Recorder
	Directory    CustomerDirectory
	Now          func() time.Time
}

// Service runs the step controllers of the signup flow.
type Service struct {
	validator *Validator
	sessions  SessionOpener
	timers    *SuccessTimers
	recorder  Recorder
	directory CustomerDirectory
	grace     time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(sessions SessionOpener, opts Options, logger *zap.Logger) *Service {
	s := &Service{
		validator: NewValidator(),
		sessions:  sessions,
		recorder:  opts.Recorder,
		directory: opts.Directory,
		grace:     opts.GracePeriod,
		now:       opts.Now,
		logger:    logger.Named("flow"),
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.timers = NewSuccessTimers(opts.SuccessDelay, opts.AfterFunc, s.finishSignup)
	return s
}

// Timers exposes the success-screen timers.
func (s *Service) Timers() *SuccessTimers {
	return s.timers
}

// Login signs an existing user in. A leftover registration draft is dropped.
func (s *Service) Login(ctx context.Context, sc *session.Context, req LoginRequest) (*Outcome, error) {
	if fields := s.validator.Struct(&req); fields != nil {
		return nil, s.invalid(StepLogin, fields)
	}
	release, err := sc.Begin(string(StepLogin))
	if err != nil {
		s.recorder.StepSubmitted(string(StepLogin), OutcomePending)
		return nil, err
	}
	defer release()

	if _, err := sc.SignIn(ctx, req.Email, req.Password); err != nil {
		return nil, s.gatewayFailed(StepLogin, identity.OpSignIn, err, map[string]string{"email": req.Email})
	}
	if ctx.Err() != nil {
		return nil, s.stale(StepLogin)
	}

	if err := sc.Draft.ClearRegistration(ctx); err != nil {
		s.logger.Warn("Failed to clear registration draft after login", zap.Error(err))
	}
	s.recorder.StepSubmitted(string(StepLogin), OutcomeSuccess)
	return &Outcome{Next: PathDashboard}, nil
}

// Register creates the account and starts the draft.
func (s *Service) Register(ctx context.Context, sc *session.Context, req RegisterRequest) (*Outcome, error) {
	if fields := s.validator.Struct(&req); fields != nil {
		return nil, s.invalid(StepRegister, fields)
	}
	if _, err := s.advance(ctx, sc, StepRegister, AccountCreated); err != nil {
		return nil, err
	}
	release, err := sc.Begin(string(StepRegister))
	if err != nil {
		s.recorder.StepSubmitted(string(StepRegister), OutcomePending)
		return nil, err
	}
	defer release()

	user, err := sc.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.gatewayFailed(StepRegister, identity.OpSignUp, err, map[string]string{"email": req.Email})
	}
	if ctx.Err() != nil {
		return nil, s.stale(StepRegister)
	}

	reg := &draft.Registration{
		Email:            req.Email,
		UserID:           user.UID,
		RegistrationStep: string(StepPersonalInfo),
		Timestamp:        s.now().UTC().Format(time.RFC3339Nano),
	}
	if err := sc.Draft.PutRegistration(ctx, reg); err != nil {
		s.recorder.StepSubmitted(string(StepRegister), OutcomeError)
		return nil, err
	}
	s.recorder.StepSubmitted(string(StepRegister), OutcomeSuccess)
	return &Outcome{Next: PathPersonalInfo}, nil
}

// PersonalInfoView is rendered on entering the personal-info step.
type PersonalInfoView struct {
	Email              string            `json:"email"`
	DefaultCountryCode string            `json:"defaultCountryCode"`
	CountryCodes       map[string]string `json:"countryCodes"`
}

// EnterPersonalInfo admits the step once the account's user is known, waiting
// up to the grace period for the sign-in that follows account creation.
func (s *Service) EnterPersonalInfo(ctx context.Context, sc *session.Context) (*Outcome, error) {
	snap, err := s.admit(ctx, sc, StepPersonalInfo)
	if err != nil {
		return nil, err
	}
	if user := sc.WaitForUser(ctx, s.grace); user == nil {
		if ctx.Err() != nil {
			return nil, ErrStale
		}
		s.logger.Debug("No user after grace period; back to register", zap.String("sid", sc.ID()))
		return nil, s.redirect(StepPersonalInfo, PathRegister)
	}
	return &Outcome{Next: PathPersonalInfo, Data: PersonalInfoView{
		Email:              snap.Registration.Email,
		DefaultCountryCode: DefaultCountryCode,
		CountryCodes:       CountryCodes,
	}}, nil
}

// SubmitPersonalInfo stores the personal-info slice and sets the display name.
func (s *Service) SubmitPersonalInfo(ctx context.Context, sc *session.Context, req PersonalInfoRequest) (*Outcome, error) {
	if _, err := s.admit(ctx, sc, StepPersonalInfo); err != nil {
		return nil, err
	}
	req.normalize()
	if fields := s.validator.Struct(&req); fields != nil {
		return nil, s.invalid(StepPersonalInfo, fields)
	}
	if _, err := s.advance(ctx, sc, StepPersonalInfo, PersonalInfoSaved); err != nil {
		return nil, err
	}
	release, err := sc.Begin(string(StepPersonalInfo))
	if err != nil {
		s.recorder.StepSubmitted(string(StepPersonalInfo), OutcomePending)
		return nil, err
	}
	defer release()

	if err := sc.UpdateDisplayName(ctx, req.FullName); err != nil {
		return nil, s.gatewayFailed(StepPersonalInfo, identity.OpDisplayName, err, personalInfoValues(req))
	}
	if ctx.Err() != nil {
		return nil, s.stale(StepPersonalInfo)
	}

	info := &draft.PersonalInfo{
		FullName:    req.FullName,
		Gender:      req.Gender,
		PhoneNumber: req.CountryCode + DigitsOnly(req.PhoneNumber),
		Step:        string(StepAddressSearch),
	}
	if req.Birthday != "" {
		birthday := req.Birthday
		info.Birthday = &birthday
	}
	if err := sc.Draft.PutPersonalInfo(ctx, info); err != nil {
		s.recorder.StepSubmitted(string(StepPersonalInfo), OutcomeError)
		return nil, err
	}
	s.recorder.StepSubmitted(string(StepPersonalInfo), OutcomeSuccess)
	return &Outcome{Next: PathAddressSearch}, nil
}

// EnterAddressSearch admits the step when personal info is present.
func (s *Service) EnterAddressSearch(ctx context.Context, sc *session.Context) (*Outcome, error) {
	if _, err := s.admit(ctx, sc, StepAddressSearch); err != nil {
		return nil, err
	}
	return &Outcome{Next: PathAddressSearch}, nil
}

// SubmitAddressSearch records how the address will be provided. A failed or
// missing geolocation falls back to manual entry; an empty search stays put.
func (s *Service) SubmitAddressSearch(ctx context.Context, sc *session.Context, req AddressSearchRequest) (*Outcome, error) {
	if _, err := s.admit(ctx, sc, StepAddressSearch); err != nil {
		return nil, err
	}
	if fields := s.validator.Struct(&req); fields != nil {
		return nil, s.invalid(StepAddressSearch, fields)
	}

	var loc *draft.Location
	switch req.Action {
	case ActionCurrentLocation:
		if req.GeolocationError == "" && req.Latitude != nil && req.Longitude != nil {
			loc = &draft.Location{Method: draft.MethodGeolocation, Latitude: req.Latitude, Longitude: req.Longitude}
		} else {
			s.logger.Debug("Geolocation unavailable; continuing with manual entry",
				zap.String("sid", sc.ID()), zap.String("reason", req.GeolocationError))
			loc = &draft.Location{Method: draft.MethodManual}
		}
	case ActionSearch:
		query := strings.TrimSpace(req.Query)
		if query == "" {
			return &Outcome{Next: PathAddressSearch}, nil
		}
		loc = &draft.Location{Method: draft.MethodSearch, Query: query}
	default:
		loc = &draft.Location{Method: draft.MethodManual}
	}

	if _, err := s.advance(ctx, sc, StepAddressSearch, LocationChosen); err != nil {
		return nil, err
	}
	if err := sc.Draft.PutLocation(ctx, loc); err != nil {
		s.recorder.StepSubmitted(string(StepAddressSearch), OutcomeError)
		return nil, err
	}
	s.recorder.StepSubmitted(string(StepAddressSearch), OutcomeSuccess)
	return &Outcome{Next: PathAddressForm}, nil
}

// AddressFormView pre-fills the address form.
type AddressFormView struct {
	Prefill  AddressFormRequest `json:"prefill"`
	Location *draft.Location    `json:"location"`
}

// EnterAddressForm admits the step and pre-fills the street from a search query.
func (s *Service) EnterAddressForm(ctx context.Context, sc *session.Context) (*Outcome, error) {
	snap, err := s.admit(ctx, sc, StepAddressForm)
	if err != nil {
		return nil, err
	}
	view := AddressFormView{Location: snap.Location}
	if snap.Location.Method == draft.MethodSearch && snap.Location.Query != "" {
		view.Prefill.StreetAddress = snap.Location.Query
	}
	return &Outcome{Next: PathAddressForm, Data: view}, nil
}

// SubmitAddressForm writes the complete profile and ends the draft.
func (s *Service) SubmitAddressForm(ctx context.Context, sc *session.Context, req AddressFormRequest) (*Outcome, error) {
	snap, err := s.admit(ctx, sc, StepAddressForm)
	if err != nil {
		return nil, err
	}
	req.normalize()
	if fields := s.validator.Struct(&req); fields != nil {
		return nil, s.invalid(StepAddressForm, fields)
	}
	user := sc.CurrentUser()
	if user == nil {
		return nil, s.redirect(StepAddressForm, PathRegister)
	}
	if _, err := s.advance(ctx, sc, StepAddressForm, AddressSaved); err != nil {
		return nil, err
	}
	release, err := sc.Begin(string(StepAddressForm))
	if err != nil {
		s.recorder.StepSubmitted(string(StepAddressForm), OutcomePending)
		return nil, err
	}
	defer release()

	email := user.Email
	if snap.Registration != nil && snap.Registration.Email != "" {
		email = snap.Registration.Email
	}
	profile := &identity.Profile{
		Email:       email,
		FullName:    snap.PersonalInfo.FullName,
		Handle:      slug.Make(snap.PersonalInfo.FullName),
		Gender:      snap.PersonalInfo.Gender,
		PhoneNumber: snap.PersonalInfo.PhoneNumber,
		Birthday:    snap.PersonalInfo.Birthday,
		Address: identity.Address{
			StreetAddress: req.StreetAddress,
			City:          req.City,
			State:         req.State,
			ZipCode:       req.ZipCode,
		},
		RegistrationCompleted: true,
	}
	if req.Apartment != "" {
		apartment := req.Apartment
		profile.Address.Apartment = &apartment
	}

	if err := sc.SaveProfile(ctx, user.UID, profile); err != nil {
		return nil, s.gatewayFailed(StepAddressForm, identity.OpSaveProfile, err, addressValues(req))
	}
	if ctx.Err() != nil {
		return nil, s.stale(StepAddressForm)
	}

	if err := sc.Draft.Clear(ctx); err != nil {
		s.recorder.StepSubmitted(string(StepAddressForm), OutcomeError)
		return nil, err
	}
	if err := sc.MarkCompleted(ctx); err != nil {
		s.logger.Warn("Failed to mark signup complete", zap.String("sid", sc.ID()), zap.Error(err))
	}
	if s.directory != nil {
		if err := s.directory.RecordSignup(ctx, profile); err != nil {
			s.logger.Warn("Failed to record new customer", zap.String("uid", user.UID), zap.Error(err))
		}
	}
	s.recorder.StepSubmitted(string(StepAddressForm), OutcomeSuccess)
	return &Outcome{Next: PathSuccess}, nil
}

// SuccessView is rendered on the success screen.
type SuccessView struct {
	Message      string `json:"message"`
	RedirectInMS int64  `json:"redirectInMs"`
}

// EnterSuccess mounts the auto-advance to login.
func (s *Service) EnterSuccess(ctx context.Context, sc *session.Context) (*Outcome, error) {
	s.timers.Mount(sc.ID())
	return &Outcome{Next: PathLogin, Data: SuccessView{
		Message:      "You are successfully registered!",
		RedirectInMS: s.timers.Delay().Milliseconds(),
	}}, nil
}

// FinishSuccess is the explicit "Go to Login" action.
func (s *Service) FinishSuccess(ctx context.Context, sc *session.Context) (*Outcome, error) {
	s.timers.Finish(ctx, sc.ID())
	s.recorder.StepSubmitted(string(StepSuccess), OutcomeSuccess)
	return &Outcome{Next: PathLogin}, nil
}

// Logout signs out and drops every draft entry.
func (s *Service) Logout(ctx context.Context, sc *session.Context) (*Outcome, error) {
	s.timers.Unmount(sc.ID())
	if err := sc.SignOut(ctx); err != nil {
		return nil, err
	}
	if err := sc.Draft.Clear(ctx); err != nil {
		return nil, err
	}
	if err := sc.ClearCompleted(ctx); err != nil {
		return nil, err
	}
	return &Outcome{Next: PathLogin}, nil
}

// Status describes a session to the client.
type Status struct {
	AuthState session.AuthState `json:"authState"`
	Loading   bool              `json:"loading"`
	User      *identity.User    `json:"user"`
	Profile   *identity.Profile `json:"profile"`
	FlowState State             `json:"flowState"`
	Draft     draft.Snapshot    `json:"draft"`
}

// Status reports the auth and flow state of sc.
func (s *Service) Status(ctx context.Context, sc *session.Context) (*Outcome, error) {
	snap, err := sc.Draft.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	state := StateOf(snap, sc.Completed(ctx))
	next := NextPath(state)
	switch {
	case state == Complete:
		next = PathSuccess
	case sc.CurrentUser() != nil && snap.Empty():
		next = PathDashboard
	case sc.CurrentUser() == nil && snap.Empty():
		next = PathLogin
	}
	return &Outcome{Next: next, Data: Status{
		AuthState: sc.State(),
		Loading:   sc.Loading(),
		User:      sc.CurrentUser(),
		Profile:   sc.Profile(),
		FlowState: state,
		Draft:     snap,
	}}, nil
}

// finishSignup is the success screen's sign-out-then-login action.
func (s *Service) finishSignup(ctx context.Context, sid string) {
	sc := s.sessions.Open(sid, s.logger)
	if err := sc.SignOut(ctx); err != nil {
		s.logger.Error("Error during logout", zap.String("sid", sid), zap.Error(err))
	}
	if err := sc.ClearCompleted(ctx); err != nil {
		s.logger.Warn("Failed to clear completion marker", zap.String("sid", sid), zap.Error(err))
	}
}

func (s *Service) admit(ctx context.Context, sc *session.Context, step Step) (draft.Snapshot, error) {
	snap, err := sc.Draft.Snapshot(ctx)
	if err != nil {
		return draft.Snapshot{}, err
	}
	if to := Admit(step, snap); to != "" {
		return snap, s.redirect(step, to)
	}
	return snap, nil
}

// advance checks that ev may fire from the session's current state.
func (s *Service) advance(ctx context.Context, sc *session.Context, step Step, ev Event) (State, error) {
	snap, err := sc.Draft.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	current := StateOf(snap, sc.Completed(ctx))
	next, err := Transition(current, ev)
	if errors.Is(err, ErrOutOfOrder) {
		return current, s.redirect(step, NextPath(current))
	}
	return next, err
}

func (s *Service) invalid(step Step, fields map[string]string) error {
	s.recorder.StepSubmitted(string(step), OutcomeValidation)
	return &ValidationError{Fields: fields}
}

func (s *Service) redirect(step Step, to string) error {
	s.recorder.GuardRedirected(string(step), to)
	return &RedirectError{To: to}
}

func (s *Service) stale(step Step) error {
	s.recorder.StepSubmitted(string(step), OutcomeStale)
	return ErrStale
}

func (s *Service) gatewayFailed(step Step, op identity.Op, err error, values map[string]string) error {
	se := newSubmitError(op, err, values)
	s.logger.Warn("Identity gateway call failed",
		zap.String("step", string(step)), zap.String("kind", string(se.Kind)), zap.Error(err))
	s.recorder.GatewayFailed(string(op), string(se.Kind))
	s.recorder.StepSubmitted(string(step), OutcomeGateway)
	return se
}

func personalInfoValues(req PersonalInfoRequest) map[string]string {
	return map[string]string{
		"fullName":    req.FullName,
		"gender":      req.Gender,
		"countryCode": req.CountryCode,
		"phoneNumber": req.PhoneNumber,
		"birthday":    req.Birthday,
	}
}

func addressValues(req AddressFormRequest) map[string]string {
	return map[string]string{
		"streetAddress": req.StreetAddress,
		"apartment":     req.Apartment,
		"city":          req.City,
		"state":         req.State,
		"zipCode":       req.ZipCode,
	}
}
