package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/learnexa/learnexa/internal/identity"
	"github.com/learnexa/learnexa/internal/roles"
	"github.com/learnexa/learnexa/internal/shared"
)

// Status reports whether the first session resolution has completed.
type Status string

const (
	StatusResolving Status = "resolving"
	StatusSettled   Status = "settled"
)

// Snapshot is a consistent read of the session state.
type Snapshot struct {
	Identity *identity.User
	Roles    []string
	Status   Status
}

// SignedIn reports whether an identity is present.
func (s Snapshot) SignedIn() bool {
	return s.Identity != nil
}

// IsAdmin reports whether the identity holds the admin role.
func (s Snapshot) IsAdmin() bool {
	return s.Identity != nil && roles.HasAdmin(s.Roles)
}

// Settled reports whether the first resolution has completed.
func (s Snapshot) Settled() bool {
	return s.Status == StatusSettled
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Identity != nil {
		user := *s.Identity
		out.Identity = &user
	}
	if s.Roles != nil {
		out.Roles = append([]string(nil), s.Roles...)
	}
	return out
}

// RoleResolver looks up the roles assigned to a user.
type RoleResolver interface {
	RolesFor(ctx context.Context, userID string) ([]string, error)
}

// update is one queued session change. stale marks a probe result that
// arrived after a pushed event and must not overwrite it.
type update struct {
	session *identity.Session
	probe   bool
	stale   bool
}

// Store is the reactive view of who is signed in and with what roles.
// Session changes are applied strictly in arrival order by a single
// goroutine: identity, then role lookup, then status, then notification.
type Store struct {
	provider identity.Provider
	roles    RoleResolver
	logger   *slog.Logger
	validate *validator.Validate

	ctx    context.Context
	cancel context.CancelFunc
	sub    identity.Subscription

	qmu    sync.Mutex
	queue  []update
	pushed bool
	wake   chan struct{}

	mu      sync.RWMutex
	snap    Snapshot
	subs    map[int]func(Snapshot)
	nextID  int
	settled chan struct{}

	settleOnce sync.Once
	closeOnce  sync.Once
	done       chan struct{}
}

// NewStore subscribes to provider's session stream, launches the initial
// session probe and returns immediately with Status resolving. The store
// stops when ctx is cancelled or Close is called.
func NewStore(ctx context.Context, provider identity.Provider, resolver RoleResolver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Store{
		provider: provider,
		roles:    resolver,
		logger:   logger,
		validate: shared.NewValidator(),
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		snap:     Snapshot{Status: StatusResolving},
		subs:     make(map[int]func(Snapshot)),
		settled:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.sub = provider.OnAuthStateChange(s.push)
	go s.run()
	go s.probe()
	return s
}

func (s *Store) push(ev identity.Event) {
	s.enqueue(update{session: ev.Session})
}

func (s *Store) probe() {
	sess, err := s.provider.GetSession(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("initial session probe failed", slog.Any("error", err))
		}
		sess = nil
	}
	s.enqueue(update{session: sess, probe: true})
}

func (s *Store) enqueue(u update) {
	s.qmu.Lock()
	if u.probe {
		u.stale = s.pushed
	} else {
		s.pushed = true
	}
	s.queue = append(s.queue, u)
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) next() (update, bool) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.queue) == 0 {
		return update{}, false
	}
	u := s.queue[0]
	s.queue = s.queue[1:]
	return u, true
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for {
			if s.ctx.Err() != nil {
				return
			}
			u, ok := s.next()
			if !ok {
				break
			}
			s.apply(u)
		}
	}
}

func (s *Store) apply(u update) {
	if u.stale {
		s.settle(nil)
		return
	}
	var user *identity.User
	var assigned []string
	if u.session != nil {
		copied := u.session.User
		user = &copied
		found, err := s.roles.RolesFor(s.ctx, copied.ID)
		if err != nil {
			s.logger.Error("role lookup failed", slog.String("user_id", copied.ID), slog.Any("error", err))
			found = nil
		}
		assigned = found
	}
	s.settle(&Snapshot{Identity: user, Roles: assigned, Status: StatusSettled})
}

// settle stores next (when non-nil), marks the store settled and notifies
// subscribers.
func (s *Store) settle(next *Snapshot) {
	s.mu.Lock()
	if next != nil {
		s.snap = *next
	} else {
		s.snap.Status = StatusSettled
	}
	snap := s.snap.clone()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	first := false
	s.settleOnce.Do(func() {
		close(s.settled)
		first = true
	})
	if next == nil && !first {
		return
	}
	for _, fn := range fns {
		fn(snap)
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Subscribe registers fn for every applied change. Callbacks run on the
// store goroutine in registration order. The returned function cancels the
// subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Settled is closed once the first resolution has completed.
func (s *Store) Settled() <-chan struct{} {
	return s.settled
}

// WaitSettled blocks until the store settles or ctx ends. The boolean is
// false when ctx ended first.
func (s *Store) WaitSettled(ctx context.Context) (Snapshot, bool) {
	select {
	case <-s.settled:
		return s.Snapshot(), true
	case <-ctx.Done():
		return s.Snapshot(), false
	}
}

// Close unsubscribes from the provider and stops the store goroutine.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		s.cancel()
	})
}

// Done is closed when the store goroutine has exited.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	FullName string `validate:"required"`
	Phone    string `validate:"omitempty,phone"`
}

type signInInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type phoneInput struct {
	Phone string `validate:"required,phone"`
}

type otpInput struct {
	Phone string `validate:"required,phone"`
	Code  string `validate:"required,otp"`
}

type passwordInput struct {
	Password string `validate:"required,min=8"`
}

var fieldKeys = map[string]string{
	"Email":    "validation.email",
	"Password": "validation.password",
	"FullName": "validation.fullName",
	"Phone":    "validation.phone",
	"Code":     "validation.otp",
}

func (s *Store) check(input any) error {
	return shared.ValidateStruct(s.validate, input, fieldKeys)
}

// SignUp registers a new account. It does not sign the user in; the
// provider provisions the profile row asynchronously.
func (s *Store) SignUp(ctx context.Context, in SignUpInput) error {
	if err := s.check(in); err != nil {
		return err
	}
	err := s.provider.SignUp(ctx, in.Email, in.Password, identity.ProfileFields{FullName: in.FullName, Phone: in.Phone})
	return classifyProviderError(err)
}

// SignIn authenticates with email and password. The new identity arrives
// through the session stream.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	if err := s.check(signInInput{Email: email, Password: password}); err != nil {
		return err
	}
	return classifyProviderError(s.provider.SignInWithPassword(ctx, email, password))
}

// SignInWithPhone requests a one-time code for phone.
func (s *Store) SignInWithPhone(ctx context.Context, phone string) error {
	if err := s.check(phoneInput{Phone: phone}); err != nil {
		return err
	}
	return classifyProviderError(s.provider.SignInWithOTP(ctx, phone))
}

// VerifyOTP completes the phone challenge.
func (s *Store) VerifyOTP(ctx context.Context, phone, code string) error {
	if err := s.check(otpInput{Phone: phone, Code: code}); err != nil {
		return err
	}
	return classifyProviderError(s.provider.VerifyOTP(ctx, phone, code, identity.OTPTypeSMS))
}

// SignOut ends the session.
func (s *Store) SignOut(ctx context.Context) error {
	return classifyProviderError(s.provider.SignOut(ctx))
}

// UpdatePassword changes the signed-in user's password.
func (s *Store) UpdatePassword(ctx context.Context, password string) error {
	if err := s.check(passwordInput{Password: password}); err != nil {
		return err
	}
	return classifyProviderError(s.provider.UpdateUser(ctx, identity.UserUpdate{Password: password}))
}
