// Package identitytest provides an in-memory identity.Provider for tests.
package identitytest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnexa/learnexa/internal/identity"
)

type account struct {
	password string
	user     identity.User
}

// Provider is a scripted, in-memory identity provider. Successful sign-ins
// emit events synchronously on the calling goroutine.
type Provider struct {
	mu       sync.Mutex
	accounts map[string]account
	otp      map[string]string
	phones   map[string]identity.User
	session  *identity.Session
	subs     map[int]func(identity.Event)
	nextID   int
	calls    []string

	probeErr  error
	probeGate chan struct{}

	// Err, when set, is returned by every mutating call.
	Err error
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		accounts: make(map[string]account),
		otp:      make(map[string]string),
		phones:   make(map[string]identity.User),
		subs:     make(map[int]func(identity.Event)),
	}
}

// AddUser registers an email/password account and returns its user.
func (p *Provider) AddUser(email, password string) identity.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	user := identity.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	p.accounts[email] = account{password: password, user: user}
	return user
}

// AcceptOTP makes VerifyOTP succeed for the phone/code pair.
func (p *Provider) AcceptOTP(phone, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.otp[phone] = code
}

// SetSession sets the session reported by GetSession without emitting.
func (p *Provider) SetSession(sess *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = sess
}

// FailProbe makes GetSession return err.
func (p *Provider) FailProbe(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probeErr = err
}

// HoldProbe blocks GetSession until the returned release function runs.
func (p *Provider) HoldProbe() func() {
	gate := make(chan struct{})
	p.mu.Lock()
	p.probeGate = gate
	p.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Emit pushes ev to every subscriber, as the real provider would after a
// change made elsewhere.
func (p *Provider) Emit(ev identity.Event) {
	p.mu.Lock()
	if ev.Kind == identity.EventSignedOut {
		p.session = nil
	} else if ev.Session != nil {
		s := *ev.Session
		p.session = &s
	}
	subs := make([]func(identity.Event), 0, len(p.subs))
	for i := 0; i < p.nextID; i++ {
		if fn, ok := p.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Calls returns the names of the provider methods invoked so far.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// Subscribers returns the number of live subscriptions.
func (p *Provider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Provider) record(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	return p.Err
}

// SignUp implements identity.Provider. It does not sign the user in.
func (p *Provider) SignUp(ctx context.Context, email, password string, profile identity.ProfileFields) error {
	if err := p.record("SignUp"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[email]; exists {
		return identity.ErrAlreadyRegistered
	}
	user := identity.User{
		ID:        uuid.NewString(),
		Email:     email,
		Phone:     profile.Phone,
		Metadata:  map[string]string{"full_name": profile.FullName},
		CreatedAt: time.Now().UTC(),
	}
	p.accounts[email] = account{password: password, user: user}
	return nil
}

// SignInWithPassword implements identity.Provider.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	if err := p.record("SignInWithPassword"); err != nil {
		return err
	}
	p.mu.Lock()
	acct, ok := p.accounts[email]
	p.mu.Unlock()
	if !ok || acct.password != password {
		return identity.ErrInvalidCredentials
	}
	p.Emit(identity.Event{Kind: identity.EventSignedIn, Session: newSession(acct.user)})
	return nil
}

// SignInWithOTP implements identity.Provider.
func (p *Provider) SignInWithOTP(ctx context.Context, phone string) error {
	return p.record("SignInWithOTP")
}

// VerifyOTP implements identity.Provider. Unknown phones get a new user.
func (p *Provider) VerifyOTP(ctx context.Context, phone, token string, typ identity.OTPType) error {
	if err := p.record("VerifyOTP"); err != nil {
		return err
	}
	p.mu.Lock()
	expected, ok := p.otp[phone]
	if !ok || expected != token || typ != identity.OTPTypeSMS {
		p.mu.Unlock()
		return identity.ErrInvalidOTP
	}
	delete(p.otp, phone)
	user, exists := p.phones[phone]
	if !exists {
		user = identity.User{ID: uuid.NewString(), Phone: phone, CreatedAt: time.Now().UTC()}
		p.phones[phone] = user
	}
	p.mu.Unlock()
	p.Emit(identity.Event{Kind: identity.EventSignedIn, Session: newSession(user)})
	return nil
}

// UpdateUser implements identity.Provider.
func (p *Provider) UpdateUser(ctx context.Context, update identity.UserUpdate) error {
	if err := p.record("UpdateUser"); err != nil {
		return err
	}
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess == nil {
		return identity.ErrNoSession
	}
	p.mu.Lock()
	if acct, ok := p.accounts[sess.User.Email]; ok {
		acct.password = update.Password
		p.accounts[sess.User.Email] = acct
	}
	p.mu.Unlock()
	p.Emit(identity.Event{Kind: identity.EventUserUpdated, Session: sess})
	return nil
}

// SignOut implements identity.Provider.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.record("SignOut"); err != nil {
		return err
	}
	p.Emit(identity.Event{Kind: identity.EventSignedOut})
	return nil
}

// GetSession implements identity.Provider.
func (p *Provider) GetSession(ctx context.Context) (*identity.Session, error) {
	p.mu.Lock()
	gate := p.probeGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probeErr != nil {
		return nil, p.probeErr
	}
	if p.session == nil {
		return nil, nil
	}
	s := *p.session
	return &s, nil
}

// OnAuthStateChange implements identity.Provider.
func (p *Provider) OnAuthStateChange(fn func(identity.Event)) identity.Subscription {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()
	return identity.SubscriptionFunc(func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	})
}

func newSession(user identity.User) *identity.Session {
	return &identity.Session{
		AccessToken: uuid.NewString(),
		User:        user,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

var _ identity.Provider = (*Provider)(nil)
