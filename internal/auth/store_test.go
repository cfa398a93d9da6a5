package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnexa/learnexa/internal/identity"
	"github.com/learnexa/learnexa/internal/identity/identitytest"
	"github.com/learnexa/learnexa/internal/roles"
)

type stubRoles struct {
	mu      sync.Mutex
	byUser  map[string][]string
	err     error
	lookups int
}

func newStubRoles() *stubRoles {
	return &stubRoles{byUser: make(map[string][]string)}
}

func (s *stubRoles) set(userID string, assigned ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = assigned
}

func (s *stubRoles) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubRoles) RolesFor(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.byUser[userID]...), nil
}

func newTestStore(t *testing.T, p *identitytest.Provider, r *stubRoles) *Store {
	t.Helper()
	s := NewStore(context.Background(), p, r, nil)
	t.Cleanup(s.Close)
	return s
}

func waitSettled(t *testing.T, s *Store) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, ok := s.WaitSettled(ctx)
	require.True(t, ok, "store did not settle")
	return snap
}

func waitFor(t *testing.T, s *Store, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.Snapshot()) }, time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func sessionFor(user identity.User) *identity.Session {
	return &identity.Session{AccessToken: "token", User: user, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestStoreResolvingUntilProbeCompletes(t *testing.T) {
	p := identitytest.New()
	release := p.HoldProbe()
	s := newTestStore(t, p, newStubRoles())

	snap := s.Snapshot()
	assert.Equal(t, StatusResolving, snap.Status)
	assert.False(t, snap.SignedIn())
	assert.False(t, snap.IsAdmin())
	select {
	case <-s.Settled():
		t.Fatal("settled before the probe resolved")
	default:
	}

	release()
	snap = waitSettled(t, s)
	assert.True(t, snap.Settled())
	assert.Nil(t, snap.Identity)
	assert.Empty(t, snap.Roles)
}

func TestStoreProbeRestoresSessionWithRoles(t *testing.T) {
	p := identitytest.New()
	user := p.AddUser("admin@learnexa.test", "password123")
	p.SetSession(sessionFor(user))
	r := newStubRoles()
	r.set(user.ID, roles.RoleAdmin)

	snap := waitSettled(t, newTestStore(t, p, r))
	require.NotNil(t, snap.Identity)
	assert.Equal(t, user.ID, snap.Identity.ID)
	assert.True(t, snap.IsAdmin())
}

func TestStoreProbeFailureSettlesSignedOut(t *testing.T) {
	p := identitytest.New()
	p.FailProbe(errors.New("network unreachable"))
	r := newStubRoles()

	snap := waitSettled(t, newTestStore(t, p, r))
	assert.Equal(t, StatusSettled, snap.Status)
	assert.False(t, snap.SignedIn())
	assert.Zero(t, r.lookups)
}

func TestStoreIgnoresProbeArrivingAfterPush(t *testing.T) {
	p := identitytest.New()
	stale := p.AddUser("stale@learnexa.test", "password123")
	fresh := p.AddUser("fresh@learnexa.test", "password123")
	release := p.HoldProbe()
	s := newTestStore(t, p, newStubRoles())

	p.Emit(identity.Event{Kind: identity.EventSignedIn, Session: sessionFor(fresh)})
	waitFor(t, s, func(snap Snapshot) bool { return snap.Identity != nil && snap.Identity.ID == fresh.ID })

	p.SetSession(sessionFor(stale))
	release()
	assert.Never(t, func() bool {
		snap := s.Snapshot()
		return snap.Identity == nil || snap.Identity.ID != fresh.ID
	}, 150*time.Millisecond, 10*time.Millisecond)
}

func TestStoreSignInResolvesRoles(t *testing.T) {
	p := identitytest.New()
	user := p.AddUser("admin@learnexa.test", "password123")
	r := newStubRoles()
	r.set(user.ID, roles.RoleAdmin)
	s := newTestStore(t, p, r)
	waitSettled(t, s)

	require.NoError(t, s.SignIn(context.Background(), "admin@learnexa.test", "password123"))
	snap := waitFor(t, s, Snapshot.IsAdmin)
	assert.Equal(t, "admin@learnexa.test", snap.Identity.Email)
	assert.Equal(t, []string{roles.RoleAdmin}, snap.Roles)
}

func TestStoreRoleRevocationDemotesOnNextEvent(t *testing.T) {
	p := identitytest.New()
	user := p.AddUser("admin@learnexa.test", "password123")
	r := newStubRoles()
	r.set(user.ID, roles.RoleAdmin)
	s := newTestStore(t, p, r)
	waitSettled(t, s)
	require.NoError(t, s.SignIn(context.Background(), "admin@learnexa.test", "password123"))
	waitFor(t, s, Snapshot.IsAdmin)

	var mu sync.Mutex
	var seen []bool
	cancel := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap.IsAdmin())
		mu.Unlock()
	})
	defer cancel()

	r.set(user.ID)
	p.Emit(identity.Event{Kind: identity.EventUserUpdated, Session: sessionFor(user)})

	snap := waitFor(t, s, func(snap Snapshot) bool { return !snap.IsAdmin() })
	assert.True(t, snap.SignedIn())
	assert.Equal(t, StatusSettled, snap.Status)
	mu.Lock()
	assert.Equal(t, []bool{false}, seen)
	mu.Unlock()
}

func TestStoreRoleLookupFailureFailsClosed(t *testing.T) {
	p := identitytest.New()
	user := p.AddUser("admin@learnexa.test", "password123")
	p.SetSession(sessionFor(user))
	r := newStubRoles()
	r.set(user.ID, roles.RoleAdmin)
	r.fail(errors.New("relation unavailable"))

	snap := waitSettled(t, newTestStore(t, p, r))
	assert.True(t, snap.SignedIn())
	assert.False(t, snap.IsAdmin())
	assert.Empty(t, snap.Roles)
}

func TestStoreSignOutKeepsSettled(t *testing.T) {
	p := identitytest.New()
	user := p.AddUser("user@learnexa.test", "password123")
	p.SetSession(sessionFor(user))
	s := newTestStore(t, p, newStubRoles())
	waitSettled(t, s)

	require.NoError(t, s.SignOut(context.Background()))
	snap := waitFor(t, s, func(snap Snapshot) bool { return !snap.SignedIn() })
	assert.Equal(t, StatusSettled, snap.Status)
	assert.Empty(t, snap.Roles)
}

func TestStoreAppliesEventsInOrder(t *testing.T) {
	p := identitytest.New()
	users := []identity.User{
		p.AddUser("a@learnexa.test", "password123"),
		p.AddUser("b@learnexa.test", "password123"),
		p.AddUser("c@learnexa.test", "password123"),
	}
	s := newTestStore(t, p, newStubRoles())
	waitSettled(t, s)

	var mu sync.Mutex
	var got []string
	cancel := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Identity == nil {
			got = append(got, "-")
			return
		}
		got = append(got, snap.Identity.Email)
	})
	defer cancel()

	var want []string
	for i := 0; i < 30; i++ {
		u := users[i%len(users)]
		if i%4 == 3 {
			p.Emit(identity.Event{Kind: identity.EventSignedOut})
			want = append(want, "-")
			continue
		}
		p.Emit(identity.Event{Kind: identity.EventSignedIn, Session: sessionFor(u)})
		want = append(want, u.Email)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, want, got)
	mu.Unlock()
}

func TestStoreValidatesBeforeCallingProvider(t *testing.T) {
	p := identitytest.New()
	s := newTestStore(t, p, newStubRoles())
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		key  string
	}{
		{"bad email", func() error { return s.SignIn(ctx, "not-an-email", "password123") }, "validation.email"},
		{"short password", func() error { return s.SignIn(ctx, "a@learnexa.test", "short") }, "validation.password"},
		{"missing name", func() error {
			return s.SignUp(ctx, SignUpInput{Email: "a@learnexa.test", Password: "password123"})
		}, "validation.fullName"},
		{"bad signup phone", func() error {
			return s.SignUp(ctx, SignUpInput{Email: "a@learnexa.test", Password: "password123", FullName: "A", Phone: "12"})
		}, "validation.phone"},
		{"bad phone", func() error { return s.SignInWithPhone(ctx, "phone") }, "validation.phone"},
		{"short code", func() error { return s.VerifyOTP(ctx, "+201014812328", "12345") }, "validation.otp"},
		{"letters in code", func() error { return s.VerifyOTP(ctx, "+201014812328", "12a456") }, "validation.otp"},
		{"short new password", func() error { return s.UpdatePassword(ctx, "1234567") }, "validation.password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			assert.Equal(t, tc.key, MessageKey(err))
		})
	}
	assert.Empty(t, p.Calls())
}

func TestStoreClassifiesProviderErrors(t *testing.T) {
	p := identitytest.New()
	p.AddUser("taken@learnexa.test", "password123")
	s := newTestStore(t, p, newStubRoles())
	ctx := context.Background()

	err := s.SignUp(ctx, SignUpInput{Email: "taken@learnexa.test", Password: "password123", FullName: "Taken"})
	assert.Equal(t, ReasonAlreadyRegistered, ReasonOf(err))
	assert.Equal(t, "errors.alreadyRegistered", MessageKey(err))

	err = s.SignIn(ctx, "taken@learnexa.test", "wrong-password")
	assert.Equal(t, ReasonInvalidCredentials, ReasonOf(err))
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	err = s.UpdatePassword(ctx, "new-password")
	assert.Equal(t, ReasonNoSession, ReasonOf(err))

	p.Err = errors.New("User already registered")
	err = s.SignUp(ctx, SignUpInput{Email: "new@learnexa.test", Password: "password123", FullName: "New"})
	assert.Equal(t, ReasonAlreadyRegistered, ReasonOf(err))

	p.Err = errors.New("dial tcp: connection refused")
	err = s.SignIn(ctx, "taken@learnexa.test", "password123")
	assert.Equal(t, ReasonGeneric, ReasonOf(err))
	assert.Equal(t, "errors.generic", MessageKey(err))
	assert.NotContains(t, MessageKey(err), "connection refused")
}

func TestStorePhoneOTPFlow(t *testing.T) {
	p := identitytest.New()
	p.AcceptOTP("+201014812328", "123456")
	s := newTestStore(t, p, newStubRoles())
	waitSettled(t, s)
	ctx := context.Background()

	require.NoError(t, s.SignInWithPhone(ctx, "+201014812328"))
	err := s.VerifyOTP(ctx, "+201014812328", "654321")
	assert.Equal(t, ReasonInvalidOTP, ReasonOf(err))

	require.NoError(t, s.VerifyOTP(ctx, "+201014812328", "123456"))
	snap := waitFor(t, s, Snapshot.SignedIn)
	assert.Equal(t, "+201014812328", snap.Identity.Phone)
	assert.Equal(t, []string{"SignInWithOTP", "VerifyOTP", "VerifyOTP"}, p.Calls())
}

func TestStoreSignUpDoesNotSignIn(t *testing.T) {
	p := identitytest.New()
	s := newTestStore(t, p, newStubRoles())
	waitSettled(t, s)

	require.NoError(t, s.SignUp(context.Background(), SignUpInput{
		Email:    "new@learnexa.test",
		Password: "password123",
		FullName: "New Learner",
		Phone:    "+201014812328",
	}))
	assert.Never(t, func() bool { return s.Snapshot().SignedIn() }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestStoreCloseUnsubscribes(t *testing.T) {
	p := identitytest.New()
	s := NewStore(context.Background(), p, newStubRoles(), nil)
	waitSettled(t, s)
	assert.Equal(t, 1, p.Subscribers())

	s.Close()
	s.Close()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("store goroutine did not exit")
	}
	assert.Equal(t, 0, p.Subscribers())
}

func TestStoreSubscribeCancel(t *testing.T) {
	p := identitytest.New()
	user := p.AddUser("user@learnexa.test", "password123")
	s := newTestStore(t, p, newStubRoles())
	waitSettled(t, s)

	var mu sync.Mutex
	calls := 0
	cancel := s.Subscribe(func(Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	cancel()
	cancel()

	p.Emit(identity.Event{Kind: identity.EventSignedIn, Session: sessionFor(user)})
	waitFor(t, s, Snapshot.SignedIn)
	mu.Lock()
	assert.Zero(t, calls)
	mu.Unlock()
}
