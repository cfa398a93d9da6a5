// Package identity defines the contract of the identity provider the site
// consumes: credential checks, OTP challenges and a push stream of session
// changes.
package identity

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by providers. Callers classify with errors.Is.
var (
	ErrAlreadyRegistered  = errors.New("identity: user already registered")
	ErrInvalidCredentials = errors.New("identity: invalid login credentials")
	ErrInvalidOTP         = errors.New("identity: token has expired or is invalid")
	ErrRateLimited        = errors.New("identity: too many requests")
	ErrNoSession          = errors.New("identity: no active session")
)

// User is the opaque identity record handed out by the provider.
type User struct {
	ID        string            `json:"id"`
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Session is an authenticated identity plus its token material. Sessions
// delivered through the change stream carry no AccessToken.
type Session struct {
	AccessToken string
	User        User
	ExpiresAt   time.Time
}

// EventKind names a session change.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is one element of the session stream. Session is nil when the
// client is signed out.
type Event struct {
	Kind    EventKind
	Session *Session
}

// ProfileFields is the sign-up metadata used to provision the profile row.
type ProfileFields struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

// OTPType qualifies a VerifyOTP call.
type OTPType string

// OTPTypeSMS verifies a code sent by text message.
const OTPTypeSMS OTPType = "sms"

// UserUpdate carries the mutable user attributes.
type UserUpdate struct {
	Password string
}

// Subscription is returned by OnAuthStateChange.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Unsubscribe implements Subscription.
func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Provider is a client of the identity service bound to one browser.
type Provider interface {
	SignUp(ctx context.Context, email, password string, profile ProfileFields) error
	SignInWithPassword(ctx context.Context, email, password string) error
	SignInWithOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, token string, typ OTPType) error
	UpdateUser(ctx context.Context, update UserUpdate) error
	SignOut(ctx context.Context) error
	// GetSession is the one-shot probe used before the first pushed event.
	// It returns (nil, nil) when the client is signed out.
	GetSession(ctx context.Context) (*Session, error)
	// OnAuthStateChange registers fn for every later session change. Events
	// are delivered in the order they occur.
	OnAuthStateChange(fn func(Event)) Subscription
}
