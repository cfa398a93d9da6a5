// Package local is the self-hosted identity provider: accounts in
// Postgres, bcrypt credentials, HS256 access tokens kept in the cookie
// session, OTP challenges in Redis and a Redis pub/sub session stream.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/learnexa/learnexa/internal/identity"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/jobs"
)

// sessionTokenKey holds the access token in the cookie session.
const sessionTokenKey = "identity_token"

// EventBus carries session changes between processes. Deliver reaches
// only the subscribers of the calling process.
type EventBus interface {
	Publish(ctx context.Context, msg Message) error
	Deliver(msg Message)
	Subscribe(clientID string, userID func() string, fn func(Message)) func()
}

// Dispatcher enqueues the provider's background work.
type Dispatcher interface {
	EnqueueOTPDelivery(ctx context.Context, payload jobs.OTPDeliveryPayload) error
	EnqueueProfileProvision(ctx context.Context, payload jobs.ProfileProvisionPayload) error
}

// Deps are shared by every client of a process.
type Deps struct {
	Users  UserRepository
	Tokens *Tokens
	OTP    *OTPStore
	Bus    EventBus
	Jobs   Dispatcher
	Logger *slog.Logger
}

// Factory hands out clients bound to the cookie session of a request.
type Factory struct {
	deps Deps
}

// NewFactory constructs a Factory.
func NewFactory(deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{deps: deps}
}

// Client implements auth.ClientFactory.
func (f *Factory) Client(w http.ResponseWriter, r *http.Request) (identity.Provider, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil, errors.New("local: no cookie session in request context")
	}
	return f.ForSession(sess), nil
}

// ForSession returns a client bound to sess.
func (f *Factory) ForSession(sess *shared.Session) *Client {
	return &Client{deps: f.deps, sess: sess, clientID: sess.ClientID()}
}

// Client is the identity provider as seen by one browser.
type Client struct {
	deps     Deps
	sess     *shared.Session
	clientID string

	mu   sync.Mutex
	user *identity.User
}

// SignUp implements identity.Provider. The account is not signed in.
func (c *Client) SignUp(ctx context.Context, email, password string, profile identity.ProfileFields) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("local: hash password: %w", err)
	}
	meta := map[string]string{"full_name": profile.FullName}
	if profile.Phone != "" {
		meta["phone"] = profile.Phone
	}
	user, err := c.deps.Users.Create(ctx, NewAccount{Email: strings.TrimSpace(email), PasswordHash: string(hash), Metadata: meta})
	if err != nil {
		return err
	}
	c.provision(ctx, user.ID, profile.FullName, profile.Phone)
	return nil
}

// SignInWithPassword implements identity.Provider.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	account, err := c.deps.Users.ByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrUserNotFound) {
		return identity.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if account.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return identity.ErrInvalidCredentials
	}
	return c.establish(ctx, account.User, identity.EventSignedIn)
}

// SignInWithOTP implements identity.Provider.
func (c *Client) SignInWithOTP(ctx context.Context, phone string) error {
	code, expires, err := c.deps.OTP.Create(ctx, phone)
	if err != nil {
		return err
	}
	if err := c.deps.Jobs.EnqueueOTPDelivery(ctx, jobs.OTPDeliveryPayload{Phone: phone, Code: code, ExpiresAt: expires}); err != nil {
		return fmt.Errorf("local: enqueue otp: %w", err)
	}
	return nil
}

// VerifyOTP implements identity.Provider. The first verified sign-in of a
// phone creates its account.
func (c *Client) VerifyOTP(ctx context.Context, phone, token string, typ identity.OTPType) error {
	if typ != identity.OTPTypeSMS {
		return fmt.Errorf("local: unsupported otp type %q", typ)
	}
	if err := c.deps.OTP.Verify(ctx, phone, token); err != nil {
		return err
	}
	user, created, err := c.deps.Users.FindOrCreateByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if created {
		c.provision(ctx, user.ID, "", phone)
	}
	return c.establish(ctx, user, identity.EventSignedIn)
}

// UpdateUser implements identity.Provider.
func (c *Client) UpdateUser(ctx context.Context, update identity.UserUpdate) error {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return identity.ErrNoSession
	}
	if update.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(update.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("local: hash password: %w", err)
		}
		if err := c.deps.Users.UpdatePassword(ctx, sess.User.ID, string(hash)); err != nil {
			return err
		}
	}
	user := sess.User
	c.publish(ctx, Message{Kind: identity.EventUserUpdated, UserID: user.ID, User: &user, ExpiresAt: sess.ExpiresAt})
	return nil
}

// SignOut implements identity.Provider.
func (c *Client) SignOut(ctx context.Context) error {
	c.clear()
	c.publish(ctx, Message{Kind: identity.EventSignedOut, ClientID: c.clientID})
	return nil
}

// GetSession implements identity.Provider. Expired tokens inside the
// refresh window are replaced and a TOKEN_REFRESHED event is published.
func (c *Client) GetSession(ctx context.Context) (*identity.Session, error) {
	raw := c.sess.Get(sessionTokenKey)
	if raw == "" {
		return nil, nil
	}
	claims, err := c.deps.Tokens.Parse(raw)
	if err != nil {
		c.clear()
		return nil, nil
	}
	account, err := c.deps.Users.ByID(ctx, claims.UserID)
	if errors.Is(err, ErrUserNotFound) {
		c.clear()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if claims.Stale {
		token, expires, err := c.deps.Tokens.Issue(account.ID)
		if err != nil {
			return nil, err
		}
		raw, claims.ExpiresAt = token, expires
		c.sess.Set(sessionTokenKey, raw)
		user := account.User
		c.publish(ctx, Message{Kind: identity.EventTokenRefreshed, ClientID: c.clientID, User: &user, ExpiresAt: expires})
	}
	c.remember(&account.User)
	return &identity.Session{AccessToken: raw, User: account.User, ExpiresAt: claims.ExpiresAt}, nil
}

// OnAuthStateChange implements identity.Provider.
func (c *Client) OnAuthStateChange(fn func(identity.Event)) identity.Subscription {
	cancel := c.deps.Bus.Subscribe(c.clientID, c.sess.User, func(msg Message) {
		fn(c.event(msg))
	})
	return identity.SubscriptionFunc(cancel)
}

func (c *Client) event(msg Message) identity.Event {
	ev := identity.Event{Kind: msg.Kind}
	if msg.Kind == identity.EventSignedOut {
		c.remember(nil)
		return ev
	}
	user := msg.User
	if user == nil {
		user = c.cached(msg.UserID)
	}
	if user == nil {
		return ev
	}
	c.remember(user)
	ev.Session = &identity.Session{User: *user, ExpiresAt: msg.ExpiresAt}
	return ev
}

// cached returns the last known user record for userID, loading it when
// this client has not seen it yet.
func (c *Client) cached(userID string) *identity.User {
	c.mu.Lock()
	user := c.user
	c.mu.Unlock()
	if user != nil && user.ID == userID {
		copied := *user
		return &copied
	}
	if userID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	account, err := c.deps.Users.ByID(ctx, userID)
	if err != nil {
		c.deps.Logger.Warn("load updated user", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	return &account.User
}

func (c *Client) remember(user *identity.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user == nil {
		c.user = nil
		return
	}
	copied := *user
	c.user = &copied
}

func (c *Client) establish(ctx context.Context, user identity.User, kind identity.EventKind) error {
	token, expires, err := c.deps.Tokens.Issue(user.ID)
	if err != nil {
		return err
	}
	c.sess.Set(sessionTokenKey, token)
	c.sess.SetUser(user.ID)
	c.remember(&user)
	c.publish(ctx, Message{Kind: kind, ClientID: c.clientID, User: &user, ExpiresAt: expires})
	return nil
}

func (c *Client) clear() {
	c.sess.Delete(sessionTokenKey)
	c.sess.SetUser("")
	c.remember(nil)
}

// publish falls back to local delivery when the bus is unreachable, so the
// stores of this process still follow the cookie session.
func (c *Client) publish(ctx context.Context, msg Message) {
	if err := c.deps.Bus.Publish(ctx, msg); err != nil {
		c.deps.Logger.Warn("publish auth event", slog.String("kind", string(msg.Kind)), slog.Any("error", err))
		c.deps.Bus.Deliver(msg)
	}
}

func (c *Client) provision(ctx context.Context, userID, fullName, phone string) {
	err := c.deps.Jobs.EnqueueProfileProvision(ctx, jobs.ProfileProvisionPayload{UserID: userID, FullName: fullName, Phone: phone})
	if err != nil {
		c.deps.Logger.Error("enqueue profile provision", slog.String("user_id", userID), slog.Any("error", err))
	}
}

var _ identity.Provider = (*Client)(nil)
