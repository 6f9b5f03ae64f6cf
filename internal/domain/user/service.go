// internal/domain/user/service.go
package user

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/apiclient"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/session"
)

// API is the subset of the API client auth uses
type API interface {
	Get(ctx context.Context, endpoint string, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
	Post(ctx context.Context, endpoint string, payload interface{}, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
}

// AuthService owns the current user and the session lifecycle
type AuthService struct {
	mu        sync.RWMutex
	user      *User
	listeners []func(*User)

	session *session.Session
	api     API
	log     logrus.FieldLogger
}

// NewAuthService creates the auth container. A logout broadcast on the
// session drops the current user.
func NewAuthService(sess *session.Session, api API, log logrus.FieldLogger) *AuthService {
	s := &AuthService{
		session: sess,
		api:     api,
		log:     log.WithField("component", "auth"),
	}
	sess.Subscribe(func(ev session.LogoutEvent) {
		s.mu.Lock()
		had := s.user != nil
		s.user = nil
		s.mu.Unlock()
		if had {
			s.log.WithField("reason", ev.Reason).Info("Signed out")
			s.emit()
		}
	})
	return s
}

// Rehydrate restores the cached user. The legacy key is read when the
// current one is absent and migrated forward.
func (s *AuthService) Rehydrate(ctx context.Context) error {
	store := s.session.Store()

	var u User
	ok, err := storage.GetJSON(ctx, store, session.KeyCurrentUser, &u)
	if err != nil {
		return err
	}
	if !ok {
		ok, err = storage.GetJSON(ctx, store, session.KeyLegacyUser, &u)
		if err != nil {
			return err
		}
		if ok {
			if err := storage.SetJSON(ctx, store, session.KeyCurrentUser, u); err != nil {
				s.log.WithError(err).Warn("Failed to migrate cached user")
			}
		}
	}
	if !ok {
		return nil
	}

	s.setUser(&u)
	return nil
}

// Login signs in with email and password
func (s *AuthService) Login(ctx context.Context, email, password string) Result {
	env, err := s.api.Post(ctx, "/auth/login", LoginRequest{Email: email, Password: password})
	if err != nil {
		return Result{Error: failureMessage(err, "Login failed")}
	}
	return s.accept(ctx, env, "Login failed")
}

// Register creates an account. When the server does not hand back both the
// user and a token, it signs in with the same credentials to finish.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) Result {
	env, err := s.api.Post(ctx, "/auth/register", req)
	if err != nil {
		return Result{Error: failureMessage(err, "Registration failed")}
	}

	u := DecodeUser(env.Data)
	access, _ := apiclient.ParseTokens(env.Data)
	if u != nil && access != "" {
		return s.accept(ctx, env, "Registration failed")
	}

	s.log.WithField("email", req.Email).Debug("Registration returned no session, signing in")
	res := s.Login(ctx, req.Email, req.Password)
	if !res.Success && res.Error == "" {
		res.Error = "Registration succeeded but sign in failed"
	}
	return res
}

// Logout notifies the server, ignoring failures, then clears local state
func (s *AuthService) Logout(ctx context.Context) {
	if s.session.AuthToken(ctx) != "" {
		if _, err := s.api.Post(ctx, "/auth/logout", nil); err != nil {
			s.log.WithError(err).Debug("Logout notification failed")
		}
	}
	if err := s.session.Clear(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear session")
	}
	s.setUser(nil)
	s.session.Broadcast(session.LogoutEvent{Reason: session.ReasonUser})
}

// UpdateProfile re-validates the session against the server profile and
// applies the change to the cached user whatever the outcome
func (s *AuthService) UpdateProfile(ctx context.Context, update ProfileUpdate) Result {
	current := s.CurrentUser()
	if current == nil {
		return Result{Error: "Not signed in"}
	}

	base := *current
	if env, err := s.api.Get(ctx, "/auth/profile"); err != nil {
		s.log.WithError(err).Debug("Profile fetch failed, updating local copy")
	} else if fetched := DecodeUser(env.Data); fetched != nil {
		base = *fetched
	}

	updated := update.Apply(base)
	if err := storage.SetJSON(ctx, s.session.Store(), session.KeyCurrentUser, updated); err != nil {
		s.log.WithError(err).Warn("Failed to cache user")
	}
	s.setUser(&updated)
	return Result{Success: true, User: &updated}
}

// CurrentUser returns a copy of the signed-in user, or nil
func (s *AuthService) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a user is signed in
func (s *AuthService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// IsAdmin reports whether the signed-in user has the admin role
func (s *AuthService) IsAdmin() bool {
	return s.CurrentUser().IsAdmin()
}

// OnChange registers fn to be called with the new user (nil on sign out)
func (s *AuthService) OnChange(fn func(*User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// accept stores the user and tokens from a successful auth response
func (s *AuthService) accept(ctx context.Context, env *apiclient.Envelope, fallback string) Result {
	u := DecodeUser(env.Data)
	if u == nil {
		msg := messageOf(env.Data)
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = fallback
		}
		return Result{Error: msg}
	}

	if access, refresh := apiclient.ParseTokens(env.Data); access != "" {
		if err := s.session.SetTokens(ctx, access, refresh); err != nil {
			s.log.WithError(err).Warn("Failed to persist tokens")
		}
	}
	if err := storage.SetJSON(ctx, s.session.Store(), session.KeyCurrentUser, u); err != nil {
		s.log.WithError(err).Warn("Failed to cache user")
	}

	s.log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("Signed in")
	s.setUser(u)
	out := *u
	return Result{Success: true, User: &out}
}

func (s *AuthService) setUser(u *User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	s.emit()
}

func (s *AuthService) emit() {
	s.mu.RLock()
	var u *User
	if s.user != nil {
		cp := *s.user
		u = &cp
	}
	listeners := make([]func(*User), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(u)
	}
}

// failureMessage picks the best message out of a failed call
func failureMessage(err error, fallback string) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if msg := messageOf(apiErr.Body); msg != "" {
			return msg
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	var authErr *apiclient.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
