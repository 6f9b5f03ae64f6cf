// Package session holds the credentials and persisted state shared by the
// API client and the storefront containers.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
)

// Persisted storage keys
const (
	KeyAuthToken    = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyCurrentUser  = "current-user"
	KeyLegacyUser   = "eid-current-user"
	KeyCart         = "eid-cart"
	KeyOrders       = "eid-orders"
)

// TokenKeys are probed in order when looking up the access token. Older
// builds of the storefront wrote the token under any one of them.
var TokenKeys = []string{"auth_token", "access_token", "accessToken", "token", "jwt", "id_token"}

// Session is the explicit session context injected into the API client and
// every container.
type Session struct {
	store   storage.Store
	jar     http.CookieJar
	baseURL *url.URL
	log     logrus.FieldLogger

	mu       sync.RWMutex
	override string

	listenersMu sync.Mutex
	listeners   map[int]func(LogoutEvent)
	nextID      int
}

// New creates a session over store. baseURL scopes the cookie jar.
func New(store storage.Store, baseURL string, log logrus.FieldLogger) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Session{
		store:     store,
		jar:       jar,
		baseURL:   u,
		log:       log.WithField("component", "session"),
		listeners: make(map[int]func(LogoutEvent)),
	}, nil
}

// Store returns the persisted storage shared by the containers
func (s *Session) Store() storage.Store {
	return s.store
}

// Jar returns the cookie jar the HTTP transport should use
func (s *Session) Jar() http.CookieJar {
	return s.jar
}

// AuthToken resolves the access token: runtime override first, then the
// persisted candidate keys, then a matching cookie.
func (s *Session) AuthToken(ctx context.Context) string {
	s.mu.RLock()
	override := s.override
	s.mu.RUnlock()
	if override != "" {
		return override
	}

	for _, key := range TokenKeys {
		v, ok, err := s.store.Get(ctx, key)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("token lookup failed")
			continue
		}
		if ok && v != "" {
			return v
		}
	}

	cookies := s.jar.Cookies(s.baseURL)
	for _, key := range TokenKeys {
		for _, c := range cookies {
			if c.Name == key && c.Value != "" {
				return c.Value
			}
		}
	}
	return ""
}

// RefreshToken returns the persisted refresh token, or "" when absent
func (s *Session) RefreshToken(ctx context.Context) string {
	v, ok, err := s.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		s.log.WithError(err).Warn("refresh token lookup failed")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// SetTokens persists the access token (and the refresh token when rotated)
// and updates the runtime override so the next lookup sees it immediately.
func (s *Session) SetTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	s.override = access
	s.mu.Unlock()

	if access != "" {
		if err := s.store.Set(ctx, KeyAuthToken, access); err != nil {
			return fmt.Errorf("failed to persist access token: %w", err)
		}
	}
	if refresh != "" {
		if err := s.store.Set(ctx, KeyRefreshToken, refresh); err != nil {
			return fmt.Errorf("failed to persist refresh token: %w", err)
		}
	}
	return nil
}

// Clear drops every stored credential and the cached user
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.override = ""
	s.mu.Unlock()

	keys := append([]string{}, TokenKeys...)
	keys = append(keys, KeyRefreshToken, KeyCurrentUser, KeyLegacyUser)

	// the jar keys cookies by path, so expire each name at every path that
	// can reach the base URL
	var expired []*http.Cookie
	for _, path := range cookiePaths(s.baseURL.Path) {
		for _, name := range TokenKeys {
			expired = append(expired, &http.Cookie{Name: name, Path: path, MaxAge: -1})
		}
	}
	s.jar.SetCookies(s.baseURL, expired)

	if err := s.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// cookiePaths lists "/" and every prefix of path, with and without a
// trailing slash
func cookiePaths(path string) []string {
	paths := []string{"/"}
	prefix := ""
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		prefix += "/" + seg
		paths = append(paths, prefix, prefix+"/")
	}
	return paths
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Opaque tokens report false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
