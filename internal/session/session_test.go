package session

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/pkg/logger"
)

const baseURL = "http://api.eid.test/api/v1"

func newSession(t *testing.T) (*Session, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	s, err := New(store, baseURL, logger.Discard())
	require.NoError(t, err)
	return s, store
}

func TestAuthToken_ResolutionOrder(t *testing.T) {
	ctx := context.Background()
	s, store := newSession(t)

	assert.Empty(t, s.AuthToken(ctx))

	// cookie is the last resort
	u, _ := url.Parse(baseURL)
	s.Jar().SetCookies(u, []*http.Cookie{{Name: "jwt", Value: "from-cookie", Path: "/"}})
	assert.Equal(t, "from-cookie", s.AuthToken(ctx))

	// legacy keys beat cookies, earlier keys beat later ones
	require.NoError(t, store.Set(ctx, "id_token", "legacy-id"))
	assert.Equal(t, "legacy-id", s.AuthToken(ctx))
	require.NoError(t, store.Set(ctx, "accessToken", "camel"))
	assert.Equal(t, "camel", s.AuthToken(ctx))

	// the runtime override wins over storage
	require.NoError(t, s.SetTokens(ctx, "fresh", "r1"))
	assert.Equal(t, "fresh", s.AuthToken(ctx))
	assert.Equal(t, "r1", s.RefreshToken(ctx))
}

func TestSetTokens_KeepsRefreshWhenNotRotated(t *testing.T) {
	ctx := context.Background()
	s, store := newSession(t)

	require.NoError(t, s.SetTokens(ctx, "a1", "r1"))
	require.NoError(t, s.SetTokens(ctx, "a2", ""))

	assert.Equal(t, "r1", s.RefreshToken(ctx))
	v, _, _ := store.Get(ctx, KeyAuthToken)
	assert.Equal(t, "a2", v)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, store := newSession(t)

	require.NoError(t, s.SetTokens(ctx, "a1", "r1"))
	require.NoError(t, store.Set(ctx, "token", "legacy"))
	require.NoError(t, store.Set(ctx, KeyCurrentUser, `{"id":"u1"}`))
	require.NoError(t, store.Set(ctx, KeyCart, `[]`))
	u, _ := url.Parse(baseURL)
	s.Jar().SetCookies(u, []*http.Cookie{
		{Name: "token", Value: "c", Path: "/"},
		{Name: "jwt", Value: "scoped", Path: "/api/v1"},
		{Name: "access_token", Value: "scoped-slash", Path: "/api/"},
	})

	require.NoError(t, s.Clear(ctx))

	assert.Empty(t, s.AuthToken(ctx))
	assert.Empty(t, s.Jar().Cookies(u))
	assert.Empty(t, s.RefreshToken(ctx))
	_, ok, _ := store.Get(ctx, KeyCurrentUser)
	assert.False(t, ok)
	// the cart is not a credential
	_, ok, _ = store.Get(ctx, KeyCart)
	assert.True(t, ok)
}

func TestCookiePaths(t *testing.T) {
	assert.Equal(t, []string{"/"}, cookiePaths(""))
	assert.Equal(t, []string{"/", "/api", "/api/", "/api/v1", "/api/v1/"}, cookiePaths("/api/v1/"))
}

func TestSubscribeAndBroadcast(t *testing.T) {
	s, _ := newSession(t)

	var got []LogoutReason
	unsubscribe := s.Subscribe(func(ev LogoutEvent) { got = append(got, ev.Reason) })

	s.Broadcast(LogoutEvent{Reason: ReasonRefreshFailed})
	unsubscribe()
	s.Broadcast(LogoutEvent{Reason: ReasonSessionReplaced})

	assert.Equal(t, []LogoutReason{ReasonRefreshFailed}, got)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("whatever"))
	require.NoError(t, err)

	got, ok := TokenExpiry(token)
	assert.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = TokenExpiry("opaque-token")
	assert.False(t, ok)
}
