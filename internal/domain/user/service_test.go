package user

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/your-org/eid-storefront/internal/apiclient"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/pkg/logger"
	"github.com/your-org/eid-storefront/internal/session"
)

type reply struct {
	data string
	err  error
}

type fakeAPI struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   []string
}

func (f *fakeAPI) on(call string, r reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replies == nil {
		f.replies = make(map[string][]reply)
	}
	f.replies[call] = append(f.replies[call], r)
}

func (f *fakeAPI) next(call string) (*apiclient.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	queue := f.replies[call]
	if len(queue) == 0 {
		return nil, errors.New("no reply for " + call)
	}
	r := queue[0]
	if len(queue) > 1 {
		f.replies[call] = queue[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &apiclient.Envelope{Success: true, Data: json.RawMessage(r.data)}, nil
}

func (f *fakeAPI) Get(_ context.Context, endpoint string, _ ...apiclient.RequestOption) (*apiclient.Envelope, error) {
	return f.next("GET " + endpoint)
}

func (f *fakeAPI) Post(_ context.Context, endpoint string, _ interface{}, _ ...apiclient.RequestOption) (*apiclient.Envelope, error) {
	return f.next("POST " + endpoint)
}

type AuthServiceTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *storage.MemoryStore
	sess  *session.Session
	api   *fakeAPI
	auth  *AuthService
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewMemoryStore()
	sess, err := session.New(s.store, "http://api.test/api/v1", logger.Discard())
	s.Require().NoError(err)
	s.sess = sess
	s.api = &fakeAPI{}
	s.auth = NewAuthService(s.sess, s.api, logger.Discard())
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func (s *AuthServiceTestSuite) TestLoginStoresUserAndTokens() {
	s.api.on("POST /auth/login", reply{data: `{"user":{"id":"u1","name":"Ayesha","email":"a@example.com","role":"ADMIN"},"accessToken":"acc","refreshToken":"ref"}`})

	var seen []*User
	s.auth.OnChange(func(u *User) { seen = append(seen, u) })

	res := s.auth.Login(s.ctx, "a@example.com", "secret")
	s.Require().True(res.Success, res.Error)
	s.Equal("u1", res.User.ID)
	s.True(s.auth.IsAuthenticated())
	s.True(s.auth.IsAdmin())
	s.Equal("acc", s.sess.AuthToken(s.ctx))
	s.Equal("ref", s.sess.RefreshToken(s.ctx))

	var cached User
	ok, err := storage.GetJSON(s.ctx, s.store, session.KeyCurrentUser, &cached)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("a@example.com", cached.Email)

	s.Require().Len(seen, 1)
	s.Equal("u1", seen[0].ID)
}

func (s *AuthServiceTestSuite) TestLoginFailureMessages() {
	s.api.on("POST /auth/login", reply{err: &apiclient.APIError{
		Status:  400,
		Message: "HTTP 400: Bad Request",
		Body:    []byte(`{"success":false,"errors":[{"msg":"Email is required"}]}`),
	}})
	res := s.auth.Login(s.ctx, "", "x")
	s.False(res.Success)
	s.Equal("Email is required", res.Error)

	s.api.replies = nil
	s.api.on("POST /auth/login", reply{data: `{"message":"Account locked"}`})
	res = s.auth.Login(s.ctx, "a@example.com", "x")
	s.False(res.Success)
	s.Equal("Account locked", res.Error)

	s.api.replies = nil
	s.api.on("POST /auth/login", reply{err: errors.New("dial tcp: connection refused")})
	res = s.auth.Login(s.ctx, "a@example.com", "x")
	s.False(res.Success)
	s.Equal("dial tcp: connection refused", res.Error)

	s.False(s.auth.IsAuthenticated())
}

func (s *AuthServiceTestSuite) TestRegisterFallsBackToLogin() {
	s.api.on("POST /auth/register", reply{data: `{"user":{"id":"u2","email":"new@example.com"}}`})
	s.api.on("POST /auth/login", reply{data: `{"data":{"user":{"id":"u2","email":"new@example.com"},"tokens":{"accessToken":"acc2"}}}`})

	res := s.auth.Register(s.ctx, RegisterRequest{Name: "New", Email: "new@example.com", Password: "secret123"})
	s.Require().True(res.Success, res.Error)
	s.Equal([]string{"POST /auth/register", "POST /auth/login"}, s.api.calls)
	s.Equal("acc2", s.sess.AuthToken(s.ctx))
}

func (s *AuthServiceTestSuite) TestRegisterWithSessionSkipsLogin() {
	s.api.on("POST /auth/register", reply{data: `{"user":{"id":"u3","email":"x@example.com"},"token":"acc3"}`})

	res := s.auth.Register(s.ctx, RegisterRequest{Email: "x@example.com", Password: "pw"})
	s.Require().True(res.Success)
	s.Equal([]string{"POST /auth/register"}, s.api.calls)
}

func (s *AuthServiceTestSuite) TestRegisterFallbackLoginFails() {
	s.api.on("POST /auth/register", reply{data: `{"message":"Check your inbox"}`})
	s.api.on("POST /auth/login", reply{err: &apiclient.APIError{Status: 401, Message: "Invalid credentials"}})

	res := s.auth.Register(s.ctx, RegisterRequest{Email: "x@example.com", Password: "pw"})
	s.False(res.Success)
	s.Equal("Invalid credentials", res.Error)
}

func (s *AuthServiceTestSuite) TestLogoutClearsAndBroadcasts() {
	s.api.on("POST /auth/login", reply{data: `{"user":{"id":"u1","email":"a@example.com"},"accessToken":"acc","refreshToken":"ref"}`})
	s.api.on("POST /auth/logout", reply{err: errors.New("server down")})
	s.Require().True(s.auth.Login(s.ctx, "a@example.com", "pw").Success)

	var reasons []session.LogoutReason
	s.sess.Subscribe(func(ev session.LogoutEvent) { reasons = append(reasons, ev.Reason) })

	s.auth.Logout(s.ctx)

	s.False(s.auth.IsAuthenticated())
	s.Empty(s.sess.AuthToken(s.ctx))
	s.Empty(s.sess.RefreshToken(s.ctx))
	_, ok, _ := s.store.Get(s.ctx, session.KeyCurrentUser)
	s.False(ok)
	s.Equal([]session.LogoutReason{session.ReasonUser}, reasons)
	s.Contains(s.api.calls, "POST /auth/logout")
}

func (s *AuthServiceTestSuite) TestSessionLogoutDropsUser() {
	s.api.on("POST /auth/login", reply{data: `{"user":{"id":"u1","email":"a@example.com"},"accessToken":"acc"}`})
	s.Require().True(s.auth.Login(s.ctx, "a@example.com", "pw").Success)

	s.sess.Broadcast(session.LogoutEvent{Reason: session.ReasonSessionReplaced})
	s.False(s.auth.IsAuthenticated())
}

func (s *AuthServiceTestSuite) TestUpdateProfileAppliedEvenWhenFetchFails() {
	s.api.on("POST /auth/login", reply{data: `{"user":{"id":"u1","name":"Old","email":"a@example.com"},"accessToken":"acc"}`})
	s.api.on("GET /auth/profile", reply{err: &apiclient.APIError{Status: 500, Message: "boom"}})
	s.Require().True(s.auth.Login(s.ctx, "a@example.com", "pw").Success)

	name := "Ayesha Rahman"
	res := s.auth.UpdateProfile(s.ctx, ProfileUpdate{Name: &name})
	s.Require().True(res.Success)
	s.Equal("Ayesha Rahman", s.auth.CurrentUser().Name)

	var cached User
	_, err := storage.GetJSON(s.ctx, s.store, session.KeyCurrentUser, &cached)
	s.Require().NoError(err)
	s.Equal("Ayesha Rahman", cached.Name)
}

func (s *AuthServiceTestSuite) TestUpdateProfileUsesServerCopy() {
	s.api.on("POST /auth/login", reply{data: `{"user":{"id":"u1","email":"a@example.com","role":"USER"},"accessToken":"acc"}`})
	s.api.on("GET /auth/profile", reply{data: `{"user":{"id":"u1","email":"a@example.com","phone":"019","role":"ADMIN"}}`})
	s.Require().True(s.auth.Login(s.ctx, "a@example.com", "pw").Success)

	district := "Chattogram"
	res := s.auth.UpdateProfile(s.ctx, ProfileUpdate{District: &district})
	s.Require().True(res.Success)
	s.Equal("019", res.User.Phone)
	s.Equal("Chattogram", res.User.District)
	s.True(s.auth.IsAdmin())
}

func (s *AuthServiceTestSuite) TestUpdateProfileRequiresUser() {
	res := s.auth.UpdateProfile(s.ctx, ProfileUpdate{})
	s.False(res.Success)
	s.Empty(s.api.calls)
}

func (s *AuthServiceTestSuite) TestRehydrateLegacyKey() {
	s.Require().NoError(storage.SetJSON(s.ctx, s.store, session.KeyLegacyUser, User{ID: "old", Email: "legacy@example.com", Role: RoleAdmin}))

	s.Require().NoError(s.auth.Rehydrate(s.ctx))
	s.True(s.auth.IsAdmin())

	_, ok, _ := s.store.Get(s.ctx, session.KeyCurrentUser)
	s.True(ok)
}
