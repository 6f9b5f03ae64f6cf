package storefront

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/devapi"
	"github.com/your-org/eid-storefront/internal/domain/cart"
	"github.com/your-org/eid-storefront/internal/domain/order"
	"github.com/your-org/eid-storefront/internal/domain/user"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/pkg/logger"
	"github.com/your-org/eid-storefront/internal/pkg/notify"
	"github.com/your-org/eid-storefront/internal/session"
	"golang.org/x/crypto/bcrypt"
)

const password = "eidmubarak26"

type AppTestSuite struct {
	suite.Suite
	ctx    context.Context
	server *httptest.Server
	cfg    *config.Config
}

func (s *AppTestSuite) SetupTest() {
	s.ctx = context.Background()

	s.cfg = config.FromEnv()
	s.cfg.App.Environment = "test"
	s.cfg.Storage.Driver = config.StorageMemory
	s.cfg.Sync.Policy = config.SyncPolicyKeep
	s.cfg.DevAPI.BcryptCost = bcrypt.MinCost

	srv, err := devapi.NewServer(s.cfg, logger.Discard())
	s.Require().NoError(err)
	s.server = httptest.NewServer(srv.Handler())
	s.cfg.API.BaseURL = s.server.URL + "/api/v1"
}

func (s *AppTestSuite) TearDownTest() {
	s.server.Close()
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func (s *AppTestSuite) newApp(store storage.Store) (*App, *notify.Recorder) {
	rec := &notify.Recorder{}
	app, err := New(s.ctx, s.cfg, logger.Discard(), WithStore(store), WithNotifier(rec))
	s.Require().NoError(err)
	s.Require().NoError(app.Start(s.ctx))
	return app, rec
}

func (s *AppTestSuite) register(app *App, email string) {
	res := app.Auth.Register(s.ctx, user.RegisterRequest{
		Name:     "Karim",
		Email:    email,
		Phone:    "01700000000",
		Password: password,
	})
	s.Require().True(res.Success, res.Error)
	s.Require().True(app.Auth.IsAuthenticated())
}

func silkPanjabi(size string, qty int) cart.Line {
	return cart.Line{ProductID: "p1", Name: "Silk Panjabi", Price: decimal.NewFromInt(2200), Size: size, Quantity: qty}
}

func (s *AppTestSuite) TestCheckout() {
	store := storage.NewMemoryStore()
	app, rec := s.newApp(store)
	s.register(app, "karim@example.com")

	app.Cart.Add(s.ctx, silkPanjabi("M", 1))
	app.Cart.Add(s.ctx, silkPanjabi("M", 1))
	app.Cart.Add(s.ctx, cart.Line{ProductID: "p3", Name: "Attar Gift Box", Price: decimal.NewFromInt(950), Quantity: 1})
	s.Equal(3, app.Cart.ItemCount())
	s.Equal("5350", app.Cart.Subtotal().String())
	s.Empty(app.Cart.Pending())

	o, err := app.Checkout(s.ctx, order.Customer{Name: "Karim", Phone: "01700000000", Address: "House 4", District: "Sylhet"}, "cod")
	s.Require().NoError(err)
	s.True(o.Synced)
	s.Equal("karim@example.com", o.Customer.Email)
	s.Equal("5350", o.Total.String(), "free delivery above the threshold")
	s.Equal(order.StatusPending, o.Status)

	s.Empty(app.Cart.Lines())
	s.Contains(rec.Messages(), notify.Message{Level: notify.LevelSuccess, Text: "Order " + o.ID + " placed"})
	s.Empty(rec.Errors())

	html, err := app.ReceiptHTML(o.ID)
	s.Require().NoError(err)
	s.Contains(html, "Attar Gift Box")
	s.Contains(html, "Karim")

	_, err = app.ReceiptHTML("missing")
	s.ErrorIs(err, order.ErrOrderNotFound)

	_, err = app.Checkout(s.ctx, order.Customer{Name: "Karim"}, "cod")
	s.ErrorIs(err, ErrEmptyCart)
}

func (s *AppTestSuite) TestStateSurvivesRestart() {
	store := storage.NewMemoryStore()
	first, _ := s.newApp(store)
	s.register(first, "restart@example.com")
	first.Cart.Add(s.ctx, silkPanjabi("L", 2))
	_, err := first.Checkout(s.ctx, order.Customer{Name: "R", Phone: "1"}, "bkash")
	s.Require().NoError(err)
	first.Cart.Add(s.ctx, silkPanjabi("S", 1))

	second, _ := s.newApp(store)
	s.True(second.Auth.IsAuthenticated())
	s.Equal("restart@example.com", second.Auth.CurrentUser().Email)
	s.Require().Len(second.Cart.Lines(), 1)
	s.Equal("S", second.Cart.Lines()[0].Size)
	s.Require().Len(second.Orders.All(), 1)
	s.Equal("bkash", second.Orders.All()[0].PaymentMethod)
}

func (s *AppTestSuite) TestCheckoutWhenServerIsDown() {
	app, rec := s.newApp(storage.NewMemoryStore())
	s.register(app, "offline@example.com")
	app.Cart.Add(s.ctx, silkPanjabi("M", 1))

	s.server.Close()

	o, err := app.Checkout(s.ctx, order.Customer{Name: "Offline", Phone: "1"}, "cod")
	s.Require().NoError(err)
	s.False(o.Synced)
	s.True(strings.HasPrefix(o.ID, "ORD-"))
	s.Equal("2450", o.Total.String())

	s.Empty(app.Cart.Lines())
	s.Contains(rec.Errors(), "Failed to clear cart")
	s.Require().Len(app.Cart.Pending(), 1)
	s.Equal(cart.ActionReplace, app.Cart.Pending()[0].Action.Kind)

	byEmail := app.Orders.ByEmail("OFFLINE@example.com")
	s.Require().Len(byEmail, 1)
	s.Equal(o.ID, byEmail[0].ID)
}

func (s *AppTestSuite) TestGuestCartIsLocal() {
	app, rec := s.newApp(storage.NewMemoryStore())
	app.Cart.Add(s.ctx, silkPanjabi("M", 2))
	app.Cart.UpdateQuantity(s.ctx, "p1", "M", 0)

	s.Require().Len(app.Cart.Lines(), 1)
	s.Equal(1, app.Cart.Lines()[0].Quantity)
	s.Empty(rec.Errors())

	o, err := app.Checkout(s.ctx, order.Customer{Name: "Guest", Phone: "1"}, "")
	s.Require().NoError(err)
	s.True(o.Synced)
	s.Equal("cod", o.PaymentMethod)
}

func (s *AppTestSuite) TestLogoutResetsCart() {
	store := storage.NewMemoryStore()
	app, _ := s.newApp(store)
	s.register(app, "logout@example.com")
	app.Cart.Add(s.ctx, silkPanjabi("M", 1))

	app.Auth.Logout(s.ctx)

	s.False(app.Auth.IsAuthenticated())
	s.Empty(app.Cart.Lines())
	s.Empty(app.Session.AuthToken(s.ctx))

	var persisted []cart.Line
	_, err := storage.GetJSON(s.ctx, store, session.KeyCart, &persisted)
	s.Require().NoError(err)
	s.Empty(persisted)

	res := app.Auth.Login(s.ctx, "logout@example.com", password)
	s.Require().True(res.Success)
	s.Require().Len(app.Cart.Lines(), 1, "server cart is restored on login")
}

func (s *AppTestSuite) TestLoginElsewhereEndsSession() {
	first, rec := s.newApp(storage.NewMemoryStore())
	s.register(first, "shared@example.com")
	first.Cart.Add(s.ctx, silkPanjabi("M", 1))

	second, _ := s.newApp(storage.NewMemoryStore())
	res := second.Auth.Login(s.ctx, "shared@example.com", password)
	s.Require().True(res.Success)
	s.Len(second.Cart.Lines(), 1)

	first.Cart.Add(s.ctx, silkPanjabi("L", 1))

	s.False(first.Auth.IsAuthenticated())
	s.Empty(first.Cart.Lines())
	s.Empty(first.Cart.Pending())
	s.Contains(rec.Errors(), "Failed to add item to cart")
}

func (s *AppTestSuite) TestAdminUpdatesStatus() {
	shopper, _ := s.newApp(storage.NewMemoryStore())
	s.register(shopper, "status@example.com")
	shopper.Cart.Add(s.ctx, silkPanjabi("M", 1))
	o, err := shopper.Checkout(s.ctx, order.Customer{Name: "S", Phone: "1"}, "cod")
	s.Require().NoError(err)

	admin, rec := s.newApp(storage.NewMemoryStore())
	res := admin.Auth.Login(s.ctx, s.cfg.DevAPI.AdminEmail, s.cfg.DevAPI.AdminPassword)
	s.Require().True(res.Success)
	s.True(admin.Auth.IsAdmin())

	_, ok := admin.Orders.ByID(o.ID)
	s.Require().True(ok, "admins see every order")

	updated, err := admin.Orders.UpdateStatus(s.ctx, o.ID, order.StatusConfirmed)
	s.Require().NoError(err)
	s.Equal(order.StatusConfirmed, updated.Status)
	s.Empty(rec.Errors())

	s.Require().NoError(shopper.Orders.Load(s.ctx, true))
	mine, ok := shopper.Orders.ByID(o.ID)
	s.Require().True(ok)
	s.Equal(order.StatusConfirmed, mine.Status)
}
