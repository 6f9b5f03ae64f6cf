// Package storefront wires the session, API client and state containers
// into one application object.
package storefront

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/apiclient"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/domain/cart"
	"github.com/your-org/eid-storefront/internal/domain/order"
	"github.com/your-org/eid-storefront/internal/domain/user"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/pkg/notify"
	"github.com/your-org/eid-storefront/internal/pkg/pdf"
	"github.com/your-org/eid-storefront/internal/session"
)

// ErrEmptyCart is returned by Checkout when there is nothing to order
var ErrEmptyCart = errors.New("cart is empty")

// App is the storefront core
type App struct {
	Config   *config.Config
	Session  *session.Session
	API      *apiclient.Client
	Auth     *user.AuthService
	Cart     *cart.Service
	Orders   *order.Service
	Receipts *pdf.Service
	Notifier notify.Notifier

	store  storage.Store
	closer io.Closer
	log    logrus.FieldLogger
	ctx    context.Context
}

// Option customizes App construction
type Option func(*options)

type options struct {
	store     storage.Store
	notifier  notify.Notifier
	clientOps []apiclient.Option
}

// WithStore uses store instead of opening the configured driver
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithNotifier replaces the default log-backed notifier
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClientOptions passes options to the API client
func WithClientOptions(opts ...apiclient.Option) Option {
	return func(o *options) { o.clientOps = append(o.clientOps, opts...) }
}

// New builds the application. ctx bounds the background work triggered by
// auth changes. Call Start before using the containers.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{
		Config: cfg,
		log:    log,
		ctx:    ctx,
	}

	if o.store != nil {
		app.store = o.store
	} else {
		store, closer, err := storage.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.store = store
		app.closer = closer
	}

	app.Notifier = o.notifier
	if app.Notifier == nil {
		app.Notifier = notify.NewLogNotifier(log)
	}

	sess, err := session.New(app.store, cfg.API.BaseURL, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Session = sess

	clientOps := []apiclient.Option{apiclient.WithRefreshPath(cfg.API.RefreshPath)}
	if cfg.API.Timeout > 0 {
		clientOps = append(clientOps, apiclient.WithTimeout(cfg.API.Timeout))
	}
	app.API = apiclient.New(cfg.API.BaseURL, sess, log, append(clientOps, o.clientOps...)...)

	app.Auth = user.NewAuthService(sess, app.API, log)
	app.Cart = cart.NewService(app.store, app.API, app.Auth, app.Notifier, log, cfg.Sync.Policy)
	app.Orders = order.NewService(app.store, app.API, order.DeliveryRule{
		FreeThreshold: cfg.Store.FreeDeliveryThreshold,
		FlatCharge:    cfg.Store.DeliveryCharge,
	}, app.Notifier, log)
	app.Receipts = pdf.NewService(cfg)

	app.wire()
	return app, nil
}

func (a *App) wire() {
	a.Auth.OnChange(func(u *user.User) {
		signedIn := u != nil
		if err := a.Orders.Load(a.ctx, signedIn); err != nil {
			a.log.WithError(err).Warn("Failed to load orders")
		}
		if !signedIn {
			return
		}
		if err := a.Cart.RetryPending(a.ctx); err != nil {
			a.log.WithError(err).Warn("Failed to replay pending cart changes")
		}
		if err := a.Cart.Sync(a.ctx); err != nil {
			a.log.WithError(err).Warn("Failed to sync cart")
		}
	})

	a.Session.Subscribe(func(ev session.LogoutEvent) {
		a.log.WithField("reason", ev.Reason).Debug("Resetting cart after logout")
		a.Cart.Reset(a.ctx)
	})
}

// Start rehydrates persisted state. Signed-in users get their orders and
// cart fetched from the server.
func (a *App) Start(ctx context.Context) error {
	if err := a.Cart.Rehydrate(ctx); err != nil {
		return fmt.Errorf("failed to rehydrate cart: %w", err)
	}
	if err := a.Auth.Rehydrate(ctx); err != nil {
		return fmt.Errorf("failed to rehydrate user: %w", err)
	}
	if !a.Auth.IsAuthenticated() {
		if err := a.Orders.Load(ctx, false); err != nil {
			return fmt.Errorf("failed to load orders: %w", err)
		}
	}
	return nil
}

// Checkout turns the cart into an order and empties the cart. The order is
// always returned, falling back to a local order when the server fails.
func (a *App) Checkout(ctx context.Context, customer order.Customer, paymentMethod string) (*order.Order, error) {
	lines := a.Cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	if customer.Email == "" {
		if u := a.Auth.CurrentUser(); u != nil {
			customer.Email = u.Email
		}
	}

	o, err := a.Orders.Create(ctx, order.CreateRequest{
		Items:         lines,
		Customer:      customer,
		Subtotal:      cart.Subtotal(lines),
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		return nil, err
	}

	a.Cart.Clear(ctx)
	a.Notifier.Success(fmt.Sprintf("Order %s placed", o.ID))
	return o, nil
}

// Receipt renders the PDF receipt of a known order
func (a *App) Receipt(id string) (*bytes.Buffer, error) {
	o, ok := a.Orders.ByID(id)
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return a.Receipts.GenerateReceipt(o)
}

// ReceiptHTML renders the receipt page of a known order
func (a *App) ReceiptHTML(id string) (string, error) {
	o, ok := a.Orders.ByID(id)
	if !ok {
		return "", order.ErrOrderNotFound
	}
	return a.Receipts.RenderHTML(o)
}

// Close releases the storage backend
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
