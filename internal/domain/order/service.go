// internal/domain/order/service.go
package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/apiclient"
	"github.com/your-org/eid-storefront/internal/domain/cart"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/pkg/notify"
	"github.com/your-org/eid-storefront/internal/session"
)

// API is the subset of the API client orders use
type API interface {
	Get(ctx context.Context, endpoint string, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
	Post(ctx context.Context, endpoint string, payload interface{}, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
	Patch(ctx context.Context, endpoint string, payload interface{}, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
}

// Service is the order state container. Server calls come first; when they
// fail the change is applied locally so checkout always completes.
type Service struct {
	mu        sync.Mutex
	persistMu sync.Mutex
	orders    []Order

	store    storage.Store
	api      API
	rule     DeliveryRule
	notifier notify.Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewService creates a new order service
func NewService(store storage.Store, api API, rule DeliveryRule, notifier notify.Notifier, log logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		api:      api,
		rule:     rule,
		notifier: notifier,
		log:      log.WithField("component", "orders"),
		now:      time.Now,
	}
}

// Rule returns the delivery rule in effect
func (s *Service) Rule() DeliveryRule {
	return s.rule
}

// Create submits an order. If the server rejects it or cannot be reached a
// pending local order is returned instead.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if req.Subtotal.IsZero() {
		req.Subtotal = cart.Subtotal(req.Items)
	}

	created, err := s.submit(ctx, req)
	if err != nil {
		s.log.WithError(err).Warn("Order create failed on server, keeping local order")
		created = s.localOrder(req)
	}

	s.mu.Lock()
	s.orders = append([]Order{*created}, s.orders...)
	s.mu.Unlock()
	s.persist(ctx)

	s.log.WithFields(logrus.Fields{
		"order_id": created.ID,
		"total":    created.Total.String(),
		"synced":   created.Synced,
	}).Info("Order created")

	out := *created
	return &out, nil
}

func (s *Service) submit(ctx context.Context, req CreateRequest) (*Order, error) {
	env, err := s.api.Post(ctx, "/orders", req)
	if err != nil {
		return nil, err
	}
	o, err := Decode(env.Data)
	if err != nil {
		// the server took the order; resubmitting would place it twice
		s.log.WithError(err).Warn("Order accepted without a readable body, keeping request copy")
		o = s.localOrder(req)
		o.Synced = true
		return o, nil
	}
	if len(o.Items) == 0 {
		o.Items = req.Items
	}
	if o.Customer == (Customer{}) {
		o.Customer = req.Customer
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = req.PaymentMethod
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}
	return o, nil
}

func (s *Service) localOrder(req CreateRequest) *Order {
	charge := s.rule.Charge(req.Subtotal)
	return &Order{
		ID:             newLocalID(),
		Items:          req.Items,
		Customer:       req.Customer,
		Subtotal:       req.Subtotal,
		DeliveryCharge: charge,
		Total:          req.Subtotal.Add(charge),
		PaymentMethod:  req.PaymentMethod,
		Status:         StatusPending,
		CreatedAt:      s.now().UTC(),
	}
}

// UpdateStatus changes the status of an order. A server failure is reported
// through the notifier and the change is applied locally anyway.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	env, err := s.api.Patch(ctx, fmt.Sprintf("/orders/%s/status", id), map[string]string{"status": string(status)})
	if err != nil {
		s.log.WithError(err).WithField("order_id", id).Warn("Order status update failed on server")
		s.notifier.Error("Failed to update order status")
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 && err == nil {
		// an order this session has not loaded yet
		if o, derr := Decode(env.Data); derr == nil && o.ID == id {
			s.orders = append([]Order{*o}, s.orders...)
			i = 0
		}
	}
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrOrderNotFound
	}
	s.orders[i].Status = status
	out := s.orders[i]
	s.mu.Unlock()

	s.persist(ctx)
	return &out, nil
}

// Load refreshes the order list. With a session it asks the server and keeps
// any local-only orders; otherwise, or when the server fails, it reads the
// locally persisted list.
func (s *Service) Load(ctx context.Context, authenticated bool) error {
	if authenticated {
		env, err := s.api.Get(ctx, "/orders")
		if err == nil {
			remote := DecodeList(env.Data)
			local, _ := s.readLocal(ctx)
			s.set(mergeUnsynced(remote, local))
			s.persist(ctx)
			return nil
		}
		s.log.WithError(err).Warn("Failed to fetch orders, using local copy")
	}

	local, err := s.readLocal(ctx)
	if err != nil {
		return err
	}
	s.set(local)
	return nil
}

// Resubmit sends local-only orders to the server. Orders the server accepts
// replace their local copies. It returns how many were synced.
func (s *Service) Resubmit(ctx context.Context) (int, error) {
	var synced int
	for _, o := range s.All() {
		if o.Synced {
			continue
		}
		created, err := s.submit(ctx, CreateRequest{
			Items:         o.Items,
			Customer:      o.Customer,
			Subtotal:      o.Subtotal,
			PaymentMethod: o.PaymentMethod,
		})
		if err != nil {
			return synced, err
		}
		s.mu.Lock()
		if i := s.indexOf(o.ID); i >= 0 {
			s.orders[i] = *created
		}
		s.mu.Unlock()
		synced++
	}
	if synced > 0 {
		s.persist(ctx)
	}
	return synced, nil
}

// ByEmail returns orders placed with email, newest first
func (s *Service) ByEmail(email string) []Order {
	email = strings.TrimSpace(email)
	var out []Order
	for _, o := range s.All() {
		if strings.EqualFold(o.Customer.Email, email) {
			out = append(out, o)
		}
	}
	return out
}

// ByID returns the order with id
func (s *Service) ByID(id string) (*Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		o := s.orders[i]
		return &o, true
	}
	return nil, false
}

// All returns every known order, newest first
func (s *Service) All() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Totals computes delivery charge and total for a subtotal
func (s *Service) Totals(subtotal decimal.Decimal) (charge, total decimal.Decimal) {
	charge = s.rule.Charge(subtotal)
	return charge, subtotal.Add(charge)
}

func (s *Service) indexOf(id string) int {
	for i, o := range s.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) set(orders []Order) {
	s.mu.Lock()
	s.orders = orders
	s.mu.Unlock()
}

func (s *Service) readLocal(ctx context.Context) ([]Order, error) {
	var orders []Order
	if _, err := storage.GetJSON(ctx, s.store, session.KeyOrders, &orders); err != nil {
		s.log.WithError(err).Warn("Failed to read local orders")
		return nil, err
	}
	return orders, nil
}

// persist holds persistMu across snapshot and write so writes land in order
func (s *Service) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := storage.SetJSON(ctx, s.store, session.KeyOrders, s.All()); err != nil {
		s.log.WithError(err).Warn("Failed to persist orders")
	}
}

// mergeUnsynced puts local-only orders the server does not know ahead of the
// server list
func mergeUnsynced(remote, local []Order) []Order {
	known := make(map[string]bool, len(remote))
	for _, o := range remote {
		known[o.ID] = true
	}
	out := make([]Order, 0, len(remote)+len(local))
	for _, o := range local {
		if !o.Synced && !known[o.ID] {
			out = append(out, o)
		}
	}
	return append(out, remote...)
}
