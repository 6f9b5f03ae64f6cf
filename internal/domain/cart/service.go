// internal/domain/cart/service.go
package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/apiclient"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/pkg/notify"
	"github.com/your-org/eid-storefront/internal/session"
)

// API is the subset of the API client the cart talks to
type API interface {
	Get(ctx context.Context, endpoint string, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
	Post(ctx context.Context, endpoint string, payload interface{}, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
	Put(ctx context.Context, endpoint string, payload interface{}, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
	Delete(ctx context.Context, endpoint string, opts ...apiclient.RequestOption) (*apiclient.Envelope, error)
}

// Authenticator reports whether a user session exists
type Authenticator interface {
	IsAuthenticated() bool
}

// Pending is a mutation that reached local state but not the server
type Pending struct {
	Seq    uint64
	Action Action
	Err    string

	undo Action
}

// Service is the cart state container. Mutations are applied locally first,
// then sent to the server when a session exists.
type Service struct {
	mu        sync.Mutex
	persistMu sync.Mutex
	lines     []Line
	issued    uint64
	applied   uint64
	resetAt   uint64
	pending   []Pending
	listeners []func([]Line)

	store    storage.Store
	api      API
	auth     Authenticator
	notifier notify.Notifier
	log      logrus.FieldLogger
	policy   string
}

// NewService creates a new cart service
func NewService(store storage.Store, api API, auth Authenticator, notifier notify.Notifier, log logrus.FieldLogger, policy string) *Service {
	if policy == "" {
		policy = config.SyncPolicyKeep
	}
	return &Service{
		store:    store,
		api:      api,
		auth:     auth,
		notifier: notifier,
		log:      log.WithField("component", "cart"),
		policy:   policy,
	}
}

// Rehydrate loads the persisted cart. Call once before any mutation.
func (s *Service) Rehydrate(ctx context.Context) error {
	var lines []Line
	if _, err := storage.GetJSON(ctx, s.store, session.KeyCart, &lines); err != nil {
		s.log.WithError(err).Warn("Failed to rehydrate cart")
		return err
	}
	s.mu.Lock()
	s.lines = dedupe(lines)
	s.mu.Unlock()
	s.emit()
	return nil
}

// Add adds quantity of a product in a size, merging with an existing line
func (s *Service) Add(ctx context.Context, line Line) {
	s.mutate(ctx, AddAction(line))
}

// Remove deletes the line for the product and size
func (s *Service) Remove(ctx context.Context, productID, size string) {
	s.mutate(ctx, RemoveAction(Key{ProductID: productID, Size: size}))
}

// UpdateQuantity sets the quantity of a line, never below 1
func (s *Service) UpdateQuantity(ctx context.Context, productID, size string, quantity int) {
	s.mutate(ctx, UpdateQuantityAction(Key{ProductID: productID, Size: size}, quantity))
}

// Clear empties the cart
func (s *Service) Clear(ctx context.Context) {
	s.mutate(ctx, ReplaceAction(nil))
}

// Reset drops local state without contacting the server. Used on logout.
func (s *Service) Reset(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	s.pending = nil
	s.issued++
	s.applied = s.issued
	s.resetAt = s.issued
	s.mu.Unlock()
	s.persist(ctx)
	s.emit()
}

// Sync fetches the server cart and replaces local state with it
func (s *Service) Sync(ctx context.Context) error {
	if !s.auth.IsAuthenticated() {
		return nil
	}
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()
	return s.reconcile(ctx, seq)
}

// Lines returns a copy of the current lines
func (s *Service) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.lines)
}

// ItemCount is the total quantity in the cart
func (s *Service) ItemCount() int {
	return ItemCount(s.Lines())
}

// Subtotal is the sum of price times quantity
func (s *Service) Subtotal() decimal.Decimal {
	return Subtotal(s.Lines())
}

// Pending returns mutations not yet accepted by the server
func (s *Service) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, len(s.pending))
	copy(out, s.pending)
	return out
}

// RetryPending replays unsynced mutations in order. It stops at the first
// failure and returns it.
func (s *Service) RetryPending(ctx context.Context) error {
	if !s.auth.IsAuthenticated() {
		return nil
	}
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return nil
		}
		entry := s.pending[0]
		s.mu.Unlock()

		if err := s.push(ctx, entry.Action); err != nil {
			s.mu.Lock()
			if len(s.pending) > 0 && s.pending[0].Seq == entry.Seq {
				s.pending[0].Err = err.Error()
			}
			s.mu.Unlock()
			return err
		}

		s.mu.Lock()
		if len(s.pending) > 0 && s.pending[0].Seq == entry.Seq {
			s.pending = s.pending[1:]
		}
		s.issued++
		seq := s.issued
		s.mu.Unlock()

		if err := s.reconcile(ctx, seq); err != nil {
			return err
		}
	}
}

// OnChange registers fn to receive the line set after every change
func (s *Service) OnChange(fn func([]Line)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) mutate(ctx context.Context, a Action) {
	s.mu.Lock()
	undo := compensation(s.lines, a)
	s.lines = Reduce(s.lines, a)
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	s.persist(ctx)
	s.emit()

	if !s.auth.IsAuthenticated() {
		return
	}

	if err := s.push(ctx, a); err != nil {
		s.fail(ctx, Pending{Seq: seq, Action: a, Err: err.Error(), undo: undo})
		return
	}
	if err := s.reconcile(ctx, seq); err != nil {
		s.log.WithError(err).Warn("Failed to reconcile cart")
	}
}

// push sends a to the server. Removal is a quantity-zero update.
func (s *Service) push(ctx context.Context, a Action) error {
	var err error
	switch a.Kind {
	case ActionAdd:
		qty := a.Line.Quantity
		if qty < 1 {
			qty = 1
		}
		_, err = s.api.Post(ctx, "/cart", itemRequest{ProductID: a.Line.ProductID, Size: a.Line.Size, Quantity: qty})
	case ActionRemove:
		_, err = s.api.Put(ctx, "/cart", itemRequest{ProductID: a.Key.ProductID, Size: a.Key.Size, Quantity: 0})
	case ActionUpdateQuantity:
		qty := a.Quantity
		if qty < 1 {
			qty = 1
		}
		_, err = s.api.Put(ctx, "/cart", itemRequest{ProductID: a.Key.ProductID, Size: a.Key.Size, Quantity: qty})
	case ActionReplace:
		_, err = s.api.Delete(ctx, "/cart")
	}
	return err
}

// reconcile fetches the server cart and applies it unless a newer
// reconciliation already landed
func (s *Service) reconcile(ctx context.Context, seq uint64) error {
	env, err := s.api.Get(ctx, "/cart")
	if err != nil {
		return err
	}
	lines := NormalizeLines(env.Items())

	s.mu.Lock()
	if seq < s.applied {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"seq": seq, "applied": s.applied}).Debug("Discarding stale cart reconciliation")
		return nil
	}
	s.applied = seq
	s.lines = lines
	s.mu.Unlock()

	s.persist(ctx)
	s.emit()
	return nil
}

func (s *Service) fail(ctx context.Context, entry Pending) {
	s.log.WithFields(logrus.Fields{
		"action": entry.Action.Kind.String(),
		"seq":    entry.Seq,
		"policy": s.policy,
		"error":  entry.Err,
	}).Warn("Cart mutation failed on server")
	s.notifier.Error(failureMessage(entry.Action.Kind))

	s.mu.Lock()
	// a reset during the request already discarded this mutation
	if entry.Seq <= s.resetAt {
		s.mu.Unlock()
		return
	}
	if s.policy != config.SyncPolicyRollback {
		s.pending = append(s.pending, entry)
		s.mu.Unlock()
		return
	}
	s.lines = Reduce(s.lines, entry.undo)
	s.mu.Unlock()
	s.persist(ctx)
	s.emit()
}

// persist writes the current lines. persistMu is held from snapshot to write
// so an older snapshot never lands after a newer one.
func (s *Service) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	lines := s.Lines()
	if err := storage.SetJSON(ctx, s.store, session.KeyCart, lines); err != nil {
		s.log.WithError(err).Warn("Failed to persist cart")
	}
}

func (s *Service) emit() {
	s.mu.Lock()
	lines := clone(s.lines)
	listeners := make([]func([]Line), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(lines)
	}
}

func failureMessage(kind ActionKind) string {
	switch kind {
	case ActionAdd:
		return "Failed to add item to cart"
	case ActionRemove:
		return "Failed to remove item from cart"
	case ActionUpdateQuantity:
		return "Failed to update cart"
	case ActionReplace:
		return "Failed to clear cart"
	}
	return "Cart update failed"
}
