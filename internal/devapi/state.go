// internal/devapi/state.go
package devapi

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/eid-storefront/internal/domain/cart"
	"github.com/your-org/eid-storefront/internal/domain/order"
)

var (
	errEmailTaken      = errors.New("user with this email already exists")
	errInvalidLogin    = errors.New("invalid email or password")
	errItemNotInCart   = errors.New("item not in cart")
	errOrderNotFound   = errors.New("order not found")
	errUploadNotFound  = errors.New("upload not found")
	errUnknownAccount  = errors.New("account not found")
	errInvalidQuantity = errors.New("quantity must be at least 1")
)

type account struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Address      string
	District     string
	Role         string
	PasswordHash string
	Session      int
	CreatedAt    time.Time
}

type product struct {
	ID    string
	Name  string
	Slug  string
	Price decimal.Decimal
	Image string
	Sizes []string
}

type upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// state is the in-memory backend
type state struct {
	mu       sync.Mutex
	accounts map[string]*account
	byEmail  map[string]string
	products map[string]product
	carts    map[string][]cart.Line
	orders   []*storedOrder
	uploads  map[string]upload
}

type storedOrder struct {
	order.Order
	UserID string
}

func newState() *state {
	s := &state{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		products: make(map[string]product),
		carts:    make(map[string][]cart.Line),
		uploads:  make(map[string]upload),
	}
	for _, p := range catalog {
		s.products[p.ID] = p
	}
	return s
}

var catalog = []product{
	{ID: "p1", Name: "Silk Panjabi", Slug: "silk-panjabi", Price: decimal.NewFromInt(2200), Image: "/images/silk-panjabi.jpg", Sizes: []string{"S", "M", "L", "XL"}},
	{ID: "p2", Name: "Embroidered Kurti", Slug: "embroidered-kurti", Price: decimal.NewFromInt(1850), Image: "/images/kurti.jpg", Sizes: []string{"S", "M", "L"}},
	{ID: "p3", Name: "Attar Gift Box", Slug: "attar-gift-box", Price: decimal.NewFromInt(950), Image: "/images/attar.jpg"},
	{ID: "p4", Name: "Cotton Salwar Kameez", Slug: "cotton-salwar-kameez", Price: decimal.NewFromInt(3200), Image: "/images/salwar.jpg", Sizes: []string{"M", "L"}},
}

// SessionVersion implements middleware.Sessions
func (s *state) SessionVersion(userID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return 0, false
	}
	return a.Session, true
}

func (s *state) createAccount(a account) (*account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(a.Email))
	if _, exists := s.byEmail[email]; exists {
		return nil, errEmailTaken
	}
	a.ID = uuid.NewString()
	a.Email = email
	a.CreatedAt = time.Now().UTC()
	if a.Role == "" {
		a.Role = "USER"
	}
	s.accounts[a.ID] = &a
	s.byEmail[email] = a.ID
	out := a
	return &out, nil
}

func (s *state) accountByEmail(email string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, false
	}
	a := *s.accounts[id]
	return &a, true
}

func (s *state) accountByID(id string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	out := *a
	return &out, true
}

// beginSession bumps the login counter, invalidating earlier tokens
func (s *state) beginSession(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return 0, errUnknownAccount
	}
	a.Session++
	return a.Session, nil
}

func (s *state) line(productID, size string, quantity int) cart.Line {
	p, ok := s.products[productID]
	if !ok {
		return cart.Line{ProductID: productID, Name: productID, Size: size, Quantity: quantity}
	}
	return cart.Line{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Size:      size,
		Quantity:  quantity,
		Image:     p.Image,
		Slug:      p.Slug,
	}
}

func (s *state) cartOf(userID string) []cart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cart.Line(nil), s.carts[userID]...)
}

func (s *state) addToCart(userID, productID, size string, quantity int) error {
	if quantity < 1 {
		return errInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = cart.Reduce(s.carts[userID], cart.AddAction(s.line(productID, size, quantity)))
	return nil
}

// setCartQuantity updates a line; zero removes it
func (s *state) setCartQuantity(userID, productID, size string, quantity int) error {
	if quantity < 0 {
		return errInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cart.Key{ProductID: productID, Size: size}
	lines := s.carts[userID]
	found := false
	for _, l := range lines {
		if l.Key() == key {
			found = true
			break
		}
	}
	if !found {
		return errItemNotInCart
	}
	if quantity == 0 {
		s.carts[userID] = cart.Reduce(lines, cart.RemoveAction(key))
		return nil
	}
	s.carts[userID] = cart.Reduce(lines, cart.UpdateQuantityAction(key, quantity))
	return nil
}

func (s *state) clearCart(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}

// placeOrder prices the items from the catalog and stores the order
func (s *state) placeOrder(userID string, items []cart.Line, customer order.Customer, payment string, rule order.DeliveryRule) *storedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]cart.Line, 0, len(items))
	for _, it := range items {
		l := s.line(it.ProductID, it.Size, it.Quantity)
		if _, known := s.products[it.ProductID]; !known {
			l.Name = it.Name
			l.Price = it.Price
		}
		lines = append(lines, l)
	}

	subtotal := cart.Subtotal(lines)
	charge := rule.Charge(subtotal)
	o := &storedOrder{
		Order: order.Order{
			ID:             uuid.NewString(),
			Items:          lines,
			Customer:       customer,
			Subtotal:       subtotal,
			DeliveryCharge: charge,
			Total:          subtotal.Add(charge),
			PaymentMethod:  payment,
			Status:         order.StatusPending,
			CreatedAt:      time.Now().UTC(),
			Synced:         true,
		},
		UserID: userID,
	}
	s.orders = append(s.orders, o)
	if userID != "" {
		delete(s.carts, userID)
	}
	return o
}

// ordersFor returns newest first. An empty userID means every order.
func (s *state) ordersFor(userID string) []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for _, o := range s.orders {
		if userID == "" || o.UserID == userID {
			out = append(out, o.Order)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *state) findOrder(id string) (*storedOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			cp := *o
			return &cp, true
		}
	}
	return nil, false
}

// transition applies the order lifecycle rules
func (s *state) transition(id string, next order.Status) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID != id {
			continue
		}
		if !o.Status.CanTransitionTo(next) {
			return nil, &transitionError{from: o.Status, to: next}
		}
		o.Status = next
		out := o.Order
		return &out, nil
	}
	return nil, errOrderNotFound
}

type transitionError struct {
	from, to order.Status
}

func (e *transitionError) Error() string {
	return "Invalid status transition from " + string(e.from) + " to " + string(e.to)
}

func (s *state) saveUpload(u upload) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := uuid.NewString() + "-" + u.Name
	u.Name = name
	s.uploads[name] = u
	return name
}

func (s *state) uploadByName(name string) (upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[name]
	if !ok {
		return upload{}, errUploadNotFound
	}
	return u, nil
}
