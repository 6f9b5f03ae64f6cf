package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/your-org/eid-storefront/internal/apiclient"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/infrastructure/storage"
	"github.com/your-org/eid-storefront/internal/pkg/logger"
	"github.com/your-org/eid-storefront/internal/pkg/notify"
	"github.com/your-org/eid-storefront/internal/session"
)

// fakeAPI keeps a server-side cart and records calls
type fakeAPI struct {
	mu     sync.Mutex
	server []Line
	calls  []string
	fail   error
	getFn  func() []Line
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.fail
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) Get(_ context.Context, endpoint string, _ ...apiclient.RequestOption) (*apiclient.Envelope, error) {
	if err := f.record("GET " + endpoint); err != nil {
		return nil, err
	}
	f.mu.Lock()
	lines := f.server
	getFn := f.getFn
	f.mu.Unlock()
	if getFn != nil {
		lines = getFn()
	}
	data, _ := json.Marshal(map[string]interface{}{"items": lines})
	return &apiclient.Envelope{Success: true, Data: data}, nil
}

func (f *fakeAPI) Post(_ context.Context, endpoint string, payload interface{}, _ ...apiclient.RequestOption) (*apiclient.Envelope, error) {
	if err := f.record("POST " + endpoint); err != nil {
		return nil, err
	}
	req := payload.(itemRequest)
	f.mu.Lock()
	f.server = Reduce(f.server, AddAction(Line{ProductID: req.ProductID, Size: req.Size, Quantity: req.Quantity, Name: "server " + req.ProductID}))
	f.mu.Unlock()
	return &apiclient.Envelope{Success: true}, nil
}

func (f *fakeAPI) Put(_ context.Context, endpoint string, payload interface{}, _ ...apiclient.RequestOption) (*apiclient.Envelope, error) {
	if err := f.record("PUT " + endpoint); err != nil {
		return nil, err
	}
	req := payload.(itemRequest)
	key := Key{ProductID: req.ProductID, Size: req.Size}
	f.mu.Lock()
	if req.Quantity == 0 {
		f.server = Reduce(f.server, RemoveAction(key))
	} else {
		f.server = Reduce(f.server, UpdateQuantityAction(key, req.Quantity))
	}
	f.mu.Unlock()
	return &apiclient.Envelope{Success: true}, nil
}

func (f *fakeAPI) Delete(_ context.Context, endpoint string, _ ...apiclient.RequestOption) (*apiclient.Envelope, error) {
	if err := f.record("DELETE " + endpoint); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.server = nil
	f.mu.Unlock()
	return &apiclient.Envelope{Success: true}, nil
}

// slowStore delays writes by varying amounts so concurrent writers finish
// out of order
type slowStore struct {
	*storage.MemoryStore
	writes atomic.Int64
}

func (s *slowStore) Set(ctx context.Context, key, value string) error {
	n := s.writes.Add(1)
	time.Sleep(time.Duration(3-n%3) * time.Millisecond)
	return s.MemoryStore.Set(ctx, key, value)
}

type staticAuth bool

func (a staticAuth) IsAuthenticated() bool { return bool(a) }

type ServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *storage.MemoryStore
	api      *fakeAPI
	notifier *notify.Recorder
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewMemoryStore()
	s.api = &fakeAPI{}
	s.notifier = &notify.Recorder{}
}

func (s *ServiceTestSuite) newService(authenticated bool, policy string) *Service {
	return NewService(s.store, s.api, staticAuth(authenticated), s.notifier, logger.Discard(), policy)
}

func (s *ServiceTestSuite) persisted() []Line {
	var lines []Line
	_, err := storage.GetJSON(s.ctx, s.store, session.KeyCart, &lines)
	s.Require().NoError(err)
	return lines
}

func (s *ServiceTestSuite) assertSameLines(want, got []Line) {
	s.Require().Len(got, len(want))
	for i := range want {
		s.Equal(want[i].Key(), got[i].Key())
		s.Equal(want[i].Quantity, got[i].Quantity)
		s.True(want[i].Price.Equal(got[i].Price))
	}
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) TestAnonymousCartStaysLocal() {
	svc := s.newService(false, "")

	svc.Add(s.ctx, line("p1", "M", 1, 1500))
	svc.Add(s.ctx, line("p1", "M", 2, 1500))

	lines := svc.Lines()
	s.Require().Len(lines, 1)
	s.Equal(3, lines[0].Quantity)
	s.Equal(3, svc.ItemCount())
	s.Equal("4500", svc.Subtotal().String())
	s.Empty(s.api.Calls())
	s.assertSameLines(lines, s.persisted())
}

func (s *ServiceTestSuite) TestConcurrentMutationsPersistLatestLines() {
	svc := NewService(&slowStore{MemoryStore: s.store}, s.api, staticAuth(false), s.notifier, logger.Discard(), "")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.Add(s.ctx, line(fmt.Sprintf("p%d", i), "M", 1, 100))
		}(i)
	}
	wg.Wait()

	s.Len(svc.Lines(), 40)
	s.Len(s.persisted(), 40)
}

func (s *ServiceTestSuite) TestRehydrate() {
	s.Require().NoError(storage.SetJSON(s.ctx, s.store, session.KeyCart, []Line{line("p1", "M", 2, 100)}))

	svc := s.newService(false, "")
	s.Require().NoError(svc.Rehydrate(s.ctx))
	s.Equal(2, svc.ItemCount())
}

func (s *ServiceTestSuite) TestAuthenticatedMutationsReconcile() {
	svc := s.newService(true, "")

	svc.Add(s.ctx, line("p1", "M", 1, 1500))
	svc.UpdateQuantity(s.ctx, "p1", "M", 4)
	svc.Remove(s.ctx, "p1", "M")
	svc.Add(s.ctx, line("p2", "S", 1, 900))
	svc.Clear(s.ctx)

	s.Equal([]string{
		"POST /cart", "GET /cart",
		"PUT /cart", "GET /cart",
		"PUT /cart", "GET /cart",
		"POST /cart", "GET /cart",
		"DELETE /cart", "GET /cart",
	}, s.api.Calls())
	s.Empty(svc.Lines())
	s.Empty(svc.Pending())
}

func (s *ServiceTestSuite) TestReconcileTakesServerState() {
	svc := s.newService(true, "")
	s.api.getFn = func() []Line {
		// server caps stock at 2
		return []Line{line("p1", "M", 2, 1400)}
	}

	svc.Add(s.ctx, line("p1", "M", 5, 1500))

	lines := svc.Lines()
	s.Require().Len(lines, 1)
	s.Equal(2, lines[0].Quantity)
	s.Equal("1400", lines[0].Price.String())
	s.assertSameLines(lines, s.persisted())
}

func (s *ServiceTestSuite) TestFailureKeepsOptimisticStateAndQueues() {
	svc := s.newService(true, config.SyncPolicyKeep)
	s.api.fail = errors.New("network down")

	svc.Add(s.ctx, line("p1", "M", 1, 1500))

	s.Equal(1, svc.ItemCount())
	s.Equal([]string{"Failed to add item to cart"}, s.notifier.Errors())

	pending := svc.Pending()
	s.Require().Len(pending, 1)
	s.Equal(ActionAdd, pending[0].Action.Kind)
	s.Equal("network down", pending[0].Err)

	// server comes back
	s.api.mu.Lock()
	s.api.fail = nil
	s.api.mu.Unlock()

	s.Require().NoError(svc.RetryPending(s.ctx))
	s.Empty(svc.Pending())
	s.Equal(1, svc.ItemCount())
	s.Equal("server p1", svc.Lines()[0].Name)
}

func (s *ServiceTestSuite) TestFailureRollback() {
	svc := s.newService(false, config.SyncPolicyRollback)
	svc.Add(s.ctx, line("p1", "M", 2, 1500))

	svc.auth = staticAuth(true)
	s.api.fail = errors.New("boom")

	svc.Add(s.ctx, line("p1", "M", 3, 1500))
	svc.Remove(s.ctx, "p1", "M")
	svc.UpdateQuantity(s.ctx, "p1", "M", 9)

	lines := svc.Lines()
	s.Require().Len(lines, 1)
	s.Equal(2, lines[0].Quantity)
	s.assertSameLines(lines, s.persisted())
	s.Empty(svc.Pending())
	s.Len(s.notifier.Errors(), 3)
}

func (s *ServiceTestSuite) TestStaleReconciliationDiscarded() {
	svc := s.newService(true, "")

	newer := []Line{line("p1", "M", 3, 100)}
	older := []Line{line("p1", "M", 1, 100)}

	s.api.getFn = func() []Line { return newer }
	s.Require().NoError(svc.reconcile(s.ctx, 2))

	s.api.getFn = func() []Line { return older }
	s.Require().NoError(svc.reconcile(s.ctx, 1))

	s.Equal(3, svc.ItemCount())
}

func (s *ServiceTestSuite) TestOnChange() {
	svc := s.newService(false, "")
	var counts []int
	svc.OnChange(func(lines []Line) { counts = append(counts, ItemCount(lines)) })

	svc.Add(s.ctx, line("p1", "M", 1, 100))
	svc.Add(s.ctx, line("p2", "M", 2, 100))
	svc.Reset(s.ctx)

	s.Equal([]int{1, 3, 0}, counts)
}

func TestCartMergeScenario(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), &fakeAPI{}, staticAuth(false), &notify.Recorder{}, logger.Discard(), "")
	ctx := context.Background()

	svc.Add(ctx, Line{ProductID: "p1", Size: "M", Quantity: 1})
	svc.Add(ctx, Line{ProductID: "p1", Size: "M", Quantity: 2})

	lines := svc.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, Key{ProductID: "p1", Size: "M"}, lines[0].Key())
	assert.Equal(t, 3, lines[0].Quantity)
}
