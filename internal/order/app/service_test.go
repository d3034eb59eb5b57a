package app

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/studyhub/marketplace-api/internal/catalog/domain"
	identity "github.com/studyhub/marketplace-api/internal/identity/domain"
	"github.com/studyhub/marketplace-api/internal/order/domain"
)

// ---- in-memory fakes -------------------------------------------------------

type fakeGate struct {
	mu       sync.Mutex
	products map[int64]catalog.Product
}

func (g *fakeGate) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (g *fakeGate) Reserve(_ context.Context, ids []int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		if g.products[id].Status != catalog.ProductAvailable {
			return domain.ErrProductNotAvailable
		}
	}
	for _, id := range ids {
		p := g.products[id]
		p.Status = catalog.ProductPending
		g.products[id] = p
	}
	return nil
}

func (g *fakeGate) Release(_ context.Context, ids []int64) error {
	return g.setStatus(ids, catalog.ProductAvailable)
}

func (g *fakeGate) Finalize(_ context.Context, ids []int64) error {
	return g.setStatus(ids, catalog.ProductSold)
}

func (g *fakeGate) setStatus(ids []int64, status catalog.ProductStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		p := g.products[id]
		p.Status = status
		g.products[id] = p
	}
	return nil
}

func (g *fakeGate) status(id int64) catalog.ProductStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.products[id].Status
}

func (g *fakeGate) snapshot() map[int64]catalog.Product {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make(map[int64]catalog.Product, len(g.products))
	for k, v := range g.products {
		cp[k] = v
	}
	return cp
}

func (g *fakeGate) restore(s map[int64]catalog.Product) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.products = s
}

type fakeOrders struct {
	mu          sync.Mutex
	seq         int64
	orders      map[int64]domain.Order
	codes       map[string]struct{}
	collideNext int
	countCalls  int
}

func (r *fakeOrders) Insert(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.collideNext > 0 {
		r.collideNext--
		return domain.ErrOrderCodeTaken
	}
	if _, taken := r.codes[o.OrderCode]; taken {
		return domain.ErrOrderCodeTaken
	}
	r.seq++
	o.ID = r.seq
	for i := range o.Items {
		o.Items[i].ID = int64(i + 1)
		o.Items[i].OrderID = o.ID
	}
	r.codes[o.OrderCode] = struct{}{}
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *fakeOrders) Update(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *fakeOrders) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (r *fakeOrders) ListByBuyer(_ context.Context, buyerID int64, status domain.Status) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.BuyerID == buyerID && o.Status == status })
}

func (r *fakeOrders) ListBySeller(_ context.Context, sellerID int64, status domain.Status) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.SellerID == sellerID && o.Status == status })
}

func (r *fakeOrders) list(match func(domain.Order) bool) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *fakeOrders) CountByBuyer(_ context.Context, buyerID int64) (map[domain.Status]int64, error) {
	return r.countWhere(func(o domain.Order) bool { return o.BuyerID == buyerID })
}

func (r *fakeOrders) CountBySeller(_ context.Context, sellerID int64) (map[domain.Status]int64, error) {
	return r.countWhere(func(o domain.Order) bool { return o.SellerID == sellerID })
}

func (r *fakeOrders) countWhere(match func(domain.Order) bool) (map[domain.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countCalls++
	counts := make(map[domain.Status]int64)
	for _, o := range r.orders {
		if match(o) {
			counts[o.Status]++
		}
	}
	return counts, nil
}

func cloneOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

// fakeTx emulates transactional rollback by restoring the gate's state when
// the unit of work fails.
type fakeTx struct {
	gate *fakeGate
}

func (t *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	before := t.gate.snapshot()
	if err := fn(ctx); err != nil {
		t.gate.restore(before)
		return err
	}
	return nil
}

type fakeIdentity struct {
	users map[int64]identity.User
}

func (f *fakeIdentity) CurrentUser(ctx context.Context) (identity.User, error) {
	u, ok := identity.CurrentUser(ctx)
	if !ok {
		return identity.User{}, errors.New("no authenticated user in context")
	}
	return u, nil
}

func (f *fakeIdentity) GetByID(_ context.Context, id int64) (identity.User, error) {
	u, ok := f.users[id]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeIdentity) GetByIDs(_ context.Context, ids []int64) (map[int64]identity.User, error) {
	out := make(map[int64]identity.User, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *fakeNotifier) OrderCreated(_ context.Context, _ *domain.Order, _ identity.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

type fakeCounts struct {
	mu    sync.Mutex
	store map[string]map[domain.Status]int64
}

func (c *fakeCounts) key(role string, userID int64) string {
	return role + ":" + strconv.FormatInt(userID, 10)
}

func (c *fakeCounts) GetCounts(_ context.Context, role string, userID int64) (map[domain.Status]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.store[c.key(role, userID)]
	return counts, ok
}

func (c *fakeCounts) SetCounts(_ context.Context, role string, userID int64, counts map[domain.Status]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[c.key(role, userID)] = counts
}

func (c *fakeCounts) InvalidateCounts(_ context.Context, userIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.store, c.key("buyer", id))
		delete(c.store, c.key("seller", id))
	}
}

// ---- test harness ----------------------------------------------------------

const (
	buyerID  int64 = 7
	sellerID int64 = 42
	otherID  int64 = 99
)

type harness struct {
	svc      *Service
	gate     *fakeGate
	orders   *fakeOrders
	notifier *fakeNotifier
	counts   *fakeCounts
	users    map[int64]identity.User
}

func newHarness() *harness {
	users := map[int64]identity.User{
		buyerID:  {ID: buyerID, FullName: "Binh Buyer", Email: "binh@uni.edu"},
		sellerID: {ID: sellerID, FullName: "San Seller", Email: "san@uni.edu"},
		otherID:  {ID: otherID, FullName: "Out Sider", Email: "out@uni.edu"},
	}
	gate := &fakeGate{products: map[int64]catalog.Product{
		10: {ID: 10, SellerID: sellerID, Title: "Calculus Textbook", Price: 50000, Status: catalog.ProductAvailable},
		11: {ID: 11, SellerID: sellerID, Title: "Desk Lamp", Price: 30000, Status: catalog.ProductAvailable},
		20: {ID: 20, SellerID: otherID, Title: "Bicycle", Price: 700000, Status: catalog.ProductAvailable},
		12: {ID: 12, SellerID: sellerID, Title: "Sold Chair", Price: 20000, Status: catalog.ProductSold},
	}}
	orders := &fakeOrders{orders: map[int64]domain.Order{}, codes: map[string]struct{}{}}
	notifier := &fakeNotifier{}
	counts := &fakeCounts{store: map[string]map[domain.Status]int64{}}

	svc := NewService(orders, gate, &fakeIdentity{users: users}, notifier, &fakeTx{gate: gate}, counts, nil)
	return &harness{svc: svc, gate: gate, orders: orders, notifier: notifier, counts: counts, users: users}
}

func (h *harness) as(userID int64) context.Context {
	return identity.WithPrincipal(context.Background(), h.users[userID])
}

func (h *harness) createOrder(t *testing.T, productIDs ...int64) *OrderDetail {
	t.Helper()
	detail, err := h.svc.Create(h.as(buyerID), CreateOrderInput{
		ProductIDs:      productIDs,
		DeliveryMethod:  domain.DeliveryShipper,
		DeliveryAddress: "123 St",
		DeliveryPhone:   "0900000000",
	})
	require.NoError(t, err)
	return detail
}

// ---- tests -----------------------------------------------------------------

var orderCodePattern = regexp.MustCompile(`^ORD[A-Z0-9]{8}$`)

func TestCreateOrder(t *testing.T) {
	h := newHarness()

	detail := h.createOrder(t, 10, 11)
	o := detail.Order

	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Regexp(t, orderCodePattern, o.OrderCode)
	assert.Equal(t, buyerID, o.BuyerID)
	assert.Equal(t, sellerID, o.SellerID)
	assert.Equal(t, "Binh Buyer", detail.Buyer.FullName)
	assert.Equal(t, "San Seller", detail.Seller.FullName)

	require.Len(t, o.Items, 2)
	assert.Equal(t, 50000, o.Items[0].PriceSnapshot)
	assert.Equal(t, 30000, o.Items[1].PriceSnapshot)
	assert.Equal(t, 80000, o.TotalAmount())

	assert.Equal(t, catalog.ProductPending, h.gate.status(10))
	assert.Equal(t, catalog.ProductPending, h.gate.status(11))
	assert.Equal(t, 1, h.notifier.calls)
}

func TestCreateValidationOrder(t *testing.T) {
	tests := []struct {
		name       string
		productIDs []int64
		wantErr    error
	}{
		{name: "empty items", productIDs: nil, wantErr: domain.ErrEmptyItems},
		{name: "unknown product", productIDs: []int64{10, 404}, wantErr: catalog.ErrProductNotFound},
		{name: "multiple sellers", productIDs: []int64{10, 20}, wantErr: domain.ErrMultipleSellers},
		{name: "not available", productIDs: []int64{10, 12}, wantErr: domain.ErrProductNotAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.svc.Create(h.as(buyerID), CreateOrderInput{
				ProductIDs:      tt.productIDs,
				DeliveryMethod:  domain.DeliveryShipper,
				DeliveryAddress: "123 St",
				DeliveryPhone:   "0900000000",
			})
			require.ErrorIs(t, err, tt.wantErr)

			// Nothing may be reserved on a rejected creation.
			assert.Equal(t, catalog.ProductAvailable, h.gate.status(10))
			assert.Equal(t, 0, h.notifier.calls)
		})
	}
}

func TestCreateOwnProductRejected(t *testing.T) {
	h := newHarness()

	_, err := h.svc.Create(h.as(sellerID), CreateOrderInput{
		ProductIDs:      []int64{10},
		DeliveryMethod:  domain.DeliveryShipper,
		DeliveryAddress: "123 St",
		DeliveryPhone:   "0900000000",
	})
	require.ErrorIs(t, err, domain.ErrBuyerSellerSame)
	assert.Equal(t, catalog.ProductAvailable, h.gate.status(10))
}

func TestCreateRetriesOrderCodeCollision(t *testing.T) {
	h := newHarness()
	h.orders.collideNext = 2

	detail := h.createOrder(t, 10)
	assert.Regexp(t, orderCodePattern, detail.Order.OrderCode)
	assert.Equal(t, catalog.ProductPending, h.gate.status(10))
}

func TestCreateGivesUpAfterCollisionBudget(t *testing.T) {
	h := newHarness()
	h.orders.collideNext = 3

	_, err := h.svc.Create(h.as(buyerID), CreateOrderInput{
		ProductIDs:      []int64{10},
		DeliveryMethod:  domain.DeliveryShipper,
		DeliveryAddress: "123 St",
		DeliveryPhone:   "0900000000",
	})
	require.ErrorIs(t, err, domain.ErrOrderCodeTaken)
	assert.Equal(t, catalog.ProductAvailable, h.gate.status(10), "aborted reservation must be rolled back")
}

func TestCreateNotifierFailureDoesNotFailOrder(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("broker down")

	detail := h.createOrder(t, 10)
	assert.Equal(t, domain.StatusPending, detail.Order.Status)
	assert.Equal(t, catalog.ProductPending, h.gate.status(10))
}

func TestConfirm(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10, 11)

	detail, err := h.svc.Confirm(h.as(sellerID), created.Order.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, detail.Order.Status)
	require.NotNil(t, detail.Order.ConfirmedAt)
	assert.WithinDuration(t, time.Now().UTC(), *detail.Order.ConfirmedAt, 5*time.Second)
	assert.Nil(t, detail.Order.ShippingFeeUpdatedAt)
}

func TestConfirmByBuyerRejected(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10)

	_, err := h.svc.Confirm(h.as(buyerID), created.Order.ID)

	var naErr *domain.NotAuthorizedError
	require.ErrorAs(t, err, &naErr)
	assert.Equal(t, domain.RoleSeller, naErr.Required)

	stored, err := h.orders.GetByID(context.Background(), created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status, "rejected transition must not persist")
}

func TestUpdateShippingFee(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10, 11)

	_, err := h.svc.Confirm(h.as(sellerID), created.Order.ID)
	require.NoError(t, err)

	detail, err := h.svc.UpdateShippingFee(h.as(sellerID), created.Order.ID, 15000)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusShippingFeeUpdated, detail.Order.Status)
	require.NotNil(t, detail.Order.ShippingFee)
	assert.Equal(t, 15000, *detail.Order.ShippingFee)
	assert.Equal(t, 95000, detail.Order.TotalAmount())
}

func TestUpdateShippingFeeNegative(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10)

	_, err := h.svc.UpdateShippingFee(h.as(sellerID), created.Order.ID, -1)

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "shippingFee", vErr.Field)
}

func TestFullLifecycleToCompleted(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10, 11)
	id := created.Order.ID

	_, err := h.svc.Confirm(h.as(sellerID), id)
	require.NoError(t, err)
	_, err = h.svc.UpdateShippingFee(h.as(sellerID), id, 15000)
	require.NoError(t, err)
	_, err = h.svc.MarkShipping(h.as(sellerID), id)
	require.NoError(t, err)
	_, err = h.svc.MarkDelivered(h.as(sellerID), id)
	require.NoError(t, err)

	detail, err := h.svc.Complete(h.as(buyerID), id)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, detail.Order.Status)
	require.NotNil(t, detail.Order.CompletedAt)
	assert.Equal(t, catalog.ProductSold, h.gate.status(10))
	assert.Equal(t, catalog.ProductSold, h.gate.status(11))

	// Terminal state rejects further transitions, with no double side effects.
	_, err = h.svc.Confirm(h.as(sellerID), id)
	var itErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, domain.StatusCompleted, itErr.Current)
}

func TestCancelFromPending(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10, 11)

	detail, err := h.svc.Cancel(h.as(buyerID), created.Order.ID, "changed mind")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, detail.Order.Status)
	assert.Equal(t, "changed mind", detail.Order.CancellationReason)
	require.NotNil(t, detail.CancelledBy)
	assert.Equal(t, buyerID, detail.CancelledBy.ID)
	assert.Equal(t, catalog.ProductAvailable, h.gate.status(10))
	assert.Equal(t, catalog.ProductAvailable, h.gate.status(11))

	_, err = h.svc.Cancel(h.as(buyerID), created.Order.ID, "again")
	var itErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
}

func TestCancelRequiresReason(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10)

	_, err := h.svc.Cancel(h.as(buyerID), created.Order.ID, "  ")

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reason", vErr.Field)
}

func TestConcurrentCreateSingleProduct(t *testing.T) {
	h := newHarness()

	input := CreateOrderInput{
		ProductIDs:      []int64{10},
		DeliveryMethod:  domain.DeliveryShipper,
		DeliveryAddress: "123 St",
		DeliveryPhone:   "0900000000",
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Create(h.as(buyerID), input)
		}(i)
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrProductNotAvailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one creation must win the reservation")
	assert.Equal(t, 1, unavailable)
	assert.Equal(t, catalog.ProductPending, h.gate.status(10))
}

func TestStatusCounts(t *testing.T) {
	h := newHarness()

	first := h.createOrder(t, 10)
	_ = h.createOrder(t, 11)
	_, err := h.svc.Cancel(h.as(buyerID), first.Order.ID, "changed mind")
	require.NoError(t, err)

	counts, err := h.svc.CountsForBuyer(h.as(buyerID))
	require.NoError(t, err)

	assert.Len(t, counts, len(domain.AllStatuses), "every status present, zeros included")
	assert.Equal(t, int64(1), counts[domain.StatusPending])
	assert.Equal(t, int64(1), counts[domain.StatusCancelled])
	assert.Equal(t, int64(0), counts[domain.StatusCompleted])

	sellerCounts, err := h.svc.CountsForSeller(h.as(sellerID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), sellerCounts[domain.StatusPending])

	// Second read is served from the cache.
	queriesBefore := h.orders.countCalls
	_, err = h.svc.CountsForBuyer(h.as(buyerID))
	require.NoError(t, err)
	assert.Equal(t, queriesBefore, h.orders.countCalls)
}

func TestListBoughtAndSold(t *testing.T) {
	h := newHarness()
	created := h.createOrder(t, 10)

	bought, err := h.svc.ListBought(h.as(buyerID), domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, created.Order.ID, bought[0].Order.ID)
	assert.Equal(t, "San Seller", bought[0].Seller.FullName)

	sold, err := h.svc.ListSold(h.as(sellerID), domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, "Binh Buyer", sold[0].Buyer.FullName)

	empty, err := h.svc.ListBought(h.as(buyerID), domain.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTransitionOnMissingOrder(t *testing.T) {
	h := newHarness()

	_, err := h.svc.Confirm(h.as(sellerID), 12345)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
