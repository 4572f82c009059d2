// README: Dispatch engine tests: claim exclusivity, double-booking invariant, status gate.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"takeout/internal/catalog"
	"takeout/internal/identity"
	"takeout/internal/modules/order"
	"takeout/internal/types"
)

func TestAssignPairsOldestOrderFirst(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first := f.readyOrder(t)
	second := f.readyOrder(t)

	f.engine.AssignNext(ctx)

	f.assertStatus(t, first, order.StatusDelivering)
	f.assertStatus(t, second, order.StatusAwaitingPickup)

	o, _ := f.orders.Get(ctx, first)
	if o.RiderID == nil || *o.RiderID != "r0" {
		t.Fatalf("expected rider r0 on the oldest order, got %v", o.RiderID)
	}
	if got := f.directory.status("r0"); got != identity.StatusDelivering {
		t.Fatalf("expected rider status delivering, got %s", got)
	}
	if claimed, _ := f.board.Claimed(ctx, "r0"); !claimed {
		t.Fatal("expected claim held for the assigned rider")
	}
}

func TestTwoOrdersOneRider(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	a := f.readyOrder(t)
	b := f.readyOrder(t)

	// Repeated passes must not hand the single rider to the second order.
	f.engine.AssignNext(ctx)
	f.engine.AssignNext(ctx)

	oa, _ := f.orders.Get(ctx, a)
	ob, _ := f.orders.Get(ctx, b)
	delivering := 0
	if oa.Status == order.StatusDelivering {
		delivering++
	}
	if ob.Status == order.StatusDelivering {
		delivering++
	}
	if delivering != 1 {
		t.Fatalf("expected exactly 1 delivering order, got %d", delivering)
	}
}

func TestNoIdleRidersIsSteadyState(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	id := f.readyOrder(t)
	f.engine.AssignNext(ctx)
	f.assertStatus(t, id, order.StatusAwaitingPickup)

	// A rider coming online makes the parked order eligible again.
	f.directory.addRider("r9")
	f.engine.AssignNext(ctx)
	f.assertStatus(t, id, order.StatusDelivering)
}

func TestDoubleBookingInvariantUnderLoad(t *testing.T) {
	const orders, riders, passes = 12, 4, 8
	f := newFixture(t, riders)
	ctx := context.Background()

	ids := make([]types.ID, orders)
	for i := range ids {
		ids[i] = f.readyOrder(t)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			f.engine.AssignNext(ctx)
		}()
	}
	close(start)
	wg.Wait()

	perRider := make(map[types.ID]int)
	delivering := 0
	for _, id := range ids {
		o, err := f.orders.Get(ctx, id)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if o.Status == order.StatusDelivering {
			if o.RiderID == nil {
				t.Fatalf("delivering order %s without rider", id)
			}
			perRider[*o.RiderID]++
			delivering++
		} else if o.RiderID != nil {
			t.Fatalf("order %s carries rider %s in status %s", id, *o.RiderID, o.Status)
		}
	}
	for rid, n := range perRider {
		if n != 1 {
			t.Fatalf("rider %s booked onto %d orders", rid, n)
		}
		if got := f.directory.status(rid); got != identity.StatusDelivering {
			t.Fatalf("rider %s delivering an order but directory says %s", rid, got)
		}
	}
	if delivering != riders {
		t.Fatalf("expected %d assignments with %d riders, got %d", riders, riders, delivering)
	}
}

func TestCancelBeatsAssignment(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	id := f.readyOrder(t)
	if err := f.orders.Cancel(ctx, "tok_customer", id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.engine.AssignNext(ctx)

	o, _ := f.orders.Get(ctx, id)
	if o.Status != order.StatusCancelled || o.RiderID != nil {
		t.Fatalf("cancelled order touched by dispatch: %s rider %v", o.Status, o.RiderID)
	}
	// The rider must have been handed back, available for the next order.
	if claimed, _ := f.board.Claimed(ctx, "r0"); claimed {
		t.Fatal("claim leaked after failed assignment")
	}
	next := f.readyOrder(t)
	f.engine.AssignNext(ctx)
	f.assertStatus(t, next, order.StatusDelivering)
}

func TestCompleteDeliveryFreesRiderForReassignment(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first := f.readyOrder(t)
	f.engine.AssignNext(ctx)
	f.assertStatus(t, first, order.StatusDelivering)

	second := f.readyOrder(t)
	f.engine.AssignNext(ctx)
	f.assertStatus(t, second, order.StatusAwaitingPickup)

	if err := f.orders.CompleteDelivery(ctx, "tok_r0", first); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := f.directory.status("r0"); got != identity.StatusIdle {
		t.Fatalf("expected rider idle after completion, got %s", got)
	}
	if claimed, _ := f.board.Claimed(ctx, "r0"); claimed {
		t.Fatal("claim still held after completion")
	}

	f.engine.AssignNext(ctx)
	f.assertStatus(t, second, order.StatusDelivering)
}

func TestUpdateRiderStatusGate(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	if err := f.engine.UpdateRiderStatus(ctx, "tok_customer", identity.StatusIdle); err != order.ErrUnauthorized {
		t.Fatalf("customer token: expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.UpdateRiderStatus(ctx, "bad_token", identity.StatusIdle); err != order.ErrUnauthorized {
		t.Fatalf("bad token: expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.UpdateRiderStatus(ctx, "tok_r0", "休息"); err != order.ErrInvalidRequest {
		t.Fatalf("unknown status: expected ErrInvalidRequest, got %v", err)
	}
	if err := f.engine.UpdateRiderStatus(ctx, "tok_r0", identity.StatusDelivering); err != order.ErrInvalidState {
		t.Fatalf("external delivering: expected ErrInvalidState, got %v", err)
	}

	// idle <-> off_duty is free while no delivery is in flight.
	if err := f.engine.UpdateRiderStatus(ctx, "tok_r0", identity.StatusOffDuty); err != nil {
		t.Fatalf("off duty: %v", err)
	}
	if got := f.directory.status("r0"); got != identity.StatusOffDuty {
		t.Fatalf("expected off_duty, got %s", got)
	}
	if err := f.engine.UpdateRiderStatus(ctx, "tok_r0", identity.StatusIdle); err != nil {
		t.Fatalf("back to idle: %v", err)
	}

	// Once dispatched, external transitions are locked out.
	id := f.readyOrder(t)
	f.engine.AssignNext(ctx)
	f.assertStatus(t, id, order.StatusDelivering)

	if err := f.engine.UpdateRiderStatus(ctx, "tok_r0", identity.StatusIdle); err != order.ErrInvalidState {
		t.Fatalf("idle while delivering: expected ErrInvalidState, got %v", err)
	}
	if err := f.engine.UpdateRiderStatus(ctx, "tok_r0", identity.StatusOffDuty); err != order.ErrInvalidState {
		t.Fatalf("off duty while delivering: expected ErrInvalidState, got %v", err)
	}

	// CompleteDelivery is the only way back.
	if err := f.orders.CompleteDelivery(ctx, "tok_r0", id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := f.engine.UpdateRiderStatus(ctx, "tok_r0", identity.StatusOffDuty); err != nil {
		t.Fatalf("off duty after completion: %v", err)
	}
}

func TestAssignRetriesRiderStatusWrite(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	// The directory drops the first two writes; the assignment has already
	// landed by then, so the engine must push the status through anyway.
	flaky := &flakyDirectory{stubDirectory: f.directory, failures: 2}
	f.engine.directory = flaky

	id := f.readyOrder(t)
	f.engine.AssignNext(ctx)

	f.assertStatus(t, id, order.StatusDelivering)
	if got := f.directory.status("r0"); got != identity.StatusDelivering {
		t.Fatalf("expected rider status delivering after retries, got %s", got)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 write attempts, got %d", flaky.calls)
	}
}

// --- fixtures ---

// flakyDirectory fails the first N rider status writes.
type flakyDirectory struct {
	*stubDirectory
	failures int
	calls    int
}

func (d *flakyDirectory) SetRiderStatus(ctx context.Context, riderID types.ID, status identity.RiderStatus) error {
	d.calls++
	if d.calls <= d.failures {
		return errors.New("upstream unavailable")
	}
	return d.stubDirectory.SetRiderStatus(ctx, riderID, status)
}

type fixture struct {
	orders    *order.Service
	engine    *Engine
	board     Board
	directory *stubDirectory
	catalog   *stubCatalog
}

// readyOrder creates an order and advances it into the dispatch pool.
func (f *fixture) readyOrder(t *testing.T) types.ID {
	t.Helper()
	ctx := context.Background()
	id, err := f.orders.Create(ctx, order.CreateCommand{
		CustomerToken:      "tok_customer",
		MerchantID:         "m1",
		Products:           []order.ProductRef{{Name: "招牌奶茶"}},
		DestinationAddress: "上海市人民广场B座",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.orders.AdvancePreparation(ctx, "tok_merchant", id); err != nil {
		t.Fatalf("advance: %v", err)
	}
	return id
}

func (f *fixture) assertStatus(t *testing.T, id types.ID, want order.Status) {
	t.Helper()
	o, err := f.orders.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != want {
		t.Fatalf("expected status %s, got %s", want, o.Status)
	}
}

func newFixture(t *testing.T, riders int) *fixture {
	t.Helper()
	dir := &stubDirectory{users: map[string]identity.UserInfo{
		"tok_customer": {UserID: "c1", UserType: identity.TypeCustomer},
		"tok_merchant": {UserID: "m1", UserType: identity.TypeMerchant, Address: "上海市南京东路1号"},
	}}
	for i := 0; i < riders; i++ {
		dir.addRider(types.ID(fmt.Sprintf("r%d", i)))
	}
	cat := &stubCatalog{products: []catalog.Product{
		{ProductID: "p1", MerchantID: "m1", Name: "招牌奶茶", Price: 15.9, Description: "每日现做"},
	}}
	board := NewMemBoard()
	orders := order.NewService(order.NewMemStore(), dir, cat, zerolog.Nop())
	engine := NewEngine(orders, dir, board, time.Second, zerolog.Nop())
	orders.AttachDispatch(engine)
	return &fixture{orders: orders, engine: engine, board: board, directory: dir, catalog: cat}
}

type stubDirectory struct {
	mu    sync.Mutex
	users map[string]identity.UserInfo // token -> user
}

func (d *stubDirectory) addRider(id types.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users["tok_"+string(id)] = identity.UserInfo{
		UserID:   id,
		UserType: identity.TypeRider,
		Status:   identity.StatusIdle,
	}
}

func (d *stubDirectory) status(id types.ID) identity.RiderStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users["tok_"+string(id)].Status
}

func (d *stubDirectory) UserByToken(_ context.Context, token string) (*identity.UserInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return &u, nil
}

func (d *stubDirectory) IdleRiders(_ context.Context) ([]identity.UserInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []identity.UserInfo
	for _, u := range d.users {
		if u.UserType == identity.TypeRider && u.Status == identity.StatusIdle {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *stubDirectory) MerchantExists(_ context.Context, merchantID types.ID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.UserType == identity.TypeMerchant && u.UserID == merchantID {
			return true, nil
		}
	}
	return false, nil
}

func (d *stubDirectory) SetRiderStatus(_ context.Context, riderID types.ID, status identity.RiderStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for token, u := range d.users {
		if u.UserID == riderID {
			u.Status = status
			d.users[token] = u
		}
	}
	return nil
}

type stubCatalog struct {
	products []catalog.Product
}

func (c *stubCatalog) ProductsByMerchant(_ context.Context, merchantID types.ID) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range c.products {
		if p.MerchantID == merchantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *stubCatalog) ProductByName(_ context.Context, merchantID types.ID, name string) (*catalog.Product, error) {
	for _, p := range c.products {
		if p.MerchantID == merchantID && p.Name == name {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}
