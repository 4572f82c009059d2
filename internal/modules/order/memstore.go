// README: In-memory order store for single-process deployments and tests.
package order

import (
	"context"
	"sort"
	"sync"

	"takeout/internal/types"
)

// MemStore keeps orders in a map guarded by one mutex. UpdateStatus has the
// same compare-and-set semantics as the Postgres store.
type MemStore struct {
	mu     sync.RWMutex
	orders map[types.ID]*Order
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[types.ID]*Order)}
}

func (s *MemStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.OrderID] = cloneOrder(o)
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, riderID *types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	if riderID != nil {
		r := *riderID
		o.RiderID = &r
	}
	return true, nil
}

func (s *MemStore) ListByStatus(_ context.Context, status Status) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderTime.Before(out[j].OrderTime) })
	return out, nil
}

func (s *MemStore) ListByUser(_ context.Context, userID types.ID) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, o := range s.orders {
		if o.CustomerID == userID || o.MerchantID == userID || (o.RiderID != nil && *o.RiderID == userID) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderTime.After(out[j].OrderTime) })
	return out, nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	if o.RiderID != nil {
		r := *o.RiderID
		c.RiderID = &r
	}
	c.Products = append([]ProductSnapshot(nil), o.Products...)
	return &c
}
