// README: Order lifecycle controller: validation, snapshots, and state transitions.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"takeout/internal/catalog"
	"takeout/internal/identity"
	"takeout/internal/types"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidState   = errors.New("invalid state transition")
	ErrNotFound       = errors.New("order not found")
	ErrConflict       = errors.New("order state conflict")
)

// Dispatcher is the slice of the dispatch engine the lifecycle controller
// touches: waking the assignment loop and returning riders to the idle pool.
type Dispatcher interface {
	OrderReady()
	ReleaseRider(ctx context.Context, riderID types.ID) error
}

type Service struct {
	store     Store
	directory identity.Directory
	catalog   catalog.Provider
	dispatch  Dispatcher
	log       zerolog.Logger
}

func NewService(store Store, directory identity.Directory, provider catalog.Provider, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		catalog:   provider,
		log:       log.With().Str("service", "order").Logger(),
	}
}

// AttachDispatch binds the dispatch engine after construction; the engine and
// the controller reference each other through interfaces.
func (s *Service) AttachDispatch(d Dispatcher) {
	s.dispatch = d
}

// ProductRef names a product from the caller's order request. Price and
// description are re-resolved from the catalog, never trusted from the caller.
type ProductRef struct {
	Name string
}

type CreateCommand struct {
	CustomerToken      string
	MerchantID         types.ID
	Products           []ProductRef
	DestinationAddress string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	user, err := s.resolveToken(ctx, cmd.CustomerToken)
	if err != nil {
		return "", err
	}
	if user.UserType != identity.TypeCustomer {
		return "", ErrUnauthorized
	}
	if len(cmd.Products) == 0 || cmd.DestinationAddress == "" || cmd.MerchantID == "" {
		return "", ErrInvalidRequest
	}
	exists, err := s.directory.MerchantExists(ctx, cmd.MerchantID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrInvalidRequest
	}

	snaps := make([]ProductSnapshot, 0, len(cmd.Products))
	for _, ref := range cmd.Products {
		p, err := s.catalog.ProductByName(ctx, cmd.MerchantID, ref.Name)
		if err != nil {
			return "", err
		}
		if p == nil {
			return "", ErrInvalidRequest
		}
		snaps = append(snaps, ProductSnapshot{
			ProductID:   p.ProductID,
			MerchantID:  p.MerchantID,
			Name:        p.Name,
			Price:       p.Price,
			Description: p.Description,
		})
	}

	o := &Order{
		OrderID:            types.ID(uuid.NewString()),
		CustomerID:         user.UserID,
		MerchantID:         cmd.MerchantID,
		Products:           snaps,
		DestinationAddress: cmd.DestinationAddress,
		Status:             StatusAwaitingPreparation,
		StatusVersion:      0,
		OrderTime:          time.Now(),
	}
	if err := s.store.Create(ctx, o); err != nil {
		return "", err
	}
	s.log.Info().
		Str("order_id", string(o.OrderID)).
		Str("customer_id", string(o.CustomerID)).
		Str("merchant_id", string(o.MerchantID)).
		Int("products", len(snaps)).
		Msg("order created")
	return o.OrderID, nil
}

// Get returns the full order record. The upstream contract shows no
// authorization on order detail reads, so none is applied here.
func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// AdvancePreparation marks the merchant's food as ready, moving the order
// into the dispatch pool.
func (s *Service) AdvancePreparation(ctx context.Context, merchantToken string, orderID types.ID) error {
	user, err := s.resolveToken(ctx, merchantToken)
	if err != nil {
		return err
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if user.UserType != identity.TypeMerchant || user.UserID != o.MerchantID {
		return ErrUnauthorized
	}
	if !CanTransition(o.Status, StatusAwaitingPickup) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.OrderID, o.Status, StatusAwaitingPickup, o.StatusVersion, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if s.dispatch != nil {
		s.dispatch.OrderReady()
	}
	s.log.Info().Str("order_id", string(orderID)).Msg("order awaiting pickup")
	return nil
}

// CompleteDelivery confirms delivery and returns the rider to the idle pool.
func (s *Service) CompleteDelivery(ctx context.Context, riderToken string, orderID types.ID) error {
	user, err := s.resolveToken(ctx, riderToken)
	if err != nil {
		return err
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if user.UserType != identity.TypeRider || o.RiderID == nil || user.UserID != *o.RiderID {
		return ErrUnauthorized
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.OrderID, o.Status, StatusCompleted, o.StatusVersion, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if s.dispatch != nil {
		if err := s.dispatch.ReleaseRider(ctx, user.UserID); err != nil {
			s.log.Error().Err(err).Str("rider_id", string(user.UserID)).Msg("release rider after delivery")
		}
	}
	s.log.Info().
		Str("order_id", string(orderID)).
		Str("rider_id", string(user.UserID)).
		Msg("order completed")
	return nil
}

// Cancel is permitted for the owning customer or merchant while the order has
// no rider. A cancel that races with rider assignment loses once the
// assignment lands and reports ErrInvalidState.
func (s *Service) Cancel(ctx context.Context, actorToken string, orderID types.ID) error {
	user, err := s.resolveToken(ctx, actorToken)
	if err != nil {
		return err
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if user.UserID != o.CustomerID && user.UserID != o.MerchantID {
		return ErrUnauthorized
	}

	for attempt := 0; attempt < 3; attempt++ {
		if !o.Status.Cancellable() {
			return ErrInvalidState
		}
		ok, err := s.store.UpdateStatus(ctx, o.OrderID, o.Status, StatusCancelled, o.StatusVersion, nil)
		if err != nil {
			return err
		}
		if ok {
			s.log.Info().Str("order_id", string(orderID)).Msg("order cancelled")
			return nil
		}
		// Lost a race; re-read and re-check whether cancel is still legal.
		if o, err = s.store.Get(ctx, o.OrderID); err != nil {
			return err
		}
	}
	return ErrConflict
}

// QueryByUser lists every order the token's user participates in.
func (s *Service) QueryByUser(ctx context.Context, token string) ([]*Order, error) {
	user, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store.ListByUser(ctx, user.UserID)
}

// ListUnassigned returns the dispatch pool: orders awaiting pickup, oldest
// first.
func (s *Service) ListUnassigned(ctx context.Context) ([]*Order, error) {
	return s.store.ListByStatus(ctx, StatusAwaitingPickup)
}

// AssignRider transitions awaiting_pickup -> delivering and sets the rider in
// one compare-and-set. Only the dispatch engine calls this; false means the
// order moved (cancelled or already assigned) and the claim must be undone.
func (s *Service) AssignRider(ctx context.Context, orderID, riderID types.ID) (bool, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Status != StatusAwaitingPickup || o.RiderID != nil {
		return false, nil
	}
	ok, err := s.store.UpdateStatus(ctx, o.OrderID, o.Status, StatusDelivering, o.StatusVersion, &riderID)
	if err != nil || !ok {
		return false, err
	}
	s.log.Info().
		Str("order_id", string(orderID)).
		Str("rider_id", string(riderID)).
		Msg("rider assigned")
	return true, nil
}

func (s *Service) resolveToken(ctx context.Context, token string) (*identity.UserInfo, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.directory.UserByToken(ctx, token)
	if errors.Is(err, identity.ErrInvalidToken) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
