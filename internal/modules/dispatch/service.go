// README: Dispatch engine: pairs orders awaiting pickup with idle riders.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"takeout/internal/identity"
	"takeout/internal/modules/order"
	"takeout/internal/types"
)

// OrderPool is the slice of the order module the engine drives: the dispatch
// queue and the assignment compare-and-set.
type OrderPool interface {
	ListUnassigned(ctx context.Context) ([]*order.Order, error)
	AssignRider(ctx context.Context, orderID, riderID types.ID) (bool, error)
}

type Engine struct {
	orders    OrderPool
	directory identity.Directory
	board     Board
	wake      chan struct{}
	tick      time.Duration
	log       zerolog.Logger
}

func NewEngine(orders OrderPool, directory identity.Directory, board Board, tick time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		orders:    orders,
		directory: directory,
		board:     board,
		wake:      make(chan struct{}, 1),
		tick:      tick,
		log:       log.With().Str("service", "dispatch").Logger(),
	}
}

// OrderReady wakes the loop when an order enters the dispatch pool.
func (e *Engine) OrderReady() { e.notify() }

// RiderIdle wakes the loop when a rider becomes available.
func (e *Engine) RiderIdle() { e.notify() }

// notify coalesces triggers; a pending wake already covers any burst.
func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run drives assignment passes on wake events, with a ticker as a safety net
// for triggers lost across process boundaries.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}
		e.AssignNext(ctx)
	}
}

// AssignNext runs one assignment pass: snapshot the awaiting-pickup orders
// (oldest first) and the idle riders, then claim one rider per order. Running
// out of riders is expected steady state, not an error.
func (e *Engine) AssignNext(ctx context.Context) {
	orders, err := e.orders.ListUnassigned(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("list unassigned orders")
		return
	}
	if len(orders) == 0 {
		return
	}
	riders, err := e.directory.IdleRiders(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("list idle riders")
		return
	}

	for _, o := range orders {
		if len(riders) == 0 {
			return
		}
		riders = e.assignOne(ctx, o, riders)
	}
}

// assignOne tries each remaining rider for the order and returns the riders
// still available afterwards.
func (e *Engine) assignOne(ctx context.Context, o *order.Order, riders []identity.UserInfo) []identity.UserInfo {
	for i, r := range riders {
		claimed, err := e.board.Claim(ctx, r.UserID)
		if err != nil {
			e.log.Error().Err(err).Str("rider_id", string(r.UserID)).Msg("claim rider")
			continue
		}
		if !claimed {
			// Lost the rider to a concurrent assignment; try the next one.
			continue
		}
		ok, err := e.orders.AssignRider(ctx, o.OrderID, r.UserID)
		if err != nil || !ok {
			// The order moved under us (cancelled or already assigned).
			// Undo the claim; the rider stays available for later orders.
			if relErr := e.board.Release(ctx, r.UserID); relErr != nil {
				e.log.Error().Err(relErr).Str("rider_id", string(r.UserID)).Msg("release claim")
			}
			if err != nil {
				e.log.Error().Err(err).Str("order_id", string(o.OrderID)).Msg("assign rider")
			}
			return riders[i:]
		}
		if err := e.writeRiderStatus(ctx, r.UserID, identity.StatusDelivering); err != nil {
			e.log.Error().Err(err).Str("rider_id", string(r.UserID)).Msg("write rider status")
		}
		e.log.Info().
			Str("order_id", string(o.OrderID)).
			Str("rider_id", string(r.UserID)).
			Msg("order dispatched")
		return append(append([]identity.UserInfo(nil), riders[:i]...), riders[i+1:]...)
	}
	return nil
}

// writeRiderStatus pushes a status the engine has already committed to. The
// order transition landed before this runs, so a transient directory failure
// must not leave the recorded status contradicting the assignment.
func (e *Engine) writeRiderStatus(ctx context.Context, riderID types.ID, status identity.RiderStatus) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = e.directory.SetRiderStatus(ctx, riderID, status); err == nil {
			return nil
		}
	}
	return err
}

// ReleaseRider returns a rider to the idle pool after a completed delivery.
// Implements order.Dispatcher.
func (e *Engine) ReleaseRider(ctx context.Context, riderID types.ID) error {
	if err := e.writeRiderStatus(ctx, riderID, identity.StatusIdle); err != nil {
		return err
	}
	if err := e.board.Release(ctx, riderID); err != nil {
		return err
	}
	e.RiderIdle()
	return nil
}

// UpdateRiderStatus gates externally requested rider transitions. A rider
// with an in-flight delivery cannot change status except through delivery
// completion, and "delivering" itself is never settable from outside.
func (e *Engine) UpdateRiderStatus(ctx context.Context, riderToken string, newStatus identity.RiderStatus) error {
	if !identity.ValidRiderStatus(newStatus) {
		return order.ErrInvalidRequest
	}
	user, err := e.directory.UserByToken(ctx, riderToken)
	if err != nil {
		if err == identity.ErrInvalidToken {
			return order.ErrUnauthorized
		}
		return err
	}
	if user.UserType != identity.TypeRider {
		return order.ErrUnauthorized
	}
	if newStatus == identity.StatusDelivering {
		return order.ErrInvalidState
	}

	// Holding the claim for the duration of the write excludes a concurrent
	// assignment from picking this rider mid-transition.
	claimed, err := e.board.Claim(ctx, user.UserID)
	if err != nil {
		return err
	}
	if !claimed {
		return order.ErrInvalidState
	}

	setErr := e.directory.SetRiderStatus(ctx, user.UserID, newStatus)
	if relErr := e.board.Release(ctx, user.UserID); relErr != nil {
		e.log.Error().Err(relErr).Str("rider_id", string(user.UserID)).Msg("release claim")
	}
	if setErr != nil {
		return setErr
	}
	e.log.Info().
		Str("rider_id", string(user.UserID)).
		Str("status", string(newStatus)).
		Msg("rider status updated")
	if newStatus == identity.StatusIdle {
		e.RiderIdle()
	}
	return nil
}
