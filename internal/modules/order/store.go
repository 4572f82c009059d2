// README: Order store interface and the PostgreSQL implementation.
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"takeout/internal/types"
)

// Store is the system of record for order lifecycle state. UpdateStatus is a
// compare-and-set: it succeeds only when the caller's observed status and
// version still hold, which is what serializes concurrent transitions.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, riderID *types.ID) (bool, error)
	// ListByStatus returns orders in the given status, oldest first.
	ListByStatus(ctx context.Context, status Status) ([]*Order, error)
	// ListByUser returns orders where the user is the customer, merchant, or rider.
	ListByUser(ctx context.Context, userID types.ID) ([]*Order, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
        INSERT INTO orders (
            id, customer_id, merchant_id, rider_id,
            destination_address, status, status_version, order_time
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(o.OrderID),
		string(o.CustomerID),
		string(o.MerchantID),
		toStringPtr(o.RiderID),
		o.DestinationAddress,
		string(o.Status),
		o.StatusVersion,
		o.OrderTime,
	)
	if err != nil {
		return err
	}
	for i, p := range o.Products {
		_, err = tx.Exec(ctx, `
            INSERT INTO order_products (
                order_id, position, product_id, merchant_id, name, price, description
            ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(o.OrderID), i, string(p.ProductID), string(p.MerchantID),
			p.Name, p.Price, p.Description,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, customer_id, merchant_id, rider_id,
               destination_address, status, status_version, order_time
        FROM orders
        WHERE id = $1`, string(id),
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if o.Products, err = s.products(ctx, o.OrderID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, riderID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            rider_id = COALESCE($2, rider_id)
        WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		toStringPtr(riderID),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, customer_id, merchant_id, rider_id,
               destination_address, status, status_version, order_time
        FROM orders
        WHERE status = $1
        ORDER BY order_time ASC`, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collect(ctx, rows)
}

func (s *PGStore) ListByUser(ctx context.Context, userID types.ID) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, customer_id, merchant_id, rider_id,
               destination_address, status, status_version, order_time
        FROM orders
        WHERE customer_id = $1 OR merchant_id = $1 OR rider_id = $1
        ORDER BY order_time DESC`, string(userID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collect(ctx, rows)
}

func (s *PGStore) collect(ctx context.Context, rows pgx.Rows) ([]*Order, error) {
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		var err error
		if o.Products, err = s.products(ctx, o.OrderID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) products(ctx context.Context, orderID types.ID) ([]ProductSnapshot, error) {
	rows, err := s.db.Query(ctx, `
        SELECT product_id, merchant_id, name, price, description
        FROM order_products
        WHERE order_id = $1
        ORDER BY position ASC`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []ProductSnapshot
	for rows.Next() {
		var p ProductSnapshot
		if err := rows.Scan(&p.ProductID, &p.MerchantID, &p.Name, &p.Price, &p.Description); err != nil {
			return nil, err
		}
		snaps = append(snaps, p)
	}
	return snaps, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var riderID *string
	err := row.Scan(
		&o.OrderID, &o.CustomerID, &o.MerchantID, &riderID,
		&o.DestinationAddress, &o.Status, &o.StatusVersion, &o.OrderTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if riderID != nil {
		r := types.ID(*riderID)
		o.RiderID = &r
	}
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
