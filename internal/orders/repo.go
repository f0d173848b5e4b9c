package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the repository uses.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repo owns all reads and writes of orders, products and order_product_map.
// Each write runs in one transaction on one pooled connection, released on
// commit or rollback.
type Repo struct{ DB DB }

var readOnly = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func (r *Repo) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.description, o.created_at, COUNT(DISTINCT m.product_id)
		FROM orders o
		LEFT JOIN order_product_map m ON m.order_id = o.id
		GROUP BY o.id, o.description, o.created_at
		ORDER BY o.id DESC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []OrderSummary{}
	for rows.Next() {
		var s OrderSummary
		if err := rows.Scan(&s.ID, &s.Description, &s.CreatedAt, &s.ProductCount); err != nil {
			return nil, classify(err)
		}
		out = append(out, s)
	}
	return out, classify(rows.Err())
}

// GetOrder reads the order and its products from one snapshot. A missing
// order returns ErrNotFound before products are queried.
func (r *Repo) GetOrder(ctx context.Context, id int64) (OrderDetail, error) {
	var d OrderDetail
	err := r.inTx(ctx, readOnly, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id, description, created_at FROM orders WHERE id=$1`, id).
			Scan(&d.ID, &d.Description, &d.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT DISTINCT p.id, p.name, p.description
			FROM order_product_map m
			JOIN products p ON p.id = m.product_id
			WHERE m.order_id = $1
			ORDER BY p.id`, id)
		if err != nil {
			return err
		}
		defer rows.Close()

		d.Products = []Product{}
		for rows.Next() {
			var p Product
			if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
				return err
			}
			d.Products = append(d.Products, p)
		}
		return rows.Err()
	})
	if err != nil {
		return OrderDetail{}, err
	}
	return d, nil
}

// CreateOrder inserts the order and its associations atomically. An unknown
// product id aborts the whole transaction with ErrUnknownProduct.
func (r *Repo) CreateOrder(ctx context.Context, in OrderInput) (Order, error) {
	in, err := in.Normalize()
	if err != nil {
		return Order{}, err
	}

	var o Order
	err = r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders(description, created_at)
			VALUES ($1, now())
			RETURNING id, description, created_at`, in.Description).
			Scan(&o.ID, &o.Description, &o.CreatedAt)
		if err != nil {
			return err
		}
		return insertProducts(ctx, tx, o.ID, in.ProductIDs)
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// UpdateOrder replaces the description and the whole product set. The
// association rows are deleted and reinserted rather than diffed, so their
// surrogate ids change on every update. The UPDATE runs first and holds the
// order row lock until commit, which serializes concurrent writers of the
// same order.
func (r *Repo) UpdateOrder(ctx context.Context, id int64, in OrderInput) (Order, error) {
	in, err := in.Normalize()
	if err != nil {
		return Order{}, err
	}

	var o Order
	err = r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE orders SET description=$1
			WHERE id=$2
			RETURNING id, description, created_at`, in.Description, id).
			Scan(&o.ID, &o.Description, &o.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_product_map WHERE order_id=$1`, id); err != nil {
			return err
		}
		return insertProducts(ctx, tx, id, in.ProductIDs)
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// DeleteOrder removes the associations and then the order. The cascade on
// order_product_map would cover the first step; it is explicit so the delete
// does not depend on the constraint.
func (r *Repo) DeleteOrder(ctx context.Context, id int64) error {
	return r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_product_map WHERE order_id=$1`, id); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, description FROM products ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, classify(err)
		}
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

// inTx runs fn in a transaction. The deferred rollback releases the
// connection on every exit, a panic in fn included; after Commit it is a
// no-op.
func (r *Repo) inTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, opts)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// insertProducts links orderID to every id in one parameterized statement:
// VALUES ($1,$2),($1,$3),... with the order id bound once.
func insertProducts(ctx context.Context, tx pgx.Tx, orderID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO order_product_map(order_id, product_id) VALUES `)
	args := make([]any, 0, len(productIDs)+1)
	args = append(args, orderID)
	for i, pid := range productIDs {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "($1,$%d)", i+2)
		args = append(args, pid)
	}
	_, err := tx.Exec(ctx, b.String(), args...)
	return err
}
