package orders

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Repo{DB: mock}, mock
}

func strptr(s string) *string { return &s }

var (
	writeTx = pgx.TxOptions{}
	created = time.Date(2024, 11, 2, 10, 0, 0, 0, time.UTC)
)

func TestListOrders(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM orders o").
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at", "count"}).
			AddRow(int64(7), "Laptop bundle", created, 2).
			AddRow(int64(3), "Empty order", created, 0))

	got, err := repo.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, 2, got[0].ProductCount)
	assert.Equal(t, 0, got[1].ProductCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersEmptyIsNotNil(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM orders o").
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at", "count"}))

	got, err := repo.ListOrders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListOrdersConnectivityFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM orders o").WillReturnError(&pgconn.PgError{Code: "08006"})

	_, err := repo.ListOrders(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, description, created_at FROM orders WHERE id=$1")).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(7), "Laptop bundle", created))
	mock.ExpectQuery("SELECT DISTINCT p.id").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description"}).
			AddRow(int64(1), "HP laptop", strptr("This is HP laptop")).
			AddRow(int64(2), "lenovo laptop", strptr("This is lenovo")))
	mock.ExpectCommit()

	got, err := repo.GetOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Laptop bundle", got.Description)
	require.Len(t, got.Products, 2)
	assert.Equal(t, int64(1), got.Products[0].ID)
	assert.Equal(t, "This is lenovo", *got.Products[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderWithoutProducts(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, description, created_at FROM orders WHERE id=$1")).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(3), "Empty order", created))
	mock.ExpectQuery("SELECT DISTINCT p.id").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description"}))
	mock.ExpectCommit()

	got, err := repo.GetOrder(context.Background(), 3)
	require.NoError(t, err)
	assert.NotNil(t, got.Products)
	assert.Empty(t, got.Products)
}

func TestGetOrderNotFoundSkipsProducts(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, description, created_at FROM orders WHERE id=$1")).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.GetOrder(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderWithProducts(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs("Laptop bundle").
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(11), "Laptop bundle", created))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_product_map(order_id, product_id) VALUES ($1,$2),($1,$3)")).
		WithArgs(int64(11), int64(1), int64(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	got, err := repo.CreateOrder(context.Background(), OrderInput{Description: "  Laptop bundle ", ProductIDs: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderWithoutProductsSkipsInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs("Solo").
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(12), "Solo", created))
	mock.ExpectCommit()

	_, err := repo.CreateOrder(context.Background(), OrderInput{Description: "Solo"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderUnknownProductRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs("Bad bundle").
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(13), "Bad bundle", created))
	mock.ExpectExec("INSERT INTO order_product_map").
		WithArgs(int64(13), int64(1), int64(999)).
		WillReturnError(&pgconn.PgError{Code: "23503", Detail: `Key (product_id)=(999) is not present in table "products".`})
	mock.ExpectRollback()

	_, err := repo.CreateOrder(context.Background(), OrderInput{Description: "Bad bundle", ProductIDs: []int64{1, 999}})
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.Contains(t, err.Error(), "999")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderValidationHappensBeforeAnyWrite(t *testing.T) {
	cases := []struct {
		name string
		in   OrderInput
	}{
		{name: "empty", in: OrderInput{}},
		{name: "blank", in: OrderInput{Description: "   "}},
		{name: "too long", in: OrderInput{Description: strings.Repeat("x", DescriptionMaxLen+1)}},
		{name: "bad product id", in: OrderInput{Description: "ok", ProductIDs: []int64{1, 0}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			_, err := repo.CreateOrder(context.Background(), tc.in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateOrderReplacesProducts(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("UPDATE orders SET description").
		WithArgs("Laptop bundle v2", int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(11), "Laptop bundle v2", created))
	mock.ExpectExec("DELETE FROM order_product_map WHERE order_id").
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_product_map(order_id, product_id) VALUES ($1,$2)")).
		WithArgs(int64(11), int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	got, err := repo.UpdateOrder(context.Background(), 11, OrderInput{Description: "Laptop bundle v2", ProductIDs: []int64{3}})
	require.NoError(t, err)
	assert.Equal(t, "Laptop bundle v2", got.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderToEmptySetOnlyDeletes(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("UPDATE orders SET description").
		WithArgs("Nothing", int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(11), "Nothing", created))
	mock.ExpectExec("DELETE FROM order_product_map WHERE order_id").
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	_, err := repo.UpdateOrder(context.Background(), 11, OrderInput{Description: "Nothing", ProductIDs: []int64{}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderNotFoundStopsBeforeAssociations(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("UPDATE orders SET description").
		WithArgs("x", int64(404)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateOrder(context.Background(), 404, OrderInput{Description: "x", ProductIDs: []int64{1}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderUnknownProductRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("UPDATE orders SET description").
		WithArgs("x", int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(int64(11), "x", created))
	mock.ExpectExec("DELETE FROM order_product_map WHERE order_id").
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO order_product_map").
		WithArgs(int64(11), int64(42)).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	_, err := repo.UpdateOrder(context.Background(), 11, OrderInput{Description: "x", ProductIDs: []int64{42}})
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM orders WHERE id=$1 FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("DELETE FROM order_product_map WHERE order_id").
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE id=$1")).
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteOrder(context.Background(), 11))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrderMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM orders WHERE id=$1 FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.DeleteOrder(context.Background(), 11), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrderZeroRowsRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM orders WHERE id=$1 FOR UPDATE")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("DELETE FROM order_product_map WHERE order_id").
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE id=$1")).
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.DeleteOrder(context.Background(), 11), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailureIsUnavailable(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx).WillReturnError(&pgconn.PgError{Code: "57P03"})

	err := repo.DeleteOrder(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPanicInTransactionRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(writeTx)
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = repo.inTx(context.Background(), writeTx, func(pgx.Tx) error {
			panic("scan into nil")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIDsBeyondInt32AreBoundAsBigint(t *testing.T) {
	const big = int64(1) << 31
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(readOnly)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, description, created_at FROM orders WHERE id=$1")).
		WithArgs(big).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectBeginTx(writeTx)
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs("Big ids").
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "created_at"}).
			AddRow(big+1, "Big ids", created))
	mock.ExpectExec("INSERT INTO order_product_map").
		WithArgs(big+1, int64(3000000000)).
		WillReturnError(&pgconn.PgError{Code: "23503", Detail: `Key (product_id)=(3000000000) is not present in table "products".`})
	mock.ExpectRollback()

	_, err := repo.GetOrder(context.Background(), big)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.CreateOrder(context.Background(), OrderInput{Description: "Big ids", ProductIDs: []int64{3000000000}})
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM products ORDER BY id").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description"}).
			AddRow(int64(1), "HP laptop", strptr("This is HP laptop")).
			AddRow(int64(4), "Bike", (*string)(nil)))

	got, err := repo.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[1].Description)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "fk", err: &pgconn.PgError{Code: "23503"}, want: ErrUnknownProduct},
		{name: "connection", err: &pgconn.PgError{Code: "08001"}, want: ErrUnavailable},
		{name: "shutdown", err: &pgconn.PgError{Code: "57P01"}, want: ErrUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrUnavailable},
		{name: "sentinel kept", err: ErrNotFound, want: ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tc.err), tc.want)
		})
	}

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
	assert.Nil(t, classify(nil))
}
