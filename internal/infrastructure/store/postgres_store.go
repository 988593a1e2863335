package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/example/checkout-service/internal/domain/order"
	_ "github.com/lib/pq"
)

// PostgresStore persists carts and orders in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// InitSchema creates the tables if they do not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS carts (
			cart_id    TEXT PRIMARY KEY,
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS orders (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			amount          BIGINT NOT NULL,
			currency        TEXT NOT NULL,
			items           JSONB,
			payment_method  TEXT NOT NULL,
			paypal_order_id TEXT NOT NULL UNIQUE,
			status          TEXT NOT NULL,
			paypal_details  JSONB,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id);
	`)
	return err
}

// Cart persistence

func (s *PostgresStore) GetCart(ctx context.Context, cartID string) ([]byte, bool, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM carts WHERE cart_id = $1", cartID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (s *PostgresStore) SaveCart(ctx context.Context, cartID string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO carts (cart_id, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (cart_id) DO UPDATE SET state = $2, updated_at = now()`,
		cartID, state,
	)
	return err
}

func (s *PostgresStore) DeleteCart(ctx context.Context, cartID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM carts WHERE cart_id = $1", cartID)
	return err
}

// Order persistence

// UpsertOrder inserts the order unless a row with the same PayPal order
// id already exists. Re-delivery of the same capture result therefore
// never creates a duplicate row.
func (s *PostgresStore) UpsertOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, amount, currency, items, payment_method,
		                     paypal_order_id, status, paypal_details, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (paypal_order_id) DO NOTHING`,
		o.ID, o.UserID, o.Amount, o.Currency, items, o.PaymentMethod,
		o.PayPalOrderID, string(o.Status), []byte(o.PayPalDetails), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	stored, ok, err := s.GetOrderByPayPalID(ctx, o.PayPalOrderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return stored, nil
}

const orderColumns = `id, user_id, amount, currency, items, payment_method,
                      paypal_order_id, status, paypal_details, created_at, updated_at`

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*order.Order, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	return scanOrder(row)
}

func (s *PostgresStore) GetOrderByPayPalID(ctx context.Context, paypalOrderID string) (*order.Order, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE paypal_order_id = $1", paypalOrderID)
	return scanOrder(row)
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *PostgresStore) ListAllOrders(ctx context.Context) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, bool, error) {
	var (
		o       order.Order
		items   []byte
		details []byte
		status  string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Amount, &o.Currency, &items, &o.PaymentMethod,
		&o.PayPalOrderID, &status, &details, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	o.Status = order.Status(status)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, false, err
		}
	}
	o.PayPalDetails = details
	return &o, true, nil
}

func collectOrders(rows *sql.Rows) ([]*order.Order, error) {
	var result []*order.Order
	for rows.Next() {
		o, _, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
