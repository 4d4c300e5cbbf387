package order

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists settlement orders in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS settlement_orders (
    id TEXT PRIMARY KEY,
    reference TEXT NOT NULL,
    amount TEXT NOT NULL,
    token TEXT NOT NULL,
    network TEXT NOT NULL,
    receive_address TEXT NOT NULL,
    sender_fee TEXT NOT NULL,
    transaction_fee TEXT NOT NULL,
    valid_until TIMESTAMPTZ,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    tx_hash TEXT NOT NULL DEFAULT '',
    executed_via TEXT NOT NULL DEFAULT ''
);
`

// NewPostgresStore connects using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Save(ctx context.Context, o Order) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO settlement_orders
    (id, reference, amount, token, network, receive_address, sender_fee, transaction_fee, valid_until, status, created_at, tx_hash, executed_via)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    tx_hash = EXCLUDED.tx_hash,
    executed_via = EXCLUDED.executed_via
`, o.ID, o.Reference, o.Amount, o.Token, o.Network, o.ReceiveAddress,
		o.SenderFee, o.TransactionFee, o.ValidUntil, string(o.Status), o.CreatedAt, o.TxHash, o.ExecutedVia)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (Order, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, reference, amount, token, network, receive_address, sender_fee, transaction_fee, valid_until, status, created_at, tx_hash, executed_via
FROM settlement_orders
WHERE id = $1
`, id)

	var o Order
	var status string
	if err := row.Scan(&o.ID, &o.Reference, &o.Amount, &o.Token, &o.Network, &o.ReceiveAddress,
		&o.SenderFee, &o.TransactionFee, &o.ValidUntil, &status, &o.CreatedAt, &o.TxHash, &o.ExecutedVia); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	return o, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE settlement_orders
SET status = $2
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'expired')
`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already terminal; terminal is fine.
		if _, getErr := p.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (p *PostgresStore) SetExecution(ctx context.Context, id, txHash, via string) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE settlement_orders
SET tx_hash = $2, executed_via = $3
WHERE id = $1
`, id, txHash, via)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
