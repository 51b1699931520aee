// Package postgres is the payout system of record on PostgreSQL.
//
// Rows are read and written through database/sql; open the pool with sql.Open("pgx", dsn)
// (the driver is registered by this package) or use Open.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/unkn0wn-root/dualstore"
	"github.com/unkn0wn-root/dualstore/payout"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

const columns = `payout_id, merchant_id, customer_id, address_id, payout_type, payout_method_id,
amount, destination_currency, source_currency, description, recurring, auto_fulfill,
return_url, entity_type, metadata, created_at, last_modified_at, profile_id, status,
attempt_count`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ payout.DurableStore = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open creates a pgx-backed pool and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("postgres: database url is empty")
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 3 * time.Second
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) Insert(ctx context.Context, n payout.New) (payout.Payout, error) {
	q := `
INSERT INTO payouts (` + columns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
RETURNING ` + columns + `;
`
	p := n.Materialize(s.now())
	out, err := scanPayout(s.db.QueryRowContext(ctx, q, insertArgs(p)...))
	if err != nil {
		if isUniqueViolation(err) {
			return payout.Payout{}, &dualstore.DuplicateEntityError{Entity: payout.Entity, Key: n.Identity().String()}
		}
		return payout.Payout{}, err
	}
	return out, nil
}

// Update writes the result of applying u to this. Concurrent updates are last-writer-wins.
func (s *Store) Update(ctx context.Context, this payout.Payout, u payout.Update) (payout.Payout, error) {
	q := `
UPDATE payouts
SET payout_method_id = $3, amount = $4, destination_currency = $5, source_currency = $6,
    description = $7, recurring = $8, auto_fulfill = $9, return_url = $10, entity_type = $11,
    metadata = $12, last_modified_at = $13, profile_id = $14, status = $15, attempt_count = $16
WHERE merchant_id = $1 AND payout_id = $2
RETURNING ` + columns + `;
`
	next := u.Apply(this)
	out, err := scanPayout(s.db.QueryRowContext(ctx, q,
		next.MerchantID, next.PayoutID,
		next.PayoutMethodID, next.Amount, string(next.DestinationCurrency), string(next.SourceCurrency),
		next.Description, next.Recurring, next.AutoFulfill, next.ReturnURL, string(next.EntityType),
		jsonArg(next.Metadata), next.LastModifiedAt, next.ProfileID, string(next.Status), next.AttemptCount,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payout.Payout{}, dualstore.ErrNotFound
		}
		return payout.Payout{}, err
	}
	return out, nil
}

func (s *Store) FindByIdentity(ctx context.Context, id dualstore.Identity) (payout.Payout, error) {
	p, ok, err := s.FindOptionalByIdentity(ctx, id)
	if err != nil {
		return payout.Payout{}, err
	}
	if !ok {
		return payout.Payout{}, dualstore.ErrNotFound
	}
	return p, nil
}

func (s *Store) FindOptionalByIdentity(ctx context.Context, id dualstore.Identity) (payout.Payout, bool, error) {
	q := `
SELECT ` + columns + `
FROM payouts
WHERE merchant_id = $1 AND payout_id = $2;
`
	out, err := scanPayout(s.db.QueryRowContext(ctx, q, id.TenantID, id.RecordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payout.Payout{}, false, nil
		}
		return payout.Payout{}, false, err
	}
	return out, true, nil
}

func insertArgs(p payout.Payout) []any {
	return []any{
		p.PayoutID, p.MerchantID, p.CustomerID, p.AddressID, string(p.PayoutType), p.PayoutMethodID,
		p.Amount, string(p.DestinationCurrency), string(p.SourceCurrency), p.Description, p.Recurring, p.AutoFulfill,
		p.ReturnURL, string(p.EntityType), jsonArg(p.Metadata), p.CreatedAt, p.LastModifiedAt, p.ProfileID, string(p.Status),
		p.AttemptCount,
	}
}

// jsonArg maps absent metadata to NULL.
func jsonArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (payout.Payout, error) {
	var (
		p                                payout.Payout
		payoutType, entityType, status   string
		srcCur, dstCur                   string
		methodID, description, returnURL sql.NullString
		metadata                         []byte
	)
	err := row.Scan(
		&p.PayoutID, &p.MerchantID, &p.CustomerID, &p.AddressID, &payoutType, &methodID,
		&p.Amount, &dstCur, &srcCur, &description, &p.Recurring, &p.AutoFulfill,
		&returnURL, &entityType, &metadata, &p.CreatedAt, &p.LastModifiedAt, &p.ProfileID, &status,
		&p.AttemptCount,
	)
	if err != nil {
		return payout.Payout{}, err
	}
	p.PayoutType = payout.Type(payoutType)
	p.EntityType = payout.EntityType(entityType)
	p.Status = payout.Status(status)
	p.SourceCurrency = payout.Currency(srcCur)
	p.DestinationCurrency = payout.Currency(dstCur)
	p.PayoutMethodID = nullable(methodID)
	p.Description = nullable(description)
	p.ReturnURL = nullable(returnURL)
	if len(metadata) > 0 {
		p.Metadata = metadata
	}
	return p, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
