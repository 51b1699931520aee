// Package postgres appends change records to an outbox table in the durable store.
//
//	CREATE TABLE kv_changelog (
//	  id          uuid PRIMARY KEY,
//	  entity      text        NOT NULL,
//	  op          text        NOT NULL,
//	  shard_key   text        NOT NULL,
//	  payload     jsonb       NOT NULL,
//	  status      text        NOT NULL DEFAULT 'pending',
//	  created_at  timestamptz NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/dualstore/changelog"
	"github.com/unkn0wn-root/dualstore/codec"
)

const defaultTable = "kv_changelog"

type Sink struct {
	db    *sql.DB
	codec codec.Codec[changelog.Record]
	query string
}

var _ changelog.Sink = (*Sink)(nil)

type Config struct {
	DB    *sql.DB
	Table string // "" => kv_changelog
}

func New(cfg Config) (*Sink, error) {
	if cfg.DB == nil {
		return nil, errors.New("changelog/postgres: nil db")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	return &Sink{
		db:    cfg.DB,
		codec: changelog.JSONCodec,
		query: fmt.Sprintf(`
INSERT INTO %s (id, entity, op, shard_key, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING;
`, table),
	}, nil
}

// Append is idempotent per record id.
func (s *Sink) Append(ctx context.Context, r changelog.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	payload, err := s.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("changelog/postgres: encode: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.query, r.ID.String(), r.Entity, string(r.Op), r.ShardKey, payload)
	return err
}
