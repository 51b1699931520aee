package payout

import (
	"github.com/unkn0wn-root/dualstore"
	"github.com/unkn0wn-root/dualstore/codec"
	"github.com/unkn0wn-root/dualstore/provider"
)

const (
	Entity    = "payouts"
	KeyPrefix = "po"
)

// Store serves payouts. Shard keys are mid_<merchant>_po_<payout>.
type Store = dualstore.Store[Payout, New, Update]

// DurableStore is a payout system of record, e.g. payout/postgres.
type DurableStore = dualstore.DurableStore[Payout, New, Update]

type Config struct {
	Cache   provider.Port
	Durable DurableStore

	Codec  codec.Codec[Payout] // nil => JSON
	Logger dualstore.Logger
	Hooks  dualstore.Hooks
}

func NewStore(cfg Config) (*Store, error) {
	return dualstore.New(dualstore.Options[Payout, New, Update]{
		Entity:    Entity,
		KeyPrefix: KeyPrefix,
		Cache:     cfg.Cache,
		Durable:   cfg.Durable,
		Codec:     cfg.Codec,
		Logger:    cfg.Logger,
		Hooks:     cfg.Hooks,
	})
}
