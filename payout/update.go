package payout

import (
	"encoding/json"
	"fmt"
	"time"
)

// Update is a closed set of payout changesets. Apply never touches identity fields.
type Update interface {
	Apply(Payout) Payout
	Variant() string
	isUpdate()
}

const (
	VariantGeneral        = "update"
	VariantPayoutMethodID = "payout_method_id_update"
	VariantRecurring      = "recurring_update"
	VariantAttemptCount   = "attempt_count_update"
)

// GeneralUpdate overwrites every value field. Pointer fields overwrite only when set.
// LastModifiedAt, when set, replaces the record's modification time; callers choose it.
type GeneralUpdate struct {
	Amount              int64           `json:"amount"`
	DestinationCurrency Currency        `json:"destination_currency"`
	SourceCurrency      Currency        `json:"source_currency"`
	Description         *string         `json:"description,omitempty"`
	Recurring           bool            `json:"recurring"`
	AutoFulfill         bool            `json:"auto_fulfill"`
	ReturnURL           *string         `json:"return_url,omitempty"`
	EntityType          EntityType      `json:"entity_type"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	ProfileID           string          `json:"profile_id"`
	Status              Status          `json:"status"`
	LastModifiedAt      *time.Time      `json:"last_modified_at,omitempty"`
}

func (u GeneralUpdate) Apply(p Payout) Payout {
	p.Amount = u.Amount
	p.DestinationCurrency = u.DestinationCurrency
	p.SourceCurrency = u.SourceCurrency
	if u.Description != nil {
		p.Description = u.Description
	}
	p.Recurring = u.Recurring
	p.AutoFulfill = u.AutoFulfill
	if u.ReturnURL != nil {
		p.ReturnURL = u.ReturnURL
	}
	p.EntityType = u.EntityType
	if len(u.Metadata) > 0 {
		p.Metadata = u.Metadata
	}
	p.ProfileID = u.ProfileID
	p.Status = u.Status
	if u.LastModifiedAt != nil {
		p.LastModifiedAt = *u.LastModifiedAt
	}
	return p
}

func (GeneralUpdate) Variant() string { return VariantGeneral }
func (GeneralUpdate) isUpdate()       {}

type PayoutMethodIDUpdate struct {
	PayoutMethodID *string `json:"payout_method_id"`
}

func (u PayoutMethodIDUpdate) Apply(p Payout) Payout {
	p.PayoutMethodID = u.PayoutMethodID
	return p
}
func (PayoutMethodIDUpdate) Variant() string { return VariantPayoutMethodID }
func (PayoutMethodIDUpdate) isUpdate()       {}

type RecurringUpdate struct {
	Recurring bool `json:"recurring"`
}

func (u RecurringUpdate) Apply(p Payout) Payout {
	p.Recurring = u.Recurring
	return p
}
func (RecurringUpdate) Variant() string { return VariantRecurring }
func (RecurringUpdate) isUpdate()       {}

type AttemptCountUpdate struct {
	AttemptCount int16 `json:"attempt_count"`
}

func (u AttemptCountUpdate) Apply(p Payout) Payout {
	p.AttemptCount = u.AttemptCount
	return p
}
func (AttemptCountUpdate) Variant() string { return VariantAttemptCount }
func (AttemptCountUpdate) isUpdate()       {}

// envelope is the tagged wire form of an Update.
type envelope struct {
	Variant string          `json:"variant"`
	Data    json.RawMessage `json:"data"`
}

// MarshalUpdate encodes u as {"variant": ..., "data": ...}.
func MarshalUpdate(u Update) ([]byte, error) {
	if u == nil {
		return nil, fmt.Errorf("payout: nil update")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("payout: encode %s: %w", u.Variant(), err)
	}
	return json.Marshal(envelope{Variant: u.Variant(), Data: data})
}

// UnmarshalUpdate decodes the output of MarshalUpdate. A change record stores the variant
// and data separately; DecodeUpdate handles that form.
func UnmarshalUpdate(b []byte) (Update, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("payout: decode update envelope: %w", err)
	}
	return DecodeUpdate(env.Variant, env.Data)
}

// DecodeUpdate rebuilds an Update from its variant name and JSON body.
func DecodeUpdate(variant string, data []byte) (Update, error) {
	var (
		u   Update
		err error
	)
	switch variant {
	case VariantGeneral:
		var v GeneralUpdate
		err = json.Unmarshal(data, &v)
		u = v
	case VariantPayoutMethodID:
		var v PayoutMethodIDUpdate
		err = json.Unmarshal(data, &v)
		u = v
	case VariantRecurring:
		var v RecurringUpdate
		err = json.Unmarshal(data, &v)
		u = v
	case VariantAttemptCount:
		var v AttemptCountUpdate
		err = json.Unmarshal(data, &v)
		u = v
	default:
		return nil, fmt.Errorf("payout: unknown update variant %q", variant)
	}
	if err != nil {
		return nil, fmt.Errorf("payout: decode %s: %w", variant, err)
	}
	return u, nil
}
