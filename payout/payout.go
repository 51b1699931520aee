// Package payout is the payout record kind served through dualstore: the record, its
// insertable form and the closed set of update variants.
package payout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/dualstore"
)

type Status string

const (
	StatusSuccess                  Status = "success"
	StatusFailed                   Status = "failed"
	StatusCancelled                Status = "cancelled"
	StatusInitiated                Status = "initiated"
	StatusExpired                  Status = "expired"
	StatusReversed                 Status = "reversed"
	StatusPending                  Status = "pending"
	StatusIneligible               Status = "ineligible"
	StatusRequiresCreation         Status = "requires_creation"
	StatusRequiresPayoutMethodData Status = "requires_payout_method_data"
	StatusRequiresFulfillment      Status = "requires_fulfillment"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusInitiated, StatusExpired,
		StatusReversed, StatusPending, StatusIneligible, StatusRequiresCreation,
		StatusRequiresPayoutMethodData, StatusRequiresFulfillment:
		return true
	}
	return false
}

type Type string

const (
	TypeCard   Type = "card"
	TypeBank   Type = "bank"
	TypeWallet Type = "wallet"
)

func (t Type) Valid() bool { return t == TypeCard || t == TypeBank || t == TypeWallet }

type EntityType string

const (
	EntityIndividual    EntityType = "Individual"
	EntityCompany       EntityType = "Company"
	EntityNonProfit     EntityType = "NonProfit"
	EntityPublicSector  EntityType = "PublicSector"
	EntityNaturalPerson EntityType = "NaturalPerson"
	EntityPersonal      EntityType = "Personal"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityIndividual, EntityCompany, EntityNonProfit, EntityPublicSector, EntityNaturalPerson, EntityPersonal:
		return true
	}
	return false
}

// Currency is an ISO 4217 alphabetic code, e.g. "EUR".
type Currency string

func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

// Payout is one payout of a merchant. Amount is in minor units of SourceCurrency.
type Payout struct {
	PayoutID            string          `json:"payout_id"`
	MerchantID          string          `json:"merchant_id"`
	CustomerID          string          `json:"customer_id"`
	AddressID           string          `json:"address_id"`
	PayoutType          Type            `json:"payout_type"`
	PayoutMethodID      *string         `json:"payout_method_id,omitempty"`
	Amount              int64           `json:"amount"`
	DestinationCurrency Currency        `json:"destination_currency"`
	SourceCurrency      Currency        `json:"source_currency"`
	Description         *string         `json:"description,omitempty"`
	Recurring           bool            `json:"recurring"`
	AutoFulfill         bool            `json:"auto_fulfill"`
	ReturnURL           *string         `json:"return_url,omitempty"`
	EntityType          EntityType      `json:"entity_type"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	LastModifiedAt      time.Time       `json:"last_modified_at"`
	ProfileID           string          `json:"profile_id"`
	Status              Status          `json:"status"`
	AttemptCount        int16           `json:"attempt_count"`
}

func (p Payout) Identity() dualstore.Identity {
	return dualstore.Identity{TenantID: p.MerchantID, RecordID: p.PayoutID}
}

// New is the insertable form of a Payout. Nil timestamps default to the insert time.
type New struct {
	PayoutID            string          `json:"payout_id"`
	MerchantID          string          `json:"merchant_id"`
	CustomerID          string          `json:"customer_id"`
	AddressID           string          `json:"address_id"`
	PayoutType          Type            `json:"payout_type"`
	PayoutMethodID      *string         `json:"payout_method_id,omitempty"`
	Amount              int64           `json:"amount"`
	DestinationCurrency Currency        `json:"destination_currency"`
	SourceCurrency      Currency        `json:"source_currency"`
	Description         *string         `json:"description,omitempty"`
	Recurring           bool            `json:"recurring"`
	AutoFulfill         bool            `json:"auto_fulfill"`
	ReturnURL           *string         `json:"return_url,omitempty"`
	EntityType          EntityType      `json:"entity_type"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	CreatedAt           *time.Time      `json:"created_at,omitempty"`
	LastModifiedAt      *time.Time      `json:"last_modified_at,omitempty"`
	ProfileID           string          `json:"profile_id"`
	Status              Status          `json:"status"`
	AttemptCount        int16           `json:"attempt_count"`
}

func (n New) Identity() dualstore.Identity {
	return dualstore.Identity{TenantID: n.MerchantID, RecordID: n.PayoutID}
}

// Materialize builds the full record, using now for absent timestamps.
func (n New) Materialize(now time.Time) Payout {
	created, modified := now, now
	if n.CreatedAt != nil {
		created = *n.CreatedAt
	}
	if n.LastModifiedAt != nil {
		modified = *n.LastModifiedAt
	}
	return Payout{
		PayoutID:            n.PayoutID,
		MerchantID:          n.MerchantID,
		CustomerID:          n.CustomerID,
		AddressID:           n.AddressID,
		PayoutType:          n.PayoutType,
		PayoutMethodID:      n.PayoutMethodID,
		Amount:              n.Amount,
		DestinationCurrency: n.DestinationCurrency,
		SourceCurrency:      n.SourceCurrency,
		Description:         n.Description,
		Recurring:           n.Recurring,
		AutoFulfill:         n.AutoFulfill,
		ReturnURL:           n.ReturnURL,
		EntityType:          n.EntityType,
		Metadata:            n.Metadata,
		CreatedAt:           created,
		LastModifiedAt:      modified,
		ProfileID:           n.ProfileID,
		Status:              n.Status,
		AttemptCount:        n.AttemptCount,
	}
}

// Validate checks the fields a durable row cannot do without.
func (n New) Validate() error {
	var errs []error
	if n.PayoutID == "" {
		errs = append(errs, errors.New("payout_id is required"))
	}
	if n.MerchantID == "" {
		errs = append(errs, errors.New("merchant_id is required"))
	}
	if n.Amount < 0 {
		errs = append(errs, fmt.Errorf("amount %d is negative", n.Amount))
	}
	if !n.PayoutType.Valid() {
		errs = append(errs, fmt.Errorf("unknown payout_type %q", n.PayoutType))
	}
	if !n.SourceCurrency.Valid() || !n.DestinationCurrency.Valid() {
		errs = append(errs, fmt.Errorf("invalid currency pair %q/%q", n.SourceCurrency, n.DestinationCurrency))
	}
	if !n.EntityType.Valid() {
		errs = append(errs, fmt.Errorf("unknown entity_type %q", n.EntityType))
	}
	if !n.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", n.Status))
	}
	if len(n.Metadata) > 0 && !json.Valid(n.Metadata) {
		errs = append(errs, errors.New("metadata is not valid JSON"))
	}
	return errors.Join(errs...)
}
