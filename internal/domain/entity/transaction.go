// Package entity contains the core domain entities of the fraud scoring service.
// These entities represent the fundamental business objects and carry no persistence concerns.
package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Field limits enforced on every transaction.
const (
	MaxTransactionHour  = 23
	MaxDeviceTrustScore = 100
	MinCardholderAge    = 18
	MaxCardholderAge    = 100

	// AmountScale is the number of decimal places an amount may carry.
	AmountScale = 2
)

// MaxAmount is the exclusive upper bound of an amount, the limit of a
// NUMERIC(18, 2) column.
var MaxAmount = decimal.New(1, 16)

// Transaction is a financial event submitted for scoring.
// It is immutable once persisted.
type Transaction struct {
	ID                 int64
	TransactionID      string
	Amount             decimal.Decimal
	TransactionHour    int
	MerchantCategory   MerchantCategory
	ForeignTransaction bool
	LocationMismatch   bool
	DeviceTrustScore   int
	VelocityLast24h    int
	CardholderAge      int
	CreatedAt          time.Time
}

// TransactionFields carries the caller-supplied attributes of a transaction.
type TransactionFields struct {
	TransactionID      string
	Amount             decimal.Decimal
	TransactionHour    int
	MerchantCategory   MerchantCategory
	ForeignTransaction bool
	LocationMismatch   bool
	DeviceTrustScore   int
	VelocityLast24h    int
	CardholderAge      int
}

// NewTransaction creates a new Transaction entity with validation.
// ID and CreatedAt are assigned by the repository on insert.
func NewTransaction(f TransactionFields) (*Transaction, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Transaction{
		TransactionID:      f.TransactionID,
		Amount:             f.Amount,
		TransactionHour:    f.TransactionHour,
		MerchantCategory:   f.MerchantCategory,
		ForeignTransaction: f.ForeignTransaction,
		LocationMismatch:   f.LocationMismatch,
		DeviceTrustScore:   f.DeviceTrustScore,
		VelocityLast24h:    f.VelocityLast24h,
		CardholderAge:      f.CardholderAge,
	}, nil
}

// Validate checks that all fields have valid values.
// Every returned error wraps ErrValidation.
func (f TransactionFields) Validate() error {
	if f.TransactionID == "" {
		return fmt.Errorf("%w: transaction_id must not be empty", ErrValidation)
	}
	return f.ValidateFeatures()
}

// ValidateFeatures checks every model input, ignoring the external identifier.
func (f TransactionFields) ValidateFeatures() error {
	if !f.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, f.Amount)
	}
	// Stored amounts are rounded to cents; finer amounts would score
	// differently on the first call than on every re-score.
	if !f.Amount.Equal(f.Amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: amount must have at most %d decimal places, got %s", ErrValidation, AmountScale, f.Amount)
	}
	if f.Amount.GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("%w: amount must be less than %s, got %s", ErrValidation, MaxAmount, f.Amount)
	}
	if f.TransactionHour < 0 || f.TransactionHour > MaxTransactionHour {
		return fmt.Errorf("%w: transaction_hour must be between 0 and %d, got %d", ErrValidation, MaxTransactionHour, f.TransactionHour)
	}
	if !f.MerchantCategory.Valid() {
		return fmt.Errorf("%w: unknown merchant category %q", ErrValidation, f.MerchantCategory)
	}
	if f.DeviceTrustScore < 0 || f.DeviceTrustScore > MaxDeviceTrustScore {
		return fmt.Errorf("%w: device_trust_score must be between 0 and %d, got %d", ErrValidation, MaxDeviceTrustScore, f.DeviceTrustScore)
	}
	if f.VelocityLast24h < 0 {
		return fmt.Errorf("%w: velocity_last_24h must be non-negative, got %d", ErrValidation, f.VelocityLast24h)
	}
	if f.CardholderAge < MinCardholderAge || f.CardholderAge > MaxCardholderAge {
		return fmt.Errorf("%w: cardholder_age must be between %d and %d, got %d", ErrValidation, MinCardholderAge, MaxCardholderAge, f.CardholderAge)
	}
	return nil
}

// Fields returns the caller-supplied attributes of the transaction.
func (t *Transaction) Fields() TransactionFields {
	return TransactionFields{
		TransactionID:      t.TransactionID,
		Amount:             t.Amount,
		TransactionHour:    t.TransactionHour,
		MerchantCategory:   t.MerchantCategory,
		ForeignTransaction: t.ForeignTransaction,
		LocationMismatch:   t.LocationMismatch,
		DeviceTrustScore:   t.DeviceTrustScore,
		VelocityLast24h:    t.VelocityLast24h,
		CardholderAge:      t.CardholderAge,
	}
}
