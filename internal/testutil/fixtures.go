// Package testutil holds helpers shared by unit and integration tests.
package testutil

import (
	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// HighRiskFields returns a transaction that trips every rule of the shipped model.
func HighRiskFields(transactionID string) entity.TransactionFields {
	return entity.TransactionFields{
		TransactionID:      transactionID,
		Amount:             decimal.RequireFromString("1200.50"),
		TransactionHour:    23,
		MerchantCategory:   entity.MerchantCategoryElectronics,
		ForeignTransaction: true,
		LocationMismatch:   true,
		DeviceTrustScore:   25,
		VelocityLast24h:    8,
		CardholderAge:      45,
	}
}

// LowRiskFields returns a transaction that trips none of the rules of the shipped model.
func LowRiskFields(transactionID string) entity.TransactionFields {
	return entity.TransactionFields{
		TransactionID:    transactionID,
		Amount:           decimal.RequireFromString("42.10"),
		TransactionHour:  14,
		MerchantCategory: entity.MerchantCategoryGrocery,
		DeviceTrustScore: 85,
		VelocityLast24h:  1,
		CardholderAge:    34,
	}
}

// NewTransaction builds a validated transaction from fields and panics on invalid input.
func NewTransaction(f entity.TransactionFields) *entity.Transaction {
	tx, err := entity.NewTransaction(f)
	if err != nil {
		panic(err)
	}
	return tx
}

// SameFields compares transaction fields, treating numerically equal amounts as equal.
func SameFields(a, b entity.TransactionFields) bool {
	if !a.Amount.Equal(b.Amount) {
		return false
	}
	a.Amount, b.Amount = decimal.Zero, decimal.Zero
	return a == b
}
