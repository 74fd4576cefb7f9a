package entity

// Feature names in the order the model expects them.
const (
	FeatureAmount             = "amount"
	FeatureTransactionHour    = "transaction_hour"
	FeatureMerchantCategory   = "merchant_category"
	FeatureForeignTransaction = "foreign_transaction"
	FeatureLocationMismatch   = "location_mismatch"
	FeatureDeviceTrustScore   = "device_trust_score"
	FeatureVelocityLast24h    = "velocity_last_24h"
	FeatureCardholderAge      = "cardholder_age"
)

// FeatureOrder is the fixed feature ordering of every FeatureVector.
var FeatureOrder = []string{
	FeatureAmount,
	FeatureTransactionHour,
	FeatureMerchantCategory,
	FeatureForeignTransaction,
	FeatureLocationMismatch,
	FeatureDeviceTrustScore,
	FeatureVelocityLast24h,
	FeatureCardholderAge,
}

// Feature is a single named model input. Numeric features use Number
// (booleans are 0 or 1); categorical features use Category.
type Feature struct {
	Name     string
	Number   float64
	Category string
}

// FeatureVector is an ordered list of model inputs following FeatureOrder.
type FeatureVector []Feature

// Lookup returns the feature with the given name.
func (v FeatureVector) Lookup(name string) (Feature, bool) {
	for _, f := range v {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// Names returns the feature names in vector order.
func (v FeatureVector) Names() []string {
	names := make([]string, len(v))
	for i, f := range v {
		names[i] = f.Name
	}
	return names
}

// IsKnownFeature reports whether name is part of FeatureOrder.
func IsKnownFeature(name string) bool {
	for _, n := range FeatureOrder {
		if n == name {
			return true
		}
	}
	return false
}

// IsCategoricalFeature reports whether the named feature carries a category instead of a number.
func IsCategoricalFeature(name string) bool {
	return name == FeatureMerchantCategory
}

// Features builds the model input vector. The external identifier is excluded.
func (f TransactionFields) Features() FeatureVector {
	amount, _ := f.Amount.Float64()
	return FeatureVector{
		{Name: FeatureAmount, Number: amount},
		{Name: FeatureTransactionHour, Number: float64(f.TransactionHour)},
		{Name: FeatureMerchantCategory, Category: string(f.MerchantCategory)},
		{Name: FeatureForeignTransaction, Number: boolToFloat(f.ForeignTransaction)},
		{Name: FeatureLocationMismatch, Number: boolToFloat(f.LocationMismatch)},
		{Name: FeatureDeviceTrustScore, Number: float64(f.DeviceTrustScore)},
		{Name: FeatureVelocityLast24h, Number: float64(f.VelocityLast24h)},
		{Name: FeatureCardholderAge, Number: float64(f.CardholderAge)},
	}
}

// Features builds the model input vector for a stored transaction.
func (t *Transaction) Features() FeatureVector {
	return t.Fields().Features()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
