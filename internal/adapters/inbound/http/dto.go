package http

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// transactionRequest is the JSON body of POST /score and POST /predict.
// Pointer fields distinguish a missing field from its zero value.
type transactionRequest struct {
	TransactionID      predictID        `json:"transaction_id"`
	Amount             *decimal.Decimal `json:"amount" binding:"required"`
	TransactionHour    *int             `json:"transaction_hour" binding:"required,min=0,max=23"`
	MerchantCategory   string           `json:"merchant_category" binding:"required,oneof=Electronics Travel Grocery Food Clothing"`
	ForeignTransaction *bool            `json:"foreign_transaction" binding:"required"`
	LocationMismatch   *bool            `json:"location_mismatch" binding:"required"`
	DeviceTrustScore   *int             `json:"device_trust_score" binding:"required,min=0,max=100"`
	VelocityLast24h    *int             `json:"velocity_last_24h" binding:"required,min=0"`
	CardholderAge      *int             `json:"cardholder_age" binding:"required,min=18,max=100"`
}

var errInvalidPredictID = errors.New("transaction_id must be a string or an integer")

// predictID is the optional caller reference on /predict. Strings and
// integers are both accepted and echoed back in the form received.
type predictID struct {
	raw json.RawMessage
}

func (p *predictID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		p.raw = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		p.raw = append(json.RawMessage(nil), b...)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errInvalidPredictID
	}
	if _, err := n.Int64(); err != nil {
		return errInvalidPredictID
	}
	p.raw = json.RawMessage(n.String())
	return nil
}

// String returns the identifier as text, or "" when it was not given.
func (p predictID) String() string {
	var s string
	if err := json.Unmarshal(p.raw, &s); err == nil {
		return s
	}
	return string(p.raw)
}

// scoreRequest additionally requires the transaction identifier.
type scoreRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	transactionRequest
}

func (r transactionRequest) fields(transactionID string) entity.TransactionFields {
	return entity.TransactionFields{
		TransactionID:      transactionID,
		Amount:             *r.Amount,
		TransactionHour:    *r.TransactionHour,
		MerchantCategory:   entity.MerchantCategory(r.MerchantCategory),
		ForeignTransaction: *r.ForeignTransaction,
		LocationMismatch:   *r.LocationMismatch,
		DeviceTrustScore:   *r.DeviceTrustScore,
		VelocityLast24h:    *r.VelocityLast24h,
		CardholderAge:      *r.CardholderAge,
	}
}

type scoreResponse struct {
	TransactionID    string  `json:"transaction_id"`
	FraudProbability float64 `json:"fraud_probability"`
	Decision         string  `json:"decision"`
	Threshold        float64 `json:"threshold"`
	ModelVersion     string  `json:"model_version"`
	ScoredAt         string  `json:"scored_at"`
}

func newScoreResponse(r *entity.ScoreResult) scoreResponse {
	return scoreResponse{
		TransactionID:    r.TransactionID,
		FraudProbability: r.FraudProbability,
		Decision:         string(r.Decision),
		Threshold:        r.Threshold,
		ModelVersion:     r.ModelVersion,
		ScoredAt:         r.ScoredAtISO(),
	}
}

type predictResponse struct {
	TransactionID    json.RawMessage `json:"transaction_id"`
	IsFraudPred      int             `json:"is_fraud_pred"`
	FraudProbability float64         `json:"fraud_probability"`
}

func newPredictResponse(id predictID, r *entity.PredictResult) predictResponse {
	resp := predictResponse{TransactionID: id.raw, FraudProbability: r.FraudProbability}
	if r.IsFraud {
		resp.IsFraudPred = 1
	}
	return resp
}

type transactionView struct {
	ID                 int64       `json:"id"`
	TransactionID      string      `json:"transaction_id"`
	Amount             json.Number `json:"amount"`
	TransactionHour    int         `json:"transaction_hour"`
	MerchantCategory   string      `json:"merchant_category"`
	ForeignTransaction bool        `json:"foreign_transaction"`
	LocationMismatch   bool        `json:"location_mismatch"`
	DeviceTrustScore   int         `json:"device_trust_score"`
	VelocityLast24h    int         `json:"velocity_last_24h"`
	CardholderAge      int         `json:"cardholder_age"`
	CreatedAt          string      `json:"created_at"`
}

func newTransactionView(t *entity.Transaction) transactionView {
	return transactionView{
		ID:                 t.ID,
		TransactionID:      t.TransactionID,
		Amount:             json.Number(t.Amount.StringFixed(2)),
		TransactionHour:    t.TransactionHour,
		MerchantCategory:   string(t.MerchantCategory),
		ForeignTransaction: t.ForeignTransaction,
		LocationMismatch:   t.LocationMismatch,
		DeviceTrustScore:   t.DeviceTrustScore,
		VelocityLast24h:    t.VelocityLast24h,
		CardholderAge:      t.CardholderAge,
		CreatedAt:          t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type predictionView struct {
	ID               int64   `json:"id"`
	TransactionID    string  `json:"transaction_id"`
	FraudProbability float64 `json:"fraud_probability"`
	Decision         string  `json:"decision"`
	ModelVersion     string  `json:"model_version"`
	ScoredAt         string  `json:"scored_at"`
}

type transactionDetailView struct {
	Transaction transactionView  `json:"transaction"`
	Predictions []predictionView `json:"predictions"`
}

func newTransactionDetailView(d *entity.TransactionDetail) transactionDetailView {
	preds := make([]predictionView, 0, len(d.Predictions))
	for _, p := range d.Predictions {
		preds = append(preds, predictionView{
			ID:               p.ID,
			TransactionID:    p.TransactionID,
			FraudProbability: p.FraudProbability,
			Decision:         string(p.Decision),
			ModelVersion:     p.ModelVersion,
			ScoredAt:         p.ScoredAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return transactionDetailView{
		Transaction: newTransactionView(d.Transaction),
		Predictions: preds,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
