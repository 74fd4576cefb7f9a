package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

func (s *Server) handleScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidRequest(c, err)
		return
	}

	result, err := s.scoring.Score(c.Request.Context(), req.fields(req.TransactionID))
	if err != nil {
		if errors.Is(err, entity.ErrValidation) && !errors.Is(err, entity.ErrScoringFailed) {
			s.invalidRequest(c, err)
			return
		}
		s.logger.Error("scoring failed",
			"transaction_id", req.TransactionID,
			"request_id", c.GetString(requestIDKey),
			"error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Scoring failed"})
		return
	}

	c.JSON(http.StatusOK, newScoreResponse(result))
}

func (s *Server) handlePredict(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidRequest(c, err)
		return
	}

	result, err := s.scoring.Predict(c.Request.Context(), req.fields(req.TransactionID.String()))
	if err != nil {
		if errors.Is(err, entity.ErrValidation) {
			s.invalidRequest(c, err)
			return
		}
		s.logger.Error("prediction failed",
			"request_id", c.GetString(requestIDKey),
			"error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Prediction failed"})
		return
	}

	c.JSON(http.StatusOK, newPredictResponse(req.TransactionID, result))
}

func (s *Server) handleListTransactions(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.invalidRequest(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.invalidRequest(c, err)
		return
	}

	txs, err := s.query.List(c.Request.Context(), limit, offset)
	if err != nil {
		if errors.Is(err, entity.ErrValidation) {
			s.invalidRequest(c, err)
			return
		}
		s.logger.Error("listing transactions failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, newTransactionView(tx))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	id := c.Param("id")

	detail, err := s.query.Get(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("loading transaction failed", "transaction_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "Transaction not found"})
		return
	}

	c.JSON(http.StatusOK, newTransactionDetailView(detail))
}

func (s *Server) invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, errorResponse{
		Error:   "Invalid request",
		Details: err.Error(),
	})
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	if v < 0 {
		return 0, errors.New(key + " must not be negative")
	}
	return v, nil
}
