package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bermybanana/api/internal/models"
)

type ledgerEntryResponse struct {
	ID           string    `json:"id"`
	JobID        *string   `json:"jobId,omitempty"`
	Kind         string    `json:"kind"`
	Reason       string    `json:"reason,omitempty"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (h HandlerSet) CreditBalance(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, offset := pagination(c)
	result, err := h.creditService.Balance(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	history := make([]ledgerEntryResponse, 0, len(result.History))
	for _, entry := range result.History {
		history = append(history, ledgerEntryToResponse(entry))
	}

	c.JSON(http.StatusOK, gin.H{
		"balance": result.Balance,
		"history": history,
	})
}

func ledgerEntryToResponse(entry models.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:           entry.ID,
		JobID:        entry.JobID,
		Kind:         string(entry.Kind),
		Reason:       entry.Reason,
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		CreatedAt:    entry.CreatedAt,
	}
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h HandlerSet) RedeemPromo(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.creditService.RedeemPromo(c.Request.Context(), user.ID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credits": result.Credits,
		"balance": result.Balance,
	})
}
