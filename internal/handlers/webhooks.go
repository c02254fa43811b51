package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"bermybanana/api/internal/models"
	"bermybanana/api/internal/security"
)

const maxWebhookBytes = 64 << 10

type billingEvent struct {
	Event   string `json:"event"`
	UserID  string `json:"userId"`
	Tier    string `json:"tier"`
	EventID string `json:"eventId"`
}

// BillingWebhook applies subscription events from the billing provider. The
// raw body is authenticated with an HMAC signature before any parsing.
func (h HandlerSet) BillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}

	signature := c.GetHeader(security.HeaderWebhookSignature)
	if signature == "" || !security.ValidateWebhookSignature(h.cfg.Security.WebhookSecret, body, signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
		return
	}

	var event billingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_payload"})
		return
	}

	switch event.Event {
	case "subscription.renewed", "subscription.started":
		tier := models.SubscriptionTier(event.Tier)
		if tier != models.TierStandard && tier != models.TierPro {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_tier"})
			return
		}

		if err := h.users.UpdateTier(c.Request.Context(), event.UserID, tier); err != nil {
			respondError(c, err)
			return
		}

		amount := h.cfg.Credits.RenewalGrant
		if tier == models.TierPro {
			amount = h.cfg.Credits.ProRenewalGrant
		}

		balance, err := h.creditService.GrantSubscription(c.Request.Context(), event.UserID, tier, amount, "renewal:"+event.EventID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"balance": balance})
	case "subscription.canceled":
		if err := h.users.UpdateTier(c.Request.Context(), event.UserID, models.TierStandard); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_event"})
	}
}
