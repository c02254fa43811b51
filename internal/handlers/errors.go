package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bermybanana/api/internal/middleware"
	"bermybanana/api/internal/models"
	"bermybanana/api/internal/provider"
	"bermybanana/api/internal/repository"
	"bermybanana/api/internal/service"
)

// respondError maps service and repository errors onto the HTTP surface.
// Anything unrecognised is a 500 with no detail leaked.
func respondError(c *gin.Context, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": validation.Details,
		})
		return
	}

	var insufficient *repository.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "insufficient_credits",
			"details": gin.H{
				"required":  insufficient.Required,
				"available": insufficient.Available,
			},
		})
		return
	}

	var vendor *provider.VendorError
	if errors.As(err, &vendor) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "provider_error",
			"details": gin.H{"provider": vendor.Provider, "code": vendor.Code},
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
	case errors.Is(err, service.ErrUserSuspended):
		c.JSON(http.StatusForbidden, gin.H{"error": "user_suspended"})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
	case errors.Is(err, service.ErrNotFoundOrForbidden), errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, repository.ErrAlreadyRedeemed):
		c.JSON(http.StatusConflict, gin.H{"error": "promo_already_redeemed"})
	case errors.Is(err, repository.ErrPromoNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "promo_not_found"})
	case errors.Is(err, repository.ErrPromoInactive):
		c.JSON(http.StatusConflict, gin.H{"error": "promo_inactive"})
	case errors.Is(err, repository.ErrPromoExpired):
		c.JSON(http.StatusConflict, gin.H{"error": "promo_expired"})
	case errors.Is(err, repository.ErrPromoExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": "promo_exhausted"})
	case errors.Is(err, repository.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_output_type"})
	case errors.Is(err, provider.ErrCancelNotSupported):
		c.JSON(http.StatusConflict, gin.H{"error": "cancel_not_supported"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}

func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get(middleware.ContextUser)
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	if !ok {
		return models.User{}, false
	}
	return user, true
}
