package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bermybanana/api/internal/models"
	"bermybanana/api/internal/service"
)

type referenceResponse struct {
	ID             string    `json:"id"`
	SourceOutputID *string   `json:"sourceOutputId,omitempty"`
	URL            string    `json:"url"`
	IsAvatar       bool      `json:"isAvatar"`
	CreatedAt      time.Time `json:"createdAt"`
}

func referenceToResponse(ref models.ReferenceImage) referenceResponse {
	return referenceResponse{
		ID:             ref.ID,
		SourceOutputID: ref.SourceOutputID,
		URL:            ref.URL,
		IsAvatar:       ref.IsAvatar,
		CreatedAt:      ref.CreatedAt,
	}
}

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	ref, err := h.uploadService.UploadAvatar(c.Request.Context(), service.UploadInput{
		UserID: user.ID,
		File:   file,
		Header: header,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reference": referenceToResponse(ref)})
}

func (h HandlerSet) ListReferences(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	avatarsOnly := c.Query("avatarsOnly") == "true"

	refs, err := h.outputService.ListReferences(c.Request.Context(), user.ID, avatarsOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]referenceResponse, 0, len(refs))
	for _, ref := range refs {
		items = append(items, referenceToResponse(ref))
	}

	c.JSON(http.StatusOK, gin.H{"references": items})
}

func (h HandlerSet) DeleteReference(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.outputService.DeleteReference(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
