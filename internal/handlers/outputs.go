package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bermybanana/api/internal/models"
)

type outputResponse struct {
	ID           string     `json:"id"`
	JobID        string     `json:"jobId"`
	Type         string     `json:"type"`
	URL          string     `json:"url"`
	State        string     `json:"state"`
	PersistUntil *time.Time `json:"persistUntil,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func outputToResponse(output models.OutputAsset) outputResponse {
	return outputResponse{
		ID:           output.ID,
		JobID:        output.JobID,
		Type:         string(output.Type),
		URL:          output.URL,
		State:        string(output.State),
		PersistUntil: output.PersistUntil,
		CreatedAt:    output.CreatedAt,
	}
}

func (h HandlerSet) ListOutputs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, offset := pagination(c)
	outputs, err := h.outputService.List(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]outputResponse, 0, len(outputs))
	for _, output := range outputs {
		items = append(items, outputToResponse(output))
	}

	c.JSON(http.StatusOK, gin.H{"outputs": items})
}

func (h HandlerSet) GetOutput(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	output, err := h.outputService.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"output": outputToResponse(output)})
}

type persistRequest struct {
	Until *time.Time `json:"until"`
}

func (h HandlerSet) PersistOutput(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Body is optional; an empty body pins indefinitely.
	var req persistRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	output, err := h.outputService.Persist(c.Request.Context(), user.ID, c.Param("id"), req.Until)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"output": outputToResponse(output)})
}

func (h HandlerSet) RemoveOutput(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.outputService.Remove(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) SaveAsAvatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ref, err := h.outputService.SaveAsAvatar(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reference": referenceToResponse(ref)})
}
