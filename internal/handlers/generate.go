package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bermybanana/api/internal/models"
	"bermybanana/api/internal/service"
)

type generateRequest struct {
	Mode        string `json:"mode" binding:"required"`
	Prompt      string `json:"prompt" binding:"required"`
	ReferenceID string `json:"referenceId"`
}

type jobResponse struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	Mode           string    `json:"mode"`
	Prompt         string    `json:"prompt"`
	Status         string    `json:"status"`
	ProviderTaskID string    `json:"providerTaskId,omitempty"`
	CostCredits    int64     `json:"costCredits"`
	ErrorKind      string    `json:"errorKind,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func jobToResponse(job models.GenerationJob) jobResponse {
	return jobResponse{
		ID:             job.ID,
		Provider:       job.Provider,
		Mode:           string(job.Mode),
		Prompt:         job.Prompt,
		Status:         string(job.Status),
		ProviderTaskID: job.ProviderTaskID,
		CostCredits:    job.CostCredits,
		ErrorKind:      string(job.ErrorKind),
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

func (h HandlerSet) SubmitGeneration(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.generationService.Submit(c.Request.Context(), user, service.SubmitInput{
		Provider:    c.Param("provider"),
		Mode:        models.GenerationMode(req.Mode),
		Prompt:      req.Prompt,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": jobToResponse(job)})
}

func (h HandlerSet) GenerationStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	taskID := c.Query("taskId")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId required"})
		return
	}

	result, err := h.generationService.Status(c.Request.Context(), user.ID, c.Param("provider"), taskID)
	if err != nil {
		respondError(c, err)
		return
	}

	outputs := make([]outputResponse, 0, len(result.Outputs))
	for _, output := range result.Outputs {
		outputs = append(outputs, outputToResponse(output))
	}

	c.JSON(http.StatusOK, gin.H{
		"job":     jobToResponse(result.Job),
		"outputs": outputs,
	})
}

func (h HandlerSet) ListJobs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, offset := pagination(c)
	jobs, err := h.generationService.ListJobs(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{"jobs": items})
}

func (h HandlerSet) GetJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	job, err := h.generationService.GetJob(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": jobToResponse(job)})
}

func (h HandlerSet) CancelJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	job, err := h.generationService.Cancel(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": jobToResponse(job)})
}
