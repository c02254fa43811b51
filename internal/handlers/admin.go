package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) AdminListJobs(c *gin.Context) {
	limit, offset := pagination(c)

	jobs, err := h.jobs.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, map[string]interface{}{
			"id":           job.ID,
			"userId":       job.UserID,
			"provider":     job.Provider,
			"mode":         job.Mode,
			"status":       job.Status,
			"costCredits":  job.CostCredits,
			"errorKind":    job.ErrorKind,
			"errorMessage": job.ErrorMessage,
			"createdAt":    job.CreatedAt,
			"updatedAt":    job.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) AdminListAudit(c *gin.Context) {
	limit, offset := pagination(c)

	entries, err := h.auditService.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]interface{}{
			"id":        entry.ID,
			"userId":    entry.UserID,
			"action":    entry.Action,
			"targetId":  entry.TargetID,
			"detail":    entry.Detail,
			"createdAt": entry.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
