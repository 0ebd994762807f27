package stubserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type jobStatusController struct{ store *Store }

func NewJobStatusController(store *Store) *jobStatusController {
	return &jobStatusController{store}
}

func (h *jobStatusController) Handle(c *gin.Context) {
	job, err := h.store.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
