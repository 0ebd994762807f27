package stubserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type cleanupJobController struct{ store *Store }

func NewCleanupJobController(store *Store) *cleanupJobController {
	return &cleanupJobController{store}
}

func (h *cleanupJobController) Handle(c *gin.Context) {
	id := c.Param("id")
	if !h.store.Delete(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("job %s cleaned up", id)})
}
