package stubserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type optimizeGridController struct{}

func NewOptimizeGridController() *optimizeGridController {
	return &optimizeGridController{}
}

func (h *optimizeGridController) Handle(c *gin.Context) {
	q, err := gridQueryFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ComputeGridReport(q))
}
