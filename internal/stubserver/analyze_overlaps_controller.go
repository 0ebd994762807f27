package stubserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/pkg/config"
)

type analyzeOverlapsController struct{ cfg *config.Config }

func NewAnalyzeOverlapsController(cfg *config.Config) *analyzeOverlapsController {
	return &analyzeOverlapsController{cfg}
}

func (h *analyzeOverlapsController) Handle(c *gin.Context) {
	names, status, detail := uploadNames(c, h.cfg.MaxFiles, h.cfg.MaxFileSizeBytes, h.cfg.MaxTotalSizeBytes)
	if status != 0 {
		c.JSON(status, gin.H{"detail": detail})
		return
	}
	cfg, err := configFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ComputeOverlapReport(names, cfg))
}
