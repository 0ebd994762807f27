package stubserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/pkg/config"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

type createCollageController struct {
	store *Store
	cfg   *config.Config
}

func NewCreateCollageController(store *Store, cfg *config.Config) *createCollageController {
	return &createCollageController{store: store, cfg: cfg}
}

func (h *createCollageController) Handle(c *gin.Context) {
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

	job := h.store.Create(c.Request.Context(), cfg, names)
	c.JSON(http.StatusAccepted, domain.CreateResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: job.Message,
	})
}
