package stubserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

type healthController struct{ store *Store }

func NewHealthController(store *Store) *healthController {
	return &healthController{store}
}

func (h *healthController) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, domain.HealthReport{
		Status:  "ok",
		Service: serviceName,
		Version: serviceVersion,
		Jobs:    h.store.Count(),
	})
}
