package stubserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

type serviceInfoController struct{}

func NewServiceInfoController() *serviceInfoController {
	return &serviceInfoController{}
}

func (h *serviceInfoController) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, domain.ServiceInfo{
		Service: serviceName,
		Version: serviceVersion,
		Message: "local collage backend for development and integration tests",
		Endpoints: []string{
			"POST /api/collage/create",
			"GET /api/collage/status/:id",
			"GET /api/collage/download/:id",
			"POST /api/collage/optimize-grid",
			"POST /api/collage/analyze-overlaps",
			"GET /api/collage/jobs",
			"DELETE /api/collage/cleanup/:id",
			"GET /health",
			"GET /metrics",
		},
	})
}
