package stubserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

type listJobsController struct{ store *Store }

func NewListJobsController(store *Store) *listJobsController {
	return &listJobsController{store}
}

func (h *listJobsController) Handle(c *gin.Context) {
	jobs := h.store.List(c.Request.Context())
	c.JSON(http.StatusOK, domain.JobList{Jobs: jobs, Total: len(jobs)})
}
