package stubserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type downloadController struct{ store *Store }

func NewDownloadController(store *Store) *downloadController {
	return &downloadController{store}
}

func (h *downloadController) Handle(c *gin.Context) {
	data, contentType, filename, err := h.store.Artifact(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "job not found"})
	case errors.Is(err, ErrArtifactNotReady):
		c.JSON(http.StatusConflict, gin.H{"detail": "job is not completed"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
	default:
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, contentType, data)
	}
}
