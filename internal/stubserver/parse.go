package stubserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

// configFromForm builds a CollageConfig from the posted fields, starting at
// the backend defaults so partial submissions still validate.
func configFromForm(c *gin.Context) (domain.CollageConfig, error) {
	cfg := domain.DefaultCollageConfig()

	var err error
	keep := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}
	keep(formFloat(c, "width_inches", &cfg.WidthInches))
	keep(formFloat(c, "height_inches", &cfg.HeightInches))
	keep(formInt(c, "dpi", &cfg.DPI))
	keep(formInt(c, "width_px", &cfg.WidthPx))
	keep(formInt(c, "height_px", &cfg.HeightPx))
	keep(formInt(c, "spacing", &cfg.Spacing))
	keep(formBool(c, "maintain_aspect_ratio", &cfg.PreserveAspect))
	keep(formBool(c, "apply_shadow", &cfg.Shadow))
	if v := strings.TrimSpace(c.PostForm("layout_style")); v != "" {
		cfg.Layout = domain.LayoutStyle(v)
	}
	if v := strings.TrimSpace(c.PostForm("background_color")); v != "" {
		cfg.Background = v
	}
	if v := strings.TrimSpace(c.PostForm("output_format")); v != "" {
		cfg.Format = domain.OutputFormat(v)
	}
	if err != nil {
		return cfg, err
	}

	// A pixel canvas wins over the physical defaults.
	if cfg.PixelCanvas() {
		cfg.WidthInches, cfg.HeightInches, cfg.DPI = 0, 0, 0
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// gridQueryFromForm parses the optimize-grid parameters, defaulting the
// canvas to 16x20 inches at 150 DPI.
func gridQueryFromForm(c *gin.Context) (domain.GridQuery, error) {
	q := domain.GridQuery{WidthInches: 16, HeightInches: 20, DPI: 150, Spacing: 10}

	var err error
	keep := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}
	keep(formInt(c, "image_count", &q.ImageCount))
	keep(formFloat(c, "width_inches", &q.WidthInches))
	keep(formFloat(c, "height_inches", &q.HeightInches))
	keep(formInt(c, "dpi", &q.DPI))
	keep(formInt(c, "width_px", &q.WidthPx))
	keep(formInt(c, "height_px", &q.HeightPx))
	keep(formInt(c, "spacing", &q.Spacing))
	if err != nil {
		return q, err
	}
	if q.ImageCount <= 0 {
		return q, fmt.Errorf("image_count must be positive")
	}
	return q, nil
}

// uploadNames validates the multipart file set against the configured
// ceilings and returns the filenames in submission order. A non-zero status
// means rejection; detail carries the user-facing reason.
func uploadNames(c *gin.Context, maxFiles int, maxFileBytes, maxTotalBytes int64) ([]string, int, string) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, http.StatusBadRequest, "invalid multipart body: " + err.Error()
	}
	files := form.File["files"]
	if len(files) < 2 {
		return nil, http.StatusBadRequest, "at least 2 images are required"
	}
	if maxFiles > 0 && len(files) > maxFiles {
		return nil, http.StatusBadRequest, fmt.Sprintf("too many files: limit is %d", maxFiles)
	}

	var total int64
	names := make([]string, 0, len(files))
	for _, fh := range files {
		if maxFileBytes > 0 && fh.Size > maxFileBytes {
			return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s is %s; the per-file limit is %s",
				fh.Filename, humanize.Bytes(uint64(fh.Size)), humanize.Bytes(uint64(maxFileBytes)))
		}
		total += fh.Size
		names = append(names, fh.Filename)
	}
	if maxTotalBytes > 0 && total > maxTotalBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload is %s; the total limit is %s",
			humanize.Bytes(uint64(total)), humanize.Bytes(uint64(maxTotalBytes)))
	}
	return names, 0, ""
}

func formInt(c *gin.Context, name string, dst *int) error {
	v := strings.TrimSpace(c.PostForm(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", name, v)
	}
	*dst = n
	return nil
}

func formFloat(c *gin.Context, name string, dst *float64) error {
	v := strings.TrimSpace(c.PostForm(name))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", name, v)
	}
	*dst = f
	return nil
}

func formBool(c *gin.Context, name string, dst *bool) error {
	v := strings.TrimSpace(c.PostForm(name))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", name, v)
	}
	*dst = b
	return nil
}
