package domain

import (
	"encoding"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type LayoutStyle string

const (
	LayoutMasonry LayoutStyle = "masonry"
	LayoutGrid    LayoutStyle = "grid"
	LayoutRandom  LayoutStyle = "random"
	LayoutSpiral  LayoutStyle = "spiral"
)

type OutputFormat string

const (
	FormatJPEG OutputFormat = "jpeg"
	FormatPNG  OutputFormat = "png"
)

// Ext returns the filename extension for the format.
func (f OutputFormat) Ext() string {
	if f == FormatPNG {
		return "png"
	}
	return "jpg"
}

// hexColor accepts #RRGGBB and #RRGGBBAA.
var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}([0-9a-fA-F]{2})?$`)

// CollageConfig describes the rendering parameters for one submission. It is
// a value object built fresh per request; the canvas is given either in
// physical units plus resolution or directly in pixels.
type CollageConfig struct {
	WidthInches    float64      `json:"width_inches,omitempty"`
	HeightInches   float64      `json:"height_inches,omitempty"`
	DPI            int          `json:"dpi,omitempty"`
	WidthPx        int          `json:"width_px,omitempty"`
	HeightPx       int          `json:"height_px,omitempty"`
	Layout         LayoutStyle  `json:"layout_style"`
	Spacing        int          `json:"spacing"`
	Background     string       `json:"background_color"`
	PreserveAspect bool         `json:"maintain_aspect_ratio"`
	Shadow         bool         `json:"apply_shadow"`
	Format         OutputFormat `json:"output_format"`
}

// DefaultCollageConfig mirrors the backend's defaults for a fresh session.
func DefaultCollageConfig() CollageConfig {
	return CollageConfig{
		WidthInches:    16,
		HeightInches:   20,
		DPI:            150,
		Layout:         LayoutMasonry,
		Spacing:        10,
		Background:     "#FFFFFF",
		PreserveAspect: true,
		Shadow:         false,
		Format:         FormatJPEG,
	}
}

// PixelCanvas reports whether the canvas is specified in raw pixels rather
// than physical units.
func (c CollageConfig) PixelCanvas() bool {
	return c.WidthPx > 0 && c.HeightPx > 0
}

// FormField is one flattened configuration entry as it appears on the wire.
type FormField struct {
	Name  string
	Value string
}

// FormFields flattens the configuration into the ordered form fields the
// create and analyze endpoints expect. Every wire-visible config field is
// enumerated here and nowhere else; adding a field is a deliberate change
// to this function.
func (c CollageConfig) FormFields() []FormField {
	fields := make([]FormField, 0, 10)
	if c.PixelCanvas() {
		fields = append(fields,
			FormField{"width_px", strconv.Itoa(c.WidthPx)},
			FormField{"height_px", strconv.Itoa(c.HeightPx)},
		)
	} else {
		fields = append(fields,
			FormField{"width_inches", strconv.FormatFloat(c.WidthInches, 'f', -1, 64)},
			FormField{"height_inches", strconv.FormatFloat(c.HeightInches, 'f', -1, 64)},
			FormField{"dpi", strconv.Itoa(c.DPI)},
		)
	}
	fields = append(fields,
		FormField{"layout_style", string(c.Layout)},
		FormField{"spacing", strconv.Itoa(c.Spacing)},
		FormField{"background_color", c.Background},
		FormField{"maintain_aspect_ratio", strconv.FormatBool(c.PreserveAspect)},
		FormField{"apply_shadow", strconv.FormatBool(c.Shadow)},
		FormField{"output_format", string(c.Format)},
	)
	return fields
}

// Validate checks enum membership, canvas consistency and color syntax.
func (c CollageConfig) Validate() error {
	var errs []string

	switch c.Layout {
	case LayoutMasonry, LayoutGrid, LayoutRandom, LayoutSpiral:
	default:
		errs = append(errs, fmt.Sprintf("layout_style must be one of masonry, grid, random, spiral (got %q)", c.Layout))
	}

	if c.PixelCanvas() {
		if c.WidthPx <= 0 || c.HeightPx <= 0 {
			errs = append(errs, "width_px and height_px must be positive")
		}
	} else {
		if c.WidthInches <= 0 || c.HeightInches <= 0 {
			errs = append(errs, "width_inches and height_inches must be positive")
		}
		if c.DPI <= 0 {
			errs = append(errs, "dpi must be positive")
		}
	}

	if c.Spacing < 0 {
		errs = append(errs, "spacing must not be negative")
	}
	if !hexColor.MatchString(c.Background) {
		errs = append(errs, fmt.Sprintf("background_color must be #RRGGBB or #RRGGBBAA (got %q)", c.Background))
	}

	switch c.Format {
	case FormatJPEG, FormatPNG:
	default:
		errs = append(errs, fmt.Sprintf("output_format must be jpeg or png (got %q)", c.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid collage config: %s", strings.Join(errs, "; "))
	}
	return nil
}

var (
	_ encoding.TextMarshaler = LayoutStyle("")
	_ encoding.TextMarshaler = OutputFormat("")
)

func (l LayoutStyle) MarshalText() ([]byte, error)  { return []byte(string(l)), nil }
func (f OutputFormat) MarshalText() ([]byte, error) { return []byte(string(f)), nil }
