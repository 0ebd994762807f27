package domain

import (
	"encoding"
	"strconv"
)

// GridAction classifies how a suggested grid differs from the current
// image count.
type GridAction string

const (
	GridActionAdd     GridAction = "add_images"
	GridActionRemove  GridAction = "remove_images"
	GridActionPerfect GridAction = "perfect"
)

// GridShape is a columns-by-rows arrangement. It is perfect when the last
// row is completely filled.
type GridShape struct {
	Columns     int  `json:"columns"`
	Rows        int  `json:"rows"`
	TotalImages int  `json:"total_images"`
	IsPerfect   bool `json:"is_perfect"`
}

// GridOption is one backend suggestion for reaching a perfect grid. Exactly
// one of ImagesNeeded or ImagesToRemove is set, matching Type.
type GridOption struct {
	Type           GridAction `json:"type"`
	Columns        int        `json:"columns"`
	Rows           int        `json:"rows"`
	TotalImages    int        `json:"total_images"`
	ImagesNeeded   int        `json:"images_needed,omitempty"`
	ImagesToRemove int        `json:"images_to_remove,omitempty"`
}

type CanvasInfo struct {
	WidthPx  int `json:"width_px"`
	HeightPx int `json:"height_px"`
}

// GridReport is the optimize-grid response, rendered verbatim. The client
// never recomputes any of these numbers.
type GridReport struct {
	CurrentGrid        GridShape    `json:"current_grid"`
	ClosestPerfectGrid *GridOption  `json:"closest_perfect_grid,omitempty"`
	Alternatives       []GridOption `json:"alternatives,omitempty"`
	Canvas             CanvasInfo   `json:"canvas"`
}

// GridQuery carries the optimize-grid request parameters. The canvas follows
// the same physical-or-pixel convention as CollageConfig.
type GridQuery struct {
	ImageCount   int
	WidthInches  float64
	HeightInches float64
	DPI          int
	WidthPx      int
	HeightPx     int
	Spacing      int
}

// FormFields flattens the query into the form fields the optimize-grid
// endpoint expects.
func (q GridQuery) FormFields() []FormField {
	fields := []FormField{{"image_count", strconv.Itoa(q.ImageCount)}}
	if q.WidthPx > 0 && q.HeightPx > 0 {
		fields = append(fields,
			FormField{"width_px", strconv.Itoa(q.WidthPx)},
			FormField{"height_px", strconv.Itoa(q.HeightPx)},
		)
	} else {
		fields = append(fields,
			FormField{"width_inches", strconv.FormatFloat(q.WidthInches, 'f', -1, 64)},
			FormField{"height_inches", strconv.FormatFloat(q.HeightInches, 'f', -1, 64)},
			FormField{"dpi", strconv.Itoa(q.DPI)},
		)
	}
	fields = append(fields, FormField{"spacing", strconv.Itoa(q.Spacing)})
	return fields
}

// OverlapPair describes two uploaded images the backend predicts will
// overlap on the canvas.
type OverlapPair struct {
	IndexA     int     `json:"index_a"`
	IndexB     int     `json:"index_b"`
	FileA      string  `json:"file_a"`
	FileB      string  `json:"file_b"`
	OverlapPct float64 `json:"overlap_pct"`
}

type SuggestedRemoval struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
}

// OverlapReport is the analyze-overlaps response, rendered verbatim.
type OverlapReport struct {
	HasOverlaps       bool               `json:"has_overlaps"`
	OverlapCount      int                `json:"overlap_count"`
	Pairs             []OverlapPair      `json:"pairs,omitempty"`
	Recommendation    string             `json:"recommendation,omitempty"`
	SuggestedRemovals []SuggestedRemoval `json:"suggested_removals,omitempty"`
}

var _ encoding.TextMarshaler = GridAction("")

func (a GridAction) MarshalText() ([]byte, error) { return []byte(string(a)), nil }
