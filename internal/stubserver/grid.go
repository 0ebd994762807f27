package stubserver

import (
	"math"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

// canvasPx resolves a canvas to raw pixels. Physical dimensions fall back to
// the backend defaults of 16x20 inches at 150 DPI when absent.
func canvasPx(widthIn, heightIn float64, dpi, widthPx, heightPx int) (int, int) {
	if widthPx > 0 && heightPx > 0 {
		return widthPx, heightPx
	}
	if widthIn <= 0 {
		widthIn = 16
	}
	if heightIn <= 0 {
		heightIn = 20
	}
	if dpi <= 0 {
		dpi = 150
	}
	return int(widthIn * float64(dpi)), int(heightIn * float64(dpi))
}

// ComputeGridReport picks the grid shape whose cells stay closest to square
// on the given canvas: columns from the canvas aspect ratio, rows from the
// image count. The closest perfect grid fills that shape's last row; the
// alternatives reshape by one column either way or drop the partial row.
func ComputeGridReport(q domain.GridQuery) domain.GridReport {
	count := q.ImageCount
	w, h := canvasPx(q.WidthInches, q.HeightInches, q.DPI, q.WidthPx, q.HeightPx)

	aspect := 1.0
	if h > 0 {
		aspect = float64(w) / float64(h)
	}
	cols := int(math.Round(math.Sqrt(float64(count) * aspect)))
	if cols < 1 {
		cols = 1
	}
	rows := (count + cols - 1) / cols
	if rows < 1 {
		rows = 1
	}
	capacity := cols * rows

	closest := gridOption(cols, rows, count)
	report := domain.GridReport{
		CurrentGrid: domain.GridShape{
			Columns:     cols,
			Rows:        rows,
			TotalImages: count,
			IsPerfect:   capacity == count,
		},
		ClosestPerfectGrid: &closest,
		Canvas:             domain.CanvasInfo{WidthPx: w, HeightPx: h},
	}

	seen := map[[3]int]bool{
		{closest.Columns, closest.Rows, closest.TotalImages}: true,
	}
	add := func(opt domain.GridOption) {
		key := [3]int{opt.Columns, opt.Rows, opt.TotalImages}
		if seen[key] {
			return
		}
		seen[key] = true
		report.Alternatives = append(report.Alternatives, opt)
	}

	// Dropping the partial row is always reachable by removing images.
	if rows > 1 {
		total := cols * (rows - 1)
		add(domain.GridOption{
			Type:           domain.GridActionRemove,
			Columns:        cols,
			Rows:           rows - 1,
			TotalImages:    total,
			ImagesToRemove: count - total,
		})
	}
	for _, c := range []int{cols + 1, cols - 1} {
		if c < 1 {
			continue
		}
		r := (count + c - 1) / c
		add(gridOption(c, r, count))
	}
	return report
}

// gridOption describes how a c-by-r grid becomes perfect for count images.
func gridOption(c, r, count int) domain.GridOption {
	capacity := c * r
	switch {
	case capacity == count:
		return domain.GridOption{Type: domain.GridActionPerfect, Columns: c, Rows: r, TotalImages: count}
	case capacity > count:
		return domain.GridOption{
			Type:         domain.GridActionAdd,
			Columns:      c,
			Rows:         r,
			TotalImages:  capacity,
			ImagesNeeded: capacity - count,
		}
	default:
		return domain.GridOption{
			Type:           domain.GridActionRemove,
			Columns:        c,
			Rows:           r,
			TotalImages:    capacity,
			ImagesToRemove: count - capacity,
		}
	}
}
