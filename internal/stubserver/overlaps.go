package stubserver

import (
	"fmt"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

// nominalCell is the simulated footprint of one image on the canvas, in
// pixels, before spacing is added.
const nominalCell = 400

// ComputeOverlapReport predicts crowding from the canvas capacity at the
// nominal cell size. Scatter layouts waste space, so random halves the
// capacity and spiral keeps three quarters of it. Images beyond capacity
// collide with their predecessor and are the suggested removals, which keeps
// the whole report a pure function of the inputs.
func ComputeOverlapReport(names []string, cfg domain.CollageConfig) domain.OverlapReport {
	count := len(names)
	w, h := canvasPx(cfg.WidthInches, cfg.HeightInches, cfg.DPI, cfg.WidthPx, cfg.HeightPx)

	cell := nominalCell + cfg.Spacing
	if cell < 1 {
		cell = 1
	}
	capacity := (w / cell) * (h / cell)
	switch cfg.Layout {
	case domain.LayoutRandom:
		capacity /= 2
	case domain.LayoutSpiral:
		capacity = capacity * 3 / 4
	}
	if capacity < 1 {
		capacity = 1
	}

	overflow := count - capacity
	if overflow <= 0 {
		return domain.OverlapReport{}
	}

	report := domain.OverlapReport{
		HasOverlaps:    true,
		OverlapCount:   overflow,
		Recommendation: fmt.Sprintf("remove %d image(s) or enlarge the canvas", overflow),
	}
	for k := 0; k < overflow; k++ {
		i := capacity + k
		pct := 20 + 5*k
		if pct > 85 {
			pct = 85
		}
		report.Pairs = append(report.Pairs, domain.OverlapPair{
			IndexA:     i - 1,
			IndexB:     i,
			FileA:      names[i-1],
			FileB:      names[i],
			OverlapPct: float64(pct),
		})
		report.SuggestedRemovals = append(report.SuggestedRemovals, domain.SuggestedRemoval{
			Index:    i,
			Filename: names[i],
		})
	}
	return report
}
