package advisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/osvaldoandrade/collageq/internal/metrics"
	"github.com/osvaldoandrade/collageq/internal/upload"
	"github.com/osvaldoandrade/collageq/pkg/client"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

// ErrRefused marks an advice action the guardrails rejected. The wrapped
// message explains why; nothing is mutated.
var ErrRefused = errors.New("advice action refused")

// API is the slice of the backend client the advisor needs. The advisor
// renders and applies what the backend returns; it computes nothing itself.
type API interface {
	OptimizeGrid(ctx context.Context, q domain.GridQuery) (domain.GridReport, error)
	AnalyzeOverlaps(ctx context.Context, cfg domain.CollageConfig, parts []client.FilePart) (domain.OverlapReport, error)
}

var _ API = (*client.Client)(nil)

// Advisor fetches grid and overlap advice for the staged upload set and
// applies the suggestions the user accepts.
type Advisor struct {
	api    API
	set    *upload.Set
	logger *slog.Logger
}

func New(api API, set *upload.Set, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Advisor{api: api, set: set, logger: logger}
}

// GridAdvice asks the backend how far the staged image count is from a
// perfect grid on the configured canvas.
func (a *Advisor) GridAdvice(ctx context.Context, cfg domain.CollageConfig) (domain.GridReport, error) {
	q := domain.GridQuery{
		ImageCount:   a.set.Count(),
		WidthInches:  cfg.WidthInches,
		HeightInches: cfg.HeightInches,
		DPI:          cfg.DPI,
		WidthPx:      cfg.WidthPx,
		HeightPx:     cfg.HeightPx,
		Spacing:      cfg.Spacing,
	}
	return a.api.OptimizeGrid(ctx, q)
}

// GridApplication reports what applying a grid option did, or what it still
// requires from the user.
type GridApplication struct {
	Action domain.GridAction
	// Removed is how many files were dropped from the tail of the set.
	Removed int
	// MustSupply is how many images the user has to stage to reach the
	// suggested total. The client never fabricates them.
	MustSupply int
}

// ApplyGridOption executes one backend suggestion against the upload set.
// Remove suggestions truncate the set, keeping the staged prefix. Add
// suggestions never mutate anything: they either report how many images the
// user must supply or are refused when the total would pass the file
// ceiling.
func (a *Advisor) ApplyGridOption(opt domain.GridOption) (GridApplication, error) {
	count := a.set.Count()

	switch opt.Type {
	case domain.GridActionPerfect:
		return GridApplication{Action: opt.Type}, nil

	case domain.GridActionRemove:
		n := opt.ImagesToRemove
		if n <= 0 {
			return GridApplication{}, fmt.Errorf("%w: remove suggestion carries no image count", ErrRefused)
		}
		remaining := count - n
		if remaining < upload.MinFiles {
			metrics.AdviceAppliedTotal.WithLabelValues("remove", "refused").Inc()
			return GridApplication{}, fmt.Errorf("%w: removing %d of %d images would leave fewer than %d",
				ErrRefused, n, count, upload.MinFiles)
		}
		removed := a.set.TruncateTo(remaining)
		metrics.AdviceAppliedTotal.WithLabelValues("remove", "ok").Inc()
		a.logger.Info("grid suggestion applied", "action", "remove", "removed", removed, "remaining", remaining)
		return GridApplication{Action: opt.Type, Removed: removed}, nil

	case domain.GridActionAdd:
		needed := opt.ImagesNeeded
		if needed <= 0 {
			return GridApplication{}, fmt.Errorf("%w: add suggestion carries no image count", ErrRefused)
		}
		limit := a.set.Limits().MaxFiles
		if count+needed > limit {
			metrics.AdviceAppliedTotal.WithLabelValues("add", "refused").Inc()
			return GridApplication{}, fmt.Errorf("%w: adding %d images to the current %d would exceed the %d-file limit",
				ErrRefused, needed, count, limit)
		}
		metrics.AdviceAppliedTotal.WithLabelValues("add", "ok").Inc()
		return GridApplication{Action: opt.Type, MustSupply: needed}, nil

	default:
		return GridApplication{}, fmt.Errorf("%w: unknown suggestion type %q", ErrRefused, opt.Type)
	}
}

// RemoveOption picks the smallest remove suggestion from a report, checking
// the closest option first and then the alternatives. ok is false when the
// backend offered none.
func RemoveOption(report domain.GridReport) (domain.GridOption, bool) {
	var candidates []domain.GridOption
	if report.ClosestPerfectGrid != nil && report.ClosestPerfectGrid.Type == domain.GridActionRemove {
		candidates = append(candidates, *report.ClosestPerfectGrid)
	}
	for _, alt := range report.Alternatives {
		if alt.Type == domain.GridActionRemove {
			candidates = append(candidates, alt)
		}
	}
	if len(candidates) == 0 {
		return domain.GridOption{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ImagesToRemove < candidates[j].ImagesToRemove
	})
	return candidates[0], true
}

// OverlapAdvice submits the staged set for overlap prediction.
func (a *Advisor) OverlapAdvice(ctx context.Context, cfg domain.CollageConfig) (domain.OverlapReport, error) {
	parts, err := client.FileParts(a.set.Files())
	if err != nil {
		return domain.OverlapReport{}, err
	}
	return a.api.AnalyzeOverlaps(ctx, cfg, parts)
}

// ApplyOverlapRemovals drops exactly the suggested indices from the upload
// set, preserving the order of the remaining files. Indices are validated
// against the current set before anything is removed, so a stale report
// mutates nothing.
func (a *Advisor) ApplyOverlapRemovals(report domain.OverlapReport) (int, error) {
	if len(report.SuggestedRemovals) == 0 {
		return 0, nil
	}
	count := a.set.Count()

	indices := make([]int, 0, len(report.SuggestedRemovals))
	seen := make(map[int]bool, len(report.SuggestedRemovals))
	for _, r := range report.SuggestedRemovals {
		if r.Index < 0 || r.Index >= count {
			metrics.AdviceAppliedTotal.WithLabelValues("overlap_removals", "refused").Inc()
			return 0, fmt.Errorf("%w: suggested index %d is outside the staged set of %d", ErrRefused, r.Index, count)
		}
		if seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		indices = append(indices, r.Index)
	}
	if count-len(indices) < upload.MinFiles {
		metrics.AdviceAppliedTotal.WithLabelValues("overlap_removals", "refused").Inc()
		return 0, fmt.Errorf("%w: removing %d of %d images would leave fewer than %d",
			ErrRefused, len(indices), count, upload.MinFiles)
	}

	// Remove back to front so earlier indices stay valid.
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))
	removed := 0
	for _, i := range indices {
		if a.set.RemoveAt(i) {
			removed++
		}
	}
	metrics.AdviceAppliedTotal.WithLabelValues("overlap_removals", "ok").Inc()
	a.logger.Info("overlap removals applied", "removed", removed, "remaining", a.set.Count())
	return removed, nil
}
