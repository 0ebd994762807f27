package advisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/osvaldoandrade/collageq/internal/upload"
	"github.com/osvaldoandrade/collageq/pkg/client"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// stageFiles builds a set of n valid PNG files named img0.png .. img{n-1}.png.
func stageFiles(t *testing.T, limits upload.Limits, n int) *upload.Set {
	t.Helper()
	dir := t.TempDir()
	s := upload.NewSet(limits, nil, nil)
	t.Cleanup(s.CloseAll)
	for i := 0; i < n; i++ {
		data := make([]byte, 32)
		copy(data, pngMagic)
		path := filepath.Join(dir, fmt.Sprintf("img%d.png", i))
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Add(path); err != nil {
			t.Fatalf("Add(%s): %v", path, err)
		}
	}
	return s
}

type fakeAPI struct {
	grid     domain.GridReport
	overlaps domain.OverlapReport
	gridErr  error

	lastQuery domain.GridQuery
	calls     int
}

func (f *fakeAPI) OptimizeGrid(ctx context.Context, q domain.GridQuery) (domain.GridReport, error) {
	f.calls++
	f.lastQuery = q
	return f.grid, f.gridErr
}

func (f *fakeAPI) AnalyzeOverlaps(ctx context.Context, cfg domain.CollageConfig, parts []client.FilePart) (domain.OverlapReport, error) {
	f.calls++
	return f.overlaps, nil
}

func names(files []*upload.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}

func TestGridAdviceSendsSetCount(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 10)
	api := &fakeAPI{}
	adv := New(api, set, nil)

	cfg := domain.DefaultCollageConfig()
	if _, err := adv.GridAdvice(context.Background(), cfg); err != nil {
		t.Fatalf("GridAdvice: %v", err)
	}
	q := api.lastQuery
	if q.ImageCount != 10 {
		t.Errorf("ImageCount = %d, want 10", q.ImageCount)
	}
	if q.WidthInches != 16 || q.HeightInches != 20 || q.DPI != 150 || q.Spacing != 10 {
		t.Errorf("canvas query = %+v, want the config's canvas fields", q)
	}
}

func TestApplyRemoveTruncatesTail(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 10)
	adv := New(&fakeAPI{}, set, nil)

	app, err := adv.ApplyGridOption(domain.GridOption{
		Type: domain.GridActionRemove, Columns: 3, Rows: 3, TotalImages: 9, ImagesToRemove: 1,
	})
	if err != nil {
		t.Fatalf("ApplyGridOption: %v", err)
	}
	if app.Removed != 1 {
		t.Errorf("Removed = %d, want 1", app.Removed)
	}

	got := names(set.Files())
	if len(got) != 9 {
		t.Fatalf("set has %d files, want 9", len(got))
	}
	for i, n := range got {
		if want := fmt.Sprintf("img%d.png", i); n != want {
			t.Errorf("file[%d] = %q, want %q (prefix must be preserved)", i, n, want)
		}
	}
}

func TestApplyRemoveRefusedBelowFloor(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 3)
	adv := New(&fakeAPI{}, set, nil)

	_, err := adv.ApplyGridOption(domain.GridOption{
		Type: domain.GridActionRemove, TotalImages: 1, ImagesToRemove: 2,
	})
	if !errors.Is(err, ErrRefused) {
		t.Fatalf("expected ErrRefused, got %v", err)
	}
	if set.Count() != 3 {
		t.Errorf("refused action mutated the set: %d files left", set.Count())
	}
}

func TestApplyAddCeilingScenario(t *testing.T) {
	// The 10-image case with a suggested 3x4 grid: add 2 is refused at a
	// ceiling of 11 and accepted at 12, where the user still has to supply
	// both images.
	opt := domain.GridOption{
		Type: domain.GridActionAdd, Columns: 3, Rows: 4, TotalImages: 12, ImagesNeeded: 2,
	}

	limits := upload.DefaultLimits()
	limits.MaxFiles = 11
	set := stageFiles(t, limits, 10)
	adv := New(&fakeAPI{}, set, nil)

	_, err := adv.ApplyGridOption(opt)
	if !errors.Is(err, ErrRefused) {
		t.Fatalf("ceiling 11: expected ErrRefused, got %v", err)
	}
	if set.Count() != 10 {
		t.Errorf("refused add mutated the set: %d files", set.Count())
	}

	limits.MaxFiles = 12
	set12 := stageFiles(t, limits, 10)
	adv12 := New(&fakeAPI{}, set12, nil)

	app, err := adv12.ApplyGridOption(opt)
	if err != nil {
		t.Fatalf("ceiling 12: %v", err)
	}
	if app.MustSupply != 2 {
		t.Errorf("MustSupply = %d, want 2", app.MustSupply)
	}
	if set12.Count() != 10 {
		t.Errorf("add advice fabricated images: %d files", set12.Count())
	}
}

func TestApplyPerfectIsNoOp(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 9)
	adv := New(&fakeAPI{}, set, nil)

	app, err := adv.ApplyGridOption(domain.GridOption{Type: domain.GridActionPerfect, TotalImages: 9})
	if err != nil {
		t.Fatalf("ApplyGridOption: %v", err)
	}
	if app.Removed != 0 || app.MustSupply != 0 {
		t.Errorf("perfect grid application = %+v, want a no-op", app)
	}
	if set.Count() != 9 {
		t.Errorf("no-op mutated the set: %d files", set.Count())
	}
}

func TestApplyUnknownTypeRefused(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 2)
	adv := New(&fakeAPI{}, set, nil)
	if _, err := adv.ApplyGridOption(domain.GridOption{Type: "rotate_images"}); !errors.Is(err, ErrRefused) {
		t.Fatalf("expected ErrRefused for unknown type, got %v", err)
	}
}

func TestRemoveOptionPrefersSmallest(t *testing.T) {
	closest := domain.GridOption{Type: domain.GridActionAdd, ImagesNeeded: 2, TotalImages: 12}
	report := domain.GridReport{
		CurrentGrid:        domain.GridShape{TotalImages: 10},
		ClosestPerfectGrid: &closest,
		Alternatives: []domain.GridOption{
			{Type: domain.GridActionRemove, ImagesToRemove: 4, TotalImages: 6},
			{Type: domain.GridActionRemove, ImagesToRemove: 1, TotalImages: 9},
		},
	}

	opt, ok := RemoveOption(report)
	if !ok {
		t.Fatal("expected a remove option")
	}
	if opt.ImagesToRemove != 1 {
		t.Errorf("ImagesToRemove = %d, want the smallest (1)", opt.ImagesToRemove)
	}

	if _, ok := RemoveOption(domain.GridReport{ClosestPerfectGrid: &closest}); ok {
		t.Error("report without remove options should yield none")
	}
}

func TestApplyOverlapRemovals(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 5)
	adv := New(&fakeAPI{}, set, nil)

	report := domain.OverlapReport{
		HasOverlaps:  true,
		OverlapCount: 2,
		SuggestedRemovals: []domain.SuggestedRemoval{
			{Index: 1, Filename: "img1.png"},
			{Index: 3, Filename: "img3.png"},
		},
	}
	removed, err := adv.ApplyOverlapRemovals(report)
	if err != nil {
		t.Fatalf("ApplyOverlapRemovals: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d, want 2", removed)
	}
	got := names(set.Files())
	want := []string{"img0.png", "img2.png", "img4.png"}
	if len(got) != len(want) {
		t.Fatalf("remaining = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("remaining[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestApplyOverlapRemovalsOutOfRange(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 3)
	adv := New(&fakeAPI{}, set, nil)

	report := domain.OverlapReport{
		SuggestedRemovals: []domain.SuggestedRemoval{{Index: 0}, {Index: 7}},
	}
	if _, err := adv.ApplyOverlapRemovals(report); !errors.Is(err, ErrRefused) {
		t.Fatalf("expected ErrRefused for a stale index, got %v", err)
	}
	if set.Count() != 3 {
		t.Errorf("stale report mutated the set: %d files left", set.Count())
	}
}

func TestApplyOverlapRemovalsEmptyReport(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 2)
	adv := New(&fakeAPI{}, set, nil)

	removed, err := adv.ApplyOverlapRemovals(domain.OverlapReport{HasOverlaps: false})
	if err != nil || removed != 0 {
		t.Fatalf("empty report should be a no-op, got removed=%d err=%v", removed, err)
	}
}

func TestOverlapAdviceStreamsSet(t *testing.T) {
	set := stageFiles(t, upload.DefaultLimits(), 2)
	api := &fakeAPI{overlaps: domain.OverlapReport{HasOverlaps: false}}
	adv := New(api, set, nil)

	report, err := adv.OverlapAdvice(context.Background(), domain.DefaultCollageConfig())
	if err != nil {
		t.Fatalf("OverlapAdvice: %v", err)
	}
	if report.HasOverlaps {
		t.Error("report should pass through untouched")
	}
	if api.calls != 1 {
		t.Errorf("api calls = %d, want 1", api.calls)
	}
}
