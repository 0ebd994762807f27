package stubserver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

type storeClock struct{ t time.Time }

func (c *storeClock) now() time.Time          { return c.t }
func (c *storeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingUploader struct {
	uploads int
	removes int
	path    string
	data    []byte
}

func (u *recordingUploader) UploadBytes(_ context.Context, objectPath, _ string, data []byte) (string, error) {
	u.uploads++
	u.path = objectPath
	u.data = append([]byte(nil), data...)
	return "mem://" + objectPath, nil
}

func (u *recordingUploader) Remove(_ context.Context, objectPath string) error {
	u.removes++
	u.path = objectPath
	return nil
}

func newTestStore(t *testing.T) (*Store, *storeClock, *recordingUploader) {
	t.Helper()
	clock := &storeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	up := &recordingUploader{}
	store := NewStore(Options{PendingFor: 1 * time.Second, ProcessingFor: 6 * time.Second}, up, nil, clock.now)
	return store, clock, up
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, clock, up := newTestStore(t)

	job := store.Create(ctx, domain.DefaultCollageConfig(),[]string{"a.png", "b.png"})
	if job.Status != domain.StatusPending || job.FileCount != 2 {
		t.Fatalf("created job = %+v", job)
	}
	if job.ID == "" {
		t.Fatalf("missing job id")
	}

	snap, err := store.Snapshot(ctx, job.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != domain.StatusPending || snap.Progress != 0 {
		t.Fatalf("fresh snapshot = %+v, want pending at 0", snap)
	}

	clock.advance(1 * time.Second)
	snap, _ = store.Snapshot(ctx, job.ID)
	if snap.Status != domain.StatusProcessing || snap.Progress != 5 {
		t.Fatalf("snapshot at 1s = %+v, want processing at 5", snap)
	}

	clock.advance(3 * time.Second)
	snap, _ = store.Snapshot(ctx, job.ID)
	if snap.Status != domain.StatusProcessing || snap.Progress != 50 {
		t.Fatalf("snapshot at 4s = %+v, want processing at 50", snap)
	}

	clock.advance(3 * time.Second)
	snap, _ = store.Snapshot(ctx, job.ID)
	if snap.Status != domain.StatusCompleted || snap.Progress != 100 {
		t.Fatalf("snapshot at 7s = %+v, want completed at 100", snap)
	}
	wantName := "collage_" + job.ID + ".jpg"
	if snap.OutputFile != wantName {
		t.Fatalf("output file = %q, want %q", snap.OutputFile, wantName)
	}
	wantDone := job.CreatedAt.Add(7 * time.Second).Format(time.RFC3339)
	if snap.CompletedAt != wantDone {
		t.Fatalf("completed at = %q, want %q", snap.CompletedAt, wantDone)
	}

	if up.uploads != 1 {
		t.Fatalf("uploads = %d, want exactly 1", up.uploads)
	}
	store.Snapshot(ctx, job.ID)
	if up.uploads != 1 {
		t.Fatalf("uploads = %d after re-read, want still 1", up.uploads)
	}
}

func TestStoreArtifactGates(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)

	if _, _, _, err := store.Artifact(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("artifact for unknown job: %v", err)
	}

	job := store.Create(ctx, domain.DefaultCollageConfig(),[]string{"a.png", "b.png"})
	if _, _, _, err := store.Artifact(ctx, job.ID); !errors.Is(err, ErrArtifactNotReady) {
		t.Fatalf("artifact before completion: %v", err)
	}

	clock.advance(7 * time.Second)
	data, contentType, name, err := store.Artifact(ctx, job.ID)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if contentType != "image/jpeg" {
		t.Fatalf("content type = %q", contentType)
	}
	if name != "collage_"+job.ID+".jpg" {
		t.Fatalf("filename = %q", name)
	}
	if !bytes.HasPrefix(data, jpegMagic) {
		t.Fatalf("artifact missing jpeg magic: %x", data[:4])
	}
}

func TestStorePNGFormat(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)

	cfg := domain.DefaultCollageConfig()
	cfg.Format = domain.FormatPNG
	job := store.Create(ctx, cfg, []string{"a.png", "b.png"})

	clock.advance(7 * time.Second)
	data, contentType, name, err := store.Artifact(ctx, job.ID)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if contentType != "image/png" || !strings.HasSuffix(name, ".png") {
		t.Fatalf("content type %q filename %q, want png", contentType, name)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Fatalf("artifact missing png magic: %x", data[:8])
	}
}

func TestStoreCorruptNameFails(t *testing.T) {
	ctx := context.Background()
	store, clock, up := newTestStore(t)

	job := store.Create(ctx, domain.DefaultCollageConfig(),[]string{"ok.png", "family_CORRUPT.png"})

	clock.advance(3 * time.Second)
	snap, _ := store.Snapshot(ctx, job.ID)
	if snap.Status != domain.StatusProcessing {
		t.Fatalf("snapshot before failure = %+v", snap)
	}

	clock.advance(1 * time.Second)
	snap, _ = store.Snapshot(ctx, job.ID)
	if snap.Status != domain.StatusFailed || snap.Progress != 50 {
		t.Fatalf("snapshot at 4s = %+v, want failed at 50", snap)
	}
	wantErr := "cannot process family_CORRUPT.png: corrupted image data"
	if snap.Error != wantErr {
		t.Fatalf("error = %q, want %q", snap.Error, wantErr)
	}
	if snap.CompletedAt != job.CreatedAt.Add(4*time.Second).Format(time.RFC3339) {
		t.Fatalf("completed at = %q", snap.CompletedAt)
	}

	if _, _, _, err := store.Artifact(ctx, job.ID); !errors.Is(err, ErrArtifactNotReady) {
		t.Fatalf("artifact for failed job: %v", err)
	}
	if up.uploads != 0 {
		t.Fatalf("uploads = %d for a failed job, want 0", up.uploads)
	}
}

func TestStoreSnapshotUnknown(t *testing.T) {
	store, _, _ := newTestStore(t)
	if _, err := store.Snapshot(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("snapshot for unknown job: %v", err)
	}
}

func TestStoreListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)

	first := store.Create(ctx, domain.DefaultCollageConfig(),[]string{"a.png", "b.png"})
	clock.advance(10 * time.Millisecond)
	second := store.Create(ctx, domain.DefaultCollageConfig(),[]string{"c.png", "d.png"})
	clock.advance(10 * time.Millisecond)
	third := store.Create(ctx, domain.DefaultCollageConfig(),[]string{"e.png", "f.png"})

	jobs := store.List(ctx)
	if len(jobs) != 3 || store.Count() != 3 {
		t.Fatalf("list = %+v, count = %d", jobs, store.Count())
	}
	for i, want := range []string{first.ID, second.ID, third.ID} {
		if jobs[i].ID != want {
			t.Fatalf("list order = [%s %s %s]", jobs[0].ID, jobs[1].ID, jobs[2].ID)
		}
	}
}

func TestStoreDeleteRemovesArtifact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := &storeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStore(Options{PendingFor: 1 * time.Second, ProcessingFor: 6 * time.Second}, NewLocalUploader(dir), nil, clock.now)

	job := store.Create(ctx, domain.DefaultCollageConfig(),[]string{"a.png", "b.png"})
	clock.advance(7 * time.Second)
	if _, _, _, err := store.Artifact(ctx, job.ID); err != nil {
		t.Fatalf("artifact: %v", err)
	}

	onDisk := filepath.Join(dir, "collage_"+job.ID+".jpg")
	if _, err := os.Stat(onDisk); err != nil {
		t.Fatalf("expected artifact on disk: %v", err)
	}

	if !store.Delete(ctx, job.ID) {
		t.Fatalf("delete reported missing job")
	}
	if _, err := os.Stat(onDisk); !os.IsNotExist(err) {
		t.Fatalf("artifact still on disk after delete: %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("count = %d after delete", store.Count())
	}
	if store.Delete(ctx, job.ID) {
		t.Fatalf("second delete should report missing job")
	}
}
