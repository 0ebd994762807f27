package upload

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/osvaldoandrade/collageq/pkg/config"
)

var magic = map[string][]byte{
	"jpg":  {0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00},
	"png":  {0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  []byte("GIF89a"),
	"bmp":  []byte("BM"),
	"tiff": {0x49, 0x49, 0x2A, 0x00},
	"webp": append([]byte("RIFF"), append([]byte{0x24, 0x00, 0x00, 0x00}, []byte("WEBP")...)...),
}

// writeImage creates a file with a real magic header padded to size bytes.
func writeImage(t *testing.T, dir, name, kind string, size int) string {
	t.Helper()
	header, ok := magic[kind]
	if !ok {
		t.Fatalf("unknown image kind %q", kind)
	}
	data := make([]byte, size)
	copy(data, header)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestSet(t *testing.T, limits Limits) *Set {
	t.Helper()
	s := NewSet(limits, nil, func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	t.Cleanup(s.CloseAll)
	return s
}

func TestAddAcceptsImageTypes(t *testing.T) {
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	tests := []struct {
		kind     string
		wantType string
	}{
		{"jpg", "image/jpeg"},
		{"png", "image/png"},
		{"gif", "image/gif"},
		{"bmp", "image/bmp"},
		{"tiff", "image/tiff"},
		{"webp", "image/webp"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			path := writeImage(t, dir, "img."+tt.kind, tt.kind, 64)
			f, err := s.Add(path)
			if err != nil {
				t.Fatalf("Add(%s): %v", tt.kind, err)
			}
			if f.ContentType != tt.wantType {
				t.Errorf("ContentType = %q, want %q", f.ContentType, tt.wantType)
			}
			if f.Size != 64 {
				t.Errorf("Size = %d, want 64", f.Size)
			}
			if f.ID == "" {
				t.Error("Expected a non-empty file token")
			}
		})
	}

	if s.Count() != len(tests) {
		t.Errorf("Count = %d, want %d", s.Count(), len(tests))
	}
	if s.TotalSize() != int64(64*len(tests)) {
		t.Errorf("TotalSize = %d, want %d", s.TotalSize(), 64*len(tests))
	}
}

func TestAddRejectsUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("just some text, definitely not pixels"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Add(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Reason != ReasonUnsupportedType {
		t.Errorf("Reason = %q, want %q", verr.Reason, ReasonUnsupportedType)
	}
	if s.Count() != 0 {
		t.Errorf("Set should be unchanged after rejection, count = %d", s.Count())
	}
}

func TestAddRejectsMisnamedExtension(t *testing.T) {
	// Content decides, not the file name.
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	path := filepath.Join(dir, "sneaky.jpg")
	if err := os.WriteFile(path, []byte("plain text wearing a jpg name"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Add(path)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonUnsupportedType {
		t.Fatalf("Expected unsupported_type rejection, got %v", err)
	}
}

func TestAddRejectsOversizeFile(t *testing.T) {
	dir := t.TempDir()
	limits := DefaultLimits()
	limits.MaxFileBytes = 32
	s := newTestSet(t, limits)

	path := writeImage(t, dir, "big.png", "png", 64)
	_, err := s.Add(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Reason != ReasonFileTooLarge {
		t.Errorf("Reason = %q, want %q", verr.Reason, ReasonFileTooLarge)
	}
	if s.Count() != 0 {
		t.Error("Set should be unchanged after oversize rejection")
	}
}

func TestAddRejectsWhenCountCeilingReached(t *testing.T) {
	dir := t.TempDir()
	limits := DefaultLimits()
	limits.MaxFiles = 2
	s := newTestSet(t, limits)

	if _, err := s.Add(writeImage(t, dir, "a.png", "png", 32)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(writeImage(t, dir, "b.png", "png", 32)); err != nil {
		t.Fatal(err)
	}

	_, err := s.Add(writeImage(t, dir, "c.png", "png", 32))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonTooManyFiles {
		t.Fatalf("Expected too_many_files rejection, got %v", err)
	}

	files := s.Files()
	if len(files) != 2 || files[0].Name != "a.png" || files[1].Name != "b.png" {
		t.Errorf("Accepted files changed after rejection: %v", names(files))
	}
}

func TestAddRejectsWhenAggregateExceeded(t *testing.T) {
	dir := t.TempDir()
	limits := DefaultLimits()
	limits.MaxTotalBytes = 100
	s := newTestSet(t, limits)

	if _, err := s.Add(writeImage(t, dir, "a.png", "png", 64)); err != nil {
		t.Fatal(err)
	}

	_, err := s.Add(writeImage(t, dir, "b.png", "png", 64))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonTotalTooLarge {
		t.Fatalf("Expected total_too_large rejection, got %v", err)
	}
	if s.Count() != 1 || s.TotalSize() != 64 {
		t.Errorf("Set changed after aggregate rejection: count=%d total=%d", s.Count(), s.TotalSize())
	}
}

func TestReady(t *testing.T) {
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	var verr *ValidationError
	if err := s.Ready(); !errors.As(err, &verr) || verr.Reason != ReasonTooFewFiles {
		t.Fatalf("Empty set should not be ready, got %v", err)
	}

	s.Add(writeImage(t, dir, "a.png", "png", 32))
	if err := s.Ready(); err == nil {
		t.Fatal("One file should not be ready")
	}

	s.Add(writeImage(t, dir, "b.png", "png", 32))
	if err := s.Ready(); err != nil {
		t.Fatalf("Two files should be ready, got %v", err)
	}
}

func TestRemovePreservesOrder(t *testing.T) {
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	s.Add(writeImage(t, dir, "a.png", "png", 32))
	b, _ := s.Add(writeImage(t, dir, "b.png", "png", 32))
	s.Add(writeImage(t, dir, "c.png", "png", 32))

	if !s.Remove(b.ID) {
		t.Fatal("Remove should find the staged file")
	}
	if !b.Closed() {
		t.Error("Removed file's handle should be closed")
	}
	got := names(s.Files())
	if len(got) != 2 || got[0] != "a.png" || got[1] != "c.png" {
		t.Errorf("Remaining files = %v, want [a.png c.png]", got)
	}

	if s.Remove(b.ID) {
		t.Error("Second removal of the same token should report false")
	}
}

func TestTruncateToPreservesPrefix(t *testing.T) {
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	var all []*File
	for _, n := range []string{"a.png", "b.png", "c.png", "d.png"} {
		f, err := s.Add(writeImage(t, dir, n, "png", 32))
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, f)
	}

	removed := s.TruncateTo(2)
	if removed != 2 {
		t.Errorf("TruncateTo removed %d, want 2", removed)
	}
	got := names(s.Files())
	if len(got) != 2 || got[0] != "a.png" || got[1] != "b.png" {
		t.Errorf("Prefix not preserved: %v", got)
	}
	if !all[2].Closed() || !all[3].Closed() {
		t.Error("Dropped tail handles should be closed")
	}
	if all[0].Closed() || all[1].Closed() {
		t.Error("Kept handles should stay open")
	}
	if s.TotalSize() != 64 {
		t.Errorf("TotalSize = %d, want 64", s.TotalSize())
	}

	if n := s.TruncateTo(10); n != 0 {
		t.Errorf("Truncating above the count removed %d, want 0", n)
	}
}

func TestCloseAllReleasesOnce(t *testing.T) {
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	a, _ := s.Add(writeImage(t, dir, "a.png", "png", 32))
	b, _ := s.Add(writeImage(t, dir, "b.png", "png", 32))

	s.CloseAll()
	if !a.Closed() || !b.Closed() {
		t.Error("CloseAll should close every handle")
	}
	if s.Count() != 0 || s.TotalSize() != 0 {
		t.Error("CloseAll should empty the set")
	}

	// Second teardown is a no-op.
	s.CloseAll()
	if err := a.Close(); err != nil {
		t.Errorf("Repeated Close should be a no-op, got %v", err)
	}

	if _, err := a.Reader(); err == nil {
		t.Error("Reader on a closed file should fail")
	}
}

func TestReaderRewinds(t *testing.T) {
	dir := t.TempDir()
	s := newTestSet(t, DefaultLimits())

	f, err := s.Add(writeImage(t, dir, "a.png", "png", 32))
	if err != nil {
		t.Fatal(err)
	}

	r1, err := f.Reader()
	if err != nil {
		t.Fatal(err)
	}
	first, _ := io.ReadAll(r1)

	r2, err := f.Reader()
	if err != nil {
		t.Fatal(err)
	}
	second, _ := io.ReadAll(r2)

	if len(first) != 32 || !bytes.Equal(first, second) {
		t.Errorf("Reader should rewind: first %d bytes, second %d bytes", len(first), len(second))
	}
}

func TestFileTokensDiffer(t *testing.T) {
	dir := t.TempDir()
	s := NewSet(DefaultLimits(), nil, nil)
	t.Cleanup(s.CloseAll)

	path := writeImage(t, dir, "same.png", "png", 32)
	f1, err := s.Add(path)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := s.Add(path)
	if err != nil {
		t.Fatal(err)
	}
	if f1.ID == f2.ID {
		t.Errorf("Tokens for repeated adds should differ, both %q", f1.ID)
	}
}

func names(files []*File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}

func TestLimitsFromConfig(t *testing.T) {
	l := LimitsFromConfig(&config.Config{
		MaxFiles:          12,
		MaxFileSizeBytes:  1 << 20,
		MaxTotalSizeBytes: 8 << 20,
	})
	want := Limits{MaxFiles: 12, MaxFileBytes: 1 << 20, MaxTotalBytes: 8 << 20}
	if l != want {
		t.Errorf("LimitsFromConfig = %+v, want %+v", l, want)
	}
}
