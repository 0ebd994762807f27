package upload

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/osvaldoandrade/collageq/internal/metrics"
	"github.com/osvaldoandrade/collageq/pkg/config"
)

// ValidationError is a client-side rejection raised before any network
// activity. Reason doubles as the metric label.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const (
	ReasonTooFewFiles     = "too_few_files"
	ReasonTooManyFiles    = "too_many_files"
	ReasonFileTooLarge    = "file_too_large"
	ReasonTotalTooLarge   = "total_too_large"
	ReasonUnsupportedType = "unsupported_type"
	ReasonUnreadable      = "unreadable"
)

// MinFiles is the submission floor: a collage needs at least two images.
const MinFiles = 2

var acceptedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/webp",
}

type Limits struct {
	MaxFiles      int
	MaxFileBytes  int64
	MaxTotalBytes int64
}

func DefaultLimits() Limits {
	return Limits{MaxFiles: 100, MaxFileBytes: 10 << 20, MaxTotalBytes: 500 << 20}
}

// LimitsFromConfig derives staging ceilings from loaded configuration, so the
// client refuses locally what the backend would refuse anyway.
func LimitsFromConfig(c *config.Config) Limits {
	return Limits{
		MaxFiles:      c.MaxFiles,
		MaxFileBytes:  c.MaxFileSizeBytes,
		MaxTotalBytes: c.MaxTotalSizeBytes,
	}
}

// File is one accepted image pending submission. The handle opened for type
// sniffing is retained for upload streaming and must be closed exactly once,
// on removal or on set teardown.
type File struct {
	ID          string
	Name        string
	Path        string
	Size        int64
	ContentType string

	handle *os.File
	closed bool
}

// Reader rewinds the retained handle for streaming into a request body.
func (f *File) Reader() (io.Reader, error) {
	if f.closed || f.handle == nil {
		return nil, fmt.Errorf("file %s is closed", f.Name)
	}
	if _, err := f.handle.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", f.Name, err)
	}
	return f.handle, nil
}

// Close releases the handle. Subsequent calls are no-ops.
func (f *File) Close() error {
	if f.closed || f.handle == nil {
		f.closed = true
		return nil
	}
	f.closed = true
	return f.handle.Close()
}

// Closed reports whether the handle has been released.
func (f *File) Closed() bool { return f.closed }

// Set is the collection of images staged for one submission. Adds are
// all-or-nothing: a file that violates any ceiling leaves the set untouched.
type Set struct {
	mu     sync.Mutex
	limits Limits
	files  []*File
	total  int64
	logger *slog.Logger
	now    func() time.Time
}

func NewSet(limits Limits, logger *slog.Logger, now func() time.Time) *Set {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultLimits().MaxFiles
	}
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = DefaultLimits().MaxFileBytes
	}
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = DefaultLimits().MaxTotalBytes
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &Set{limits: limits, logger: logger, now: now}
}

func (s *Set) Limits() Limits { return s.limits }

// Add validates and stages one image. The order of checks puts the cheap
// count and size ceilings before the open-and-sniff step.
func (s *Set) Add(path string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) >= s.limits.MaxFiles {
		return nil, s.reject(ReasonTooManyFiles,
			fmt.Sprintf("upload set is full: limit is %d files", s.limits.MaxFiles))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, s.reject(ReasonUnreadable, fmt.Sprintf("cannot read %s: %v", path, err))
	}
	if info.Size() > s.limits.MaxFileBytes {
		return nil, s.reject(ReasonFileTooLarge,
			fmt.Sprintf("%s is %s; the per-file limit is %s",
				filepath.Base(path), humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(s.limits.MaxFileBytes))))
	}
	if s.total+info.Size() > s.limits.MaxTotalBytes {
		return nil, s.reject(ReasonTotalTooLarge,
			fmt.Sprintf("adding %s would exceed the total upload limit of %s",
				filepath.Base(path), humanize.Bytes(uint64(s.limits.MaxTotalBytes))))
	}

	handle, err := os.Open(path)
	if err != nil {
		return nil, s.reject(ReasonUnreadable, fmt.Sprintf("cannot open %s: %v", path, err))
	}
	mtype, err := mimetype.DetectReader(handle)
	if err != nil {
		handle.Close()
		return nil, s.reject(ReasonUnreadable, fmt.Sprintf("cannot sniff %s: %v", path, err))
	}
	if !acceptedImage(mtype) {
		handle.Close()
		return nil, s.reject(ReasonUnsupportedType,
			fmt.Sprintf("%s is %s; accepted types are JPEG, PNG, GIF, BMP, TIFF and WebP",
				filepath.Base(path), mtype.String()))
	}
	if _, err := handle.Seek(0, io.SeekStart); err != nil {
		handle.Close()
		return nil, s.reject(ReasonUnreadable, fmt.Sprintf("rewind %s: %v", path, err))
	}

	name := filepath.Base(path)
	f := &File{
		ID:          fileToken(name, s.now()),
		Name:        name,
		Path:        path,
		Size:        info.Size(),
		ContentType: mtype.String(),
		handle:      handle,
	}
	s.files = append(s.files, f)
	s.total += f.Size
	s.logger.Debug("file staged", "name", f.Name, "size", f.Size, "type", f.ContentType, "count", len(s.files))
	return f, nil
}

func (s *Set) reject(reason, message string) error {
	metrics.UploadRejectedTotal.WithLabelValues(reason).Inc()
	s.logger.Warn("file rejected", "reason", reason, "detail", message)
	return &ValidationError{Reason: reason, Message: message}
}

// Files returns the staged files in insertion order.
func (s *Set) Files() []*File {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*File, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Set) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *Set) TotalSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Ready reports whether the set may be submitted.
func (s *Set) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.files) < MinFiles {
		return &ValidationError{
			Reason:  ReasonTooFewFiles,
			Message: fmt.Sprintf("a collage needs at least %d images; %d staged", MinFiles, len(s.files)),
		}
	}
	return nil
}

// Remove drops the file with the given token, closing its handle. The order
// of the remaining files is unchanged.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.ID == id {
			s.dropAt(i)
			return true
		}
	}
	return false
}

// RemoveAt drops the file at index i, closing its handle.
func (s *Set) RemoveAt(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.files) {
		return false
	}
	s.dropAt(i)
	return true
}

// dropAt must be called with the lock held.
func (s *Set) dropAt(i int) {
	f := s.files[i]
	s.total -= f.Size
	_ = f.Close()
	s.files = append(s.files[:i], s.files[i+1:]...)
	s.logger.Debug("file removed", "name", f.Name, "count", len(s.files))
}

// TruncateTo keeps the first n files and closes the handles of the dropped
// tail. It returns how many files were removed.
func (s *Set) TruncateTo(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(s.files) {
		return 0
	}
	dropped := s.files[n:]
	for _, f := range dropped {
		s.total -= f.Size
		_ = f.Close()
	}
	s.files = s.files[:n]
	s.logger.Debug("set truncated", "kept", n, "removed", len(dropped))
	return len(dropped)
}

// CloseAll tears the set down, releasing every remaining handle exactly once.
func (s *Set) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		_ = f.Close()
	}
	s.files = nil
	s.total = 0
}

func acceptedImage(m *mimetype.MIME) bool {
	for _, want := range acceptedTypes {
		if m.Is(want) {
			return true
		}
	}
	return false
}

// fileToken combines name, timestamp and a random suffix. Uniqueness is best
// effort; there is no collision check.
func fileToken(name string, now time.Time) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return fmt.Sprintf("%s-%d-%s", base, now.UnixMilli(), uuid.NewString()[:8])
}
