package client

import (
	"fmt"

	"github.com/osvaldoandrade/collageq/internal/upload"
)

// FileParts rewinds every staged file and wraps it as a multipart body part.
// The readers share the set's open handles, so the parts must be consumed
// before the set is mutated or torn down.
func FileParts(files []*upload.File) ([]FilePart, error) {
	parts := make([]FilePart, 0, len(files))
	for _, f := range files {
		r, err := f.Reader()
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", f.Name, err)
		}
		parts = append(parts, FilePart{Name: f.Name, ContentType: f.ContentType, Reader: r})
	}
	return parts, nil
}
