// Package snapshot turns a Frigate event snapshot into the fixed-size
// image the classifier expects.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // snapshot.jpg
	_ "image/png"
	"time"

	_ "golang.org/x/image/webp" // newer Frigate builds can serve webp

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// Source downloads raw snapshot bytes for an event.
type Source interface {
	Snapshot(ctx context.Context, eventID string) ([]byte, error)
}

// Fetcher downloads, decodes and letterboxes event snapshots.
type Fetcher struct {
	source Source
	size   int
}

// NewFetcher returns a fetcher producing size×size images.
func NewFetcher(source Source, size int) *Fetcher {
	return &Fetcher{
		source: source,
		size:   size,
	}
}

// Size is the edge length of produced images.
func (f *Fetcher) Size() int {
	return f.size
}

// Fetch returns the letterboxed snapshot for eventID. Download errors are
// returned unchanged so callers can inspect the frigate status.
func (f *Fetcher) Fetch(ctx context.Context, eventID string) (*image.RGBA, error) {
	start := time.Now()
	data, err := f.source.Snapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}

	img, err := Prepare(data, f.size)
	if err != nil {
		return nil, errors.New(err).
			Component("snapshot").
			Category(errors.CategoryImageDecode).
			Context("event_id", eventID).
			Context("bytes", len(data)).
			Build()
	}

	GetLogger().Trace("snapshot prepared",
		logger.String("event_id", eventID),
		logger.Duration("elapsed", time.Since(start)))
	return img, nil
}

// Prepare decodes an encoded image and letterboxes it to size×size.
func Prepare(data []byte, size int) (*image.RGBA, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty %s image", format)
	}
	return Letterbox(src, size), nil
}
