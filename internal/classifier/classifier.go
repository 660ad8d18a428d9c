// Package classifier runs a pretrained image classification model over a
// letterboxed snapshot and ranks the result.
package classifier

import (
	"cmp"
	"context"
	"image"
	"slices"
)

// Category is one ranked classification result.
type Category struct {
	Index        int     `json:"index"`
	CategoryName string  `json:"category_name"`
	DisplayName  string  `json:"display_name"`
	Score        float64 `json:"score"`
}

// Classifier classifies a fixed-size RGB image. Results are sorted by
// score, highest first.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) ([]Category, error)
	InputSize() int
	Close() error
}

// Rank pairs scores with labels and returns the topK best, highest score
// first. Ties keep model order. topK <= 0 returns every class.
func Rank(scores []float64, labels []Label, topK int) []Category {
	out := make([]Category, len(scores))
	for i, s := range scores {
		c := Category{Index: i, Score: s}
		if i < len(labels) {
			c.CategoryName = labels[i].Name
			c.DisplayName = labels[i].Display
		}
		out[i] = c
	}
	slices.SortStableFunc(out, func(a, b Category) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}
