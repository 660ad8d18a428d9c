package snapshot

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// FitSize returns the largest size with the aspect ratio of w×h that fits
// inside max×max. Images that already fit are left at their size.
func FitSize(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		nh := max(h*maxSide/w, 1)
		return maxSide, nh
	}
	nw := max(w*maxSide/h, 1)
	return nw, maxSide
}

// Letterbox scales src down to fit a size×size square, preserving aspect
// ratio, and centers it on a black canvas. Images are never upscaled.
func Letterbox(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	sb := src.Bounds()
	w, h := FitSize(sb.Dx(), sb.Dy(), size)
	offX := (size - w) / 2
	offY := (size - h) / 2
	target := image.Rect(offX, offY, offX+w, offY+h)

	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, target, src, sb.Min, draw.Src)
		return dst
	}
	draw.BiLinear.Scale(dst, target, src, sb, draw.Src, nil)
	return dst
}
