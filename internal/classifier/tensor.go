package classifier

import (
	"fmt"
	"image"
	"math"
)

// quantization describes an affine uint8/int8 tensor encoding
type quantization struct {
	Scale     float64
	ZeroPoint int
}

// rgbAt returns 8-bit RGB for pixel (x, y) relative to the image origin.
func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok {
		i := rgba.PixOffset(b.Min.X+x, b.Min.Y+y)
		return rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
	}
	r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)
}

func checkInput(img image.Image, size, n int) error {
	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size {
		return fmt.Errorf("image is %dx%d, model expects %dx%d", b.Dx(), b.Dy(), size, size)
	}
	if n != size*size*3 {
		return fmt.Errorf("input tensor holds %d values, want %d", n, size*size*3)
	}
	return nil
}

// fillUint8 writes raw RGB bytes in NHWC order.
func fillUint8(dst []uint8, img image.Image, size int) error {
	if err := checkInput(img, size, len(dst)); err != nil {
		return err
	}
	i := 0
	for y := range size {
		for x := range size {
			r, g, b := rgbAt(img, x, y)
			dst[i], dst[i+1], dst[i+2] = r, g, b
			i += 3
		}
	}
	return nil
}

// fillFloat32 writes RGB normalized to [0,1] in NHWC order.
func fillFloat32(dst []float32, img image.Image, size int) error {
	if err := checkInput(img, size, len(dst)); err != nil {
		return err
	}
	i := 0
	for y := range size {
		for x := range size {
			r, g, b := rgbAt(img, x, y)
			dst[i] = float32(r) / 255
			dst[i+1] = float32(g) / 255
			dst[i+2] = float32(b) / 255
			i += 3
		}
	}
	return nil
}

// fillInt8 quantizes [0,1] normalized RGB with q.
func fillInt8(dst []int8, img image.Image, size int, q quantization) error {
	if err := checkInput(img, size, len(dst)); err != nil {
		return err
	}
	quant := func(v uint8) int8 {
		if q.Scale == 0 {
			return int8(int(v) - 128)
		}
		x := math.Round(float64(v)/255/q.Scale) + float64(q.ZeroPoint)
		return int8(math.Max(math.MinInt8, math.Min(math.MaxInt8, x)))
	}
	i := 0
	for y := range size {
		for x := range size {
			r, g, b := rgbAt(img, x, y)
			dst[i], dst[i+1], dst[i+2] = quant(r), quant(g), quant(b)
			i += 3
		}
	}
	return nil
}

// dequantizeUint8 maps quantized scores to floats. A zero scale means the
// model did not publish parameters and scores are assumed to be x/255.
func dequantizeUint8(raw []uint8, q quantization) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = dequantize(float64(v), q)
	}
	return out
}

func dequantizeInt8(raw []int8, q quantization) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		if q.Scale == 0 {
			out[i] = (float64(v) + 128) / 255
			continue
		}
		out[i] = dequantize(float64(v), q)
	}
	return out
}

func dequantize(v float64, q quantization) float64 {
	if q.Scale == 0 {
		return clamp01(v / 255)
	}
	return clamp01(q.Scale * (v - float64(q.ZeroPoint)))
}

func float32sToFloat64(raw []float32) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = clamp01(float64(v))
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
