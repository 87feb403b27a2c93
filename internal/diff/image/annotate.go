package image

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"
)

// Annotate returns a copy of src with an outline around every rectangle.
// The outline runs from (X, Y) to (X+Width, Y+Height) inclusive and grows
// outwards by one pixel per unit of thickness. src is never modified.
func Annotate(src image.Image, rectangles []Rectangle, c color.Color, thickness int) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	uniform := &image.Uniform{C: c}
	for _, rect := range rectangles {
		r := rect.Bounds(bounds.Min)
		for t := 0; t < thickness; t++ {
			x0 := r.Min.X - t
			y0 := r.Min.Y - t
			x1 := r.Max.X + t
			y1 := r.Max.Y + t

			// draw.Draw clips each edge to dst.
			draw.Draw(dst, image.Rect(x0, y0, x1+1, y0+1), uniform, image.Point{}, draw.Src)
			draw.Draw(dst, image.Rect(x0, y1, x1+1, y1+1), uniform, image.Point{}, draw.Src)
			draw.Draw(dst, image.Rect(x0, y0, x0+1, y1+1), uniform, image.Point{}, draw.Src)
			draw.Draw(dst, image.Rect(x1, y0, x1+1, y1+1), uniform, image.Point{}, draw.Src)
		}
	}

	return dst
}

// Encode serializes img as "jpeg" or "png". quality only applies to JPEG.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buffer bytes.Buffer
	switch format {
	case "jpeg", "jpg", "":
		if err := jpeg.Encode(&buffer, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	case "png":
		if err := png.Encode(&buffer, img); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return buffer.Bytes(), nil
}

// ParseColor accepts "#rrggbb" or "#rgb".
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color: %s", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color: %s", s)
	}

	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}
