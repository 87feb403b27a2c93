package image

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/xerrors"
)

// Gray is a single channel intensity grid addressed as Pix[y*Width+x].
type Gray struct {
	Pix    []uint8
	Width  int
	Height int
}

func NewGray(width int, height int) *Gray {
	return &Gray{
		Pix:    make([]uint8, width*height),
		Width:  width,
		Height: height,
	}
}

func (g *Gray) At(x int, y int) uint8 {
	return g.Pix[y*g.Width+x]
}

// Decode reads only the header first and refuses images whose declared
// dimensions exceed maxPixels. A maxPixels of zero or less disables the check.
func Decode(data []byte, maxPixels int) (image.Image, error) {
	if maxPixels > 0 {
		config, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if config.Width < 0 || config.Height < 0 || int64(config.Width)*int64(config.Height) > int64(maxPixels) {
			return nil, xerrors.Errorf("%dx%d exceeds %d pixels: %w", config.Width, config.Height, maxPixels, ErrImageTooLarge)
		}
	}

	i, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return i, nil
}

func checkShape(baseline image.Image, target image.Image) error {
	b := baseline.Bounds().Size()
	t := target.Bounds().Size()
	if b != t {
		return &ShapeMismatchError{
			Baseline: b,
			Target:   t,
		}
	}
	return nil
}

// ToGray converts img to BT.601 luma, the same weights color.GrayModel uses.
func ToGray(img image.Image) *Gray {
	bounds := img.Bounds()
	g := NewGray(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < g.Height; y++ {
			offset := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(g.Pix[y*g.Width:(y+1)*g.Width], src.Pix[offset:offset+g.Width])
		}
	case *image.RGBA:
		for y := 0; y < g.Height; y++ {
			offset := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < g.Width; x++ {
				i := offset + x*4
				g.Pix[y*g.Width+x] = luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < g.Height; y++ {
			offset := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < g.Width; x++ {
				i := offset + x*4
				if src.Pix[i+3] == 0xff {
					g.Pix[y*g.Width+x] = luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
					continue
				}
				c := color.NRGBA{R: src.Pix[i], G: src.Pix[i+1], B: src.Pix[i+2], A: src.Pix[i+3]}
				g.Pix[y*g.Width+x] = color.GrayModel.Convert(c).(color.Gray).Y
			}
		}
	case *image.YCbCr:
		// JPEG luma is already full range BT.601.
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = src.Y[src.YOffset(bounds.Min.X+x, bounds.Min.Y+y)]
			}
		}
	default:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				g.Pix[y*g.Width+x] = c.Y
			}
		}
	}

	return g
}

func luma(r uint8, g uint8, b uint8) uint8 {
	// Same fixed-point arithmetic as color.GrayModel on 16-bit channels.
	r16 := uint32(r) * 0x101
	g16 := uint32(g) * 0x101
	b16 := uint32(b) * 0x101
	return uint8((19595*r16 + 38470*g16 + 7471*b16 + 1<<15) >> 24)
}
