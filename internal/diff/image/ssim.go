package image

import (
	"image"
	"math"
)

const (
	ssimK1        = 0.01
	ssimK2        = 0.03
	ssimDataRange = 255.0
)

// SimilarityMap holds the per-pixel structural similarity in [-1, 1].
type SimilarityMap struct {
	Values []float64
	Width  int
	Height int
}

// Rescale maps similarity onto 0..255 so that dissimilar pixels are dark.
func (m *SimilarityMap) Rescale() *Gray {
	g := NewGray(m.Width, m.Height)
	for i, v := range m.Values {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		g.Pix[i] = uint8(v * 255)
	}
	return g
}

// Similarity computes the mean SSIM of a and b and the full similarity map,
// using a uniform windowSize x windowSize window with reflected borders.
func Similarity(a *Gray, b *Gray, windowSize int) (float64, *SimilarityMap, error) {
	if windowSize < 3 || windowSize%2 == 0 {
		return 0, nil, ErrInvalidWindowSize
	}
	if a.Width != b.Width || a.Height != b.Height {
		return 0, nil, &ShapeMismatchError{
			Baseline: image.Pt(a.Width, a.Height),
			Target:   image.Pt(b.Width, b.Height),
		}
	}
	if a.Width < windowSize || a.Height < windowSize {
		return 0, nil, ErrImageTooSmall
	}

	width := a.Width
	height := a.Height
	radius := (windowSize - 1) / 2

	n := len(a.Pix)
	x := make([]int64, n)
	y := make([]int64, n)
	xx := make([]int64, n)
	yy := make([]int64, n)
	xy := make([]int64, n)
	for i := 0; i < n; i++ {
		pa := int64(a.Pix[i])
		pb := int64(b.Pix[i])
		x[i] = pa
		y[i] = pb
		xx[i] = pa * pa
		yy[i] = pb * pb
		xy[i] = pa * pb
	}

	// Window sums stay integral so identical windows yield bit-identical statistics.
	sx := boxSum(x, width, height, radius)
	sy := boxSum(y, width, height, radius)
	sxx := boxSum(xx, width, height, radius)
	syy := boxSum(yy, width, height, radius)
	sxy := boxSum(xy, width, height, radius)

	np := float64(windowSize * windowSize)
	covNorm := np / (np - 1)
	c1 := math.Pow(ssimK1*ssimDataRange, 2)
	c2 := math.Pow(ssimK2*ssimDataRange, 2)

	m := &SimilarityMap{
		Values: make([]float64, n),
		Width:  width,
		Height: height,
	}
	for i := 0; i < n; i++ {
		ux := float64(sx[i]) / np
		uy := float64(sy[i]) / np
		vx := covNorm * (float64(sxx[i])/np - float64(ux*ux))
		vy := covNorm * (float64(syy[i])/np - float64(uy*uy))
		vxy := covNorm * (float64(sxy[i])/np - float64(ux*uy))

		// Explicit conversions keep the compiler from fusing these into FMAs,
		// which would break the exact symmetry between a and b.
		a1 := float64(2*ux*uy) + c1
		a2 := float64(2*vxy) + c2
		b1 := float64(ux*ux) + float64(uy*uy) + c1
		b2 := vx + vy + c2
		m.Values[i] = (a1 * a2) / (b1 * b2)
	}

	// Border pixels see reflected data, so they are left out of the score.
	var total float64
	var count int
	for row := radius; row < height-radius; row++ {
		for col := radius; col < width-radius; col++ {
			total += m.Values[row*width+col]
			count++
		}
	}

	return total / float64(count), m, nil
}

// boxSum slides a running window over each row, then over each column, so
// the cost per pixel does not depend on radius.
func boxSum(src []int64, width int, height int, radius int) []int64 {
	horizontal := make([]int64, len(src))
	for y := 0; y < height; y++ {
		row := src[y*width : (y+1)*width]
		out := horizontal[y*width : (y+1)*width]
		var s int64
		for k := -radius; k <= radius; k++ {
			s += row[reflect(k, width)]
		}
		out[0] = s
		for x := 1; x < width; x++ {
			s += row[reflect(x+radius, width)] - row[reflect(x-radius-1, width)]
			out[x] = s
		}
	}

	dst := make([]int64, len(src))
	column := make([]int64, width)
	for k := -radius; k <= radius; k++ {
		r := reflect(k, height) * width
		for x := 0; x < width; x++ {
			column[x] += horizontal[r+x]
		}
	}
	copy(dst[:width], column)
	for y := 1; y < height; y++ {
		add := reflect(y+radius, height) * width
		sub := reflect(y-radius-1, height) * width
		for x := 0; x < width; x++ {
			column[x] += horizontal[add+x] - horizontal[sub+x]
		}
		copy(dst[y*width:(y+1)*width], column)
	}
	return dst
}

// reflect folds i into [0, n) as d c b a | a b c d | d c b a.
func reflect(i int, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
