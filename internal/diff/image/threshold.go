package image

import (
	"fmt"
	"strconv"
	"strings"
)

// Thresholder picks the intensity at or below which a pixel counts as different.
type Thresholder interface {
	Threshold(g *Gray) uint8
}

// Otsu selects the threshold that maximizes the between-class variance of the histogram.
type Otsu struct{}

func (Otsu) Threshold(g *Gray) uint8 {
	var histogram [256]int
	for _, v := range g.Pix {
		histogram[v]++
	}

	total := len(g.Pix)
	var sum float64
	for i, c := range histogram {
		sum += float64(i * c)
	}

	var sumBackground float64
	var weightBackground int
	var maxVariance float64
	threshold := 0
	for i := 0; i < len(histogram); i++ {
		weightBackground += histogram[i]
		if weightBackground == 0 {
			continue
		}
		weightForeground := total - weightBackground
		if weightForeground == 0 {
			break
		}

		sumBackground += float64(i * histogram[i])
		meanBackground := sumBackground / float64(weightBackground)
		meanForeground := (sum - sumBackground) / float64(weightForeground)

		variance := float64(weightBackground) * float64(weightForeground) * (meanBackground - meanForeground) * (meanBackground - meanForeground)
		if variance > maxVariance {
			maxVariance = variance
			threshold = i
		}
	}

	return uint8(threshold)
}

type Fixed struct {
	Value uint8
}

func (f Fixed) Threshold(*Gray) uint8 {
	return f.Value
}

// NewThresholderFromString parses "otsu" or "fixed:<0-255>".
func NewThresholderFromString(s string) (Thresholder, error) {
	switch {
	case s == "" || s == "otsu":
		return Otsu{}, nil
	case strings.HasPrefix(s, "fixed:"):
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "fixed:"), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed threshold %q: %w", s, err)
		}
		return Fixed{Value: uint8(v)}, nil
	default:
		return nil, fmt.Errorf("unknown thresholder: %s", s)
	}
}

// Mask is a binary grid; true marks a differing pixel.
type Mask struct {
	Pix    []bool
	Width  int
	Height int
}

// Binarize applies t with inverted polarity: pixels at or below the threshold become foreground.
func Binarize(g *Gray, t Thresholder) *Mask {
	threshold := t.Threshold(g)
	m := &Mask{
		Pix:    make([]bool, len(g.Pix)),
		Width:  g.Width,
		Height: g.Height,
	}
	for i, v := range g.Pix {
		m.Pix[i] = v <= threshold
	}
	return m
}
