package image

import (
	"image"
	"image/color"

	"golang.org/x/xerrors"
)

type Options struct {
	// WindowSize is the side of the similarity window. Larger windows are
	// smoother and less sensitive to small-scale noise.
	WindowSize    int
	RectColor     color.Color
	RectThickness int
	MinRegionArea int
	Thresholder   Thresholder
	Format        string
	Quality       int
	// MaxPixels bounds width*height of each decoded input. Zero selects
	// DefaultMaxPixels and a negative value disables the bound.
	MaxPixels int
}

// DefaultMaxPixels admits a 4K UHD frame.
const DefaultMaxPixels = 3840 * 2160

func DefaultOptions() Options {
	return Options{
		WindowSize:    7,
		RectColor:     color.RGBA{R: 255, A: 255},
		RectThickness: 2,
		MinRegionArea: 0,
		Thresholder:   Otsu{},
		Format:        "jpeg",
		Quality:       95,
		MaxPixels:     DefaultMaxPixels,
	}
}

// Validate checks options exactly as a caller supplied them, before
// NewSSIMDiff resolves zero values, so an explicit zero thickness or quality
// is rejected.
func (o Options) Validate() error {
	if o.WindowSize < 3 || o.WindowSize%2 == 0 {
		return xerrors.Errorf("window size %d: %w", o.WindowSize, ErrInvalidWindowSize)
	}
	if o.RectThickness < 1 {
		return xerrors.Errorf("rectangle thickness %d must be at least 1: %w", o.RectThickness, ErrInvalidOptions)
	}
	if o.MinRegionArea < 0 {
		return xerrors.Errorf("minimum region area %d must not be negative: %w", o.MinRegionArea, ErrInvalidOptions)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return xerrors.Errorf("quality %d must be between 1 and 100: %w", o.Quality, ErrInvalidOptions)
	}
	switch o.Format {
	case "", "jpeg", "jpg", "png":
	default:
		return xerrors.Errorf("%q: %w", o.Format, ErrUnsupportedFormat)
	}
	return nil
}

// Analysis is everything the pipeline derives before annotation.
type Analysis struct {
	Score      float64
	Map        *SimilarityMap
	Mask       *Mask
	Regions    []Rectangle
	DiffAmount float64
}

// SSIMDiff compares two same-shape images by structural similarity. It keeps
// no state between calls and is safe for concurrent use.
type SSIMDiff struct {
	options Options
}

// NewSSIMDiff fills zero fields of options with their defaults.
func NewSSIMDiff(options Options) *SSIMDiff {
	defaults := DefaultOptions()
	if options.WindowSize == 0 {
		options.WindowSize = defaults.WindowSize
	}
	if options.RectColor == nil {
		options.RectColor = defaults.RectColor
	}
	if options.RectThickness == 0 {
		options.RectThickness = defaults.RectThickness
	}
	if options.Thresholder == nil {
		options.Thresholder = defaults.Thresholder
	}
	if options.Format == "" {
		options.Format = defaults.Format
	}
	if options.Quality == 0 {
		options.Quality = defaults.Quality
	}
	if options.MaxPixels == 0 {
		options.MaxPixels = defaults.MaxPixels
	}

	return &SSIMDiff{
		options: options,
	}
}

func (s *SSIMDiff) Options() Options {
	return s.options
}

func (s *SSIMDiff) Compare(baseline []byte, target []byte) (*DiffResult, error) {
	baselineImage, err := Decode(baseline, s.options.MaxPixels)
	if err != nil {
		return nil, &DecodeError{Input: "baseline", Err: err}
	}

	targetImage, err := Decode(target, s.options.MaxPixels)
	if err != nil {
		return nil, &DecodeError{Input: "target", Err: err}
	}

	return s.CompareImages(baselineImage, targetImage)
}

func (s *SSIMDiff) CompareImages(baseline image.Image, target image.Image) (*DiffResult, error) {
	analysis, err := s.Analyze(baseline, target)
	if err != nil {
		return nil, err
	}

	baselineData, err := Encode(Annotate(baseline, analysis.Regions, s.options.RectColor, s.options.RectThickness), s.options.Format, s.options.Quality)
	if err != nil {
		return nil, &EncodeError{Output: "baseline", Err: err}
	}

	targetData, err := Encode(Annotate(target, analysis.Regions, s.options.RectColor, s.options.RectThickness), s.options.Format, s.options.Quality)
	if err != nil {
		return nil, &EncodeError{Output: "target", Err: err}
	}

	return &DiffResult{
		Baseline:   baselineData,
		Target:     targetData,
		Score:      analysis.Score,
		Regions:    analysis.Regions,
		DiffAmount: analysis.DiffAmount,
	}, nil
}

// Analyze runs the pipeline up to region extraction without drawing anything.
func (s *SSIMDiff) Analyze(baseline image.Image, target image.Image) (*Analysis, error) {
	if err := checkShape(baseline, target); err != nil {
		return nil, err
	}

	baselineGray := ToGray(baseline)
	targetGray := ToGray(target)

	score, similarityMap, err := Similarity(baselineGray, targetGray, s.options.WindowSize)
	if err != nil {
		return nil, xerrors.Errorf("failed to compute similarity: %w", err)
	}

	mask := Binarize(similarityMap.Rescale(), s.options.Thresholder)
	regions := Extract(mask, s.options.MinRegionArea)

	return &Analysis{
		Score:      score,
		Map:        similarityMap,
		Mask:       mask,
		Regions:    regions,
		DiffAmount: Coverage(regions, mask.Width, mask.Height),
	}, nil
}
