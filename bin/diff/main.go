package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"image-diff/internal/env"
	"image-diff/internal/storage"
	"log"
	"os"
	"time"

	diffimage "image-diff/internal/diff/image"

	"golang.org/x/xerrors"
)

type DiffOutput struct {
	BaselinePath string                `json:"baselinePath"`
	TargetPath   string                `json:"targetPath"`
	Score        float64               `json:"score"`
	DiffAmount   float64               `json:"diffAmount"`
	Regions      []diffimage.Rectangle `json:"regions"`
}

func main() {
	env.Load()

	var storageConfig storage.Config
	var options diffimage.Options
	var thresholder string
	var rectColor string
	flag.StringVar(&storageConfig.Backend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&storageConfig.File.Directory, "directory", env.OrDefault("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&storageConfig.S3.Bucket, "s3-bucket", env.OrDefault("S3_BUCKET", ""), "S3 bucket")
	flag.StringVar(&storageConfig.S3.EndpointURL, "s3-endpoint-url", env.OrDefault("S3_ENDPOINT_URL", ""), "S3 compatible endpoint URL")
	flag.IntVar(&options.WindowSize, "window-size", env.OrDefault("WINDOW_SIZE", 7), "SSIM window size (odd, >= 3)")
	flag.IntVar(&options.MinRegionArea, "min-region-area", env.OrDefault("MIN_REGION_AREA", 0), "Drop regions whose bounding box is smaller than this many pixels")
	flag.IntVar(&options.RectThickness, "rect-thickness", env.OrDefault("RECT_THICKNESS", 2), "Outline thickness in pixels")
	flag.StringVar(&rectColor, "rect-color", env.OrDefault("RECT_COLOR", "#ff0000"), "Outline color (#rrggbb)")
	flag.StringVar(&thresholder, "thresholder", env.OrDefault("THRESHOLDER", "otsu"), "Thresholder (otsu or fixed:N)")
	flag.StringVar(&options.Format, "format", env.OrDefault("OUTPUT_FORMAT", "jpeg"), "Output format (jpeg or png)")
	flag.IntVar(&options.Quality, "quality", env.OrDefault("JPEG_QUALITY", 95), "JPEG quality")
	flag.IntVar(&options.MaxPixels, "max-pixels", env.OrDefault("MAX_PIXELS", diffimage.DefaultMaxPixels), "Reject inputs with more pixels than this (negative disables the check)")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("baseline, target not specified")
	}

	options, err := resolveOptions(options, thresholder, rectColor)
	if err != nil {
		log.Fatalf("Invalid options: %v", err)
	}

	ctx := context.Background()
	s, err := storage.New(ctx, storageConfig)
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	output, err := run(ctx, diffimage.NewSSIMDiff(options), s, args[0], args[1], time.Now())
	if err != nil {
		log.Fatalf("Failed to diff images: %v", err)
	}

	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}

// resolveOptions completes flag values that need parsing and rejects values
// that would produce a meaningless diff, such as a thickness below 1.
func resolveOptions(options diffimage.Options, thresholder string, rectColor string) (diffimage.Options, error) {
	var err error
	options.Thresholder, err = diffimage.NewThresholderFromString(thresholder)
	if err != nil {
		return diffimage.Options{}, xerrors.Errorf("invalid thresholder: %w", err)
	}
	options.RectColor, err = diffimage.ParseColor(rectColor)
	if err != nil {
		return diffimage.Options{}, xerrors.Errorf("invalid rect color: %w", err)
	}
	if err := options.Validate(); err != nil {
		return diffimage.Options{}, err
	}
	return options, nil
}

func run(ctx context.Context, differ *diffimage.SSIMDiff, s storage.Storage, baselinePath string, targetPath string, now time.Time) (*DiffOutput, error) {
	baseline, err := os.ReadFile(baselinePath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read baseline image: %w", err)
	}
	target, err := os.ReadFile(targetPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read target image: %w", err)
	}

	result, err := differ.Compare(baseline, target)
	if err != nil {
		return nil, err
	}

	prefix := outputPrefix(baselinePath, targetPath, now)
	extension := differ.Options().Format
	if extension == "" {
		extension = "jpeg"
	}

	output := &DiffOutput{
		Score:      result.Score,
		DiffAmount: result.DiffAmount,
		Regions:    result.Regions,
	}
	if output.Regions == nil {
		output.Regions = []diffimage.Rectangle{}
	}

	output.BaselinePath, err = s.Put(ctx, fmt.Sprintf("%s/baseline.%s", prefix, extension), result.Baseline)
	if err != nil {
		return nil, xerrors.Errorf("failed to save baseline image: %w", err)
	}
	output.TargetPath, err = s.Put(ctx, fmt.Sprintf("%s/target.%s", prefix, extension), result.Target)
	if err != nil {
		return nil, xerrors.Errorf("failed to save target image: %w", err)
	}

	return output, nil
}

func outputPrefix(baseline string, target string, now time.Time) string {
	h := sha256.New()
	h.Write([]byte(baseline + target))
	hash := fmt.Sprintf("%x", h.Sum(nil))[:16]

	return fmt.Sprintf("ImageDiff/%s/%s", hash, now.Format("20060102150405"))
}
