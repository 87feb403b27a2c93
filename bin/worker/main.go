package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"image-diff/internal/capture"
	"image-diff/internal/env"
	"image-diff/internal/retry"
	"image-diff/internal/storage"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	diffimage "image-diff/internal/diff/image"

	"github.com/playwright-community/playwright-go"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type WorkerOutput struct {
	BaselineURL string                `json:"baselineURL"`
	TargetURL   string                `json:"targetURL"`
	Score       float64               `json:"score"`
	DiffAmount  float64               `json:"diffAmount"`
	Regions     []diffimage.Rectangle `json:"regions"`
}

type Worker struct {
	Client         *http.Client
	Capturer       capture.Capturer
	CaptureOptions capture.CaptureOptions
	// Source is "page" to screenshot both locations, anything else fetches
	// http(s) URLs and reads local paths.
	Source  string
	Differ  *diffimage.SSIMDiff
	Storage storage.Storage
	Now     func() time.Time
}

type headers []string

func (h *headers) String() string {
	return strings.Join(*h, ", ")
}

func (h *headers) Set(value string) error {
	*h = append(*h, value)
	return nil
}

func main() {
	env.Load()

	var source string
	var storageConfig storage.Config
	var callbackURL string
	var schedule string
	var fetchTimeout time.Duration
	var maxRetryCount uint
	var options diffimage.Options
	var thresholder string
	var rectColor string
	var playwrightConfig = capture.DefaultPlaywrightConfig()
	var maskSelectors string
	var headers headers
	flag.StringVar(&source, "source", env.OrDefault("SOURCE", "image"), "Source of the compared images (image or page)")
	flag.StringVar(&storageConfig.Backend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&storageConfig.File.Directory, "directory", env.OrDefault("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&storageConfig.S3.Bucket, "s3-bucket", env.OrDefault("S3_BUCKET", ""), "S3 bucket")
	flag.StringVar(&storageConfig.S3.EndpointURL, "s3-endpoint-url", env.OrDefault("S3_ENDPOINT_URL", ""), "S3 compatible endpoint URL")
	flag.StringVar(&callbackURL, "callback-url", env.OrDefault("CALLBACK_URL", ""), "Callback URL to send results to")
	flag.StringVar(&schedule, "schedule", env.OrDefault("SCHEDULE", ""), "Cron schedule (e.g., '*/5 * * * *') to repeat the comparison on")
	flag.DurationVar(&fetchTimeout, "fetch-timeout", env.OrDefault("FETCH_TIMEOUT", 30*time.Second), "Timeout for fetching an image including retries")
	flag.UintVar(&maxRetryCount, "max-retry-count", env.OrDefault[uint]("MAX_RETRY_COUNT", 3), "Maximum number of retries for fetches and callbacks")
	flag.IntVar(&options.WindowSize, "window-size", env.OrDefault("WINDOW_SIZE", 7), "SSIM window size (odd, >= 3)")
	flag.IntVar(&options.MinRegionArea, "min-region-area", env.OrDefault("MIN_REGION_AREA", 0), "Drop regions whose bounding box is smaller than this many pixels")
	flag.IntVar(&options.RectThickness, "rect-thickness", env.OrDefault("RECT_THICKNESS", 2), "Outline thickness in pixels")
	flag.StringVar(&rectColor, "rect-color", env.OrDefault("RECT_COLOR", "#ff0000"), "Outline color (#rrggbb)")
	flag.IntVar(&options.MaxPixels, "max-pixels", env.OrDefault("MAX_PIXELS", diffimage.DefaultMaxPixels), "Reject images with more pixels than this (negative disables the check)")
	flag.StringVar(&thresholder, "thresholder", env.OrDefault("THRESHOLDER", "otsu"), "Thresholder (otsu or fixed:N)")
	flag.StringVar(&options.Format, "format", env.OrDefault("OUTPUT_FORMAT", "jpeg"), "Output format (jpeg or png)")
	flag.IntVar(&options.Quality, "quality", env.OrDefault("JPEG_QUALITY", 95), "JPEG quality")
	flag.StringVar(&maskSelectors, "mask-selectors", env.OrDefault("MASK_SELECTORS", ""), "Comma-separated list of CSS selectors to mask during capture")
	flag.DurationVar(&playwrightConfig.Delay, "delay", env.OrDefault("DELAY", playwrightConfig.Delay), "Delay before capturing")
	flag.IntVar(&playwrightConfig.ViewportWidth, "viewport-width", env.OrDefault("VIEWPORT_WIDTH", playwrightConfig.ViewportWidth), "Viewport width in pixels")
	flag.IntVar(&playwrightConfig.ViewportHeight, "viewport-height", env.OrDefault("VIEWPORT_HEIGHT", playwrightConfig.ViewportHeight), "Viewport height in pixels")
	flag.StringVar(&playwrightConfig.UserAgent, "user-agent", env.OrDefault("USER_AGENT", ""), "User-Agent string to use for page captures")
	flag.StringVar(&playwrightConfig.ChromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", env.OrDefault("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.Var(&headers, "H", "Add HTTP header to page captures (can be used multiple times, e.g., -H 'Authorization: Bearer token')")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		log.Fatalf("baseline, target not specified")
	}
	baseline := args[0]
	target := args[1]

	options, err := resolveOptions(options, thresholder, rectColor)
	if err != nil {
		log.Fatalf("invalid options: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	s, err := storage.New(ctx, storageConfig)
	if err != nil {
		log.Fatalf("failed to create storage backend: %v", err)
	}

	worker := &Worker{
		Client:         retry.NewClient(fetchTimeout, retry.NewExponentialBackOff(100*time.Millisecond, 5*time.Second, maxRetryCount, nil)),
		CaptureOptions: captureOptions(maskSelectors, headers),
		Source:         source,
		Differ:         diffimage.NewSSIMDiff(options),
		Storage:        s,
		Now:            time.Now,
	}

	if source == "page" {
		if display := os.Getenv("DISPLAY"); display != "" {
			playwrightConfig.Headless = false
		}
		if playwrightConfig.ChromeDevtoolsProtocolURL == "" {
			if err := playwright.Install(&playwright.RunOptions{
				Browsers: []string{"chromium"},
			}); err != nil {
				log.Fatalf("failed to install playwright browsers: %v", err)
			}
		}
		worker.Capturer = capture.NewPlaywrightCapturer(playwrightConfig)
	}

	callbackClient := retry.NewClient(
		1*time.Second, // retry.Transport does not have perTryTimeout
		retry.NewExponentialBackOff(10*time.Millisecond, 1*time.Second, maxRetryCount, nil),
	)

	job := func(ctx context.Context) error {
		result, err := worker.processDiff(ctx, baseline, target)
		if err != nil {
			return xerrors.Errorf("failed to process diff: %w", err)
		}

		j, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return xerrors.Errorf("failed to marshal result: %w", err)
		}

		if callbackURL == "" {
			fmt.Println(string(j))
			return nil
		}
		return callback(ctx, callbackClient, callbackURL, j)
	}

	if schedule == "" {
		if err := job(ctx); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	if _, err := c.AddFunc(schedule, func() {
		if err := job(ctx); err != nil {
			slog.Error("scheduled diff failed", "error", err)
		}
	}); err != nil {
		log.Fatalf("invalid schedule %q: %v", schedule, err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
}

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

func captureOptions(maskSelectors string, headers headers) capture.CaptureOptions {
	options := capture.CaptureOptions{}
	for _, selector := range strings.Split(maskSelectors, ",") {
		if selector = strings.TrimSpace(selector); selector != "" {
			options.MaskSelectors = append(options.MaskSelectors, selector)
		}
	}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if options.Headers == nil {
			options.Headers = make(map[string]string)
		}
		options.Headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return options
}

func (w *Worker) processDiff(ctx context.Context, baseline string, target string) (*WorkerOutput, error) {
	var baselineData []byte
	var targetData []byte

	// Step 1: Acquire both images in parallel
	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			data, err := w.acquire(ctx, baseline)
			if err != nil {
				return xerrors.Errorf("failed to acquire baseline: %w", err)
			}
			baselineData = data
			return nil
		})

		eg.Go(func() error {
			data, err := w.acquire(ctx, target)
			if err != nil {
				return xerrors.Errorf("failed to acquire target: %w", err)
			}
			targetData = data
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	// Step 2: Compare
	result, err := w.Differ.Compare(baselineData, targetData)
	if err != nil {
		return nil, xerrors.Errorf("failed to compare images: %w", err)
	}

	output := &WorkerOutput{
		Score:      result.Score,
		DiffAmount: result.DiffAmount,
		Regions:    result.Regions,
	}
	if output.Regions == nil {
		output.Regions = []diffimage.Rectangle{}
	}

	// Step 3: Upload both annotated images in parallel
	{
		eg, ctx := errgroup.WithContext(ctx)

		h := sha256.New()
		h.Write([]byte(baseline + target))
		hash := fmt.Sprintf("%x", h.Sum(nil))[:16]
		baseKey := fmt.Sprintf("ImageDiff/%s/%s", hash, w.now().Format("20060102150405"))
		extension := w.Differ.Options().Format

		eg.Go(func() error {
			url, err := w.Storage.Put(ctx, fmt.Sprintf("%s/baseline.%s", baseKey, extension), result.Baseline)
			if err != nil {
				return xerrors.Errorf("failed to upload baseline image: %w", err)
			}
			output.BaselineURL = url
			return nil
		})

		eg.Go(func() error {
			url, err := w.Storage.Put(ctx, fmt.Sprintf("%s/target.%s", baseKey, extension), result.Target)
			if err != nil {
				return xerrors.Errorf("failed to upload target image: %w", err)
			}
			output.TargetURL = url
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	return output, nil
}

func (w *Worker) acquire(ctx context.Context, location string) ([]byte, error) {
	if w.Source == "page" {
		if w.Capturer == nil {
			return nil, xerrors.New("no capturer configured")
		}
		return w.Capturer.Screenshot(ctx, location, w.CaptureOptions)
	}

	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return w.fetch(ctx, location)
	}

	return os.ReadFile(location)
}

func (w *Worker) fetch(ctx context.Context, location string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %w", err)
	}

	response, err := w.Client.Do(request)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch %s: %w", location, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, xerrors.Errorf("failed to fetch %s: %s", location, response.Status)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

func (w *Worker) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

func callback(ctx context.Context, client *http.Client, callbackURL string, data []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPatch, callbackURL, bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return xerrors.Errorf("callback returned %s", response.Status)
	}
	return nil
}
