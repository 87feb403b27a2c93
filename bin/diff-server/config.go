package main

import (
	"image-diff/internal/env"
	"image-diff/internal/storage"
	"strings"
	"time"

	diffimage "image-diff/internal/diff/image"

	"golang.org/x/xerrors"
)

type Config struct {
	Address                string
	TerminationGracePeriod time.Duration
	Lameduck               time.Duration
	KeepAlive              bool
	MaxConnections         int

	MaxUploadSize     int64
	AllowedExtensions []string
	UploadPrefix      string
	MaxWindowSize     int

	Storage storage.Config
	Diff    diffimage.Options
}

func LoadConfig() (Config, error) {
	env.Load()

	thresholder, err := diffimage.NewThresholderFromString(env.OrDefault("THRESHOLDER", "otsu"))
	if err != nil {
		return Config{}, xerrors.Errorf("failed to parse THRESHOLDER: %w", err)
	}
	rectColor, err := diffimage.ParseColor(env.OrDefault("RECT_COLOR", "#ff0000"))
	if err != nil {
		return Config{}, xerrors.Errorf("failed to parse RECT_COLOR: %w", err)
	}

	config := Config{
		Address:                env.OrDefault("ADDRESS", "0.0.0.0:8383"),
		TerminationGracePeriod: env.OrDefault("TERMINATION_GRACE_PERIOD", 10*time.Second),
		Lameduck:               env.OrDefault("LAMEDUCK", 1*time.Second),
		KeepAlive:              env.OrDefault("HTTP_KEEPALIVE", true),
		MaxConnections:         env.OrDefault("MAX_CONNECTIONS", 65532),

		MaxUploadSize:     env.OrDefault[int64]("MAX_UPLOAD_SIZE", 32<<20),
		AllowedExtensions: splitList(env.OrDefault("ALLOWED_EXTENSIONS", "png,jpg,jpeg,gif")),
		UploadPrefix:      env.OrDefault("UPLOAD_PREFIX", "uploads"),
		MaxWindowSize:     env.OrDefault("MAX_WINDOW_SIZE", 63),

		Storage: storage.Config{
			Backend: env.OrDefault("STORAGE_BACKEND", "file"),
			File: storage.FileConfig{
				Directory: env.OrDefault("STORAGE_DIRECTORY", "."),
			},
			S3: storage.S3Config{
				Bucket:      env.OrDefault("S3_BUCKET", ""),
				EndpointURL: env.OrDefault("S3_ENDPOINT_URL", ""),
			},
		},
		Diff: diffimage.Options{
			WindowSize:    env.OrDefault("WINDOW_SIZE", 7),
			RectColor:     rectColor,
			RectThickness: env.OrDefault("RECT_THICKNESS", 2),
			MinRegionArea: env.OrDefault("MIN_REGION_AREA", 0),
			Thresholder:   thresholder,
			Format:        env.OrDefault("OUTPUT_FORMAT", "jpeg"),
			Quality:       env.OrDefault("JPEG_QUALITY", 95),
			MaxPixels:     env.OrDefault("MAX_PIXELS", diffimage.DefaultMaxPixels),
		},
	}

	if err := config.Diff.Validate(); err != nil {
		return Config{}, xerrors.Errorf("invalid diff options: %w", err)
	}
	if config.Diff.WindowSize > config.MaxWindowSize {
		return Config{}, xerrors.Errorf("WINDOW_SIZE %d exceeds MAX_WINDOW_SIZE %d", config.Diff.WindowSize, config.MaxWindowSize)
	}
	return config, nil
}

func splitList(s string) []string {
	var values []string
	for _, v := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		values = append(values, strings.ToLower(strings.TrimPrefix(v, ".")))
	}
	return values
}
