package main

import (
	"errors"
	"testing"

	diffimage "image-diff/internal/diff/image"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config, err := LoadConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.MaxWindowSize != 63 {
			t.Errorf("Expected MaxWindowSize 63, got %d", config.MaxWindowSize)
		}
		if config.Diff.MaxPixels != diffimage.DefaultMaxPixels {
			t.Errorf("Expected MaxPixels %d, got %d", diffimage.DefaultMaxPixels, config.Diff.MaxPixels)
		}
		if config.Diff.RectThickness != 2 {
			t.Errorf("Expected RectThickness 2, got %d", config.Diff.RectThickness)
		}
	})

	t.Run("MaxPixels", func(t *testing.T) {
		t.Setenv("MAX_PIXELS", "1024")

		config, err := LoadConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Diff.MaxPixels != 1024 {
			t.Errorf("Expected MaxPixels 1024, got %d", config.Diff.MaxPixels)
		}
	})

	for name, tc := range map[string]struct {
		key   string
		value string
		want  error
	}{
		"NegativeThickness": {"RECT_THICKNESS", "-1", diffimage.ErrInvalidOptions},
		"ZeroThickness":     {"RECT_THICKNESS", "0", diffimage.ErrInvalidOptions},
		"EvenWindow":        {"WINDOW_SIZE", "8", diffimage.ErrInvalidWindowSize},
		"WindowAboveCap":    {"WINDOW_SIZE", "65", nil},
		"QualityOutOfRange": {"JPEG_QUALITY", "0", diffimage.ErrInvalidOptions},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("Expected %s=%s to be rejected", tc.key, tc.value)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}
