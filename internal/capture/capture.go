package capture

import (
	"context"
)

type CaptureOptions struct {
	Headers map[string]string
	// MaskSelectors are CSS selectors painted black before the screenshot so
	// that volatile content does not show up as a difference.
	MaskSelectors []string
}

type Capturer interface {
	// Screenshot renders url and returns the encoded image.
	Screenshot(ctx context.Context, url string, options CaptureOptions) ([]byte, error)
}
