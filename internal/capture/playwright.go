package capture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/xerrors"
)

type PlaywrightConfig struct {
	ViewportWidth  int
	ViewportHeight int

	FullPage bool
	Format   string
	Quality  int

	Timeout   time.Duration
	Delay     time.Duration
	UserAgent string

	Headless                  bool
	ChromeDevtoolsProtocolURL string
}

func DefaultPlaywrightConfig() PlaywrightConfig {
	return PlaywrightConfig{
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		FullPage:       true,
		Format:         "png",
		Timeout:        30 * time.Second,
		Delay:          3 * time.Second,
		Headless:       true,
	}
}

type playwrightCapturer struct {
	config PlaywrightConfig
}

func NewPlaywrightCapturer(p PlaywrightConfig) Capturer {
	return &playwrightCapturer{
		config: p,
	}
}

func (c *playwrightCapturer) Screenshot(ctx context.Context, url string, captureOptions CaptureOptions) ([]byte, error) {
	p, err := playwright.Run()
	if err != nil {
		return nil, xerrors.Errorf("failed to start playwright: %w", err)
	}
	defer p.Stop()

	var browser playwright.Browser
	if c.config.ChromeDevtoolsProtocolURL == "" {
		browser, err = p.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(c.config.Headless),
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to launch browser: %w", err)
		}
		defer browser.Close()
	} else {
		browser, err = p.Chromium.ConnectOverCDP(c.config.ChromeDevtoolsProtocolURL)
		if err != nil {
			return nil, xerrors.Errorf("failed to connect to browser via CDP at %s: %w", c.config.ChromeDevtoolsProtocolURL, err)
		}
	}

	pageOptions := playwright.BrowserNewPageOptions{}
	if c.config.UserAgent != "" {
		pageOptions.UserAgent = playwright.String(c.config.UserAgent)
	}
	page, err := browser.NewPage(pageOptions)
	if err != nil {
		return nil, xerrors.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()

	if err := page.SetViewportSize(c.config.ViewportWidth, c.config.ViewportHeight); err != nil {
		return nil, xerrors.Errorf("failed to set viewport size: %w", err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			page.Close()
		case <-done:
		}
	}()
	defer close(done)

	if len(captureOptions.Headers) > 0 {
		if err := page.SetExtraHTTPHeaders(captureOptions.Headers); err != nil {
			return nil, xerrors.Errorf("failed to set HTTP headers: %w", err)
		}
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(c.config.Timeout.Milliseconds())),
	}); err != nil {
		return nil, xerrors.Errorf("failed to navigate to %s: %w", url, err)
	}

	if c.config.Delay > 0 {
		select {
		case <-time.After(c.config.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(captureOptions.MaskSelectors) > 0 {
		unique := make([]byte, 8)
		if _, err := rand.Read(unique); err != nil {
			return nil, xerrors.Errorf("failed to generate unique identifier: %w", err)
		}

		if _, err := page.Evaluate(maskScript("mask-"+hex.EncodeToString(unique)), captureOptions.MaskSelectors); err != nil {
			return nil, xerrors.Errorf("failed to mask selectors: %w", err)
		}
	}

	screenshot, err := page.Screenshot(screenshotOptions(c.config))
	if err != nil {
		return nil, xerrors.Errorf("failed to take screenshot: %w", err)
	}

	return screenshot, nil
}

func screenshotOptions(config PlaywrightConfig) playwright.PageScreenshotOptions {
	options := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(config.FullPage),
	}

	switch config.Format {
	case "jpeg", "jpg":
		options.Type = playwright.ScreenshotTypeJpeg
		if config.Quality > 0 {
			options.Quality = playwright.Int(config.Quality)
		}
	default:
		options.Type = playwright.ScreenshotTypePng
	}

	return options
}

// maskScript returns a function taking a list of selectors which overlays every
// matching element with a black box tagged by className.
func maskScript(className string) string {
	maskCSS := fmt.Sprintf(`
.%s {
  position: relative !important;
}
.%s::after {
  content: "" !important;
  position: absolute !important;
  top: 0 !important;
  left: 0 !important;
  right: 0 !important;
  bottom: 0 !important;
  background-color: black !important;
  z-index: 2147483646 !important;
  pointer-events: none !important;
}
`, className, className)

	return fmt.Sprintf(`(selectors) => {
	const style = document.createElement('style');
	style.textContent = %q;
	document.head.appendChild(style);

	selectors.forEach(selector => {
		document.querySelectorAll(selector).forEach(element => {
			if (window.getComputedStyle(element).position === 'static') {
				element.style.position = 'relative';
			}
			element.classList.add(%q);
		});
	});
}`, maskCSS, className)
}
