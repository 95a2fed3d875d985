package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gocv.io/x/gocv"

	"trafficcam/internal/logger"
)

// ErrSourceUnavailable is returned when a locator cannot be resolved or opened.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source is an opened frame source. *gocv.VideoCapture satisfies it.
type Source interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Close() error
}

// Opener opens a direct locator (URL, file path or device index).
type Opener func(locator string) (Source, error)

// Resolver turns a video-hosting page URL into a direct media URL.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// Acquirer resolves and opens camera sources. It never retries.
type Acquirer struct {
	resolver Resolver
	open     Opener
	logger   *logger.Logger
}

// NewAcquirer creates an Acquirer. A nil opener falls back to OpenCapture.
func NewAcquirer(resolver Resolver, open Opener, logger *logger.Logger) *Acquirer {
	if open == nil {
		open = OpenCapture
	}
	return &Acquirer{resolver: resolver, open: open, logger: logger}
}

// Acquire returns an opened source for the locator or an error wrapping ErrSourceUnavailable.
func (a *Acquirer) Acquire(ctx context.Context, locator string) (Source, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("%w: empty locator", ErrSourceUnavailable)
	}

	target := locator
	if IsHostedVideoURL(locator) {
		if a.resolver == nil {
			return nil, fmt.Errorf("%w: no resolver for %s", ErrSourceUnavailable, locator)
		}
		direct, err := a.resolver.Resolve(ctx, locator)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrSourceUnavailable, locator, err)
		}
		a.logger.Info("Resolved hosted video %s", locator)
		target = direct
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	src, err := a.open(target)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, locator, err)
	}
	if src == nil || !src.IsOpened() {
		if src != nil {
			src.Close()
		}
		return nil, fmt.Errorf("%w: could not open %s", ErrSourceUnavailable, locator)
	}

	return src, nil
}

// IsHostedVideoURL reports whether the locator points at a video-hosting page
// that has to be resolved before it can be opened.
func IsHostedVideoURL(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range []string{"youtube.com", "youtu.be"} {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// OpenCapture opens the locator with OpenCV and keeps the capture buffer at a single
// frame so reads return the freshest frame. Numeric locators open a local device.
func OpenCapture(locator string) (Source, error) {
	capture, err := gocv.OpenVideoCapture(locator)
	if err != nil {
		return nil, err
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)
	return capture, nil
}
