package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/grvsrs/playclaw/pkg/logger"
)

// HTTPSource captures frames by polling an emulator's screenshot endpoint
// (any URL returning a PNG or JPEG of the current display).
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource builds a source for the given screenshot URL.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url: url,
		client: &http.Client{
			// Under a 10+ FPS cadence a slow endpoint must fail fast and
			// surface as a skipped tick, not a stalled loop.
			Timeout: 2 * time.Second,
		},
	}
}

// Init probes the endpoint once so a dead emulator fails the loop at
// startup rather than producing an endless skip stream.
func (s *HTTPSource) Init(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("screenshot url is empty")
	}
	if _, err := s.Capture(ctx); err != nil {
		return fmt.Errorf("probe %s: %w", s.url, err)
	}
	logger.InfoCF("capture", "Screenshot source ready", map[string]interface{}{"url": s.url})
	return nil
}

// Capture fetches and decodes one frame.
func (s *HTTPSource) Capture(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("screenshot endpoint returned %s", resp.Status)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

// Close releases nothing; the HTTP client holds no persistent handle.
func (s *HTTPSource) Close() error { return nil }

var _ FrameSource = (*HTTPSource)(nil)

// SyntheticSource generates a moving color gradient. It stands in for a
// real emulator in demo mode and tests.
type SyntheticSource struct {
	Width, Height int
	tick          uint8
}

// NewSyntheticSource builds a generator at the given frame size.
func NewSyntheticSource(width, height int) *SyntheticSource {
	if width < 1 {
		width = 240
	}
	if height < 1 {
		height = 160
	}
	return &SyntheticSource{Width: width, Height: height}
}

func (s *SyntheticSource) Init(ctx context.Context) error { return nil }

func (s *SyntheticSource) Capture(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	s.tick += 3
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x) + s.tick,
				G: uint8(y) + s.tick,
				B: s.tick,
				A: 255,
			})
		}
	}
	return img, nil
}

func (s *SyntheticSource) Close() error { return nil }

var _ FrameSource = (*SyntheticSource)(nil)
