package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/moodsense/internal/types"
)

// Image is a source holding a single uploaded picture. It yields that frame once, then io.EOF.
type Image struct {
	mu     sync.Mutex
	frame  types.Frame
	served bool
	closed bool
}

// OpenImage reads an image file from disk.
func OpenImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return NewImage(data)
}

// NewImage wraps raw image bytes.
func NewImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrSourceUnavailable)
	}
	return &Image{frame: types.Frame{Index: 1, CapturedAt: time.Now(), Data: data}}, nil
}

// Next returns the image on the first call and io.EOF afterwards.
func (i *Image) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return types.Frame{}, io.ErrClosedPipe
	}
	if i.served {
		return types.Frame{}, io.EOF
	}
	i.served = true
	return i.frame, nil
}

// Close marks the source as released.
func (i *Image) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}
