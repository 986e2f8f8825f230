package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/png"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

var ErrInvalidImage = errors.New("invalid image")

// StagedImage is a transient local copy of a submitted image, exclusively
// owned by the operation that staged it. Every exit path must release it
// exactly once.
type StagedImage struct {
	Path string
}

type Manager struct {
	dir      string
	maxWidth int
	quality  int
	log      *slog.Logger
}

func NewManager(dir string, maxWidth int, log *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	if maxWidth <= 0 {
		maxWidth = 500
	}

	return &Manager{
		dir:      dir,
		maxWidth: maxWidth,
		quality:  80,
		log:      log,
	}, nil
}

// Stage decodes raw bytes, downscales to the width cap preserving aspect
// ratio, and writes a reduced-quality JPEG into the scratch dir. Unreadable
// input maps to ErrInvalidImage.
func (m *Manager) Stage(raw []byte) (*StagedImage, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))

	if err != nil {
		return nil, ErrInvalidImage
	}

	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= 0 || h <= 0 {
		return nil, ErrInvalidImage
	}

	if w > m.maxWidth {
		scaledH := int(float64(h) * float64(m.maxWidth) / float64(w))

		if scaledH < 1 {
			scaledH = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, m.maxWidth, scaledH))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	path := filepath.Join(m.dir, uuid.NewString()+".jpg")

	f, err := os.Create(path)

	if err != nil {
		return nil, fmt.Errorf("create staged image: %w", err)
	}

	err = jpeg.Encode(f, src, &jpeg.Options{Quality: m.quality})

	closeErr := f.Close()

	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("encode staged image: %w", err)
	}

	return &StagedImage{Path: path}, nil
}

// Release deletes the backing file. Safe to call more than once and safe
// when the file is already gone; failures are logged, never surfaced.
func (m *Manager) Release(img *StagedImage) {
	if img == nil || img.Path == "" {
		return
	}

	err := os.Remove(img.Path)

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.log.Warn("failed to delete staged image", "path", img.Path, "err", err)
	}

	img.Path = ""
}
