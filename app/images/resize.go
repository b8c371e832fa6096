package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// errUnknownFormat means the image can be kept but not measured, as with
// SVG or AVIF files.
var errUnknownFormat = errors.New("unknown image format")

// fitWithin scales width x height so the longer side equals maxSize.
func fitWithin(width, height, maxSize int) (int, int) {
	if width >= height {
		return maxSize, max(1, height*maxSize/width)
	}
	return max(1, width*maxSize/height), maxSize
}

// downsize rewrites the image at path so neither side exceeds maxSize. It
// reports the new dimensions and whether anything changed.
func downsize(path string, data []byte, maxSize int) (int, int, bool, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return 0, 0, false, errUnknownFormat
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read image header: %w", err)
	}
	if max(cfg.Width, cfg.Height) <= maxSize {
		return cfg.Width, cfg.Height, false, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to decode image: %w", err)
	}

	width, height := fitWithin(cfg.Width, cfg.Height, maxSize)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	case "gif":
		err = gif.Encode(&buf, dst, nil)
	default:
		// webp has no encoder in x/image
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to encode resized image: %w", err)
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return 0, 0, false, err
	}
	return width, height, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".img-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set image permissions: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
