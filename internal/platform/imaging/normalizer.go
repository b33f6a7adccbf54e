// Package imaging shrinks uploaded photos before they are stored.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	defaultMaxDimension = 800
	defaultTargetBytes  = 512 << 10
	blurHashSize        = 32
	startQuality        = 85
	minQuality          = 45
	qualityStep         = 10
)

// ErrUnsupportedFormat is returned when the bytes are not a decodable photo.
var ErrUnsupportedFormat = errors.New("imaging: unsupported image format")

// Result is a normalised photo ready for upload.
type Result struct {
	Data        []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
	BlurHash    string
}

// Normalizer resizes photos to a bounded edge and re-encodes them as JPEG
// close to a byte budget.
type Normalizer struct {
	maxDimension int
	targetBytes  int
}

// NewNormalizer builds a normalizer. Non-positive limits use the defaults.
func NewNormalizer(maxDimension int, targetBytes int64) *Normalizer {
	n := &Normalizer{maxDimension: maxDimension, targetBytes: int(targetBytes)}
	if n.maxDimension <= 0 {
		n.maxDimension = defaultMaxDimension
	}
	if n.targetBytes <= 0 {
		n.targetBytes = defaultTargetBytes
	}
	return n
}

// Normalize decodes data, fits it inside the configured edge and encodes it as
// JPEG, lowering quality until the target size is met or the floor is reached.
func (n *Normalizer) Normalize(ctx context.Context, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	switch format {
	case "jpeg", "png", "webp":
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	img := flatten(fit(src, n.maxDimension))
	bounds := img.Bounds()

	var encoded []byte
	for quality := startQuality; quality >= minQuality; quality -= qualityStep {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return Result{}, fmt.Errorf("imaging: encode jpeg: %w", err)
		}
		encoded = buf.Bytes()
		if len(encoded) <= n.targetBytes {
			break
		}
	}

	hash, err := blurHash(img)
	if err != nil {
		// A missing placeholder does not invalidate the photo.
		hash = ""
	}

	return Result{
		Data:        encoded,
		ContentType: "image/jpeg",
		Ext:         "jpg",
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		BlurHash:    hash,
	}, nil
}

// fit scales img down so neither edge exceeds limit, keeping the aspect ratio.
func fit(img image.Image, limit int) image.Image {
	w, h := scaledSize(img.Bounds().Dx(), img.Bounds().Dy(), limit)
	if w == img.Bounds().Dx() && h == img.Bounds().Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// flatten composes img onto white so transparent PNGs encode cleanly as JPEG.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}

func blurHash(img image.Image) (string, error) {
	w, h := scaledSize(img.Bounds().Dx(), img.Bounds().Dy(), blurHashSize)
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)
	return blurhash.Encode(4, 3, thumb)
}

func scaledSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
