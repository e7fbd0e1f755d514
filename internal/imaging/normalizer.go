// Package imaging normalizes raw menu photos before they are sent to the
// extraction service: images are scaled down to a bounded resolution and
// re-encoded as JPEG so a four-photo batch stays within request limits.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxDimension bounds the longer edge of a normalized image.
	MaxDimension = 1536

	// JPEGQuality is the re-encode quality factor.
	JPEGQuality = 70

	// MaxBatchSize caps how many photos one extraction request may carry.
	MaxBatchSize = 4
)

// EncodingError reports that a source image could not be decoded or
// re-encoded. It is fatal for the batch the image belongs to.
type EncodingError struct {
	Index int
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("image %d: %v", e.Index, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Normalize decodes raw, scales it so the longer edge is at most
// MaxDimension (aspect ratio preserved) and returns the image re-encoded as
// JPEG. The returned payload carries no outer envelope.
func Normalize(raw []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("decode: %w", err)}
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > MaxDimension || h > MaxDimension {
		if w > h {
			h = h * MaxDimension / w
			w = MaxDimension
		} else {
			w = w * MaxDimension / h
			h = MaxDimension
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, &EncodingError{Err: fmt.Errorf("encode: %w", err)}
	}
	return buf.Bytes(), nil
}

// NormalizeBatch normalizes up to MaxBatchSize images, preserving order.
// Extra images are dropped before normalization. The batch fails atomically:
// if any image fails to normalize, no partial result is returned, so the
// user never orders from a half-read menu.
func NormalizeBatch(raws [][]byte) ([][]byte, error) {
	if len(raws) > MaxBatchSize {
		raws = raws[:MaxBatchSize]
	}

	out := make([][]byte, 0, len(raws))
	for i, raw := range raws {
		payload, err := Normalize(raw)
		if err != nil {
			var encErr *EncodingError
			if errors.As(err, &encErr) {
				encErr.Index = i
			}
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}
