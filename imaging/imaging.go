// Package imaging prepares document images for the classifier: decoding,
// rescaling to the model's input geometry and normalizing pixel values.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// InputSize is the classifier's input edge length in pixels. Preprocessed
// vectors have InputSize*InputSize*3 elements.
const InputSize = 224

// Decode parses an encoded document image. PNG, JPEG, GIF, TIFF and WebP are
// accepted.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Preprocess rescales an image to InputSize×InputSize and returns RGB values
// normalized to [0, 1], row-major, channel-interleaved.
func Preprocess(img image.Image) []float32 {
	scaled := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	out := make([]float32, 0, InputSize*InputSize*3)
	for y := 0; y < InputSize; y++ {
		row := scaled.Pix[y*scaled.Stride : y*scaled.Stride+InputSize*4]
		for x := 0; x < InputSize; x++ {
			out = append(out,
				float32(row[x*4])/255,
				float32(row[x*4+1])/255,
				float32(row[x*4+2])/255,
			)
		}
	}
	return out
}

// DecodeBase64 decodes a base64 image payload, stripping an optional
// data-URI prefix ("data:image/png;base64,...").
func DecodeBase64(payload string) ([]byte, error) {
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	return data, nil
}

// Thumbnail re-encodes an image as a JPEG data URI no larger than maxEdge on
// either side, for embedding in classification responses.
func Thumbnail(img image.Image, maxEdge int) (string, error) {
	if maxEdge <= 0 {
		maxEdge = 400
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxEdge || h > maxEdge {
		if w >= h {
			h = h * maxEdge / w
			w = maxEdge
		} else {
			w = w * maxEdge / h
			h = maxEdge
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
