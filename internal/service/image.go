package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/model"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// decodeImage reads any registered format: png, jpeg, gif or webp.
func decodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w: %w", err, apperr.ErrInvalidInput)
	}
	return img, nil
}

// thumbnail scales img to fit within dims, keeping its aspect ratio. Images
// already inside the box are returned unchanged.
func thumbnail(img image.Image, dims model.Dimensions) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= dims.Width && h <= dims.Height {
		return img
	}

	scale := min(float64(dims.Width)/float64(w), float64(dims.Height)/float64(h))
	tw := max(1, int(float64(w)*scale))
	th := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// imageVariants renders every configured size of img as PNG.
func imageVariants(img image.Image) (map[model.ArtifactSize][]byte, error) {
	out := make(map[model.ArtifactSize][]byte, len(model.ArtifactSizes))
	for _, size := range model.ArtifactSizes {
		data, err := encodePNG(thumbnail(img, model.ImageSizes[size]))
		if err != nil {
			return nil, err
		}
		out[size] = data
	}
	return out, nil
}
