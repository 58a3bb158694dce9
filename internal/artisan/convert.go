package artisan

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	_ "github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"golang.org/x/image/draw"

	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// decode reads any registered image format
func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}
	return img, nil
}

// resize scales img to exactly d, keeping it as is when it already matches
func resize(img image.Image, d models.Dimensions) image.Image {
	b := img.Bounds()
	if b.Dx() == d.Width && b.Dy() == d.Height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// encode writes img in format and returns the bytes and mime type
func encode(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer

	switch format {
	case models.FormatWebP:
		options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create WebP encoder options: %w", err)
		}
		if err := webp.Encode(&buf, img, options); err != nil {
			return nil, "", fmt.Errorf("failed to encode WebP: %w", err)
		}
		return buf.Bytes(), "image/webp", nil
	case models.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode JPEG: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	case models.FormatPNG, "":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("failed to encode PNG: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	default:
		return nil, "", fmt.Errorf("unsupported output format %q", format)
	}
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/webp":
		return ".webp"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".png"
	}
}
