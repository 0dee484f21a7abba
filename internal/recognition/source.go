package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a PNG payload in both raw and base64 form.
type Image struct {
	PNG    []byte
	Base64 string
}

func (i Image) DataURL() string {
	return "data:image/png;base64," + i.Base64
}

// ImageSource produces the image for one recognition.
type ImageSource interface {
	Image(ctx context.Context) (Image, error)
}

// Base64Source accepts base64 PNG data, optionally as a data URL.
type Base64Source string

func (s Base64Source) Image(ctx context.Context) (Image, error) {
	_ = ctx
	raw := strings.TrimSpace(string(s))
	if i := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	if raw == "" {
		return Image{}, ErrNoImage
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64 image: %w", err)
	}
	return Image{PNG: b, Base64: raw}, nil
}

// BytesSource converts arbitrary encoded image bytes to PNG.
type BytesSource []byte

func (s BytesSource) Image(ctx context.Context) (Image, error) {
	_ = ctx
	if len(s) == 0 {
		return Image{}, ErrNoImage
	}
	return toPNG(s)
}

// FileSource reads png, jpeg, gif, bmp, tiff or webp from disk and
// re-encodes it as PNG.
type FileSource string

func (s FileSource) Image(ctx context.Context) (Image, error) {
	_ = ctx
	b, err := os.ReadFile(string(s))
	if err != nil {
		return Image{}, fmt.Errorf("read image file: %w", err)
	}
	return BytesSource(b).Image(ctx)
}

func toPNG(data []byte) (Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	if format == "png" {
		return Image{PNG: data, Base64: base64.StdEncoding.EncodeToString(data)}, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Image{}, fmt.Errorf("encode png: %w", err)
	}
	out := buf.Bytes()
	return Image{PNG: out, Base64: base64.StdEncoding.EncodeToString(out)}, nil
}
