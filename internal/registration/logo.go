package registration

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const pngDataURIPrefix = "data:image/png;base64,"

// LogoCodec turns arbitrary image bytes into PNG.
type LogoCodec interface {
	ToPNG(data []byte) ([]byte, error)
}

// PNGLogoCodec decodes PNG, JPEG, GIF, BMP, TIFF and WebP images.
type PNGLogoCodec struct{}

func (PNGLogoCodec) ToPNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func pngDataURI(data []byte) string {
	return pngDataURIPrefix + base64.StdEncoding.EncodeToString(data)
}
