package frame

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	// stdlib codecs
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/examwatch/examwatch/internal/errors"
)

// DefaultMaxPixels bounds the pixel count of a decoded frame when no limit
// is configured.
const DefaultMaxPixels = 40_000_000

// Decode turns a frame payload into a Raster. The payload is either raw
// encoded image bytes or base64 text, optionally behind a data URI header
// such as "data:image/jpeg;base64,". Everything up to and including the first
// comma of a text payload is discarded. Frames above DefaultMaxPixels are
// rejected before any pixel data is decoded.
//
// Every failure is a decode error, see errors.IsDecodeError.
func Decode(payload []byte) (*Raster, error) {
	return DecodeLimited(payload, DefaultMaxPixels)
}

// DecodeLimited is Decode with an explicit pixel limit. A limit of zero or
// below means DefaultMaxPixels.
func DecodeLimited(payload []byte, maxPixels int) (*Raster, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, decodeError(errors.NewStd("empty frame payload"))
	}

	img, err := decodeImage(payload, maxPixels)
	if err == nil {
		return FromImage(img)
	}
	if !errors.Is(err, image.ErrFormat) {
		return nil, decodeError(err)
	}

	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, decodeError(err)
	}

	img, err = decodeImage(raw, maxPixels)
	if err != nil {
		return nil, decodeError(err)
	}
	return FromImage(img)
}

// DecodeString is Decode for payloads carried in JSON string fields.
func DecodeString(payload string) (*Raster, error) {
	return Decode([]byte(payload))
}

// decodeImage reads the header first so oversized frames never allocate.
func decodeImage(data []byte, maxPixels int) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, errors.Newf("frame of %dx%d exceeds the %d pixel limit", cfg.Width, cfg.Height, maxPixels).
			Component("frame").
			Category(errors.CategoryImageDecode).
			Context("format", format).
			Context("width", cfg.Width).
			Context("height", cfg.Height).
			Context("max_pixels", maxPixels).
			Build()
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func decodeBase64(payload []byte) ([]byte, error) {
	text := bytes.TrimSpace(payload)
	if i := bytes.IndexByte(text, ','); i >= 0 {
		text = text[i+1:]
	}

	out := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(out, text)
	if err != nil {
		// senders that strip padding
		n, err = base64.RawStdEncoding.Decode(out, bytes.TrimRight(text, "="))
		if err != nil {
			return nil, fmt.Errorf("frame payload is neither an image nor base64 image data: %w", err)
		}
	}
	return out[:n], nil
}

func decodeError(err error) error {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) && ee.Category == errors.CategoryImageDecode {
		return ee
	}
	return errors.New(err).
		Component("frame").
		Category(errors.CategoryImageDecode).
		Context("operation", "decode_frame").
		Build()
}
