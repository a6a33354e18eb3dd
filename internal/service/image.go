package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrImageTooLarge    = errors.New("image exceeds the size limit")
	ErrUnsupportedImage = errors.New("file is not a supported image")
	ErrEmptyImage       = errors.New("image is empty")
)

// EncodeImage reads an uploaded image and returns it as a data URL
// (data:<mime>;base64,<payload>) suitable for storing on the perfume row.
// The MIME type is sniffed from the content; anything but image/* is refused.
func EncodeImage(r io.Reader, maxBytes int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if int64(len(data)) > maxBytes {
		return "", ErrImageTooLarge
	}

	mime := mimetype.Detect(data)
	mediaType := strings.TrimSpace(strings.SplitN(mime.String(), ";", 2)[0])
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mediaType)
	}

	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
