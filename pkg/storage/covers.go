package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxCoverBytes is the largest accepted cover upload.
const MaxCoverBytes = 5 << 20

var (
	ErrUnsupportedCoverType = errors.New("cover must be a jpeg, png or webp image")
	ErrCoverTooLarge        = errors.New("cover image too large")
	ErrEmptyCover           = errors.New("cover image is empty")
)

var coverExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Cover is an uploaded image whose type was sniffed from its bytes.
type Cover struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Size returns the payload length in bytes.
func (c Cover) Size() int64 {
	return int64(len(c.Data))
}

// Reader returns a fresh reader over the payload.
func (c Cover) Reader() io.Reader {
	return bytes.NewReader(c.Data)
}

// ReadCover reads at most maxBytes from r and checks the content type.
// The declared type of the upload is ignored.
func ReadCover(r io.Reader, maxBytes int64) (Cover, error) {
	if maxBytes <= 0 {
		maxBytes = MaxCoverBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Cover{}, fmt.Errorf("read cover: %w", err)
	}
	if len(data) == 0 {
		return Cover{}, ErrEmptyCover
	}
	if int64(len(data)) > maxBytes {
		return Cover{}, ErrCoverTooLarge
	}
	contentType := mimetype.Detect(data).String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := coverExtensions[contentType]
	if !ok {
		return Cover{}, ErrUnsupportedCoverType
	}
	return Cover{Data: data, ContentType: contentType, Extension: ext}, nil
}

// CoverKey builds the object key covers/{bookID}/{uuid}.{ext}.
func CoverKey(bookID, ext string) string {
	return fmt.Sprintf("covers/%s/%s.%s", bookID, uuid.NewString(), strings.TrimPrefix(ext, "."))
}
