package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestReadCoverDetectsType(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		ext  string
	}{
		{name: "png", data: pngHeader, ext: "png"},
		{name: "jpeg", data: append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, []byte("JFIF\x00")...), ext: "jpg"},
		{name: "webp", data: []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00"), ext: "webp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cover, err := ReadCover(bytes.NewReader(tc.data), 0)
			if err != nil {
				t.Fatalf("read cover: %v", err)
			}
			if cover.Extension != tc.ext {
				t.Fatalf("extension = %q, want %q", cover.Extension, tc.ext)
			}
			if cover.Size() != int64(len(tc.data)) {
				t.Fatalf("size = %d, want %d", cover.Size(), len(tc.data))
			}
		})
	}
}

func TestReadCoverRejects(t *testing.T) {
	if _, err := ReadCover(strings.NewReader("plain text, not an image"), 0); !errors.Is(err, ErrUnsupportedCoverType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
	if _, err := ReadCover(bytes.NewReader(nil), 0); !errors.Is(err, ErrEmptyCover) {
		t.Fatalf("expected empty cover, got %v", err)
	}
	big := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	if _, err := ReadCover(bytes.NewReader(big), 32); !errors.Is(err, ErrCoverTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
}

func TestCoverKey(t *testing.T) {
	key := CoverKey("book-1", ".png")
	if !strings.HasPrefix(key, "covers/book-1/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
	if CoverKey("book-1", "png") == key {
		t.Fatalf("expected unique keys")
	}
}
