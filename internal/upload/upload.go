// Package upload validates message images and keeps them on local disk or in a MinIO bucket.
package upload

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/chatterbox/internal/apperror"
	"github.com/google/uuid"
)

// ImageStore persists an image under name and returns the URL stored on the message.
type ImageStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error)
	// Remove deletes the object behind a URL returned by Put; unknown URLs are ignored.
	Remove(ctx context.Context, url string) error
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func contentTypeByExt(ext string) string {
	return contentTypes[strings.ToLower(ext)]
}

func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
	}
	return false
}

// Save checks that filename has an image extension matching the content's magic bytes,
// then stores it under a fresh random name.
func Save(ctx context.Context, store ImageStore, filename string, r io.Reader, size int64) (string, error) {
	// some clients encode spaces as "+"
	ext := strings.ToLower(filepath.Ext(strings.ReplaceAll(filename, "+", " ")))
	ct := contentTypeByExt(ext)
	if ct == "" {
		return "", apperror.ErrInvalidImage
	}
	head := make([]byte, 512)
	n, err := io.ReadAtLeast(r, head, len(head))
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", apperror.Wrap(apperror.CodeInvalidArgument, "could not read image", err)
	}
	head = head[:n]
	if !matchMagic(ext, head) {
		return "", apperror.ErrInvalidImage
	}
	url, err := store.Put(ctx, uuid.NewString()+ext, ct, io.MultiReader(bytes.NewReader(head), r), size)
	if err != nil {
		return "", apperror.Store(err)
	}
	return url, nil
}
