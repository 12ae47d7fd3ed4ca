package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatterbox/internal/logger"
)

// LocalStore writes images into Dir and serves them under URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir, URLPrefix: "/uploads/"}
}

func (s *LocalStore) Put(ctx context.Context, name, _ string, r io.Reader, _ int64) (string, error) {
	defer logger.DeferLogDuration("upload.LocalPut", time.Now())()
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("upload.LocalPut mkdir: %w", err)
	}
	dstPath := filepath.Join(s.Dir, filepath.Base(name))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("upload.LocalPut create: %w", err)
	}
	if err := copyWithContext(ctx, dst, r); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("upload.LocalPut copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("upload.LocalPut close: %w", err)
	}
	return s.URLPrefix + filepath.Base(name), nil
}

func (s *LocalStore) Remove(_ context.Context, url string) error {
	if !strings.HasPrefix(url, s.URLPrefix) {
		return nil
	}
	name := path.Base(url)
	err := os.Remove(filepath.Join(s.Dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("upload.LocalRemove: %w", err)
	}
	return nil
}

// ServeHTTP serves a stored image by the last path element only.
func (s *LocalStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)
	ct := contentTypeByExt(filepath.Ext(name))
	if ct == "" || name == "." || name == "/" {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
