// Package media stores uploaded assets (video files, thumbnails, avatars)
// and hands back the public URLs persisted on the owning records.
package media

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind buckets uploaded assets so each class gets its own prefix and size
// limit.
type Kind string

const (
	KindVideo     Kind = "videos"
	KindThumbnail Kind = "thumbnails"
	KindAvatar    Kind = "avatars"
	KindCover     Kind = "covers"
)

// MaxSizeBytes returns the upload ceiling for the asset class.
func (k Kind) MaxSizeBytes() int64 {
	switch k {
	case KindVideo:
		return 2 << 30 // 2 GiB
	default:
		return 8 << 20 // 8 MiB
	}
}

func (k Kind) valid() bool {
	switch k {
	case KindVideo, KindThumbnail, KindAvatar, KindCover:
		return true
	}
	return false
}

// Object identifies a stored asset. URL is what gets persisted on the video
// or user record; Key is what Remove expects.
type Object struct {
	Key string
	URL string
}

// Store persists uploaded assets.
type Store interface {
	Save(ctx context.Context, kind Kind, filename, contentType string, body io.Reader) (Object, error)
	Remove(ctx context.Context, key string) error
	// KeyFromURL maps a persisted public URL back to the storage key, so
	// deleting a record can also reclaim its assets. URLs that did not
	// come from this store report false.
	KeyFromURL(url string) (string, bool)
}

// objectKey builds a collision-free key: <kind>/<ulid><ext>. The extension
// comes from the client filename but is restricted to a sane charset.
func objectKey(kind Kind, filename string) (string, error) {
	if !kind.valid() {
		return "", fmt.Errorf("unknown media kind %q", kind)
	}
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate media key: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return path.Join(string(kind), strings.ToLower(id.String())+ext), nil
}

func guessContentType(contentType, filename string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// FileStore keeps assets on the local filesystem and serves them from a
// static prefix. It is the default for single-node deployments.
type FileStore struct {
	baseDir   string
	publicURL string
}

// NewFileStore roots a FileStore at baseDir. publicBase is the URL prefix
// the HTTP layer serves the directory under, e.g. "/media".
func NewFileStore(baseDir, publicBase string) (*FileStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("media directory required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &FileStore{
		baseDir:   baseDir,
		publicURL: strings.TrimRight(publicBase, "/"),
	}, nil
}

func (s *FileStore) Save(ctx context.Context, kind Kind, filename, contentType string, body io.Reader) (Object, error) {
	key, err := objectKey(kind, filename)
	if err != nil {
		return Object{}, err
	}
	target := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, fmt.Errorf("create media subdirectory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("stage upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	limit := kind.MaxSizeBytes()
	written, err := io.Copy(tmp, io.LimitReader(body, limit+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Object{}, fmt.Errorf("write upload: %w", err)
	}
	if written > limit {
		return Object{}, fmt.Errorf("upload exceeds %d byte limit for %s", limit, kind)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return Object{}, fmt.Errorf("store upload: %w", err)
	}
	return Object{Key: key, URL: s.publicURL + "/" + key}, nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	cleaned := path.Clean("/" + key)
	target := filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove media %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// BaseDir exposes the storage root so the HTTP layer can mount a file server
// over it.
func (s *FileStore) BaseDir() string { return s.baseDir }
