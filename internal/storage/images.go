package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"latexlens/internal/util"
)

const picturesDir = "pictures"

// ImageStore keeps source images as <dir>/<YYYYmmdd_HHMMSS>_<id>.png.
type ImageStore struct {
	dir string
}

func NewImageStore(dataDir string) *ImageStore {
	return &ImageStore{dir: filepath.Join(dataDir, picturesDir)}
}

func (s *ImageStore) Dir() string { return s.dir }

func ImageName(id string, createdAt time.Time) string {
	return fmt.Sprintf("%s_%s.png", createdAt.Format("20060102_150405"), id)
}

// SavePNG writes the image and returns its path.
func (s *ImageStore) SavePNG(id string, createdAt time.Time, png []byte) (string, error) {
	path := util.SafeJoin(s.dir, ImageName(id, createdAt))
	if err := util.WriteFileAtomic(path, png); err != nil {
		return "", fmt.Errorf("save image %s: %w", id, err)
	}
	return path, nil
}

// ReadDataURL loads a stored image by path or bare file name. Only files
// inside the pictures directory are served.
func (s *ImageStore) ReadDataURL(name string) (string, error) {
	path := util.SafeJoin(s.dir, name)
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", filepath.Base(name), err)
	}
	return "data:" + mimeForExt(filepath.Ext(path)) + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/png"
	}
}
