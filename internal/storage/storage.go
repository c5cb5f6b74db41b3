package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const failureScreenshotName = "bot-upload-fail.png"

// UploadStore keeps uploaded search images on disk long enough for the
// browser pipeline to consume them, and cleans them up afterwards.
type UploadStore struct {
	mu     sync.Mutex
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

func NewUploadStore(dir string, maxAge time.Duration) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &UploadStore{
		dir:    dir,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// Save writes the image to a uniquely named file and returns its path.
// The original filename only contributes its extension.
func (s *UploadStore) Save(originalName string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".jpg"
	}
	name := fmt.Sprintf("upload-%d-%s%s", s.now().UnixMilli(), uuid.NewString()[:8], ext)
	path := filepath.Join(s.dir, name)

	// Write to temp file first for atomicity
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return path, nil
}

// Remove deletes a stored upload. Missing files are not an error.
func (s *UploadStore) Remove(path string) error {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path outside upload dir: %s", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ScreenshotPath is where the pipeline drops its diagnostic screenshot
// when the upload affordance cannot be found.
func (s *UploadStore) ScreenshotPath() string {
	return filepath.Join(s.dir, failureScreenshotName)
}

// Prune removes uploads older than the store's max age and returns how
// many files were deleted. The failure screenshot is kept.
func (s *UploadStore) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == failureScreenshotName {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
