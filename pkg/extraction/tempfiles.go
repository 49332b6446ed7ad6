package extraction

import (
	"os"
	"path/filepath"
	"time"
)

// tempTTL is how long extracted temp files survive between runs.
const tempTTL = time.Hour

func defaultTempDir() string {
	return filepath.Join(os.TempDir(), "licitahub-extraction")
}

// tempFile writes the payload to the extraction scratch directory. The
// engines need a real path on disk.
func (s *Service) tempFile(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.tempDir, "doc-*"+ext)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// gcTempFiles removes scratch files older than tempTTL. Failures are
// ignored; the next run retries.
func (s *Service) gcTempFiles() {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return
	}
	cutoff := s.now().Add(-tempTTL)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(s.tempDir, entry.Name()))
		}
	}
}
