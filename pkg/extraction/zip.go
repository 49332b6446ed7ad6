package extraction

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// maxZipDepth bounds ZIP-of-ZIP recursion. Five levels covers everything
// seen in the wild; deeper nesting is treated as malformed.
const maxZipDepth = 5

// maxEntrySize caps a single decompressed entry, against zip bombs.
const maxEntrySize = 256 << 20

// isZip sniffs the local-file-header magic.
func isZip(data []byte) bool {
	return len(data) >= 4 && bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// zipEntry is one unpacked file.
type zipEntry struct {
	Name string
	Data []byte
}

// unpackZip enumerates the archive's files, skipping directories and hidden
// metadata entries.
func unpackZip(data []byte) ([]zipEntry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var entries []zipEntry
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := file.Name
		if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(baseName(name), ".") {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip entry %s: %w", name, err)
		}

		entries = append(entries, zipEntry{Name: baseName(name), Data: content})
	}
	return entries, nil
}

func baseName(name string) string {
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		return name[i+1:]
	}
	return name
}
