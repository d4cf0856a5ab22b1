package docindex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// SeedFromDir indexes every .txt and .md file under dir, using the file name
// (without extension) as the document title. A missing directory is not an
// error; the index simply starts empty.
func SeedFromDir(ix *Index, dir string, logger *zap.Logger) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read documents directory: %w", err)
	}

	indexed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			logger.Warn("Skipping unsupported document format",
				zap.String("file", entry.Name()),
			)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn("Failed to read document",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}

		title := strings.TrimSuffix(entry.Name(), ext)
		if _, err := ix.Add(title, string(data)); err != nil {
			return indexed, err
		}
		indexed++
	}

	if indexed > 0 {
		logger.Info("Seeded document index",
			zap.String("dir", dir),
			zap.Int("documents", indexed),
		)
	}
	return indexed, nil
}
