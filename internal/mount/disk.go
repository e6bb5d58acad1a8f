package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteDir materializes t below root, creating directories as needed and
// overwriting existing files. Files already on disk that are not part of
// t are left alone, node_modules included.
func WriteDir(root string, t Tree) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return fmt.Errorf("failed to create root: %w", err)
	}
	return writeDir(absRoot, absRoot, t)
}

func writeDir(root, dir string, t Tree) error {
	for name, e := range t {
		target := filepath.Join(dir, name)

		rel, err := filepath.Rel(root, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("unsafe path attempt: %s", name)
		}

		if e.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", rel, err)
			}
			if err := writeDir(root, target, e.Directory); err != nil {
				return err
			}
			continue
		}
		if err := os.WriteFile(target, []byte(e.File.Contents), 0644); err != nil {
			return fmt.Errorf("failed to write file %s: %w", rel, err)
		}
	}
	return nil
}
