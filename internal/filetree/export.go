package filetree

import (
	"archive/zip"
	"fmt"
	"io"
)

// WriteZip writes the tree as a zip archive. Folders become directory
// entries so that empty folders survive the round trip.
func (t *Tree) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	err := t.Walk(func(n *Node, _ int) error {
		if n.IsDir() {
			_, err := zw.Create(n.Path + "/")
			return err
		}
		f, err := zw.Create(n.Path)
		if err != nil {
			return err
		}
		_, err = io.WriteString(f, n.Content)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return zw.Close()
}
