// Package mount projects a file tree into the nested directory description
// consumed by the execution sandbox.
package mount

import (
	"encoding/json"

	"github.com/rahul/vibe/internal/filetree"
)

// Tree maps entry names to entries, one level of a directory.
type Tree map[string]Entry

// Entry is either a file or a directory.
type Entry struct {
	File      *File
	Directory Tree
}

// File carries the full text contents of a file.
type File struct {
	Contents string `json:"contents"`
}

func (e Entry) IsDir() bool { return e.File == nil }

// MarshalJSON encodes {"file":{"contents":...}} or {"directory":{...}}. An
// empty directory is encoded as {"directory":{}}.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.File != nil {
		return json.Marshal(struct {
			File *File `json:"file"`
		}{e.File})
	}
	dir := e.Directory
	if dir == nil {
		dir = Tree{}
	}
	return json.Marshal(struct {
		Directory Tree `json:"directory"`
	}{dir})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		File      *File `json:"file"`
		Directory Tree  `json:"directory"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.File = raw.File
	e.Directory = raw.Directory
	if e.File == nil && e.Directory == nil {
		e.Directory = Tree{}
	}
	return nil
}

// Project converts every root node of t into a top-level entry. It never
// fails for a tree produced by filetree.Apply.
func Project(t *filetree.Tree) Tree {
	out := Tree{}
	if t == nil {
		return out
	}
	for _, n := range t.Roots {
		out[n.Name] = project(n)
	}
	return out
}

func project(n *filetree.Node) Entry {
	if !n.IsDir() {
		return Entry{File: &File{Contents: n.Content}}
	}
	dir := make(Tree, len(n.Children))
	for _, c := range n.Children {
		dir[c.Name] = project(c)
	}
	return Entry{Directory: dir}
}

// Has reports whether a top-level file named name exists.
func (t Tree) Has(name string) bool {
	e, ok := t[name]
	return ok && !e.IsDir()
}

// lookup resolves a slash-delimited path inside the projection.
func (t Tree) lookup(path string) (Entry, bool) {
	segs := filetree.Split(path)
	if len(segs) == 0 {
		return Entry{}, false
	}
	cur := t
	for i, seg := range segs {
		e, ok := cur[seg]
		if !ok {
			return Entry{}, false
		}
		if i == len(segs)-1 {
			return e, true
		}
		if !e.IsDir() {
			return Entry{}, false
		}
		cur = e.Directory
	}
	return Entry{}, false
}
