// Package filetree holds the project's virtual file tree and folds build
// steps into it.
package filetree

import (
	"fmt"
	"sort"
	"strings"
)

// NodeType distinguishes files from folders.
type NodeType string

const (
	TypeFile   NodeType = "file"
	TypeFolder NodeType = "folder"
)

// Node is a file or a folder. Content is only meaningful for files and
// Children only for folders; children keep insertion order.
type Node struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Type     NodeType `json:"type"`
	Content  string   `json:"content,omitempty"`
	Children []*Node  `json:"children,omitempty"`
}

func (n *Node) IsDir() bool { return n.Type == TypeFolder }

// Tree is an ordered set of root nodes. The zero value is an empty tree.
type Tree struct {
	Roots []*Node `json:"roots"`
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Clone returns a deep copy of t. A nil tree clones to an empty one.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return New()
	}
	return &Tree{Roots: cloneNodes(t.Roots)}
}

func cloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		cp := *n
		if n.IsDir() {
			cp.Children = cloneNodes(n.Children)
			if cp.Children == nil {
				cp.Children = []*Node{}
			}
		}
		out[i] = &cp
	}
	return out
}

// Find returns the node at path, or nil.
func (t *Tree) Find(path string) *Node {
	if t == nil {
		return nil
	}
	segs := Split(path)
	if len(segs) == 0 {
		return nil
	}
	nodes := t.Roots
	prefix := ""
	for i, seg := range segs {
		prefix = join(prefix, seg)
		n := lookup(nodes, prefix)
		if n == nil {
			return nil
		}
		if i == len(segs)-1 {
			return n
		}
		if n.Type != TypeFolder {
			return nil
		}
		nodes = n.Children
	}
	return nil
}

// Walk visits every node depth-first in insertion order. Returning an
// error from fn stops the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	if t == nil {
		return nil
	}
	return walk(t.Roots, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int) error) error {
	for _, n := range nodes {
		if err := fn(n, depth); err != nil {
			return err
		}
		if n.IsDir() {
			if err := walk(n.Children, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Files returns the paths of every file, sorted.
func (t *Tree) Files() []string {
	var out []string
	_ = t.Walk(func(n *Node, _ int) error {
		if n.Type == TypeFile {
			out = append(out, n.Path)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// size returns the total number of nodes.
func (t *Tree) size() int {
	count := 0
	_ = t.Walk(func(*Node, int) error {
		count++
		return nil
	})
	return count
}

// Render draws the tree as indented text, folders suffixed with "/".
func (t *Tree) Render() string {
	var sb strings.Builder
	_ = t.Walk(func(n *Node, depth int) error {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.Name)
		if n.IsDir() {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
		return nil
	})
	return sb.String()
}

// Split normalizes a slash-delimited path into its segments. Leading "/",
// "." segments and empty segments are dropped.
func Split(path string) []string {
	var segs []string
	for _, s := range strings.Split(strings.TrimSpace(path), "/") {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

// Clean returns the normalized form of path used as node identity.
func Clean(path string) string {
	return strings.Join(Split(path), "/")
}

func join(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "/" + seg
}

func lookup(nodes []*Node, path string) *Node {
	for _, n := range nodes {
		if n.Path == path {
			return n
		}
	}
	return nil
}

// ConflictError reports a step whose path crosses a node of the wrong type.
type ConflictError struct {
	StepID int
	Path   string
	At     string
	Want   NodeType
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("step %d: %s: %s exists but is not a %s", e.StepID, e.Path, e.At, e.Want)
}
