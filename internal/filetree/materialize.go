package filetree

import (
	"fmt"

	"github.com/rahul/vibe/internal/plan"
)

// Result is the outcome of one fold pass.
type Result struct {
	Tree    *Tree
	Steps   []plan.Step
	Applied int     // steps that changed the tree
	Skipped []error // file steps that could not be applied
}

// Apply folds the pending steps into a copy of t, in order, and returns the
// new tree together with the whole batch marked completed. t is not
// modified. File steps upsert (the last write to a path wins), missing
// parent folders are created on the way, and steps without a file effect
// are only marked completed.
func Apply(t *Tree, steps []plan.Step) Result {
	res := Result{
		Tree:  t.Clone(),
		Steps: make([]plan.Step, len(steps)),
	}
	for i, s := range steps {
		if s.Status == plan.StatusPending {
			switch s.Kind {
			case plan.KindCreateFile, plan.KindEditFile, plan.KindCreateFolder:
				if err := res.Tree.apply(s); err != nil {
					res.Skipped = append(res.Skipped, err)
				} else {
					res.Applied++
				}
			}
		}
		s.Status = plan.StatusCompleted
		res.Steps[i] = s
	}
	return res
}

// Build folds steps into an empty tree.
func Build(steps []plan.Step) *Tree {
	pending := make([]plan.Step, len(steps))
	for i, s := range steps {
		s.Status = plan.StatusPending
		pending[i] = s
	}
	return Apply(New(), pending).Tree
}

func (t *Tree) apply(s plan.Step) error {
	segs := Split(s.Path)
	if len(segs) == 0 {
		return fmt.Errorf("step %d: missing path", s.ID)
	}
	for _, seg := range segs {
		if seg == ".." {
			return fmt.Errorf("step %d: %s: path escapes project root", s.ID, s.Path)
		}
	}

	nodes := &t.Roots
	prefix := ""
	for i, seg := range segs {
		prefix = join(prefix, seg)
		n := lookup(*nodes, prefix)

		if i == len(segs)-1 && s.Kind != plan.KindCreateFolder {
			if n == nil {
				*nodes = append(*nodes, &Node{Name: seg, Path: prefix, Type: TypeFile, Content: s.Code})
				return nil
			}
			if n.Type != TypeFile {
				return &ConflictError{StepID: s.ID, Path: s.Path, At: prefix, Want: TypeFile}
			}
			n.Content = s.Code
			return nil
		}

		if n == nil {
			n = &Node{Name: seg, Path: prefix, Type: TypeFolder, Children: []*Node{}}
			*nodes = append(*nodes, n)
		} else if n.Type != TypeFolder {
			return &ConflictError{StepID: s.ID, Path: s.Path, At: prefix, Want: TypeFolder}
		}
		nodes = &n.Children
	}
	return nil
}
