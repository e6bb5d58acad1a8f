// Package plan turns an assistant response into an ordered list of build
// steps.
package plan

// Kind is the type of a build step.
type Kind string

const (
	KindInfo         Kind = "info"
	KindCreateFolder Kind = "create_folder"
	KindCreateFile   Kind = "create_file"
	KindEditFile     Kind = "edit_file"
	KindDeleteFile   Kind = "delete_file"
	KindRunScript    Kind = "run_script"
)

// Status is the lifecycle state of a step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress" // reserved for clients, never set here
	StatusCompleted  Status = "completed"
)

// Step is one parsed action of a plan.
type Step struct {
	ID          int    `json:"id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Path        string `json:"path,omitempty"`
	Code        string `json:"code,omitempty"`
	Command     string `json:"command,omitempty"`
	Status      Status `json:"status"`
}

// AffectsFiles reports whether folding the step can change the file tree.
func (s Step) AffectsFiles() bool {
	switch s.Kind {
	case KindCreateFile, KindEditFile, KindCreateFolder:
		return s.Path != ""
	}
	return false
}

// Pending returns the steps still waiting to be folded.
func Pending(steps []Step) []Step {
	var out []Step
	for _, s := range steps {
		if s.Status == StatusPending {
			out = append(out, s)
		}
	}
	return out
}
