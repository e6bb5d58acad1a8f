package agent

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	basePromptFile   = "base.md"
	systemPromptFile = "system.md"
)

// hiddenFiles are listed to the model as present but not shown.
var hiddenFiles = []string{".gitignore", "package-lock.json"}

// Template is the project scaffold chosen for a prompt. Prompts are sent to
// the model ahead of the user's request; UIPrompts hold the boilerplate
// artifact that seeds the file tree.
type Template struct {
	Prompts   []string `json:"prompts"`
	UIPrompts []string `json:"uiPrompts"`
}

// PromptManager serves the built-in prompts. Files with the same name in
// Directory replace them, and any other .md file there is appended to the
// system prompt.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) read(name string) (string, error) {
	if pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %v", name, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("unknown prompt %s", name)
	}
	return string(data), nil
}

func (pm *PromptManager) BasePrompt() (string, error) {
	return pm.read(basePromptFile)
}

// Boilerplate returns the starter artifact for a project type.
func (pm *PromptManager) Boilerplate(pt ProjectType) (string, error) {
	if !pt.Valid() {
		return "", ErrClassificationRejected
	}
	return pm.read(string(pt) + ".md")
}

// SystemPrompt returns system.md followed by the extra guidance files of
// Directory in name order.
func (pm *PromptManager) SystemPrompt() (string, error) {
	system, err := pm.read(systemPromptFile)
	if err != nil {
		return "", err
	}
	contents := []string{system}
	for _, extra := range pm.extraFiles() {
		data, err := os.ReadFile(extra)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", extra, err)
			continue
		}
		contents = append(contents, string(data))
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

func (pm *PromptManager) extraFiles() []string {
	if pm.Directory == "" {
		return nil
	}
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return nil
	}
	reserved := map[string]bool{
		basePromptFile:        true,
		systemPromptFile:      true,
		string(React) + ".md": true,
		string(Node) + ".md":  true,
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") || reserved[e.Name()] {
			continue
		}
		files = append(files, filepath.Join(pm.Directory, e.Name()))
	}
	sort.Strings(files)
	return files
}

// Template builds the prompts for a project type. React projects also get
// the design guidance base prompt.
func (pm *PromptManager) Template(pt ProjectType) (Template, error) {
	boilerplate, err := pm.Boilerplate(pt)
	if err != nil {
		return Template{}, err
	}
	preamble := fmt.Sprintf("Here is an artifact that contains all files of the project visible to you.\nConsider the contents of ALL files in the project.\n\n%s\n\nHere is a list of files that exist on the file system but are not being shown to you:\n\n", boilerplate)
	for _, f := range hiddenFiles {
		preamble += "  - " + f + "\n"
	}

	var prompts []string
	if pt == React {
		base, err := pm.BasePrompt()
		if err != nil {
			return Template{}, err
		}
		prompts = append(prompts, base)
	}
	prompts = append(prompts, preamble)
	return Template{Prompts: prompts, UIPrompts: []string{boilerplate}}, nil
}
