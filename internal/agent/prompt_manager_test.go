package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rahul/vibe/internal/plan"
)

func TestPromptManager_SystemPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"system.md":  "System Content",
		"b_style.md": "Style Content",
		"a_rules.md": "Rules Content",
		"react.md":   "<boltArtifact></boltArtifact>",
		"notes.txt":  "Ignored Content",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.SystemPrompt()
	if err != nil {
		t.Fatal(err)
	}

	for _, part := range []string{"System Content", "Rules Content", "Style Content"} {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}
	for _, part := range []string{"Ignored Content", "boltArtifact"} {
		if strings.Contains(prompt, part) {
			t.Errorf("Prompt should not contain: %s", part)
		}
	}

	// Verify order
	if strings.Index(prompt, "System Content") >= strings.Index(prompt, "Rules Content") {
		t.Error("System should be before Rules")
	}
	if strings.Index(prompt, "Rules Content") >= strings.Index(prompt, "Style Content") {
		t.Error("Rules should be before Style")
	}
}

func TestPromptManager_EmbeddedDefaults(t *testing.T) {
	pm := NewPromptManager("")

	system, err := pm.SystemPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(system, "boltArtifact") {
		t.Error("default system prompt should describe the artifact format")
	}

	for _, pt := range []ProjectType{React, Node} {
		boilerplate, err := pm.Boilerplate(pt)
		if err != nil {
			t.Fatalf("%s: %v", pt, err)
		}
		steps := plan.Parse(boilerplate)
		if len(steps) < 2 {
			t.Fatalf("%s boilerplate parsed to %d steps", pt, len(steps))
		}
		var hasManifest bool
		for _, s := range steps {
			if s.Path == "package.json" {
				hasManifest = true
			}
		}
		if !hasManifest {
			t.Errorf("%s boilerplate has no package.json", pt)
		}
	}
}

func TestPromptManager_Template(t *testing.T) {
	pm := NewPromptManager("")

	react, err := pm.Template(React)
	if err != nil {
		t.Fatal(err)
	}
	if len(react.Prompts) != 2 || len(react.UIPrompts) != 1 {
		t.Fatalf("react template: %d prompts, %d ui prompts", len(react.Prompts), len(react.UIPrompts))
	}
	if !strings.Contains(react.Prompts[1], react.UIPrompts[0]) {
		t.Error("react preamble should embed the react boilerplate")
	}
	if !strings.Contains(react.Prompts[1], "  - package-lock.json\n") {
		t.Error("preamble should list hidden files")
	}

	node, err := pm.Template(Node)
	if err != nil {
		t.Fatal(err)
	}
	if len(node.Prompts) != 1 {
		t.Fatalf("node template: %d prompts", len(node.Prompts))
	}
	if !strings.Contains(node.Prompts[0], node.UIPrompts[0]) {
		t.Error("node preamble should embed the node boilerplate")
	}
	if strings.Contains(node.Prompts[0], "vite.config.ts") {
		t.Error("node preamble should not carry the react boilerplate")
	}

	if _, err := pm.Template(ProjectType("vue")); err != ErrClassificationRejected {
		t.Errorf("expected ErrClassificationRejected, got %v", err)
	}
}

func TestPromptManager_Override(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "node.md"), []byte("custom node"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := NewPromptManager(tempDir).Boilerplate(Node)
	if err != nil {
		t.Fatal(err)
	}
	if got != "custom node" {
		t.Errorf("override not used, got %q", got)
	}
}

func TestParseProjectType(t *testing.T) {
	tests := []struct {
		answer string
		want   ProjectType
		ok     bool
	}{
		{"react", React, true},
		{"  Node\n", Node, true},
		{"REACT", React, true},
		{"react.", "", false},
		{"I think react", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseProjectType(tt.answer)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseProjectType(%q) = %q, %v", tt.answer, got, err)
		}
		if !tt.ok && err != ErrClassificationRejected {
			t.Errorf("ParseProjectType(%q) should be rejected, got %q", tt.answer, got)
		}
	}
}
