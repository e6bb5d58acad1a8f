package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleFile(t *testing.T) {
	steps := Parse(`<boltArtifact><boltAction type="file" filePath="index.js">console.log(1)</boltAction></boltArtifact>`)
	require.Len(t, steps, 2)

	assert.Equal(t, Step{ID: 1, Kind: KindInfo, Title: DefaultTitle, Status: StatusPending}, steps[0])
	assert.Equal(t, Step{
		ID:     2,
		Kind:   KindCreateFile,
		Title:  "Create index.js",
		Path:   "index.js",
		Code:   "console.log(1)",
		Status: StatusPending,
	}, steps[1])
}

func TestParseNoContainer(t *testing.T) {
	for _, in := range []string{
		"",
		"just some prose",
		`<boltAction type="file" filePath="a.js">x</boltAction>`,
		"<boltArtifactx></boltArtifactx>",
	} {
		assert.Empty(t, Parse(in), "input %q", in)
	}
}

func TestParseOrderAndIDs(t *testing.T) {
	text := `Sure, here is your project.
<boltArtifact id="app" title="Todo App">
Install first.
<boltAction type="shell">
  npm install
</boltAction>
Then the entry point.
<boltAction type='file' filePath='src/main.tsx'>
import App from "./App";
</boltAction>
<boltAction type="file" filePath="src/App.tsx" title="Main component">export default function App() {}</boltAction>
<boltAction type="start">npm run dev</boltAction>
</boltArtifact>
Done!`

	steps := Parse(text)
	require.Len(t, steps, 5)

	assert.Equal(t, "Todo App", steps[0].Title)
	for i, s := range steps {
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, StatusPending, s.Status)
	}

	assert.Equal(t, KindRunScript, steps[1].Kind)
	assert.Equal(t, "npm install", steps[1].Command)
	assert.Equal(t, "Run command", steps[1].Title)
	assert.Equal(t, "Install first.", steps[1].Description)
	assert.Empty(t, steps[1].Path)

	assert.Equal(t, KindCreateFile, steps[2].Kind)
	assert.Equal(t, "src/main.tsx", steps[2].Path)
	assert.Equal(t, `import App from "./App";`, steps[2].Code)
	assert.Equal(t, "Then the entry point.", steps[2].Description)

	assert.Equal(t, "Main component", steps[3].Title)

	assert.Equal(t, KindInfo, steps[4].Kind)
	assert.Equal(t, "File operation", steps[4].Title)
	assert.Empty(t, steps[4].Code)
	assert.Empty(t, steps[4].Command)
}

func TestParseSkipsMalformedActions(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		paths []string
	}{
		{
			name:  "missing close before next action",
			text:  `<boltArtifact><boltAction type="file" filePath="a.js">broken<boltAction type="file" filePath="b.js">ok</boltAction></boltArtifact>`,
			paths: []string{"b.js"},
		},
		{
			name:  "unterminated trailing action",
			text:  `<boltArtifact><boltAction type="file" filePath="a.js">ok</boltAction><boltAction type="file" filePath="b.js">never closed</boltArtifact>`,
			paths: []string{"a.js"},
		},
		{
			name:  "open tag cut by another tag",
			text:  `<boltArtifact><boltAction type="file" filePath="a.js" <boltAction type="file" filePath="b.js">ok</boltAction></boltArtifact>`,
			paths: []string{"b.js"},
		},
		{
			name:  "open tag cut at end of input",
			text:  `<boltArtifact><boltAction type="file" filePath="a.js">ok</boltAction><boltAction type="fi`,
			paths: []string{"a.js"},
		},
		{
			name:  "similar tag names are ignored",
			text:  `<boltArtifact><boltActions type="file" filePath="x.js">no</boltActions><boltAction type="file" filePath="a.js">ok</boltAction></boltArtifact>`,
			paths: []string{"a.js"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := Parse(tt.text)
			require.NotEmpty(t, steps)
			var got []string
			for _, s := range steps[1:] {
				got = append(got, s.Path)
			}
			assert.Equal(t, tt.paths, got)
		})
	}
}

func TestParseUnclosedArtifactKeepsCompleteActions(t *testing.T) {
	steps := Parse(`<boltArtifact title="Partial"><boltAction type="file" filePath="a.js">a</boltAction><boltAction type="file" filePath="b.js">b</boltAction>`)
	require.Len(t, steps, 3)
	assert.Equal(t, "Partial", steps[0].Title)
	assert.Equal(t, "b.js", steps[2].Path)
}

func TestParseAttributes(t *testing.T) {
	steps := Parse(`<boltArtifact title="A &amp; B"><boltAction
		TYPE=file
		filePath="src/x &quot;y&quot;.js"
	>code</boltAction><boltAction type="file">orphan</boltAction></boltArtifact>`)
	require.Len(t, steps, 3)

	assert.Equal(t, "A & B", steps[0].Title)
	assert.Equal(t, KindCreateFile, steps[1].Kind)
	assert.Equal(t, `src/x "y".js`, steps[1].Path)

	// A file action without a path still parses, it just has nothing to address.
	assert.Equal(t, "Create file", steps[2].Title)
	assert.Empty(t, steps[2].Path)
	assert.Equal(t, "orphan", steps[2].Code)
}

func TestParseCodeMayContainMarkup(t *testing.T) {
	code := `export default () => <div className="x"><span>hi</span></div>;`
	steps := Parse(`<boltArtifact><boltAction type="file" filePath="src/C.tsx">` + code + `</boltAction></boltArtifact>`)
	require.Len(t, steps, 2)
	assert.Equal(t, code, steps[1].Code)
}

func TestParserContinuesIDsAcrossPlans(t *testing.T) {
	p := NewParser(0)
	first := p.Parse(`<boltArtifact><boltAction type="file" filePath="a">1</boltAction></boltArtifact>`)
	second := p.Parse(`<boltArtifact><boltAction type="file" filePath="a">2</boltAction></boltArtifact>`)
	none := p.Parse("no plan here")

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Empty(t, none)
	assert.Equal(t, []int{1, 2, 3, 4}, []int{first[0].ID, first[1].ID, second[0].ID, second[1].ID})
	assert.Equal(t, 5, p.NextID())
}

func TestPending(t *testing.T) {
	steps := []Step{
		{ID: 1, Status: StatusCompleted},
		{ID: 2, Status: StatusPending},
		{ID: 3, Status: StatusPending},
	}
	got := Pending(steps)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ID)
}
