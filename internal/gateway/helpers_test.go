package gateway

import (
	"context"
	"sync"

	"github.com/rahul/vibe/internal/agent"
	"github.com/rahul/vibe/internal/llm"
	"github.com/rahul/vibe/internal/mount"
	"github.com/rahul/vibe/internal/sandbox"
)

const todoPlan = `<boltArtifact id="todo" title="Todo App">
<boltAction type="file" filePath="src/App.tsx">export default function App() { return <ul/> }</boltAction>
<boltAction type="shell">npm install zustand</boltAction>
</boltArtifact>`

const editPlan = `<boltArtifact title="Dark mode">
<boltAction type="file" filePath="src/theme.ts">export const dark = true</boltAction>
</boltArtifact>`

// scriptedProvider answers the classification with answer and chat turns
// with replies in order, repeating the last one.
type scriptedProvider struct {
	mu      sync.Mutex
	answer  string
	replies []string
}

func (p *scriptedProvider) GenerateTemplate(context.Context, string) (string, error) {
	return p.answer, nil
}

func (p *scriptedProvider) Chat(context.Context, []llm.Message, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return r, nil
}

func newTestBuilder(p llm.Provider) *agent.Builder {
	resolve := func(context.Context, string, string) (llm.Provider, error) { return p, nil }
	return agent.NewBuilder(resolve, nil, nil, nil)
}

// idleEnv accepts every command; processes never print and exit when
// killed.
type idleEnv struct {
	mu     sync.Mutex
	mounts int
}

type idleProcess struct {
	lines chan string
	exit  chan struct{}
	once  sync.Once
}

func (p *idleProcess) Output() <-chan string { return p.lines }
func (p *idleProcess) Wait() error           { <-p.exit; return nil }
func (p *idleProcess) Kill() error           { p.once.Do(func() { close(p.exit) }); return nil }

func (e *idleEnv) Mount(context.Context, mount.Tree) error {
	e.mu.Lock()
	e.mounts++
	e.mu.Unlock()
	return nil
}

func (e *idleEnv) Spawn(_ context.Context, command string, args []string, _ map[string]string) (sandbox.Process, error) {
	p := &idleProcess{lines: make(chan string), exit: make(chan struct{})}
	close(p.lines)
	if len(args) > 0 && args[0] == "install" {
		p.Kill()
	}
	return p, nil
}

func (e *idleEnv) OnServerReady() <-chan sandbox.Ready { return nil }
