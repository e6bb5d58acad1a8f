package sandbox

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/rahul/vibe/internal/governance"
	"github.com/rahul/vibe/internal/mount"
	"github.com/rahul/vibe/internal/observability"
	"github.com/rahul/vibe/pkg/config"
)

// Manager keeps one orchestrator per session, each in its own directory
// under Workspace.
type Manager struct {
	Workspace string
	Config    config.SandboxConfig
	Policy    governance.PolicyEngine
	Logger    *observability.Logger
	NewEnv    func(dir string) Environment

	mu   sync.Mutex
	runs map[string]*Orchestrator
}

func NewManager(workspace string, cfg config.SandboxConfig, policy governance.PolicyEngine, logger *observability.Logger) *Manager {
	return &Manager{
		Workspace: workspace,
		Config:    cfg,
		Policy:    policy,
		Logger:    logger,
		NewEnv:    func(dir string) Environment { return NewLocal(dir) },
		runs:      make(map[string]*Orchestrator),
	}
}

// Start starts the session's project, creating its orchestrator on first
// use.
func (m *Manager) Start(ctx context.Context, sessionID string, t mount.Tree) (*Orchestrator, error) {
	if !t.Has(manifest) {
		return nil, ErrNoManifest
	}

	m.mu.Lock()
	o, ok := m.runs[sessionID]
	if !ok {
		o = NewOrchestrator(m.NewEnv(filepath.Join(m.Workspace, sessionID)), m.Policy,
			m.Config.InstallCommand, m.Config.DevCommand, m.Config.Env)
		o.SessionID = sessionID
		o.Logger = m.Logger
		m.runs[sessionID] = o
	}
	m.mu.Unlock()

	if err := o.Start(ctx, t); err != nil {
		return o, err
	}
	observability.SetStatus(observability.RoleServing, sessionID)
	return o, nil
}

func (m *Manager) Get(sessionID string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.runs[sessionID]
	return o, ok
}

// Remount refreshes the files of a started session. Sessions that were
// never started are left alone.
func (m *Manager) Remount(ctx context.Context, sessionID string, t mount.Tree) error {
	o, ok := m.Get(sessionID)
	if !ok {
		return nil
	}
	return o.Remount(ctx, t)
}

// Stop kills the session's dev server and forgets it.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	o, ok := m.runs[sessionID]
	delete(m.runs, sessionID)
	m.mu.Unlock()
	if ok {
		o.Stop()
	}
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	runs := m.runs
	m.runs = make(map[string]*Orchestrator)
	m.mu.Unlock()
	for _, o := range runs {
		o.Stop()
	}
}
