package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/rahul/vibe/internal/governance"
	"github.com/rahul/vibe/internal/mount"
	"github.com/rahul/vibe/internal/observability"
)

var (
	ErrNoManifest     = errors.New("project has no package.json")
	ErrAlreadyStarted = errors.New("project already started")
	ErrNotReady       = errors.New("dev server is not ready")
	ErrDenied         = errors.New("command denied by policy")
)

const manifest = "package.json"

// State is the lifecycle of one orchestrated run.
type State string

const (
	StateIdle       State = "idle"
	StateInstalling State = "installing"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateFailed     State = "failed"
	StateExited     State = "exited"
)

// Status is a snapshot of a run.
type Status struct {
	State State    `json:"state"`
	URL   string   `json:"url,omitempty"`
	Port  int      `json:"port,omitempty"`
	Error string   `json:"error,omitempty"`
	Logs  []string `json:"logs"`
}

// Command is a program with its arguments.
type Command []string

func (c Command) split() (string, []string) {
	if len(c) == 0 {
		return "", nil
	}
	return c[0], c[1:]
}

// Orchestrator drives one project through install and dev server start.
// It starts at most once.
type Orchestrator struct {
	Env       Environment
	Policy    governance.PolicyEngine
	Logger    *observability.Logger
	SessionID string
	Install   Command
	Dev       Command
	Vars      map[string]string
	MaxLogs   int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	state   State
	logs    []string
	ready   Ready
	err     error
	dev     Process
	settled chan struct{}
	once    sync.Once
}

func NewOrchestrator(env Environment, policy governance.PolicyEngine, install, dev Command, vars map[string]string) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		Env:     env,
		Policy:  policy,
		Install: install,
		Dev:     dev,
		Vars:    vars,
		MaxLogs: 500,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
		settled: make(chan struct{}),
	}
}

// Start mounts t and, in the background, runs the install command to
// completion and then the dev command. It fails at once when t has no root
// package.json, when a command is denied, or when the run was already
// started.
func (o *Orchestrator) Start(ctx context.Context, t mount.Tree) error {
	if !t.Has(manifest) {
		return ErrNoManifest
	}

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.state = StateInstalling
	o.mu.Unlock()

	for _, c := range []Command{o.Install, o.Dev} {
		if err := o.check(ctx, c); err != nil {
			o.fail(err)
			return err
		}
	}
	if err := o.Env.Mount(ctx, t); err != nil {
		err = fmt.Errorf("mount failed: %w", err)
		o.fail(err)
		return err
	}

	go o.run()
	return nil
}

func (o *Orchestrator) check(ctx context.Context, c Command) error {
	name, args := c.split()
	if name == "" {
		return errors.New("empty command")
	}
	if o.Policy == nil {
		return nil
	}
	req := governance.Request{Command: name, Args: args, SessionID: o.SessionID}
	res, err := o.Policy.Evaluate(ctx, req)
	if err != nil {
		return err
	}
	o.Logger.LogPolicy(o.SessionID, req.Line(), string(res.Effect), res.Reason)
	if res.Effect == governance.EffectDeny {
		return fmt.Errorf("%w: %s", ErrDenied, res.Reason)
	}
	return nil
}

func (o *Orchestrator) run() {
	if err := o.exec(o.Install); err != nil {
		o.fail(fmt.Errorf("install failed: %w", err))
		return
	}

	// Only the dev server's URL counts; drop anything the install printed.
	drainReady(o.Env.OnServerReady())

	o.setState(StateStarting)
	name, args := o.Dev.split()
	p, err := o.Env.Spawn(o.ctx, name, args, o.Vars)
	if err != nil {
		o.fail(err)
		return
	}
	o.mu.Lock()
	o.dev = p
	o.mu.Unlock()

	go o.collect(p.Output())
	go func() {
		err := p.Wait()
		o.Logger.LogProcess(o.SessionID, o.Dev.line(), err)
		o.mu.Lock()
		if o.state != StateFailed {
			o.state = StateExited
		}
		if err != nil && o.err == nil && o.ctx.Err() == nil {
			o.err = err
		}
		o.mu.Unlock()
		o.settle()
	}()

	select {
	case <-o.ctx.Done():
	case <-o.settled:
	case r := <-o.Env.OnServerReady():
		o.mu.Lock()
		o.ready = r
		if o.state == StateStarting {
			o.state = StateRunning
		}
		o.mu.Unlock()
		o.Logger.LogServerReady(o.SessionID, r.Port, r.URL)
		log.Printf("[sandbox] session %s serving on %s", o.SessionID, r.URL)
		o.settle()
	}
}

func (o *Orchestrator) exec(c Command) error {
	name, args := c.split()
	p, err := o.Env.Spawn(o.ctx, name, args, o.Vars)
	if err != nil {
		return err
	}
	o.collect(p.Output())
	err = p.Wait()
	o.Logger.LogProcess(o.SessionID, c.line(), err)
	return err
}

func drainReady(ch <-chan Ready) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (c Command) line() string {
	name, args := c.split()
	return governance.Request{Command: name, Args: args}.Line()
}

func (o *Orchestrator) collect(lines <-chan string) {
	for line := range lines {
		o.mu.Lock()
		o.logs = append(o.logs, line)
		if o.MaxLogs > 0 && len(o.logs) > o.MaxLogs {
			o.logs = o.logs[len(o.logs)-o.MaxLogs:]
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	o.state = StateFailed
	o.err = err
	o.mu.Unlock()
	log.Printf("[sandbox] session %s: %v", o.SessionID, err)
	o.settle()
}

func (o *Orchestrator) settle() {
	o.once.Do(func() { close(o.settled) })
}

// Settled is closed once the run is serving, has failed or has exited.
func (o *Orchestrator) Settled() <-chan struct{} {
	return o.settled
}

// Remount writes t into the environment again, for edits made after start.
func (o *Orchestrator) Remount(ctx context.Context, t mount.Tree) error {
	return o.Env.Mount(ctx, t)
}

// URL returns the dev server URL once it is ready.
func (o *Orchestrator) URL() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning || o.ready.URL == "" {
		return "", ErrNotReady
	}
	return o.ready.URL, nil
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		State: o.state,
		URL:   o.ready.URL,
		Port:  o.ready.Port,
		Logs:  append([]string(nil), o.logs...),
	}
	if o.err != nil {
		st.Error = o.err.Error()
	}
	return st
}

// Stop kills the dev server.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.mu.Lock()
	p := o.dev
	o.mu.Unlock()
	if p != nil {
		p.Kill()
	}
}
