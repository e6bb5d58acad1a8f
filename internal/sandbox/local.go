package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rahul/vibe/internal/mount"
)

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	localPattern = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]):(\d+)[^\s]*`)
)

// StripANSI removes terminal escape sequences from a line of output.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// ParseReady finds the first local server URL in a line of output.
func ParseReady(line string) (Ready, bool) {
	m := localPattern.FindStringSubmatch(StripANSI(line))
	if m == nil {
		return Ready{}, false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil {
		return Ready{}, false
	}
	return Ready{Port: port, URL: m[0]}, true
}

// Local runs projects in a directory on this machine.
type Local struct {
	Dir   string
	ready chan Ready
}

func NewLocal(dir string) *Local {
	return &Local{Dir: dir, ready: make(chan Ready, 1)}
}

func (l *Local) Mount(ctx context.Context, t mount.Tree) error {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return err
	}
	return mount.WriteDir(l.Dir, t)
}

func (l *Local) OnServerReady() <-chan Ready {
	return l.ready
}

// Spawn starts command in Dir. Each process reports the first local URL it
// prints to OnServerReady.
func (l *Local) Spawn(ctx context.Context, command string, args []string, env map[string]string) (Process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = l.Dir
	cmd.WaitDelay = 5 * time.Second
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	p := &localProcess{
		cmd:   cmd,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		pw.Close()
		close(p.done)
	}()
	go p.scan(pr, l.emit)
	return p, nil
}

func (l *Local) emit(r Ready) {
	select {
	case l.ready <- r:
	default:
	}
}

type localProcess struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}
	err   error
	once  sync.Once
}

func (p *localProcess) scan(r io.Reader, emit func(Ready)) {
	defer close(p.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := StripANSI(sc.Text())
		if ready, ok := ParseReady(line); ok {
			p.once.Do(func() { emit(ready) })
		}
		p.lines <- line
	}
	// Keep the pipe drained if the scanner gave up on a long line.
	io.Copy(io.Discard, r)
}

func (p *localProcess) Output() <-chan string { return p.lines }

func (p *localProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
