// Package sandbox installs and runs a generated project: it mounts the
// project files into an execution environment, runs the install command,
// starts the dev server and reports the URL it serves on.
package sandbox

import (
	"context"

	"github.com/rahul/vibe/internal/mount"
)

// Ready is emitted once per server start.
type Ready struct {
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// Process is a running command. Output yields its combined stdout and
// stderr line by line and is closed when the output ends; it must be
// drained for the process to make progress.
type Process interface {
	Output() <-chan string
	Wait() error
	Kill() error
}

// Environment is where a project runs.
type Environment interface {
	Mount(ctx context.Context, t mount.Tree) error
	Spawn(ctx context.Context, command string, args []string, env map[string]string) (Process, error)
	OnServerReady() <-chan Ready
}
