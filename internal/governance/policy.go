package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a command the sandbox is about to run.
type Request struct {
	Command   string
	Args      []string
	SessionID string
}

// Line returns the command line as one string.
func (r Request) Line() string {
	return strings.TrimSpace(r.Command + " " + strings.Join(r.Args, " "))
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates sandbox commands against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies listed programs and command lines matching
// any of its patterns. Everything else is allowed.
type DefaultPolicyEngine struct {
	DeniedCommands map[string]bool
	DeniedRegex    []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedCommands: make(map[string]bool),
		DeniedRegex:    make([]*regexp.Regexp, 0),
	}
}

// DefaultDenyPatterns are applied by NewSandboxPolicy.
var DefaultDenyPatterns = []string{
	`rm\s+-[a-zA-Z]*r[a-zA-Z]*f|rm\s+-[a-zA-Z]*f[a-zA-Z]*r`,
	`\bmkfs(\.\w+)?\b`,
	`\bshutdown\b`,
	`\breboot\b`,
}

// NewSandboxPolicy returns the policy used for generated project commands.
func NewSandboxPolicy() *DefaultPolicyEngine {
	e := NewDefaultPolicyEngine()
	for _, p := range DefaultDenyPatterns {
		e.DeniedRegex = append(e.DeniedRegex, regexp.MustCompile(p))
	}
	e.DenyCommand("sudo")
	return e
}

func (e *DefaultPolicyEngine) DenyCommand(name string) {
	e.DeniedCommands[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedCommands[req.Command] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Command '%s' is restricted by system policy", req.Command),
		}, nil
	}

	line := req.Line()
	for _, re := range e.DeniedRegex {
		if re.MatchString(line) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Command matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
