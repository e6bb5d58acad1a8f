package governance

import (
	"context"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	req1 := Request{Command: "npm", Args: []string{"install"}}
	res1, err := engine.Evaluate(ctx, req1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	engine.DenyCommand("curl")
	req2 := Request{Command: "curl", Args: []string{"example.com"}}
	res2, err := engine.Evaluate(ctx, req2)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}

	if err := engine.DenyArguments("("); err == nil {
		t.Error("Expected an invalid pattern to be rejected")
	}
}

func TestSandboxPolicy(t *testing.T) {
	engine := NewSandboxPolicy()
	ctx := context.Background()

	tests := []struct {
		req  Request
		want Effect
	}{
		{Request{Command: "npm", Args: []string{"install"}}, EffectAllow},
		{Request{Command: "npm", Args: []string{"run", "dev"}}, EffectAllow},
		{Request{Command: "sh", Args: []string{"-c", "rm -rf /"}}, EffectDeny},
		{Request{Command: "rm", Args: []string{"-fr", "node_modules"}}, EffectDeny},
		{Request{Command: "mkfs.ext4", Args: []string{"/dev/sda"}}, EffectDeny},
		{Request{Command: "shutdown", Args: []string{"-h", "now"}}, EffectDeny},
		{Request{Command: "sudo", Args: []string{"npm", "install"}}, EffectDeny},
		{Request{Command: "rm", Args: []string{"dist/old.js"}}, EffectAllow},
	}
	for _, tt := range tests {
		res, err := engine.Evaluate(ctx, tt.req)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Effect != tt.want {
			t.Errorf("%q: expected %s, got %s (%s)", tt.req.Line(), tt.want, res.Effect, res.Reason)
		}
	}
}
