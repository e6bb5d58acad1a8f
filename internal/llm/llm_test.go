package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rahul/vibe/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel records the messages it is sent and replies with a fixed text.
type fakeModel struct {
	reply    string
	err      error
	got      []llms.MessageContent
	maxToken int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.maxToken = opts.MaxTokens
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func text(m llms.MessageContent) string {
	return m.Parts[0].(llms.TextContent).Text
}

func TestClientGenerateTemplate(t *testing.T) {
	m := &fakeModel{reply: "  react\n"}
	c := NewClient("fake", m, 0)

	got, err := c.GenerateTemplate(context.Background(), "a todo app")
	require.NoError(t, err)
	assert.Equal(t, "react", got)

	require.Len(t, m.got, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.got[0].Role)
	assert.Equal(t, ClassifySystemPrompt, text(m.got[0]))
	assert.Equal(t, "a todo app", text(m.got[1]))
	assert.Equal(t, 200, m.maxToken)
}

func TestClientChatMapsRoles(t *testing.T) {
	m := &fakeModel{reply: "<boltArtifact></boltArtifact>"}
	c := NewClient("fake", m, 0)

	got, err := c.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "build it"},
		{Role: RoleAssistant, Content: "done"},
		{Role: RoleUser, Content: "again"},
	}, "system")
	require.NoError(t, err)
	assert.Equal(t, "<boltArtifact></boltArtifact>", got)

	roles := []llms.ChatMessageType{}
	for _, mc := range m.got {
		roles = append(roles, mc.Role)
	}
	assert.Equal(t, []llms.ChatMessageType{
		llms.ChatMessageTypeSystem,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeHuman,
	}, roles)
	assert.Equal(t, 8000, m.maxToken)
}

func TestClientEmptyResponse(t *testing.T) {
	c := NewClient("fake", emptyModel{}, 0)
	_, err := c.Chat(context.Background(), nil, "")
	assert.Error(t, err)
}

type emptyModel struct{}

func (emptyModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func (e emptyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), "anthropic", config.ProviderConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(context.Background(), "mystery", config.ProviderConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("googleapi: Error 429: quota"), true},
		{errors.New("RESOURCE_EXHAUSTED"), true},
		{errors.New("anthropic: Rate limit exceeded"), true},
		{ErrRateLimited, true},
		{errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRateLimited(tt.err), "%v", tt.err)
	}
}

// scripted fails with the given errors before succeeding.
type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) next() (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return "ok", nil
}

func (s *scripted) GenerateTemplate(context.Context, string) (string, error) { return s.next() }
func (s *scripted) Chat(context.Context, []Message, string) (string, error)  { return s.next() }

func newTestRetrying(p Provider, delays *[]time.Duration) *Retrying {
	r := NewRetrying(p)
	r.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return r
}

func TestRetryingBacksOff(t *testing.T) {
	rl := errors.New("429 too many requests")
	p := &scripted{errs: []error{rl, rl}}
	var delays []time.Duration

	got, err := newTestRetrying(p, &delays).Chat(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
}

func TestRetryingGivesUp(t *testing.T) {
	rl := errors.New("429")
	p := &scripted{errs: []error{rl, rl, rl, rl, rl}}
	var delays []time.Duration

	_, err := newTestRetrying(p, &delays).GenerateTemplate(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 4, p.calls)
	assert.Len(t, delays, 3)
}

func TestRetryingFatalErrorsSurfaceImmediately(t *testing.T) {
	fatal := errors.New("permission denied")
	p := &scripted{errs: []error{fatal}}
	var delays []time.Duration

	_, err := newTestRetrying(p, &delays).Chat(context.Background(), nil, "")
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, delays)
}

func TestRetryingHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRetrying(&scripted{errs: []error{ErrRateLimited}})
	_, err := r.Chat(ctx, nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}
