package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/vibe/internal/filetree"
	"github.com/rahul/vibe/internal/llm"
	"github.com/rahul/vibe/internal/observability"
	"github.com/rahul/vibe/internal/plan"
)

var ErrEmptyPrompt = errors.New("prompt is empty")

// Store persists sessions across restarts.
type Store interface {
	SaveSession(ctx context.Context, s *Session) error
	LoadSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	IdleSessions(ctx context.Context, before time.Time) ([]string, error)
}

// ContextSource supplies reference material for a prompt, such as the text
// of pages the prompt links to.
type ContextSource interface {
	Context(ctx context.Context, prompt string) (string, error)
}

// StartRequest opens a session. Provider and APIKey are optional.
type StartRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
}

// CompleteRequest is a stateless chat turn over a caller-held history.
type CompleteRequest struct {
	Messages []llm.Message `json:"messages"`
	Provider string        `json:"provider,omitempty"`
	APIKey   string        `json:"apiKey,omitempty"`
}

// Builder turns prompts into sessions and folds every model reply into the
// session's file tree. Updates to one session are serialized; different
// sessions proceed independently.
type Builder struct {
	Resolve   llm.Resolver
	Prompts   *PromptManager
	Store     Store
	Reference ContextSource
	Logger    *observability.Logger

	mu       sync.Mutex
	sessions map[string]*slot
}

type slot struct {
	update sync.Mutex // held for a whole chat turn
	mu     sync.RWMutex
	s      *Session
}

func (sl *slot) get() *Session {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.s
}

func NewBuilder(resolve llm.Resolver, prompts *PromptManager, store Store, logger *observability.Logger) *Builder {
	if prompts == nil {
		prompts = NewPromptManager("")
	}
	return &Builder{
		Resolve:  resolve,
		Prompts:  prompts,
		Store:    store,
		Logger:   logger,
		sessions: make(map[string]*slot),
	}
}

func (b *Builder) provider(ctx context.Context, name, apiKey string) (llm.Provider, error) {
	if b.Resolve == nil {
		return nil, errors.New("no provider resolver configured")
	}
	return b.Resolve(ctx, name, apiKey)
}

func (b *Builder) classify(ctx context.Context, prov llm.Provider, sessionID, prompt string) (ProjectType, error) {
	answer, err := prov.GenerateTemplate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("classification failed: %w", err)
	}
	pt, err := ParseProjectType(answer)
	b.Logger.LogClassify(sessionID, answer, err == nil)
	return pt, err
}

// Template classifies prompt and returns the matching scaffold prompts.
func (b *Builder) Template(ctx context.Context, req StartRequest) (Template, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Template{}, ErrEmptyPrompt
	}
	prov, err := b.provider(ctx, req.Provider, req.APIKey)
	if err != nil {
		return Template{}, err
	}
	pt, err := b.classify(ctx, prov, "", strings.TrimSpace(req.Prompt))
	if err != nil {
		return Template{}, err
	}
	return b.Prompts.Template(pt)
}

// Complete sends a caller-held history to the model under the system prompt.
func (b *Builder) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	prov, err := b.provider(ctx, req.Provider, req.APIKey)
	if err != nil {
		return "", err
	}
	return b.chat(ctx, prov, "", req.Provider, req.Messages)
}

func (b *Builder) chat(ctx context.Context, prov llm.Provider, sessionID, name string, messages []llm.Message) (string, error) {
	system, err := b.Prompts.SystemPrompt()
	if err != nil {
		return "", err
	}
	resp, err := prov.Chat(ctx, messages, system)
	if err != nil {
		return "", err
	}
	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	b.Logger.LogLLM(sessionID, name, last, resp)
	return resp, nil
}

// Start classifies the prompt, seeds the tree with the boilerplate, asks the
// model for the project plan and folds it. Nothing is kept if any step
// fails.
func (b *Builder) Start(ctx context.Context, req StartRequest) (*Session, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	prov, err := b.provider(ctx, req.Provider, req.APIKey)
	if err != nil {
		return nil, err
	}

	observability.SetStatus(observability.RolePlanning, "classifying prompt")
	defer observability.SetStatus(observability.RoleIdle, "")

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Provider:  req.Provider,
		APIKey:    req.APIKey,
		Tree:      filetree.New(),
		NextID:    1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	pt, err := b.classify(ctx, prov, s.ID, prompt)
	if err != nil {
		return nil, err
	}
	s.Type = pt

	tmpl, err := b.Prompts.Template(pt)
	if err != nil {
		return nil, err
	}

	p := plan.NewParser(s.NextID)
	s.Steps = b.parse(s.ID, p, tmpl.UIPrompts[0])

	var msgs []llm.Message
	for _, pr := range tmpl.Prompts {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: pr})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: b.withReference(ctx, s.ID, prompt)})

	observability.SetStatus(observability.RolePlanning, "generating plan")
	resp, err := b.chat(ctx, prov, s.ID, req.Provider, msgs)
	if err != nil {
		return nil, err
	}
	s.Messages = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp})
	s.Steps = append(s.Steps, b.parse(s.ID, p, resp)...)
	s.NextID = p.NextID()

	b.fold(s)
	if err := b.save(ctx, s); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.sessions[s.ID] = &slot{s: s}
	observability.SetSessions(len(b.sessions))
	b.mu.Unlock()

	log.Printf("[builder] session %s started (%s, %d steps, %d files)", s.ID, s.Type, len(s.Steps), len(s.Tree.Files()))
	return s.Clone(), nil
}

// Chat sends text as the next user message of a session and folds the
// reply. It returns the updated session and the steps parsed from the
// reply. A failed turn leaves the session unchanged, and a session deleted
// while the model was answering stays deleted.
func (b *Builder) Chat(ctx context.Context, id, text string) (*Session, []plan.Step, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, ErrEmptyPrompt
	}
	sl, err := b.slot(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sl.update.Lock()
	defer sl.update.Unlock()

	cur := sl.get()
	if cur == nil {
		return nil, nil, ErrSessionNotFound
	}
	prov, err := b.provider(ctx, cur.Provider, cur.APIKey)
	if err != nil {
		return nil, nil, err
	}

	observability.SetStatus(observability.RolePlanning, "updating "+id)
	defer observability.SetStatus(observability.RoleIdle, "")

	next := cur.Clone()
	msgs := append(next.Messages, llm.Message{Role: llm.RoleUser, Content: text})
	resp, err := b.chat(ctx, prov, id, next.Provider, msgs)
	if err != nil {
		return nil, nil, err
	}

	first := next.NextID
	p := plan.NewParser(first)
	next.Messages = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp})
	next.Steps = append(next.Steps, b.parse(id, p, resp)...)
	next.NextID = p.NextID()
	next.UpdatedAt = time.Now()

	b.fold(next)
	if err := b.commit(ctx, sl, next); err != nil {
		return nil, nil, err
	}
	return next.Clone(), next.StepsFrom(first), nil
}

// commit saves s and installs it in sl unless the session was deleted in
// the meantime.
func (b *Builder) commit(ctx context.Context, sl *slot, s *Session) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.s == nil {
		return ErrSessionNotFound
	}
	if err := b.save(ctx, s); err != nil {
		return err
	}
	sl.s = s
	return nil
}

// Get returns a snapshot of a session.
func (b *Builder) Get(ctx context.Context, id string) (*Session, error) {
	sl, err := b.slot(ctx, id)
	if err != nil {
		return nil, err
	}
	s := sl.get()
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Delete drops a session from memory and the store. A chat turn still
// waiting on the model for it fails with ErrSessionNotFound.
func (b *Builder) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sl, ok := b.sessions[id]
	if ok {
		// Held until the store delete is done so that commit either lands
		// first or sees the cleared slot.
		sl.mu.Lock()
		sl.s = nil
		defer sl.mu.Unlock()
		delete(b.sessions, id)
		observability.SetSessions(len(b.sessions))
	}
	if b.Store != nil {
		return b.Store.DeleteSession(ctx, id)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Idle lists sessions not updated since before, in memory or stored.
func (b *Builder) Idle(ctx context.Context, before time.Time) ([]string, error) {
	seen := map[string]bool{}
	var ids []string

	b.mu.Lock()
	for id, sl := range b.sessions {
		if s := sl.get(); s != nil && s.UpdatedAt.Before(before) {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	if b.Store != nil {
		stored, err := b.Store.IdleSessions(ctx, before)
		if err != nil {
			return ids, err
		}
		for _, id := range stored {
			if seen[id] {
				continue
			}
			// Sessions touched in memory since they were stored stay.
			b.mu.Lock()
			sl, live := b.sessions[id]
			b.mu.Unlock()
			if live {
				if s := sl.get(); s != nil && !s.UpdatedAt.Before(before) {
					continue
				}
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// loaded returns the number of sessions held in memory.
func (b *Builder) loaded() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Builder) slot(ctx context.Context, id string) (*slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sl, ok := b.sessions[id]; ok {
		return sl, nil
	}
	if b.Store == nil {
		return nil, ErrSessionNotFound
	}
	s, err := b.Store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sl := &slot{s: s}
	b.sessions[id] = sl
	observability.SetSessions(len(b.sessions))
	return sl, nil
}

func (b *Builder) parse(sessionID string, p *plan.Parser, text string) []plan.Step {
	first := p.NextID()
	steps := p.Parse(text)
	b.Logger.LogPlan(sessionID, len(steps), first)
	for _, st := range steps {
		b.Logger.LogStep(sessionID, st.ID, string(st.Kind), st.Title)
	}
	return steps
}

func (b *Builder) fold(s *Session) {
	observability.SetStatus(observability.RoleBuilding, "folding "+s.ID)
	pending := len(plan.Pending(s.Steps))
	res := filetree.Apply(s.Tree, s.Steps)
	s.Tree, s.Steps = res.Tree, res.Steps
	for _, err := range res.Skipped {
		log.Printf("[builder] session %s: skipped %v", s.ID, err)
	}
	b.Logger.LogFold(s.ID, pending, res.Applied, res.Skipped)
}

func (b *Builder) save(ctx context.Context, s *Session) error {
	if b.Store == nil {
		return nil
	}
	if err := b.Store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (b *Builder) withReference(ctx context.Context, sessionID, prompt string) string {
	if b.Reference == nil {
		return prompt
	}
	extra, err := b.Reference.Context(ctx, prompt)
	if err != nil {
		log.Printf("[builder] session %s: reference lookup failed: %v", sessionID, err)
	}
	if extra == "" {
		return prompt
	}
	return prompt + "\n\n" + extra
}
