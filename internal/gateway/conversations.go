package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rahul/vibe/internal/agent"
	"github.com/rahul/vibe/internal/plan"
)

const maxReplyChars = 3500

const helpText = "Describe the website or app you want and I'll scaffold it.\n\n" +
	"Follow-up messages change the current project.\n" +
	"/files - show the file tree\n" +
	"/export - download the project as a zip\n" +
	"/new - start a new project"

// Conversations maps chats to builder sessions. The first message of a chat
// starts a session and later messages continue it.
type Conversations struct {
	Builder *agent.Builder

	mu       sync.Mutex
	sessions map[string]string // chat id -> session id
}

func NewConversations(b *agent.Builder) *Conversations {
	return &Conversations{Builder: b, sessions: make(map[string]string)}
}

func (c *Conversations) session(chatID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.sessions[chatID]
	return id, ok
}

// Forget drops the chat bound to sessionID and returns it.
func (c *Conversations) Forget(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for chatID, id := range c.sessions {
		if id == sessionID {
			delete(c.sessions, chatID)
			return chatID, true
		}
	}
	return "", false
}

// Handle answers one chat message.
func (c *Conversations) Handle(ctx context.Context, chatID, text string) Reply {
	text = strings.TrimSpace(text)
	switch strings.ToLower(strings.Fields(text + " x")[0]) {
	case "/start", "/help":
		return Reply{Text: helpText}
	case "/new":
		c.mu.Lock()
		delete(c.sessions, chatID)
		c.mu.Unlock()
		return Reply{Text: "Starting over. Describe your next project."}
	case "/files":
		return c.files(ctx, chatID)
	case "/export":
		return c.export(ctx, chatID)
	}
	if text == "" {
		return Reply{Text: helpText}
	}

	id, ok := c.session(chatID)
	if !ok {
		sess, err := c.Builder.Start(ctx, agent.StartRequest{Prompt: text})
		if err != nil {
			return errorReply(err)
		}
		c.mu.Lock()
		c.sessions[chatID] = sess.ID
		c.mu.Unlock()
		return Reply{Text: summarize(fmt.Sprintf("Created a %s project.", sess.Type), sess.Steps, sess)}
	}

	sess, added, err := c.Builder.Chat(ctx, id, text)
	if errors.Is(err, agent.ErrSessionNotFound) {
		return c.lost(chatID, err)
	}
	if err != nil {
		return errorReply(err)
	}
	return Reply{Text: summarize("Updated the project.", added, sess)}
}

func (c *Conversations) files(ctx context.Context, chatID string) Reply {
	id, ok := c.session(chatID)
	if !ok {
		return Reply{Text: "No project yet. " + helpText}
	}
	sess, err := c.Builder.Get(ctx, id)
	if err != nil {
		return c.lost(chatID, err)
	}
	return Reply{Text: truncate(sess.Tree.Render())}
}

func (c *Conversations) export(ctx context.Context, chatID string) Reply {
	id, ok := c.session(chatID)
	if !ok {
		return Reply{Text: "No project yet. " + helpText}
	}
	sess, err := c.Builder.Get(ctx, id)
	if err != nil {
		return c.lost(chatID, err)
	}
	var buf bytes.Buffer
	if err := sess.Tree.WriteZip(&buf); err != nil {
		return errorReply(err)
	}
	return Reply{
		Text:       fmt.Sprintf("%d files", len(sess.Tree.Files())),
		Attachment: &Attachment{Name: "project.zip", Data: buf.Bytes()},
	}
}

func (c *Conversations) lost(chatID string, err error) Reply {
	if errors.Is(err, agent.ErrSessionNotFound) {
		c.mu.Lock()
		delete(c.sessions, chatID)
		c.mu.Unlock()
		return Reply{Text: "That project has expired. Describe a new one to start again."}
	}
	return errorReply(err)
}

func errorReply(err error) Reply {
	if errors.Is(err, agent.ErrClassificationRejected) {
		return Reply{Text: "I can only build React or Node projects. Try describing it differently."}
	}
	log.Printf("[chat] %v", err)
	return Reply{Text: "I'm having trouble building that right now..."}
}

func summarize(head string, steps []plan.Step, sess *agent.Session) string {
	var b strings.Builder
	b.WriteString(head)
	b.WriteString("\n\n")
	changed := 0
	for _, st := range steps {
		if st.Kind == plan.KindInfo {
			continue
		}
		if st.AffectsFiles() {
			changed++
		}
		fmt.Fprintf(&b, "- %s\n", st.Title)
	}
	fmt.Fprintf(&b, "\n%d files changed, %d in total. Send /files to see them or /export for a zip.", changed, len(sess.Tree.Files()))
	return truncate(b.String())
}

func truncate(s string) string {
	return truncateAt(s, maxReplyChars)
}

// truncateAt cuts s to at most max bytes plus a marker, backing off to a
// rune boundary.
func truncateAt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "\n..."
}
