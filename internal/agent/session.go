package agent

import (
	"errors"
	"time"

	"github.com/rahul/vibe/internal/filetree"
	"github.com/rahul/vibe/internal/llm"
	"github.com/rahul/vibe/internal/plan"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one project being built: the conversation with the model, the
// steps parsed from it so far and the file tree they fold into.
type Session struct {
	ID        string         `json:"id"`
	Prompt    string         `json:"prompt"`
	Provider  string         `json:"provider"`
	APIKey    string         `json:"-"`
	Type      ProjectType    `json:"type"`
	Messages  []llm.Message  `json:"messages"`
	Steps     []plan.Step    `json:"steps"`
	Tree      *filetree.Tree `json:"tree"`
	NextID    int            `json:"next_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy that shares nothing with s.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]llm.Message(nil), s.Messages...)
	c.Steps = append([]plan.Step(nil), s.Steps...)
	if s.Tree != nil {
		c.Tree = s.Tree.Clone()
	} else {
		c.Tree = filetree.New()
	}
	return &c
}

// StepsFrom returns the steps with id >= from.
func (s *Session) StepsFrom(from int) []plan.Step {
	for i, st := range s.Steps {
		if st.ID >= from {
			return append([]plan.Step(nil), s.Steps[i:]...)
		}
	}
	return nil
}
