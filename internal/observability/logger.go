package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeClassify    EventType = "classify"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeFold        EventType = "fold"
	EventTypeLLM         EventType = "llm"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeProcess     EventType = "process"
	EventTypeServerReady EventType = "server_ready"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	StepID    int       `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		out:        os.Stdout,
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewLoggerTo writes events to out and llm events to llmLogPath. An empty
// llmLogPath disables the llm file.
func NewLoggerTo(out io.Writer, llmLogPath string) *Logger {
	return &Logger{
		out:        out,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024,
	}
}

// Discard returns a logger that drops every event.
func Discard() *Logger {
	return NewLoggerTo(io.Discard, "")
}

// Log emits a structured JSON event. Safe on a nil logger.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": %q}", "failed to marshal event: "+err.Error()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogClassify(sessionID, answer string, accepted bool) {
	l.Log(Event{
		Type:      EventTypeClassify,
		SessionID: sessionID,
		Data: map[string]any{
			"answer":   answer,
			"accepted": accepted,
		},
	})
}

func (l *Logger) LogPlan(sessionID string, steps, firstID int) {
	l.Log(Event{
		Type:      EventTypePlan,
		SessionID: sessionID,
		Data: map[string]any{
			"steps":    steps,
			"first_id": firstID,
		},
	})
}

func (l *Logger) LogStep(sessionID string, stepID int, kind, title string) {
	l.Log(Event{
		Type:      EventTypeStep,
		SessionID: sessionID,
		StepID:    stepID,
		Data: map[string]string{
			"kind":  kind,
			"title": title,
		},
	})
}

func (l *Logger) LogFold(sessionID string, completed, applied int, skipped []error) {
	var reasons []string
	for _, err := range skipped {
		reasons = append(reasons, err.Error())
	}
	l.Log(Event{
		Type:      EventTypeFold,
		SessionID: sessionID,
		Data: map[string]any{
			"completed": completed,
			"applied":   applied,
			"skipped":   reasons,
		},
	})
}

func (l *Logger) LogPolicy(sessionID, command, effect, reason string) {
	l.Log(Event{
		Type:      EventTypePolicyCheck,
		SessionID: sessionID,
		Data: map[string]string{
			"command": command,
			"effect":  effect,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogProcess(sessionID, command string, exitErr error) {
	data := map[string]string{"command": command}
	if exitErr != nil {
		data["error"] = exitErr.Error()
	}
	l.Log(Event{
		Type:      EventTypeProcess,
		SessionID: sessionID,
		Data:      data,
	})
}

func (l *Logger) LogServerReady(sessionID string, port int, url string) {
	l.Log(Event{
		Type:      EventTypeServerReady,
		SessionID: sessionID,
		Data: map[string]any{
			"port": port,
			"url":  url,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(sessionID, provider string, prompt any, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Data: map[string]any{
			"provider": provider,
			"prompt":   prompt,
			"response": response,
		},
	})
}
