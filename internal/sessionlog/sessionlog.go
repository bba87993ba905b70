// Package sessionlog appends one JSON record per spoken turn to a session file.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/olivia/internal/llm"
	"github.com/rbright/olivia/internal/logging"
)

// Record is one line of the session log. Zero Timestamp is filled in by Append.
type Record struct {
	Timestamp      float64    `json:"ts"`
	SessionID      string     `json:"session_id"`
	User           string     `json:"user"`
	Bot            string     `json:"bot"`
	STTMS          int64      `json:"stt_ms"`
	LLMMS          int64      `json:"llm_ms"`
	TTSMS          int64      `json:"tts_ms"`
	Note           string     `json:"note,omitempty"`
	DialogueAct    string     `json:"dialogue_act,omitempty"`
	Nonfluency     string     `json:"nonfluency_label,omitempty"`
	PauseTier      string     `json:"pause_tier,omitempty"`
	QuestionBudget int        `json:"question_budget"`
	RepairAction   string     `json:"repair_action,omitempty"`
	RepairReason   string     `json:"repair_reason"`
	LLMUsage       *llm.Usage `json:"llm_usage,omitempty"`
	GuardUsage     *llm.Usage `json:"guard_usage,omitempty"`
}

// UsagePtr returns nil for an empty usage so it is omitted from the record.
func UsagePtr(u llm.Usage) *llm.Usage {
	if u.IsZero() {
		return nil
	}
	return &u
}

// NewSessionID returns a random v4 identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// DefaultPath is session.jsonl under the state directory.
func DefaultPath() (string, error) {
	dir, err := logging.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.jsonl"), nil
}

// Writer serializes appends to one file. Every record is synced before Append returns.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
	now  func() time.Time
}

// Open creates or appends to path; an empty path resolves to DefaultPath.
func Open(path string) (*Writer, error) {
	if strings.TrimSpace(path) == "" {
		resolved, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &Writer{f: f, path: path, now: time.Now}, nil
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Append(rec Record) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = float64(w.now().UnixMicro()) / 1e6
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return os.ErrClosed
	}
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync session log: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
