package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StateVersion     = "1.0"
	DefaultStateFile = "data/.pimsync-state.json"

	// maxHistory bounds the journal; older entries are dropped on append
	maxHistory = 500
)

// Run actions recorded in the journal
const (
	ActionPush    = "push"
	ActionPull    = "pull"
	ActionRefresh = "refresh"
	ActionImport  = "import"
	ActionDelete  = "delete"
)

// RunError is one failed item of a run
type RunError struct {
	Type         string `json:"type"`
	ProductIndex int    `json:"product_index"`
	Product      string `json:"product"`
	Message      string `json:"message"`
}

// HistoryEntry represents a single job in the journal
type HistoryEntry struct {
	RunID      string     `json:"run_id"`
	Timestamp  time.Time  `json:"timestamp"`
	FinishedAt time.Time  `json:"finished_at"`
	Action     string     `json:"action"`
	Count      int        `json:"count"` // products processed
	Updated    int        `json:"updated,omitempty"`
	Created    int        `json:"created,omitempty"`
	Failed     int        `json:"failed,omitempty"`
	Details    string     `json:"details"`
	Errors     []RunError `json:"errors,omitempty"`
}

// Duration is how long the run took
func (h HistoryEntry) Duration() time.Duration {
	if h.FinishedAt.IsZero() {
		return 0
	}
	return h.FinishedAt.Sub(h.Timestamp)
}

// PushCursor is where the next resumed push starts
type PushCursor struct {
	RunID     string    `json:"run_id"`
	NextStart int       `json:"next_start"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateFile is the on-disk journal
type StateFile struct {
	Version     string         `json:"version"`
	Cursor      *PushCursor    `json:"cursor,omitempty"`
	History     []HistoryEntry `json:"history"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Store manages journal persistence
type Store struct {
	mu       sync.RWMutex
	filePath string
	state    *StateFile
}

// NewStore creates a new journal store
func NewStore(filePath string) *Store {
	if filePath == "" {
		filePath = DefaultStateFile
	}

	return &Store{
		filePath: filePath,
		state:    emptyState(),
	}
}

func emptyState() *StateFile {
	return &StateFile{
		Version: StateVersion,
		History: []HistoryEntry{},
	}
}

// Path returns the journal file location
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the journal from disk. A missing file is an empty journal.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.state = emptyState()
			return nil
		}
		return err
	}

	var state StateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.History == nil {
		state.History = []HistoryEntry{}
	}
	s.state = &state
	return nil
}

// Save writes the journal to disk
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveInternal()
}

// saveInternal saves without acquiring lock (for internal use)
func (s *Store) saveInternal() error {
	s.state.LastUpdated = time.Now()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.filePath)
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// AddHistory appends an entry, assigning a run id and timestamp when missing
func (s *Store) AddHistory(entry HistoryEntry) HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.RunID == "" {
		entry.RunID = NewRunID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.state.History = append(s.state.History, entry)
	if over := len(s.state.History) - maxHistory; over > 0 {
		s.state.History = append([]HistoryEntry(nil), s.state.History[over:]...)
	}
	return entry
}

// GetHistory returns the history entries
func (s *Store) GetHistory() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]HistoryEntry, len(s.state.History))
	copy(history, s.state.History)
	return history
}

// GetRecentHistory returns the last N history entries
func (s *Store) GetRecentHistory(n int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n >= len(s.state.History) {
		history := make([]HistoryEntry, len(s.state.History))
		copy(history, s.state.History)
		return history
	}

	start := len(s.state.History) - n
	history := make([]HistoryEntry, n)
	copy(history, s.state.History[start:])
	return history
}

// FindRun returns the entry with the given run id
func (s *Store) FindRun(runID string) (HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.state.History {
		if h.RunID == runID {
			return h, true
		}
	}
	return HistoryEntry{}, false
}

// Cursor returns the saved push cursor, if any
func (s *Store) Cursor() (PushCursor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Cursor == nil {
		return PushCursor{}, false
	}
	return *s.state.Cursor, true
}

// SetCursor records where a resumed push continues
func (s *Store) SetCursor(runID string, nextStart, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Cursor = &PushCursor{
		RunID:     runID,
		NextStart: nextStart,
		Total:     total,
		UpdatedAt: time.Now(),
	}
}

// ClearCursor forgets the push cursor
func (s *Store) ClearCursor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Cursor = nil
}

// Count returns the number of journal entries
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.History)
}

// Clear removes the history and the cursor
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = emptyState()
}
