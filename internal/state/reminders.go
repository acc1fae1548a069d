package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

var (
	// ErrReminderExists is returned by Add for a duplicate id.
	ErrReminderExists = errors.New("reminder already exists")
	// ErrReminderNotFound is returned for an unknown id.
	ErrReminderNotFound = errors.New("reminder not found")
)

// ReminderStore is a JSON-file-backed store for reminders.
type ReminderStore struct {
	path string
	mu   sync.RWMutex
}

// NewReminderStore creates a file-backed ReminderStore at the given path.
func NewReminderStore(path string) *ReminderStore {
	return &ReminderStore{path: path}
}

// List returns all reminders in creation order. Returns an empty slice if
// the file doesn't exist.
func (s *ReminderStore) List(_ context.Context) ([]*types.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reminders, err := s.load()
	if err != nil {
		return nil, err
	}
	if reminders == nil {
		return []*types.Reminder{}, nil
	}
	return reminders, nil
}

// Add appends a reminder. Ids must be unique.
func (s *ReminderStore) Add(_ context.Context, reminder *types.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range reminders {
		if existing.ID == reminder.ID {
			return fmt.Errorf("%w: %s", ErrReminderExists, reminder.ID)
		}
	}
	return s.save(append(reminders, reminder))
}

// SetStatus changes the status of the reminder with the given id.
func (s *ReminderStore) SetStatus(_ context.Context, id string, status types.ReminderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown reminder status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.load()
	if err != nil {
		return err
	}
	for _, r := range reminders {
		if r.ID == id {
			r.Status = status
			return s.save(reminders)
		}
	}
	return fmt.Errorf("%w: %s", ErrReminderNotFound, id)
}

// load reads the JSON file. Returns nil if the file doesn't exist.
func (s *ReminderStore) load() ([]*types.Reminder, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reminders file: %w", err)
	}

	var reminders []*types.Reminder
	if err := json.Unmarshal(data, &reminders); err != nil {
		return nil, fmt.Errorf("unmarshal reminders: %w", err)
	}
	return reminders, nil
}

// save writes the list atomically (temp file + rename).
func (s *ReminderStore) save(reminders []*types.Reminder) error {
	data, err := json.MarshalIndent(reminders, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reminders: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create reminders dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp reminders file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp reminders file: %w", err)
	}
	return nil
}
