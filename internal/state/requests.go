package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

// RequestStore is a JSONL-backed append-only log of leave requests.
// Records are stored per employee in requests/<employeeID>.jsonl.
type RequestStore struct {
	root  string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRequestStore creates a RequestStore rooted at the given directory.
func NewRequestStore(root string) *RequestStore {
	return &RequestStore{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}
}

// getLock returns the per-employee mutex, creating one if it doesn't exist.
func (s *RequestStore) getLock(employeeID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[employeeID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[employeeID] = lock
	return lock
}

func (s *RequestStore) path(employeeID string) (string, error) {
	if employeeID == "" || employeeID == "." || employeeID == ".." ||
		strings.ContainsAny(employeeID, `/\`) {
		return "", fmt.Errorf("invalid employee id %q", employeeID)
	}
	return filepath.Join(s.root, "requests", employeeID+".jsonl"), nil
}

// readAll decodes every record in path. Caller must hold the employee lock.
func readAll(path string) ([]*types.LeaveRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open request log: %w", err)
	}
	defer f.Close()

	var records []*types.LeaveRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r types.LeaveRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan request log: %w", err)
	}
	return records, nil
}

// Append adds a record to the employee's log with the next sequence number.
func (s *RequestStore) Append(_ context.Context, record *types.LeaveRecord) error {
	employeeID := record.Request.EmployeeID
	path, err := s.path(employeeID)
	if err != nil {
		return err
	}
	lock := s.getLock(employeeID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create request dir: %w", err)
	}

	existing, err := readAll(path)
	if err != nil {
		return err
	}
	record.Seq = int64(len(existing)) + 1

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open request log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Tail returns the last limit records for the employee, oldest first.
func (s *RequestStore) Tail(_ context.Context, employeeID string, limit int) ([]*types.LeaveRecord, error) {
	path, err := s.path(employeeID)
	if err != nil {
		return nil, err
	}
	lock := s.getLock(employeeID)
	lock.Lock()
	defer lock.Unlock()

	records, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
