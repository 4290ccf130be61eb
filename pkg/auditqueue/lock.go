// Package auditqueue implements the crash-safe, segmented offline
// queue the audit pipeline persists events to before forwarding them
// to a SIEM: filesystem-backed by default, adapted from the teacher's
// SQLite store idioms for locking and exclusive file creation, with a
// sqlitequeue sibling package providing a key-value-database backend.
package auditqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// lockRecord is the JSON body of an advisory lock file.
type lockRecord struct {
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"createdAt"`
}

// advisoryLock is a filesystem mutex implemented with an exclusive
// create, stolen from a dead or stale holder rather than blocking
// forever, grounded on the teacher's ensurePrivateSQLiteFile idiom of
// "create if absent, otherwise assume a concurrent owner".
type advisoryLock struct {
	path string
}

func newAdvisoryLock(path string) *advisoryLock {
	return &advisoryLock{path: path}
}

// ErrLocked is returned when a lock is held by a live, non-stale owner.
var ErrLocked = fmt.Errorf("auditqueue: lock held by another process")

// Acquire attempts to take the lock, stealing it if the current holder
// is stale (older than staleAfter) or its PID is no longer alive.
func (l *advisoryLock) Acquire(staleAfter time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err == nil {
		return writeLockRecord(f)
	}
	if !os.IsExist(err) {
		return fmt.Errorf("auditqueue: create lock file: %w", err)
	}

	existing, readErr := readLockRecord(l.path)
	if readErr != nil || isStale(existing, staleAfter) {
		if stealErr := l.steal(); stealErr != nil {
			return stealErr
		}
		return l.Acquire(staleAfter)
	}
	return ErrLocked
}

func (l *advisoryLock) steal() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auditqueue: remove stale lock: %w", err)
	}
	return nil
}

// Release removes the lock file. Callers must only call this while
// still holding the lock.
func (l *advisoryLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auditqueue: release lock: %w", err)
	}
	return nil
}

func writeLockRecord(f *os.File) error {
	defer f.Close()
	rec := lockRecord{PID: os.Getpid(), CreatedAt: time.Now().UTC()}
	enc := json.NewEncoder(f)
	return enc.Encode(rec)
}

func readLockRecord(path string) (lockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockRecord{}, err
	}
	var rec lockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return lockRecord{}, err
	}
	return rec, nil
}

func isStale(rec lockRecord, staleAfter time.Duration) bool {
	if time.Since(rec.CreatedAt) > staleAfter {
		return true
	}
	return !pidAlive(rec.PID)
}
