// Package lock guards the output folder while a merge writes into it.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Ning0612/ipmtool/internal/domain"
)

const (
	// LockFileName is created inside the output folder
	LockFileName = ".ipmtool.lock"
	// DefaultStaleTimeout is used for locks taken on another host
	DefaultStaleTimeout = 30 * time.Minute
)

// LockInfo is the content of the lock file
type LockInfo struct {
	PID       int       `yaml:"pid"`
	Hostname  string    `yaml:"hostname"`
	StartTime time.Time `yaml:"start_time"`
	Operation string    `yaml:"operation,omitempty"`
	RunID     string    `yaml:"run_id,omitempty"`
	// Token identifies the FileLock value that wrote the file
	Token string `yaml:"token"`
}

// FileLock is an O_EXCL lock file with owner metadata. A FileLock value is
// not safe for concurrent use; two values on the same folder exclude each other.
type FileLock struct {
	path         string
	staleTimeout time.Duration
	token        string // 非空代表目前持有
}

// NewFileLock prepares a lock in dir, creating the directory if needed
func NewFileLock(dir string) (*FileLock, error) {
	if dir == "" {
		return nil, errors.New("lock directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLock{path: filepath.Join(dir, LockFileName), staleTimeout: DefaultStaleTimeout}, nil
}

// Path returns the lock file path
func (l *FileLock) Path() string { return l.path }

// SetStaleTimeout sets after how long a lock from another host may be taken over
func (l *FileLock) SetStaleTimeout(d time.Duration) { l.staleTimeout = d }

// Acquire takes the lock. When this value already holds it, only the
// recorded operation and run id change.
func (l *FileLock) Acquire(operation, runID string) error {
	current, err := l.read()
	switch {
	case err == nil && l.owns(current):
		current.Operation, current.RunID = operation, runID
		return l.rewrite(current)
	case err == nil && !l.isStale(current):
		return &LockError{Holder: current, Reason: "lock is held by another process"}
	case err == nil:
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Operation: operation,
		RunID:     runID,
		Token:     uuid.NewString(),
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		// 另一個行程在移除與建立之間搶先
		holder, _ := l.read()
		return &LockError{Holder: holder, Reason: "lock acquired by another process during acquisition"}
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.token = info.Token
	return nil
}

// Release removes the lock file if this value still owns it
func (l *FileLock) Release() error {
	if l.token == "" {
		return nil
	}
	defer func() { l.token = "" }()

	current, err := l.read()
	if err != nil {
		// already removed
		return nil
	}
	if !l.owns(current) {
		return errors.New("lock was stolen by another process")
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked reports whether a live lock exists
func (l *FileLock) IsLocked() bool {
	_, err := l.Holder()
	return err == nil
}

// Holder returns the owner of a live lock
func (l *FileLock) Holder() (*LockInfo, error) {
	info, err := l.read()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, errors.New("lock is stale")
	}
	return info, nil
}

// ForceRelease removes the lock file regardless of owner
func (l *FileLock) ForceRelease() error {
	l.token = ""
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	return nil
}

func (l *FileLock) read() (*LockInfo, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	info := &LockInfo{}
	if err := yaml.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return info, nil
}

func (l *FileLock) rewrite(info *LockInfo) error {
	data, err := yaml.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0644)
}

func (l *FileLock) owns(info *LockInfo) bool {
	return l.token != "" && info.Token == l.token
}

// isStale: on this host a lock is stale once its process is gone; a lock
// from another host goes stale after staleTimeout.
func (l *FileLock) isStale(info *LockInfo) bool {
	if hostname, _ := os.Hostname(); info.Hostname == hostname {
		return !holderAlive(info.PID)
	}
	return time.Since(info.StartTime) > l.staleTimeout
}

// LockError is returned when another process holds the lock
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder == nil {
		return "cannot acquire lock: " + e.Reason
	}
	return fmt.Sprintf("cannot acquire lock: %s (held by PID %d on %s since %s, operation: %s)",
		e.Reason, e.Holder.PID, e.Holder.Hostname, e.Holder.StartTime.Format(time.RFC3339), e.Holder.Operation)
}

// Is matches domain.ErrMergeInProgress
func (e *LockError) Is(target error) bool {
	return target == domain.ErrMergeInProgress
}

// IsLockError reports whether err wraps a *LockError
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
