// ABOUTME: Cross-process notification mailbox for readiness broadcasts
// ABOUTME: File-backed key/value store with fsnotify change notifications
package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Mailbox is a shared key/value surface multiple processes on one machine
// can use to coordinate. Values are small serialized records; Announce fires
// a change notification for watchers without leaving a key behind.
type Mailbox interface {
	Write(key, value string) error
	Read(key string) (string, bool, error)
	Remove(key string) error
	Announce(key string) error
	Watch(ctx context.Context) (<-chan string, error)
}

// FileMailbox keeps each key in its own file under a shared directory.
type FileMailbox struct {
	dir string
}

// NewFileMailbox creates the mailbox directory if needed.
func NewFileMailbox(dir string) (*FileMailbox, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mailbox directory: %w", err)
	}
	return &FileMailbox{dir: dir}, nil
}

func (m *FileMailbox) pathFor(key string) string {
	// Keys are flat identifiers; guard against path separators anyway.
	safe := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(m.dir, safe+".mbox")
}

// Write publishes a value under key.
func (m *FileMailbox) Write(key, value string) error {
	tmp := m.pathFor(key) + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write mailbox key %s: %w", key, err)
	}
	if err := os.Rename(tmp, m.pathFor(key)); err != nil {
		return fmt.Errorf("failed to publish mailbox key %s: %w", key, err)
	}
	return nil
}

// Read returns the value for key and whether it was present.
func (m *FileMailbox) Read(key string) (string, bool, error) {
	data, err := os.ReadFile(m.pathFor(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read mailbox key %s: %w", key, err)
	}
	return string(data), true, nil
}

// Remove deletes a key. Missing keys are not an error.
func (m *FileMailbox) Remove(key string) error {
	err := os.Remove(m.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove mailbox key %s: %w", key, err)
	}
	return nil
}

// Announce fires a change notification by writing and removing a trigger
// key. Watchers re-check whatever state they care about when it arrives.
func (m *FileMailbox) Announce(key string) error {
	trigger := key + ".trigger"
	if err := m.Write(trigger, "1"); err != nil {
		return err
	}
	return m.Remove(trigger)
}

// Watch emits the key name for every mailbox change until ctx is done.
func (m *FileMailbox) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch mailbox directory: %w", err)
	}

	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				name = strings.TrimSuffix(name, ".mbox")
				name = strings.TrimSuffix(name, ".trigger")
				select {
				case ch <- name:
				default: // watcher must never block on a slow consumer
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}

// MemoryMailbox is an in-process Mailbox for tests.
type MemoryMailbox struct {
	mu       sync.Mutex
	values   map[string]string
	watchers []chan string
}

// NewMemoryMailbox returns an empty in-process mailbox.
func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{values: make(map[string]string)}
}

func (m *MemoryMailbox) notify(key string) {
	for _, w := range m.watchers {
		select {
		case w <- key:
		default:
		}
	}
}

func (m *MemoryMailbox) Write(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.notify(key)
	return nil
}

func (m *MemoryMailbox) Read(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryMailbox) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	m.notify(key)
	return nil
}

func (m *MemoryMailbox) Announce(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify(key)
	return nil
}

func (m *MemoryMailbox) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for i, w := range m.watchers {
			if w == ch {
				m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
