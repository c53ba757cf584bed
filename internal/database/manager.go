// ABOUTME: Database connection and lifecycle management
// ABOUTME: Uses modernc.org/sqlite for pure-Go SQLite support
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/junelab/palmchat/internal/mailbox"
	"github.com/junelab/palmchat/internal/schema"
	_ "modernc.org/sqlite"
)

// Error kinds surfaced by the manager.
var (
	ErrOpen          = errors.New("database open failed")
	ErrStoreNotFound = errors.New("store not found")
	ErrTimeout       = errors.New("timed out waiting for database")
)

// ReadyKey is the mailbox key carrying the readiness record.
const ReadyKey = "palmchat_db_ready"

// ReadyRecord is the serialized readiness broadcast shared across processes.
type ReadyRecord struct {
	IsReady   bool   `json:"isReady"`
	Version   int    `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Page      string `json:"page"`
}

// Info describes the open database.
type Info struct {
	Name       string   `json:"name"`
	Version    int      `json:"version"`
	Stores     []string `json:"stores"`
	ExportTime string   `json:"exportTime"`
}

// DefaultDataDir returns the default data directory following XDG spec.
func DefaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "palmchat")
	}
	return filepath.Join(xdg.DataHome, "palmchat")
}

// DefaultDBPath returns the default database file path.
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "palmchat.db")
}

// Manager owns the single connection to the embedded database. It opens
// lazily on first use; concurrent callers share one pending open.
type Manager struct {
	path string
	page string
	box  mailbox.Mailbox

	conn    *sql.DB
	openErr error
	reqs    chan managerReq
	quit    chan struct{}
	done    chan struct{}
	closing sync.Once
}

type managerReq struct {
	ctx   context.Context
	reply chan managerResp
}

type managerResp struct {
	conn *sql.DB
	err  error
}

// NewManager creates a manager for the database at path. The mailbox may be
// nil when cross-process coordination is not wanted (tests).
func NewManager(path, page string, box mailbox.Mailbox) *Manager {
	m := &Manager{
		path: path,
		page: page,
		box:  box,
		reqs: make(chan managerReq),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go m.loop()
	return m
}

// InMemory returns a manager over an in-memory database (for testing).
func InMemory() *Manager {
	return NewManager(":memory:", "test", nil)
}

// loop serializes open attempts so concurrent Init callers share one open.
func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case req := <-m.reqs:
			if m.conn == nil && m.openErr == nil {
				m.conn, m.openErr = m.open(req.ctx)
			}
			req.reply <- managerResp{conn: m.conn, err: m.openErr}
		case <-m.quit:
			return
		}
	}
}

// Init opens the database at the declared schema version, running upgrades
// as needed, and publishes readiness. Idempotent; after Close it fails with
// ErrOpen instead of handing out a dead connection.
func (m *Manager) Init(ctx context.Context) (*sql.DB, error) {
	reply := make(chan managerResp, 1)
	select {
	case m.reqs <- managerReq{ctx: ctx, reply: reply}:
	case <-m.done:
		return nil, fmt.Errorf("%w: manager is closed", ErrOpen)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-reply:
		return resp.conn, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) open(ctx context.Context) (*sql.DB, error) {
	dsn := m.path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create data directory: %v", ErrOpen, err)
		}
		dsn = m.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	// The in-memory database lives and dies with a single connection.
	if m.path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := m.upgrade(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	m.publishReady()
	return conn, nil
}

// upgrade creates missing stores, drops explicitly removed ones, and bumps
// the stored schema version. A failed upgrade aborts the open.
func (m *Manager) upgrade(ctx context.Context, conn *sql.DB) error {
	var have int
	if err := conn.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&have); err != nil {
		return fmt.Errorf("%w: failed to read schema version: %v", ErrOpen, err)
	}
	if have > schema.CurrentVersion {
		return fmt.Errorf("%w: database version %d is newer than supported %d",
			ErrOpen, have, schema.CurrentVersion)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range schema.Current() {
		if _, err := tx.ExecContext(ctx, schema.DDL(s)); err != nil {
			return fmt.Errorf("%w: failed to create store %s: %v", ErrOpen, s.Name, err)
		}
	}
	for _, s := range schema.All {
		if s.RemovedIn != 0 && s.RemovedIn <= schema.CurrentVersion {
			if _, err := tx.ExecContext(ctx, schema.DropDDL(s)); err != nil {
				return fmt.Errorf("%w: failed to drop store %s: %v", ErrOpen, s.Name, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`PRAGMA user_version = %d`, schema.CurrentVersion)); err != nil {
		return fmt.Errorf("%w: failed to set schema version: %v", ErrOpen, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: upgrade commit failed: %v", ErrOpen, err)
	}

	if have != 0 && have != schema.CurrentVersion {
		log.Printf("[Database] upgraded schema from v%d to v%d", have, schema.CurrentVersion)
	}
	return nil
}

// publishReady broadcasts readiness through the mailbox so other processes
// can skip their own cold open.
func (m *Manager) publishReady() {
	if m.box == nil {
		return
	}
	rec := ReadyRecord{
		IsReady:   true,
		Version:   schema.CurrentVersion,
		Timestamp: time.Now().UnixMilli(),
		Page:      m.page,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := m.box.Write(ReadyKey, string(data)); err != nil {
		log.Printf("[Database] readiness broadcast failed: %v", err)
		return
	}
	_ = m.box.Announce(ReadyKey)
}

// WaitForReady blocks until this process or another one has completed init,
// then returns the (possibly freshly opened) connection. Fails with
// ErrTimeout after the given duration.
func (m *Manager) WaitForReady(ctx context.Context, timeout time.Duration) (*sql.DB, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if m.readyElsewhere() {
		return m.Init(ctx)
	}

	var notify <-chan string
	if m.box != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := m.box.Watch(watchCtx)
		if err == nil {
			notify = ch
		}
	}

	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()

	inited := make(chan managerResp, 1)
	go func() {
		conn, err := m.Init(ctx)
		inited <- managerResp{conn: conn, err: err}
	}()

	for {
		select {
		case resp := <-inited:
			return resp.conn, resp.err
		case <-notify:
			if m.readyElsewhere() {
				return m.Init(ctx)
			}
		case <-poll.C:
			if m.readyElsewhere() {
				return m.Init(ctx)
			}
		case <-deadline.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) readyElsewhere() bool {
	if m.box == nil {
		return false
	}
	raw, ok, err := m.box.Read(ReadyKey)
	if err != nil || !ok {
		return false
	}
	var rec ReadyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false
	}
	return rec.IsReady && rec.Version == schema.CurrentVersion
}

// ListStores returns the declared store names.
func (m *Manager) ListStores(ctx context.Context) ([]string, error) {
	if _, err := m.Init(ctx); err != nil {
		return nil, err
	}
	return schema.Names(), nil
}

// DBInfo describes the open database for snapshot metadata.
func (m *Manager) DBInfo(ctx context.Context) (Info, error) {
	if _, err := m.Init(ctx); err != nil {
		return Info{}, err
	}
	return Info{
		Name:       schema.DatabaseName,
		Version:    schema.CurrentVersion,
		Stores:     schema.Names(),
		ExportTime: time.Now().Format(time.RFC3339),
	}, nil
}

// Close shuts the manager down and closes the connection if open. Safe to
// call more than once.
func (m *Manager) Close() error {
	m.closing.Do(func() { close(m.quit) })
	<-m.done
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}
