// Package ledger implements the flat-file record store: one JSON-encoded
// line per punch (or tombstone), held fully in memory and rewritten in full
// on every commit.
//
// Commits go through a temp-file-plus-rename so a crash mid-write never
// leaves a torn ledger behind. Cross-process coordination is best effort:
// before every read and write the store compares the file's modification
// time against its own last write and reloads when another process has
// touched the file, rather than silently overwriting it. Two processes
// committing concurrently can still race; the last writer wins.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store"
)

// Ledger is the flat-log implementation of store.Store.
type Ledger struct {
	mu        sync.Mutex
	path      string
	log       *zap.Logger
	records   map[string]*punch.Punch
	order     []string // ids in first-seen order, keeps file output stable
	lastWrite time.Time
	closed    bool
}

// compile-time contract check
var _ store.Store = (*Ledger)(nil)

// Open loads the ledger at path, creating parent directories as needed.
// A missing file is an empty ledger, not an error. If logger is nil,
// logging is disabled.
func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		path:    path,
		log:     logger,
		records: make(map[string]*punch.Punch),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// load reads the whole ledger file into memory. Lines that fail to decode
// are skipped with a warning so one corrupt record does not take the whole
// ledger down.
func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		l.records = make(map[string]*punch.Punch)
		l.order = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger %s: %w", l.path, err)
	}

	records := make(map[string]*punch.Punch)
	var order []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var p punch.Punch
		if err := json.Unmarshal(raw, &p); err != nil {
			l.log.Warn("skipping invalid ledger line",
				zap.String("path", l.path),
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		if _, seen := records[p.ID]; !seen {
			order = append(order, p.ID)
		}
		records[p.ID] = &p
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan ledger %s: %w", l.path, err)
	}

	l.records = records
	l.order = order

	if info, err := os.Stat(l.path); err == nil {
		l.lastWrite = info.ModTime()
	}
	return nil
}

// maybeReload re-reads the file when another process has written it since
// our last commit. Concurrent external modification is not an error.
func (l *Ledger) maybeReload() error {
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat ledger %s: %w", l.path, err)
	}
	if !info.ModTime().After(l.lastWrite) {
		return nil
	}

	l.log.Info("ledger changed on disk, reloading",
		zap.String("path", l.path),
		zap.Time("mtime", info.ModTime()))
	return l.load()
}

// commit rewrites the whole ledger atomically via temp file + rename.
func (l *Ledger) commit() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range l.order {
		if err := enc.Encode(l.records[id]); err != nil {
			return fmt.Errorf("failed to encode punch %s: %w", id, err)
		}
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write ledger temp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename ledger temp file: %w", err)
	}

	if info, err := os.Stat(l.path); err == nil {
		l.lastWrite = info.ModTime()
	} else {
		l.lastWrite = time.Now()
	}
	return nil
}

// Save implements store.Store.
func (l *Ledger) Save(p *punch.Punch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return store.ErrClosed
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid punch: %w", err)
	}
	if err := l.maybeReload(); err != nil {
		return err
	}

	cp := *p
	if _, seen := l.records[cp.ID]; !seen {
		l.order = append(l.order, cp.ID)
	}
	l.records[cp.ID] = &cp
	return l.commit()
}

// Current implements store.Store.
func (l *Ledger) Current(project string) (*punch.Punch, error) {
	return l.Find(func(p *punch.Punch) bool {
		return p.IsCurrent() && (project == "" || p.Project == project)
	})
}

// Latest implements store.Store.
func (l *Ledger) Latest(project string) (*punch.Punch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, store.ErrClosed
	}
	if err := l.maybeReload(); err != nil {
		return nil, err
	}

	var latest *punch.Punch
	for _, id := range l.order {
		p := l.records[id]
		if p.IsTombstone() || (project != "" && p.Project != project) {
			continue
		}
		if latest == nil || p.In.After(latest.In) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// Filter implements store.Store.
func (l *Ledger) Filter(pred store.Predicate) ([]*punch.Punch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, store.ErrClosed
	}
	if err := l.maybeReload(); err != nil {
		return nil, err
	}

	var out []*punch.Punch
	for _, id := range l.order {
		p := l.records[id]
		if p.IsTombstone() || !pred(p) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Find implements store.Store.
func (l *Ledger) Find(pred store.Predicate) (*punch.Punch, error) {
	matches, err := l.Filter(pred)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

// Delete implements store.Store. The record is tombstoned, not removed,
// and the tombstone's updated field records the deletion time.
func (l *Ledger) Delete(p *punch.Punch) error {
	cp := *p
	cp.MarkDeleted(time.Now())
	return l.Save(&cp)
}

// All implements store.Store.
func (l *Ledger) All() ([]*punch.Punch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, store.ErrClosed
	}
	if err := l.maybeReload(); err != nil {
		return nil, err
	}

	out := make([]*punch.Punch, 0, len(l.order))
	for _, id := range l.order {
		cp := *l.records[id]
		out = append(out, &cp)
	}
	return out, nil
}

// Purge physically removes a record, tombstone included. Remote peers that
// have not yet observed the deletion can no longer be told about it; this
// is for project cleanup, not normal deletion.
func (l *Ledger) Purge(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return store.ErrClosed
	}
	if err := l.maybeReload(); err != nil {
		return err
	}
	if _, ok := l.records[id]; !ok {
		return nil
	}

	delete(l.records, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return l.commit()
}

// CleanUp implements store.Store.
func (l *Ledger) CleanUp() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return nil
}

// Path returns the ledger file location, for watchers.
func (l *Ledger) Path() string {
	return l.path
}
