package policy

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Rule kinds for file rules.
const (
	KindPathPrefix = "path_prefix"
	KindProcess    = "process"
)

var ErrUnknownKind = errors.New("unknown rule kind")

// FileRule denies permission events whose path or process matches Pattern.
type FileRule struct {
	Kind    string
	Pattern string
	Reason  string
}

// Store keeps file rules and the device block list in sqlite. File rules
// are cached in memory for MatchFile.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	rules   []FileRule
	loaded  bool
	version int64
}

const schema = `
CREATE TABLE IF NOT EXISTS file_rules (
	kind TEXT NOT NULL,
	pattern TEXT NOT NULL,
	reason TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (kind, pattern)
);
CREATE TABLE IF NOT EXISTS device_rules (
	vid TEXT,
	pid TEXT,
	serial TEXT,
	reason TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (vid, pid, serial)
);
`

// Open 初始化数据库表结构. Use ":memory:" for a throwaway store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AddFileRule(r FileRule) error {
	if r.Kind != KindPathPrefix && r.Kind != KindProcess {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if r.Pattern == "" {
		return errors.New("empty rule pattern")
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO file_rules(kind, pattern, reason) VALUES (?, ?, ?)",
		r.Kind, r.Pattern, r.Reason,
	)
	if err != nil {
		return fmt.Errorf("add file rule: %w", err)
	}
	s.invalidate()
	return nil
}

// RemoveFileRule reports whether a rule was deleted.
func (s *Store) RemoveFileRule(kind, pattern string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM file_rules WHERE kind = ? AND pattern = ?", kind, pattern)
	if err != nil {
		return false, fmt.Errorf("remove file rule: %w", err)
	}
	s.invalidate()
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) FileRules() ([]FileRule, error) {
	rows, err := s.db.Query("SELECT kind, pattern, COALESCE(reason, '') FROM file_rules ORDER BY kind, pattern")
	if err != nil {
		return nil, fmt.Errorf("list file rules: %w", err)
	}
	defer rows.Close()

	var rules []FileRule
	for rows.Next() {
		var r FileRule
		if err := rows.Scan(&r.Kind, &r.Pattern, &r.Reason); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// cachedRules returns the file rules, reloading them only when this store
// changed them or another connection committed since the last load.
func (s *Store) cachedRules() ([]FileRule, error) {
	// data_version only moves for commits made by other connections.
	var version int64
	if err := s.db.QueryRow("PRAGMA data_version").Scan(&version); err != nil {
		return nil, fmt.Errorf("read data version: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && version == s.version {
		return s.rules, nil
	}
	rules, err := s.FileRules()
	if err != nil {
		return nil, err
	}
	s.rules, s.version, s.loaded = rules, version, true
	return rules, nil
}

// MatchFile reports whether a rule denies access to path by proc.
func (s *Store) MatchFile(path, proc string) (bool, string, error) {
	rules, err := s.cachedRules()
	if err != nil {
		return false, "", err
	}
	for _, r := range rules {
		switch r.Kind {
		case KindProcess:
			if r.Pattern == proc {
				return true, ruleReason(r), nil
			}
		case KindPathPrefix:
			if hasPathPrefix(path, r.Pattern) {
				return true, ruleReason(r), nil
			}
		}
	}
	return false, "", nil
}

func ruleReason(r FileRule) string {
	if r.Reason != "" {
		return r.Reason
	}
	return r.Kind + " " + r.Pattern
}

// hasPathPrefix matches whole path components: /data matches /data/x but not
// /database.
func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// AddDeviceRule 添加黑名单设备
func (s *Store) AddDeviceRule(vid, pid, serial, reason string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO device_rules(vid, pid, serial, reason) VALUES (?, ?, ?, ?)",
		vid, pid, serial, reason,
	)
	if err != nil {
		return fmt.Errorf("add device rule: %w", err)
	}
	return nil
}

func (s *Store) IsDeviceBlocked(vid, pid, serial string) (bool, string) {
	// 无序列号直接阻断 (硬编码的高危规则)
	if serial == "" || serial == "unknown" || serial == "000000000000" {
		return true, "Unknown or empty serial number"
	}

	var reason sql.NullString
	err := s.db.QueryRow(
		"SELECT reason FROM device_rules WHERE vid = ? AND pid = ? AND serial = ?",
		vid, pid, serial,
	).Scan(&reason)
	if err == nil {
		if reason.Valid && reason.String != "" {
			return true, reason.String
		}
		return true, "Device is in blacklist"
	}

	// 默认放行
	return false, ""
}
