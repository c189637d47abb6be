// Package store provides durable, queryable storage for file entries across
// all indexed workspaces, backed by a single-file SQLite database with an
// FTS5 acceleration index over names and paths.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/standardbeagle/wfi/internal/debug"
	"github.com/standardbeagle/wfi/internal/errors"
	"github.com/standardbeagle/wfi/internal/types"
)

// SchemaVersion identifies the on-disk schema. A stored version that does
// not match is treated as "index absent": tables are recreated and a full
// rebuild is forced, never a migration.
const SchemaVersion = "2.0.0"

// DefaultFileName is the database file name under the data directory.
const DefaultFileName = "file_index.db"

// Store owns the SQLite database. All writers serialize behind a single
// exclusive lock; readers may proceed concurrently with each other. This is
// the only invariant protecting the acceleration index from partial updates.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open opens (or creates) the index database at path, creating parent
// directories as needed. The connection is long-lived; callers hold one
// Store per process.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewIndexingError("open store", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewIndexingError("open store", err)
	}
	// Pragmas are per-connection; pin the pool to one so they hold.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		// INSERT OR REPLACE must fire the delete trigger so the FTS
		// mirror drops the replaced row.
		"PRAGMA recursive_triggers=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.NewIndexingError("configure store", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Version check before touching anything else. A mismatch drops the
	// whole schema; the empty workspaces table then fails ValidFor and the
	// caller rebuilds from scratch.
	var stored string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = 'version'`).Scan(&stored)
	switch {
	case err == nil && stored != SchemaVersion:
		debug.LogStore("schema version %s != %s, resetting index\n", stored, SchemaVersion)
		if err := s.dropSchema(); err != nil {
			return err
		}
	case err != nil && err != sql.ErrNoRows:
		// metadata table missing on first open; createSchema handles it.
	}

	return s.createSchema()
}

func (s *Store) dropSchema() error {
	stmts := []string{
		`DROP TRIGGER IF EXISTS file_entries_ai`,
		`DROP TRIGGER IF EXISTS file_entries_ad`,
		`DROP TRIGGER IF EXISTS file_entries_au`,
		`DROP TABLE IF EXISTS file_search`,
		`DROP TABLE IF EXISTS file_entries`,
		`DROP TABLE IF EXISTS workspaces`,
		`DROP TABLE IF EXISTS metadata`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.NewIndexingError("reset schema", err)
		}
	}
	return nil
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			path TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			files_count INTEGER DEFAULT 0,
			folders_count INTEGER DEFAULT 0,
			last_indexed REAL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS file_entries (
			path_hash TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT UNIQUE NOT NULL,
			relative_path TEXT NOT NULL,
			workspace TEXT NOT NULL,
			kind TEXT NOT NULL,
			size INTEGER DEFAULT 0,
			modified_time REAL DEFAULT 0,
			extension TEXT DEFAULT '',
			priority INTEGER DEFAULT 0
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS file_search USING fts5(
			name,
			path,
			relative_path,
			extension,
			workspace,
			content=file_entries,
			content_rowid=rowid
		)`,
		// Keep the acceleration index mirrored on every write. INSERT OR
		// REPLACE fires the delete trigger then the insert trigger.
		`CREATE TRIGGER IF NOT EXISTS file_entries_ai AFTER INSERT ON file_entries BEGIN
			INSERT INTO file_search(rowid, name, path, relative_path, extension, workspace)
			VALUES (new.rowid, new.name, new.path, new.relative_path, new.extension, new.workspace);
		END`,
		`CREATE TRIGGER IF NOT EXISTS file_entries_ad AFTER DELETE ON file_entries BEGIN
			INSERT INTO file_search(file_search, rowid, name, path, relative_path, extension, workspace)
			VALUES ('delete', old.rowid, old.name, old.path, old.relative_path, old.extension, old.workspace);
		END`,
		`CREATE TRIGGER IF NOT EXISTS file_entries_au AFTER UPDATE ON file_entries BEGIN
			INSERT INTO file_search(file_search, rowid, name, path, relative_path, extension, workspace)
			VALUES ('delete', old.rowid, old.name, old.path, old.relative_path, old.extension, old.workspace);
			INSERT INTO file_search(rowid, name, path, relative_path, extension, workspace)
			VALUES (new.rowid, new.name, new.path, new.relative_path, new.extension, new.workspace);
		END`,
		`CREATE INDEX IF NOT EXISTS idx_extension ON file_entries(extension)`,
		`CREATE INDEX IF NOT EXISTS idx_workspace ON file_entries(workspace)`,
		`CREATE INDEX IF NOT EXISTS idx_kind ON file_entries(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_priority ON file_entries(priority DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.NewIndexingError("create schema", err)
		}
	}

	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('version', ?)`,
		SchemaVersion,
	); err != nil {
		return errors.NewIndexingError("write schema version", err)
	}
	return nil
}

const entryColumns = `path_hash, name, path, relative_path, workspace, kind, size, modified_time, extension, priority`

// UpsertBatch writes a batch of entries in one transaction. An entry sharing
// a path_hash with an existing row replaces it wholesale. The batch is
// all-or-nothing.
func (s *Store) UpsertBatch(entries []types.FileEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.NewIndexingError("upsert batch", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO file_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.NewIndexingError("upsert batch", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(
			e.PathHash, e.Name, e.Path, e.RelativePath, e.Workspace,
			e.Kind.String(), e.Size, e.ModifiedTime, e.Extension, e.Priority,
		); err != nil {
			tx.Rollback()
			return errors.NewIndexingError("upsert batch", err).WithFile(e.Path)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewIndexingError("upsert batch", err)
	}
	return nil
}

// DeleteEntriesByWorkspace removes every entry belonging to the named
// workspace. Used by the pipeline before a workspace rescan.
func (s *Store) DeleteEntriesByWorkspace(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM file_entries WHERE workspace = ?`, name); err != nil {
		return errors.NewIndexingError("delete workspace entries", err).WithWorkspace(name)
	}
	return nil
}

// DeleteWorkspace removes a workspace record and every entry belonging to
// it, then refreshes the acceleration index.
func (s *Store) DeleteWorkspace(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	err := s.db.QueryRow(`SELECT name FROM workspaces WHERE path = ?`, path).Scan(&name)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.NewIndexingError("delete workspace", err)
	}

	if _, err := s.db.Exec(`DELETE FROM file_entries WHERE workspace = ?`, name); err != nil {
		return errors.NewIndexingError("delete workspace", err).WithWorkspace(name)
	}
	if _, err := s.db.Exec(`DELETE FROM workspaces WHERE path = ?`, path); err != nil {
		return errors.NewIndexingError("delete workspace", err).WithWorkspace(name)
	}
	return s.rebuildSearchIndexLocked()
}

// Clear empties all tables. Used only for a full rebuild.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range []string{
		`DELETE FROM file_entries`,
		`DELETE FROM workspaces`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.NewIndexingError("clear index", err)
		}
	}
	return s.rebuildSearchIndexLocked()
}

// RebuildSearchIndex rebuilds the FTS5 acceleration index from the entry
// table. Invoked after bulk loads; cheap relative to a full scan.
func (s *Store) RebuildSearchIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildSearchIndexLocked()
}

func (s *Store) rebuildSearchIndexLocked() error {
	if _, err := s.db.Exec(`INSERT INTO file_search(file_search) VALUES('rebuild')`); err != nil {
		return errors.NewIndexingError("rebuild search index", err)
	}
	return nil
}

// Optimize compacts the database and refreshes planner statistics. Run once
// after a completed build.
func (s *Store) Optimize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range []string{
		`VACUUM`,
		`ANALYZE`,
		`PRAGMA wal_checkpoint(TRUNCATE)`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.NewIndexingError("optimize", err)
		}
	}
	return nil
}

// PutWorkspace inserts or replaces a workspace record.
func (s *Store) PutWorkspace(rec types.WorkspaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO workspaces
		(path, name, files_count, folders_count, last_indexed)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Path, rec.Name, rec.FileCount, rec.FolderCount, rec.LastIndexed)
	if err != nil {
		return errors.NewIndexingError("put workspace", err).WithWorkspace(rec.Name)
	}
	return nil
}

// Workspaces returns all workspace records.
func (s *Store) Workspaces() ([]types.WorkspaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT path, name, files_count, folders_count, last_indexed
		FROM workspaces ORDER BY path`)
	if err != nil {
		return nil, errors.NewIndexingError("list workspaces", err)
	}
	defer rows.Close()

	var records []types.WorkspaceRecord
	for rows.Next() {
		var rec types.WorkspaceRecord
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.FileCount, &rec.FolderCount, &rec.LastIndexed); err != nil {
			return nil, errors.NewIndexingError("list workspaces", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// WorkspaceByPath returns the record for one workspace root, or ok=false
// when the root was never indexed.
func (s *Store) WorkspaceByPath(path string) (types.WorkspaceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec types.WorkspaceRecord
	err := s.db.QueryRow(`SELECT path, name, files_count, folders_count, last_indexed
		FROM workspaces WHERE path = ?`, path).
		Scan(&rec.Path, &rec.Name, &rec.FileCount, &rec.FolderCount, &rec.LastIndexed)
	if err == sql.ErrNoRows {
		return types.WorkspaceRecord{}, false, nil
	}
	if err != nil {
		return types.WorkspaceRecord{}, false, errors.NewIndexingError("get workspace", err)
	}
	return rec, true, nil
}

// ValidFor reports whether the indexed workspace path set exactly equals the
// requested set (order-independent). This is the sole authority for "does
// the whole index need a full rebuild".
func (s *Store) ValidFor(paths []string) (bool, error) {
	records, err := s.Workspaces()
	if err != nil {
		return false, err
	}
	if len(records) != len(paths) {
		return false, nil
	}

	indexed := make(map[string]bool, len(records))
	for _, rec := range records {
		indexed[rec.Path] = true
	}
	for _, p := range paths {
		if !indexed[p] {
			return false, nil
		}
	}
	return true, nil
}

// Stats summarizes the index contents.
func (s *Store) Stats() (types.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats types.IndexStats
	err := s.db.QueryRow(`SELECT
			COUNT(*),
			COUNT(CASE WHEN kind = 'file' THEN 1 END),
			COUNT(CASE WHEN kind = 'folder' THEN 1 END),
			COUNT(DISTINCT workspace),
			COUNT(DISTINCT extension)
		FROM file_entries`).
		Scan(&stats.TotalEntries, &stats.Files, &stats.Folders, &stats.Workspaces, &stats.Extensions)
	if err != nil {
		return types.IndexStats{}, errors.NewIndexingError("stats", err)
	}

	var last sql.NullFloat64
	if err := s.db.QueryRow(`SELECT MAX(last_indexed) FROM workspaces`).Scan(&last); err != nil {
		return types.IndexStats{}, errors.NewIndexingError("stats", err)
	}
	if last.Valid {
		stats.LastUpdated = last.Float64
	}
	return stats, nil
}

// AllEntries returns the full entry set, optionally filtered by kind and/or
// extensions, ordered folders first, then by priority descending, then name.
func (s *Store) AllEntries(kind *types.Kind, extensions []string) ([]types.FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM file_entries`
	var conds []string
	var args []interface{}
	if kind != nil {
		conds = append(conds, `kind = ?`)
		args = append(args, kind.String())
	}
	if len(extensions) > 0 {
		placeholders := strings.Repeat("?, ", len(extensions)-1) + "?"
		conds = append(conds, `extension IN (`+placeholders+`)`)
		for _, ext := range extensions {
			args = append(args, strings.ToLower(ext))
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY CASE WHEN kind = 'folder' THEN 0 ELSE 1 END, priority DESC, name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewIndexingError("all entries", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]types.FileEntry, error) {
	var entries []types.FileEntry
	for rows.Next() {
		var e types.FileEntry
		var kind string
		if err := rows.Scan(&e.PathHash, &e.Name, &e.Path, &e.RelativePath, &e.Workspace,
			&kind, &e.Size, &e.ModifiedTime, &e.Extension, &e.Priority); err != nil {
			return nil, errors.NewIndexingError("scan entry", err)
		}
		e.Kind = types.ParseKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntrySQLOrder is the shared candidate ordering for name searches: high
// priority first, folders before files at equal priority, short names first.
const entrySQLOrder = ` ORDER BY priority DESC, kind DESC, length(name)`

func (s *Store) queryEntries(query string, args ...interface{}) ([]types.FileEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SearchByPrefix returns entries whose name starts with the prefix or whose
// name/relative path contains it (case-insensitive), merged with
// acceleration-index hits and de-duplicated by path. Acceleration-index
// syntax errors from un-sanitized user input degrade silently to the
// substring results.
func (s *Store) SearchByPrefix(prefix string, maxResults int) ([]types.FileEntry, error) {
	if prefix == "" || maxResults <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.queryEntries(
		`SELECT `+entryColumns+` FROM file_entries
		WHERE name LIKE ? OR relative_path LIKE ?`+entrySQLOrder+` LIMIT ?`,
		prefix+"%", "%"+prefix+"%", maxResults)
	if err != nil {
		return nil, errors.NewIndexingError("prefix search", err)
	}

	if len(results) < maxResults {
		seen := make(map[string]bool, len(results))
		for _, e := range results {
			seen[e.Path] = true
		}
		results = append(results, s.searchFTSLocked(prefix, maxResults-len(results), seen)...)
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// SearchFuzzy returns acceleration-index matches first, supplemented with
// substring matches on name/relative path until maxResults is reached,
// skipping paths already returned.
func (s *Store) SearchFuzzy(query string, maxResults int) ([]types.FileEntry, error) {
	if query == "" || maxResults <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	results := s.searchFTSLocked(query, maxResults, seen)

	if len(results) < maxResults {
		like, err := s.searchWithLikeLocked(query, maxResults-len(results), seen)
		if err != nil {
			return nil, err
		}
		results = append(results, like...)
	}
	return results, nil
}

// searchFTSLocked runs an FTS5 match, returning nil on any query error so
// callers degrade to substring search. Caller holds at least a read lock.
func (s *Store) searchFTSLocked(text string, maxResults int, seen map[string]bool) []types.FileEntry {
	if maxResults <= 0 {
		return nil
	}
	escaped := escapeFTSQuery(text)
	if escaped == "" {
		return nil
	}

	entries, err := s.queryEntries(
		`SELECT fe.path_hash, fe.name, fe.path, fe.relative_path, fe.workspace,
			fe.kind, fe.size, fe.modified_time, fe.extension, fe.priority
		FROM file_entries fe
		JOIN file_search fs ON fe.rowid = fs.rowid
		WHERE file_search MATCH ?
		ORDER BY fe.priority DESC, fe.kind DESC, length(fe.name)
		LIMIT ?`,
		escaped, maxResults+len(seen))
	if err != nil {
		// Malformed or adversarial query syntax; substring search covers it.
		debug.LogStore("fts query failed, degrading to LIKE: %v\n", err)
		return nil
	}

	var out []types.FileEntry
	for _, e := range entries {
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		out = append(out, e)
		if len(out) >= maxResults {
			break
		}
	}
	return out
}

// searchWithLikeLocked tries progressively looser substring patterns.
func (s *Store) searchWithLikeLocked(query string, maxResults int, seen map[string]bool) ([]types.FileEntry, error) {
	patterns := []string{query + "%", "%" + query + "%", "%" + query}

	var out []types.FileEntry
	for _, pattern := range patterns {
		if len(out) >= maxResults {
			break
		}
		entries, err := s.queryEntries(
			`SELECT `+entryColumns+` FROM file_entries
			WHERE (name LIKE ? OR relative_path LIKE ?)`+entrySQLOrder+` LIMIT ?`,
			pattern, pattern, maxResults-len(out)+len(seen))
		if err != nil {
			return nil, errors.NewIndexingError("substring search", err)
		}
		for _, e := range entries {
			if seen[e.Path] || len(out) >= maxResults {
				continue
			}
			seen[e.Path] = true
			out = append(out, e)
		}
	}
	return out, nil
}

// escapeFTSQuery prepares user text for FTS5. Text containing FTS5
// metacharacters returns "" so the caller falls back to LIKE search instead
// of risking a syntax error.
func escapeFTSQuery(text string) string {
	if strings.ContainsAny(text, `.()[]{}"'*?:^-+`) {
		return ""
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return fmt.Sprintf("%s*", text)
}
