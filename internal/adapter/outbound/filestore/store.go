package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/apilens/apilens/internal/domain"
)

const (
	indexFile  = "index.json"
	backupDir  = "backups"
	backupExt  = ".backup"
	schemaExt  = ".json"
	timeLayout = "2006-01-02T15-04-05.000Z"

	defaultBackupRetention = 5
	defaultCacheSize       = 128
)

// Options configure the file-backed store.
type Options struct {
	// Dir is the storage directory. It is created if missing.
	Dir string
	// Backups enables a timestamped copy before every overwrite or delete.
	Backups bool
	// BackupRetention caps how many backups are kept per schema. Zero means 5.
	BackupRetention int
	// CacheSize bounds the in-memory read cache. Zero means 128 entries.
	CacheSize int
}

// indexEntry is the summary the index keeps per schema so filtered queries
// can be answered without deserializing every schema body.
type indexEntry struct {
	Name         string          `json:"name"`
	Protocol     domain.Protocol `json:"protocol"`
	Source       string          `json:"source"`
	DiscoveredAt time.Time       `json:"discoveredAt"`
	File         string          `json:"file"`
}

// Store persists one JSON document per schema plus an index document, under
// a single directory.
type Store struct {
	mu    sync.RWMutex
	dir   string
	opts  Options
	index map[string]indexEntry
	cache *lru.Cache[string, *domain.UniversalSchema]

	logger *slog.Logger
}

// New opens (or initializes) the storage directory and loads the index.
func New(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Dir == "" {
		return nil, domain.NewStorageError("file storage requires a directory", nil)
	}
	if opts.BackupRetention <= 0 {
		opts.BackupRetention = defaultBackupRetention
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, domain.NewStorageError("failed to create storage directory", err)
	}
	if opts.Backups {
		if err := os.MkdirAll(filepath.Join(opts.Dir, backupDir), 0o755); err != nil {
			return nil, domain.NewStorageError("failed to create backup directory", err)
		}
	}

	cache, err := lru.New[string, *domain.UniversalSchema](opts.CacheSize)
	if err != nil {
		return nil, domain.NewStorageError("failed to initialize schema cache", err)
	}

	s := &Store{
		dir:    opts.Dir,
		opts:   opts,
		index:  make(map[string]indexEntry),
		cache:  cache,
		logger: logger.With("component", "file_storage"),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	s.logger.Info("Opened file storage", slog.String("dir", opts.Dir), slog.Int("schemas", len(s.index)))
	return s, nil
}

func (s *Store) Store(ctx context.Context, schema *domain.UniversalSchema) (string, error) {
	if schema == nil {
		return "", domain.NewStorageError("cannot store a nil schema", nil)
	}
	if schema.ID == "" {
		return "", domain.NewStorageError("cannot store a schema without an ID", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[schema.ID]; exists {
		s.backup(schema.ID)
	}
	if err := s.writeSchemaLocked(schema.ID, schema); err != nil {
		return "", err
	}
	s.logger.Debug("Stored schema", slog.String("id", schema.ID))
	return schema.ID, nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (*domain.UniversalSchema, error) {
	if schema, ok := s.cache.Get(id); ok {
		return schema, nil
	}

	s.mu.RLock()
	entry, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	schema, err := s.readSchema(entry.File)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, schema)
	return schema, nil
}

func (s *Store) Update(ctx context.Context, id string, schema *domain.UniversalSchema) (bool, error) {
	if schema == nil {
		return false, domain.NewStorageError("cannot update to a nil schema", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false, nil
	}
	if schema.ID != id {
		cp := *schema
		cp.ID = id
		schema = &cp
	}
	s.backup(id)
	if err := s.writeSchemaLocked(id, schema); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[id]
	if !ok {
		return false, nil
	}
	s.backup(id)

	if err := os.Remove(filepath.Join(s.dir, entry.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, domain.NewStorageError(fmt.Sprintf("failed to delete schema file for %s", id), err)
	}
	delete(s.index, id)
	if err := s.saveIndexLocked(); err != nil {
		return false, err
	}
	s.cache.Remove(id)
	s.logger.Debug("Deleted schema", slog.String("id", id))
	return true, nil
}

// Query narrows candidates on the index first; only free-text search has to
// read every schema body because descriptions are not indexed.
func (s *Store) Query(ctx context.Context, q domain.SchemaQuery) (*domain.QueryResult, error) {
	s.mu.RLock()
	candidates := make([]string, 0, len(s.index))
	for id, entry := range s.index {
		if q.Search == "" && !entryMatches(q, id, entry) {
			continue
		}
		candidates = append(candidates, id)
	}
	s.mu.RUnlock()

	matches := make([]*domain.UniversalSchema, 0, len(candidates))
	for _, id := range candidates {
		schema, err := s.Retrieve(ctx, id)
		if err != nil {
			return nil, err
		}
		if schema != nil && q.Matches(schema) {
			matches = append(matches, schema)
		}
	}
	result := domain.BuildQueryResult(matches, q.Offset, q.Limit)
	s.logger.Debug("Queried schemas",
		slog.Int("matches", result.TotalCount),
		slog.Int("page", len(result.Schemas)))
	return result, nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Stats(ctx context.Context) (*domain.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProtocol := make(map[domain.Protocol]int)
	for _, entry := range s.index {
		byProtocol[entry.Protocol]++
	}

	var size int64
	walkErr := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if walkErr != nil {
		return nil, domain.NewStorageError("failed to measure storage size", walkErr)
	}

	var lastUpdated time.Time
	if info, err := os.Stat(filepath.Join(s.dir, indexFile)); err == nil {
		lastUpdated = info.ModTime()
	}

	return &domain.StorageStats{
		TotalSchemas:      len(s.index),
		SchemasByProtocol: byProtocol,
		StorageSize:       size,
		LastUpdated:       lastUpdated,
	}, nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return domain.NewStorageError("failed to read storage directory", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, entry.Name())); err != nil {
			return domain.NewStorageError("failed to clear storage directory", err)
		}
	}
	if s.opts.Backups {
		if err := os.MkdirAll(filepath.Join(s.dir, backupDir), 0o755); err != nil {
			return domain.NewStorageError("failed to recreate backup directory", err)
		}
	}

	s.index = make(map[string]indexEntry)
	s.cache.Purge()
	if err := s.saveIndexLocked(); err != nil {
		return err
	}
	s.logger.Info("Cleared all schemas")
	return nil
}

// Close drops the read cache. The index is persisted on every mutation, so
// there is nothing to flush.
func (s *Store) Close() error {
	s.cache.Purge()
	return nil
}

// entryMatches applies the index-answerable filters. Callers re-check the
// loaded schema with SchemaQuery.Matches, so being exact here is an
// optimization, not a correctness requirement.
func entryMatches(q domain.SchemaQuery, id string, entry indexEntry) bool {
	if q.ID != "" && id != q.ID {
		return false
	}
	if q.Name != "" && !strings.Contains(strings.ToLower(entry.Name), strings.ToLower(q.Name)) {
		return false
	}
	if q.Protocol != "" && entry.Protocol != q.Protocol {
		return false
	}
	if q.Source != "" && !strings.Contains(strings.ToLower(entry.Source), strings.ToLower(q.Source)) {
		return false
	}
	if q.DiscoveredAfter != nil && entry.DiscoveredAt.Before(*q.DiscoveredAfter) {
		return false
	}
	if q.DiscoveredBefore != nil && entry.DiscoveredAt.After(*q.DiscoveredBefore) {
		return false
	}
	return true
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return domain.NewStorageError("failed to read schema index", err)
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return domain.NewStorageError("failed to parse schema index", err)
	}
	return nil
}

// saveIndexLocked persists the index. Caller holds the write lock.
func (s *Store) saveIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return domain.NewStorageError("failed to encode schema index", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFile), data, 0o644); err != nil {
		return domain.NewStorageError("failed to write schema index", err)
	}
	return nil
}

// writeSchemaLocked writes the schema document, updates the index and warms
// the cache. Caller holds the write lock.
func (s *Store) writeSchemaLocked(id string, schema *domain.UniversalSchema) error {
	file := id + schemaExt
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return domain.NewStorageError(fmt.Sprintf("failed to encode schema %s", id), err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, file), data, 0o644); err != nil {
		return domain.NewStorageError(fmt.Sprintf("failed to write schema %s", id), err)
	}

	s.index[id] = indexEntry{
		Name:         schema.Name,
		Protocol:     schema.Protocol,
		Source:       schema.Source,
		DiscoveredAt: schema.DiscoveredAt,
		File:         file,
	}
	if err := s.saveIndexLocked(); err != nil {
		return err
	}
	s.cache.Add(id, schema)
	return nil
}

func (s *Store) readSchema(file string) (*domain.UniversalSchema, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return nil, domain.NewStorageError(fmt.Sprintf("failed to read schema file %s", file), err)
	}
	var schema domain.UniversalSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, domain.NewStorageError(fmt.Sprintf("failed to parse schema file %s", file), err)
	}
	return &schema, nil
}

// backup copies the schema's current document aside before an overwrite or
// delete, then prunes old copies past the retention count. Backup failures
// are logged, never propagated: a failed backup must not abort the write.
func (s *Store) backup(id string) {
	if !s.opts.Backups {
		return
	}
	entry, ok := s.index[id]
	if !ok {
		return
	}

	data, err := os.ReadFile(filepath.Join(s.dir, entry.File))
	if err != nil {
		s.logger.Warn("Failed to read schema for backup", slog.String("id", id), slog.Any("error", err))
		return
	}
	name := fmt.Sprintf("%s_%s%s", id, time.Now().UTC().Format(timeLayout), backupExt)
	if err := os.WriteFile(filepath.Join(s.dir, backupDir, name), data, 0o644); err != nil {
		s.logger.Warn("Failed to write backup", slog.String("id", id), slog.Any("error", err))
		return
	}
	s.pruneBackups(id)
}

// pruneBackups keeps the newest BackupRetention copies for the given schema,
// ordered by file modification time.
func (s *Store) pruneBackups(id string) {
	pattern := filepath.Join(s.dir, backupDir, id+"_*"+backupExt)
	paths, err := filepath.Glob(pattern)
	if err != nil || len(paths) <= s.opts.BackupRetention {
		return
	}

	type backupInfo struct {
		path    string
		modTime time.Time
	}
	infos := make([]backupInfo, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		infos = append(infos, backupInfo{path: path, modTime: info.ModTime()})
	}
	if len(infos) <= s.opts.BackupRetention {
		return
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].modTime.After(infos[j].modTime) })

	for _, stale := range infos[s.opts.BackupRetention:] {
		if err := os.Remove(stale.path); err != nil {
			s.logger.Warn("Failed to prune backup", slog.String("path", stale.path), slog.Any("error", err))
		}
	}
}
