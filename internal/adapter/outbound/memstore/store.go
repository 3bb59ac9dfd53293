package memstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/apilens/apilens/internal/domain"
)

const defaultSweepInterval = time.Hour

// Options tune the in-memory store. Zero values disable the corresponding
// behavior.
type Options struct {
	// MaxSchemas caps how many schemas the store holds. Zero means no cap.
	MaxSchemas int
	// MaxAge marks schemas older than this as evictable. Zero disables
	// age-based eviction.
	MaxAge time.Duration
	// SweepInterval is how often the background sweep runs when MaxAge is
	// set. Zero means hourly.
	SweepInterval time.Duration
}

// Store keeps schemas in process memory.
// NOTE: not persistent; contents are lost on restart.
type Store struct {
	mu          sync.RWMutex
	schemas     map[string]*domain.UniversalSchema
	lastUpdated time.Time

	opts   Options
	logger *slog.Logger

	stop      chan struct{}
	closeOnce sync.Once
}

// New creates an in-memory store and, when MaxAge is set, starts the
// background sweep that evicts expired schemas.
func New(opts Options, logger *slog.Logger) *Store {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	s := &Store{
		schemas: make(map[string]*domain.UniversalSchema),
		opts:    opts,
		logger:  logger.With("component", "memory_storage"),
		stop:    make(chan struct{}),
	}
	if opts.MaxAge > 0 {
		go s.sweepLoop()
	}
	return s
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

	now := time.Now()
	if _, exists := s.schemas[schema.ID]; !exists && s.opts.MaxSchemas > 0 && len(s.schemas) >= s.opts.MaxSchemas {
		s.makeRoom(now)
	}
	s.schemas[schema.ID] = schema
	s.lastUpdated = now

	s.logger.Debug("Stored schema", slog.String("id", schema.ID), slog.Int("total", len(s.schemas)))
	return schema.ID, nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (*domain.UniversalSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[id], nil
}

func (s *Store) Update(ctx context.Context, id string, schema *domain.UniversalSchema) (bool, error) {
	if schema == nil {
		return false, domain.NewStorageError("cannot update to a nil schema", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schemas[id]; !ok {
		return false, nil
	}
	// The stored entry keeps the addressed ID even when the replacement
	// carries a different one.
	if schema.ID != id {
		cp := *schema
		cp.ID = id
		schema = &cp
	}
	s.schemas[id] = schema
	s.lastUpdated = time.Now()
	return true, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schemas[id]; !ok {
		return false, nil
	}
	delete(s.schemas, id)
	s.lastUpdated = time.Now()
	return true, nil
}

func (s *Store) Query(ctx context.Context, q domain.SchemaQuery) (*domain.QueryResult, error) {
	s.mu.RLock()
	matches := make([]*domain.UniversalSchema, 0)
	for _, schema := range s.schemas {
		if q.Matches(schema) {
			matches = append(matches, schema)
		}
	}
	s.mu.RUnlock()

	result := domain.BuildQueryResult(matches, q.Offset, q.Limit)
	s.logger.Debug("Queried schemas",
		slog.Int("matches", result.TotalCount),
		slog.Int("page", len(result.Schemas)))
	return result, nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.schemas))
	for id := range s.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Stats(ctx context.Context) (*domain.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProtocol := make(map[domain.Protocol]int)
	for _, schema := range s.schemas {
		byProtocol[schema.Protocol]++
	}
	return &domain.StorageStats{
		TotalSchemas:      len(s.schemas),
		SchemasByProtocol: byProtocol,
		LastUpdated:       s.lastUpdated,
	}, nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schemas = make(map[string]*domain.UniversalSchema)
	s.lastUpdated = time.Now()
	s.logger.Info("Cleared all schemas")
	return nil
}

// Close stops the background sweep. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			evicted := s.evictExpired(time.Now())
			s.mu.Unlock()
			if evicted > 0 {
				s.logger.Info("Swept expired schemas", slog.Int("evicted", evicted))
			}
		case <-s.stop:
			return
		}
	}
}

// makeRoom frees capacity for one insertion. Age-based eviction runs first
// when configured; the oldest-10% cut is the backstop that keeps MaxSchemas
// a hard ceiling even when nothing has expired. Caller holds the lock.
func (s *Store) makeRoom(now time.Time) {
	if s.opts.MaxAge > 0 {
		s.evictExpired(now)
	}
	if len(s.schemas) < s.opts.MaxSchemas {
		return
	}
	n := len(s.schemas) / 10
	if n < 1 {
		n = 1
	}
	s.evictOldest(n)
}

// evictExpired removes schemas discovered before now-MaxAge. Caller holds
// the lock.
func (s *Store) evictExpired(now time.Time) int {
	cutoff := now.Add(-s.opts.MaxAge)
	evicted := 0
	for id, schema := range s.schemas {
		if schema.DiscoveredAt.Before(cutoff) {
			delete(s.schemas, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.lastUpdated = now
	}
	return evicted
}

// evictOldest removes the n schemas with the earliest discovery times.
// Caller holds the lock.
func (s *Store) evictOldest(n int) {
	all := make([]*domain.UniversalSchema, 0, len(s.schemas))
	for _, schema := range s.schemas {
		all = append(all, schema)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].DiscoveredAt.Equal(all[j].DiscoveredAt) {
			return all[i].DiscoveredAt.Before(all[j].DiscoveredAt)
		}
		return all[i].ID < all[j].ID
	})
	if n > len(all) {
		n = len(all)
	}
	for _, schema := range all[:n] {
		delete(s.schemas, schema.ID)
	}
	s.logger.Info("Evicted oldest schemas", slog.Int("evicted", n))
}
