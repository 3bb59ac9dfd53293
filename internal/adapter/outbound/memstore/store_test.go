package memstore_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/adapter/outbound/memstore"
	"github.com/apilens/apilens/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestStore(t *testing.T, opts memstore.Options) *memstore.Store {
	t.Helper()
	store := memstore.New(opts, testLogger())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSchema(id, name string, protocol domain.Protocol, discoveredAt time.Time) *domain.UniversalSchema {
	return &domain.UniversalSchema{
		ID:           id,
		Name:         name,
		Version:      "1.0.0",
		Protocol:     protocol,
		Description:  "description of " + name,
		Operations:   []domain.Operation{},
		Types:        map[string]domain.SchemaField{},
		DiscoveredAt: discoveredAt,
		Source:       "https://" + id + ".example.com",
	}
}

func TestStore_StoreAndRetrieve(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store := newTestStore(t, memstore.Options{})
	schema := testSchema("abc123-1", "Petstore", domain.ProtocolREST, time.Now())

	id, err := store.Store(ctx, schema)
	require.NoError(err)
	assert.Equal("abc123-1", id)

	got, err := store.Retrieve(ctx, id)
	require.NoError(err)
	assert.Equal(schema, got)

	missing, err := store.Retrieve(ctx, "nope")
	require.NoError(err, "absence is not a storage failure")
	assert.Nil(missing)
}

func TestStore_StoreValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	_, err := store.Store(ctx, nil)
	assert.Equal(domain.ErrCodeStorage, domain.CodeOf(err))

	_, err = store.Store(ctx, testSchema("", "NoID", domain.ProtocolREST, time.Now()))
	assert.Equal(domain.ErrCodeStorage, domain.CodeOf(err))
}

func TestStore_StoreUpserts(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	_, err := store.Store(ctx, testSchema("abc123-1", "Old Name", domain.ProtocolREST, time.Now()))
	require.NoError(err)
	_, err = store.Store(ctx, testSchema("abc123-1", "New Name", domain.ProtocolREST, time.Now()))
	require.NoError(err)

	ids, err := store.ListIDs(ctx)
	require.NoError(err)
	assert.Len(ids, 1)

	got, err := store.Retrieve(ctx, "abc123-1")
	require.NoError(err)
	assert.Equal("New Name", got.Name)
}

func TestStore_Update(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	_, err := store.Store(ctx, testSchema("abc123-1", "Petstore", domain.ProtocolREST, time.Now()))
	require.NoError(err)

	replacement := testSchema("something-else", "Petstore v2", domain.ProtocolREST, time.Now())
	ok, err := store.Update(ctx, "abc123-1", replacement)
	require.NoError(err)
	assert.True(ok)

	got, err := store.Retrieve(ctx, "abc123-1")
	require.NoError(err)
	assert.Equal("Petstore v2", got.Name)
	assert.Equal("abc123-1", got.ID, "the stored entry keeps the addressed ID")

	ok, err = store.Update(ctx, "absent", replacement)
	require.NoError(err)
	assert.False(ok)

	missing, err := store.Retrieve(ctx, "absent")
	require.NoError(err)
	assert.Nil(missing, "update never creates")
}

func TestStore_Delete(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	_, err := store.Store(ctx, testSchema("abc123-1", "Petstore", domain.ProtocolREST, time.Now()))
	require.NoError(err)

	removed, err := store.Delete(ctx, "abc123-1")
	require.NoError(err)
	assert.True(removed)

	removed, err = store.Delete(ctx, "abc123-1")
	require.NoError(err)
	assert.False(removed)
}

func TestStore_QueryFilters(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seed := []*domain.UniversalSchema{
		testSchema("rest-1", "Petstore", domain.ProtocolREST, base),
		testSchema("gql-1", "Orders GraphQL", domain.ProtocolGraphQL, base.Add(time.Hour)),
		testSchema("ws-1", "Chat Socket", domain.ProtocolWebSocket, base.Add(2*time.Hour)),
	}
	for _, s := range seed {
		_, err := store.Store(ctx, s)
		require.NoError(err)
	}

	tests := []struct {
		name    string
		query   domain.SchemaQuery
		wantIDs []string
	}{
		{"no filter returns newest first", domain.SchemaQuery{}, []string{"ws-1", "gql-1", "rest-1"}},
		{"by id", domain.SchemaQuery{ID: "gql-1"}, []string{"gql-1"}},
		{"by protocol", domain.SchemaQuery{Protocol: domain.ProtocolREST}, []string{"rest-1"}},
		{"name substring is case-insensitive", domain.SchemaQuery{Name: "graphql"}, []string{"gql-1"}},
		{"by source substring", domain.SchemaQuery{Source: "ws-1.example"}, []string{"ws-1"}},
		{"free-text search hits descriptions", domain.SchemaQuery{Search: "of chat"}, []string{"ws-1"}},
		{"discovered after", domain.SchemaQuery{DiscoveredAfter: timePtr(base.Add(30 * time.Minute))}, []string{"ws-1", "gql-1"}},
		{"discovered before", domain.SchemaQuery{DiscoveredBefore: timePtr(base.Add(30 * time.Minute))}, []string{"rest-1"}},
		{"no match", domain.SchemaQuery{Name: "billing"}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			result, err := store.Query(ctx, tc.query)
			require.NoError(err)

			var ids []string
			for _, s := range result.Schemas {
				ids = append(ids, s.ID)
			}
			assert.Equal(tc.wantIDs, ids)
			assert.Equal(len(tc.wantIDs), result.TotalCount)
			assert.False(result.HasMore)
		})
	}
}

func TestStore_QueryPagination(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s := testSchema(fmt.Sprintf("schema-%d", i), fmt.Sprintf("API %d", i), domain.ProtocolREST, base.Add(time.Duration(i)*time.Minute))
		_, err := store.Store(ctx, s)
		require.NoError(err)
	}

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantPage  int
		wantMore  bool
		wantFirst string
	}{
		{"first page", 2, 0, 2, true, "schema-4"},
		{"middle page", 2, 2, 2, true, "schema-2"},
		{"last page", 2, 4, 1, false, "schema-0"},
		{"offset past the end", 2, 10, 0, false, ""},
		{"no limit returns everything", 0, 0, 5, false, "schema-4"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			result, err := store.Query(ctx, domain.SchemaQuery{Limit: tc.limit, Offset: tc.offset})
			require.NoError(err)
			assert.Len(result.Schemas, tc.wantPage)
			assert.Equal(5, result.TotalCount, "totalCount is pre-pagination")
			assert.Equal(tc.wantMore, result.HasMore)
			if tc.wantFirst != "" {
				assert.Equal(tc.wantFirst, result.Schemas[0].ID)
			}
		})
	}
}

func TestStore_ListIDsSorted(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := store.Store(ctx, testSchema(id, id, domain.ProtocolREST, time.Now()))
		require.NoError(err)
	}

	ids, err := store.ListIDs(ctx)
	require.NoError(err)
	assert.Equal([]string{"alpha", "bravo", "charlie"}, ids)
}

func TestStore_Stats(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	before := time.Now()
	_, err := store.Store(ctx, testSchema("rest-1", "A", domain.ProtocolREST, time.Now()))
	require.NoError(err)
	_, err = store.Store(ctx, testSchema("rest-2", "B", domain.ProtocolREST, time.Now()))
	require.NoError(err)
	_, err = store.Store(ctx, testSchema("ws-1", "C", domain.ProtocolWebSocket, time.Now()))
	require.NoError(err)

	stats, err := store.Stats(ctx)
	require.NoError(err)
	assert.Equal(3, stats.TotalSchemas)
	assert.Equal(2, stats.SchemasByProtocol[domain.ProtocolREST])
	assert.Equal(1, stats.SchemasByProtocol[domain.ProtocolWebSocket])
	assert.False(stats.LastUpdated.Before(before))
}

func TestStore_Clear(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{})

	_, err := store.Store(ctx, testSchema("abc123-1", "Petstore", domain.ProtocolREST, time.Now()))
	require.NoError(err)
	require.NoError(store.Clear(ctx))

	ids, err := store.ListIDs(ctx)
	require.NoError(err)
	assert.Empty(ids)
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{MaxSchemas: 10})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s := testSchema(fmt.Sprintf("schema-%02d", i), fmt.Sprintf("API %d", i), domain.ProtocolREST, base.Add(time.Duration(i)*time.Minute))
		_, err := store.Store(ctx, s)
		require.NoError(err)
	}

	// Re-storing an existing ID at capacity replaces in place.
	_, err := store.Store(ctx, testSchema("schema-05", "API 5 again", domain.ProtocolREST, base.Add(5*time.Minute)))
	require.NoError(err)
	ids, err := store.ListIDs(ctx)
	require.NoError(err)
	assert.Len(ids, 10)

	// A new ID at capacity evicts the oldest tenth.
	_, err = store.Store(ctx, testSchema("schema-10", "API 10", domain.ProtocolREST, base.Add(10*time.Minute)))
	require.NoError(err)

	ids, err = store.ListIDs(ctx)
	require.NoError(err)
	assert.Len(ids, 10)
	assert.NotContains(ids, "schema-00")
	assert.Contains(ids, "schema-10")
}

func TestStore_EvictsExpiredWhenFull(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{MaxSchemas: 3, MaxAge: time.Hour})

	stale := time.Now().Add(-2 * time.Hour)
	_, err := store.Store(ctx, testSchema("stale-1", "Old A", domain.ProtocolREST, stale))
	require.NoError(err)
	_, err = store.Store(ctx, testSchema("stale-2", "Old B", domain.ProtocolREST, stale))
	require.NoError(err)
	_, err = store.Store(ctx, testSchema("fresh-1", "Fresh", domain.ProtocolREST, time.Now()))
	require.NoError(err)

	_, err = store.Store(ctx, testSchema("fresh-2", "Fresher", domain.ProtocolREST, time.Now()))
	require.NoError(err)

	ids, err := store.ListIDs(ctx)
	require.NoError(err)
	assert.Equal([]string{"fresh-1", "fresh-2"}, ids, "overflow sweeps out everything past MaxAge")
}

func TestStore_BackgroundSweep(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, memstore.Options{MaxAge: 50 * time.Millisecond, SweepInterval: 20 * time.Millisecond})

	_, err := store.Store(ctx, testSchema("stale-1", "Old", domain.ProtocolREST, time.Now().Add(-time.Hour)))
	require.NoError(err)

	assert.Eventually(t, func() bool {
		got, err := store.Retrieve(ctx, "stale-1")
		return err == nil && got == nil
	}, 2*time.Second, 10*time.Millisecond, "the background sweep evicts expired schemas")
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	store := memstore.New(memstore.Options{MaxAge: time.Hour}, testLogger())
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func timePtr(t time.Time) *time.Time { return &t }
