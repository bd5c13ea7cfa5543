package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noteDoc struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Pinned    bool      `json:"pinned"`
	Rank      int       `json:"rank"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================
// Get / Set Tests
// ============================================

func TestMemoryStore_SetAndGet(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	err := ms.Set(ctx, "notes", "note-1", noteDoc{Title: "hello", Rank: 3})
	require.NoError(t, err)

	var got noteDoc
	require.NoError(t, ms.Get(ctx, "notes", "note-1", &got))
	assert.Equal(t, "note-1", got.ID)
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, 3, got.Rank)
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	ms := NewMemoryStore()

	var got noteDoc
	err := ms.Get(context.Background(), "notes", "missing", &got)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Set_ResolvesServerTimestamp(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	err := ms.Set(ctx, "notes", "note-1", map[string]any{
		"title":      "stamped",
		"created_at": ServerTimestamp,
	})
	require.NoError(t, err)

	var got noteDoc
	require.NoError(t, ms.Get(ctx, "notes", "note-1", &got))
	assert.True(t, got.CreatedAt.After(before))
}

func TestMemoryStore_Get_ReturnsCopy(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, ms.Set(ctx, "notes", "note-1", map[string]any{"title": "original"}))

	var first map[string]any
	require.NoError(t, ms.Get(ctx, "notes", "note-1", &first))
	first["title"] = "mutated"

	var second map[string]any
	require.NoError(t, ms.Get(ctx, "notes", "note-1", &second))
	assert.Equal(t, "original", second["title"])
}

// ============================================
// UpdateFields Tests
// ============================================

func TestMemoryStore_UpdateFields_MergesIntoDocument(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, ms.Set(ctx, "notes", "note-1", noteDoc{Title: "hello", Rank: 3, Pinned: true}))

	err := ms.UpdateFields(ctx, "notes", "note-1", map[string]any{"rank": 7})
	require.NoError(t, err)

	var got noteDoc
	require.NoError(t, ms.Get(ctx, "notes", "note-1", &got))
	assert.Equal(t, 7, got.Rank)
	// Untouched fields survive
	assert.Equal(t, "hello", got.Title)
	assert.True(t, got.Pinned)
}

func TestMemoryStore_UpdateFields_NotFound(t *testing.T) {
	ms := NewMemoryStore()

	err := ms.UpdateFields(context.Background(), "notes", "missing", map[string]any{"rank": 1})

	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================
// Create / Delete Tests
// ============================================

func TestMemoryStore_Create_AssignsID(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	id, err := ms.Create(ctx, "notes", noteDoc{Title: "created"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got noteDoc
	require.NoError(t, ms.Get(ctx, "notes", id, &got))
	assert.Equal(t, id, got.ID)
}

func TestMemoryStore_Delete(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, ms.Set(ctx, "notes", "note-1", noteDoc{Title: "bye"}))
	require.NoError(t, ms.Delete(ctx, "notes", "note-1"))

	var got noteDoc
	assert.ErrorIs(t, ms.Get(ctx, "notes", "note-1", &got), ErrNotFound)
	assert.ErrorIs(t, ms.Delete(ctx, "notes", "note-1"), ErrNotFound)
}

// ============================================
// Query Tests
// ============================================

func seedNotes(t *testing.T, ms *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notes := []noteDoc{
		{Title: "alpha", Pinned: true, Rank: 3, CreatedAt: base},
		{Title: "beta", Pinned: false, Rank: 1, CreatedAt: base.Add(time.Hour)},
		{Title: "gamma", Pinned: true, Rank: 2, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i, n := range notes {
		require.NoError(t, ms.Set(ctx, "notes", n.Title, notes[i]))
	}
}

func TestMemoryStore_Query_Filter(t *testing.T) {
	ms := NewMemoryStore()
	seedNotes(t, ms)

	var pinned []noteDoc
	err := ms.Query(context.Background(), "notes", Query{
		Filters: []Filter{{Field: "pinned", Value: true}},
	}, &pinned)

	require.NoError(t, err)
	assert.Len(t, pinned, 2)
}

func TestMemoryStore_Query_OrderAndLimit(t *testing.T) {
	ms := NewMemoryStore()
	seedNotes(t, ms)

	var newest []noteDoc
	err := ms.Query(context.Background(), "notes", Query{
		OrderBy: "created_at",
		Desc:    true,
		Limit:   2,
	}, &newest)

	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "gamma", newest[0].Title)
	assert.Equal(t, "beta", newest[1].Title)
}

func TestMemoryStore_Query_NumericOrder(t *testing.T) {
	ms := NewMemoryStore()
	seedNotes(t, ms)

	var byRank []noteDoc
	err := ms.Query(context.Background(), "notes", Query{OrderBy: "rank"}, &byRank)

	require.NoError(t, err)
	require.Len(t, byRank, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{byRank[0].Rank, byRank[1].Rank, byRank[2].Rank})
}

func TestMemoryStore_Query_EmptyCollection(t *testing.T) {
	ms := NewMemoryStore()

	var notes []noteDoc
	err := ms.Query(context.Background(), "notes", Query{}, &notes)

	require.NoError(t, err)
	assert.Empty(t, notes)
}

// ============================================
// Transact Tests
// ============================================

func TestMemoryStore_Transact_AppliesAllOps(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.Set(ctx, "notes", "note-1", noteDoc{Title: "old", Rank: 1}))

	err := ms.Transact(ctx, []Op{
		{Kind: OpSet, Collection: "notes", ID: "note-2", Doc: map[string]any{"title": "new"}},
		{Kind: OpUpdate, Collection: "notes", ID: "note-1", Fields: map[string]any{"rank": 9}},
	})
	require.NoError(t, err)

	var n1, n2 noteDoc
	require.NoError(t, ms.Get(ctx, "notes", "note-1", &n1))
	require.NoError(t, ms.Get(ctx, "notes", "note-2", &n2))
	assert.Equal(t, 9, n1.Rank)
	assert.Equal(t, "new", n2.Title)
}

func TestMemoryStore_Transact_FailedOpLeavesStoreUntouched(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.Set(ctx, "notes", "note-1", noteDoc{Title: "old", Rank: 1}))

	err := ms.Transact(ctx, []Op{
		{Kind: OpUpdate, Collection: "notes", ID: "note-1", Fields: map[string]any{"rank": 9}},
		{Kind: OpUpdate, Collection: "notes", ID: "missing", Fields: map[string]any{"rank": 9}},
	})
	require.ErrorIs(t, err, ErrNotFound)

	// The first op must not have been applied either
	var n1 noteDoc
	require.NoError(t, ms.Get(ctx, "notes", "note-1", &n1))
	assert.Equal(t, 1, n1.Rank)
}

// ============================================
// Helper Tests
// ============================================

func TestDoc(t *testing.T) {
	m := Doc(noteDoc{Title: "hello", Rank: 2})

	assert.Equal(t, "hello", m["title"])
	assert.Equal(t, float64(2), m["rank"])
}

func TestValuesEqual_AcrossNumericTypes(t *testing.T) {
	assert.True(t, valuesEqual(int(3), float64(3)))
	assert.True(t, valuesEqual("x", "x"))
	assert.False(t, valuesEqual(int(3), float64(4)))

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, valuesEqual(ts, "2026-01-01T00:00:00Z"))
}
