package mocks

import (
	"context"
	"sync"

	"github.com/example/dealshop/internal/platform/store"
)

// MockDocumentStore is a DocumentStore backed by an in-memory store that
// records calls and lets tests inject failures per operation.
type MockDocumentStore struct {
	mu    sync.Mutex
	inner *store.MemoryStore

	// For tracking calls in tests
	GetCalls      []DocCall
	SetCalls      []DocCall
	UpdateCalls   []UpdateCall
	CreateCalls   []DocCall
	QueryCalls    []QueryCall
	DeleteCalls   []DocCall
	TransactCalls [][]store.Op

	// Errors returned instead of delegating, when set
	GetErr      error
	SetErr      error
	UpdateErr   error
	CreateErr   error
	QueryErr    error
	DeleteErr   error
	TransactErr error
}

// DocCall records a collection/id pair passed to an operation.
type DocCall struct {
	Collection string
	ID         string
	Doc        any
}

// UpdateCall records parameters passed to UpdateFields.
type UpdateCall struct {
	Collection string
	ID         string
	Fields     map[string]any
}

// QueryCall records parameters passed to Query.
type QueryCall struct {
	Collection string
	Query      store.Query
}

// NewMockDocumentStore creates a new MockDocumentStore.
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{inner: store.NewMemoryStore()}
}

// WriteCount returns the total number of write-path calls observed.
func (m *MockDocumentStore) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SetCalls) + len(m.UpdateCalls) + len(m.CreateCalls) +
		len(m.DeleteCalls) + len(m.TransactCalls)
}

// CallCount returns the total number of store calls observed, reads included.
func (m *MockDocumentStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GetCalls) + len(m.SetCalls) + len(m.UpdateCalls) +
		len(m.CreateCalls) + len(m.QueryCalls) + len(m.DeleteCalls) +
		len(m.TransactCalls)
}

// Seed stores a document directly, bypassing call recording.
func (m *MockDocumentStore) Seed(collection, id string, doc any) {
	_ = m.inner.Set(context.Background(), collection, id, doc)
}

// Peek reads a document directly, bypassing call recording.
func (m *MockDocumentStore) Peek(collection, id string, out any) error {
	return m.inner.Get(context.Background(), collection, id, out)
}

func (m *MockDocumentStore) Get(ctx context.Context, collection, id string, out any) error {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, DocCall{Collection: collection, ID: id})
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Get(ctx, collection, id, out)
}

func (m *MockDocumentStore) Set(ctx context.Context, collection, id string, doc any) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, DocCall{Collection: collection, ID: id, Doc: doc})
	err := m.SetErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Set(ctx, collection, id, doc)
}

func (m *MockDocumentStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{Collection: collection, ID: id, Fields: fields})
	err := m.UpdateErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.UpdateFields(ctx, collection, id, fields)
}

func (m *MockDocumentStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, DocCall{Collection: collection, Doc: doc})
	err := m.CreateErr
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return m.inner.Create(ctx, collection, doc)
}

func (m *MockDocumentStore) Query(ctx context.Context, collection string, q store.Query, out any) error {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, QueryCall{Collection: collection, Query: q})
	err := m.QueryErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Query(ctx, collection, q, out)
}

func (m *MockDocumentStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, DocCall{Collection: collection, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Delete(ctx, collection, id)
}

func (m *MockDocumentStore) Transact(ctx context.Context, ops []store.Op) error {
	m.mu.Lock()
	m.TransactCalls = append(m.TransactCalls, ops)
	err := m.TransactErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Transact(ctx, ops)
}
