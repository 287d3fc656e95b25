// Package rag retrieves relevant documents for a query, assembles a bounded
// context and asks the inference engine for a grounded answer.
package rag

import (
	"context"
	"sort"
	"sync"

	"inferd/internal/embed"
)

// Document is the unit of retrievable content.
type Document struct {
	ID      string
	Title   string
	Content string
}

// DocumentVector pairs a document id with its embedding.
type DocumentVector struct {
	DocumentID string
	Vector     []float32
}

// VectorStore is the retrieval collaborator. Document ingestion and
// persistence live outside this package; the orchestrator only reads.
type VectorStore interface {
	GetAllVectors(ctx context.Context) ([]DocumentVector, error)
	GetDocument(ctx context.Context, id string) (Document, error)
}

// notFoundError reports a document id missing from the store.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "document not found: " + e.id }

// IsNotFound reports whether err is a missing-document error.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// MemoryStore is an in-process VectorStore. Vectors are computed at Add
// time from the full document content.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder *embed.Embedder
	docs     map[string]Document
	vectors  map[string][]float32
}

func NewMemoryStore(embedder *embed.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		docs:     make(map[string]Document),
		vectors:  make(map[string][]float32),
	}
}

// Add indexes or replaces a document.
func (s *MemoryStore) Add(doc Document) {
	vec := s.embedder.Embed(doc.Content)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	s.vectors[doc.ID] = vec
}

// Remove drops a document from the index.
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.vectors, id)
}

// Len reports the number of indexed documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) GetAllVectors(ctx context.Context) ([]DocumentVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DocumentVector, 0, len(s.vectors))
	for id, vec := range s.vectors {
		out = append(out, DocumentVector{DocumentID: id, Vector: vec})
	}
	// map iteration order is random; callers score and sort, but a stable
	// order keeps ties deterministic
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, notFoundError{id: id}
	}
	return doc, nil
}
