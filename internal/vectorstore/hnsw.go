package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/pedjoni/idiorag/internal/domain"
)

var _ Store = (*HNSWStore)(nil)

// HNSWStore is an in-memory approximate store with one graph per owner,
// so a search walks only the caller's vectors.
//
// Deletion is lazy: removed keys are dropped from the live set and skipped
// at search time, since coder/hnsw misbehaves when the last node of a
// graph is deleted.
type HNSWStore struct {
	mu         sync.RWMutex
	dimensions int
	owners     map[string]*ownerGraph
	docOwner   map[string]string
	closed     bool
}

type ownerGraph struct {
	graph   *hnsw.Graph[uint64]
	live    map[uint64]domain.Chunk
	byID    map[string]uint64
	byDoc   map[string][]uint64
	nextKey uint64
}

func newOwnerGraph() *ownerGraph {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return &ownerGraph{
		graph: g,
		live:  make(map[uint64]domain.Chunk),
		byID:  make(map[string]uint64),
		byDoc: make(map[string][]uint64),
	}
}

// NewHNSWStore creates an empty store for vectors of the given size.
func NewHNSWStore(dimensions int) *HNSWStore {
	return &HNSWStore{
		dimensions: dimensions,
		owners:     make(map[string]*ownerGraph),
		docOwner:   make(map[string]string),
	}
}

// Upsert implements Store.
func (s *HNSWStore) Upsert(_ context.Context, ownerID string, records []Record) error {
	if err := checkOwnership(ownerID, records); err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != s.dimensions {
			return fmt.Errorf("dimension mismatch: expected %d, got %d", s.dimensions, len(r.Vector))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	og, ok := s.owners[ownerID]
	if !ok {
		og = newOwnerGraph()
		s.owners[ownerID] = og
	}
	for _, r := range records {
		if old, exists := og.byID[r.Chunk.ID]; exists {
			delete(og.live, old)
		}
		key := og.nextKey
		og.nextKey++
		og.graph.Add(hnsw.MakeNode(key, normalize(r.Vector)))
		og.live[key] = r.Chunk
		og.byID[r.Chunk.ID] = key
		og.byDoc[r.Chunk.BackReference] = append(og.byDoc[r.Chunk.BackReference], key)
		s.docOwner[r.Chunk.BackReference] = ownerID
	}
	return nil
}

// Query implements Store.
func (s *HNSWStore) Query(_ context.Context, ownerID string, vector []float32, k int) ([]domain.RetrievedMatch, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", s.dimensions, len(vector))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	og, ok := s.owners[ownerID]
	if !ok || k <= 0 || len(og.live) == 0 {
		return []domain.RetrievedMatch{}, nil
	}

	q := normalize(vector)
	// over-fetch by the number of orphaned nodes so lazy deletes cannot starve k
	orphans := og.graph.Len() - len(og.live)
	nodes := og.graph.Search(q, k+orphans)

	out := make([]domain.RetrievedMatch, 0, len(nodes))
	for _, n := range nodes {
		c, live := og.live[n.Key]
		if !live {
			continue
		}
		score := 1 - float64(og.graph.Distance(q, n.Value))
		out = append(out, toMatch(c, score))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// DeleteByDocument implements Store.
func (s *HNSWStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	ownerID, ok := s.docOwner[documentID]
	if !ok {
		return nil
	}
	og := s.owners[ownerID]
	for _, key := range og.byDoc[documentID] {
		if c, live := og.live[key]; live {
			delete(og.byID, c.ID)
			delete(og.live, key)
		}
	}
	delete(og.byDoc, documentID)
	delete(s.docOwner, documentID)
	return nil
}

// Close implements Store.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.owners = nil
	return nil
}
