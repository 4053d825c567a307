// Package explorer answers read queries over the code graph: subgraphs around
// a node, served from an LRU cache, and single nodes with their relations.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/codegraph-mcp/internal/graph"
)

const (
	// DefaultCacheSize is the number of subgraphs kept in memory
	DefaultCacheSize = 256
	// DefaultCacheTTL bounds how long a cached subgraph is served
	DefaultCacheTTL = 5 * time.Minute
)

// ErrInvalidDepth is returned for negative traversal depths
var ErrInvalidDepth = errors.New("depth must be >= 0")

// Direction of a relation as seen from the node it was fetched for
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// Neighbor is a relation of a node together with the node at its other end
type Neighbor struct {
	Relation  *graph.CodeRelation `json:"relation"`
	Direction Direction           `json:"direction"`
	Node      *graph.CodeNode     `json:"node"`
}

// NodeDetail is a node with every relation incident to it
type NodeDetail struct {
	Node      *graph.CodeNode `json:"node"`
	Neighbors []Neighbor      `json:"neighbors"`
}

type subgraphKey struct {
	start graph.NodeID
	depth int
}

// cacheEntry represents a cached subgraph with expiration time
type cacheEntry struct {
	subgraph  *graph.Subgraph
	expiresAt time.Time
}

// Explorer serves read queries over the graph. Subgraphs are cached until
// Invalidate is called or their TTL expires.
type Explorer struct {
	store graph.Store
	cache *lru.Cache[subgraphKey, *cacheEntry]
	ttl   time.Duration
	now   func() time.Time

	// generation is bumped by Invalidate; fetches that straddle it are not cached
	generation atomic.Uint64
}

// New creates an Explorer over store with the default cache settings
func New(store graph.Store) *Explorer {
	return NewWithCache(store, DefaultCacheSize, DefaultCacheTTL)
}

// NewWithCache creates an Explorer caching up to size subgraphs for ttl
func NewWithCache(store graph.Store, size int, ttl time.Duration) *Explorer {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[subgraphKey, *cacheEntry](size)
	if err != nil {
		// Only returned for a non-positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Explorer{
		store: store,
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Subgraph returns the nodes within depth hops of start and the relations
// among them. The second result reports whether the answer came from cache.
func (e *Explorer) Subgraph(ctx context.Context, start graph.NodeID, depth int) (*graph.Subgraph, bool, error) {
	if depth < 0 {
		return nil, false, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}

	key := subgraphKey{start: start, depth: depth}
	if entry, ok := e.cache.Get(key); ok {
		if e.now().Before(entry.expiresAt) {
			return copySubgraph(entry.subgraph), true, nil
		}
		e.cache.Remove(key)
	}

	gen := e.generation.Load()
	sub, err := e.store.FetchSubgraph(ctx, start, depth)
	if err != nil {
		return nil, false, err
	}
	if e.generation.Load() == gen {
		e.cache.Add(key, &cacheEntry{
			subgraph:  copySubgraph(sub),
			expiresAt: e.now().Add(e.ttl),
		})
	}
	return sub, false, nil
}

// Node returns the node with the given identity and all of its relations,
// ordered by relation identity
func (e *Explorer) Node(ctx context.Context, id graph.NodeID) (*NodeDetail, error) {
	sub, err := e.store.FetchSubgraph(ctx, id, 1)
	if err != nil {
		return nil, err
	}

	byID := make(map[graph.NodeID]*graph.CodeNode, len(sub.Nodes))
	for _, n := range sub.Nodes {
		byID[n.ID] = n
	}

	detail := &NodeDetail{Node: byID[id], Neighbors: []Neighbor{}}
	for _, r := range sub.Relations {
		switch {
		case r.SourceID == id:
			detail.Neighbors = append(detail.Neighbors, Neighbor{Relation: r, Direction: Outgoing, Node: byID[r.TargetID]})
		case r.TargetID == id:
			detail.Neighbors = append(detail.Neighbors, Neighbor{Relation: r, Direction: Incoming, Node: byID[r.SourceID]})
		}
	}
	sort.Slice(detail.Neighbors, func(i, j int) bool {
		return detail.Neighbors[i].Relation.ID < detail.Neighbors[j].Relation.ID
	})
	return detail, nil
}

// Invalidate drops every cached subgraph. Called after a run changed the graph.
func (e *Explorer) Invalidate() {
	e.generation.Add(1)
	e.cache.Purge()
}

// Len returns the number of cached subgraphs
func (e *Explorer) Len() int {
	return e.cache.Len()
}

// copySubgraph copies the node and relation structs. Property maps are shared
// and must be treated as read-only.
func copySubgraph(src *graph.Subgraph) *graph.Subgraph {
	if src == nil {
		return nil
	}
	dst := &graph.Subgraph{
		Nodes:     make([]*graph.CodeNode, len(src.Nodes)),
		Relations: make([]*graph.CodeRelation, len(src.Relations)),
	}
	for i, n := range src.Nodes {
		c := *n
		dst.Nodes[i] = &c
	}
	for i, r := range src.Relations {
		c := *r
		dst.Relations[i] = &c
	}
	return dst
}
