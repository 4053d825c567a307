package projector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codegraph-mcp/internal/graph"
	"github.com/dshills/codegraph-mcp/internal/storage"
)

var errInjected = errors.New("injected failure")

// failingStore fails the Nth node creation or relation creation
type failingStore struct {
	graph.Store
	failNode     int
	failRelation int
	nodes        int
	relations    int
	created      []string
}

func (f *failingStore) CreateNode(ctx context.Context, node *graph.CodeNode) (graph.NodeID, error) {
	f.nodes++
	if f.nodes == f.failNode {
		return 0, errInjected
	}
	f.created = append(f.created, node.Name)
	return f.Store.CreateNode(ctx, node)
}

func (f *failingStore) CreateRelation(ctx context.Context, source, target graph.NodeID, typ graph.RelationType, props graph.Properties) error {
	f.relations++
	if f.relations == f.failRelation {
		return errInjected
	}
	return f.Store.CreateRelation(ctx, source, target, typ, props)
}

func setupStore(t *testing.T) (*storage.SQLiteStorage, graph.NodeID) {
	t.Helper()

	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rootID, err := s.GetOrCreateRoot(context.Background(), "/src/app", "app")
	require.NoError(t, err)
	return s, rootID
}

func sampleTree() *graph.ASTNode {
	return &graph.ASTNode{
		Type: graph.NodeModule, Name: "a.py", Position: graph.Lines(1, 12),
		Properties: graph.Properties{"language": "python"},
		Children: []*graph.ASTNode{
			{Type: graph.NodeImport, Name: "os", Position: graph.Span(1, 0, 1, 9), Properties: graph.Properties{}},
			{
				Type: graph.NodeClass, Name: "A", Position: graph.Span(3, 0, 8, 0), Properties: graph.Properties{},
				Children: []*graph.ASTNode{
					{Type: graph.NodeMethod, Name: "m1", Position: graph.Span(4, 4, 5, 0), Properties: graph.Properties{}},
					{Type: graph.NodeMethod, Name: "m2", Position: graph.Span(6, 4, 8, 0), Properties: graph.Properties{}},
				},
			},
			{Type: graph.NodeFunction, Name: "f", Position: graph.Span(10, 0, 12, 0), Properties: graph.Properties{"args": []string{"x"}}},
		},
	}
}

func TestProject_CreatesTree(t *testing.T) {
	s, rootID := setupStore(t)
	ctx := context.Background()

	res, err := New(s).Project(ctx, rootID, "a.py", sampleTree())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Nodes)
	assert.Equal(t, 6, res.Relations)

	nodes, err := s.ListNodesByFile(ctx, rootID, "a.py")
	require.NoError(t, err)
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
		assert.Equal(t, rootID, n.RootID)
		assert.Equal(t, "a.py", n.FilePath)
	}
	// Pre-order, siblings in source order
	assert.Equal(t, []string{"a.py", "os", "A", "m1", "m2", "f"}, names)
	assert.Equal(t, res.ModuleID, nodes[0].ID)

	sub, err := s.FetchSubgraph(ctx, rootID, 10)
	require.NoError(t, err)
	byName := map[string]graph.NodeID{}
	for _, n := range sub.Nodes {
		byName[n.Name] = n.ID
	}
	assert.True(t, sub.HasRelation(rootID, byName["a.py"], graph.RelationContains))
	assert.True(t, sub.HasRelation(byName["a.py"], byName["A"], graph.RelationContains))
	assert.True(t, sub.HasRelation(byName["A"], byName["m2"], graph.RelationContains))
	assert.True(t, sub.HasRelation(byName["a.py"], byName["f"], graph.RelationContains))

	// Every non-root node has exactly one incoming CONTAINS edge
	incoming := map[graph.NodeID]int{}
	for _, r := range sub.Relations {
		incoming[r.TargetID]++
	}
	for _, n := range nodes {
		assert.Equal(t, 1, incoming[n.ID], n.Name)
	}

	f := nodes[5]
	assert.Equal(t, []any{"x"}, f.Properties["args"])
}

func TestProject_NodesBeforeRelations(t *testing.T) {
	s, rootID := setupStore(t)
	fs := &failingStore{Store: s, failRelation: 1}

	_, err := New(fs).Project(context.Background(), rootID, "a.py", sampleTree())
	require.Error(t, err)

	// All nodes were created before the first relation was attempted
	assert.Equal(t, 6, fs.nodes)
	assert.Equal(t, []string{"a.py", "os", "A", "m1", "m2", "f"}, fs.created)
}

func TestProject_RollbackOnNodeFailure(t *testing.T) {
	s, rootID := setupStore(t)
	ctx := context.Background()

	// Another file is already indexed and must survive
	_, err := New(s).Project(ctx, rootID, "b.py", sampleTree())
	require.NoError(t, err)

	fs := &failingStore{Store: s, failNode: 4}
	_, err = New(fs).Project(ctx, rootID, "a.py", sampleTree())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGraphWrite)
	assert.ErrorIs(t, err, errInjected)

	nodes, err := s.ListNodesByFile(ctx, rootID, "a.py")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	nodes, err = s.ListNodesByFile(ctx, rootID, "b.py")
	require.NoError(t, err)
	assert.Len(t, nodes, 6)
}

func TestProject_RollbackOnRelationFailure(t *testing.T) {
	s, rootID := setupStore(t)
	ctx := context.Background()

	fs := &failingStore{Store: s, failRelation: 3}
	_, err := New(fs).Project(ctx, rootID, "a.py", sampleTree())
	require.ErrorIs(t, err, ErrGraphWrite)

	nodes, err := s.ListNodesByFile(ctx, rootID, "a.py")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	stats, err := s.Stats(ctx, rootID)
	require.NoError(t, err)
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.Relations)
	assert.Zero(t, stats.DanglingRelations)
}

func TestProject_Deterministic(t *testing.T) {
	s, rootID := setupStore(t)
	ctx := context.Background()
	p := New(s)

	_, err := p.Project(ctx, rootID, "a.py", sampleTree())
	require.NoError(t, err)
	first, err := s.ListNodesByFile(ctx, rootID, "a.py")
	require.NoError(t, err)

	require.NoError(t, s.DeleteNodesByFile(ctx, rootID, "a.py"))
	_, err = p.Project(ctx, rootID, "a.py", sampleTree())
	require.NoError(t, err)
	second, err := s.ListNodesByFile(ctx, rootID, "a.py")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.Equal(t, first[i].Type, second[i].Type)
		assert.Equal(t, first[i].Position, second[i].Position)
		assert.NotEqual(t, first[i].ID, second[i].ID)
	}
}

func TestProject_CancelledContext(t *testing.T) {
	s, rootID := setupStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s).Project(ctx, rootID, "a.py", sampleTree())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrGraphWrite)
}

func TestProject_NilTree(t *testing.T) {
	s, rootID := setupStore(t)

	_, err := New(s).Project(context.Background(), rootID, "a.py", nil)
	assert.ErrorIs(t, err, ErrGraphWrite)
}
