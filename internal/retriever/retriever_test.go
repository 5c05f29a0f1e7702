package retriever

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixline/recall/internal/embeddings"
	"github.com/helixline/recall/internal/vectorstore"
)

// stubProvider records which entry point was invoked and returns canned
// vectors.
type stubProvider struct {
	vector      []float32
	err         error
	calls       []string
	lastIsQuery bool
	lastInstr   string
}

func (p *stubProvider) EmbedText(_ context.Context, text string, isQuery bool, instruction string) ([]float32, error) {
	p.calls = append(p.calls, "text")
	p.lastIsQuery = isQuery
	p.lastInstr = instruction
	return p.vector, p.err
}

func (p *stubProvider) EmbedImage(_ context.Context, imagePath string, isQuery bool, instruction string) ([]float32, error) {
	p.calls = append(p.calls, "image")
	p.lastIsQuery = isQuery
	p.lastInstr = instruction
	return p.vector, p.err
}

func (p *stubProvider) EmbedFused(_ context.Context, text, imagePath string, isQuery bool, instruction string) ([]float32, error) {
	p.calls = append(p.calls, "fused")
	p.lastIsQuery = isQuery
	p.lastInstr = instruction
	return p.vector, p.err
}

func (p *stubProvider) Dimension() int { return len(p.vector) }

// stubStore returns canned neighbors.
type stubStore struct {
	neighbors []vectorstore.Neighbor
	inserted  []vectorstore.Metadata
	queryErr  error
}

func (s *stubStore) Insert(_ context.Context, meta vectorstore.Metadata, _ []float32) (string, error) {
	s.inserted = append(s.inserted, meta)
	return "stub-id", nil
}

func (s *stubStore) Query(_ context.Context, _ []float32, _ int) ([]vectorstore.Neighbor, error) {
	return s.neighbors, s.queryErr
}

var _ embeddings.Provider = (*stubProvider)(nil)

func TestSearchDispatch(t *testing.T) {
	tests := []struct {
		name      string
		textQuery string
		imagePath string
		wantCall  string
	}{
		{name: "text only", textQuery: "cats", wantCall: "text"},
		{name: "image only", imagePath: "/imgs/cat.png", wantCall: "image"},
		{name: "text and image", textQuery: "cats", imagePath: "/imgs/cat.png", wantCall: "fused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{vector: []float32{1, 0, 0}}
			r := New(&stubStore{}, provider, "", nil)

			_, err := r.Search(context.Background(), tt.textQuery, tt.imagePath, 5)
			require.NoError(t, err)
			require.Equal(t, []string{tt.wantCall}, provider.calls)
			assert.True(t, provider.lastIsQuery, "search must embed with the query flag")
			assert.Equal(t, DefaultSearchInstruction, provider.lastInstr)
		})
	}
}

func TestSearchNoQuery(t *testing.T) {
	provider := &stubProvider{vector: []float32{1, 0, 0}}
	r := New(&stubStore{}, provider, "", nil)

	results, err := r.Search(context.Background(), "", "", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, provider.calls, "no embedding call without a query")
}

func TestSearchEmbeddingErrorAborts(t *testing.T) {
	provider := &stubProvider{err: embeddings.ErrEmbeddingFailed}
	r := New(&stubStore{}, provider, "", nil)

	results, err := r.Search(context.Background(), "cats", "", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
	assert.Nil(t, results)
}

func TestSearchSimilarityOrdering(t *testing.T) {
	item := func(id string) vectorstore.Item {
		return vectorstore.Item{ID: id, Metadata: vectorstore.Metadata{Type: vectorstore.TypeText, Title: id}}
	}

	t.Run("orderly store is not reordered", func(t *testing.T) {
		store := &stubStore{neighbors: []vectorstore.Neighbor{
			{Distance: 0.1, Item: item("a")},
			{Distance: 0.4, Item: item("b")},
			{Distance: 0.9, Item: item("c")},
		}}
		r := New(store, &stubProvider{vector: []float32{1, 0, 0}}, "", nil)

		results, err := r.Search(context.Background(), "q", "", 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{"a", "b", "c"},
			[]string{results[0].Item.ID, results[1].Item.ID, results[2].Item.ID})
		assert.InDelta(t, 0.9, results[0].Similarity, 1e-6)
		for i := 1; i < len(results); i++ {
			assert.Less(t, results[i].Similarity, results[i-1].Similarity)
		}
	})

	t.Run("violated order is repaired", func(t *testing.T) {
		store := &stubStore{neighbors: []vectorstore.Neighbor{
			{Distance: 0.9, Item: item("c")},
			{Distance: 0.1, Item: item("a")},
			{Distance: 0.4, Item: item("b")},
		}}
		r := New(store, &stubProvider{vector: []float32{1, 0, 0}}, "", nil)

		results, err := r.Search(context.Background(), "q", "", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"},
			[]string{results[0].Item.ID, results[1].Item.ID, results[2].Item.ID})
	})
}

func TestAddItemValidation(t *testing.T) {
	tests := []struct {
		name      string
		typ       vectorstore.ItemType
		title     string
		content   string
		imagePath string
	}{
		{name: "unknown type", typ: "video", title: "t", content: "c"},
		{name: "missing title", typ: vectorstore.TypeText, content: "c"},
		{name: "text without content", typ: vectorstore.TypeText, title: "t"},
		{name: "image without path", typ: vectorstore.TypeImage, title: "t"},
		{name: "image-text without content", typ: vectorstore.TypeImageText, title: "t", imagePath: "/x.png"},
		{name: "image-text without image", typ: vectorstore.TypeImageText, title: "t", content: "c"},
		{name: "image-text with delimiter in content", typ: vectorstore.TypeImageText, title: "t", content: "a | b", imagePath: "/x.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{}
			r := New(store, &stubProvider{vector: []float32{1, 0, 0}}, "", nil)

			_, err := r.AddItem(context.Background(), tt.typ, tt.title, tt.content, "", tt.imagePath)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, store.inserted, "nothing may be persisted on validation failure")
		})
	}
}

func TestAddItemComposesContent(t *testing.T) {
	store := &stubStore{}
	provider := &stubProvider{vector: []float32{1, 0, 0}}
	r := New(store, provider, "", nil)

	id, err := r.AddItem(context.Background(), vectorstore.TypeImageText, "cat pic", "a cat", "", "/imgs/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "stub-id", id)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "a cat | /imgs/cat.png", store.inserted[0].Content)
	assert.Equal(t, []string{"fused"}, provider.calls)
	assert.False(t, provider.lastIsQuery, "documents must not be embedded as queries")
	assert.NotEmpty(t, store.inserted[0].Date)
}

func TestInsertThenSearchFindsItem(t *testing.T) {
	// End-to-end over the real store with a deterministic embedder: the
	// same text always maps to the same vector, so an inserted item must be
	// in the top-k for its own text.
	store, err := vectorstore.NewSQLiteStore(vectorstore.Config{
		Path:       filepath.Join(t.TempDir(), "e2e.db"),
		VectorSize: 3,
	}, nil)
	require.NoError(t, err)
	defer store.Close()

	vectors := map[string][]float32{
		"a paper about llamas":   {1, 0, 0},
		"a paper about transit":  {0, 1, 0},
		"a paper about proteins": {0, 0, 1},
	}
	provider := &mappedProvider{vectors: vectors}
	r := New(store, provider, "", nil)

	ctx := context.Background()
	for text := range vectors {
		_, err := r.AddItem(ctx, vectorstore.TypeText, text, text, "", "")
		require.NoError(t, err)
	}

	results, err := r.Search(ctx, "a paper about llamas", "", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a paper about llamas", results[0].Item.Title)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

// mappedProvider returns a fixed vector per known text.
type mappedProvider struct {
	vectors map[string][]float32
}

func (p *mappedProvider) EmbedText(_ context.Context, text string, _ bool, _ string) ([]float32, error) {
	v, ok := p.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func (p *mappedProvider) EmbedImage(context.Context, string, bool, string) ([]float32, error) {
	return nil, errors.New("not supported")
}

func (p *mappedProvider) EmbedFused(context.Context, string, string, bool, string) ([]float32, error) {
	return nil, errors.New("not supported")
}

func (p *mappedProvider) Dimension() int { return 3 }
